package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/facescan-go/internal/config"
	apperrors "github.com/anime-shed/facescan-go/internal/errors"
	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/service"
	"github.com/anime-shed/facescan-go/internal/workflow"
	"github.com/anime-shed/facescan-go/pkg/models"
)

// LocatorValidator rejects locators before they reach a session
type LocatorValidator interface {
	ValidateLocator(locator string) error
}

// MetricsSource reports workflow counters
type MetricsSource interface {
	GetMetrics() map[string]interface{}
}

// PoolStatsSource reports worker pool load
type PoolStatsSource interface {
	GetStats() workflow.PoolStats
}

// Deps are the handler's collaborators. Metrics and Pool are optional.
type Deps struct {
	Sessions  service.SessionService
	Validator LocatorValidator
	Metrics   MetricsSource
	Pool      PoolStatsSource
}

func NewHandler(deps Deps, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", metrics(deps))

	sessions := r.Group("/sessions")
	sessions.POST("", createSession(deps, cfg))
	sessions.GET("/:id", getSession(deps))
	sessions.DELETE("/:id", deleteSession(deps))
	sessions.GET("/:id/image", sessionImage(deps))
	sessions.POST("/:id/gallery", pickFromGallery(deps))
	sessions.POST("/:id/camera", captureFromCamera(deps))
	sessions.POST("/:id/permissions/camera", answerCameraPermission(deps))
	sessions.POST("/:id/ocr", detectText(deps))
	sessions.POST("/:id/barcode", detectBarcodes(deps))

	return r
}

func createSession(deps Deps, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		session, err := deps.Sessions.Create(ctx)
		if err != nil {
			respondAppError(c, "failed to create session", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"session_id": session.ID,
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}).Info("Session opened")

		c.JSON(http.StatusCreated, models.CreateSessionResponse{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
		})
	}
}

func getSession(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		view, err := s.View()
		if err != nil {
			respondAppError(c, "failed to read session", err)
			return
		}
		c.JSON(http.StatusOK, view)
	})
}

func deleteSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.Sessions.Delete(c.Param("id")); err != nil {
			respondAppError(c, "failed to delete session", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func sessionImage(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		data, err := s.PNG()
		if err != nil {
			respondAppError(c, "failed to render image", err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", data)
	})
}

func pickFromGallery(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		var req models.GalleryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		if req.Cancel {
			if err := s.CancelGallery(); err != nil {
				respondAppError(c, "failed to cancel picker", err)
				return
			}
			accepted(c, s, "gallery_cancel")
			return
		}

		if deps.Validator != nil {
			if err := deps.Validator.ValidateLocator(req.Locator); err != nil {
				respondAppError(c, "invalid locator", err)
				return
			}
		}

		logger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"locator":    req.Locator,
		}).Debug("Answering gallery picker")

		if err := s.PickFromGallery(req.Locator); err != nil {
			respondAppError(c, "failed to pick image", err)
			return
		}
		accepted(c, s, "gallery")
	})
}

func captureFromCamera(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		if cancel, _ := strconv.ParseBool(c.Query("cancel")); cancel {
			if err := s.CancelCamera(); err != nil {
				respondAppError(c, "failed to cancel camera", err)
				return
			}
			accepted(c, s, "camera_cancel")
			return
		}

		frame, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, http.StatusRequestEntityTooLarge, "camera frame too large", err)
				return
			}
			respondError(c, http.StatusBadRequest, "failed to read camera frame", err)
			return
		}

		if err := s.CaptureFromCamera(frame); err != nil {
			respondAppError(c, "failed to capture", err)
			return
		}
		accepted(c, s, "camera")
	})
}

func answerCameraPermission(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		var req models.PermissionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request format", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"results":    req.Results,
		}).Info("Camera permission answered")

		if err := s.AnswerCameraPermission(req.Results); err != nil {
			respondAppError(c, "failed to answer permission prompt", err)
			return
		}
		accepted(c, s, "camera_permission")
	})
}

func detectText(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		var req models.OCRRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
				respondError(c, http.StatusBadRequest, "invalid request format", err)
				return
			}
		}

		if err := s.DetectText(req.ExpectedText); err != nil {
			respondAppError(c, "failed to start text recognition", err)
			return
		}
		accepted(c, s, "text")
	})
}

func detectBarcodes(deps Deps) gin.HandlerFunc {
	return withSession(deps, func(c *gin.Context, s *service.Session) {
		if err := s.DetectBarcodes(); err != nil {
			respondAppError(c, "failed to start barcode reading", err)
			return
		}
		accepted(c, s, "barcode")
	})
}

func metrics(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.MetricsResponse{
			Sessions: deps.Sessions.Count(),
			Workflow: map[string]interface{}{},
		}
		if deps.Metrics != nil {
			resp.Workflow = deps.Metrics.GetMetrics()
		}
		if deps.Pool != nil {
			resp.Pool = deps.Pool.GetStats()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// withSession resolves the :id parameter before calling next
func withSession(deps Deps, next func(c *gin.Context, s *service.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := deps.Sessions.Get(c.Param("id"))
		if err != nil {
			respondAppError(c, "unknown session", err)
			return
		}
		next(c, session)
	}
}

func accepted(c *gin.Context, s *service.Session, operation string) {
	c.JSON(http.StatusAccepted, models.AcceptedResponse{
		SessionID: s.ID,
		Operation: operation,
		Status:    "accepted",
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError reports an AppError with its own status and message
func respondAppError(c *gin.Context, message string, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		logger.WithError(err).WithFields(logrus.Fields{
			"status_code": appErr.StatusCode,
			"error_type":  appErr.Type,
			"path":        c.Request.URL.Path,
			"method":      c.Request.Method,
			"ip":          c.ClientIP(),
		}).Warn("Request rejected")

		c.AbortWithStatusJSON(appErr.StatusCode, models.ErrorResponse{
			Error:   http.StatusText(appErr.StatusCode),
			Message: appErr.Message,
		})
		return
	}
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
