package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/facescan-go/internal/device"
	apperrors "github.com/anime-shed/facescan-go/internal/errors"
	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/observer"
	"github.com/anime-shed/facescan-go/internal/render"
	"github.com/anime-shed/facescan-go/internal/repository"
	"github.com/anime-shed/facescan-go/internal/screen"
	"github.com/anime-shed/facescan-go/internal/workflow"
	"github.com/anime-shed/facescan-go/pkg/validation"
)

// SessionService hosts capture/detect screens, one per session
type SessionService interface {
	Create(ctx context.Context) (*Session, error)
	Get(id string) (*Session, error)
	Delete(id string) error
	Count() int
	Close()
}

// Detectors bundles the detector backends shared by every session
type Detectors struct {
	Faces    workflow.FaceDetector
	Text     workflow.TextDetector
	Barcodes workflow.BarcodeDetector
}

// Deps are the shared collaborators of the session service
type Deps struct {
	Repository repository.ImageRepository
	Detectors  Detectors
	Executor   workflow.Executor
	Events     observer.Subject
	// Camera replaces client-staged frames when set (snapshot camera).
	Camera workflow.Camera
}

// Options tune session lifetime and the per-session controllers
type Options struct {
	MaxSessions      int
	SessionTTL       time.Duration
	LoadTimeout      time.Duration
	DetectionTimeout time.Duration
	NoticeTTL        time.Duration
	Overlay          *render.Overlay
	CameraGranted    bool
}

type sessionService struct {
	deps     Deps
	opts     Options
	sessions *expirable.LRU[string, *Session]
	quality  *validation.QualityValidator

	// closing tracks sessions torn down after eviction
	closing sync.WaitGroup
}

// NewSessionService creates a session service. Sessions idle for longer than
// SessionTTL, or pushed out by MaxSessions, are closed.
func NewSessionService(deps Deps, opts Options) (SessionService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("session service: image repository is required")
	}
	if deps.Detectors.Faces == nil || deps.Detectors.Text == nil || deps.Detectors.Barcodes == nil {
		return nil, fmt.Errorf("session service: all three detectors are required")
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = 4 * time.Second
	}

	s := &sessionService{deps: deps, opts: opts, quality: validation.NewQualityValidator()}
	s.sessions = expirable.NewLRU[string, *Session](opts.MaxSessions, s.onEvict, opts.SessionTTL)
	return s, nil
}

// onEvict runs under the store's lock, so the controller is shut down on its
// own goroutine.
func (s *sessionService) onEvict(id string, session *Session) {
	if !session.evicted.CompareAndSwap(false, true) {
		return
	}
	s.closing.Add(1)
	go func() {
		defer s.closing.Done()
		session.close()
		logger.WithFields(logrus.Fields{
			"session_id": id,
			"age":        time.Since(session.CreatedAt).String(),
		}).Info("Session closed")
	}()
}

// Create starts a new session with an empty screen
func (s *sessionService) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()

	var permissions *device.PermissionStore
	if s.opts.CameraGranted {
		permissions = device.NewPermissionStore(workflow.PermissionCamera)
	} else {
		permissions = device.NewPermissionStore()
	}

	session := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		screen:      screen.New(s.opts.NoticeTTL),
		inbox:       device.NewInbox(),
		permissions: permissions,
		decoder:     s.deps.Repository,
		gallery:     s.deps.Repository,
		quality:     s.quality,
	}

	var camera workflow.Camera = session.inbox
	if s.deps.Camera != nil {
		camera = s.deps.Camera
		session.snapshotCamera = true
	}

	controller, err := workflow.New(workflow.Deps{
		Picker:      session.inbox,
		Gallery:     s.deps.Repository,
		Camera:      camera,
		Permissions: permissions,
		Faces:       s.deps.Detectors.Faces,
		Text:        s.deps.Detectors.Text,
		Barcodes:    s.deps.Detectors.Barcodes,
		View:        session.screen,
		Executor:    s.deps.Executor,
	}, workflow.Options{
		SessionID:        id,
		LoadTimeout:      s.opts.LoadTimeout,
		DetectionTimeout: s.opts.DetectionTimeout,
		Overlay:          s.opts.Overlay,
		Events:           s.deps.Events,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to start session", err)
	}
	session.controller = controller

	s.sessions.Add(id, session)
	logger.WithFields(logrus.Fields{
		"session_id":      id,
		"snapshot_camera": session.snapshotCamera,
		"active_sessions": s.sessions.Len(),
	}).Info("Session created")
	return session, nil
}

// Get returns a live session and extends its idle deadline
func (s *sessionService) Get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", fmt.Errorf("session %q", id))
	}
	// Re-adding refreshes the TTL. An eviction racing with it would revive a
	// closed session, so drop it again if that happened.
	if !session.evicted.Load() {
		s.sessions.Add(id, session)
	}
	if session.evicted.Load() {
		s.drop(id, session)
		return nil, apperrors.NewNotFoundError("session not found", fmt.Errorf("session %q", id))
	}
	return session, nil
}

// drop removes id only while it still maps to session
func (s *sessionService) drop(id string, session *Session) {
	if current, ok := s.sessions.Peek(id); ok && current == session {
		s.sessions.Remove(id)
	}
}

// Delete closes a session
func (s *sessionService) Delete(id string) error {
	session, ok := s.sessions.Peek(id)
	if ok && session.evicted.Load() {
		s.drop(id, session)
		ok = false
	}
	if !ok || !s.sessions.Remove(id) {
		return apperrors.NewNotFoundError("session not found", fmt.Errorf("session %q", id))
	}
	return nil
}

func (s *sessionService) Count() int {
	return s.sessions.Len()
}

// Close closes every session and waits for them to stop
func (s *sessionService) Close() {
	s.sessions.Purge()
	s.closing.Wait()
}

// mapWorkflowError turns controller errors into application errors
func mapWorkflowError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workflow.ErrNoImageSelected):
		return apperrors.NewConflictError("no image selected", err)
	case errors.Is(err, workflow.ErrHandoffActive):
		return apperrors.NewConflictError("another picker, prompt or camera is open", err)
	case errors.Is(err, device.ErrNoHandoff):
		return apperrors.NewConflictError("nothing is waiting for an answer", err)
	case errors.Is(err, workflow.ErrImageProcessing):
		return apperrors.NewProcessingError("Image processing error", err)
	case errors.Is(err, workflow.ErrClosed):
		return apperrors.NewNotFoundError("session closed", err)
	case errors.Is(err, repository.ErrInvalidLocator):
		return apperrors.NewValidationError("invalid locator", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("session did not respond in time", err)
	default:
		return apperrors.NewInternalError("workflow failure", err)
	}
}
