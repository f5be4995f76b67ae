package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/facescan-go/internal/config"
	"github.com/anime-shed/facescan-go/internal/factory"
	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/observer"
	"github.com/anime-shed/facescan-go/internal/repository"
	"github.com/anime-shed/facescan-go/internal/service"
	"github.com/anime-shed/facescan-go/internal/storage"
	"github.com/anime-shed/facescan-go/internal/transport"
	"github.com/anime-shed/facescan-go/internal/workflow"
	"github.com/anime-shed/facescan-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	factory         *factory.ComponentFactory
	router          *storage.Router
	imageRepository repository.ImageRepository
	pool            *workflow.WorkerPool
	metrics         *observer.MetricsObserver
	sessions        service.SessionService
	handler         http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	ctx := context.Background()
	components := factory.NewComponentFactory(cfg)

	c, err := build(ctx, cfg, components)
	if err != nil {
		if closeErr := components.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to release clients after setup error")
		}
		return nil, err
	}
	return c, nil
}

func build(ctx context.Context, cfg *config.Config, components *factory.ComponentFactory) (*Container, error) {
	router, err := components.StorageFactory.CreateRouter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage: %w", err)
	}
	imageRepository := repository.NewStorageImageRepository(router, cfg.MaxImageBytes)

	detectors, err := components.CreateDetectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build detectors: %w", err)
	}
	overlay, err := components.CreateOverlay()
	if err != nil {
		return nil, fmt.Errorf("failed to build overlay: %w", err)
	}

	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	pool := workflow.NewWorkerPool(cfg.Workers)
	pool.Start()

	deps := service.Deps{
		Repository: imageRepository,
		Detectors: service.Detectors{
			Faces:    detectors.Faces,
			Text:     detectors.Text,
			Barcodes: detectors.Barcodes,
		},
		Executor: pool,
		Events:   events,
	}
	if cam := components.CreateSnapshotCamera(imageRepository); cam != nil {
		deps.Camera = cam
	}

	sessions, err := service.NewSessionService(deps, service.Options{
		MaxSessions:      cfg.MaxSessions,
		SessionTTL:       cfg.SessionTTL,
		LoadTimeout:      cfg.ImageFetchTimeout,
		DetectionTimeout: cfg.DetectionTimeout,
		Overlay:          overlay,
		CameraGranted:    cfg.CameraPermission == config.PermissionGranted,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to build session service: %w", err)
	}

	handler := transport.NewHandler(transport.Deps{
		Sessions:  sessions,
		Validator: validation.NewLocatorValidator(router.Schemes()),
		Metrics:   metrics,
		Pool:      pool,
	}, cfg)

	logger.WithFields(logrus.Fields{
		"schemes":      router.Schemes(),
		"face_backend": cfg.FaceBackend,
		"text_backend": cfg.TextBackend,
		"snapshot":     deps.Camera != nil,
	}).Info("Container initialized")

	return &Container{
		config:          cfg,
		factory:         components,
		router:          router,
		imageRepository: imageRepository,
		pool:            pool,
		metrics:         metrics,
		sessions:        sessions,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Sessions returns the session service
func (c *Container) Sessions() service.SessionService {
	return c.sessions
}

// Close closes every session, stops the worker pool and releases cloud clients
func (c *Container) Close() error {
	c.sessions.Close()
	c.pool.Close()
	return c.factory.Close()
}
