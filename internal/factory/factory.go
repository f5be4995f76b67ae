package factory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/anime-shed/facescan-go/internal/config"
	"github.com/anime-shed/facescan-go/internal/device"
	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/render"
	"github.com/anime-shed/facescan-go/internal/storage"
	"github.com/anime-shed/facescan-go/internal/vision"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// LocalStorage for the gallery directory on disk
	LocalStorage StorageType = "local"
	// HTTPStorage for HTTP-based image fetching
	HTTPStorage StorageType = "http"
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = "azure"
	// GCSStorage for Google Cloud Storage
	GCSStorage StorageType = "gcs"
)

// schemes maps each storage type to the locator schemes it serves
var schemes = map[StorageType][]string{
	LocalStorage: {"file"},
	HTTPStorage:  {"http", "https"},
	AzureStorage: {"azblob"},
	GCSStorage:   {"gs"},
}

// StorageFactory creates storage implementations
type StorageFactory interface {
	CreateStorage(ctx context.Context, storageType StorageType) (storage.ObjectFetcher, error)
	// CreateRouter registers every backend the configuration enables
	CreateRouter(ctx context.Context) (*storage.Router, error)
}

// DetectorFactory creates detector backends
type DetectorFactory interface {
	CreateFaceDetector(ctx context.Context, backend string) (vision.FaceDetector, error)
	CreateTextRecognizer(ctx context.Context, backend string) (vision.TextRecognizer, error)
	CreateBarcodeReader() vision.BarcodeReader
}

// closers collects clients that hold connections
type closers struct {
	mu    sync.Mutex
	items []io.Closer
}

func (c *closers) add(cl io.Closer) {
	c.mu.Lock()
	c.items = append(c.items, cl)
	c.mu.Unlock()
}

func (c *closers) closeAll() error {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.mu.Unlock()

	var first error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg     *config.Config
	closers *closers
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg, closers: &closers{}}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(ctx context.Context, storageType StorageType) (storage.ObjectFetcher, error) {
	switch storageType {
	case LocalStorage:
		if f.cfg.GalleryRoot == "" {
			return nil, fmt.Errorf("local storage requires GALLERY_ROOT")
		}
		return storage.NewFileStorage(f.cfg.GalleryRoot, f.cfg.MaxImageBytes)
	case HTTPStorage:
		return storage.NewHTTPImageFetcher(f.cfg.ImageFetchTimeout, f.cfg.MaxImageBytes), nil
	case AzureStorage:
		if f.cfg.AzureStorageAccount == "" {
			return nil, fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT")
		}
		return storage.NewAzureStorage(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.MaxImageBytes)
	case GCSStorage:
		gcs, err := storage.NewGCSStorage(ctx, f.cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		f.closers.add(gcs)
		return gcs, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

func (f *storageFactory) CreateRouter(ctx context.Context) (*storage.Router, error) {
	enabled := []StorageType{HTTPStorage}
	if f.cfg.GalleryRoot != "" {
		enabled = append(enabled, LocalStorage)
	}
	if f.cfg.AzureStorageAccount != "" {
		enabled = append(enabled, AzureStorage)
	}
	if f.cfg.GCSEnabled {
		enabled = append(enabled, GCSStorage)
	}

	router := storage.NewRouter()
	for _, st := range enabled {
		backend, err := f.CreateStorage(ctx, st)
		if err != nil {
			return nil, fmt.Errorf("%s storage: %w", st, err)
		}
		router.Register(backend, schemes[st]...)
		logger.WithField("storage", string(st)).Debug("Registered gallery storage")
	}
	return router, nil
}

// detectorFactory implements DetectorFactory. The cloud client is shared by
// the face and text detectors when both use it.
type detectorFactory struct {
	cfg     *config.Config
	opts    vision.DetectorOptions
	closers *closers

	mu    sync.Mutex
	cloud *vision.CloudDetector
}

// NewDetectorFactory creates a new detector factory
func NewDetectorFactory(cfg *config.Config) DetectorFactory {
	return &detectorFactory{
		cfg:     cfg,
		opts:    vision.DefaultOptions().WithLanguage(cfg.OCRLanguage),
		closers: &closers{},
	}
}

func (f *detectorFactory) CreateFaceDetector(ctx context.Context, backend string) (vision.FaceDetector, error) {
	switch backend {
	case config.BackendPigo:
		return vision.NewPigoDetector(f.cfg.FaceCascadePath, f.opts)
	case config.BackendCloud:
		return f.cloudDetector(ctx)
	default:
		return nil, fmt.Errorf("unsupported face backend: %s", backend)
	}
}

func (f *detectorFactory) CreateTextRecognizer(ctx context.Context, backend string) (vision.TextRecognizer, error) {
	switch backend {
	case config.BackendTesseract:
		return vision.NewTesseractRecognizer(f.opts), nil
	case config.BackendCloud:
		return f.cloudDetector(ctx)
	default:
		return nil, fmt.Errorf("unsupported text backend: %s", backend)
	}
}

func (f *detectorFactory) CreateBarcodeReader() vision.BarcodeReader {
	return vision.NewZXingReader()
}

func (f *detectorFactory) cloudDetector(ctx context.Context) (*vision.CloudDetector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cloud != nil {
		return f.cloud, nil
	}
	det, err := vision.NewCloudDetector(ctx, f.opts)
	if err != nil {
		return nil, err
	}
	f.cloud = det
	f.closers.add(det)
	return det, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	Config          *config.Config
	StorageFactory  StorageFactory
	DetectorFactory DetectorFactory

	closers []*closers
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	sf := &storageFactory{cfg: cfg, closers: &closers{}}
	df := NewDetectorFactory(cfg).(*detectorFactory)
	return &ComponentFactory{
		Config:          cfg,
		StorageFactory:  sf,
		DetectorFactory: df,
		closers:         []*closers{sf.closers, df.closers},
	}
}

// Detectors is the configured detector set
type Detectors struct {
	Faces    vision.FaceDetector
	Text     vision.TextRecognizer
	Barcodes vision.BarcodeReader
}

// CreateDetectors builds the face and text backends named in the config
func (f *ComponentFactory) CreateDetectors(ctx context.Context) (Detectors, error) {
	faces, err := f.DetectorFactory.CreateFaceDetector(ctx, f.Config.FaceBackend)
	if err != nil {
		return Detectors{}, fmt.Errorf("face detector: %w", err)
	}
	text, err := f.DetectorFactory.CreateTextRecognizer(ctx, f.Config.TextBackend)
	if err != nil {
		return Detectors{}, fmt.Errorf("text recognizer: %w", err)
	}
	return Detectors{
		Faces:    faces,
		Text:     text,
		Barcodes: f.DetectorFactory.CreateBarcodeReader(),
	}, nil
}

// CreateOverlay builds the face box renderer
func (f *ComponentFactory) CreateOverlay() (*render.Overlay, error) {
	return render.NewOverlay(f.Config.BoxColor, f.Config.BoxStrokeWidth)
}

// CreateSnapshotCamera returns nil when no snapshot URL is configured; frames
// then come from clients.
func (f *ComponentFactory) CreateSnapshotCamera(decoder device.FrameDecoder) *device.SnapshotCamera {
	if f.Config.CameraSnapshotURL == "" {
		return nil
	}
	fetcher := storage.NewHTTPImageFetcher(f.Config.ImageFetchTimeout, f.Config.MaxImageBytes)
	return device.NewSnapshotCamera(f.Config.CameraSnapshotURL, fetcher, decoder)
}

// Close releases cloud clients opened by the factories
func (f *ComponentFactory) Close() error {
	var first error
	for _, c := range f.closers {
		if err := c.closeAll(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
