package factory

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/anime-shed/facescan-go/internal/config"
	"github.com/anime-shed/facescan-go/internal/storage"
	"github.com/anime-shed/facescan-go/internal/vision"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ImageFetchTimeout: time.Second,
		MaxImageBytes:     1 << 20,
		FaceBackend:       config.BackendPigo,
		TextBackend:       config.BackendTesseract,
		FaceCascadePath:   filepath.Join("..", "..", "cascade", "facefinder"),
		OCRLanguage:       "eng",
		GalleryRoot:       t.TempDir(),
		BoxColor:          "#00ff00",
		BoxStrokeWidth:    3,
	}
}

func TestCreateStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.AzureStorageAccount = "facescan"
	cfg.AzureStorageKey = "dGVzdC1rZXk="
	f := NewStorageFactory(cfg)

	tests := []struct {
		name        string
		storageType StorageType
		wantErr     bool
	}{
		{"Local", LocalStorage, false},
		{"HTTP", HTTPStorage, false},
		{"Azure", AzureStorage, false},
		{"Unknown", StorageType("ftp"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := f.CreateStorage(context.Background(), tt.storageType)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if backend == nil {
				t.Fatal("Expected non-nil backend")
			}
		})
	}
}

func TestCreateStorage_LocalNeedsRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.GalleryRoot = ""
	if _, err := NewStorageFactory(cfg).CreateStorage(context.Background(), LocalStorage); err == nil {
		t.Error("Expected error without a gallery root")
	}

	cfg.GalleryRoot = filepath.Join(t.TempDir(), "missing")
	if _, err := NewStorageFactory(cfg).CreateStorage(context.Background(), LocalStorage); err == nil {
		t.Error("Expected error for a missing gallery root")
	}
}

func TestCreateRouter(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		schemes []string
	}{
		{"HTTP only", func(cfg *config.Config) { cfg.GalleryRoot = "" }, []string{"http", "https"}},
		{"Gallery root", func(cfg *config.Config) {}, []string{"file", "http", "https"}},
		{"Azure", func(cfg *config.Config) {
			cfg.AzureStorageAccount = "facescan"
			cfg.AzureStorageKey = "dGVzdC1rZXk="
		}, []string{"azblob", "file", "http", "https"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			router, err := NewStorageFactory(cfg).CreateRouter(context.Background())
			if err != nil {
				t.Fatalf("CreateRouter: %v", err)
			}
			got := router.Schemes()
			sort.Strings(got)
			if strings.Join(got, ",") != strings.Join(tt.schemes, ",") {
				t.Errorf("Expected schemes %v, got %v", tt.schemes, got)
			}
		})
	}
}

func TestCreateRouter_ServesGallery(t *testing.T) {
	cfg := testConfig(t)
	router, err := NewStorageFactory(cfg).CreateRouter(context.Background())
	if err != nil {
		t.Fatalf("CreateRouter: %v", err)
	}
	_, err = router.Fetch(context.Background(), "missing.png")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestDetectorFactory(t *testing.T) {
	cfg := testConfig(t)
	f := NewDetectorFactory(cfg)
	ctx := context.Background()

	faces, err := f.CreateFaceDetector(ctx, config.BackendPigo)
	if err != nil {
		t.Fatalf("pigo detector: %v", err)
	}
	if _, ok := faces.(*vision.PigoDetector); !ok {
		t.Errorf("Expected *vision.PigoDetector, got %T", faces)
	}

	text, err := f.CreateTextRecognizer(ctx, config.BackendTesseract)
	if err != nil {
		t.Fatalf("tesseract recognizer: %v", err)
	}
	if _, ok := text.(*vision.TesseractRecognizer); !ok {
		t.Errorf("Expected *vision.TesseractRecognizer, got %T", text)
	}

	if f.CreateBarcodeReader() == nil {
		t.Error("Expected a barcode reader")
	}
}

func TestDetectorFactory_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.FaceCascadePath = filepath.Join(t.TempDir(), "nope")
	f := NewDetectorFactory(cfg)
	ctx := context.Background()

	if _, err := f.CreateFaceDetector(ctx, config.BackendPigo); err == nil {
		t.Error("Expected error for a missing cascade")
	}
	if _, err := f.CreateFaceDetector(ctx, "opencv"); err == nil {
		t.Error("Expected error for an unknown face backend")
	}
	if _, err := f.CreateTextRecognizer(ctx, "easyocr"); err == nil {
		t.Error("Expected error for an unknown text backend")
	}
}

func TestComponentFactory(t *testing.T) {
	cfg := testConfig(t)
	f := NewComponentFactory(cfg)
	defer f.Close()

	detectors, err := f.CreateDetectors(context.Background())
	if err != nil {
		t.Fatalf("CreateDetectors: %v", err)
	}
	if detectors.Faces == nil || detectors.Text == nil || detectors.Barcodes == nil {
		t.Errorf("Expected all detectors, got %+v", detectors)
	}

	overlay, err := f.CreateOverlay()
	if err != nil || overlay == nil {
		t.Fatalf("CreateOverlay: %v", err)
	}

	cfg.BoxColor = "not-a-colour"
	if _, err := f.CreateOverlay(); err == nil {
		t.Error("Expected error for an invalid box colour")
	}

	if cam := f.CreateSnapshotCamera(nil); cam != nil {
		t.Error("Expected no snapshot camera without a URL")
	}
	cfg.CameraSnapshotURL = "http://camera.local/snapshot.jpg"
	if cam := f.CreateSnapshotCamera(nil); cam == nil {
		t.Error("Expected a snapshot camera")
	}

	if err := f.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
