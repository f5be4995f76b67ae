package container

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/anime-shed/facescan-go/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		RequestTimeout:     time.Second,
		ImageFetchTimeout:  time.Second,
		DetectionTimeout:   time.Second,
		MaxRequestBodySize: 1 << 20,
		MaxImageBytes:      1 << 20,
		SessionTTL:         time.Minute,
		MaxSessions:        4,
		Workers:            1,
		FaceBackend:        config.BackendPigo,
		TextBackend:        config.BackendTesseract,
		FaceCascadePath:    filepath.Join("..", "..", "cascade", "facefinder"),
		OCRLanguage:        "eng",
		GalleryRoot:        t.TempDir(),
		CameraPermission:   config.PermissionPrompt,
		BoxColor:           "#ff0000",
		BoxStrokeWidth:     5,
	}
}

func TestNewContainer(t *testing.T) {
	c, err := NewContainer(testConfig(t))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if c.Sessions().Count() != 1 {
		t.Errorf("Expected 1 session, got %d", c.Sessions().Count())
	}
}

func TestNewContainer_BadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{"Missing cascade", func(cfg *config.Config) { cfg.FaceCascadePath = filepath.Join(t.TempDir(), "none") }},
		{"Missing gallery", func(cfg *config.Config) { cfg.GalleryRoot = filepath.Join(t.TempDir(), "none") }},
		{"Bad colour", func(cfg *config.Config) { cfg.BoxColor = "red" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := NewContainer(cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
