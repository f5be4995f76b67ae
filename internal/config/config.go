package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Detector backend names accepted by FACE_BACKEND and TEXT_BACKEND.
const (
	BackendPigo      = "pigo"
	BackendTesseract = "tesseract"
	BackendCloud     = "cloud"
)

// Camera permission modes accepted by CAMERA_PERMISSION.
const (
	PermissionPrompt  = "prompt"
	PermissionGranted = "granted"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	DetectionTimeout   time.Duration
	MaxRequestBodySize int64
	MaxImageBytes      int64

	// Sessions
	SessionTTL  time.Duration
	MaxSessions int
	Workers     int

	// Detectors
	FaceBackend     string
	TextBackend     string
	FaceCascadePath string
	OCRLanguage     string

	// Gallery sources
	GalleryRoot         string
	AzureStorageAccount string
	AzureStorageKey     string
	GCSEnabled          bool

	// Camera
	CameraSnapshotURL string
	CameraPermission  string

	// Rendering
	BoxColor       string
	BoxStrokeWidth float64
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadFromEnv reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:                getEnvOrDefault("HOST", "0.0.0.0"),
		Port:                getEnvOrDefault("PORT", "8080"),
		RequestTimeout:      parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:   parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		DetectionTimeout:    parseDurationOrDefault("DETECTION_TIMEOUT", 20*time.Second),
		MaxRequestBodySize:  parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 10*1024*1024), // 10MB
		MaxImageBytes:       parseIntOrDefault("MAX_IMAGE_BYTES", 20*1024*1024),
		SessionTTL:          parseDurationOrDefault("SESSION_TTL", 30*time.Minute),
		MaxSessions:         int(parseIntOrDefault("MAX_SESSIONS", 256)),
		Workers:             int(parseIntOrDefault("WORKERS", 0)),
		FaceBackend:         strings.ToLower(getEnvOrDefault("FACE_BACKEND", BackendPigo)),
		TextBackend:         strings.ToLower(getEnvOrDefault("TEXT_BACKEND", BackendTesseract)),
		FaceCascadePath:     getEnvOrDefault("FACE_CASCADE_PATH", "cascade/facefinder"),
		OCRLanguage:         getEnvOrDefault("OCR_LANGUAGE", "eng"),
		GalleryRoot:         getEnvOrDefault("GALLERY_ROOT", ""),
		AzureStorageAccount: os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:     os.Getenv("AZURE_STORAGE_KEY"),
		GCSEnabled:          parseBoolOrDefault("GCS_ENABLED", false),
		CameraSnapshotURL:   os.Getenv("CAMERA_SNAPSHOT_URL"),
		CameraPermission:    strings.ToLower(getEnvOrDefault("CAMERA_PERMISSION", PermissionPrompt)),
		BoxColor:            getEnvOrDefault("BOX_COLOR", "#ff0000"),
		BoxStrokeWidth:      parseFloatOrDefault("BOX_STROKE_WIDTH", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be > 0 (got %d)", c.MaxImageBytes)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.DetectionTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, detection=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.DetectionTimeout)
	}
	if c.SessionTTL <= 0 || c.MaxSessions <= 0 {
		return fmt.Errorf("SESSION_TTL and MAX_SESSIONS must be > 0 (got ttl=%s, max=%d)", c.SessionTTL, c.MaxSessions)
	}
	switch c.FaceBackend {
	case BackendPigo, BackendCloud:
	default:
		return fmt.Errorf("invalid FACE_BACKEND: %q", c.FaceBackend)
	}
	switch c.TextBackend {
	case BackendTesseract, BackendCloud:
	default:
		return fmt.Errorf("invalid TEXT_BACKEND: %q", c.TextBackend)
	}
	switch c.CameraPermission {
	case PermissionPrompt, PermissionGranted:
	default:
		return fmt.Errorf("invalid CAMERA_PERMISSION: %q", c.CameraPermission)
	}
	if c.BoxStrokeWidth <= 0 {
		return fmt.Errorf("BOX_STROKE_WIDTH must be > 0 (got %v)", c.BoxStrokeWidth)
	}
	if (c.AzureStorageAccount == "") != (c.AzureStorageKey == "") {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY must be set together")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
