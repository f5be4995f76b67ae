package validation

import (
	"strings"
	"testing"

	apperrors "github.com/anime-shed/facescan-go/internal/errors"
)

func TestNewLocatorValidator(t *testing.T) {
	validator := NewLocatorValidator([]string{"file", "https"})
	if validator == nil {
		t.Fatal("Expected non-nil locator validator")
	}
	if len(validator.allowedSchemes) != 2 {
		t.Errorf("Expected 2 schemes, got %d", len(validator.allowedSchemes))
	}
	if validator.maxLength != DefaultMaxLocatorLength {
		t.Errorf("Expected default max length, got %d", validator.maxLength)
	}
}

func TestValidateLocator_Valid(t *testing.T) {
	validator := NewLocatorValidator([]string{"file", "http", "https", "azblob", "gs"})

	validLocators := []string{
		"album/cat.jpg",
		"file:///album/cat.jpg",
		"http://example.com/image.jpg",
		"HTTPS://example.com/image.png",
		"azblob://gallery/2024/cat.jpg",
		"gs://photos/cat.jpg",
		"http://192.168.1.1:8080/snapshot.jpg",
	}

	for _, locator := range validLocators {
		if err := validator.ValidateLocator(locator); err != nil {
			t.Errorf("Expected valid locator %s to pass validation, got error: %v", locator, err)
		}
	}
}

func TestValidateLocator_Invalid(t *testing.T) {
	validator := NewLocatorValidatorWithOptions([]string{"file", "http", "https"}, nil, 64)

	tests := []struct {
		name    string
		locator string
		message string
	}{
		{"Empty", "", "locator cannot be empty"},
		{"Whitespace", " \t\n", "locator cannot be empty"},
		{"Too long", "album/" + strings.Repeat("a", 64), "locator too long"},
		{"NUL byte", "album/\x00cat.jpg", "locator contains a NUL byte"},
		{"Scheme not allowed", "ftp://example.com/image.jpg", "locator scheme not allowed"},
		{"Cloud scheme not configured", "gs://photos/cat.jpg", "locator scheme not allowed"},
		{"Missing host", "http:///path", "locator must have a valid host"},
		{"Empty file locator", "file://", "locator must name a file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateLocator(tt.locator)
			if err == nil {
				t.Fatalf("Expected %q to fail validation", tt.locator)
			}
			appErr, ok := err.(*apperrors.AppError)
			if !ok {
				t.Fatalf("Expected AppError, got: %T", err)
			}
			if appErr.Message != tt.message {
				t.Errorf("Expected %q error, got: %s", tt.message, appErr.Message)
			}
		})
	}
}

func TestValidateLocator_BarePathNeedsFileScheme(t *testing.T) {
	validator := NewLocatorValidator([]string{"https"})
	if err := validator.ValidateLocator("album/cat.jpg"); err == nil {
		t.Error("Expected bare path to fail when file scheme is not allowed")
	}
}

func TestValidateLocator_RestrictedHosts(t *testing.T) {
	validator := NewLocatorValidatorWithOptions([]string{"https", "gs"}, []string{"example.com", "photos"}, 0)

	allowed := []string{
		"https://example.com/image.jpg",
		"https://EXAMPLE.com:443/image.jpg",
		"gs://photos/cat.jpg",
	}
	for _, locator := range allowed {
		if err := validator.ValidateLocator(locator); err != nil {
			t.Errorf("Expected allowed host locator %s to pass validation, got error: %v", locator, err)
		}
	}

	disallowed := []string{
		"https://malicious.com/image.jpg",
		"gs://other-bucket/cat.jpg",
	}
	for _, locator := range disallowed {
		err := validator.ValidateLocator(locator)
		if err == nil {
			t.Errorf("Expected disallowed host locator %s to fail validation", locator)
			continue
		}
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.Message != "locator host not allowed" {
			t.Errorf("Expected 'locator host not allowed' error, got: %s", appErr.Message)
		}
	}
}

func TestIsHostAllowed(t *testing.T) {
	validator := NewLocatorValidator([]string{"https"})
	if !validator.isHostAllowed("example.com") {
		t.Error("Expected any host to be allowed when no restrictions")
	}

	restricted := NewLocatorValidatorWithOptions([]string{"https"}, []string{"trusted.com"}, 0)
	if !restricted.isHostAllowed("trusted.com") {
		t.Error("Expected trusted.com to be allowed")
	}
	if restricted.isHostAllowed("malicious.com") {
		t.Error("Expected malicious.com to be disallowed")
	}
}
