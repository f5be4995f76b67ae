package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/facescan-go/internal/errors"
)

// DefaultMaxLocatorLength bounds locator strings accepted from clients
const DefaultMaxLocatorLength = 2048

// LocatorValidator checks gallery locators before a picker is answered with
// them. Bare paths count as the "file" scheme.
type LocatorValidator struct {
	allowedSchemes []string
	allowedHosts   []string
	maxLength      int
}

// NewLocatorValidator accepts any host under the given schemes
func NewLocatorValidator(schemes []string) *LocatorValidator {
	return NewLocatorValidatorWithOptions(schemes, nil, DefaultMaxLocatorLength)
}

// NewLocatorValidatorWithOptions restricts hosts as well. For cloud locators
// the host is the bucket or container name.
func NewLocatorValidatorWithOptions(schemes []string, hosts []string, maxLength int) *LocatorValidator {
	if maxLength <= 0 {
		maxLength = DefaultMaxLocatorLength
	}
	return &LocatorValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
		maxLength:      maxLength,
	}
}

// ValidateLocator validates a gallery locator
func (v *LocatorValidator) ValidateLocator(locator string) error {
	if strings.TrimSpace(locator) == "" {
		return apperrors.NewValidationError("locator cannot be empty", nil)
	}
	if len(locator) > v.maxLength {
		return apperrors.NewValidationError("locator too long", nil)
	}
	if strings.ContainsRune(locator, 0) {
		return apperrors.NewValidationError("locator contains a NUL byte", nil)
	}

	if !strings.Contains(locator, "://") {
		if !v.isSchemeAllowed("file") {
			return apperrors.NewValidationError("locator scheme not allowed", nil)
		}
		return nil
	}

	parsed, err := url.Parse(locator)
	if err != nil {
		return apperrors.NewValidationError("invalid locator format", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if !v.isSchemeAllowed(scheme) {
		return apperrors.NewValidationError("locator scheme not allowed", nil)
	}
	if scheme == "file" {
		if parsed.Path == "" && parsed.Host == "" {
			return apperrors.NewValidationError("locator must name a file", nil)
		}
		return nil
	}

	if parsed.Host == "" {
		return apperrors.NewValidationError("locator must have a valid host", nil)
	}
	if !v.isHostAllowed(parsed.Hostname()) {
		return apperrors.NewValidationError("locator host not allowed", nil)
	}
	return nil
}

// isSchemeAllowed checks if the scheme is in the allowed list
func (v *LocatorValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the host is in the allowed list
// Returns true if no host restrictions are set (empty allowedHosts)
func (v *LocatorValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}
