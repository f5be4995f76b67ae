package validation

import (
	"github.com/anime-shed/facescan-go/internal/vision"
)

// QualityThresholds defines configurable thresholds for quality validation
type QualityThresholds struct {
	// Sharpness thresholds (variance of the Laplacian)
	MinSharpness float64
	MaxSharpness float64

	// Brightness thresholds (mean luminance, 0-255)
	MinBrightness float64
	MaxBrightness float64

	// Contrast threshold (luminance standard deviation)
	MinContrast float64

	// Resolution thresholds
	MinWidth  int
	MinHeight int
}

// DefaultQualityThresholds returns the default quality thresholds
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinSharpness:  100.0,
		MaxSharpness:  4000.0,
		MinBrightness: 60.0,
		MaxBrightness: 220.0,
		MinContrast:   15.0,
		MinWidth:      320,
		MinHeight:     240,
	}
}

// QualityValidator flags acquired images that detectors are likely to
// struggle with. Issues are advisory; detection still runs.
type QualityValidator struct {
	thresholds QualityThresholds
}

// NewQualityValidator creates a new quality validator with default thresholds
func NewQualityValidator() *QualityValidator {
	return &QualityValidator{
		thresholds: DefaultQualityThresholds(),
	}
}

// NewQualityValidatorWithThresholds creates a quality validator with custom thresholds
func NewQualityValidatorWithThresholds(thresholds QualityThresholds) *QualityValidator {
	return &QualityValidator{
		thresholds: thresholds,
	}
}

// QualityIssue represents a quality validation issue
type QualityIssue struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Severity    string  `json:"severity"` // "error", "warning"
	ActualValue float64 `json:"actual_value,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// Assess checks an image summary against the thresholds
func (qv *QualityValidator) Assess(info vision.ImageInfo) []QualityIssue {
	var issues []QualityIssue

	// 1. Resolution
	if info.Width < qv.thresholds.MinWidth || info.Height < qv.thresholds.MinHeight {
		issues = append(issues, QualityIssue{
			Type:        "low_resolution",
			Message:     "Image is too small. Faces and text may be missed.",
			Severity:    "warning",
			ActualValue: float64(info.Width * info.Height),
			Threshold:   float64(qv.thresholds.MinWidth * qv.thresholds.MinHeight),
		})
	}

	// 2. Sharpness. A flat image has no edges at all, which reads as blur,
	// so it is reported as low contrast instead.
	flat := info.Contrast < qv.thresholds.MinContrast
	if !flat && info.Sharpness < qv.thresholds.MinSharpness {
		issues = append(issues, QualityIssue{
			Type:        "blurriness",
			Message:     "Image is blurry. Hold the camera steady and try again.",
			Severity:    "error",
			ActualValue: info.Sharpness,
			Threshold:   qv.thresholds.MinSharpness,
		})
	} else if info.Sharpness > qv.thresholds.MaxSharpness {
		issues = append(issues, QualityIssue{
			Type:        "noise",
			Message:     "Image is very noisy. Use more light and avoid digital zoom.",
			Severity:    "warning",
			ActualValue: info.Sharpness,
			Threshold:   qv.thresholds.MaxSharpness,
		})
	}

	// 3. Brightness
	if info.Brightness < qv.thresholds.MinBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_dark",
			Message:     "Image is too dark. Take the photo in more light.",
			Severity:    "error",
			ActualValue: info.Brightness,
			Threshold:   qv.thresholds.MinBrightness,
		})
	} else if info.Brightness > qv.thresholds.MaxBrightness {
		issues = append(issues, QualityIssue{
			Type:        "too_bright",
			Message:     "Image is too bright. Avoid strong sunlight or flash.",
			Severity:    "error",
			ActualValue: info.Brightness,
			Threshold:   qv.thresholds.MaxBrightness,
		})
	}

	// 4. Contrast
	if flat {
		issues = append(issues, QualityIssue{
			Type:        "low_contrast",
			Message:     "Image looks flat. Make sure the subject fills the frame.",
			Severity:    "warning",
			ActualValue: info.Contrast,
			Threshold:   qv.thresholds.MinContrast,
		})
	}

	return issues
}

// ConvertIssuesToMessages converts quality issues to plain messages
func (qv *QualityValidator) ConvertIssuesToMessages(issues []QualityIssue) []string {
	var messages []string
	for _, issue := range issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HasCriticalIssues checks if there are any critical (error severity) issues
func HasCriticalIssues(issues []QualityIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "error" {
			return true
		}
	}
	return false
}
