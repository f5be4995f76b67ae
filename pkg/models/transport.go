package models

import "time"

// CreateSessionResponse is returned when a screen session is opened
type CreateSessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// GalleryRequest answers the gallery picker with a locator, or backs out
type GalleryRequest struct {
	Locator string `json:"locator,omitempty"`
	Cancel  bool   `json:"cancel,omitempty"`
}

// PermissionRequest carries the user's answer to a permission prompt.
// An empty result list means the prompt was dismissed.
type PermissionRequest struct {
	Results []string `json:"results"`
}

// OCRRequest triggers text recognition on the held image
type OCRRequest struct {
	ExpectedText string `json:"expected_text,omitempty"`
}

// AcceptedResponse acknowledges an asynchronous operation. Results appear on
// the session's screen.
type AcceptedResponse struct {
	SessionID string `json:"session_id"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MetricsResponse reports workflow counters and worker pool load
type MetricsResponse struct {
	Sessions int                    `json:"sessions"`
	Workflow map[string]interface{} `json:"workflow"`
	Pool     interface{}            `json:"pool,omitempty"`
}
