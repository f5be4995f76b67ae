package repository

import (
	"context"
	"image"
)

// ImageRepository defines the interface for image data access operations
type ImageRepository interface {
	// Load fetches and decodes the image behind a locator
	Load(ctx context.Context, locator string) (image.Image, error)

	// Decode decodes raw image bytes, such as a camera frame
	Decode(data []byte) (image.Image, *ImageMetadata, error)

	// ValidateLocator checks that a locator can be routed to a backend
	ValidateLocator(locator string) error
}

// ImageMetadata describes a decoded image
type ImageMetadata struct {
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
}
