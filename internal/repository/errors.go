package repository

import "errors"

var (
	// ErrInvalidLocator indicates a locator the repository cannot route
	ErrInvalidLocator = errors.New("invalid image locator")

	// ErrImageNotFound indicates nothing exists behind the locator
	ErrImageNotFound = errors.New("image not found")

	// ErrUnsupportedFormat indicates the bytes are not a decodable image
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge indicates the image exceeds the configured byte limit
	ErrImageTooLarge = errors.New("image too large")
)
