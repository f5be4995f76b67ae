package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/storage"
)

// Fetcher is the storage capability the repository needs.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
	Supports(locator string) bool
}

// StorageImageRepository implements ImageRepository on top of the storage backends
type StorageImageRepository struct {
	fetcher  Fetcher
	maxBytes int64
}

// NewStorageImageRepository creates a repository reading through fetcher
func NewStorageImageRepository(fetcher Fetcher, maxBytes int64) *StorageImageRepository {
	return &StorageImageRepository{
		fetcher:  fetcher,
		maxBytes: maxBytes,
	}
}

// Load fetches the bytes behind locator and decodes them, honouring EXIF orientation
func (r *StorageImageRepository) Load(ctx context.Context, locator string) (image.Image, error) {
	if err := r.ValidateLocator(locator); err != nil {
		return nil, err
	}

	data, err := r.fetcher.Fetch(ctx, locator)
	if err != nil {
		return nil, mapStorageError(err)
	}

	img, meta, err := r.Decode(data)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"locator":      locator,
		"content_type": meta.ContentType,
		"width":        meta.Width,
		"height":       meta.Height,
	}).Debug("Image loaded")
	return img, nil
}

// Decode sniffs and decodes raw image bytes
func (r *StorageImageRepository) Decode(data []byte) (image.Image, *ImageMetadata, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty payload", ErrUnsupportedFormat)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, nil, fmt.Errorf("%w: %d bytes (limit: %d)", ErrImageTooLarge, len(data), r.maxBytes)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, nil, fmt.Errorf("%w: detected %s", ErrUnsupportedFormat, mime.String())
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, mime.String(), err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	bounds := img.Bounds()
	return img, &ImageMetadata{
		ContentType:   mime.String(),
		ContentLength: int64(len(data)),
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Format:        format,
	}, nil
}

// ValidateLocator validates that a backend can serve the locator
func (r *StorageImageRepository) ValidateLocator(locator string) error {
	if strings.TrimSpace(locator) == "" {
		return fmt.Errorf("%w: empty locator", ErrInvalidLocator)
	}
	if !r.fetcher.Supports(locator) {
		return fmt.Errorf("%w: no backend for %q", ErrInvalidLocator, locator)
	}
	return nil
}

func mapStorageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return fmt.Errorf("%w: %w", ErrImageNotFound, err)
	case errors.Is(err, storage.ErrObjectTooLarge):
		return fmt.Errorf("%w: %w", ErrImageTooLarge, err)
	case errors.Is(err, storage.ErrUnsupportedScheme):
		return fmt.Errorf("%w: %w", ErrInvalidLocator, err)
	default:
		return err
	}
}
