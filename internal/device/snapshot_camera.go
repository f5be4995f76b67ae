package device

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/repository"
	"github.com/anime-shed/facescan-go/internal/storage"
)

// FrameDecoder turns fetched bytes into an image.
type FrameDecoder interface {
	Decode(data []byte) (image.Image, *repository.ImageMetadata, error)
}

// SnapshotCamera captures by fetching a single still from an IP camera's
// snapshot endpoint.
type SnapshotCamera struct {
	url     string
	fetcher storage.ObjectFetcher
	decoder FrameDecoder
}

func NewSnapshotCamera(url string, fetcher storage.ObjectFetcher, decoder FrameDecoder) *SnapshotCamera {
	return &SnapshotCamera{url: url, fetcher: fetcher, decoder: decoder}
}

func (c *SnapshotCamera) Capture(ctx context.Context) (image.Image, error) {
	start := time.Now()
	data, err := c.fetcher.Fetch(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch: %w", err)
	}
	img, meta, err := c.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot decode: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"format":     meta.Format,
		"width":      meta.Width,
		"height":     meta.Height,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("Snapshot captured")
	return img, nil
}
