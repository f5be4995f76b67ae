package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// GCSStorage reads gallery images from Google Cloud Storage using
// application default credentials. Locators have the form gs://<bucket>/<object>.
type GCSStorage struct {
	client   *gcs.Client
	maxBytes int64
}

func NewGCSStorage(ctx context.Context, maxBytes int64) (*GCSStorage, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStorage{client: client, maxBytes: maxBytes}, nil
}

func (s *GCSStorage) Fetch(ctx context.Context, locator string) ([]byte, error) {
	bucket, object, err := parseGCSLocator(locator)
	if err != nil {
		return nil, err
	}

	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, object)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read failed: %w", err)
	}
	defer reader.Close()

	return readLimited(reader, s.maxBytes)
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func parseGCSLocator(locator string) (string, string, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("invalid gcs locator: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "gs") {
		return "", "", fmt.Errorf("invalid gcs locator: unexpected scheme %q", u.Scheme)
	}
	object := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || object == "" {
		return "", "", fmt.Errorf("invalid gcs locator: want gs://<bucket>/<object>, got %q", locator)
	}
	return u.Host, object, nil
}
