package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const fetchAttempts = 3

// HTTPImageFetcher downloads images over http(s), retrying transient failures
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPImageFetcher creates an HTTP image fetcher. Each attempt is bounded
// by timeout; bodies larger than maxBytes are rejected.
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64) *HTTPImageFetcher {
	transport := &http.Transport{
		// Connection pooling sized for single image downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxBytes: maxBytes,
	}
}

// Fetch downloads the object at imageURL. Network errors and 5xx responses
// are retried with 1s and 2s pauses; 4xx responses fail immediately.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(time.Second),
				backoff.WithMultiplier(2),
				backoff.WithRandomizationFactor(0),
			),
			fetchAttempts-1,
		),
		ctx,
	)

	data, err := backoff.RetryWithData(func() ([]byte, error) {
		return h.attempt(ctx, imageURL)
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", fetchAttempts, err)
	}
	return data, nil
}

func (h *HTTPImageFetcher) attempt(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid URL: %w", err))
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, image/bmp, */*")
	req.Header.Set("User-Agent", "Facescan/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%w: client error: status code %d", ErrObjectNotFound, resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("client error: status code %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("unexpected status code %d", resp.StatusCode))
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if errors.Is(err, ErrObjectTooLarge) {
		return nil, backoff.Permanent(err)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
