package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrUnsupportedScheme is returned when no backend is registered for a locator's scheme
	ErrUnsupportedScheme = errors.New("unsupported locator scheme")

	// ErrObjectTooLarge is returned when an object exceeds the configured byte limit
	ErrObjectTooLarge = errors.New("object exceeds size limit")

	// ErrObjectNotFound is returned when the backend has nothing behind the locator
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectFetcher returns the raw bytes stored behind a locator.
type ObjectFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Router dispatches a locator to the backend registered for its scheme.
// Locators without a scheme are treated as "file".
type Router struct {
	mu       sync.RWMutex
	backends map[string]ObjectFetcher
}

func NewRouter() *Router {
	return &Router{backends: make(map[string]ObjectFetcher)}
}

// Register binds a backend to one or more schemes, replacing earlier bindings.
func (r *Router) Register(backend ObjectFetcher, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.backends[strings.ToLower(s)] = backend
	}
}

// Schemes lists the schemes with a registered backend.
func (r *Router) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	return out
}

// Supports reports whether a backend is registered for the locator's scheme.
func (r *Router) Supports(locator string) bool {
	scheme, err := SchemeOf(locator)
	if err != nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[scheme]
	return ok
}

func (r *Router) Fetch(ctx context.Context, locator string) ([]byte, error) {
	scheme, err := SchemeOf(locator)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	backend, ok := r.backends[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return backend.Fetch(ctx, locator)
}

// SchemeOf returns the lower-cased scheme of a locator, "file" for bare paths.
func SchemeOf(locator string) (string, error) {
	if strings.TrimSpace(locator) == "" {
		return "", fmt.Errorf("empty locator")
	}
	if !strings.Contains(locator, "://") {
		return "file", nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("invalid locator: %w", err)
	}
	return strings.ToLower(u.Scheme), nil
}

// readLimited reads at most max bytes from r and fails when more are available.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w (limit: %d bytes)", ErrObjectTooLarge, max)
	}
	return data, nil
}
