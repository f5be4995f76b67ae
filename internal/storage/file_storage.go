package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStorage serves gallery images from a directory on the local disk.
// Locators are file:///<path> or bare paths, both resolved under root.
type FileStorage struct {
	root     string
	maxBytes int64
}

func NewFileStorage(root string, maxBytes int64) (*FileStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("gallery root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("gallery root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("gallery root %q is not a directory", abs)
	}
	return &FileStorage{root: abs, maxBytes: maxBytes}, nil
}

func (s *FileStorage) Fetch(ctx context.Context, locator string) ([]byte, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	defer f.Close()

	return readLimited(f, s.maxBytes)
}

// resolve maps a locator to a path inside root, rejecting anything that
// escapes it.
func (s *FileStorage) resolve(locator string) (string, error) {
	rel := locator
	if strings.Contains(locator, "://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", fmt.Errorf("invalid file locator: %w", err)
		}
		if !strings.EqualFold(u.Scheme, "file") {
			return "", fmt.Errorf("invalid file locator: unexpected scheme %q", u.Scheme)
		}
		rel = u.Host + u.Path
	}

	cleaned := filepath.Clean("/" + filepath.FromSlash(rel))
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file locator: %q escapes gallery root", locator)
	}
	return full, nil
}
