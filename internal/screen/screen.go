package screen

import (
	"bytes"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/anime-shed/facescan-go/internal/vision"
)

// ErrNoImage is returned when the screen has nothing to render.
var ErrNoImage = errors.New("no image displayed")

// Snapshot is what a client sees when it polls the screen.
type Snapshot struct {
	HasImage   bool                   `json:"has_image"`
	Image      *vision.ImageInfo      `json:"image,omitempty"`
	Result     string                 `json:"result"`
	Notice     string                 `json:"notice,omitempty"`
	NoticeAt   *time.Time             `json:"notice_at,omitempty"`
	Comparison *vision.TextComparison `json:"comparison,omitempty"`
	Version    uint64                 `json:"version"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Screen is the display surface of one session. The controller writes to it
// from its loop; HTTP handlers read it concurrently.
type Screen struct {
	mu         sync.RWMutex
	image      image.Image
	imageSeq   uint64
	info       *vision.ImageInfo
	result     string
	notice     string
	noticeAt   time.Time
	noticeTTL  time.Duration
	comparison *vision.TextComparison
	version    uint64
	updatedAt  time.Time
}

// New returns an empty screen. Notices are reported for noticeTTL after they
// are raised; a zero TTL keeps them until the next one.
func New(noticeTTL time.Duration) *Screen {
	return &Screen{noticeTTL: noticeTTL, updatedAt: time.Now()}
}

func (s *Screen) ShowImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
	s.imageSeq++
	s.info = nil
	s.touch()
}

func (s *Screen) ShowResult(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = text
	s.comparison = nil
	s.touch()
}

func (s *Screen) Notify(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = message
	s.noticeAt = time.Now()
	s.touch()
}

// ShowComparison attaches an expected-text comparison to the current result.
func (s *Screen) ShowComparison(cmp vision.TextComparison) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparison = &cmp
	s.touch()
}

func (s *Screen) touch() {
	s.version++
	s.updatedAt = time.Now()
}

// Snapshot returns the current screen contents. Image statistics are computed
// on first request, outside the lock, and cached until the image changes.
func (s *Screen) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		HasImage:  s.image != nil,
		Result:    s.result,
		Version:   s.version,
		UpdatedAt: s.updatedAt,
	}
	img, seq, cached := s.image, s.imageSeq, s.info
	if s.notice != "" && (s.noticeTTL <= 0 || time.Since(s.noticeAt) < s.noticeTTL) {
		at := s.noticeAt
		snap.Notice = s.notice
		snap.NoticeAt = &at
	}
	if s.comparison != nil {
		cmp := *s.comparison
		snap.Comparison = &cmp
	}
	s.mu.RUnlock()

	if img == nil {
		return snap
	}
	if cached == nil {
		info := vision.Describe(img)
		cached = &info
		s.mu.Lock()
		if s.imageSeq == seq && s.info == nil {
			s.info = cached
		}
		s.mu.Unlock()
	}
	info := *cached
	snap.Image = &info
	return snap
}

// PNG encodes the displayed image.
func (s *Screen) PNG() ([]byte, error) {
	s.mu.RLock()
	img := s.image
	s.mu.RUnlock()
	if img == nil {
		return nil, ErrNoImage
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
