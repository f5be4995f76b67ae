package device

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/anime-shed/facescan-go/internal/workflow"
)

// ErrNoHandoff is returned when an answer is staged for a hand-off the
// client never opened.
var ErrNoHandoff = errors.New("no hand-off is waiting for an answer")

type pickReply struct {
	locator string
	err     error
}

type frameReply struct {
	img image.Image
	err error
}

// Inbox stands in for the platform picker and camera of one session. The
// controller's hand-off blocks in Pick or Capture until the client stages an
// answer; an answer staged before the hand-off runs is held for it.
type Inbox struct {
	mu     sync.Mutex
	picks  chan pickReply
	frames chan frameReply
}

func NewInbox() *Inbox {
	return &Inbox{
		picks:  make(chan pickReply, 1),
		frames: make(chan frameReply, 1),
	}
}

// Pick waits for a staged locator or cancel.
func (b *Inbox) Pick(ctx context.Context, filter workflow.ContentFilter) (string, error) {
	select {
	case r := <-b.picks:
		return r.locator, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Capture waits for a staged frame or cancel.
func (b *Inbox) Capture(ctx context.Context) (image.Image, error) {
	select {
	case r := <-b.frames:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StagePick answers the picker with locator.
func (b *Inbox) StagePick(locator string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	replace(b.picks, pickReply{locator: locator})
}

// CancelPick backs out of the picker.
func (b *Inbox) CancelPick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	replace(b.picks, pickReply{err: workflow.ErrCanceled})
}

// StageFrame answers the camera with img. A frame staged earlier and never
// consumed, for example because the permission prompt was denied, is
// replaced.
func (b *Inbox) StageFrame(img image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	replace(b.frames, frameReply{img: img})
}

// FailCapture makes the camera report err, for example an undecodable frame.
func (b *Inbox) FailCapture(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	replace(b.frames, frameReply{err: err})
}

// CancelCapture dismisses the camera.
func (b *Inbox) CancelCapture() {
	b.mu.Lock()
	defer b.mu.Unlock()
	replace(b.frames, frameReply{err: workflow.ErrCanceled})
}

// Discard drops staged answers nobody consumed.
func (b *Inbox) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	drain(b.picks)
	drain(b.frames)
}

// replace swaps the single buffered slot of ch. Callers hold the inbox lock,
// so the send cannot block.
func replace[T any](ch chan T, v T) {
	drain(ch)
	ch <- v
}

func drain[T any](ch chan T) {
	select {
	case <-ch:
	default:
	}
}
