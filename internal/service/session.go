package service

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anime-shed/facescan-go/internal/device"
	apperrors "github.com/anime-shed/facescan-go/internal/errors"
	"github.com/anime-shed/facescan-go/internal/repository"
	"github.com/anime-shed/facescan-go/internal/screen"
	"github.com/anime-shed/facescan-go/internal/workflow"
	"github.com/anime-shed/facescan-go/pkg/validation"
)

type frameDecoder interface {
	Decode(data []byte) (image.Image, *repository.ImageMetadata, error)
}

type locatorValidator interface {
	ValidateLocator(locator string) error
}

// Session is one hosted screen: a controller, its view and the stand-ins for
// the platform picker, camera and permission prompt.
type Session struct {
	ID        string
	CreatedAt time.Time

	// mu serializes hand-off requests
	mu             sync.Mutex
	controller     *workflow.Controller
	screen         *screen.Screen
	inbox          *device.Inbox
	permissions    *device.PermissionStore
	decoder        frameDecoder
	gallery        locatorValidator
	quality        *validation.QualityValidator
	snapshotCamera bool

	// evicted is set once the store has dropped the session
	evicted atomic.Bool
}

// View combines the workflow state with what the screen shows
type View struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	Source    string          `json:"source,omitempty"`
	Locator   string          `json:"locator,omitempty"`
	Annotated bool            `json:"annotated"`
	Handoff   string          `json:"handoff,omitempty"`
	Camera    string          `json:"camera_permission"`
	Screen    screen.Snapshot `json:"screen"`
	// Quality lists advisory issues with the displayed image
	Quality []validation.QualityIssue `json:"quality,omitempty"`
}

// PickFromGallery opens the picker and answers it with locator.
func (s *Session) PickFromGallery(locator string) error {
	if err := s.gallery.ValidateLocator(locator); err != nil {
		return mapWorkflowError(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdle(); err != nil {
		return err
	}
	s.inbox.StagePick(locator)
	return mapWorkflowError(s.controller.PickFromGallery())
}

// CancelGallery opens the picker and backs out of it.
func (s *Session) CancelGallery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdle(); err != nil {
		return err
	}
	s.inbox.CancelPick()
	return mapWorkflowError(s.controller.PickFromGallery())
}

// CaptureFromCamera asks for the camera and hands it frame. With a snapshot
// camera the frame comes from the camera itself and frame must be empty.
// A frame that cannot be decoded reaches the controller as a failed capture.
// While the permission prompt is pending the latest frame waits for the
// grant.
func (s *Session) CaptureFromCamera(frame []byte) error {
	if s.snapshotCamera && len(frame) > 0 {
		return apperrors.NewValidationError("frames come from the snapshot camera", nil)
	}
	if !s.snapshotCamera && len(frame) == 0 {
		return apperrors.NewValidationError("camera frame is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdle(handoffPermission); err != nil {
		return err
	}
	if !s.snapshotCamera {
		if img, _, err := s.decoder.Decode(frame); err != nil {
			s.inbox.FailCapture(fmt.Errorf("camera frame: %w", err))
		} else {
			s.inbox.StageFrame(img)
		}
	}
	return mapWorkflowError(s.controller.CaptureFromCamera())
}

// CancelCamera dismisses a pending permission prompt, or opens the camera and
// backs out of it.
func (s *Session) CancelCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permissions.Pending(workflow.PermissionCamera) {
		return mapWorkflowError(s.permissions.Answer(workflow.PermissionCamera, nil))
	}
	if s.snapshotCamera {
		return mapWorkflowError(device.ErrNoHandoff)
	}
	if err := s.requireIdle(); err != nil {
		return err
	}

	s.inbox.CancelCapture()
	if err := s.controller.CaptureFromCamera(); err != nil {
		return mapWorkflowError(err)
	}
	if s.permissions.Pending(workflow.PermissionCamera) {
		return mapWorkflowError(s.permissions.Answer(workflow.PermissionCamera, nil))
	}
	return nil
}

// AnswerCameraPermission resolves the pending camera prompt.
func (s *Session) AnswerCameraPermission(results []string) error {
	answer := make([]workflow.GrantResult, len(results))
	for i, r := range results {
		answer[i] = workflow.GrantResult(r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return mapWorkflowError(s.permissions.Answer(workflow.PermissionCamera, answer))
}

const handoffPermission = "permission"

// requireIdle fails unless no hand-off is open, or only one of allowed.
// Answers are staged only after this check so an open picker or camera never
// reads an answer meant for a later hand-off.
func (s *Session) requireIdle(allowed ...string) error {
	st, err := s.controller.State()
	if err != nil {
		return mapWorkflowError(err)
	}
	if st.Handoff == "" {
		return nil
	}
	for _, a := range allowed {
		if st.Handoff == a {
			return nil
		}
	}
	return mapWorkflowError(fmt.Errorf("%w: %s", workflow.ErrHandoffActive, st.Handoff))
}

// DetectText queues text recognition on the held image.
func (s *Session) DetectText(expected string) error {
	return mapWorkflowError(s.controller.DetectText(expected))
}

// DetectBarcodes queues barcode reading on the held image.
func (s *Session) DetectBarcodes() error {
	return mapWorkflowError(s.controller.DetectBarcodes())
}

// View returns the session's state and screen.
func (s *Session) View() (*View, error) {
	st, err := s.controller.State()
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	view := &View{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Source:    string(st.Source),
		Locator:   st.Locator,
		Annotated: st.Annotated,
		Handoff:   st.Handoff,
		Camera:    st.Permission.String(),
		Screen:    s.screen.Snapshot(),
	}
	if view.Screen.Image != nil && s.quality != nil {
		view.Quality = s.quality.Assess(*view.Screen.Image)
	}
	return view, nil
}

// PNG encodes the displayed image.
func (s *Session) PNG() ([]byte, error) {
	data, err := s.screen.PNG()
	if err == screen.ErrNoImage {
		return nil, apperrors.NewNotFoundError("no image displayed", err)
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode image", err)
	}
	return data, nil
}

func (s *Session) close() {
	s.controller.Close()
	s.inbox.Discard()
}
