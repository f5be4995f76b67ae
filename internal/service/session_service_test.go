package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/anime-shed/facescan-go/internal/device"
	apperrors "github.com/anime-shed/facescan-go/internal/errors"
	"github.com/anime-shed/facescan-go/internal/observer"
	"github.com/anime-shed/facescan-go/internal/repository"
	"github.com/anime-shed/facescan-go/internal/storage"
	"github.com/anime-shed/facescan-go/internal/workflow"
)

type stubFaces struct{ n int }

func (f stubFaces) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	boxes := make([]image.Rectangle, f.n)
	for i := range boxes {
		boxes[i] = image.Rect(0, 0, 2, 2)
	}
	return boxes, nil
}

type stubText string

func (t stubText) DetectText(ctx context.Context, img image.Image) (string, error) {
	return string(t), nil
}

type stubBarcodes []string

func (b stubBarcodes) DetectBarcodes(ctx context.Context, img image.Image) ([]string, error) {
	return b, nil
}

type stubCamera struct{}

func (stubCamera) Capture(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T, opts Options, camera workflow.Camera) SessionService {
	t.Helper()
	return startService(t, testDeps(t, camera), opts)
}

func testDeps(t *testing.T, camera workflow.Camera) Deps {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "cat.png"), pngBytes(t, 8, 8), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err := storage.NewFileStorage(root, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	router := storage.NewRouter()
	router.Register(files, "file")

	return Deps{
		Repository: repository.NewStorageImageRepository(router, 1<<20),
		Detectors: Detectors{
			Faces:    stubFaces{n: 1},
			Text:     stubText("HELLO"),
			Barcodes: stubBarcodes{"4006381333931"},
		},
		Camera: camera,
	}
}

func startService(t *testing.T, deps Deps, opts Options) SessionService {
	t.Helper()
	svc, err := NewSessionService(deps, opts)
	if err != nil {
		t.Fatalf("NewSessionService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func waitForView(t *testing.T, s *Session, what string, cond func(*View) bool) *View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v, err := s.View()
		if err != nil {
			t.Fatalf("View: %v", err)
		}
		if cond(v) {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

func TestSessionService_Lifecycle(t *testing.T) {
	svc := newTestService(t, Options{}, nil)

	s, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" || svc.Count() != 1 {
		t.Fatalf("Expected one session with an id, got %q / %d", s.ID, svc.Count())
	}

	got, err := svc.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get: %v", err)
	}

	if err := svc.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case <-s.controller.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected Delete to close the controller")
	}

	if _, err := svc.Get(s.ID); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
	if err := svc.Delete(s.ID); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found on second delete, got %v", err)
	}
}

func TestSessionService_Expiry(t *testing.T) {
	svc := newTestService(t, Options{SessionTTL: 50 * time.Millisecond}, nil)
	s, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := svc.Get(s.ID); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected expired session to be gone, got %v", err)
	}
}

func TestSessionService_CapacityEvictsOldest(t *testing.T) {
	svc := newTestService(t, Options{MaxSessions: 1}, nil)
	first, _ := svc.Create(context.Background())
	second, _ := svc.Create(context.Background())

	select {
	case <-first.controller.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected the oldest session to be closed")
	}
	if _, err := svc.Get(second.ID); err != nil {
		t.Errorf("Expected newest session to survive, got %v", err)
	}
	if _, err := first.View(); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected closed session error, got %v", err)
	}
}

func TestSessionService_EvictedSessionIsNotRevived(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	s, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// An eviction that lands between Get and the TTL refresh leaves the
	// closed session in the store.
	impl := svc.(*sessionService)
	impl.onEvict(s.ID, s)

	if _, err := svc.Get(s.ID); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected evicted session to be gone, got %v", err)
	}
	if svc.Count() != 0 {
		t.Errorf("Expected evicted session to be dropped, got %d sessions", svc.Count())
	}
	select {
	case <-s.controller.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected the evicted session to be closed")
	}

	// A second eviction callback for the same session is a no-op.
	impl.onEvict(s.ID, s)
}

// blockingEvents holds the first ImageAcquired event until released,
// ignoring cancellation.
type blockingEvents struct {
	once    sync.Once
	blocked chan struct{}
	release chan struct{}
}

func newBlockingEvents() *blockingEvents {
	return &blockingEvents{blocked: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingEvents) Subscribe(observer.Observer)   {}
func (b *blockingEvents) Unsubscribe(observer.Observer) {}

func (b *blockingEvents) NotifyObservers(ctx context.Context, event observer.WorkflowEvent) {
	if event.EventType != observer.ImageAcquired {
		return
	}
	first := false
	b.once.Do(func() { first = true })
	if !first {
		return
	}
	close(b.blocked)
	<-b.release
}

func TestSessionService_EvictionDoesNotBlockStore(t *testing.T) {
	events := newBlockingEvents()
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(events.release) }) }
	deps := testDeps(t, nil)
	deps.Events = events
	svc := startService(t, deps, Options{MaxSessions: 1})
	t.Cleanup(release)

	first, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := first.PickFromGallery("cat.png"); err != nil {
		t.Fatalf("PickFromGallery: %v", err)
	}
	select {
	case <-events.blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the first session's loop to be busy")
	}

	created := make(chan *Session, 1)
	go func() {
		s, err := svc.Create(context.Background())
		if err != nil {
			t.Errorf("Create: %v", err)
		}
		created <- s
	}()

	var second *Session
	select {
	case second = <-created:
	case <-time.After(time.Second):
		release()
		t.Fatal("Expected Create to return while the evicted session is still busy")
	}
	if second == nil {
		return
	}

	got := make(chan error, 1)
	go func() {
		_, err := svc.Get(second.ID)
		got <- err
	}()
	select {
	case err := <-got:
		if err != nil {
			t.Errorf("Get: %v", err)
		}
	case <-time.After(time.Second):
		release()
		t.Fatal("Expected Get to return while the evicted session is still busy")
	}

	release()
	select {
	case <-first.controller.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected the evicted session to close once released")
	}
}

func TestSession_GalleryFlow(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	s, _ := svc.Create(context.Background())

	if err := s.DetectText(""); !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict without an image, got %v", err)
	}

	if err := s.PickFromGallery("cat.png"); err != nil {
		t.Fatalf("PickFromGallery: %v", err)
	}
	v := waitForView(t, s, "face label", func(v *View) bool { return v.Screen.Result == "Faces detected: 1" })
	if v.Source != "gallery" || v.Locator != "cat.png" || !v.Annotated || v.Screen.Image == nil {
		t.Errorf("Unexpected view %+v", v)
	}

	if err := s.DetectBarcodes(); err != nil {
		t.Fatalf("DetectBarcodes: %v", err)
	}
	waitForView(t, s, "barcode result", func(v *View) bool { return v.Screen.Result == "Code: 4006381333931\n" })

	if err := s.DetectText("HELLO"); err != nil {
		t.Fatalf("DetectText: %v", err)
	}
	v = waitForView(t, s, "text result", func(v *View) bool { return v.Screen.Comparison != nil })
	if v.Screen.Result != "HELLO" || !v.Screen.Comparison.ExactMatch {
		t.Errorf("Unexpected text result %+v", v.Screen)
	}

	lowRes := false
	for _, issue := range v.Quality {
		lowRes = lowRes || issue.Type == "low_resolution"
	}
	if !lowRes {
		t.Errorf("Expected a low_resolution issue for an 8x8 image, got %+v", v.Quality)
	}

	data, err := s.PNG()
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("Expected a valid PNG, got %v", err)
	}
}

func TestSession_GalleryErrors(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	s, _ := svc.Create(context.Background())

	if _, err := s.PNG(); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found before any image, got %v", err)
	}
	if err := s.PickFromGallery("gs://bucket/cat.png"); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for unrouted scheme, got %v", err)
	}

	if err := s.PickFromGallery("missing.png"); err != nil {
		t.Fatalf("PickFromGallery: %v", err)
	}
	v := waitForView(t, s, "load notice", func(v *View) bool { return v.Screen.Notice != "" })
	if v.Screen.Notice != "Could not load image" || v.Screen.HasImage {
		t.Errorf("Unexpected view after failed load %+v", v.Screen)
	}

	if err := s.CancelGallery(); err != nil {
		t.Fatalf("CancelGallery: %v", err)
	}
	waitForView(t, s, "picker to close", func(v *View) bool { return v.Handoff == "" })
}

func TestSession_CameraPermissionFlow(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	s, _ := svc.Create(context.Background())

	if err := s.CaptureFromCamera(nil); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error without a frame, got %v", err)
	}

	if err := s.CaptureFromCamera(pngBytes(t, 5, 5)); err != nil {
		t.Fatalf("CaptureFromCamera: %v", err)
	}
	v := waitForView(t, s, "prompt", func(v *View) bool { return v.Handoff == "permission" })
	if v.Screen.HasImage {
		t.Fatal("Camera must wait for the permission answer")
	}

	if err := s.PickFromGallery("cat.png"); !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict while the prompt is open, got %v", err)
	}

	if err := s.AnswerCameraPermission([]string{"granted"}); err != nil {
		t.Fatalf("AnswerCameraPermission: %v", err)
	}
	v = waitForView(t, s, "captured frame", func(v *View) bool { return v.Screen.Result == "Faces detected: 1" })
	if v.Source != "camera" || v.Locator != "" || v.Camera != "granted" {
		t.Errorf("Unexpected view %+v", v)
	}

	if err := s.AnswerCameraPermission([]string{"granted"}); !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict for an unsolicited answer, got %v", err)
	}

	if err := s.CaptureFromCamera([]byte("not an image")); err != nil {
		t.Fatalf("CaptureFromCamera: %v", err)
	}
	v = waitForView(t, s, "decode notice", func(v *View) bool { return v.Screen.Notice != "" })
	if v.Screen.Notice != "Could not load image" {
		t.Errorf("Expected load notice, got %q", v.Screen.Notice)
	}
}

func TestSession_CancelCamera(t *testing.T) {
	svc := newTestService(t, Options{}, nil)
	s, _ := svc.Create(context.Background())

	if err := s.CaptureFromCamera(pngBytes(t, 5, 5)); err != nil {
		t.Fatalf("CaptureFromCamera: %v", err)
	}
	waitForView(t, s, "prompt", func(v *View) bool { return v.Handoff == "permission" })

	if err := s.CancelCamera(); err != nil {
		t.Fatalf("CancelCamera: %v", err)
	}
	v := waitForView(t, s, "denial", func(v *View) bool { return v.Camera == "denied" })
	if v.Handoff != "" || v.Screen.HasImage {
		t.Errorf("Expected dismissed prompt to leave no image, got %+v", v)
	}
}

func TestSession_PreGrantedCamera(t *testing.T) {
	svc := newTestService(t, Options{CameraGranted: true}, nil)
	s, _ := svc.Create(context.Background())

	if err := s.CancelCamera(); err != nil {
		t.Fatalf("CancelCamera: %v", err)
	}
	waitForView(t, s, "camera to close", func(v *View) bool { return v.Handoff == "" })

	if err := s.CaptureFromCamera(pngBytes(t, 6, 6)); err != nil {
		t.Fatalf("CaptureFromCamera: %v", err)
	}
	v := waitForView(t, s, "frame", func(v *View) bool { return v.Screen.Result == "Faces detected: 1" })
	if v.Screen.Image.Width != 6 {
		t.Errorf("Expected the staged frame, got width %d", v.Screen.Image.Width)
	}
}

func TestSession_SnapshotCamera(t *testing.T) {
	svc := newTestService(t, Options{CameraGranted: true}, stubCamera{})
	s, _ := svc.Create(context.Background())

	if err := s.CaptureFromCamera(pngBytes(t, 2, 2)); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for a client frame, got %v", err)
	}
	if err := s.CaptureFromCamera(nil); err != nil {
		t.Fatalf("CaptureFromCamera: %v", err)
	}
	v := waitForView(t, s, "snapshot", func(v *View) bool { return v.Screen.HasImage })
	if v.Screen.Image.Width != 4 {
		t.Errorf("Expected snapshot frame, got width %d", v.Screen.Image.Width)
	}
	if err := s.CancelCamera(); !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict with nothing to cancel, got %v", err)
	}
}

func TestNewSessionService_RequiresDeps(t *testing.T) {
	if _, err := NewSessionService(Deps{}, Options{}); err == nil {
		t.Error("Expected error without repository and detectors")
	}
}

func TestMapWorkflowError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ErrorType
	}{
		{"No image", workflow.ErrNoImageSelected, apperrors.ErrorTypeConflict},
		{"Handoff", fmt.Errorf("%w: picker", workflow.ErrHandoffActive), apperrors.ErrorTypeConflict},
		{"Nothing pending", device.ErrNoHandoff, apperrors.ErrorTypeConflict},
		{"Locator source", fmt.Errorf("%w: %w", workflow.ErrImageProcessing, context.DeadlineExceeded), apperrors.ErrorTypeProcessing},
		{"Closed", workflow.ErrClosed, apperrors.ErrorTypeNotFound},
		{"Invalid locator", repository.ErrInvalidLocator, apperrors.ErrorTypeValidation},
		{"Deadline", context.DeadlineExceeded, apperrors.ErrorTypeTimeout},
		{"Other", errors.New("boom"), apperrors.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mapWorkflowError(tt.err); !apperrors.IsType(err, tt.want) {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
		})
	}

	if mapWorkflowError(nil) != nil {
		t.Error("Expected nil for nil")
	}
}
