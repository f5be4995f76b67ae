package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/observer"
	"github.com/anime-shed/facescan-go/internal/render"
)

// Source tags where the current image came from.
type Source string

const (
	SourceNone    Source = ""
	SourceGallery Source = "gallery"
	SourceCamera  Source = "camera"
)

type handoff int

const (
	handoffNone handoff = iota
	handoffPicker
	handoffPermission
	handoffCamera
)

func (h handoff) String() string {
	switch h {
	case handoffPicker:
		return "picker"
	case handoffPermission:
		return "permission"
	case handoffCamera:
		return "camera"
	default:
		return ""
	}
}

// Deps are the capabilities a controller drives. Executor may be nil, in
// which case every detector job gets its own goroutine.
type Deps struct {
	Picker      Picker
	Gallery     ImageSource
	Camera      Camera
	Permissions PermissionProvider
	Faces       FaceDetector
	Text        TextDetector
	Barcodes    BarcodeDetector
	View        View
	Executor    Executor
}

// Options tune a controller. Zero values fall back to defaults.
type Options struct {
	SessionID        string
	LoadTimeout      time.Duration
	DetectionTimeout time.Duration
	Overlay          *render.Overlay
	Events           observer.Subject
}

// State is a read-only snapshot of the loop-owned workflow state.
type State struct {
	HasImage   bool
	Annotated  bool
	Source     Source
	Locator    string
	Generation uint64
	Permission GateState
	Handoff    string
}

// Controller owns one screen's capture/detect workflow. A single loop
// goroutine holds the current image, its locator and the permission gate;
// public methods hand work to it and are safe from any goroutine.
type Controller struct {
	deps Deps
	opts Options
	log  *logrus.Entry

	events    chan interface{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	// loop-owned
	current    image.Image
	displayed  image.Image
	annotated  bool
	locator    string
	source     Source
	generation uint64
	gate       PermissionGate
	handoff    handoff
}

// events
type (
	evtCall   struct{ fn func() }
	evtPicked struct {
		locator string
		img     image.Image
		err     error
	}
	evtPermissionResult struct{ results []GrantResult }
	evtCaptured         struct {
		img image.Image
		err error
	}
	evtDetected struct{ res detection }
)

// New validates deps and starts the controller loop.
func New(deps Deps, opts Options) (*Controller, error) {
	missing := []string{}
	if deps.Picker == nil {
		missing = append(missing, "picker")
	}
	if deps.Gallery == nil {
		missing = append(missing, "gallery")
	}
	if deps.Camera == nil {
		missing = append(missing, "camera")
	}
	if deps.Permissions == nil {
		missing = append(missing, "permissions")
	}
	if deps.Faces == nil {
		missing = append(missing, "face detector")
	}
	if deps.Text == nil {
		missing = append(missing, "text detector")
	}
	if deps.Barcodes == nil {
		missing = append(missing, "barcode detector")
	}
	if deps.View == nil {
		missing = append(missing, "view")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("workflow: missing dependencies: %v", missing)
	}
	if deps.Executor == nil {
		deps.Executor = goExecutor{}
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 15 * time.Second
	}
	if opts.DetectionTimeout <= 0 {
		opts.DetectionTimeout = 20 * time.Second
	}
	if opts.Overlay == nil {
		opts.Overlay = render.DefaultOverlay()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:    deps,
		opts:    opts,
		log:     logger.WithField("session_id", opts.SessionID),
		events:  make(chan interface{}, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.loop()
	return c, nil
}

func (c *Controller) loop() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			select {
			case <-c.done:
				return
			default:
			}
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				Error("Workflow event handler panicked")
		}
	}()

	switch e := ev.(type) {
	case evtCall:
		e.fn()
	case evtPicked:
		c.handlePicked(e)
	case evtPermissionResult:
		c.handlePermissionResult(e.results)
	case evtCaptured:
		c.handleCaptured(e)
	case evtDetected:
		c.handleDetected(e.res)
	}
}

// post queues an event for the loop. It reports false once the controller is
// closed and never blocks past Close.
func (c *Controller) post(ev interface{}) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// runOnLoop executes fn on the loop goroutine and waits for it.
func (c *Controller) runOnLoop(fn func()) error {
	finished := make(chan struct{})
	if !c.post(evtCall{fn: func() {
		defer close(finished)
		fn()
	}}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.stopped:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Close tears the controller down. Open hand-offs are abandoned, in-flight
// detector results are dropped, and the view is not touched after Close
// returns. Close is idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
	<-c.stopped
}

// Done is closed once the controller has shut down.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// State returns a snapshot of the workflow state.
func (c *Controller) State() (State, error) {
	var st State
	err := c.runOnLoop(func() {
		st = State{
			HasImage:   c.current != nil,
			Annotated:  c.annotated,
			Source:     c.source,
			Locator:    c.locator,
			Generation: c.generation,
			Permission: c.gate.State(),
			Handoff:    c.handoff.String(),
		}
	})
	return st, err
}

// PickFromGallery opens the picker for image content. It returns as soon as
// the picker is open; the pick is applied asynchronously.
func (c *Controller) PickFromGallery() error {
	var err error
	if cerr := c.runOnLoop(func() { err = c.startPick() }); cerr != nil {
		return cerr
	}
	return err
}

func (c *Controller) startPick() error {
	if c.handoff != handoffNone {
		return ErrHandoffActive
	}
	c.handoff = handoffPicker
	go func() {
		locator, err := c.deps.Picker.Pick(c.ctx, ImageContent)
		if err != nil {
			c.post(evtPicked{err: err})
			return
		}
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.LoadTimeout)
		defer cancel()
		img, err := c.deps.Gallery.Load(ctx, locator)
		c.post(evtPicked{locator: locator, img: img, err: err})
	}()
	return nil
}

func (c *Controller) handlePicked(e evtPicked) {
	if c.handoff != handoffPicker {
		return
	}
	c.handoff = handoffNone
	if c.acquisitionFailed(e.err, SourceGallery, e.locator) {
		return
	}
	c.acquire(e.img, e.locator, SourceGallery)
}

// CaptureFromCamera asks for the camera. With permission the camera opens
// immediately; otherwise a permission prompt is issued and the camera opens
// once it is granted. A capture request made while a prompt is pending joins
// that prompt.
func (c *Controller) CaptureFromCamera() error {
	var err error
	if cerr := c.runOnLoop(func() { err = c.startCapture() }); cerr != nil {
		return cerr
	}
	return err
}

func (c *Controller) startCapture() error {
	switch c.handoff {
	case handoffNone:
	case handoffPermission:
		return nil
	default:
		return ErrHandoffActive
	}

	if c.gate.Evaluate(c.deps.Permissions) {
		c.launchCamera()
		return nil
	}

	c.handoff = handoffPermission
	c.publish(observer.WorkflowEvent{EventType: observer.PermissionRequested, Success: true})
	c.deps.Permissions.Request(PermissionCamera, func(results []GrantResult) {
		answer := append([]GrantResult(nil), results...)
		go c.post(evtPermissionResult{results: answer})
	})
	return nil
}

func (c *Controller) handlePermissionResult(results []GrantResult) {
	if c.handoff != handoffPermission {
		return
	}
	c.handoff = handoffNone
	if !c.gate.Resolve(results) {
		c.publish(observer.WorkflowEvent{
			EventType:    observer.PermissionDenied,
			ErrorMessage: ErrPermissionDenied.Error(),
			Metadata:     map[string]interface{}{"results": len(results)},
		})
		return
	}
	c.publish(observer.WorkflowEvent{EventType: observer.PermissionGranted, Success: true})
	c.launchCamera()
}

func (c *Controller) launchCamera() {
	c.handoff = handoffCamera
	go func() {
		img, err := c.deps.Camera.Capture(c.ctx)
		c.post(evtCaptured{img: img, err: err})
	}()
}

func (c *Controller) handleCaptured(e evtCaptured) {
	if c.handoff != handoffCamera {
		return
	}
	c.handoff = handoffNone
	if c.acquisitionFailed(e.err, SourceCamera, "") {
		return
	}
	c.acquire(e.img, "", SourceCamera)
}

// acquisitionFailed reports and absorbs a failed hand-off. Cancels leave no
// trace on the view.
func (c *Controller) acquisitionFailed(err error, source Source, locator string) bool {
	if err == nil {
		return false
	}
	meta := map[string]interface{}{"source": string(source)}
	if locator != "" {
		meta["locator"] = locator
	}
	if errors.Is(err, ErrCanceled) {
		c.publish(observer.WorkflowEvent{EventType: observer.AcquisitionCanceled, Metadata: meta})
		return true
	}
	c.deps.View.Notify(render.MsgImageLoadError)
	c.publish(observer.WorkflowEvent{
		EventType:    observer.AcquisitionFailed,
		ErrorMessage: err.Error(),
		Metadata:     meta,
	})
	return true
}

// acquire installs img as the current image and starts face detection on it.
func (c *Controller) acquire(img image.Image, locator string, source Source) {
	if img == nil {
		c.acquisitionFailed(errors.New("no image returned"), source, locator)
		return
	}
	c.current = img
	c.displayed = img
	c.annotated = false
	c.locator = locator
	c.source = source
	c.generation++

	c.deps.View.ShowImage(img)

	b := img.Bounds()
	meta := map[string]interface{}{
		"source":     string(source),
		"width":      b.Dx(),
		"height":     b.Dy(),
		"generation": c.generation,
	}
	if locator != "" {
		meta["locator"] = locator
	}
	c.publish(observer.WorkflowEvent{EventType: observer.ImageAcquired, Success: true, Metadata: meta})

	c.dispatchFaces(c.generation, img)
}

// DetectText runs text recognition on the current image. expected is
// optional; when set the result is also compared against it.
func (c *Controller) DetectText(expected string) error {
	var err error
	if cerr := c.runOnLoop(func() {
		img, ok := c.requireImage()
		if !ok {
			err = ErrNoImageSelected
			return
		}
		c.dispatchText(img, expected)
	}); cerr != nil {
		return cerr
	}
	return err
}

// DetectBarcodes reads barcodes from the current image. A gallery image is
// re-read from its locator; if that fails the processing error is shown and
// returned without running the detector.
func (c *Controller) DetectBarcodes() error {
	var (
		img     image.Image
		locator string
		err     error
	)
	if cerr := c.runOnLoop(func() {
		var ok bool
		if img, ok = c.requireImage(); !ok {
			err = ErrNoImageSelected
			return
		}
		locator = c.locator
	}); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}

	src, err := c.barcodeSource(img, locator)
	if err != nil {
		c.publish(observer.WorkflowEvent{
			EventType:    observer.DetectionFailed,
			Operation:    string(OpBarcodes),
			ErrorMessage: err.Error(),
			Metadata:     map[string]interface{}{"locator": locator},
		})
		if cerr := c.runOnLoop(func() { c.deps.View.ShowResult(render.MsgProcessingError) }); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %w", ErrImageProcessing, err)
	}

	c.dispatchBarcodes(src)
	return nil
}

// barcodeSource picks the detector input: the locator's image when there is
// one, the held image otherwise.
func (c *Controller) barcodeSource(img image.Image, locator string) (image.Image, error) {
	if locator == "" {
		return img, nil
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.LoadTimeout)
	defer cancel()
	src, err := c.deps.Gallery.Load(ctx, locator)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("no image returned")
	}
	return src, nil
}

// requireImage returns the current image or shows the select-image notice.
func (c *Controller) requireImage() (image.Image, bool) {
	if c.current == nil {
		c.deps.View.Notify(render.MsgSelectImage)
		return nil, false
	}
	return c.current, true
}

func (c *Controller) publish(ev observer.WorkflowEvent) {
	if c.opts.Events == nil {
		return
	}
	ev.SessionID = c.opts.SessionID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	c.opts.Events.NotifyObservers(c.ctx, ev)
}

type goExecutor struct{}

func (goExecutor) Submit(job func()) error {
	go job()
	return nil
}
