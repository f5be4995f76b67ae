package workflow

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/anime-shed/facescan-go/internal/observer"
	"github.com/anime-shed/facescan-go/internal/render"
	"github.com/anime-shed/facescan-go/internal/vision"
)

// Operation names a detector pass.
type Operation string

const (
	OpFaces    Operation = "face"
	OpText     Operation = "text"
	OpBarcodes Operation = "barcode"
)

// detection is the outcome of one detector job, posted back to the loop.
type detection struct {
	op         Operation
	generation uint64
	annotated  image.Image
	faces      int
	text       string
	expected   string
	codes      []string
	err        error
	elapsed    time.Duration
}

// dispatch runs job on the executor and posts its outcome to the loop. Jobs
// are never cancelled; the detection timeout only bounds a stuck detector.
func (c *Controller) dispatch(res detection, job func(ctx context.Context, res *detection) error) {
	c.publish(observer.WorkflowEvent{EventType: observer.DetectionStarted, Operation: string(res.op)})

	run := func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%s detector panic: %v", res.op, r)
			}
			res.elapsed = time.Since(start)
			c.post(evtDetected{res: res})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DetectionTimeout)
		defer cancel()
		res.err = job(ctx, &res)
	}

	go func() {
		if err := c.deps.Executor.Submit(run); err != nil {
			res.err = fmt.Errorf("schedule %s detection: %w", res.op, err)
			c.post(evtDetected{res: res})
		}
	}()
}

func (c *Controller) dispatchFaces(generation uint64, img image.Image) {
	overlay := c.opts.Overlay
	c.dispatch(detection{op: OpFaces, generation: generation}, func(ctx context.Context, res *detection) error {
		faces, err := c.deps.Faces.DetectFaces(ctx, img)
		if err != nil {
			return err
		}
		res.faces = len(faces)
		res.annotated = overlay.Draw(img, faces)
		return nil
	})
}

func (c *Controller) dispatchText(img image.Image, expected string) {
	c.dispatch(detection{op: OpText, expected: expected}, func(ctx context.Context, res *detection) error {
		text, err := c.deps.Text.DetectText(ctx, img)
		res.text = text
		return err
	})
}

func (c *Controller) dispatchBarcodes(img image.Image) {
	c.dispatch(detection{op: OpBarcodes}, func(ctx context.Context, res *detection) error {
		codes, err := c.deps.Barcodes.DetectBarcodes(ctx, img)
		res.codes = codes
		return err
	})
}

// handleDetected renders a detector outcome. Face results for an image that
// has since been replaced are dropped.
func (c *Controller) handleDetected(res detection) {
	event := observer.WorkflowEvent{
		Operation:      string(res.op),
		ProcessingTime: res.elapsed,
	}

	if res.op == OpFaces && res.generation != c.generation {
		event.EventType = observer.DetectionDiscarded
		event.Metadata = map[string]interface{}{
			"generation": res.generation,
			"current":    c.generation,
		}
		c.log.WithField("generation", res.generation).Debug("Discarding stale face result")
		c.publish(event)
		return
	}

	if res.err != nil {
		event.EventType = observer.DetectionFailed
		event.ErrorMessage = res.err.Error()
		switch res.op {
		case OpFaces:
			c.deps.View.Notify(render.MsgFaceError)
		case OpText:
			c.deps.View.ShowResult(render.MsgTextError)
		case OpBarcodes:
			c.deps.View.ShowResult(render.MsgBarcodeError)
		}
		c.publish(event)
		return
	}

	event.EventType = observer.DetectionCompleted
	event.Success = true
	switch res.op {
	case OpFaces:
		c.displayed = res.annotated
		c.annotated = true
		c.deps.View.ShowImage(res.annotated)
		c.deps.View.ShowResult(render.FaceSummary(res.faces))
		event.Metadata = map[string]interface{}{"faces": res.faces}
	case OpText:
		c.deps.View.ShowResult(render.TextSummary(res.text))
		event.Metadata = map[string]interface{}{"characters": len([]rune(res.text))}
		if res.expected != "" {
			cmp := vision.CompareText(res.expected, res.text)
			if cv, ok := c.deps.View.(ComparisonView); ok {
				cv.ShowComparison(cmp)
			}
			event.Metadata["char_error_rate"] = cmp.CharErrorRate
			event.Metadata["word_error_rate"] = cmp.WordErrorRate
		}
	case OpBarcodes:
		c.deps.View.ShowResult(render.BarcodeSummary(res.codes))
		event.Metadata = map[string]interface{}{"barcodes": len(res.codes)}
	}
	c.publish(event)
}
