package vision

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// PigoDetector finds frontal faces with a pigo cascade
type PigoDetector struct {
	classifier *pigo.Pigo
	opts       DetectorOptions
}

// NewPigoDetector loads the facefinder cascade from cascadePath
func NewPigoDetector(cascadePath string, opts DetectorOptions) (*PigoDetector, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	return NewPigoDetectorFromCascade(cascade, opts)
}

// NewPigoDetectorFromCascade builds a detector from raw cascade bytes.
// pigo indexes the packet without bounds checks, so a truncated cascade
// surfaces as an error rather than a panic.
func NewPigoDetectorFromCascade(cascade []byte, opts DetectorOptions) (det *PigoDetector, err error) {
	defer func() {
		if r := recover(); r != nil {
			det, err = nil, fmt.Errorf("unpack face cascade: corrupt cascade: %v", r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier, opts: opts}, nil
}

// DetectFaces runs the cascade over a grayscale copy of img. The classifier is
// read-only after unpacking, so concurrent calls are safe.
func (d *PigoDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	src := pigo.ImgToNRGBA(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	maxSize := d.opts.FaceMaxSize
	if side := min(cols, rows); maxSize > side {
		maxSize = side
	}

	params := pigo.CascadeParams{
		MinSize:     d.opts.FaceMinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.opts.FaceShiftFactor,
		ScaleFactor: d.opts.FaceScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.opts.FaceIoU)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	faces := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.opts.FaceMinQuality {
			continue
		}
		half := det.Scale / 2
		box := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half).
			Add(bounds.Min).
			Intersect(bounds)
		if !box.Empty() {
			faces = append(faces, box)
		}
	}
	return faces, nil
}
