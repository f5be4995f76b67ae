package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// Overlay draws face boxes onto a copy of an image
type Overlay struct {
	Color       color.Color
	StrokeWidth float64
}

// DefaultOverlay strokes 5px red boxes
func DefaultOverlay() *Overlay {
	return &Overlay{
		Color:       color.RGBA{R: 255, A: 255},
		StrokeWidth: 5,
	}
}

// NewOverlay parses a hex colour such as "#ff0000"
func NewOverlay(hex string, strokeWidth float64) (*Overlay, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, fmt.Errorf("invalid box colour %q: %w", hex, err)
	}
	if strokeWidth <= 0 {
		return nil, fmt.Errorf("invalid stroke width %v", strokeWidth)
	}
	return &Overlay{Color: c, StrokeWidth: strokeWidth}, nil
}

// Draw returns a new image with one stroked rectangle per box. The source is
// never modified. Boxes are in src coordinates; the result has a zero origin.
func (o *Overlay) Draw(src image.Image, boxes []image.Rectangle) image.Image {
	origin := src.Bounds().Min
	base := src
	if origin != (image.Point{}) {
		rgba := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, origin, draw.Src)
		base = rgba
	}

	dc := gg.NewContextForImage(base)
	if len(boxes) == 0 {
		return dc.Image()
	}

	dc.SetColor(o.Color)
	dc.SetLineWidth(o.StrokeWidth)
	for _, box := range boxes {
		r := box.Sub(origin)
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()
	}
	return dc.Image()
}
