package vision

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer runs local OCR through libtesseract
type TesseractRecognizer struct {
	opts DetectorOptions
}

func NewTesseractRecognizer(opts DetectorOptions) *TesseractRecognizer {
	return &TesseractRecognizer{opts: opts}
}

// DetectText recognizes the text in img. A gosseract client is not safe for
// concurrent use, so each call gets its own.
func (r *TesseractRecognizer) DetectText(ctx context.Context, img image.Image) (string, error) {
	data, err := encodePNG(img)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.opts.OCRLanguage); err != nil {
		return "", fmt.Errorf("tesseract language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(r.opts.PageSegMode)); err != nil {
		return "", fmt.Errorf("tesseract page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognize: %w", err)
	}
	return text, nil
}
