package vision

import (
	"context"
	"image"
)

// FaceDetector locates faces and returns their bounding boxes in image coordinates
type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// TextRecognizer extracts the full recognized text of an image
type TextRecognizer interface {
	DetectText(ctx context.Context, img image.Image) (string, error)
}

// BarcodeReader returns the raw value of every barcode found, in detection order
type BarcodeReader interface {
	DetectBarcodes(ctx context.Context, img image.Image) ([]string, error)
}
