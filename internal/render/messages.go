package render

import (
	"fmt"
	"strings"
)

// User-facing texts. Result messages replace the result area; notices are
// transient.
const (
	MsgSelectImage     = "Select an image"
	MsgImageLoadError  = "Could not load image"
	MsgFaceError       = "Face detection error"
	MsgNoText          = "No text detected"
	MsgTextError       = "Text recognition error"
	MsgNoBarcode       = "No barcode detected"
	MsgBarcodeError    = "Barcode reading error"
	MsgProcessingError = "Image processing error"
)

// FaceSummary formats the face count line
func FaceSummary(n int) string {
	return fmt.Sprintf("Faces detected: %d", n)
}

// TextSummary returns the recognized text verbatim, or the empty-result message
// when the detector returned nothing at all
func TextSummary(text string) string {
	if text == "" {
		return MsgNoText
	}
	return text
}

// BarcodeSummary lists one "Code: <raw>" line per barcode in detection order
func BarcodeSummary(codes []string) string {
	if len(codes) == 0 {
		return MsgNoBarcode
	}
	var b strings.Builder
	for _, code := range codes {
		b.WriteString("Code: ")
		b.WriteString(code)
		b.WriteString("\n")
	}
	return b.String()
}
