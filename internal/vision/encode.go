package vision

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// encodePNG serializes img for backends that take encoded bytes
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
