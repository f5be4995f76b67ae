package vision

import (
	"context"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
)

// ZXingReader decodes QR, Data Matrix, Aztec and the common 1D symbologies
type ZXingReader struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewZXingReader() *ZXingReader {
	return &ZXingReader{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// singleReaders builds fresh readers per call; gozxing readers keep decode state.
func (z *ZXingReader) singleReaders() []gozxing.Reader {
	return []gozxing.Reader{
		datamatrix.NewDataMatrixReader(),
		aztec.NewAztecReader(),
		oned.NewMultiFormatUPCEANReader(z.hints),
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewCode93Reader(),
		oned.NewITFReader(),
		oned.NewCodaBarReader(),
	}
}

// DetectBarcodes returns the raw value of every barcode found. Finding
// nothing is not an error; only an image the decoders cannot consume is.
func (z *ZXingReader) DetectBarcodes(ctx context.Context, img image.Image) (codes []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			codes, err = nil, fmt.Errorf("barcode decoder panic: %v", r)
		}
	}()

	if img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("barcode bitmap: %w", err)
	}

	codes = []string{}
	seen := make(map[string]bool)
	add := func(res *gozxing.Result) {
		if res == nil {
			return
		}
		key := res.GetBarcodeFormat().String() + "\x00" + res.GetText()
		if seen[key] {
			return
		}
		seen[key] = true
		codes = append(codes, res.GetText())
	}

	if results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, z.hints); err == nil {
		for _, res := range results {
			add(res)
		}
	}

	for _, reader := range z.singleReaders() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res, err := reader.Decode(bmp, z.hints); err == nil {
			add(res)
		}
	}
	return codes, nil
}
