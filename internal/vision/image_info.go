package vision

import (
	"image"
	"image/draw"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// ImageInfo summarizes an acquired image for display next to it
type ImageInfo struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Sharpness  float64 `json:"sharpness"`
}

var samplePool = sync.Pool{
	New: func() interface{} {
		return make([]float64, 0, 1024)
	},
}

// Describe computes dimensions and grayscale statistics: mean luminance
// (0-255), its standard deviation, and the variance of the Laplacian.
func Describe(img image.Image) ImageInfo {
	bounds := img.Bounds()
	info := ImageInfo{Width: bounds.Dx(), Height: bounds.Dy()}
	if bounds.Empty() {
		return info
	}

	gray, ok := img.(*image.Gray)
	if !ok {
		gray = image.NewGray(bounds)
		draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	}

	data := samplePool.Get().([]float64)[:0]
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			data = append(data, float64(gray.GrayAt(x, y).Y))
		}
	}
	info.Brightness, info.Contrast = stat.MeanStdDev(data, nil)
	if len(data) < 2 {
		info.Contrast = 0
	}

	data = data[:0]
	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			center := float64(gray.GrayAt(x, y).Y)
			top := float64(gray.GrayAt(x, y-1).Y)
			bottom := float64(gray.GrayAt(x, y+1).Y)
			left := float64(gray.GrayAt(x-1, y).Y)
			right := float64(gray.GrayAt(x+1, y).Y)
			data = append(data, -4*center+top+bottom+left+right)
		}
	}
	if len(data) > 1 {
		info.Sharpness = stat.Variance(data, nil)
	}
	samplePool.Put(data[:0])

	return info
}
