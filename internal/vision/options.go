package vision

// DetectorOptions tunes the local detector backends
type DetectorOptions struct {
	// Face detection (pigo)
	FaceMinSize     int
	FaceMaxSize     int
	FaceShiftFactor float64
	FaceScaleFactor float64
	FaceIoU         float64
	FaceMinQuality  float32

	// Text recognition
	OCRLanguage string
	PageSegMode int

	// Cloud backends
	MaxResults int32
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() DetectorOptions {
	return DetectorOptions{
		FaceMinSize:     20,
		FaceMaxSize:     2000,
		FaceShiftFactor: 0.1,
		FaceScaleFactor: 1.1,
		FaceIoU:         0.2,
		FaceMinQuality:  5.0,
		OCRLanguage:     "eng",
		PageSegMode:     3, // fully automatic page segmentation
		MaxResults:      50,
	}
}

// WithLanguage sets the OCR language
func (opts DetectorOptions) WithLanguage(lang string) DetectorOptions {
	if lang != "" {
		opts.OCRLanguage = lang
	}
	return opts
}

// WithFaceSizeBounds limits the face sizes the cascade scans for
func (opts DetectorOptions) WithFaceSizeBounds(minSize, maxSize int) DetectorOptions {
	opts.FaceMinSize = minSize
	opts.FaceMaxSize = maxSize
	return opts
}

// WithMinQuality drops pigo detections scoring below q
func (opts DetectorOptions) WithMinQuality(q float32) DetectorOptions {
	opts.FaceMinQuality = q
	return opts
}

// WithMaxResults caps the annotations returned by the cloud backend
func (opts DetectorOptions) WithMaxResults(n int32) DetectorOptions {
	opts.MaxResults = n
	return opts
}
