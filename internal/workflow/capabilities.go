package workflow

import (
	"context"
	"image"

	"github.com/anime-shed/facescan-go/internal/vision"
)

// ContentFilter restricts what a picker offers.
type ContentFilter string

// ImageContent is the only filter the controller asks for.
const ImageContent ContentFilter = "image/*"

// Permission names a runtime permission.
type Permission string

const PermissionCamera Permission = "camera"

// GrantResult is one entry of a permission response.
type GrantResult string

const (
	Granted GrantResult = "granted"
	Denied  GrantResult = "denied"
)

// Picker hands control to the platform gallery. It blocks until the user
// picks an item (its locator is returned) or backs out (ErrCanceled).
type Picker interface {
	Pick(ctx context.Context, filter ContentFilter) (string, error)
}

// ImageSource decodes the image behind a locator.
type ImageSource interface {
	Load(ctx context.Context, locator string) (image.Image, error)
}

// Camera hands control to the platform camera and blocks until a frame is
// captured or the user cancels (ErrCanceled).
type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

// PermissionProvider answers permission checks and runs permission prompts.
// Request returns immediately; respond is called exactly once, from any
// goroutine, when the user answers. An empty results slice means the prompt
// was dismissed.
type PermissionProvider interface {
	Check(p Permission) bool
	Request(p Permission, respond func(results []GrantResult))
}

type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

type TextDetector interface {
	DetectText(ctx context.Context, img image.Image) (string, error)
}

type BarcodeDetector interface {
	DetectBarcodes(ctx context.Context, img image.Image) ([]string, error)
}

// View is the display surface. The controller calls it from its loop
// goroutine only.
type View interface {
	ShowImage(img image.Image)
	ShowResult(text string)
	Notify(message string)
}

// ComparisonView is implemented by views that also display how recognized
// text compares with the text the caller expected.
type ComparisonView interface {
	ShowComparison(cmp vision.TextComparison)
}

// Executor runs detector jobs off the loop goroutine.
type Executor interface {
	Submit(job func()) error
}
