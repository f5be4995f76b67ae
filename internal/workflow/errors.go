package workflow

import "errors"

var (
	// ErrNoImageSelected is returned by detection requests made before any image was acquired
	ErrNoImageSelected = errors.New("no image selected")

	// ErrImageProcessing is returned when the detection input could not be built from the locator
	ErrImageProcessing = errors.New("image processing error")

	// ErrCanceled is returned by pickers and cameras when the user backs out
	ErrCanceled = errors.New("acquisition canceled")

	// ErrPermissionDenied is reported when the camera permission prompt is refused or dismissed
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrHandoffActive is returned when a picker, camera or permission prompt is already open
	ErrHandoffActive = errors.New("another acquisition is in progress")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("controller closed")
)
