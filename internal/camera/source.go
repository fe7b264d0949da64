package camera

import "errors"

// ErrPermissionDenied reports that the camera exists but access was
// refused. Recoverable: the caller may re-prompt and retry rather than
// treat the session as dead.
var ErrPermissionDenied = errors.New("camera: permission denied")

// Frame is one captured vision frame.
type Frame struct {
	Data        []byte // JPEG bytes
	TimestampMs int64
	Rotation    int // device mounting rotation at capture time
}

// Source delivers frames until Stop is called. Closing the Frames channel
// is the source's signal that delivery has ended.
type Source interface {
	Frames() <-chan Frame
	Stop() error
}
