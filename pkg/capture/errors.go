package capture

import "errors"

// Session errors. Backends wrap these with context; match with errors.Is.
var (
	// ErrInvalidSettings is returned when a settings value is malformed
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrDeviceFailed is returned when the backend cannot be opened or negotiated
	ErrDeviceFailed = errors.New("device failed")

	// ErrMissingCapability is returned when no compatible stream or decoder exists
	ErrMissingCapability = errors.New("missing capability")

	// ErrDeviceNoLongerAvailable is returned when the source is exhausted or disconnected
	ErrDeviceNoLongerAvailable = errors.New("device no longer available")

	// ErrInvalidBuffer is returned when decoded geometry does not match the frame buffer
	ErrInvalidBuffer = errors.New("invalid buffer")

	// ErrNotReady is returned when a session is used outside its lifecycle
	ErrNotReady = errors.New("session not ready")
)
