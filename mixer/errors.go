package mixer

import "errors"

var (
	// ErrDeviceClosed indicates the mixer handle has been closed.
	ErrDeviceClosed = errors.New("mixer device closed")

	// ErrDeviceNotFound indicates the requested mixer device does not exist.
	ErrDeviceNotFound = errors.New("mixer device not found")

	// ErrControlNotFound indicates no control matches the request.
	ErrControlNotFound = errors.New("mixer control not found")

	// ErrQueryFailed indicates the host rejected a detail query.
	ErrQueryFailed = errors.New("mixer query failed")

	// ErrInvalidValue indicates a value outside the control's range or shape.
	ErrInvalidValue = errors.New("invalid mixer value")

	// ErrUnknownBackend indicates an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown mixer backend")
)
