package command

import "errors"

var (
	// ErrEmptyFrame indicates a frame without an opcode byte.
	ErrEmptyFrame = errors.New("empty command frame")

	// ErrNotReady indicates an opcode frame was sent before the handshake.
	ErrNotReady = errors.New("handshake not sent")

	// ErrAlreadyRunning indicates Run was called twice on one dispatcher.
	ErrAlreadyRunning = errors.New("dispatcher already running")

	// ErrUnknownPlugin indicates no factory is registered for a plugin ID.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrDuplicatePlugin indicates a plugin ID was registered twice.
	ErrDuplicatePlugin = errors.New("plugin already registered")
)
