package audio

import "errors"

// Sentinel errors for audio package operations.
var (
	// ErrInvalidSampleRate indicates a zero or unsupported sample rate.
	ErrInvalidSampleRate = errors.New("invalid sample rate")

	// ErrInvalidFrameSize indicates a zero or negative frame size.
	ErrInvalidFrameSize = errors.New("invalid frame size")

	// ErrInvalidGain indicates a gain outside the supported range.
	ErrInvalidGain = errors.New("invalid gain")

	// ErrInvalidImpulseResponse indicates an impulse response that cannot be used.
	ErrInvalidImpulseResponse = errors.New("invalid impulse response")

	// ErrCaptureClosed indicates a capture source was started after Close.
	ErrCaptureClosed = errors.New("capture closed")

	// ErrEmptyPacket indicates an empty encoded packet.
	ErrEmptyPacket = errors.New("empty audio packet")
)
