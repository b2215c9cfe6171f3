// Package limits provides centralized frame size limits for the command channel.
// This ensures consistent validation across transports and plugins.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxFrame is the largest plaintext frame a channel will send or accept.
	MaxFrame = 64 * 1024

	// EncryptionOverhead is the Poly1305 tag appended by ChaCha20-Poly1305.
	EncryptionOverhead = 16

	// MaxSecureFrame is the maximum frame size after encryption.
	MaxSecureFrame = MaxFrame + EncryptionOverhead

	// MaxChatMessage is the longest chat text accepted in a single frame.
	MaxChatMessage = 4096

	// MaxImpulseResponse is the maximum number of filter taps accepted over the wire.
	MaxImpulseResponse = 4096
)

var (
	// ErrFrameEmpty indicates an empty frame was provided
	ErrFrameEmpty = errors.New("empty frame")

	// ErrFrameTooLarge indicates a frame exceeds the maximum size
	ErrFrameTooLarge = errors.New("frame too large")
)

// ValidateSize validates data against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFrameTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateFrame validates a plaintext frame against MaxFrame.
func ValidateFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}
	if len(frame) > MaxFrame {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrFrameTooLarge, len(frame), MaxFrame)
	}
	return nil
}

// ValidateSecureFrame validates an encrypted frame against MaxSecureFrame.
func ValidateSecureFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}
	if len(frame) > MaxSecureFrame {
		return fmt.Errorf("%w: encrypted size %d exceeds limit %d", ErrFrameTooLarge, len(frame), MaxSecureFrame)
	}
	return nil
}

// ValidateLength checks a declared length prefix before any buffer is allocated.
// A zero length is valid here: empty frames are rejected later, after the read.
func ValidateLength(length uint32, maxSize int) error {
	if uint64(length) > uint64(maxSize) {
		return fmt.Errorf("%w: declared length %d exceeds limit %d", ErrFrameTooLarge, length, maxSize)
	}
	return nil
}
