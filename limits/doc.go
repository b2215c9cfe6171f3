// Package limits provides centralized frame size constants and validation
// functions shared by every channel implementation and plugin.
//
// # Frame Size Hierarchy
//
//   - MaxFrame (64 KiB): the largest plaintext frame a channel accepts. Audio
//     frames are far smaller (one mu-law byte per sample, 160-960 bytes for
//     typical 20 ms frames), but mixer listings and impulse responses can be
//     a few kilobytes.
//
//   - MaxSecureFrame: MaxFrame plus the ChaCha20-Poly1305 tag added by the
//     secure channel.
//
//   - MaxChatMessage (4 KiB): the longest chat text accepted by the chat
//     plugin.
//
//   - MaxImpulseResponse: the longest impulse response the live audio plugin
//     accepts over the wire.
//
// # Validation Functions
//
//	if err := limits.ValidateFrame(frame); err != nil {
//	    // ErrFrameEmpty or ErrFrameTooLarge
//	}
//
// Errors wrap ErrFrameTooLarge with the actual and maximum sizes so callers
// can classify them with errors.Is.
package limits
