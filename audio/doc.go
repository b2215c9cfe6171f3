// Package audio provides the live audio pipeline of the agent.
//
// Captured PCM frames are optionally resampled, shaped by an effects chain
// (gain, FIR convolution) and compressed with G.711 mu-law before they are
// framed onto the controller channel:
//
//	Capture → Resampler → EffectChain (Gain, Convolution) → MuLaw → frame
//
// Inbound audio from the controller travels the other way through the Opus
// decoder to a Playback sink.
//
// # Mu-law
//
// MuLawEncode and MuLawDecode implement the table driven G.711 companding
// algorithm bit for bit, so the byte stream can be read by any reference
// decoder:
//
//	code := audio.MuLawEncode(sample)
//	approx := audio.MuLawDecode(code)
//
// # Convolution
//
// Convolve performs direct-form linear convolution of a unit full-scale
// buffer with an impulse response and normalizes the result so that its
// peak never exceeds 1.0. ConvolutionEffect applies the same filter to a
// stream of int16 frames with overlap-add.
//
// # Ownership
//
// Sample buffers are handed from stage to stage. A stage may modify the
// slice it receives and pass it on, so callers must not keep using a
// buffer after handing it to the pipeline.
//
// # Dependencies
//
//   - github.com/pion/opus: Pure Go Opus decoder (no CGO)
//   - github.com/sirupsen/logrus: Structured logging
package audio
