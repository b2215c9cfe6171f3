// Package livemic implements the live audio plugin.
//
// Once started by the controller, captured microphone audio flows through a
// convolution filter and a gain stage, is encoded as G.711 mu-law and sent
// back as OpAudioFrame frames. The same session lets the controller inspect
// and change mixer controls, swap the filter's impulse response, adjust gain
// and push Opus packets for local playback.
//
// Payload formats:
//
//	OpSetImpulse   little-endian float32 taps; empty clears the filter
//	OpGetControl   control name; reply OpGetControl "name=v1,v2"
//	OpSetControl   "name=v1,v2" (a single value applies to every channel)
//	OpSetGain      little-endian float32 linear gain
//	OpError        UTF-8 error text sent by the agent
package livemic
