package audio

import (
	"fmt"
	"sync"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

const (
	// OpusSampleRate is the rate of decoded PCM. The decoder upsamples
	// every bandwidth to 48 kHz.
	OpusSampleRate = 48000

	// opusFrameBytes holds one decoded 20 ms frame of int16 PCM.
	opusFrameBytes = 1920
)

// OpusDecoder decodes Opus packets received from the controller.
type OpusDecoder struct {
	mu      sync.Mutex
	decoder opus.Decoder
	output  []byte
}

// NewOpusDecoder creates a pure Go Opus decoder.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		output:  make([]byte, opusFrameBytes),
	}
}

// Decode decodes one packet to mono 48 kHz PCM and reports the sample rate.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, uint32, error) {
	if len(packet) == 0 {
		return nil, 0, ErrEmptyPacket
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	bandwidth, isStereo, err := d.decoder.Decode(packet, d.output)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "OpusDecoder.Decode",
			"packet_size": len(packet),
			"error":       err.Error(),
		}).Warn("Opus decode failed")
		return nil, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	decoded := d.output[:opusFrameBytes]
	stride := 1
	if isStereo {
		// Keep the left channel only.
		stride = 2
	}

	pcm := make([]int16, len(decoded)/2/stride)
	for i := range pcm {
		j := i * stride * 2
		pcm[i] = int16(decoded[j]) | int16(decoded[j+1])<<8
	}

	logrus.WithFields(logrus.Fields{
		"function":     "OpusDecoder.Decode",
		"bandwidth":    bandwidth.String(),
		"stereo":       isStereo,
		"sample_count": len(pcm),
	}).Debug("Opus packet decoded")
	return pcm, OpusSampleRate, nil
}

// Playback consumes decoded PCM. Device-level output is provided by the platform.
type Playback interface {
	Play(pcm []int16, sampleRate uint32) error
}

// LogPlayback is a Playback that records what it would have played.
type LogPlayback struct {
	mu      sync.Mutex
	samples int
}

// Play implements Playback.
func (l *LogPlayback) Play(pcm []int16, sampleRate uint32) error {
	l.mu.Lock()
	l.samples += len(pcm)
	total := l.samples
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":      "LogPlayback.Play",
		"sample_count":  len(pcm),
		"sample_rate":   sampleRate,
		"total_samples": total,
	}).Debug("Playback frame received")
	return nil
}

// Samples returns the number of samples played so far.
func (l *LogPlayback) Samples() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.samples
}
