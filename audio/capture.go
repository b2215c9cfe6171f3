package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Frame is one block of captured mono PCM.
type Frame struct {
	Samples    []int16
	SampleRate uint32
	Timestamp  time.Time
}

// Capture is a source of PCM frames delivered by the platform capture API.
type Capture interface {
	// Name identifies the source in logs
	Name() string
	// Start begins delivery. The channel is closed when capture ends or ctx is done.
	Start(ctx context.Context) (<-chan Frame, error)
	// Close stops capture and releases the source
	Close() error
}

// ReaderCapture reads raw 16-bit little-endian mono PCM from an io.Reader,
// for example the stdout of `arecord -t raw -f S16_LE -c 1`.
type ReaderCapture struct {
	name         string
	reader       io.Reader
	sampleRate   uint32
	frameSamples int

	mu     sync.Mutex
	closed bool
}

// NewReaderCapture creates a capture that slices r into frames of frameSamples samples.
func NewReaderCapture(name string, r io.Reader, sampleRate uint32, frameSamples int) (*ReaderCapture, error) {
	if sampleRate == 0 {
		return nil, ErrInvalidSampleRate
	}
	if frameSamples <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameSize, frameSamples)
	}
	return &ReaderCapture{name: name, reader: r, sampleRate: sampleRate, frameSamples: frameSamples}, nil
}

// Name implements Capture.
func (c *ReaderCapture) Name() string {
	return c.name
}

// Start implements Capture. A trailing partial frame is dropped.
func (c *ReaderCapture) Start(ctx context.Context) (<-chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCaptureClosed
	}

	frames := make(chan Frame, 4)
	go func() {
		defer close(frames)
		buf := make([]byte, c.frameSamples*2)
		for {
			if _, err := io.ReadFull(c.reader, buf); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					logrus.WithFields(logrus.Fields{
						"function": "ReaderCapture.Start",
						"source":   c.name,
						"error":    err.Error(),
					}).Warn("Capture read failed")
				}
				return
			}

			samples := make([]int16, c.frameSamples)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}

			select {
			case frames <- Frame{Samples: samples, SampleRate: c.sampleRate, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames, nil
}

// Close implements Capture. If the reader is an io.Closer it is closed too.
func (c *ReaderCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if closer, ok := c.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// ToneCapture generates a sine wave. It stands in for a microphone in
// diagnostics and tests.
type ToneCapture struct {
	Frequency    float64
	Amplitude    float64
	SampleRate   uint32
	FrameSamples int
	// Realtime paces frames at the rate a real device would deliver them.
	Realtime bool
	// Frames limits the number of frames produced; zero means unlimited.
	Frames int

	mu     sync.Mutex
	phase  float64
	closed bool
}

// Name implements Capture.
func (t *ToneCapture) Name() string {
	return fmt.Sprintf("tone(%.0fHz)", t.Frequency)
}

// Start implements Capture.
func (t *ToneCapture) Start(ctx context.Context) (<-chan Frame, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, ErrCaptureClosed
	}
	if t.SampleRate == 0 {
		return nil, ErrInvalidSampleRate
	}
	if t.FrameSamples <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameSize, t.FrameSamples)
	}

	frames := make(chan Frame, 4)
	go func() {
		defer close(frames)

		var tick <-chan time.Time
		if t.Realtime {
			interval := time.Duration(t.FrameSamples) * time.Second / time.Duration(t.SampleRate)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for n := 0; t.Frames == 0 || n < t.Frames; n++ {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			if t.isClosed() {
				return
			}

			select {
			case frames <- Frame{Samples: t.next(), SampleRate: t.SampleRate, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames, nil
}

// next renders the next frame of the tone, continuing the phase.
func (t *ToneCapture) next() []int16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := make([]int16, t.FrameSamples)
	step := 2 * math.Pi * t.Frequency / float64(t.SampleRate)
	for i := range samples {
		samples[i] = int16(t.Amplitude * math.MaxInt16 * math.Sin(t.phase))
		t.phase += step
	}
	t.phase = math.Mod(t.phase, 2*math.Pi)
	return samples
}

func (t *ToneCapture) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close implements Capture.
func (t *ToneCapture) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
