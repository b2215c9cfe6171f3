package main

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/opd-ai/remoteagent/audio"
	"github.com/opd-ai/remoteagent/config"
	"github.com/opd-ai/remoteagent/plugins/livemic"
	"github.com/sirupsen/logrus"
)

// commandCapture reads PCM from the stdout of a recorder process such as arecord.
type commandCapture struct {
	argv         []string
	sampleRate   uint32
	frameSamples int

	mu     sync.Mutex
	cmd    *exec.Cmd
	reader *audio.ReaderCapture
}

func captureFactory(ac config.AudioConfig) livemic.CaptureFactory {
	return func() (audio.Capture, error) {
		switch ac.Capture {
		case "tone":
			return &audio.ToneCapture{
				Frequency:    ac.ToneFrequency,
				Amplitude:    0.5,
				SampleRate:   ac.CaptureRate,
				FrameSamples: ac.FrameSamples,
				Realtime:     true,
			}, nil
		case "command":
			return &commandCapture{
				argv:         append([]string(nil), ac.CaptureCommand...),
				sampleRate:   ac.CaptureRate,
				frameSamples: ac.FrameSamples,
			}, nil
		default:
			return nil, fmt.Errorf("unknown capture source %q", ac.Capture)
		}
	}
}

func (c *commandCapture) Name() string {
	return c.argv[0]
}

// Start launches the recorder; the process is tied to ctx.
func (c *commandCapture) Start(ctx context.Context) (<-chan audio.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.argv[0], err)
	}

	reader, err := audio.NewReaderCapture(c.argv[0], stdout, c.sampleRate, c.frameSamples)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	c.cmd = cmd
	c.reader = reader

	logrus.WithFields(logrus.Fields{
		"function": "commandCapture.Start",
		"command":  c.argv,
		"pid":      cmd.Process.Pid,
	}).Info("Capture process started")
	return reader.Start(ctx)
}

// Close stops the recorder process.
func (c *commandCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return nil
	}
	_ = c.reader.Close()
	if c.cmd.ProcessState == nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.cmd.Wait()
	c.cmd = nil
	return nil
}
