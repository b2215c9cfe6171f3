package mixer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Surface is the single owner of an open mixer device and its controls.
type Surface struct {
	mu       sync.Mutex
	backend  string
	device   Device
	opts     Options
	controls map[LineType][]*Control
	closed   bool
}

// Open opens deviceName on backend.
func Open(ctx context.Context, backend Backend, deviceName string, opts Options) (*Surface, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "mixer.Open",
		"backend":  backend.Name(),
		"device":   deviceName,
	})

	device, err := backend.Open(ctx, deviceName)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to open mixer device")
		return nil, fmt.Errorf("open mixer %q: %w", deviceName, err)
	}

	logger.WithField("list_text", opts.ListText).Info("Mixer device opened")
	return &Surface{
		backend:  backend.Name(),
		device:   device,
		opts:     opts,
		controls: make(map[LineType][]*Control),
	}, nil
}

// Controls enumerates the controls of a line type, creating and populating
// them on first use.
func (s *Surface) Controls(ctx context.Context, line LineType) ([]*Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	controls, err := s.controlsLocked(ctx, line)
	if err != nil {
		return nil, err
	}
	return append([]*Control(nil), controls...), nil
}

func (s *Surface) controlsLocked(ctx context.Context, line LineType) ([]*Control, error) {
	if s.closed {
		return nil, ErrDeviceClosed
	}
	if controls, ok := s.controls[line]; ok {
		return controls, nil
	}

	descriptors, err := s.device.Controls(ctx, line)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate %s controls: %v", ErrQueryFailed, line, err)
	}

	controls := make([]*Control, 0, len(descriptors))
	for _, desc := range descriptors {
		c, err := NewControl(ctx, s.device, desc, line, desc.Channels, s.opts)
		if err != nil {
			return nil, err
		}
		controls = append(controls, c)
	}
	s.controls[line] = controls

	logrus.WithFields(logrus.Fields{
		"function": "Surface.Controls",
		"line":     line.String(),
		"count":    len(controls),
	}).Debug("Mixer controls enumerated")
	return controls, nil
}

// control finds a control by case-insensitive name on either line.
func (s *Surface) control(ctx context.Context, name string) (*Control, error) {
	for _, line := range []LineType{LineOutput, LineInput} {
		controls, err := s.controlsLocked(ctx, line)
		if err != nil {
			return nil, err
		}
		for _, c := range controls {
			if strings.EqualFold(c.Name(), name) {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrControlNotFound, name)
}

// Control returns the named control. The returned control shares the
// surface's device and must not be used after Close.
func (s *Surface) Control(ctx context.Context, name string) (*Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.control(ctx, name)
}

// Get refreshes and returns the details of the named control.
func (s *Surface) Get(ctx context.Context, name string) (Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.control(ctx, name)
	if err != nil {
		return Details{}, err
	}
	if err := c.Refresh(ctx); err != nil {
		return Details{}, err
	}
	return c.Details(), nil
}

// Set writes values to the named control.
func (s *Surface) Set(ctx context.Context, name string, values []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.control(ctx, name)
	if err != nil {
		return err
	}
	return c.SetValues(ctx, values)
}

// Descriptor returns the descriptor of the named control.
func (s *Surface) Descriptor(ctx context.Context, name string) (Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.control(ctx, name)
	if err != nil {
		return Descriptor{}, err
	}
	return c.Descriptor(), nil
}

// ControlList renders every control, output lines first, one per line.
func (s *Surface) ControlList(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, line := range []LineType{LineOutput, LineInput} {
		controls, err := s.controlsLocked(ctx, line)
		if err != nil {
			return "", err
		}
		for _, c := range controls {
			b.WriteString(c.String())
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// DeviceName returns the name of the open device.
func (s *Surface) DeviceName() string {
	return s.device.Name()
}

// Close closes the device. Controls become unusable.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.controls = nil

	logrus.WithFields(logrus.Fields{
		"function": "Surface.Close",
		"backend":  s.backend,
		"device":   s.device.Name(),
	}).Info("Mixer device closed")
	return s.device.Close()
}
