package mixer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Backend opens mixer devices on the host.
type Backend interface {
	// Name identifies the backend in configuration and logs
	Name() string
	// Open returns a handle to the named device
	Open(ctx context.Context, device string) (Device, error)
}

// Device is an open mixer handle. Implementations need not be safe for
// concurrent use; Surface serializes access.
type Device interface {
	// Name returns the device name
	Name() string
	// Controls enumerates the control lines of the given type
	Controls(ctx context.Context, line LineType) ([]Descriptor, error)
	// QueryDetails fills details.Values for the control
	QueryDetails(ctx context.Context, id ControlID, line LineType, details *Details) error
	// QueryListText fills details.Items for a list control
	QueryListText(ctx context.Context, id ControlID, line LineType, details *Details) error
	// SetDetails writes details.Values to the control
	SetDetails(ctx context.Context, id ControlID, line LineType, details Details) error
	// Close releases the handle
	Close() error
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", "software":
		return NewSoftwareBackend(), nil
	case "alsa", "amixer":
		return NewAmixerBackend(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// FormatValues renders values as a comma separated list.
func FormatValues(values []int32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(int64(v), 10)
	}
	return strings.Join(parts, ",")
}

// ParseValues parses a comma separated list of integers.
func ParseValues(s string) ([]int32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: no values", ErrInvalidValue)
	}

	fields := strings.Split(s, ",")
	values := make([]int32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidValue, f)
		}
		values[i] = int32(v)
	}
	return values, nil
}
