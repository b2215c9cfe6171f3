package mixer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// AmixerBackend drives ALSA mixers through the amixer tool. Device names are
// ALSA card identifiers as accepted by `amixer -c`.
type AmixerBackend struct {
	run  Runner
	path string
}

// NewAmixerBackend creates a backend. A nil runner uses ExecRunner.
func NewAmixerBackend(run Runner) *AmixerBackend {
	if run == nil {
		run = ExecRunner
	}
	return &AmixerBackend{run: run, path: "amixer"}
}

// Name implements Backend.
func (b *AmixerBackend) Name() string {
	return "alsa"
}

// Open implements Backend. The card's control list is read once on open.
func (b *AmixerBackend) Open(ctx context.Context, device string) (Device, error) {
	if device == "" || device == DefaultDevice {
		device = "0"
	}

	out, err := b.run(ctx, b.path, "-c", device, "contents")
	if err != nil {
		return nil, fmt.Errorf("%w: card %s: %v", ErrDeviceNotFound, device, err)
	}
	controls, err := parseAmixerContents(out)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "AmixerBackend.Open",
		"card":     device,
		"controls": len(controls),
	}).Debug("Parsed amixer control list")

	return &amixerDevice{backend: b, card: device, controls: controls}, nil
}

type amixerControl struct {
	desc      Descriptor
	items     []string
	values    []int32
	valuesErr error
}

type amixerDevice struct {
	backend  *AmixerBackend
	card     string
	controls []amixerControl
	closed   bool
}

func (d *amixerDevice) Name() string {
	return "hw:" + d.card
}

func (d *amixerDevice) Controls(ctx context.Context, line LineType) ([]Descriptor, error) {
	if d.closed {
		return nil, ErrDeviceClosed
	}
	var out []Descriptor
	for _, c := range d.controls {
		// IEC958 and byte controls carry no per-channel values.
		if c.desc.Kind == KindUnknown {
			continue
		}
		if c.desc.Line == line {
			out = append(out, c.desc)
		}
	}
	return out, nil
}

func (d *amixerDevice) cget(ctx context.Context, id ControlID) (amixerControl, error) {
	if d.closed {
		return amixerControl{}, ErrDeviceClosed
	}
	out, err := d.backend.run(ctx, d.backend.path, "-c", d.card, "cget", fmt.Sprintf("numid=%d", id))
	if err != nil {
		return amixerControl{}, err
	}
	controls, err := parseAmixerContents(out)
	if err != nil {
		return amixerControl{}, err
	}
	for _, c := range controls {
		if c.desc.ID == id {
			return c, nil
		}
	}
	return amixerControl{}, fmt.Errorf("%w: numid=%d", ErrControlNotFound, id)
}

func (d *amixerDevice) QueryDetails(ctx context.Context, id ControlID, line LineType, details *Details) error {
	c, err := d.cget(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case c.valuesErr != nil:
		return fmt.Errorf("%w: numid=%d: %v", ErrQueryFailed, id, c.valuesErr)
	case len(c.values) == 0:
		return fmt.Errorf("%w: numid=%d has no values", ErrQueryFailed, id)
	case len(c.values) < c.desc.Channels:
		return fmt.Errorf("%w: numid=%d reported %d of %d values",
			ErrQueryFailed, id, len(c.values), c.desc.Channels)
	}
	for i := range details.Values {
		details.Values[i] = c.values[i%len(c.values)]
	}
	return nil
}

func (d *amixerDevice) QueryListText(ctx context.Context, id ControlID, line LineType, details *Details) error {
	c, err := d.cget(ctx, id)
	if err != nil {
		return err
	}
	details.Items = append([]string(nil), c.items...)
	return nil
}

func (d *amixerDevice) SetDetails(ctx context.Context, id ControlID, line LineType, details Details) error {
	if d.closed {
		return ErrDeviceClosed
	}
	_, err := d.backend.run(ctx, d.backend.path, "-c", d.card, "cset",
		fmt.Sprintf("numid=%d", id), FormatValues(details.Values))
	return err
}

func (d *amixerDevice) Close() error {
	d.closed = true
	return nil
}

// parseAmixerContents parses the output of `amixer contents` and `amixer cget`.
func parseAmixerContents(out []byte) ([]amixerControl, error) {
	var (
		controls []amixerControl
		current  *amixerControl
	)
	flush := func() {
		if current != nil {
			controls = append(controls, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "numid="):
			flush()
			c, err := parseAmixerHeader(line)
			if err != nil {
				return nil, err
			}
			current = &c
		case current == nil:
			continue
		case strings.HasPrefix(line, "; type="):
			parseAmixerType(current, strings.TrimPrefix(line, "; "))
		case strings.HasPrefix(line, "; Item #"):
			if item, ok := parseAmixerItem(line); ok {
				current.items = append(current.items, item)
			}
		case strings.HasPrefix(line, ": values="):
			current.values, current.valuesErr = parseAmixerValues(strings.TrimPrefix(line, ": values="))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read amixer output: %w", err)
	}
	flush()

	for i := range controls {
		if controls[i].desc.Kind == KindList {
			controls[i].desc.ItemCount = len(controls[i].items)
			controls[i].desc.Max = int32(len(controls[i].items) - 1)
		}
	}
	return controls, nil
}

// parseAmixerHeader parses `numid=3,iface=MIXER,name='Master Playback Volume'`.
func parseAmixerHeader(line string) (amixerControl, error) {
	var c amixerControl

	nameIdx := strings.Index(line, "name='")
	if nameIdx < 0 {
		return c, fmt.Errorf("%w: malformed amixer header %q", ErrQueryFailed, line)
	}
	name := line[nameIdx+len("name='"):]
	if end := strings.Index(name, "'"); end >= 0 {
		name = name[:end]
	}

	for _, field := range strings.Split(line[:nameIdx], ",") {
		if v, ok := strings.CutPrefix(field, "numid="); ok {
			id, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return c, fmt.Errorf("%w: bad numid in %q", ErrQueryFailed, line)
			}
			c.desc.ID = ControlID(id)
		}
	}

	c.desc.Name = name
	c.desc.Line = lineForName(name)
	return c, nil
}

// parseAmixerType parses `type=INTEGER,access=rw---R--,values=2,min=0,max=87,step=0`.
func parseAmixerType(c *amixerControl, line string) {
	for _, field := range strings.Split(line, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "type":
			switch value {
			case "INTEGER", "INTEGER64":
				c.desc.Kind = KindInteger
			case "BOOLEAN":
				c.desc.Kind = KindBoolean
				c.desc.Max = 1
			case "ENUMERATED":
				c.desc.Kind = KindList
			default:
				c.desc.Kind = KindUnknown
			}
		case "values":
			if n, err := strconv.Atoi(value); err == nil {
				c.desc.Channels = n
			}
		case "min":
			if n, err := strconv.ParseInt(value, 10, 32); err == nil {
				c.desc.Min = int32(n)
			}
		case "max":
			if n, err := strconv.ParseInt(value, 10, 32); err == nil {
				c.desc.Max = int32(n)
			}
		}
	}
}

// parseAmixerItem parses `; Item #0 'Mic'`.
func parseAmixerItem(line string) (string, bool) {
	start := strings.Index(line, "'")
	end := strings.LastIndex(line, "'")
	if start < 0 || end <= start {
		return "", false
	}
	return line[start+1 : end], true
}

// parseAmixerValues parses `60,58` or `on,off`. Any field that does not fit
// an int32 fails the whole list.
func parseAmixerValues(s string) ([]int32, error) {
	fields := strings.Split(s, ",")
	values := make([]int32, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "on":
			values = append(values, 1)
		case "off":
			values = append(values, 0)
		default:
			n, err := strconv.ParseInt(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad value %q: %w", f, err)
			}
			values = append(values, int32(n))
		}
	}
	return values, nil
}

// lineForName classifies capture-side controls by name.
func lineForName(name string) LineType {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "capture") || strings.Contains(lower, "input") {
		return LineInput
	}
	return LineOutput
}
