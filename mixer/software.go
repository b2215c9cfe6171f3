package mixer

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// DefaultDevice is the device name the software backend creates on demand.
const DefaultDevice = "default"

// softwareControl is the in-process state of one control.
type softwareControl struct {
	desc   Descriptor
	items  []string
	values []int32
}

// SoftwareBackend is an in-process mixer. Devices persist across Open calls
// so several surfaces observe the same state.
type SoftwareBackend struct {
	mu      sync.Mutex
	devices map[string]*softwareDevice
	// FailQueries makes every detail query fail; used to exercise error paths.
	FailQueries bool
}

// NewSoftwareBackend creates a backend with a populated default device.
func NewSoftwareBackend() *SoftwareBackend {
	b := &SoftwareBackend{devices: make(map[string]*softwareDevice)}
	b.devices[DefaultDevice] = newDefaultSoftwareDevice(b)
	return b
}

// Name implements Backend.
func (b *SoftwareBackend) Name() string {
	return "software"
}

// Open implements Backend. An empty name selects the default device.
func (b *SoftwareBackend) Open(ctx context.Context, device string) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if device == "" {
		device = DefaultDevice
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[device]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
	}
	return &softwareHandle{dev: d}, nil
}

// AddDevice registers an empty device.
func (b *SoftwareBackend) AddDevice(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[name]; !ok {
		b.devices[name] = &softwareDevice{name: name, backend: b, controls: make(map[ControlID]*softwareControl)}
	}
}

// AddControl adds a control to a device and returns its ID. items is only
// used for list controls.
func (b *SoftwareBackend) AddControl(device string, desc Descriptor, items ...string) (ControlID, error) {
	b.mu.Lock()
	d, ok := b.devices[device]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrDeviceNotFound, device)
	}
	return d.add(desc, items), nil
}

func (b *SoftwareBackend) failing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.FailQueries
}

// SetFailQueries toggles query failure injection.
func (b *SoftwareBackend) SetFailQueries(fail bool) {
	b.mu.Lock()
	b.FailQueries = fail
	b.mu.Unlock()
}

type softwareDevice struct {
	mu       sync.Mutex
	name     string
	backend  *SoftwareBackend
	nextID   ControlID
	controls map[ControlID]*softwareControl
}

func newDefaultSoftwareDevice(b *SoftwareBackend) *softwareDevice {
	d := &softwareDevice{name: DefaultDevice, backend: b, controls: make(map[ControlID]*softwareControl)}
	d.add(Descriptor{Name: "Master Playback Volume", Kind: KindInteger, Line: LineOutput, Min: 0, Max: 100, Channels: 2}, nil)
	d.add(Descriptor{Name: "Master Playback Switch", Kind: KindBoolean, Line: LineOutput, Min: 0, Max: 1, Channels: 2}, nil)
	d.add(Descriptor{Name: "Capture Volume", Kind: KindInteger, Line: LineInput, Min: 0, Max: 100, Channels: 2}, nil)
	d.add(Descriptor{Name: "Capture Switch", Kind: KindBoolean, Line: LineInput, Min: 0, Max: 1, Channels: 2}, nil)
	d.add(Descriptor{Name: "Capture Source", Kind: KindList, Line: LineInput, Channels: 1}, []string{"Mic", "Line", "CD"})
	return d
}

func (d *softwareDevice) add(desc Descriptor, items []string) ControlID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	desc.ID = d.nextID
	if desc.Channels <= 0 {
		desc.Channels = 1
	}
	if desc.Kind == KindList {
		desc.ItemCount = len(items)
	}

	values := make([]int32, desc.Channels)
	if desc.Kind == KindInteger {
		for i := range values {
			values[i] = desc.Min
		}
	}
	d.controls[desc.ID] = &softwareControl{
		desc:   desc,
		items:  append([]string(nil), items...),
		values: values,
	}
	return desc.ID
}

func (d *softwareDevice) lookup(id ControlID, line LineType) (*softwareControl, error) {
	c, ok := d.controls[id]
	if !ok || c.desc.Line != line {
		return nil, fmt.Errorf("%w: id %d on %s line", ErrControlNotFound, id, line)
	}
	return c, nil
}

// softwareHandle is one open handle onto a shared software device.
type softwareHandle struct {
	dev    *softwareDevice
	closed bool
}

func (h *softwareHandle) Name() string {
	return h.dev.name
}

func (h *softwareHandle) Controls(ctx context.Context, line LineType) ([]Descriptor, error) {
	if h.closed {
		return nil, ErrDeviceClosed
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()

	var out []Descriptor
	for _, c := range h.dev.controls {
		if c.desc.Line == line {
			out = append(out, c.desc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *softwareHandle) QueryDetails(ctx context.Context, id ControlID, line LineType, details *Details) error {
	if h.closed {
		return ErrDeviceClosed
	}
	if h.dev.backend.failing() {
		return fmt.Errorf("software mixer: query of control %d rejected", id)
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()

	c, err := h.dev.lookup(id, line)
	if err != nil {
		return err
	}
	for i := range details.Values {
		details.Values[i] = c.values[i%len(c.values)]
	}
	return nil
}

func (h *softwareHandle) QueryListText(ctx context.Context, id ControlID, line LineType, details *Details) error {
	if h.closed {
		return ErrDeviceClosed
	}
	if h.dev.backend.failing() {
		return fmt.Errorf("software mixer: list text query of control %d rejected", id)
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()

	c, err := h.dev.lookup(id, line)
	if err != nil {
		return err
	}
	details.Items = append([]string(nil), c.items...)
	return nil
}

func (h *softwareHandle) SetDetails(ctx context.Context, id ControlID, line LineType, details Details) error {
	if h.closed {
		return ErrDeviceClosed
	}
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()

	c, err := h.dev.lookup(id, line)
	if err != nil {
		return err
	}
	if len(details.Values) == 0 {
		return ErrInvalidValue
	}
	for i := range c.values {
		c.values[i] = details.Values[i%len(details.Values)]
	}
	return nil
}

func (h *softwareHandle) Close() error {
	h.closed = true
	return nil
}
