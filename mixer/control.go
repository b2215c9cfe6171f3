package mixer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind is the tag of a control's detail variant.
type Kind int

const (
	// KindUnknown covers controls whose details are not interpreted.
	KindUnknown Kind = iota
	// KindBoolean is an on/off switch per channel.
	KindBoolean
	// KindInteger is a ranged level per channel.
	KindInteger
	// KindList is a list/text control selecting one item per channel.
	KindList
)

// String returns the kind name used in control listings.
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// LineType is the handle-type flag selecting input or output lines.
type LineType int

const (
	// LineOutput covers playback lines.
	LineOutput LineType = iota
	// LineInput covers capture lines.
	LineInput
)

// String returns the line name used in control listings.
func (l LineType) String() string {
	if l == LineInput {
		return "input"
	}
	return "output"
}

// ControlID identifies a control within its device.
type ControlID uint32

// Descriptor is the static description of a control line.
type Descriptor struct {
	ID        ControlID
	Name      string
	Kind      Kind
	Line      LineType
	Min       int32
	Max       int32
	ItemCount int
	Channels  int
}

// Details holds the current values of a control. Values has one entry per
// channel; Items is only used by KindList.
type Details struct {
	Kind     Kind
	Channels int
	Values   []int32
	Items    []string
}

// NewDetails returns a zeroed details structure sized for kind and channels.
func NewDetails(kind Kind, channels int) Details {
	return Details{
		Kind:     kind,
		Channels: channels,
		Values:   make([]int32, channels),
	}
}

// Clone returns a deep copy.
func (d Details) Clone() Details {
	d.Values = append([]int32(nil), d.Values...)
	d.Items = append([]string(nil), d.Items...)
	return d
}

// Options tunes how controls are populated.
type Options struct {
	// ListText enables the real detail query for list/text controls.
	// When false the query is a placeholder that leaves details unpopulated.
	ListText bool
}

// Control is one control line of an open mixer device.
type Control struct {
	device   Device
	desc     Descriptor
	line     LineType
	channels int
	details  Details
	opts     Options
}

// NewControl creates a control and immediately queries its details.
// channels <= 0 falls back to the descriptor's channel count.
func NewControl(ctx context.Context, device Device, desc Descriptor, line LineType, channels int, opts Options) (*Control, error) {
	if device == nil {
		return nil, ErrDeviceClosed
	}
	if channels <= 0 {
		channels = desc.Channels
	}
	if channels <= 0 {
		channels = 1
	}

	c := &Control{
		device:   device,
		desc:     desc,
		line:     line,
		channels: channels,
		details:  NewDetails(desc.Kind, channels),
		opts:     opts,
	}
	if err := c.fetchDetails(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// fetchDetails dispatches on the control kind.
func (c *Control) fetchDetails(ctx context.Context) error {
	details := NewDetails(c.desc.Kind, c.channels)

	var err error
	switch c.desc.Kind {
	case KindList:
		err = c.fetchListDetails(ctx, &details)
	default:
		err = c.device.QueryDetails(ctx, c.desc.ID, c.line, &details)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Control.fetchDetails",
			"control":  c.desc.Name,
			"kind":     c.desc.Kind.String(),
			"error":    err.Error(),
		}).Warn("Mixer detail query failed")
		return fmt.Errorf("%w: control %q: %v", ErrQueryFailed, c.desc.Name, err)
	}

	c.details = details
	return nil
}

// fetchListDetails is a placeholder unless Options.ListText is set: the
// details stay unpopulated.
func (c *Control) fetchListDetails(ctx context.Context, details *Details) error {
	if !c.opts.ListText {
		logrus.WithFields(logrus.Fields{
			"function": "Control.fetchListDetails",
			"control":  c.desc.Name,
		}).Debug("List text query disabled, details left unpopulated")
		return nil
	}

	if err := c.device.QueryListText(ctx, c.desc.ID, c.line, details); err != nil {
		return err
	}
	return c.device.QueryDetails(ctx, c.desc.ID, c.line, details)
}

// Name returns the control name.
func (c *Control) Name() string {
	return c.desc.Name
}

// Kind returns the control kind.
func (c *Control) Kind() Kind {
	return c.desc.Kind
}

// Channels returns the channel count the details are sized for.
func (c *Control) Channels() int {
	return c.channels
}

// Line returns the line type the control was opened with.
func (c *Control) Line() LineType {
	return c.line
}

// Descriptor returns the control descriptor.
func (c *Control) Descriptor() Descriptor {
	return c.desc
}

// Details returns a copy of the last queried details.
func (c *Control) Details() Details {
	return c.details.Clone()
}

// Refresh re-queries the control's details.
func (c *Control) Refresh(ctx context.Context) error {
	return c.fetchDetails(ctx)
}

// SetValues writes one value per channel. A single value is applied to all
// channels.
func (c *Control) SetValues(ctx context.Context, values []int32) error {
	if len(values) == 1 && c.channels > 1 {
		values = broadcast(values[0], c.channels)
	}
	if err := c.validate(values); err != nil {
		return err
	}

	details := c.details.Clone()
	details.Values = append([]int32(nil), values...)
	if err := c.device.SetDetails(ctx, c.desc.ID, c.line, details); err != nil {
		return fmt.Errorf("%w: set control %q: %v", ErrQueryFailed, c.desc.Name, err)
	}

	c.details = details
	logrus.WithFields(logrus.Fields{
		"function": "Control.SetValues",
		"control":  c.desc.Name,
		"values":   values,
	}).Info("Mixer control updated")
	return nil
}

// SetAll writes the same value to every channel.
func (c *Control) SetAll(ctx context.Context, value int32) error {
	return c.SetValues(ctx, broadcast(value, c.channels))
}

func (c *Control) validate(values []int32) error {
	if len(values) != c.channels {
		return fmt.Errorf("%w: %d values for %d channels", ErrInvalidValue, len(values), c.channels)
	}

	for i, v := range values {
		var ok bool
		switch c.desc.Kind {
		case KindBoolean:
			ok = v == 0 || v == 1
		case KindInteger:
			ok = v >= c.desc.Min && v <= c.desc.Max
		case KindList:
			ok = v >= 0 && int(v) < c.desc.ItemCount
		default:
			return fmt.Errorf("%w: control %q of kind %s is read-only", ErrInvalidValue, c.desc.Name, c.desc.Kind)
		}
		if !ok {
			return fmt.Errorf("%w: channel %d value %d out of range for %q", ErrInvalidValue, i, v, c.desc.Name)
		}
	}
	return nil
}

// String renders the control as one line of a control listing.
func (c *Control) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\t%s\t%s\t%dch", c.line, c.desc.Name, c.desc.Kind, c.channels)

	switch c.desc.Kind {
	case KindInteger:
		fmt.Fprintf(&b, "\t[%d..%d]", c.desc.Min, c.desc.Max)
	case KindList:
		fmt.Fprintf(&b, "\t{%s}", strings.Join(c.details.Items, "|"))
	}

	b.WriteString("\t")
	b.WriteString(FormatValues(c.details.Values))
	return b.String()
}

func broadcast(v int32, n int) []int32 {
	values := make([]int32, n)
	for i := range values {
		values[i] = v
	}
	return values
}
