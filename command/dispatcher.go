package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/sirupsen/logrus"
)

// Mode selects how many opcodes a dispatcher handles.
type Mode int

const (
	// Streaming dispatches until Stop, channel closure or cancellation.
	Streaming Mode = iota
	// SingleShot dispatches one opcode, waits the grace period and returns.
	SingleShot
)

// String returns the mode name.
func (m Mode) String() string {
	if m == SingleShot {
		return "single-shot"
	}
	return "streaming"
}

// State is the lifecycle state of a dispatcher.
type State int

const (
	// StateStart is the state before the handshake is sent.
	StateStart State = iota
	// StateReady means the handshake was sent and opcode frames may flow.
	StateReady
	// StateDispatching means the loop is handling frames.
	StateDispatching
	// StateDone means Run has returned.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	default:
		return "start"
	}
}

// DefaultGrace is the post-action wait of single-shot dispatchers.
const DefaultGrace = time.Second

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Name labels log entries, usually the plugin name.
	Name string
	// Mode selects single-shot or streaming dispatch.
	Mode Mode
	// Grace is the wait after a single-shot action. Zero uses DefaultGrace;
	// a negative value disables the wait.
	Grace time.Duration
}

// Dispatcher runs the handshake and opcode loop over one channel.
type Dispatcher struct {
	ch    channel.Channel
	table *HandlerTable
	cfg   DispatcherConfig

	mu      sync.Mutex
	state   State
	running bool
}

// NewDispatcher creates a dispatcher for ch routing frames through table.
func NewDispatcher(ch channel.Channel, table *HandlerTable, cfg DispatcherConfig) *Dispatcher {
	if table == nil {
		table = NewHandlerTable(nil)
	}
	if cfg.Grace == 0 {
		cfg.Grace = DefaultGrace
	}
	return &Dispatcher{ch: ch, table: table, cfg: cfg}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Send writes an opcode frame. It fails with ErrNotReady until the handshake
// has been sent, so no opcode frame can precede it.
func (d *Dispatcher) Send(ctx context.Context, op Opcode, payload []byte) error {
	d.mu.Lock()
	state := d.state
	d.mu.Unlock()
	if state == StateStart {
		return ErrNotReady
	}
	return d.ch.Send(ctx, NewFrame(op, payload))
}

// Run sends the handshake and dispatches frames according to the mode.
// Channel closure ends the loop with a nil error; other transport faults are
// returned. Cancellation returns ctx.Err().
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()
	defer d.setState(StateDone)

	logger := logrus.WithFields(logrus.Fields{
		"function": "Dispatcher.Run",
		"plugin":   d.cfg.Name,
		"session":  SessionID(ctx),
		"mode":     d.cfg.Mode.String(),
	})

	if err := Handshake(ctx, d.ch); err != nil {
		if channel.IsClosed(err) {
			logger.Info("Channel closed before handshake")
			return nil
		}
		logger.WithField("error", err.Error()).Error("Handshake failed")
		return err
	}
	d.setState(StateReady)
	logger.Debug("Handshake sent")

	d.setState(StateDispatching)
	for {
		frame, err := d.next(ctx)
		if err != nil {
			if channel.IsClosed(err) {
				logger.Info("Channel closed, leaving dispatch loop")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithField("error", err.Error()).Error("Receive failed")
			return fmt.Errorf("receive: %w", err)
		}

		action, err := d.dispatch(ctx, frame)
		if err != nil {
			if channel.IsClosed(err) {
				logger.Info("Channel closed while handling opcode")
				return nil
			}
			logger.WithFields(logrus.Fields{
				"opcode": frame.Opcode,
				"error":  err.Error(),
			}).Error("Handler failed")
			return fmt.Errorf("opcode %d: %w", frame.Opcode, err)
		}

		if d.cfg.Mode == SingleShot {
			return Wait(ctx, d.cfg.Grace)
		}
		if action == Stop {
			logger.Debug("Handler requested stop")
			return nil
		}
	}
}

// next receives the next non-empty frame.
func (d *Dispatcher) next(ctx context.Context) (Frame, error) {
	for {
		data, err := d.ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, limits.ErrFrameEmpty) {
				d.warnEmpty(ctx)
				continue
			}
			return Frame{}, err
		}

		frame, err := ParseFrame(data)
		if errors.Is(err, ErrEmptyFrame) {
			d.warnEmpty(ctx)
			continue
		}
		return frame, err
	}
}

func (d *Dispatcher) warnEmpty(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"function": "Dispatcher.next",
		"plugin":   d.cfg.Name,
		"session":  SessionID(ctx),
	}).Warn("Ignoring empty frame")
}

func (d *Dispatcher) dispatch(ctx context.Context, frame Frame) (Action, error) {
	handler, registered := d.table.Lookup(frame.Opcode)

	logrus.WithFields(logrus.Fields{
		"function":   "Dispatcher.dispatch",
		"plugin":     d.cfg.Name,
		"session":    SessionID(ctx),
		"opcode":     frame.Opcode,
		"registered": registered,
	}).Debug("Dispatching opcode")

	return handler(ctx, frame)
}

// Wait blocks for d or until ctx is done. A non-positive duration returns
// immediately.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
