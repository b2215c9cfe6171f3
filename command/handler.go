package command

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Action tells the dispatcher what to do after a handler returns.
type Action int

const (
	// Continue keeps the dispatch loop running.
	Continue Action = iota
	// Stop ends the dispatch loop.
	Stop
)

// String returns the action name.
func (a Action) String() string {
	if a == Stop {
		return "stop"
	}
	return "continue"
}

// Handler processes one opcode frame. A non-nil error ends the loop unless it
// reports channel closure.
type Handler func(ctx context.Context, frame Frame) (Action, error)

// HandlerTable maps opcodes to handlers. Lookup is total: unregistered
// opcodes resolve to the default arm.
type HandlerTable struct {
	mu       sync.RWMutex
	handlers map[Opcode]Handler
	fallback Handler
}

// NewHandlerTable creates a table with the given default arm. A nil default
// uses IgnoreUnsupported.
func NewHandlerTable(fallback Handler) *HandlerTable {
	if fallback == nil {
		fallback = IgnoreUnsupported
	}
	return &HandlerTable{
		handlers: make(map[Opcode]Handler),
		fallback: fallback,
	}
}

// Register installs handler for op, replacing any previous one.
func (t *HandlerTable) Register(op Opcode, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[op] = handler
}

// Lookup returns the handler for op and whether it was explicitly registered.
func (t *HandlerTable) Lookup(op Opcode) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if h, ok := t.handlers[op]; ok {
		return h, true
	}
	return t.fallback, false
}

// Opcodes returns the registered opcodes in ascending order.
func (t *HandlerTable) Opcodes() []Opcode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]Opcode, 0, len(t.handlers))
	for op := range t.handlers {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// IgnoreUnsupported is the default arm: it logs a warning and continues.
func IgnoreUnsupported(ctx context.Context, frame Frame) (Action, error) {
	logrus.WithFields(logrus.Fields{
		"function": "IgnoreUnsupported",
		"session":  SessionID(ctx),
		"opcode":   frame.Opcode,
		"payload":  len(frame.Payload),
	}).Warn("Unsupported opcode, ignoring")
	return Continue, nil
}
