// Package power implements the power-control plugin. The controller sends
// one opcode, the agent performs the matching OS action and the session ends
// after a short grace period.
package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/sirupsen/logrus"
)

// Name is the plugin identifier used by the loader.
const Name = "power"

const (
	// OpShutdown powers the host off.
	OpShutdown command.Opcode = 1
	// OpRestart reboots the host.
	OpRestart command.Opcode = 2
)

// Action is an OS power action.
type Action int

const (
	// Shutdown powers the host off.
	Shutdown Action = iota + 1
	// Restart reboots the host.
	Restart
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Shutdown:
		return "shutdown"
	case Restart:
		return "restart"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ErrNoCommand indicates no command line is configured for an action.
var ErrNoCommand = errors.New("no command configured for power action")

// Executor performs power actions on the host.
type Executor interface {
	Execute(ctx context.Context, action Action) error
}

// CommandExecutor runs a configured command line per action.
type CommandExecutor struct {
	Commands map[Action][]string
}

// NewCommandExecutor returns an executor with the standard shutdown commands.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{Commands: map[Action][]string{
		Shutdown: {"shutdown", "-h", "now"},
		Restart:  {"shutdown", "-r", "now"},
	}}
}

// Execute runs the command for action and reports its combined output on
// failure.
func (e *CommandExecutor) Execute(ctx context.Context, action Action) error {
	argv := e.Commands[action]
	if len(argv) == 0 {
		return fmt.Errorf("%w: %s", ErrNoCommand, action)
	}

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Config configures the plugin.
type Config struct {
	// Grace is the wait after the action before the session ends.
	Grace time.Duration
	// Executor performs the action. Nil uses NewCommandExecutor.
	Executor Executor
}

// Plugin is the power-control plugin.
type Plugin struct {
	cfg Config

	mu      sync.Mutex
	lastErr error
	handled []Action
}

// New creates a power plugin.
func New(cfg Config) *Plugin {
	if cfg.Executor == nil {
		cfg.Executor = NewCommandExecutor()
	}
	if cfg.Grace == 0 {
		cfg.Grace = command.DefaultGrace
	}
	return &Plugin{cfg: cfg}
}

// Name implements command.Plugin.
func (p *Plugin) Name() string {
	return Name
}

// Start sends the handshake, handles exactly one opcode and returns after the
// grace period.
func (p *Plugin) Start(ctx context.Context, ch channel.Channel) error {
	table := command.NewHandlerTable(nil)
	table.Register(OpShutdown, p.handler(Shutdown))
	table.Register(OpRestart, p.handler(Restart))

	d := command.NewDispatcher(ch, table, command.DispatcherConfig{
		Name:  Name,
		Mode:  command.SingleShot,
		Grace: p.cfg.Grace,
	})
	return d.Run(ctx)
}

func (p *Plugin) handler(action Action) command.Handler {
	return func(ctx context.Context, frame command.Frame) (command.Action, error) {
		logger := logrus.WithFields(logrus.Fields{
			"function": "power.handler",
			"session":  command.SessionID(ctx),
			"action":   action.String(),
		})
		logger.Info("Executing power action")

		err := p.cfg.Executor.Execute(ctx, action)

		p.mu.Lock()
		p.handled = append(p.handled, action)
		p.lastErr = err
		p.mu.Unlock()

		if err != nil {
			logger.WithField("error", err.Error()).Error("Power action failed")
		}
		return command.Stop, nil
	}
}

// LastError returns the error of the most recent action, if any.
func (p *Plugin) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Handled returns the actions executed so far.
func (p *Plugin) Handled() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.handled...)
}
