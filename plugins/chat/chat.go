// Package chat implements the chat plugin: controller messages are shown to
// the local user through a Presenter and replies travel back on the same
// channel.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/sirupsen/logrus"
)

// Name is the plugin identifier used by the loader.
const Name = "chat"

const (
	// OpMessage carries UTF-8 text in either direction.
	OpMessage command.Opcode = 1
	// OpClose ends the chat session.
	OpClose command.Opcode = 2
)

var (
	// ErrInvalidText indicates a message that is not valid UTF-8.
	ErrInvalidText = errors.New("chat message is not valid UTF-8")

	// ErrNotStarted indicates Reply was called before the session started.
	ErrNotStarted = errors.New("chat session not started")
)

// Message is one chat message received from the controller.
type Message struct {
	Text     string
	Received time.Time
}

// Presenter shows messages to the local user.
type Presenter interface {
	Show(ctx context.Context, msg Message) error
}

// LogPresenter presents messages through the logger.
type LogPresenter struct{}

// Show implements Presenter.
func (LogPresenter) Show(ctx context.Context, msg Message) error {
	logrus.WithFields(logrus.Fields{
		"function": "LogPresenter.Show",
		"session":  command.SessionID(ctx),
		"text":     msg.Text,
	}).Info("Chat message received")
	return nil
}

// WriterPresenter prints messages to a writer, one per line.
type WriterPresenter struct {
	mu sync.Mutex
	W  io.Writer
}

// Show implements Presenter.
func (p *WriterPresenter) Show(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.W, "[%s] %s\n", msg.Received.Format("15:04:05"), msg.Text)
	return err
}

// Plugin is the chat plugin.
type Plugin struct {
	presenter Presenter

	mu         sync.Mutex
	dispatcher *command.Dispatcher
}

// New creates a chat plugin. A nil presenter uses LogPresenter.
func New(presenter Presenter) *Plugin {
	if presenter == nil {
		presenter = LogPresenter{}
	}
	return &Plugin{presenter: presenter}
}

// Name implements command.Plugin.
func (p *Plugin) Name() string {
	return Name
}

// Start runs the chat session until the controller closes it.
func (p *Plugin) Start(ctx context.Context, ch channel.Channel) error {
	table := command.NewHandlerTable(nil)
	table.Register(OpMessage, p.handleMessage)
	table.Register(OpClose, p.handleClose)

	d := command.NewDispatcher(ch, table, command.DispatcherConfig{
		Name: Name,
		Mode: command.Streaming,
	})

	p.mu.Lock()
	p.dispatcher = d
	p.mu.Unlock()

	return d.Run(ctx)
}

func (p *Plugin) handleMessage(ctx context.Context, frame command.Frame) (command.Action, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "chat.handleMessage",
		"session":  command.SessionID(ctx),
		"size":     len(frame.Payload),
	})

	if err := validateText(frame.Payload); err != nil {
		logger.WithField("error", err.Error()).Warn("Rejecting chat message")
		return command.Continue, nil
	}

	msg := Message{Text: string(frame.Payload), Received: time.Now()}
	if err := p.presenter.Show(ctx, msg); err != nil {
		logger.WithField("error", err.Error()).Warn("Presenter failed to show message")
	}
	return command.Continue, nil
}

func (p *Plugin) handleClose(ctx context.Context, frame command.Frame) (command.Action, error) {
	logrus.WithFields(logrus.Fields{
		"function": "chat.handleClose",
		"session":  command.SessionID(ctx),
	}).Info("Controller closed chat")
	return command.Stop, nil
}

// Reply sends text back to the controller.
func (p *Plugin) Reply(ctx context.Context, text string) error {
	payload := []byte(text)
	if err := validateText(payload); err != nil {
		return err
	}

	p.mu.Lock()
	d := p.dispatcher
	p.mu.Unlock()
	if d == nil {
		return ErrNotStarted
	}
	return d.Send(ctx, OpMessage, payload)
}

func validateText(text []byte) error {
	if err := limits.ValidateSize(text, limits.MaxChatMessage); err != nil {
		return err
	}
	if !utf8.Valid(text) {
		return ErrInvalidText
	}
	return nil
}
