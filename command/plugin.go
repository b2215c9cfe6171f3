package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/remoteagent/channel"
	"github.com/sirupsen/logrus"
)

// Plugin is the capability every agent plugin implements.
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string
	// Start runs the plugin over ch until its protocol ends.
	Start(ctx context.Context, ch channel.Channel) error
}

// Factory creates a fresh plugin instance.
type Factory func() (Plugin, error)

// Loader maps plugin identifiers to factories.
type Loader struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{factories: make(map[string]Factory)}
}

// Register adds a factory under id.
func (l *Loader) Register(id string, factory Factory) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.factories[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, id)
	}
	l.factories[id] = factory
	return nil
}

// IDs returns the registered plugin identifiers in sorted order.
func (l *Loader) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.factories))
	for id := range l.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load creates a new instance of the plugin registered under id.
func (l *Loader) Load(id string) (Plugin, error) {
	l.mu.RLock()
	factory, ok := l.factories[id]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, id)
	}
	return factory()
}

// Session is one running plugin instance.
type Session struct {
	ID     uuid.UUID
	Plugin Plugin

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start creates a plugin instance and runs it on ch in its own goroutine.
// The channel is closed when the plugin returns.
func (l *Loader) Start(ctx context.Context, id string, ch channel.Channel) (*Session, error) {
	plugin, err := l.Load(id)
	if err != nil {
		return nil, err
	}

	ctx, sessionID := WithSession(ctx)
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:     sessionID,
		Plugin: plugin,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "Loader.Start",
		"plugin":   plugin.Name(),
		"session":  sessionID.String(),
	})
	logger.Info("Starting plugin")

	go func() {
		defer close(s.done)
		defer cancel()

		s.err = plugin.Start(ctx, ch)
		if closeErr := ch.Close(); closeErr != nil && !channel.IsClosed(closeErr) {
			logger.WithField("error", closeErr.Error()).Warn("Failed to close plugin channel")
		}

		switch {
		case s.err == nil:
			logger.Info("Plugin finished")
		case errors.Is(s.err, context.Canceled):
			logger.Info("Plugin cancelled")
		default:
			logger.WithField("error", s.err.Error()).Error("Plugin failed")
		}
	}()

	return s, nil
}

// Done is closed once the plugin returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the plugin returns and reports its error.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Stop cancels the plugin and waits for it to return.
func (s *Session) Stop() error {
	s.cancel()
	return s.Wait()
}
