package power

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu      sync.Mutex
	actions []Action
	err     error
}

func (f *fakeExecutor) Execute(ctx context.Context, action Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return f.err
}

func (f *fakeExecutor) Actions() []Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Action(nil), f.actions...)
}

func runScenario(t *testing.T, exec Executor, opcode byte) (*Plugin, time.Duration) {
	t.Helper()
	ctx := context.Background()
	grace := 40 * time.Millisecond
	p := New(Config{Grace: grace, Executor: exec})

	agent, controller := channel.Pipe()
	defer controller.Close()
	require.NoError(t, controller.Send(ctx, []byte{opcode}))

	start := time.Now()
	require.NoError(t, p.Start(ctx, agent))
	elapsed := time.Since(start)

	hs, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{command.HandshakeByte}, hs)
	assert.GreaterOrEqual(t, elapsed, grace)
	return p, elapsed
}

func TestPowerScenarios(t *testing.T) {
	tests := []struct {
		name   string
		opcode byte
		want   []Action
	}{
		{"shutdown", 1, []Action{Shutdown}},
		{"restart", 2, []Action{Restart}},
		{"unmapped opcode", 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			p, _ := runScenario(t, exec, tt.opcode)
			assert.Equal(t, tt.want, exec.Actions())
			assert.Equal(t, tt.want, p.Handled())
			assert.NoError(t, p.LastError())
		})
	}
}

func TestPowerExecutorFailureIsNotFatal(t *testing.T) {
	fault := errors.New("permission denied")
	exec := &fakeExecutor{err: fault}

	p, _ := runScenario(t, exec, 1)
	assert.ErrorIs(t, p.LastError(), fault)
	assert.Equal(t, []Action{Shutdown}, exec.Actions())
}

func TestPowerChannelClosedBeforeOpcode(t *testing.T) {
	exec := &fakeExecutor{}
	p := New(Config{Grace: time.Hour, Executor: exec})

	agent, controller := channel.Pipe()
	require.NoError(t, controller.Close())

	require.NoError(t, p.Start(context.Background(), agent))
	assert.Empty(t, exec.Actions())
}

func TestCommandExecutor(t *testing.T) {
	ctx := context.Background()
	e := &CommandExecutor{Commands: map[Action][]string{
		Shutdown: {"true"},
		Restart:  {"false"},
	}}

	assert.NoError(t, e.Execute(ctx, Shutdown))
	assert.Error(t, e.Execute(ctx, Restart))
	assert.ErrorIs(t, (&CommandExecutor{}).Execute(ctx, Shutdown), ErrNoCommand)

	defaults := NewCommandExecutor()
	assert.Equal(t, []string{"shutdown", "-h", "now"}, defaults.Commands[Shutdown])
	assert.Equal(t, []string{"shutdown", "-r", "now"}, defaults.Commands[Restart])
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "shutdown", Shutdown.String())
	assert.Equal(t, "restart", Restart.String())
	assert.Equal(t, "action(9)", Action(9).String())
	assert.Equal(t, Name, New(Config{}).Name())
}
