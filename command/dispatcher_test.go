package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChannel replays a fixed list of receive results and records sends.
type scriptedChannel struct {
	mu       sync.Mutex
	receives []scriptedReceive
	sent     [][]byte
}

type scriptedReceive struct {
	frame []byte
	err   error
}

func (s *scriptedChannel) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), frame...))
	return nil
}

func (s *scriptedChannel) Receive(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.receives) == 0 {
		return nil, channel.ErrClosed
	}
	r := s.receives[0]
	s.receives = s.receives[1:]
	return r.frame, r.err
}

func (s *scriptedChannel) Close() error { return nil }

func (s *scriptedChannel) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

func recordingHandler(seen *[]Opcode, mu *sync.Mutex, action Action) Handler {
	return func(ctx context.Context, f Frame) (Action, error) {
		mu.Lock()
		*seen = append(*seen, f.Opcode)
		mu.Unlock()
		return action, nil
	}
}

func TestDispatcherHandshakePrecedesReplies(t *testing.T) {
	ctx := context.Background()
	agent, controller := channel.Pipe()
	defer controller.Close()

	table := NewHandlerTable(nil)
	var d *Dispatcher
	table.Register(1, func(ctx context.Context, f Frame) (Action, error) {
		return Stop, d.Send(ctx, 1, f.Payload)
	})
	d = NewDispatcher(agent, table, DispatcherConfig{Name: "echo"})

	require.NoError(t, controller.Send(ctx, NewFrame(1, []byte("hi"))))

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	first, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{HandshakeByte}, first)

	reply, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, NewFrame(1, []byte("hi")), reply)

	require.NoError(t, <-errCh)
	assert.Equal(t, StateDone, d.State())
}

func TestDispatcherSendBeforeHandshake(t *testing.T) {
	agent, controller := channel.Pipe()
	defer controller.Close()

	d := NewDispatcher(agent, nil, DispatcherConfig{})
	assert.Equal(t, StateStart, d.State())
	assert.ErrorIs(t, d.Send(context.Background(), 1, nil), ErrNotReady)
}

func TestDispatcherUnmappedOpcodeContinues(t *testing.T) {
	ctx := context.Background()
	ch := &scriptedChannel{receives: []scriptedReceive{
		{frame: []byte{42, 1, 2}},
		{frame: []byte{1}},
		{frame: []byte{1}},
	}}

	var (
		mu   sync.Mutex
		seen []Opcode
	)
	table := NewHandlerTable(nil)
	table.Register(1, recordingHandler(&seen, &mu, Stop))

	d := NewDispatcher(ch, table, DispatcherConfig{Name: "test"})
	require.NoError(t, d.Run(ctx))

	assert.Equal(t, []Opcode{1}, seen)
	assert.Len(t, ch.receives, 1, "loop must stop after the Stop action")
	assert.Equal(t, [][]byte{{HandshakeByte}}, ch.Sent())
}

func TestDispatcherCustomDefaultArm(t *testing.T) {
	var (
		mu       sync.Mutex
		fallback []Opcode
	)
	ch := &scriptedChannel{receives: []scriptedReceive{{frame: []byte{9}}, {frame: []byte{8}}}}
	table := NewHandlerTable(recordingHandler(&fallback, &mu, Continue))

	require.NoError(t, NewDispatcher(ch, table, DispatcherConfig{}).Run(context.Background()))
	assert.Equal(t, []Opcode{9, 8}, fallback)
}

func TestDispatcherIgnoresEmptyFrames(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Opcode
	)
	ch := &scriptedChannel{receives: []scriptedReceive{
		{frame: []byte{}},
		{err: limits.ErrFrameEmpty},
		{frame: []byte{5}},
	}}
	table := NewHandlerTable(nil)
	table.Register(5, recordingHandler(&seen, &mu, Continue))

	require.NoError(t, NewDispatcher(ch, table, DispatcherConfig{}).Run(context.Background()))
	assert.Equal(t, []Opcode{5}, seen)
}

func TestDispatcherChannelClosureIsGraceful(t *testing.T) {
	ctx := context.Background()
	agent, controller := channel.Pipe()

	d := NewDispatcher(agent, nil, DispatcherConfig{})
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	_, err := controller.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, controller.Close())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not exit after channel closure")
	}
}

func TestDispatcherTransportFault(t *testing.T) {
	fault := errors.New("connection reset")
	ch := &scriptedChannel{receives: []scriptedReceive{{err: fault}}}

	err := NewDispatcher(ch, nil, DispatcherConfig{}).Run(context.Background())
	assert.ErrorIs(t, err, fault)
}

func TestDispatcherHandlerErrors(t *testing.T) {
	fault := errors.New("boom")

	t.Run("handler error is returned", func(t *testing.T) {
		ch := &scriptedChannel{receives: []scriptedReceive{{frame: []byte{1}}}}
		table := NewHandlerTable(nil)
		table.Register(1, func(ctx context.Context, f Frame) (Action, error) { return Continue, fault })

		err := NewDispatcher(ch, table, DispatcherConfig{}).Run(context.Background())
		assert.ErrorIs(t, err, fault)
	})

	t.Run("closure inside handler is graceful", func(t *testing.T) {
		ch := &scriptedChannel{receives: []scriptedReceive{{frame: []byte{1}}}}
		table := NewHandlerTable(nil)
		table.Register(1, func(ctx context.Context, f Frame) (Action, error) { return Continue, channel.ErrClosed })

		assert.NoError(t, NewDispatcher(ch, table, DispatcherConfig{}).Run(context.Background()))
	})
}

func TestDispatcherCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	agent, controller := channel.Pipe()
	defer controller.Close()

	d := NewDispatcher(agent, nil, DispatcherConfig{})
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	_, err := controller.Receive(context.Background())
	require.NoError(t, err)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher ignored cancellation")
	}
}

func TestDispatcherSingleShotWaitsGrace(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Opcode
	)
	ch := &scriptedChannel{receives: []scriptedReceive{{frame: []byte{7}}, {frame: []byte{1}}}}
	table := NewHandlerTable(recordingHandler(&seen, &mu, Continue))

	grace := 50 * time.Millisecond
	d := NewDispatcher(ch, table, DispatcherConfig{Mode: SingleShot, Grace: grace})

	start := time.Now()
	require.NoError(t, d.Run(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), grace)
	assert.Equal(t, []Opcode{7}, seen)
	assert.Len(t, ch.receives, 1, "single-shot must handle exactly one opcode")
}

func TestDispatcherRunTwice(t *testing.T) {
	ch := &scriptedChannel{}
	d := NewDispatcher(ch, nil, DispatcherConfig{})
	require.NoError(t, d.Run(context.Background()))
	assert.ErrorIs(t, d.Run(context.Background()), ErrAlreadyRunning)
}

func TestHandlerTableLookup(t *testing.T) {
	table := NewHandlerTable(nil)
	table.Register(3, func(ctx context.Context, f Frame) (Action, error) { return Stop, nil })
	table.Register(1, func(ctx context.Context, f Frame) (Action, error) { return Stop, nil })

	_, ok := table.Lookup(3)
	assert.True(t, ok)

	h, ok := table.Lookup(200)
	assert.False(t, ok)
	require.NotNil(t, h)
	action, err := h(context.Background(), Frame{Opcode: 200})
	assert.NoError(t, err)
	assert.Equal(t, Continue, action)

	assert.Equal(t, []Opcode{1, 3}, table.Opcodes())
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "single-shot", SingleShot.String())
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "stop", Stop.String())
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "start", StateStart.String())
}
