package chat

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/opd-ai/remoteagent/command"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPresenter struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingPresenter) Show(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg.Text)
	return nil
}

func (r *recordingPresenter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func startChat(t *testing.T, presenter Presenter) (*Plugin, *channel.PipeEnd, chan error) {
	t.Helper()
	p := New(presenter)
	agent, controller := channel.Pipe()
	t.Cleanup(func() { controller.Close() })

	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(context.Background(), agent) }()

	hs, err := controller.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{command.HandshakeByte}, hs)
	return p, controller, errCh
}

func TestChatMessagesReachPresenter(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPresenter{}
	_, controller, errCh := startChat(t, rec)

	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, []byte("hello"))))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, []byte("wörld"))))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpClose, nil)))

	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"hello", "wörld"}, rec.Messages())
}

func TestChatRejectsInvalidMessages(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPresenter{}
	_, controller, errCh := startChat(t, rec)

	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, []byte{0xff, 0xfe})))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, bytes.Repeat([]byte("a"), limits.MaxChatMessage+1))))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, nil)))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, []byte("ok"))))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpClose, nil)))

	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"ok"}, rec.Messages())
}

func TestChatReply(t *testing.T) {
	ctx := context.Background()
	p, controller, errCh := startChat(t, &recordingPresenter{})

	require.NoError(t, p.Reply(ctx, "on my way"))
	got, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, command.NewFrame(OpMessage, []byte("on my way")), got)

	assert.ErrorIs(t, p.Reply(ctx, ""), limits.ErrFrameEmpty)
	assert.ErrorIs(t, p.Reply(ctx, string([]byte{0xc3})), ErrInvalidText)

	require.NoError(t, controller.Close())
	require.NoError(t, <-errCh)
}

func TestChatReplyBeforeStart(t *testing.T) {
	assert.ErrorIs(t, New(nil).Reply(context.Background(), "hi"), ErrNotStarted)
}

func TestChatUnknownOpcodeContinues(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPresenter{}
	_, controller, errCh := startChat(t, rec)

	require.NoError(t, controller.Send(ctx, []byte{99, 1}))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpMessage, []byte("still here"))))
	require.NoError(t, controller.Send(ctx, command.NewFrame(OpClose, nil)))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("chat did not stop")
	}
	assert.Equal(t, []string{"still here"}, rec.Messages())
}

func TestWriterPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := &WriterPresenter{W: &buf}

	when := time.Date(2024, 1, 2, 13, 4, 5, 0, time.UTC)
	require.NoError(t, p.Show(context.Background(), Message{Text: "hi", Received: when}))
	assert.Equal(t, "[13:04:05] hi\n", buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestLogPresenter(t *testing.T) {
	assert.NoError(t, LogPresenter{}.Show(context.Background(), Message{Text: "x"}))
	assert.Equal(t, Name, New(nil).Name())
}
