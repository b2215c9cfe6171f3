package channel

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/opd-ai/remoteagent/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamPair returns a dialed agent channel and the accepted controller channel.
func streamPair(t *testing.T) (*StreamChannel, *StreamChannel) {
	t.Helper()
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	accepted := make(chan *StreamChannel, 1)
	go func() {
		ch, err := l.Accept()
		if err == nil {
			accepted <- ch
		}
	}()

	agent, err := Dial(context.Background(), l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { agent.Close() })

	select {
	case controller := <-accepted:
		t.Cleanup(func() { controller.Close() })
		return agent, controller
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
		return nil, nil
	}
}

func TestStreamChannelRoundTrip(t *testing.T) {
	agent, controller := streamPair(t)
	ctx := context.Background()

	require.NoError(t, agent.Send(ctx, []byte{3}))
	require.NoError(t, agent.Send(ctx, []byte("second frame")))

	frame, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, frame)

	frame, err = controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second frame", string(frame))

	large := make([]byte, 32*1024)
	for i := range large {
		large[i] = byte(i)
	}
	require.NoError(t, controller.Send(ctx, large))
	frame, err = agent.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, large, frame)
}

func TestStreamChannelPeerCloseSignalsClosed(t *testing.T) {
	agent, controller := streamPair(t)

	require.NoError(t, controller.Close())
	_, err := agent.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamChannelPartialFrameNotDelivered(t *testing.T) {
	server, client := net.Pipe()
	ch := NewStreamChannel(server)

	go func() {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, 10)
		client.Write(header)
		client.Write([]byte{1, 2, 3})
		client.Close()
	}()

	frame, err := ch.Receive(context.Background())
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStreamChannelRejectsOversizedLength(t *testing.T) {
	server, client := net.Pipe()
	ch := NewStreamChannel(server)
	defer ch.Close()

	go func() {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, limits.MaxSecureFrame+1)
		client.Write(header)
	}()

	_, err := ch.Receive(context.Background())
	assert.ErrorIs(t, err, limits.ErrFrameTooLarge)
}

func TestStreamChannelReceiveCancel(t *testing.T) {
	agent, _ := streamPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := agent.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
