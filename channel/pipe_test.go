package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/remoteagent/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeDeliversInOrder(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	for i := byte(1); i <= 10; i++ {
		require.NoError(t, a.Send(ctx, []byte{i, i + 1}))
	}
	for i := byte(1); i <= 10; i++ {
		frame, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{i, i + 1}, frame)
	}
}

func TestPipeSendCopiesFrame(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	frame := []byte{1, 2, 3}
	require.NoError(t, a.Send(ctx, frame))
	frame[0] = 99

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestPipeCloseUnblocksReceive(t *testing.T) {
	a, b := Pipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("receive did not unblock after close")
	}

	assert.ErrorIs(t, b.Send(context.Background(), []byte{1}), ErrClosed)
	assert.NoError(t, b.Close(), "second close is a no-op")
}

func TestPipeDrainsQueuedFramesAfterClose(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, []byte{7}))
	require.NoError(t, a.Close())

	frame, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, frame)

	_, err = b.Receive(ctx)
	assert.True(t, IsClosed(err))
}

func TestPipeReceiveHonorsContext(t *testing.T) {
	a, b := Pipe()
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeRejectsInvalidFrames(t *testing.T) {
	a, _ := Pipe()
	defer a.Close()

	assert.ErrorIs(t, a.Send(context.Background(), nil), limits.ErrFrameEmpty)
	assert.ErrorIs(t, a.Send(context.Background(), make([]byte, limits.MaxFrame+1)), limits.ErrFrameTooLarge)
}

func TestPipeConcurrentSenders(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	ctx := context.Background()

	const senders, perSender = 4, 50
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_ = a.Send(ctx, []byte{id, id, id})
			}
		}(byte(s))
	}

	for i := 0; i < senders*perSender; i++ {
		frame, err := b.Receive(ctx)
		require.NoError(t, err)
		require.Len(t, frame, 3)
		assert.Equal(t, frame[0], frame[2], "frames must not interleave")
	}
	wg.Wait()
}
