package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSChannelRoundTrip(t *testing.T) {
	accepted := make(chan *WSChannel, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ch, err := UpgradeWebSocket(w, r)
		if err != nil {
			return
		}
		accepted <- ch
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	agent, err := DialWebSocket(context.Background(), url, nil)
	require.NoError(t, err)
	defer agent.Close()

	var controller *WSChannel
	select {
	case controller = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade timed out")
	}

	ctx := context.Background()
	require.NoError(t, agent.Send(ctx, []byte{3}))
	frame, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, frame)

	require.NoError(t, controller.Send(ctx, []byte{2}))
	frame, err = agent.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, frame)

	require.NoError(t, controller.Close())
	_, err = agent.Receive(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
