package command

import (
	"context"
	"testing"

	"github.com/opd-ai/remoteagent/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameAndParse(t *testing.T) {
	wire := NewFrame(7, []byte("abc"))
	assert.Equal(t, []byte{7, 'a', 'b', 'c'}, wire)

	f, err := ParseFrame(wire)
	require.NoError(t, err)
	assert.Equal(t, Opcode(7), f.Opcode)
	assert.Equal(t, []byte("abc"), f.Payload)

	wire[1] = 'z'
	assert.Equal(t, []byte("abc"), f.Payload, "payload must not alias the input")
	assert.Equal(t, []byte{7, 'a', 'b', 'c'}, f.Bytes())
}

func TestParseFrameOpcodeOnly(t *testing.T) {
	f, err := ParseFrame([]byte{2})
	require.NoError(t, err)
	assert.Equal(t, Opcode(2), f.Opcode)
	assert.Empty(t, f.Payload)
}

func TestParseFrameEmpty(t *testing.T) {
	_, err := ParseFrame(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestHandshakeSendsSingleByte(t *testing.T) {
	ctx := context.Background()
	agent, controller := channel.Pipe()
	defer agent.Close()

	require.NoError(t, Handshake(ctx, agent))

	got, err := controller.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{HandshakeByte}, got)
	assert.Equal(t, byte(3), HandshakeByte)
}

func TestHandshakeOnClosedChannel(t *testing.T) {
	agent, _ := channel.Pipe()
	require.NoError(t, agent.Close())

	err := Handshake(context.Background(), agent)
	assert.ErrorIs(t, err, channel.ErrClosed)
}
