package command

import (
	"context"
	"fmt"

	"github.com/opd-ai/remoteagent/channel"
)

// HandshakeByte is the single byte every plugin sends before any opcode frame.
const HandshakeByte byte = 3

// Opcode identifies a command within a plugin's protocol.
type Opcode byte

// Frame is one decoded command frame.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// NewFrame returns the wire form of an opcode frame: the opcode byte
// followed by the payload.
func NewFrame(op Opcode, payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(op)
	copy(buf[1:], payload)
	return buf
}

// Bytes returns the wire form of f.
func (f Frame) Bytes() []byte {
	return NewFrame(f.Opcode, f.Payload)
}

// ParseFrame decodes a received frame. The payload is copied.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	return Frame{
		Opcode:  Opcode(data[0]),
		Payload: append([]byte(nil), data[1:]...),
	}, nil
}

// Handshake sends the handshake frame on ch.
func Handshake(ctx context.Context, ch channel.Channel) error {
	if err := ch.Send(ctx, []byte{HandshakeByte}); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	return nil
}
