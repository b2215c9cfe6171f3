package channel

import (
	"context"
	"errors"
	"io"
	"net"
)

// ErrClosed is returned by Send and Receive once either side has closed the channel.
var ErrClosed = errors.New("channel closed")

// Channel is a bidirectional, frame-oriented transport owned by one plugin instance.
type Channel interface {
	// Send delivers one complete frame. Frames from concurrent senders are never interleaved.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks until the next complete frame arrives, the channel closes
	// (ErrClosed) or ctx is done.
	Receive(ctx context.Context) ([]byte, error)

	// Close shuts the channel down and unblocks any pending Receive.
	Close() error
}

// IsClosed reports whether err signals a closed channel.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// normalizeError maps transport level end-of-stream conditions to ErrClosed.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}
