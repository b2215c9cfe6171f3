package channel

import (
	"context"
	"sync"

	"github.com/opd-ai/remoteagent/limits"
)

// pipeBuffer is the number of frames a pipe end queues before Send blocks.
const pipeBuffer = 64

// pipeState is shared by both ends of a pipe.
type pipeState struct {
	done      chan struct{}
	closeOnce sync.Once
}

// PipeEnd is one side of an in-memory channel pair.
type PipeEnd struct {
	state *pipeState
	in    chan []byte
	out   chan []byte
}

// Pipe returns two connected channel ends. Frames sent on one end are
// received on the other in send order. Closing either end closes both.
func Pipe() (*PipeEnd, *PipeEnd) {
	state := &pipeState{done: make(chan struct{})}
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	return &PipeEnd{state: state, in: ba, out: ab}, &PipeEnd{state: state, in: ab, out: ba}
}

// Send copies frame and queues it for the peer.
func (p *PipeEnd) Send(ctx context.Context, frame []byte) error {
	if err := limits.ValidateFrame(frame); err != nil {
		return err
	}

	select {
	case <-p.state.done:
		return ErrClosed
	default:
	}

	buf := append([]byte(nil), frame...)
	select {
	case p.out <- buf:
		return nil
	case <-p.state.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next queued frame. Frames already queued when the pipe
// closes are still delivered before ErrClosed.
func (p *PipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.state.done:
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends of the pipe. It is safe to call more than once.
func (p *PipeEnd) Close() error {
	p.state.closeOnce.Do(func() { close(p.state.done) })
	return nil
}

// Closed returns a channel that is closed once either end closes.
func (p *PipeEnd) Closed() <-chan struct{} {
	return p.state.done
}
