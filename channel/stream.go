package channel

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/remoteagent/limits"
	"github.com/sirupsen/logrus"
)

const (
	// lengthPrefixSize is the size of the big-endian frame length header.
	lengthPrefixSize = 4

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second
)

// StreamChannel carries length-prefixed frames over a stream connection.
//
// Wire format: [length (4 bytes, big-endian)][frame (length bytes)].
type StreamChannel struct {
	conn         net.Conn
	sendMu       sync.Mutex
	recvMu       sync.Mutex
	writeTimeout time.Duration
	maxFrame     int
	closeOnce    sync.Once
	closeErr     error
}

// NewStreamChannel wraps an established connection.
func NewStreamChannel(conn net.Conn) *StreamChannel {
	return &StreamChannel{
		conn:         conn,
		writeTimeout: DefaultWriteTimeout,
		maxFrame:     limits.MaxSecureFrame,
	}
}

// Dial connects to a controller over TCP.
func Dial(ctx context.Context, addr string) (*StreamChannel, error) {
	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"address":  addr,
	}).Info("Dialing controller")

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Dial",
			"address":  addr,
			"error":    err.Error(),
		}).Error("Failed to dial controller")
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStreamChannel(conn), nil
}

// Send writes one length-prefixed frame.
func (s *StreamChannel) Send(ctx context.Context, frame []byte) error {
	if err := limits.ValidateSize(frame, s.maxFrame); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, lengthPrefixSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[lengthPrefixSize:], frame)

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return normalizeError(err)
	}

	// Prefix and payload go out in a single write so a failed write never
	// leaves a header without its frame.
	if _, err := s.conn.Write(buf); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "StreamChannel.Send",
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Warn("Frame write failed")
		return normalizeError(err)
	}
	return nil
}

// Receive reads the next complete frame. Cancelling ctx interrupts the read
// and may leave the stream mid-frame, so callers close the channel afterwards.
func (s *StreamChannel) Receive(ctx context.Context) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, normalizeError(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	frame, err := s.readFrame()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, normalizeError(err)
	}
	return frame, nil
}

// readFrame reads the length header and the full frame body.
func (s *StreamChannel) readFrame() ([]byte, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(s.conn, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if err := limits.ValidateLength(length, s.maxFrame); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, limits.ErrFrameEmpty
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(s.conn, frame); err != nil {
		// A frame cut short by closure is never delivered.
		return nil, err
	}
	return frame, nil
}

// Close closes the underlying connection.
func (s *StreamChannel) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RemoteAddr returns the peer address.
func (s *StreamChannel) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Listener accepts stream channels. Controllers and tests use it as the
// server side of Dial.
type Listener struct {
	listener net.Listener
}

// Listen starts accepting TCP connections on addr.
func Listen(addr string) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{listener: l}, nil
}

// Accept waits for the next connection and wraps it as a StreamChannel.
func (l *Listener) Accept() (*StreamChannel, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, normalizeError(err)
	}
	return NewStreamChannel(conn), nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops the listener.
func (l *Listener) Close() error {
	return l.listener.Close()
}
