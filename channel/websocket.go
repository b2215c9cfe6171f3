package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/sirupsen/logrus"
)

// WSChannel carries one frame per binary WebSocket message.
type WSChannel struct {
	conn         *websocket.Conn
	sendMu       sync.Mutex
	recvMu       sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewWSChannel wraps an established WebSocket connection.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	conn.SetReadLimit(limits.MaxSecureFrame)
	return &WSChannel{conn: conn, writeTimeout: DefaultWriteTimeout}
}

// DialWebSocket connects to a controller WebSocket endpoint (ws:// or wss://).
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WSChannel, error) {
	logrus.WithFields(logrus.Fields{
		"function": "DialWebSocket",
		"url":      url,
	}).Info("Dialing controller WebSocket")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewWSChannel(conn), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// UpgradeWebSocket upgrades an HTTP request to a WSChannel. Controllers use it
// to accept agents.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WSChannel, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewWSChannel(conn), nil
}

// Send writes frame as one binary message.
func (w *WSChannel) Send(ctx context.Context, frame []byte) error {
	if err := limits.ValidateSize(frame, limits.MaxSecureFrame); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	deadline := time.Now().Add(w.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return w.mapError(err)
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return w.mapError(err)
	}
	return nil
}

// Receive returns the payload of the next binary message. Text messages are skipped.
func (w *WSChannel) Receive(ctx context.Context) ([]byte, error) {
	w.recvMu.Lock()
	defer w.recvMu.Unlock()

	if err := w.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, w.mapError(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = w.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, w.mapError(err)
		}
		if messageType != websocket.BinaryMessage {
			logrus.WithFields(logrus.Fields{
				"function":     "WSChannel.Receive",
				"message_type": messageType,
			}).Debug("Ignoring non-binary WebSocket message")
			continue
		}
		if len(data) == 0 {
			return nil, limits.ErrFrameEmpty
		}
		return data, nil
	}
}

// Close sends a close message and closes the connection.
func (w *WSChannel) Close() error {
	w.closeOnce.Do(func() {
		w.sendMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.sendMu.Unlock()
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *WSChannel) mapError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}
	return normalizeError(err)
}
