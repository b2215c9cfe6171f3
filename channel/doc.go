// Package channel implements the bidirectional frame transports that carry
// plugin traffic between the agent and its controller.
//
// Every implementation satisfies Channel: whole frames in, whole frames out,
// FIFO per channel, and closure from either side reported as ErrClosed to
// any pending or future Receive. Concurrent Send calls never interleave
// partial frames.
//
// # Implementations
//
//   - Pipe: an in-memory connected pair, used by tests and in-process controllers.
//   - StreamChannel: 4-byte big-endian length-prefixed frames over a net.Conn (TCP).
//   - SecureChannel: wraps any Channel with a Noise handshake and
//     ChaCha20-Poly1305 encrypted frames.
//   - WSChannel: one binary WebSocket message per frame (gorilla/websocket).
//
// Example:
//
//	ch, err := channel.Dial(ctx, "controller.example:7000")
//	if err != nil {
//	    return err
//	}
//	defer ch.Close()
//
//	secure, err := channel.NewSecureChannel(ctx, ch, channel.SecureConfig{
//	    Keys: keys,
//	    Role: noise.Initiator,
//	})
package channel
