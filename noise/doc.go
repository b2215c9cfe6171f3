// Package noise provides the Noise Protocol Framework handshakes that secure
// the agent's controller channel.
//
// Handshakes use the flynn/noise library with Curve25519, ChaCha20-Poly1305
// and SHA256. Two patterns are supported:
//
//	Pattern │ When to Use                                  │ Messages
//	────────┼──────────────────────────────────────────────┼─────────
//	IK      │ Agent has the controller's static key pinned │ 2
//	XX      │ No key is pinned; keys are exchanged         │ 3
//
// The agent always initiates. Messages alternate: the initiator writes
// message 0, the responder message 1, and so on until both sides report
// completion:
//
//	hs, err := noise.NewIKHandshake(keys, controllerKey, noise.Initiator)
//	msg, _, err := hs.WriteMessage(nil)
//	// send msg, receive reply
//	_, complete, err := hs.ReadMessage(reply)
//	if complete {
//	    send, recv, _ := hs.CipherStates()
//	}
//
// The resulting cipher states are not safe for concurrent use; the secure
// channel serializes access with its own locks.
package noise
