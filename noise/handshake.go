package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/opd-ai/remoteagent/crypto"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrPeerKeyMismatch indicates the remote static key differs from the pinned key
	ErrPeerKeyMismatch = errors.New("remote static key does not match pinned key")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator starts the handshake
	Initiator HandshakeRole = iota
	// Responder responds to handshake initiation
	Responder
)

// String returns the role name used in logs.
func (r HandshakeRole) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Pattern names a supported handshake pattern.
type Pattern string

const (
	// PatternIK requires the initiator to know the responder's static key.
	PatternIK Pattern = "IK"
	// PatternXX exchanges static keys during the handshake.
	PatternXX Pattern = "XX"
)

// MessageCount returns the number of handshake messages for the pattern.
func (p Pattern) MessageCount() int {
	if p == PatternIK {
		return 2
	}
	return 3
}

// Handshake drives one side of a Noise handshake.
type Handshake struct {
	pattern    Pattern
	role       HandshakeRole
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
	pinned     []byte
}

// NewIKHandshake creates an IK handshake. The initiator must supply the
// responder's 32-byte static public key; the responder passes nil.
func NewIKHandshake(keys *crypto.KeyPair, peerPubKey []byte, role HandshakeRole) (*Handshake, error) {
	if role == Initiator && len(peerPubKey) != crypto.KeySize {
		return nil, fmt.Errorf("initiator requires peer public key (32 bytes), got %d", len(peerPubKey))
	}
	return newHandshake(PatternIK, keys, peerPubKey, role)
}

// NewXXHandshake creates an XX handshake. If pinnedKey is non-nil the remote
// static key is verified against it once the handshake completes.
func NewXXHandshake(keys *crypto.KeyPair, pinnedKey []byte, role HandshakeRole) (*Handshake, error) {
	if pinnedKey != nil && len(pinnedKey) != crypto.KeySize {
		return nil, fmt.Errorf("pinned key must be 32 bytes, got %d", len(pinnedKey))
	}
	return newHandshake(PatternXX, keys, pinnedKey, role)
}

func newHandshake(pattern Pattern, keys *crypto.KeyPair, peerPubKey []byte, role HandshakeRole) (*Handshake, error) {
	if keys == nil {
		return nil, errors.New("static key pair is required")
	}

	staticKey := noise.DHKey{
		Private: make([]byte, crypto.KeySize),
		Public:  make([]byte, crypto.KeySize),
	}
	copy(staticKey.Private, keys.Private[:])
	copy(staticKey.Public, keys.Public[:])

	config := noise.Config{
		CipherSuite:   noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Random:        rand.Reader,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	}

	hs := &Handshake{pattern: pattern, role: role}

	switch pattern {
	case PatternIK:
		config.Pattern = noise.HandshakeIK
		if role == Initiator {
			config.PeerStatic = append([]byte(nil), peerPubKey...)
		}
	case PatternXX:
		config.Pattern = noise.HandshakeXX
		if peerPubKey != nil {
			hs.pinned = append([]byte(nil), peerPubKey...)
		}
	default:
		return nil, fmt.Errorf("unknown handshake pattern: %s", pattern)
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}
	hs.state = state
	return hs, nil
}

// Pattern returns the handshake pattern.
func (h *Handshake) Pattern() Pattern {
	return h.pattern
}

// Role returns the local handshake role.
func (h *Handshake) Role() HandshakeRole {
	return h.role
}

// WriteMessage produces the next handshake message carrying payload.
func (h *Handshake) WriteMessage(payload []byte) ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}

	message, cs1, cs2, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("%s write failed: %w", h.role, err)
	}
	if err := h.finish(cs1, cs2); err != nil {
		return nil, false, err
	}
	return message, h.complete, nil
}

// ReadMessage consumes a handshake message from the peer and returns its payload.
func (h *Handshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if h.complete {
		return nil, false, ErrHandshakeComplete
	}

	payload, cs1, cs2, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("%s read failed: %w", h.role, err)
	}
	if err := h.finish(cs1, cs2); err != nil {
		return nil, false, err
	}
	return payload, h.complete, nil
}

// finish records the split cipher states. cs1 always encrypts
// initiator-to-responder traffic.
func (h *Handshake) finish(cs1, cs2 *noise.CipherState) error {
	if cs1 == nil || cs2 == nil {
		return nil
	}

	if h.role == Initiator {
		h.sendCipher, h.recvCipher = cs1, cs2
	} else {
		h.sendCipher, h.recvCipher = cs2, cs1
	}
	h.complete = true

	if h.pinned != nil {
		remote := h.state.PeerStatic()
		if len(remote) != len(h.pinned) || string(remote) != string(h.pinned) {
			return ErrPeerKeyMismatch
		}
	}
	return nil
}

// IsComplete returns true if handshake is finished and cipher states are available.
func (h *Handshake) IsComplete() bool {
	return h.complete
}

// CipherStates returns the send and receive cipher states after a successful handshake.
func (h *Handshake) CipherStates() (*noise.CipherState, *noise.CipherState, error) {
	if !h.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	return h.sendCipher, h.recvCipher, nil
}

// RemoteStaticKey returns a copy of the peer's static public key.
func (h *Handshake) RemoteStaticKey() ([]byte, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}

	remoteKey := h.state.PeerStatic()
	if len(remoteKey) == 0 {
		return nil, errors.New("remote static key not available")
	}
	return append([]byte(nil), remoteKey...), nil
}

// WritesMessage reports whether the local side writes handshake message index i.
func (h *Handshake) WritesMessage(i int) bool {
	return (i%2 == 0) == (h.role == Initiator)
}
