package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	flynn "github.com/flynn/noise"
	"github.com/opd-ai/remoteagent/crypto"
	"github.com/opd-ai/remoteagent/limits"
	"github.com/opd-ai/remoteagent/noise"
	"github.com/sirupsen/logrus"
)

// ErrDecrypt indicates a frame failed authentication.
var ErrDecrypt = errors.New("frame authentication failed")

// SecureConfig configures the Noise handshake performed by NewSecureChannel.
type SecureConfig struct {
	// Keys is the local static key pair.
	Keys *crypto.KeyPair
	// Role selects initiator (agent) or responder (controller).
	Role noise.HandshakeRole
	// PeerKey pins the remote static key. When set on the initiator the IK
	// pattern is used; otherwise XX.
	PeerKey []byte
	// Pattern forces a pattern. Responders must match the initiator's choice.
	Pattern noise.Pattern
}

// SecureChannel encrypts every frame of an inner channel with the cipher
// states of a completed Noise handshake.
type SecureChannel struct {
	inner     Channel
	sendMu    sync.Mutex
	recvMu    sync.Mutex
	send      *flynn.CipherState
	recv      *flynn.CipherState
	remoteKey []byte
}

// NewSecureChannel runs the handshake over inner and returns the secured channel.
// The inner channel is closed if the handshake fails.
func NewSecureChannel(ctx context.Context, inner Channel, cfg SecureConfig) (*SecureChannel, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "NewSecureChannel",
		"role":     cfg.Role.String(),
	})

	hs, err := newHandshake(cfg)
	if err != nil {
		inner.Close()
		return nil, err
	}
	logger = logger.WithField("pattern", string(hs.Pattern()))
	logger.Debug("Starting Noise handshake")

	if err := driveHandshake(ctx, inner, hs); err != nil {
		logger.WithField("error", err.Error()).Error("Noise handshake failed")
		inner.Close()
		return nil, err
	}

	send, recv, err := hs.CipherStates()
	if err != nil {
		inner.Close()
		return nil, err
	}
	remote, err := hs.RemoteStaticKey()
	if err != nil {
		inner.Close()
		return nil, err
	}

	logger.Info("Noise handshake complete")
	return &SecureChannel{inner: inner, send: send, recv: recv, remoteKey: remote}, nil
}

func newHandshake(cfg SecureConfig) (*noise.Handshake, error) {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = noise.PatternXX
		if cfg.Role == noise.Initiator && cfg.PeerKey != nil {
			pattern = noise.PatternIK
		}
	}

	switch pattern {
	case noise.PatternIK:
		if cfg.Role == noise.Responder {
			return noise.NewIKHandshake(cfg.Keys, nil, cfg.Role)
		}
		return noise.NewIKHandshake(cfg.Keys, cfg.PeerKey, cfg.Role)
	case noise.PatternXX:
		return noise.NewXXHandshake(cfg.Keys, cfg.PeerKey, cfg.Role)
	default:
		return nil, fmt.Errorf("unknown handshake pattern: %s", pattern)
	}
}

// driveHandshake alternates handshake messages over inner until completion.
func driveHandshake(ctx context.Context, inner Channel, hs *noise.Handshake) error {
	for i := 0; i < hs.Pattern().MessageCount(); i++ {
		if hs.WritesMessage(i) {
			msg, _, err := hs.WriteMessage(nil)
			if err != nil {
				return err
			}
			if err := inner.Send(ctx, msg); err != nil {
				return fmt.Errorf("send handshake message %d: %w", i, err)
			}
			continue
		}

		msg, err := inner.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receive handshake message %d: %w", i, err)
		}
		if _, _, err := hs.ReadMessage(msg); err != nil {
			return err
		}
	}

	if !hs.IsComplete() {
		return noise.ErrHandshakeNotComplete
	}
	return nil
}

// Send encrypts and sends one frame.
func (s *SecureChannel) Send(ctx context.Context, frame []byte) error {
	if err := limits.ValidateFrame(frame); err != nil {
		return err
	}

	// The lock covers the inner send so nonce order matches wire order.
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	ciphertext, err := s.send.Encrypt(nil, nil, frame)
	if err != nil {
		return fmt.Errorf("encrypt frame: %w", err)
	}
	return s.inner.Send(ctx, ciphertext)
}

// Receive reads and decrypts one frame.
func (s *SecureChannel) Receive(ctx context.Context) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	ciphertext, err := s.inner.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if err := limits.ValidateSecureFrame(ciphertext); err != nil {
		return nil, err
	}

	frame, err := s.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "SecureChannel.Receive",
			"frame_size": len(ciphertext),
		}).Warn("Dropping channel after authentication failure")
		s.inner.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return frame, nil
}

// Close closes the inner channel.
func (s *SecureChannel) Close() error {
	return s.inner.Close()
}

// RemoteKey returns the authenticated static key of the peer.
func (s *SecureChannel) RemoteKey() []byte {
	return append([]byte(nil), s.remoteKey...)
}
