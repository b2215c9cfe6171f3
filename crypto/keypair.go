// Package crypto implements the static key material used by the secure
// controller channel.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", keys.PublicHex())
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of Curve25519 public and private keys.
const KeySize = 32

var (
	// ErrZeroKey indicates an all-zero private key was supplied.
	ErrZeroKey = errors.New("invalid secret key: all zeros")

	// ErrKeyLength indicates an encoded key did not decode to KeySize bytes.
	ErrKeyLength = errors.New("invalid key length")
)

// KeyPair represents a Curve25519 static key pair used for Noise handshakes.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair creates a new random Curve25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var secret [KeySize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("failed to read random key: %w", err)
	}

	keyPair, err := FromSecretKey(secret)
	ZeroBytes(secret[:])
	if err != nil {
		return nil, err
	}
	return keyPair, nil
}

// FromSecretKey derives the public key for an existing private key.
func FromSecretKey(secretKey [KeySize]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, ErrZeroKey
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], public)
	return keyPair, nil
}

// PublicHex returns the public key encoded as lowercase hex.
func (kp *KeyPair) PublicHex() string {
	return hex.EncodeToString(kp.Public[:])
}

// PrivateHex returns the private key encoded as lowercase hex.
func (kp *KeyPair) PrivateHex() string {
	return hex.EncodeToString(kp.Private[:])
}

// ParseKey decodes a hex encoded 32-byte key.
func ParseKey(encoded string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: got %d bytes, want %d", ErrKeyLength, len(raw), KeySize)
	}
	copy(key[:], raw)
	ZeroBytes(raw)
	return key, nil
}

// ParseKeyPair rebuilds a key pair from a hex encoded private key.
func ParseKeyPair(encodedPrivate string) (*KeyPair, error) {
	secret, err := ParseKey(encodedPrivate)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(secret[:])
	return FromSecretKey(secret)
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
