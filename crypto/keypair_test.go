package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	expected, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	require.NoError(t, err)
	assert.Equal(t, expected, kp.Public[:])

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, kp.Public, other.Public)
}

func TestFromSecretKeyRejectsZeroKey(t *testing.T) {
	_, err := FromSecretKey([KeySize]byte{})
	assert.ErrorIs(t, err, ErrZeroKey)
}

func TestParseKeyPairRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	parsed, err := ParseKeyPair(kp.PrivateHex())
	require.NoError(t, err)
	assert.Equal(t, kp.Public, parsed.Public)
	assert.Equal(t, kp.PublicHex(), parsed.PublicHex())
}

func TestParseKeyErrors(t *testing.T) {
	_, err := ParseKey("not-hex")
	assert.Error(t, err)

	_, err = ParseKey("abcd")
	assert.ErrorIs(t, err, ErrKeyLength)
}
