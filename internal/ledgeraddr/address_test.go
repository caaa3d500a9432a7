package ledgeraddr

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPublicKeyRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	addr := FromPublicKey(pub)
	assert.Len(t, addr, addressLen)

	got, err := ToPublicKey(addr)
	require.NoError(t, err)
	assert.Equal(t, pub, got)
}

func TestValidRejectsWrongLength(t *testing.T) {
	assert.False(t, Valid("TOOSHORT"))
	assert.False(t, Valid(strings.Repeat("A", 100)))
}

func TestValidRejectsTamperedChecksum(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr := FromPublicKey(pub)

	tampered := []byte(addr)
	if tampered[0] == 'A' {
		tampered[0] = 'B'
	} else {
		tampered[0] = 'A'
	}

	assert.False(t, Valid(string(tampered)))
}

func TestValidAcceptsGenuineAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr := FromPublicKey(pub)
	assert.True(t, Valid(addr))
}
