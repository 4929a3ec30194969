package util

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoRandomBytes(t *testing.T) {
	t.Run("Generate correct length", func(t *testing.T) {
		bytes, err := CryptoRandomBytes(20)
		require.NoError(t, err)
		assert.Len(t, bytes, 20)
	})

	t.Run("Generate unique values", func(t *testing.T) {
		bytes1, err := CryptoRandomBytes(20)
		require.NoError(t, err)

		bytes2, err := CryptoRandomBytes(20)
		require.NoError(t, err)

		assert.NotEqual(t, bytes1, bytes2, "Random bytes should not be identical")
	})
}

func TestRandomURLToken(t *testing.T) {
	tok, err := RandomURLToken(32)
	require.NoError(t, err)

	decoded, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, decoded, 32)
	assert.NotContains(t, tok, "=")
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")

	other, err := RandomURLToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestSHA256Hex(t *testing.T) {
	// echo -n "hello" | sha256sum
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		SHA256Hex("hello"),
	)
}

func TestFingerprint(t *testing.T) {
	assert.Empty(t, Fingerprint(""))
	assert.Equal(t, "2cf24dba5fb0", Fingerprint("hello"))
	assert.NotContains(t, Fingerprint("refresh-secret"), "refresh-secret")
}
