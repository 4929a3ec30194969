package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// CryptoRandomBytes generates cryptographically secure random bytes
func CryptoRandomBytes(length int64) ([]byte, error) {
	buf := make([]byte, length)
	_, err := rand.Read(buf)
	return buf, err
}

// RandomURLToken returns n random bytes encoded as unpadded base64url,
// suitable for an OAuth state parameter.
func RandomURLToken(n int) (string, error) {
	buf, err := CryptoRandomBytes(int64(n))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SHA256Hex returns the SHA-256 hash of s as a lowercase hex string.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies a secret in logs without revealing it.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	return SHA256Hex(secret)[:12]
}
