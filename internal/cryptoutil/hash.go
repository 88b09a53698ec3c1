package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashEqual compares two hex digests in constant time.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex returns the lowercase hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the first n hex characters of SHA256Hex(data). n is
// clamped to 1..64.
func Fingerprint(data []byte, n int) string {
	n = min(max(n, 1), sha256.Size*2)
	return SHA256Hex(data)[:n]
}

// SecretDigest is the stored form of a shared secret. Comparing digests
// instead of raw values keeps the comparison constant-time even when the
// lengths differ.
type SecretDigest string

// NewSecretDigest digests secret. The empty secret yields the zero digest,
// which matches nothing.
func NewSecretDigest(secret string) SecretDigest {
	if secret == "" {
		return ""
	}
	return SecretDigest(SHA256Hex([]byte(secret)))
}

// Matches reports whether presented is the digested secret.
func (d SecretDigest) Matches(presented string) bool {
	if d == "" {
		return false
	}
	return HashEqual(SHA256Hex([]byte(presented)), string(d))
}
