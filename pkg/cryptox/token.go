package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// GenerateToken creates a cryptographically secure random token of the
// specified byte length. The token is returned as a base64url-encoded string
// (URL-safe, no padding). Returns an error if the random number generator
// fails.
//
// Common sizes:
//   - TokenSize128 (16 bytes): CSRF nonces, lock holder nonces
//   - TokenSize256 (32 bytes): session identifiers (recommended)
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// MustGenerateToken is like GenerateToken but panics on error.
// Use this only during initialization or in contexts where failure is
// unrecoverable.
func MustGenerateToken(size int) string {
	token, err := GenerateToken(size)
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate token: %v", err))
	}
	return token
}

// Fingerprint returns a deterministic SHA-256 fingerprint of a stable
// per-credential identifier, hex encoded (64 chars). Raw credentials must
// never be used as store keys; only their fingerprints are persisted.
func Fingerprint(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// FingerprintPrefix returns the first n hex characters of the fingerprint,
// used where a full fingerprint would be needlessly identifying (behavioral
// observations).
func FingerprintPrefix(identifier string, n int) string {
	fp := Fingerprint(identifier)
	if n <= 0 || n >= len(fp) {
		return fp
	}
	return fp[:n]
}
