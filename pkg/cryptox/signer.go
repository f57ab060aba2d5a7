package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrBadSignature reports a payload whose MAC did not verify.
	ErrBadSignature = errors.New("cryptox: invalid signature")
	// ErrMalformedToken reports a token that is not payload.signature shaped.
	ErrMalformedToken = errors.New("cryptox: malformed signed token")
)

// Signer signs and verifies opaque payloads with HMAC-SHA256. The signing
// key is derived from a master secret via HKDF so that different consumers
// (session tokens, CSRF nonces) can share one configured secret without
// sharing a key.
type Signer struct {
	key []byte
}

// NewSigner derives a 32-byte HMAC key from the master secret and the given
// distinguishing label.
func NewSigner(masterSecret []byte, label string) (*Signer, error) {
	if len(masterSecret) < 32 {
		return nil, fmt.Errorf("cryptox: master secret must be at least 32 bytes, got %d", len(masterSecret))
	}

	r := hkdf.New(sha256.New, masterSecret, nil, []byte(label))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cryptox: key derivation failed: %w", err)
	}

	return &Signer{key: key}, nil
}

// Sign returns "payload.signature", both base64url encoded.
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)

	return base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature over a token produced by Sign and returns the
// payload. Comparison is constant time.
func (s *Signer) Verify(token string) ([]byte, error) {
	payloadPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrMalformedToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, ErrMalformedToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, ErrMalformedToken
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrBadSignature
	}

	return payload, nil
}
