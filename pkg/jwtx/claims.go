package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the identity-provider access-token claims the gateway cares
// about. The provider issues these; we only ever verify them, so the set is
// read-only and additive changes stay compatible.
type Claims struct {
	jwt.RegisteredClaims

	/* Identity-provider custom fields */

	// Email for the authenticated user.
	Email string `json:"email,omitempty"`

	// EmailVerified reports whether the provider has confirmed the email.
	EmailVerified bool `json:"email_verified,omitempty"`

	// AuthTime is the unix timestamp of the original sign-in, which can be
	// much earlier than iat when tokens are silently refreshed.
	AuthTime int64 `json:"auth_time,omitempty"`

	// SignInMethod records how the user authenticated ("password",
	// "google.com", ...). Mainly for audit events.
	SignInMethod string `json:"sign_in_provider,omitempty"`

	// Custom carries provider-side custom claims (tier hints etc.). Scalar
	// values only.
	Custom map[string]any `json:"custom,omitempty"`
}

// NewIdentityClaims builds minimally-correct claims for tests and token
// minting fixtures.
func NewIdentityClaims(
	subject, email string,
	emailVerified bool,
	issuer string,
	audience []string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         email,
		EmailVerified: emailVerified,
		AuthTime:      now.Unix(),
	}
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	// Check expired (exp)
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	// Check if a valid token isn't used before it is valid (nbf)
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
