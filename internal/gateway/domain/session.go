package domain

import "time"

// SessionToken is the payload of the HMAC-signed cross-domain session
// cookie. The CSRF nonce is mirrored into a companion cookie the UI can
// read; state-changing requests must echo it in the X-CSRF-Token header.
type SessionToken struct {
	SessionID     string `json:"sid"`
	SubjectID     string `json:"sub"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	IssuedAt      int64  `json:"iat"`
	ExpiresAt     int64  `json:"exp"`
	CSRFNonce     string `json:"csrf"`
}

// Expired reports whether the session has passed its expiry at now.
func (s SessionToken) Expired(now time.Time) bool {
	return !now.Before(time.Unix(s.ExpiresAt, 0))
}

// Age is how long ago the session token was issued.
func (s SessionToken) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(s.IssuedAt, 0))
}
