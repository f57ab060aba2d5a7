package domain

import (
	"regexp"
	"time"
)

// SecurityLevel is the trust placed in a verified identity, derived from the
// inverse of the behavioral risk level.
type SecurityLevel string

const (
	SecurityLevelLow    SecurityLevel = "LOW"
	SecurityLevelMedium SecurityLevel = "MEDIUM"
	SecurityLevelHigh   SecurityLevel = "HIGH"
)

// subjectIDPattern constrains provider subject ids: 10-128 chars of
// alphanumerics, underscore or dash.
var subjectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{10,128}$`)

// ValidSubjectID reports whether s is an acceptable provider subject id.
func ValidSubjectID(s string) bool {
	return subjectIDPattern.MatchString(s)
}

// Identity is the decoded, verified principal for a single request. It is
// never persisted; every request recomputes it from the presented credential.
type Identity struct {
	SubjectID     string
	CredentialID  string // provider jti, when the credential carries one
	Email         string
	EmailVerified bool
	AuthTime      time.Time // original sign-in, survives silent refreshes
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Audience      []string
	SignInMethod  string
	CustomClaims  map[string]any
	SecurityLevel SecurityLevel
}
