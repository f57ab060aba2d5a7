package domain

import "time"

// BlacklistEntry records a consumed credential fingerprint. Entries are
// stored by SHA-256 fingerprint so raw credentials never reach the store,
// and are logically absent once ExpiresAt has passed (lazy deletion on
// access, swept by housekeeping).
type BlacklistEntry struct {
	Fingerprint   string // hex SHA-256
	BlacklistedAt time.Time
	ExpiresAt     time.Time // BlacklistedAt + replay window
	SubjectID     string
	Reason        string
	NodeID        string // replica that consumed the credential
}

// Expired reports whether the entry is logically absent at now.
func (e BlacklistEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Blacklist reasons.
const (
	BlacklistReasonConsumed      = "TOKEN_CONSUMED"
	BlacklistReasonSessionLogout = "SESSION_LOGOUT"
)
