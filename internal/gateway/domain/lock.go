package domain

import "time"

// DistributedLock is a short-lived named lock record in the store. At most
// one live lock exists per LockID; a lock is live iff ExpiresAt > now.
type DistributedLock struct {
	LockID     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	HolderNode string
	Nonce      string // verified by read-back after the acquiring write
}

// Live reports whether the lock is held at now.
func (l DistributedLock) Live(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}
