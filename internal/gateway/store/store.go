package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: conditional write conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// a managed document store in production) implement this. It exposes
// sub-repositories to keep concerns tidy and testable, and transactions to
// express the conditional-write discipline every cross-replica invariant
// relies on.
type Store interface {
	Users() Users
	Blacklist() Blacklist
	Locks() Locks
	Observations() Observations
	RateLimits() RateLimits
	SecurityEvents() SecurityEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserBySubject returns a user record by subject id.
	GetUserBySubject(ctx context.Context, subjectID string) (domain.UserRecord, error)

	// CreateUser inserts a new record. Returns ErrAlreadyExists if the
	// subject already has one.
	CreateUser(ctx context.Context, u domain.UserRecord) error

	// ListUsers returns all records ordered by creation date (newest first).
	ListUsers(ctx context.Context) ([]domain.UserRecord, error)

	// UpdateRole mutates the role, recording the acting admin.
	UpdateRole(ctx context.Context, subjectID string, role domain.Role, updatedBy string) error

	// UpdateTier mutates the subscription tier and usage cap.
	UpdateTier(ctx context.Context, subjectID string, tier domain.Tier, maxUsage int, updatedBy string) error

	// IncrementUsage bumps monthly_usage by one for the given billing
	// period, resetting the counter first when the stored period is older.
	// Returns the new usage count.
	IncrementUsage(ctx context.Context, subjectID, billingPeriod string) (int, error)

	// ResetUsage zeroes monthly_usage, recording the acting admin.
	ResetUsage(ctx context.Context, subjectID, updatedBy string) error

	// TouchLastActive bumps last_active_at.
	TouchLastActive(ctx context.Context, subjectID string, at time.Time) error

	// DeleteUser removes the record. The service layer forbids
	// self-deletion before calling this.
	DeleteUser(ctx context.Context, subjectID string) error
}

type Blacklist interface {
	// GetEntry returns the blacklist entry for a fingerprint, expired or not.
	// Expiry is a service-level decision so the lazy delete stays observable.
	GetEntry(ctx context.Context, fingerprint string) (domain.BlacklistEntry, error)

	// PutEntry writes an entry, replacing any previous one for the
	// fingerprint.
	PutEntry(ctx context.Context, e domain.BlacklistEntry) error

	// DeleteEntry removes an entry. Deleting a missing entry is not an error.
	DeleteEntry(ctx context.Context, fingerprint string) error

	// DeleteExpired removes all entries with expires_at <= now (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type Locks interface {
	// GetLock returns the lock record for an id, live or expired.
	GetLock(ctx context.Context, lockID string) (domain.DistributedLock, error)

	// PutLock writes a lock record, replacing any previous one for the id.
	PutLock(ctx context.Context, l domain.DistributedLock) error

	// DeleteLock removes a lock. Deleting a missing lock is not an error.
	DeleteLock(ctx context.Context, lockID string) error

	// DeleteExpired removes all locks with expires_at <= now (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type Observations interface {
	// AppendObservation stores one behavioral data point.
	AppendObservation(ctx context.Context, o domain.BehavioralObservation) error

	// ListRecentBySubject returns the subject's observations since the given
	// time, newest first, capped at limit.
	ListRecentBySubject(ctx context.Context, subjectID string, since time.Time, limit int) ([]domain.BehavioralObservation, error)

	// DeleteOlderThan prunes observations past the retention window.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

type RateLimits interface {
	// IncrementWindow bumps the request count for (client key, window) and
	// returns the new count. The update is a conditional read-modify-write
	// so concurrent replicas never lose increments.
	IncrementWindow(ctx context.Context, clientKey string, windowStart time.Time) (int, error)

	// DeleteStale removes buckets whose window started before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) error
}

type SecurityEvents interface {
	// AppendEvent stores one security event. Events are append-only.
	AppendEvent(ctx context.Context, e domain.SecurityEvent) error

	// ListBySubject returns events for a subject, newest first, capped at
	// limit. Admin/audit surface.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SecurityEvent, error)

	// DeleteOlderThan prunes events past retention, keeping audit-retained
	// event types.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, keepTypes []string) error
}
