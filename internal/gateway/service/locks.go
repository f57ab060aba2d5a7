package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
	"github.com/shopscribe/shopscribe/pkg/slogx"
)

const (
	// DefaultLockTTL bounds how long a crashed holder can stall others.
	DefaultLockTTL = 5 * time.Second

	// lockSlowThreshold is where an acquisition becomes a performance event.
	lockSlowThreshold = 5 * time.Second
)

// ErrLockHeld reports a live lock held by someone else. Callers treat any
// acquisition failure as "critical section not entered" and fail secure.
var ErrLockHeld = errors.New("service: lock already held")

// LockService implements cross-replica mutual exclusion on top of the
// store's transactional conditional writes. Expired locks are reclaimable
// immediately; there is no internal wait or retry.
type LockService struct {
	Store  store.Store
	Audit  *AuditService
	NodeID string
	TTL    time.Duration

	now func() time.Time
}

func NewLockService(st store.Store, audit *AuditService, nodeID string) *LockService {
	return &LockService{
		Store:  st,
		Audit:  audit,
		NodeID: nodeID,
		TTL:    DefaultLockTTL,
		now:    time.Now,
	}
}

// Acquire takes the named lock for the service TTL. The whole attempt runs
// in one transaction: pre-read, conditional write, nonce read-back. A nonce
// mismatch after the write means another writer won the race.
func (s *LockService) Acquire(ctx context.Context, lockID string) (domain.DistributedLock, error) {
	return s.AcquireTTL(ctx, lockID, s.TTL)
}

// AcquireTTL is Acquire with an explicit TTL.
func (s *LockService) AcquireTTL(ctx context.Context, lockID string, ttl time.Duration) (domain.DistributedLock, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	start := s.now()
	nonce := cryptox.MustGenerateToken(cryptox.TokenSize128)

	want := domain.DistributedLock{
		LockID:     lockID,
		AcquiredAt: start.UTC(),
		ExpiresAt:  start.UTC().Add(ttl),
		HolderNode: s.NodeID,
		Nonce:      nonce,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.Locks().GetLock(ctx, lockID)
		switch {
		case err == nil:
			if current.Live(start) {
				return ErrLockHeld
			}
			// expired lock, reclaim it
		case errors.Is(err, store.ErrNotFound):
			// free
		default:
			return err
		}

		if err := tx.Locks().PutLock(ctx, want); err != nil {
			return err
		}

		// Read back and verify the nonce survived. Short-circuiting this
		// step reintroduces the lost-holder race the protocol exists for.
		got, err := tx.Locks().GetLock(ctx, lockID)
		if err != nil {
			return err
		}
		if got.Nonce != nonce {
			return ErrLockHeld
		}
		return nil
	})

	elapsed := s.now().Sub(start)
	if elapsed > lockSlowThreshold {
		s.Audit.Emit(ctx, domain.SecurityEvent{
			Level:     domain.EventWarn,
			EventType: domain.EventPerformanceWarning,
			Attributes: map[string]string{
				"operation":  "lock_acquire",
				"lock_id":    lockID,
				"elapsed_ms": fmt.Sprintf("%d", elapsed.Milliseconds()),
			},
		})
	}

	if err != nil {
		return domain.DistributedLock{}, err
	}
	return want, nil
}

// Release deletes the lock. Best effort and idempotent: errors are logged,
// never propagated, and the TTL cleans up whatever release missed.
func (s *LockService) Release(ctx context.Context, lockID string) {
	if err := s.Store.Locks().DeleteLock(ctx, lockID); err != nil {
		slogx.FromContext(ctx).Warn("lock release failed", "lock_id", lockID, "error", err)
	}
}
