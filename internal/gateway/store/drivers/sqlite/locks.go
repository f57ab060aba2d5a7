package sqlite

import (
	"context"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

type locksRepo struct {
	q dbtx
}

func (r *locksRepo) GetLock(ctx context.Context, lockID string) (domain.DistributedLock, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT lock_id, acquired_at_ms, expires_at_ms, holder_node, nonce
		 FROM locks WHERE lock_id = ?`, lockID)

	var (
		l                     domain.DistributedLock
		acquiredMs, expiresMs int64
	)
	err := row.Scan(&l.LockID, &acquiredMs, &expiresMs, &l.HolderNode, &l.Nonce)
	if err != nil {
		return domain.DistributedLock{}, mapNotFound(err)
	}
	l.AcquiredAt = fromMillis(acquiredMs)
	l.ExpiresAt = fromMillis(expiresMs)
	return l, nil
}

func (r *locksRepo) PutLock(ctx context.Context, l domain.DistributedLock) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO locks (lock_id, acquired_at_ms, expires_at_ms, holder_node, nonce)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (lock_id) DO UPDATE SET
		     acquired_at_ms = excluded.acquired_at_ms,
		     expires_at_ms = excluded.expires_at_ms,
		     holder_node = excluded.holder_node,
		     nonce = excluded.nonce`,
		l.LockID, toMillis(l.AcquiredAt), toMillis(l.ExpiresAt), l.HolderNode, l.Nonce,
	)
	return err
}

func (r *locksRepo) DeleteLock(ctx context.Context, lockID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM locks WHERE lock_id = ?`, lockID)
	return err
}

func (r *locksRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM locks WHERE expires_at_ms <= ?`, toMillis(now))
	return err
}
