package sqlite

import (
	"context"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

type blacklistRepo struct {
	q dbtx
}

func (r *blacklistRepo) GetEntry(ctx context.Context, fingerprint string) (domain.BlacklistEntry, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT fingerprint, blacklisted_ms, expires_at_ms, subject_id, reason, node_id
		 FROM token_blacklist WHERE fingerprint = ?`, fingerprint)

	var (
		e                        domain.BlacklistEntry
		blacklistedMs, expiresMs int64
	)
	err := row.Scan(&e.Fingerprint, &blacklistedMs, &expiresMs, &e.SubjectID, &e.Reason, &e.NodeID)
	if err != nil {
		return domain.BlacklistEntry{}, mapNotFound(err)
	}
	e.BlacklistedAt = fromMillis(blacklistedMs)
	e.ExpiresAt = fromMillis(expiresMs)
	return e, nil
}

func (r *blacklistRepo) PutEntry(ctx context.Context, e domain.BlacklistEntry) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO token_blacklist (fingerprint, blacklisted_ms, expires_at_ms, subject_id, reason, node_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fingerprint) DO UPDATE SET
		     blacklisted_ms = excluded.blacklisted_ms,
		     expires_at_ms = excluded.expires_at_ms,
		     subject_id = excluded.subject_id,
		     reason = excluded.reason,
		     node_id = excluded.node_id`,
		e.Fingerprint, toMillis(e.BlacklistedAt), toMillis(e.ExpiresAt),
		e.SubjectID, e.Reason, e.NodeID,
	)
	return err
}

func (r *blacklistRepo) DeleteEntry(ctx context.Context, fingerprint string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM token_blacklist WHERE fingerprint = ?`, fingerprint)
	return err
}

func (r *blacklistRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM token_blacklist WHERE expires_at_ms <= ?`, toMillis(now))
	return err
}
