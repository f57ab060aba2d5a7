package sqlite

import (
	"context"
	"time"
)

type rateLimitsRepo struct {
	q dbtx
}

// IncrementWindow is the conditional read-modify-write backing the shared
// sliding-window limiter. The upsert-and-return runs as one statement, so
// concurrent replicas can never lose an increment.
func (r *rateLimitsRepo) IncrementWindow(ctx context.Context, clientKey string, windowStart time.Time) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`INSERT INTO rate_limits (client_key, window_start_ms, count)
		 VALUES (?, ?, 1)
		 ON CONFLICT (client_key, window_start_ms) DO UPDATE SET count = count + 1
		 RETURNING count`,
		clientKey, toMillis(windowStart),
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *rateLimitsRepo) DeleteStale(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE window_start_ms < ?`, toMillis(cutoff))
	return err
}
