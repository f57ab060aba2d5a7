package sqlite

import (
	"context"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

type observationsRepo struct {
	q dbtx
}

func (r *observationsRepo) AppendObservation(ctx context.Context, o domain.BehavioralObservation) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO observations
		     (id, subject_id, client_ip, ts_ms, fingerprint_prefix, risk_score, risk_level, factors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.SubjectID, o.ClientIP, toMillis(o.Timestamp),
		o.FingerprintPrefix, o.RiskScore, string(o.RiskLevel), joinFields(o.Factors),
	)
	return err
}

func (r *observationsRepo) ListRecentBySubject(ctx context.Context, subjectID string, since time.Time, limit int) ([]domain.BehavioralObservation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, subject_id, client_ip, ts_ms, fingerprint_prefix, risk_score, risk_level, factors
		 FROM observations
		 WHERE subject_id = ? AND ts_ms >= ?
		 ORDER BY ts_ms DESC
		 LIMIT ?`,
		subjectID, toMillis(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BehavioralObservation
	for rows.Next() {
		var (
			o       domain.BehavioralObservation
			tsMs    int64
			level   string
			factors string
		)
		if err := rows.Scan(&o.ID, &o.SubjectID, &o.ClientIP, &tsMs,
			&o.FingerprintPrefix, &o.RiskScore, &level, &factors); err != nil {
			return nil, err
		}
		o.Timestamp = fromMillis(tsMs)
		o.RiskLevel = domain.RiskLevel(level)
		o.Factors = splitFields(factors)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *observationsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM observations WHERE ts_ms < ?`, toMillis(cutoff))
	return err
}
