package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
)

type securityEventsRepo struct {
	q dbtx
}

func (r *securityEventsRepo) AppendEvent(ctx context.Context, e domain.SecurityEvent) error {
	attrs := "{}"
	if len(e.Attributes) > 0 {
		b, err := json.Marshal(e.Attributes)
		if err != nil {
			return err
		}
		attrs = string(b)
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO security_events
		     (id, ts_ms, level, event_type, subject_id, client_ip, endpoint, attributes, correlation_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, toMillis(e.Timestamp), string(e.Level), e.EventType,
		e.SubjectID, e.ClientIP, e.Endpoint, attrs, e.CorrelationID,
	)
	return err
}

func (r *securityEventsRepo) ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SecurityEvent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, ts_ms, level, event_type, subject_id, client_ip, endpoint, attributes, correlation_id
		 FROM security_events
		 WHERE subject_id = ?
		 ORDER BY ts_ms DESC
		 LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SecurityEvent
	for rows.Next() {
		var (
			e     domain.SecurityEvent
			tsMs  int64
			level string
			attrs string
		)
		if err := rows.Scan(&e.ID, &tsMs, &level, &e.EventType,
			&e.SubjectID, &e.ClientIP, &e.Endpoint, &attrs, &e.CorrelationID); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(tsMs)
		e.Level = domain.EventLevel(level)
		if attrs != "" && attrs != "{}" {
			if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *securityEventsRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, keepTypes []string) error {
	if len(keepTypes) == 0 {
		_, err := r.q.ExecContext(ctx,
			`DELETE FROM security_events WHERE ts_ms < ?`, toMillis(cutoff))
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keepTypes)), ", ")
	args := make([]any, 0, len(keepTypes)+1)
	args = append(args, toMillis(cutoff))
	for _, t := range keepTypes {
		args = append(args, t)
	}

	_, err := r.q.ExecContext(ctx,
		`DELETE FROM security_events WHERE ts_ms < ? AND event_type NOT IN (`+placeholders+`)`,
		args...)
	return err
}
