package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/pkg/idx"
	"github.com/shopscribe/shopscribe/pkg/slogx"
)

// AuditService is the structured security event sink. Every component emits
// through it; events land in the store (append-only) and mirror to the
// process log. A sink failure never fails the request that produced the
// event.
type AuditService struct {
	Store  store.Store
	Logger *slog.Logger

	now func() time.Time
}

func NewAuditService(st store.Store, logger *slog.Logger) *AuditService {
	return &AuditService{Store: st, Logger: logger, now: time.Now}
}

// Emit stamps id, timestamp and correlation id, persists the event and
// mirrors it to the log at the matching level.
func (s *AuditService) Emit(ctx context.Context, e domain.SecurityEvent) {
	e.ID = idx.New().String()
	e.Timestamp = s.now().UTC()
	if e.CorrelationID == "" {
		e.CorrelationID = slogx.CorrelationID(ctx)
	}
	if e.Level == "" {
		e.Level = domain.EventInfo
	}

	attrs := []any{
		slog.String("event_type", e.EventType),
		slog.String("event_id", e.ID),
	}
	if e.SubjectID != "" {
		attrs = append(attrs, slog.String("subject_id", e.SubjectID))
	}
	if e.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", e.ClientIP))
	}
	if e.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", e.Endpoint))
	}
	for k, v := range e.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}

	l := slogx.FromContext(ctx)
	switch e.Level {
	case domain.EventDebug:
		l.Debug("security_event", attrs...)
	case domain.EventWarn:
		l.Warn("security_event", attrs...)
	case domain.EventError, domain.EventCritical:
		l.Error("security_event", attrs...)
	default:
		l.Info("security_event", attrs...)
	}

	if err := s.Store.SecurityEvents().AppendEvent(ctx, e); err != nil {
		s.Logger.Error("security event append failed",
			"event_type", e.EventType, "error", err)
	}
}

// RecentBySubject exposes the audit trail for a subject. Admin surface.
func (s *AuditService) RecentBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SecurityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.Store.SecurityEvents().ListBySubject(ctx, subjectID, limit)
}
