package domain

import "time"

// EventLevel is the severity of a security event.
type EventLevel string

const (
	EventDebug    EventLevel = "DEBUG"
	EventInfo     EventLevel = "INFO"
	EventWarn     EventLevel = "WARN"
	EventError    EventLevel = "ERROR"
	EventCritical EventLevel = "CRITICAL"
)

// Security event types emitted by the gateway core.
const (
	EventAuthSuccess        = "AUTHENTICATION_SUCCESS"
	EventAuthFailure        = "AUTHENTICATION_FAILURE"
	EventTokenReplay        = "TOKEN_REPLAY_DETECTED"
	EventAuthzFailure       = "AUTHZ_FAILURE"
	EventBehavioralAnomaly  = "BEHAVIORAL_ANOMALY"
	EventSessionIssued      = "SESSION_ISSUED"
	EventSessionRevoked     = "SESSION_REVOKED"
	EventRateLimited        = "RATE_LIMIT_EXCEEDED"
	EventPerformanceWarning = "PERFORMANCE_WARNING"
	EventUsageExceeded      = "USAGE_LIMIT_EXCEEDED"
	EventInternalError      = "INTERNAL_ERROR"
)

// AuditRetainedEvents are kept for at least a year; everything else is swept
// with the normal retention window.
var AuditRetainedEvents = map[string]bool{
	EventAuthSuccess:       true,
	EventAuthFailure:       true,
	EventTokenReplay:       true,
	EventAuthzFailure:      true,
	EventBehavioralAnomaly: true,
	EventSessionRevoked:    true,
}

// SecurityEvent is one append-only structured record in the audit trail.
type SecurityEvent struct {
	ID            string
	Timestamp     time.Time
	Level         EventLevel
	EventType     string
	SubjectID     string
	ClientIP      string
	Endpoint      string
	Attributes    map[string]string
	CorrelationID string
}
