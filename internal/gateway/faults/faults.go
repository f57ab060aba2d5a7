// Package faults is the single path from internal errors to the wire.
// Components return rich *Fault values (or plain errors, which Classify wraps)
// and never format their own client-facing strings. The responder sanitizes
// everything before it leaves the process.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Kind identifies the failure mode. It drives the HTTP status, the wire code
// and the recovery strategy.
type Kind string

const (
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindAuthRequired      Kind = "AUTH_REQUIRED"
	KindAuthExpired       Kind = "AUTH_EXPIRED"
	KindAuthRevoked       Kind = "AUTH_REVOKED"
	KindEmailNotVerified  Kind = "EMAIL_NOT_VERIFIED"
	KindReplayDetected    Kind = "REPLAY_DETECTED"
	KindBehavioralAnomaly Kind = "BEHAVIORAL_ANOMALY"
	KindPermissionDenied  Kind = "PERMISSION_DENIED"
	KindUsageExceeded     Kind = "USAGE_EXCEEDED"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindTimeout           Kind = "TIMEOUT"
	KindUnavailable       Kind = "UNAVAILABLE"
	KindCircuitOpen       Kind = "CIRCUIT_OPEN"
	KindInternal          Kind = "INTERNAL"
)

// Category groups kinds by recovery strategy. SECURITY and COMPLIANCE always
// fail secure; PERFORMANCE and NETWORK may retry; SYSTEM surfaces a generic
// failure.
type Category string

const (
	CategorySecurity    Category = "SECURITY"
	CategoryPerformance Category = "PERFORMANCE"
	CategoryCompliance  Category = "COMPLIANCE"
	CategoryNetwork     Category = "NETWORK"
	CategorySystem      Category = "SYSTEM"
)

// Fault is a classified internal error. Message is internal and may contain
// detail; only the fixed per-kind public string ever reaches a client.
type Fault struct {
	Kind    Kind
	Message string
	ErrorID string
	Err     error

	// status overrides the kind's default HTTP status when non-zero. Used
	// for cases like a paid tier hitting its cap, which answers 429 where
	// the free tier answers 403.
	status int
}

// New builds a fault of the given kind with an internal message. Internal
// faults always carry a generated error id for log/wire correlation.
func New(kind Kind, format string, args ...any) *Fault {
	f := &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
	if kind == KindInternal {
		f.ErrorID = uuid.NewString()
	}
	return f
}

// Wrap builds a fault of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Fault {
	f := New(kind, format, args...)
	f.Err = err
	return f
}

// Internal builds a SYSTEM fault around a cause.
func Internal(err error, format string, args ...any) *Fault {
	return Wrap(KindInternal, err, format, args...)
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// WithStatus overrides the default HTTP status for this fault.
func (f *Fault) WithStatus(status int) *Fault {
	f.status = status
	return f
}

// Category returns the recovery category for the fault's kind.
func (f *Fault) Category() Category {
	switch f.Kind {
	case KindAuthRequired, KindAuthExpired, KindAuthRevoked,
		KindReplayDetected, KindBehavioralAnomaly,
		KindPermissionDenied, KindRateLimited, KindInvalidInput:
		return CategorySecurity
	case KindEmailNotVerified, KindUsageExceeded:
		return CategoryCompliance
	case KindTimeout:
		return CategoryPerformance
	case KindUnavailable:
		return CategoryNetwork
	default:
		return CategorySystem
	}
}

// Status returns the HTTP status code for the fault.
func (f *Fault) Status() int {
	if f.status != 0 {
		return f.status
	}
	switch f.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuthRequired, KindAuthExpired, KindAuthRevoked,
		KindReplayDetected:
		return http.StatusUnauthorized
	case KindEmailNotVerified, KindPermissionDenied, KindUsageExceeded,
		KindBehavioralAnomaly:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindUnavailable, KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable wire code, or "" when the client gets no
// distinct recovery hint. Replay deliberately carries no code so an attacker
// cannot distinguish a consumed token from a bad one.
func (f *Fault) Code() string {
	switch f.Kind {
	case KindAuthExpired:
		return "TOKEN_EXPIRED"
	case KindAuthRevoked:
		return "TOKEN_REVOKED"
	case KindEmailNotVerified:
		return "EMAIL_VERIFICATION_REQUIRED"
	case KindUsageExceeded:
		return "USAGE_LIMIT_REACHED"
	default:
		return ""
	}
}

// FailSafe reports whether the response carries the fail-secure marker,
// meaning the denial may be a protective default rather than a verdict on the
// credential itself.
func (f *Fault) FailSafe() bool {
	switch f.Kind {
	case KindReplayDetected, KindBehavioralAnomaly, KindTimeout,
		KindUnavailable, KindCircuitOpen, KindInternal:
		return true
	}
	return false
}

// Retriable reports whether the recovery strategy for this fault permits a
// retry. Security and compliance faults never retry.
func (f *Fault) Retriable() bool {
	switch f.Category() {
	case CategoryPerformance, CategoryNetwork:
		return true
	}
	return false
}

// Classify normalizes any error into a *Fault. Existing faults pass through,
// context deadline and cancellation map to TIMEOUT, everything else becomes an
// internal fault with a fresh error id.
func Classify(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTimeout, err, "operation deadline exceeded")
	}
	return Internal(err, "unclassified failure")
}
