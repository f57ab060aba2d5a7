package faults

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopscribe/shopscribe/pkg/httpx"
)

// WireError is the stable client-facing error shape. Nothing else ever goes
// to the wire on a failure path.
type WireError struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	FailSafe bool   `json:"failSafe,omitempty"`
}

// publicMessage is the fixed client string per kind. Internal fault messages
// never reach the wire; internal faults reference their error id instead.
func publicMessage(f *Fault) string {
	switch f.Kind {
	case KindInvalidInput:
		return "Invalid request"
	case KindNotFound:
		return "Not found"
	case KindConflict:
		return "Conflicting update, retry with fresh state"
	case KindAuthRequired:
		return "Authentication required"
	case KindAuthExpired:
		return "Authentication token expired"
	case KindAuthRevoked:
		return "Authentication token revoked"
	case KindEmailNotVerified:
		return "Email verification required"
	case KindReplayDetected, KindBehavioralAnomaly:
		return "Authentication failed"
	case KindPermissionDenied:
		return "Insufficient permissions"
	case KindUsageExceeded:
		return "Usage limit reached for current billing period"
	case KindRateLimited:
		return "Too many requests"
	case KindTimeout:
		return "Request timed out"
	case KindUnavailable, KindCircuitOpen:
		return "Service temporarily unavailable"
	default:
		if f.ErrorID != "" {
			return "An internal error occurred (ref: " + f.ErrorID + ")"
		}
		return genericMessage
	}
}

// Responder classifies, logs and writes faults in the stable wire shape. It
// is the only component allowed to write error bodies.
type Responder struct {
	Log *slog.Logger
}

func NewResponder(log *slog.Logger) *Responder {
	return &Responder{Log: log}
}

// Write classifies err, logs the internal detail and writes the sanitized
// wire shape. RetryAfter for rate limiting is the caller's concern; use
// WriteRetryAfter for 429s.
func (rp *Responder) Write(w http.ResponseWriter, r *http.Request, err error) {
	f := Classify(err)

	attrs := []any{
		slog.String("kind", string(f.Kind)),
		slog.String("category", string(f.Category())),
		slog.Int("status", f.Status()),
		slog.String("path", r.URL.Path),
	}
	if f.ErrorID != "" {
		attrs = append(attrs, slog.String("error_id", f.ErrorID))
	}
	if f.Err != nil {
		attrs = append(attrs, slog.Any("cause", f.Err))
	}

	switch {
	case f.Status() >= 500:
		rp.Log.ErrorContext(r.Context(), Sanitize(f.Message), attrs...)
	case f.Category() == CategorySecurity:
		rp.Log.WarnContext(r.Context(), Sanitize(f.Message), attrs...)
	default:
		rp.Log.InfoContext(r.Context(), Sanitize(f.Message), attrs...)
	}

	httpx.WriteJSON(w, f.Status(), WireError{
		Error:    publicMessage(f),
		Code:     f.Code(),
		FailSafe: f.FailSafe(),
	})
}

// WriteRetryAfter writes a rate-limit fault with a Retry-After header.
func (rp *Responder) WriteRetryAfter(w http.ResponseWriter, r *http.Request, err error, retryAfter time.Duration) {
	secs := int(retryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	rp.Write(w, r, err)
}
