package httpx

import "context"

type ctxKey string

const (
	CtxKeySubject  ctxKey = "subject_id"
	CtxKeyIdentity ctxKey = "identity" // verified identity, set by the authn middleware
	CtxKeySession  ctxKey = "session"  // set instead of identity on the cookie path
)

// SubjectFromContext returns the authenticated subject id, or "" when the
// request is unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySubject).(string); ok {
		return v
	}
	return ""
}
