package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/pkg/httpx"
)

// Authenticator enforces credential verification per request: a bearer
// credential in the Authorization header, or the session cookie path with a
// CSRF check on state-changing methods.
type Authenticator struct {
	Verifier *service.VerifierService
	Sessions *service.SessionService
	Respond  *faults.Responder
}

// Middleware authenticates the request and attaches the verified identity to
// the context. Bearer credentials are one-time use; browser traffic rides
// the session cookie.
func (a *Authenticator) Middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bearer := bearerToken(r); bearer != "" {
				a.serveBearer(w, r, next, bearer)
				return
			}
			a.serveCookie(w, r, next)
		})
	}
}

func (a *Authenticator) serveBearer(w http.ResponseWriter, r *http.Request, next http.Handler, bearer string) {
	res, err := a.Verifier.Verify(r.Context(), bearer, httpx.IPKeyExtractor(r), r.UserAgent())
	if err != nil {
		a.Respond.Write(w, r, err)
		return
	}

	next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), res.Identity)))
}

func (a *Authenticator) serveCookie(w http.ResponseWriter, r *http.Request, next http.Handler) {
	cookie, err := r.Cookie(service.SessionCookieName)
	if err != nil {
		a.Respond.Write(w, r, faults.New(faults.KindAuthRequired, "no credential presented"))
		return
	}

	session, rotated, err := a.Sessions.Verify(r.Context(), cookie.Value)
	if err != nil {
		a.Respond.Write(w, r, err)
		return
	}

	if stateChanging(r.Method) {
		if err := checkCSRF(r, session); err != nil {
			a.Respond.Write(w, r, err)
			return
		}
	}

	if rotated != nil {
		auth, csrf := a.Sessions.Cookies(*rotated)
		http.SetCookie(w, auth)
		http.SetCookie(w, csrf)
	}

	identity := domain.Identity{
		SubjectID:     session.SubjectID,
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
		SecurityLevel: domain.SecurityLevelMedium, // session-derived, not freshly verified
	}
	ctx := withIdentity(r.Context(), identity)
	ctx = context.WithValue(ctx, httpx.CtxKeySession, session)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// checkCSRF requires the X-CSRF-Token header to match both the mirror cookie
// and the nonce bound into the signed session.
func checkCSRF(r *http.Request, session domain.SessionToken) error {
	header := r.Header.Get("X-CSRF-Token")
	if header == "" {
		return faults.New(faults.KindPermissionDenied, "missing csrf header")
	}

	mirror, err := r.Cookie(service.CSRFCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(header), []byte(mirror.Value)) != 1 {
		return faults.New(faults.KindPermissionDenied, "csrf header does not match cookie")
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(session.CSRFNonce)) != 1 {
		return faults.New(faults.KindPermissionDenied, "csrf header does not match session")
	}
	return nil
}

func withIdentity(ctx context.Context, identity domain.Identity) context.Context {
	ctx = context.WithValue(ctx, httpx.CtxKeyIdentity, identity)
	return context.WithValue(ctx, httpx.CtxKeySubject, identity.SubjectID)
}

// identityFromContext returns the identity the authn middleware attached.
func identityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(httpx.CtxKeyIdentity).(domain.Identity)
	return id, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func stateChanging(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
