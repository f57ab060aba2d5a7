package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
	"github.com/shopscribe/shopscribe/pkg/idx"
)

const (
	SessionCookieName = "ss_session"
	CSRFCookieName    = "ss_csrf"

	// DefaultSessionLifetime matches the cookie max-age.
	DefaultSessionLifetime = time.Hour
)

// IssuedSession is a freshly minted session: the signed cookie value, the
// CSRF nonce the UI mirrors back, and the decoded payload.
type IssuedSession struct {
	Token   string
	Session domain.SessionToken
}

// SessionService is the cross-domain session broker. Subdomains of the
// parent domain share one HMAC-signed cookie instead of re-presenting the
// primary credential per request.
type SessionService struct {
	Signer       *cryptox.Signer
	Store        store.Store
	Replay       *ReplayGuard
	Audit        *AuditService
	CookieDomain string
	Lifetime     time.Duration

	now func() time.Time
}

func NewSessionService(signer *cryptox.Signer, st store.Store, replay *ReplayGuard, audit *AuditService, cookieDomain string) *SessionService {
	return &SessionService{
		Signer:       signer,
		Store:        st,
		Replay:       replay,
		Audit:        audit,
		CookieDomain: cookieDomain,
		Lifetime:     DefaultSessionLifetime,
		now:          time.Now,
	}
}

// Issue mints a session for a verified identity.
func (s *SessionService) Issue(ctx context.Context, identity domain.Identity) (IssuedSession, error) {
	now := s.now().UTC()
	session := domain.SessionToken{
		SessionID:     idx.New().String(),
		SubjectID:     identity.SubjectID,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(s.Lifetime).Unix(),
		CSRFNonce:     cryptox.MustGenerateToken(cryptox.TokenSize128),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return IssuedSession{}, faults.Internal(err, "session encode failed")
	}

	s.Audit.Emit(ctx, domain.SecurityEvent{
		EventType: domain.EventSessionIssued,
		SubjectID: identity.SubjectID,
		Attributes: map[string]string{
			"session_id": session.SessionID,
		},
	})

	return IssuedSession{Token: s.Signer.Sign(payload), Session: session}, nil
}

// Verify re-validates a presented session cookie: signature, expiry,
// revocation and the email_verified flag. When the token has outlived half
// its lifetime a rotated replacement is returned alongside; callers re-set
// the cookies.
func (s *SessionService) Verify(ctx context.Context, token string) (domain.SessionToken, *IssuedSession, error) {
	session, err := s.decode(token)
	if err != nil {
		return domain.SessionToken{}, nil, err
	}

	now := s.now().UTC()
	if session.Expired(now) {
		return domain.SessionToken{}, nil, faults.New(faults.KindAuthExpired, "session %s expired", session.SessionID)
	}
	if !session.EmailVerified {
		return domain.SessionToken{}, nil, faults.New(faults.KindEmailNotVerified, "session %s email unverified", session.SessionID)
	}

	revoked, err := s.isRevoked(ctx, session, now)
	if err != nil {
		return domain.SessionToken{}, nil, faults.Wrap(faults.KindAuthRequired, err, "session revocation check unavailable")
	}
	if revoked {
		return domain.SessionToken{}, nil, faults.New(faults.KindAuthRevoked, "session %s logged out", session.SessionID)
	}

	var rotated *IssuedSession
	if session.Age(now) > s.Lifetime/2 {
		fresh, err := s.Issue(ctx, domain.Identity{
			SubjectID:     session.SubjectID,
			Email:         session.Email,
			EmailVerified: session.EmailVerified,
		})
		if err != nil {
			return domain.SessionToken{}, nil, err
		}
		rotated = &fresh
	}

	return session, rotated, nil
}

// Logout revokes the session server-side by blacklisting its fingerprint for
// the remaining lifetime, so a stolen cookie dies with the logout.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	session, err := s.decode(token)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	remaining := time.Unix(session.ExpiresAt, 0).Sub(now)
	if remaining > 0 {
		err := s.Replay.RecordFor(ctx, sessionFingerprint(session), session.SubjectID,
			domain.BlacklistReasonSessionLogout, remaining)
		if err != nil {
			return err
		}
	}

	s.Audit.Emit(ctx, domain.SecurityEvent{
		EventType: domain.EventSessionRevoked,
		SubjectID: session.SubjectID,
		Attributes: map[string]string{
			"session_id": session.SessionID,
		},
	})
	return nil
}

// Cookies builds the auth cookie and the UI-readable CSRF mirror, both
// scoped to the parent domain, Secure and SameSite=Strict.
func (s *SessionService) Cookies(issued IssuedSession) (auth, csrf *http.Cookie) {
	maxAge := int(s.Lifetime.Seconds())
	auth = &http.Cookie{
		Name:     SessionCookieName,
		Value:    issued.Token,
		Domain:   s.CookieDomain,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	csrf = &http.Cookie{
		Name:     CSRFCookieName,
		Value:    issued.Session.CSRFNonce,
		Domain:   s.CookieDomain,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: false, // the UI reads this to fill X-CSRF-Token
		SameSite: http.SameSiteStrictMode,
	}
	return auth, csrf
}

// ClearCookies builds expired cookies for logout responses.
func (s *SessionService) ClearCookies() (auth, csrf *http.Cookie) {
	auth = &http.Cookie{
		Name: SessionCookieName, Domain: s.CookieDomain, Path: "/",
		MaxAge: -1, Secure: true, HttpOnly: true, SameSite: http.SameSiteStrictMode,
	}
	csrf = &http.Cookie{
		Name: CSRFCookieName, Domain: s.CookieDomain, Path: "/",
		MaxAge: -1, Secure: true, SameSite: http.SameSiteStrictMode,
	}
	return auth, csrf
}

func (s *SessionService) decode(token string) (domain.SessionToken, error) {
	payload, err := s.Signer.Verify(token)
	if err != nil {
		return domain.SessionToken{}, faults.Wrap(faults.KindAuthRequired, err, "session signature rejected")
	}
	var session domain.SessionToken
	if err := json.Unmarshal(payload, &session); err != nil {
		return domain.SessionToken{}, faults.Wrap(faults.KindAuthRequired, err, "session payload undecodable")
	}
	if session.SessionID == "" || session.SubjectID == "" {
		return domain.SessionToken{}, faults.New(faults.KindAuthRequired, "session payload incomplete")
	}
	return session, nil
}

func (s *SessionService) isRevoked(ctx context.Context, session domain.SessionToken, now time.Time) (bool, error) {
	entry, err := s.Store.Blacklist().GetEntry(ctx, sessionFingerprint(session))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !entry.Expired(now), nil
}

func sessionFingerprint(session domain.SessionToken) string {
	return cryptox.Fingerprint("session:" + session.SessionID)
}
