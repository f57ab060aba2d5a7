package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/pkg/httpx"
)

type sessionRequest struct {
	Action    string `json:"action"`
	IDToken   string `json:"idToken,omitempty"`
	CSRFToken string `json:"csrfToken,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type sessionResponse struct {
	Success   bool      `json:"success"`
	User      *userView `json:"user,omitempty"`
	CSRFToken string    `json:"csrfToken,omitempty"`
}

type userView struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Role          string `json:"role,omitempty"`
	Tier          string `json:"tier,omitempty"`
	MonthlyUsage  int    `json:"monthlyUsage"`
	MaxUsage      int    `json:"maxUsage"`
}

// SessionHandler is the cross-domain session broker endpoint.
type SessionHandler struct {
	Verifier *service.VerifierService
	Sessions *service.SessionService
	Authz    *service.AuthzService
	Respond  *faults.Responder
}

// ServeHTTP dispatches the session actions.
//
//	@Summary		Session broker
//	@Description	Exchanges a fresh identity-provider credential for a shared session cookie (authenticate), re-validates an existing session (verify), or revokes it (logout).
//	@Tags			Session
//	@Accept			json
//	@Produce		json
//	@Param			request	body		sessionRequest	true	"action: authenticate | verify | logout"
//	@Success		200		{object}	sessionResponse
//	@Failure		400		{object}	faults.WireError	"Malformed request"
//	@Failure		401		{object}	faults.WireError	"Invalid, expired, revoked or replayed credential"
//	@Failure		403		{object}	faults.WireError	"Email unverified or CSRF mismatch"
//	@Failure		429		{object}	faults.WireError	"Rate limited"
//	@Router			/v1/session [post].
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Respond.Write(w, r, faults.Wrap(faults.KindInvalidInput, err, "undecodable session request"))
		return
	}

	switch req.Action {
	case "authenticate":
		h.authenticate(w, r, req)
	case "verify":
		h.verifySession(w, r)
	case "logout":
		h.logout(w, r)
	default:
		h.Respond.Write(w, r, faults.New(faults.KindInvalidInput, "unknown action %q", req.Action))
	}
}

func (h *SessionHandler) authenticate(w http.ResponseWriter, r *http.Request, req sessionRequest) {
	ctx := r.Context()

	if req.IDToken == "" {
		h.Respond.Write(w, r, faults.New(faults.KindInvalidInput, "authenticate requires idToken"))
		return
	}

	res, err := h.Verifier.Verify(ctx, req.IDToken, httpx.IPKeyExtractor(r), r.UserAgent())
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	record, err := h.Authz.EnsureUser(ctx, res.Identity)
	if err != nil {
		h.Respond.Write(w, r, err)
		return
	}

	issued, err := h.Sessions.Issue(ctx, res.Identity)
	if err != nil {
		h.Respond.Write(w, r, err)
		return
	}

	auth, csrf := h.Sessions.Cookies(issued)
	http.SetCookie(w, auth)
	http.SetCookie(w, csrf)

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Success:   true,
		User:      viewOf(record),
		CSRFToken: issued.Session.CSRFNonce,
	})
}

func (h *SessionHandler) verifySession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(service.SessionCookieName)
	if err != nil {
		h.Respond.Write(w, r, faults.New(faults.KindAuthRequired, "no session cookie"))
		return
	}

	session, rotated, err := h.Sessions.Verify(r.Context(), cookie.Value)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	nonce := session.CSRFNonce
	if rotated != nil {
		auth, csrf := h.Sessions.Cookies(*rotated)
		http.SetCookie(w, auth)
		http.SetCookie(w, csrf)
		nonce = rotated.Session.CSRFNonce
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Success: true,
		User: &userView{
			UserID:        session.SubjectID,
			Email:         session.Email,
			EmailVerified: session.EmailVerified,
		},
		CSRFToken: nonce,
	})
}

func (h *SessionHandler) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(service.SessionCookieName); err == nil {
		if err := h.Sessions.Logout(r.Context(), cookie.Value); err != nil {
			h.Respond.Write(w, r, err)
			return
		}
	}

	auth, csrf := h.Sessions.ClearCookies()
	http.SetCookie(w, auth)
	http.SetCookie(w, csrf)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Success: true})
}

// writeAuthError special-cases the unverified-email contract: clients key on
// the emailVerified flag, not just the code.
func (h *SessionHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var f *faults.Fault
	if errors.As(err, &f) && f.Kind == faults.KindEmailNotVerified {
		httpx.WriteJSON(w, http.StatusForbidden, map[string]any{
			"error":         "Email verification required",
			"code":          f.Code(),
			"emailVerified": false,
		})
		return
	}
	h.Respond.Write(w, r, err)
}

func viewOf(rec domain.UserRecord) *userView {
	return &userView{
		UserID:        rec.SubjectID,
		Email:         rec.Email,
		EmailVerified: true,
		Role:          string(rec.Role),
		Tier:          string(rec.Tier),
		MonthlyUsage:  rec.MonthlyUsage,
		MaxUsage:      rec.MaxUsage,
	}
}
