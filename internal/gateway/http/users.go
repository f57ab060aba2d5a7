package http

import (
	"encoding/json"
	"net/http"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/service"
	"github.com/shopscribe/shopscribe/pkg/httpx"
)

type userRequest struct {
	Action       string `json:"action"`
	UserID       string `json:"userId,omitempty"`
	Email        string `json:"email,omitempty"`
	TargetUserID string `json:"targetUserId,omitempty"`
	Role         string `json:"role,omitempty"`
	Tier         string `json:"tier,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

type userResponse struct {
	Success bool                   `json:"success"`
	User    *userView              `json:"user,omitempty"`
	Users   []*userView            `json:"users,omitempty"`
	Usage   *int                   `json:"usage,omitempty"`
	Events  []domain.SecurityEvent `json:"events,omitempty"`
}

// UsersHandler is the user management endpoint. Every action runs through
// the authorization gate with the action as its operation name.
type UsersHandler struct {
	Authz   *service.AuthzService
	Users   *service.UserService
	Audit   *service.AuditService
	Respond *faults.Responder
}

// ServeHTTP dispatches the user management actions.
//
//	@Summary		User management
//	@Description	Self-service usage actions plus admin user administration. Permissions per action; cross-subject targets require ADMIN.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		userRequest	true	"action: get_usage | increment_usage | reset_usage | create_user | get_all_users | update_user_role | update_user_tier | delete_user | list_security_events"
//	@Success		200		{object}	userResponse
//	@Failure		400		{object}	faults.WireError	"Invalid action or arguments"
//	@Failure		403		{object}	faults.WireError	"Permission denied or free-tier cap"
//	@Failure		404		{object}	faults.WireError	"Target not found"
//	@Failure		429		{object}	faults.WireError	"Paid-tier cap or rate limited"
//	@Router			/v1/users [post].
func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := identityFromContext(ctx)
	if !ok {
		h.Respond.Write(w, r, faults.New(faults.KindAuthRequired, "no identity in request"))
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Respond.Write(w, r, faults.Wrap(faults.KindInvalidInput, err, "undecodable user request"))
		return
	}
	if req.UserID != "" && req.UserID != identity.SubjectID {
		h.Respond.Write(w, r, faults.New(faults.KindInvalidInput, "userId does not match authenticated subject"))
		return
	}

	op := service.Operation(req.Action)
	actor, err := h.Authz.Authorize(ctx, identity, op, req.TargetUserID)
	if err != nil {
		h.Respond.Write(w, r, err)
		return
	}

	target := req.TargetUserID
	if target == "" {
		target = identity.SubjectID
	}

	switch op {
	case service.OpGetUsage:
		rec, err := h.Users.Get(ctx, target)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: viewOf(rec)})

	case service.OpIncrementUsage:
		if err := h.Authz.CheckQuota(ctx, actor); err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		usage, err := h.Authz.ConsumeUsage(ctx, actor.SubjectID)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true, Usage: &usage})

	case service.OpCreateUser:
		rec, err := h.Users.Create(ctx, identity, req.Email)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: viewOf(rec)})

	case service.OpGetAllUsers:
		records, err := h.Users.List(ctx)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		views := make([]*userView, 0, len(records))
		for _, rec := range records {
			views = append(views, viewOf(rec))
		}
		httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true, Users: views})

	case service.OpUpdateUserRole:
		h.mutate(w, r, req.TargetUserID, func(target string) error {
			return h.Users.UpdateRole(ctx, identity.SubjectID, target, domain.Role(req.Role))
		})

	case service.OpUpdateUserTier:
		h.mutate(w, r, req.TargetUserID, func(target string) error {
			return h.Users.UpdateTier(ctx, identity.SubjectID, target, domain.Tier(req.Tier))
		})

	case service.OpResetUsage:
		h.mutate(w, r, target, func(target string) error {
			return h.Users.ResetUsage(ctx, identity.SubjectID, target)
		})

	case service.OpDeleteUser:
		h.mutate(w, r, req.TargetUserID, func(target string) error {
			return h.Users.Delete(ctx, target)
		})

	case service.OpListSecurityEvents:
		events, err := h.Audit.RecentBySubject(ctx, target, req.Limit)
		if err != nil {
			h.Respond.Write(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true, Events: events})

	default:
		h.Respond.Write(w, r, faults.New(faults.KindInvalidInput, "unknown action %q", req.Action))
	}
}

// mutate runs an admin mutation that needs an explicit target.
func (h *UsersHandler) mutate(w http.ResponseWriter, r *http.Request, target string, fn func(target string) error) {
	if target == "" {
		h.Respond.Write(w, r, faults.New(faults.KindInvalidInput, "targetUserId is required"))
		return
	}
	if err := fn(target); err != nil {
		h.Respond.Write(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true})
}
