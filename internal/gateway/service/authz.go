package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
)

// Operation names a gated action. The permission table is configuration;
// these are the operations the gateway ships with.
type Operation string

const (
	OpGetUsage            Operation = "get_usage"
	OpIncrementUsage      Operation = "increment_usage"
	OpResetUsage          Operation = "reset_usage"
	OpCreateUser          Operation = "create_user"
	OpGetAllUsers         Operation = "get_all_users"
	OpUpdateUserRole      Operation = "update_user_role"
	OpUpdateUserTier      Operation = "update_user_tier"
	OpDeleteUser          Operation = "delete_user"
	OpListSecurityEvents  Operation = "list_security_events"
	OpLookupProduct       Operation = "lookup_product"
	OpGenerateDescription Operation = "generate_description"
)

// Rule is one row of the permission table.
type Rule struct {
	RequiredRole domain.Role

	// SelfOnly restricts the operation to the actor's own record.
	SelfOnly bool

	// ForbidSelf rejects the actor targeting itself (delete_user).
	ForbidSelf bool

	// Metered operations consume monthly usage on success.
	Metered bool
}

// DefaultRules is the shipped permission table.
func DefaultRules() map[Operation]Rule {
	return map[Operation]Rule{
		OpGetUsage:            {RequiredRole: domain.RoleUser, SelfOnly: true},
		OpIncrementUsage:      {RequiredRole: domain.RoleUser, SelfOnly: true, Metered: true},
		OpResetUsage:          {RequiredRole: domain.RoleAdmin},
		OpCreateUser:          {RequiredRole: domain.RoleUser, SelfOnly: true},
		OpGetAllUsers:         {RequiredRole: domain.RoleAdmin},
		OpUpdateUserRole:      {RequiredRole: domain.RoleAdmin},
		OpUpdateUserTier:      {RequiredRole: domain.RoleAdmin},
		OpDeleteUser:          {RequiredRole: domain.RoleAdmin, ForbidSelf: true},
		OpListSecurityEvents:  {RequiredRole: domain.RoleAdmin},
		OpLookupProduct:       {RequiredRole: domain.RoleUser, SelfOnly: true},
		OpGenerateDescription: {RequiredRole: domain.RoleUser, SelfOnly: true, Metered: true},
	}
}

// AuthzService is the role and subscription gate. Authorization reads the
// user record (creating a minimal default on first access), confirms role
// and target constraints, and leaves usage accounting to the handler so a
// failed handler never charges quota.
type AuthzService struct {
	Store store.Store
	Audit *AuditService
	Rules map[Operation]Rule

	now func() time.Time
}

func NewAuthzService(st store.Store, audit *AuditService) *AuthzService {
	return &AuthzService{
		Store: st,
		Audit: audit,
		Rules: DefaultRules(),
		now:   time.Now,
	}
}

// Authorize gates identity performing op against targetSubject (empty means
// self). It returns the actor's user record on success.
func (s *AuthzService) Authorize(ctx context.Context, identity domain.Identity, op Operation, targetSubject string) (domain.UserRecord, error) {
	rule, ok := s.Rules[op]
	if !ok {
		return domain.UserRecord{}, s.deny(ctx, identity, op, "unknown operation")
	}

	actor, err := s.EnsureUser(ctx, identity)
	if err != nil {
		return domain.UserRecord{}, err
	}

	if !actor.Role.AtLeast(rule.RequiredRole) {
		return domain.UserRecord{}, s.deny(ctx, identity, op, "insufficient role")
	}

	targetsOther := targetSubject != "" && targetSubject != identity.SubjectID
	if targetsOther && !actor.Role.AtLeast(domain.RoleAdmin) {
		return domain.UserRecord{}, s.deny(ctx, identity, op, "cross-subject access requires admin")
	}
	if rule.SelfOnly && targetsOther {
		return domain.UserRecord{}, s.deny(ctx, identity, op, "operation is self-scoped")
	}
	if rule.ForbidSelf && !targetsOther {
		return domain.UserRecord{}, s.deny(ctx, identity, op, "operation cannot target self")
	}

	return actor, nil
}

// CheckQuota rejects a metered operation when the actor's monthly cap is
// spent. Free tier answers 403 (upgrade to continue); paid tiers answer 429
// (wait for the next period). Enterprise is unmetered.
func (s *AuthzService) CheckQuota(ctx context.Context, actor domain.UserRecord) error {
	if actor.Tier.Unmetered() {
		return nil
	}

	usage := actor.MonthlyUsage
	if actor.BillingPeriod != domain.BillingPeriodOf(s.now()) {
		usage = 0 // stale record, the period rolled over
	}
	if usage < actor.MaxUsage {
		return nil
	}

	s.Audit.Emit(ctx, domain.SecurityEvent{
		Level:     domain.EventWarn,
		EventType: domain.EventUsageExceeded,
		SubjectID: actor.SubjectID,
		Attributes: map[string]string{
			"tier": string(actor.Tier),
		},
	})

	f := faults.New(faults.KindUsageExceeded, "subject %s at cap %d for tier %s",
		actor.SubjectID, actor.MaxUsage, actor.Tier)
	if actor.Tier != domain.TierFree {
		f = f.WithStatus(http.StatusTooManyRequests)
	}
	return f
}

// ConsumeUsage charges one metered unit. Called by the handler after its
// work succeeds, never by the gate, so failures are not billed.
func (s *AuthzService) ConsumeUsage(ctx context.Context, subjectID string) (int, error) {
	period := domain.BillingPeriodOf(s.now())
	n, err := s.Store.Users().IncrementUsage(ctx, subjectID, period)
	if err != nil {
		return 0, faults.Wrap(faults.KindInternal, err, "usage increment failed")
	}
	return n, nil
}

// EnsureUser loads the identity's record, creating the USER/free default on
// first authenticated access. Creation races between replicas resolve by
// re-reading.
func (s *AuthzService) EnsureUser(ctx context.Context, identity domain.Identity) (domain.UserRecord, error) {
	rec, err := s.Store.Users().GetUserBySubject(ctx, identity.SubjectID)
	if err == nil {
		_ = s.Store.Users().TouchLastActive(ctx, identity.SubjectID, s.now().UTC())
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.UserRecord{}, err
	}

	now := s.now().UTC()
	rec = domain.UserRecord{
		SubjectID:     identity.SubjectID,
		Email:         identity.Email,
		Role:          domain.RoleUser,
		Tier:          domain.TierFree,
		MaxUsage:      domain.TierFree.DefaultMaxUsage(),
		BillingPeriod: domain.BillingPeriodOf(now),
		Status:        "active",
		CreatedAt:     now,
		LastActiveAt:  now,
		CreatedBy:     identity.SubjectID,
	}
	err = s.Store.Users().CreateUser(ctx, rec)
	if errors.Is(err, store.ErrAlreadyExists) {
		return s.Store.Users().GetUserBySubject(ctx, identity.SubjectID)
	}
	if err != nil {
		return domain.UserRecord{}, err
	}
	return rec, nil
}

func (s *AuthzService) deny(ctx context.Context, identity domain.Identity, op Operation, why string) error {
	s.Audit.Emit(ctx, domain.SecurityEvent{
		Level:     domain.EventWarn,
		EventType: domain.EventAuthzFailure,
		SubjectID: identity.SubjectID,
		Attributes: map[string]string{
			"requiredPermission": string(op),
			"reason":             why,
		},
	})
	return faults.New(faults.KindPermissionDenied, "%s denied for %s: %s", op, identity.SubjectID, why)
}
