package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
)

// UserService carries the user management operations behind the gate. The
// gate has already authorized the actor by the time these run; this layer
// validates inputs and maps store errors to faults.
type UserService struct {
	Store store.Store
	Audit *AuditService

	now func() time.Time
}

func NewUserService(st store.Store, audit *AuditService) *UserService {
	return &UserService{Store: st, Audit: audit, now: time.Now}
}

// Get returns the target's record.
func (s *UserService) Get(ctx context.Context, subjectID string) (domain.UserRecord, error) {
	rec, err := s.Store.Users().GetUserBySubject(ctx, subjectID)
	if err != nil {
		return domain.UserRecord{}, mapUserStoreError(err, subjectID)
	}
	return rec, nil
}

// Create inserts a record for the authenticated identity. The gate enforces
// that subject and actor match; trial defaults apply unless a tier was
// provisioned out of band.
func (s *UserService) Create(ctx context.Context, identity domain.Identity, email string) (domain.UserRecord, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		email = identity.Email
	}

	now := s.now().UTC()
	rec := domain.UserRecord{
		SubjectID:     identity.SubjectID,
		Email:         email,
		Role:          domain.RoleUser,
		Tier:          domain.TierFree,
		MaxUsage:      domain.TierFree.DefaultMaxUsage(),
		BillingPeriod: domain.BillingPeriodOf(now),
		Status:        "active",
		CreatedAt:     now,
		LastActiveAt:  now,
		CreatedBy:     identity.SubjectID,
	}
	if err := s.Store.Users().CreateUser(ctx, rec); err != nil {
		return domain.UserRecord{}, mapUserStoreError(err, identity.SubjectID)
	}
	return rec, nil
}

// List returns every record, newest first. Admin surface.
func (s *UserService) List(ctx context.Context) ([]domain.UserRecord, error) {
	return s.Store.Users().ListUsers(ctx)
}

// UpdateRole mutates the target's role, recording the acting admin.
func (s *UserService) UpdateRole(ctx context.Context, actorSubject, targetSubject string, role domain.Role) error {
	if !role.Valid() {
		return faults.New(faults.KindInvalidInput, "unknown role %q", role)
	}
	if err := s.Store.Users().UpdateRole(ctx, targetSubject, role, actorSubject); err != nil {
		return mapUserStoreError(err, targetSubject)
	}
	return nil
}

// UpdateTier mutates the target's subscription tier and resets the usage cap
// to the tier default.
func (s *UserService) UpdateTier(ctx context.Context, actorSubject, targetSubject string, tier domain.Tier) error {
	if !tier.Valid() {
		return faults.New(faults.KindInvalidInput, "unknown tier %q", tier)
	}
	if err := s.Store.Users().UpdateTier(ctx, targetSubject, tier, tier.DefaultMaxUsage(), actorSubject); err != nil {
		return mapUserStoreError(err, targetSubject)
	}
	return nil
}

// ResetUsage zeroes the target's monthly usage.
func (s *UserService) ResetUsage(ctx context.Context, actorSubject, targetSubject string) error {
	if err := s.Store.Users().ResetUsage(ctx, targetSubject, actorSubject); err != nil {
		return mapUserStoreError(err, targetSubject)
	}
	return nil
}

// Delete removes the target's record. The gate has already refused
// self-deletion.
func (s *UserService) Delete(ctx context.Context, targetSubject string) error {
	if err := s.Store.Users().DeleteUser(ctx, targetSubject); err != nil {
		return mapUserStoreError(err, targetSubject)
	}
	return nil
}

func mapUserStoreError(err error, subjectID string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return faults.New(faults.KindNotFound, "no user record for %s", subjectID)
	case errors.Is(err, store.ErrAlreadyExists):
		return faults.New(faults.KindConflict, "record for %s already exists", subjectID)
	case errors.Is(err, store.ErrConflict):
		return faults.New(faults.KindConflict, "concurrent update on %s", subjectID)
	default:
		return faults.Wrap(faults.KindInternal, err, "user store access failed")
	}
}
