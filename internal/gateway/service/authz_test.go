package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/faults"
	"github.com/stretchr/testify/require"
)

func TestAuthzServiceAuthorize(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	authz := NewAuthzService(st, testAudit(st))

	user := testIdentity("user_plain_00001")
	admin := testIdentity("user_admin_00001")

	// promote the admin
	_, err := authz.EnsureUser(ctx, admin)
	require.NoError(t, err)
	require.NoError(t, st.Users().UpdateRole(ctx, admin.SubjectID, domain.RoleAdmin, "system"))

	t.Run("first access creates the default record", func(t *testing.T) {
		rec, err := authz.Authorize(ctx, user, OpGetUsage, "")
		require.NoError(t, err)
		require.Equal(t, domain.RoleUser, rec.Role)
		require.Equal(t, domain.TierFree, rec.Tier)
		require.Equal(t, 5, rec.MaxUsage)
	})

	t.Run("plain user cannot run admin operations", func(t *testing.T) {
		_, err := authz.Authorize(ctx, user, OpUpdateUserRole, admin.SubjectID)
		require.Equal(t, faults.KindPermissionDenied, kindOf(t, err))

		// the denial leaves an authz failure in the audit trail
		events, err := st.SecurityEvents().ListBySubject(ctx, user.SubjectID, 10)
		require.NoError(t, err)
		var found bool
		for _, e := range events {
			if e.EventType == domain.EventAuthzFailure {
				found = true
				require.Equal(t, string(OpUpdateUserRole), e.Attributes["requiredPermission"])
			}
		}
		require.True(t, found)
	})

	t.Run("self-scoped operations reject other targets", func(t *testing.T) {
		_, err := authz.Authorize(ctx, user, OpGetUsage, admin.SubjectID)
		require.Equal(t, faults.KindPermissionDenied, kindOf(t, err))
	})

	t.Run("admin may target others", func(t *testing.T) {
		_, err := authz.Authorize(ctx, admin, OpResetUsage, user.SubjectID)
		require.NoError(t, err)
	})

	t.Run("admin cannot delete itself", func(t *testing.T) {
		_, err := authz.Authorize(ctx, admin, OpDeleteUser, admin.SubjectID)
		require.Equal(t, faults.KindPermissionDenied, kindOf(t, err))

		_, err = authz.Authorize(ctx, admin, OpDeleteUser, "")
		require.Equal(t, faults.KindPermissionDenied, kindOf(t, err))

		_, err = authz.Authorize(ctx, admin, OpDeleteUser, user.SubjectID)
		require.NoError(t, err)
	})

	t.Run("unknown operation denies", func(t *testing.T) {
		_, err := authz.Authorize(ctx, user, Operation("mint_money"), "")
		require.Equal(t, faults.KindPermissionDenied, kindOf(t, err))
	})
}

func TestAuthzServiceQuota(t *testing.T) {
	ctx := context.Background()
	st := testStore(t)
	authz := NewAuthzService(st, testAudit(st))

	period := domain.BillingPeriodOf(authz.now())

	t.Run("under cap passes", func(t *testing.T) {
		rec := domain.UserRecord{SubjectID: "user_quota_0001", Tier: domain.TierFree, MonthlyUsage: 4, MaxUsage: 5, BillingPeriod: period}
		require.NoError(t, authz.CheckQuota(ctx, rec))
	})

	t.Run("free tier at cap answers 403", func(t *testing.T) {
		rec := domain.UserRecord{SubjectID: "user_quota_0001", Tier: domain.TierFree, MonthlyUsage: 5, MaxUsage: 5, BillingPeriod: period}
		err := authz.CheckQuota(ctx, rec)
		require.Equal(t, faults.KindUsageExceeded, kindOf(t, err))

		var f *faults.Fault
		require.ErrorAs(t, err, &f)
		require.Equal(t, http.StatusForbidden, f.Status())
		require.Equal(t, "USAGE_LIMIT_REACHED", f.Code())
	})

	t.Run("paid tier at cap answers 429", func(t *testing.T) {
		rec := domain.UserRecord{SubjectID: "user_quota_0002", Tier: domain.TierStarter, MonthlyUsage: 100, MaxUsage: 100, BillingPeriod: period}
		err := authz.CheckQuota(ctx, rec)

		var f *faults.Fault
		require.ErrorAs(t, err, &f)
		require.Equal(t, http.StatusTooManyRequests, f.Status())
	})

	t.Run("enterprise is unmetered", func(t *testing.T) {
		rec := domain.UserRecord{SubjectID: "user_quota_0003", Tier: domain.TierEnterprise, MonthlyUsage: 100000, MaxUsage: 0, BillingPeriod: period}
		require.NoError(t, authz.CheckQuota(ctx, rec))
	})

	t.Run("a rolled-over billing period clears the cap", func(t *testing.T) {
		rec := domain.UserRecord{SubjectID: "user_quota_0004", Tier: domain.TierFree, MonthlyUsage: 5, MaxUsage: 5, BillingPeriod: "2001-01"}
		require.NoError(t, authz.CheckQuota(ctx, rec))
	})

	t.Run("consume usage charges one unit", func(t *testing.T) {
		id := testIdentity("user_quota_0005")
		_, err := authz.EnsureUser(ctx, id)
		require.NoError(t, err)

		n, err := authz.ConsumeUsage(ctx, id.SubjectID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
}
