package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
	"github.com/shopscribe/shopscribe/internal/gateway/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func testUser(subject string) domain.UserRecord {
	now := time.Now().UTC()
	return domain.UserRecord{
		SubjectID:     subject,
		Email:         subject + "@example.test",
		Role:          domain.RoleUser,
		Tier:          domain.TierFree,
		MaxUsage:      5,
		BillingPeriod: domain.BillingPeriodOf(now),
		Status:        "active",
		CreatedAt:     now,
		LastActiveAt:  now,
	}
}

func TestUsersRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	t.Run("create and get round trip", func(t *testing.T) {
		u := testUser("user_alpha_0001")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		got, err := st.Users().GetUserBySubject(ctx, u.SubjectID)
		require.NoError(t, err)
		require.Equal(t, u.Email, got.Email)
		require.Equal(t, domain.RoleUser, got.Role)
		require.Equal(t, domain.TierFree, got.Tier)
		require.Equal(t, 0, got.MonthlyUsage)
	})

	t.Run("duplicate create reports already exists", func(t *testing.T) {
		u := testUser("user_alpha_0001")
		require.ErrorIs(t, st.Users().CreateUser(ctx, u), store.ErrAlreadyExists)
	})

	t.Run("missing subject reports not found", func(t *testing.T) {
		_, err := st.Users().GetUserBySubject(ctx, "user_nobody_0000")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("increment usage counts within the period", func(t *testing.T) {
		period := domain.BillingPeriodOf(time.Now().UTC())

		n, err := st.Users().IncrementUsage(ctx, "user_alpha_0001", period)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = st.Users().IncrementUsage(ctx, "user_alpha_0001", period)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})

	t.Run("increment usage rolls over a new period", func(t *testing.T) {
		n, err := st.Users().IncrementUsage(ctx, "user_alpha_0001", "2099-01")
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("reset usage zeroes the counter", func(t *testing.T) {
		require.NoError(t, st.Users().ResetUsage(ctx, "user_alpha_0001", "admin_root_0001"))

		got, err := st.Users().GetUserBySubject(ctx, "user_alpha_0001")
		require.NoError(t, err)
		require.Equal(t, 0, got.MonthlyUsage)
		require.Equal(t, "admin_root_0001", got.UpdatedBy)
	})

	t.Run("update role records the actor", func(t *testing.T) {
		require.NoError(t, st.Users().UpdateRole(ctx, "user_alpha_0001", domain.RoleAdmin, "admin_root_0001"))

		got, err := st.Users().GetUserBySubject(ctx, "user_alpha_0001")
		require.NoError(t, err)
		require.Equal(t, domain.RoleAdmin, got.Role)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		require.NoError(t, st.Users().CreateUser(ctx, testUser("user_beta_00001")))
		require.NoError(t, st.Users().DeleteUser(ctx, "user_beta_00001"))

		_, err := st.Users().GetUserBySubject(ctx, "user_beta_00001")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, st.Users().DeleteUser(ctx, "user_beta_00001"), store.ErrNotFound)
	})
}

func TestBlacklistRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	entry := domain.BlacklistEntry{
		Fingerprint:   "deadbeef",
		BlacklistedAt: now,
		ExpiresAt:     now.Add(5 * time.Minute),
		SubjectID:     "user_alpha_0001",
		Reason:        domain.BlacklistReasonConsumed,
		NodeID:        "node-1",
	}

	t.Run("put and get", func(t *testing.T) {
		require.NoError(t, st.Blacklist().PutEntry(ctx, entry))

		got, err := st.Blacklist().GetEntry(ctx, "deadbeef")
		require.NoError(t, err)
		require.Equal(t, entry.SubjectID, got.SubjectID)
		require.False(t, got.Expired(now))
		require.True(t, got.Expired(now.Add(6*time.Minute)))
	})

	t.Run("missing fingerprint reports not found", func(t *testing.T) {
		_, err := st.Blacklist().GetEntry(ctx, "cafef00d")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, st.Blacklist().DeleteEntry(ctx, "deadbeef"))
		require.NoError(t, st.Blacklist().DeleteEntry(ctx, "deadbeef"))
	})

	t.Run("delete expired sweeps old entries", func(t *testing.T) {
		old := entry
		old.Fingerprint = "01dbeef0"
		old.ExpiresAt = now.Add(-time.Minute)
		require.NoError(t, st.Blacklist().PutEntry(ctx, old))

		require.NoError(t, st.Blacklist().DeleteExpired(ctx, now))

		_, err := st.Blacklist().GetEntry(ctx, "01dbeef0")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestLocksRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	l := domain.DistributedLock{
		LockID:     "token_check:deadbeef",
		AcquiredAt: now,
		ExpiresAt:  now.Add(5 * time.Second),
		HolderNode: "node-1",
		Nonce:      "nonce-1",
	}

	t.Run("put, get, replace", func(t *testing.T) {
		require.NoError(t, st.Locks().PutLock(ctx, l))

		got, err := st.Locks().GetLock(ctx, l.LockID)
		require.NoError(t, err)
		require.Equal(t, "nonce-1", got.Nonce)
		require.True(t, got.Live(now))

		l2 := l
		l2.Nonce = "nonce-2"
		require.NoError(t, st.Locks().PutLock(ctx, l2))

		got, err = st.Locks().GetLock(ctx, l.LockID)
		require.NoError(t, err)
		require.Equal(t, "nonce-2", got.Nonce)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, st.Locks().DeleteLock(ctx, l.LockID))
		require.NoError(t, st.Locks().DeleteLock(ctx, l.LockID))

		_, err := st.Locks().GetLock(ctx, l.LockID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestObservationsRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	for i := range 5 {
		o := domain.BehavioralObservation{
			ID:                time.Now().Format("150405.000") + string(rune('a'+i)),
			SubjectID:         "user_alpha_0001",
			ClientIP:          "203.0.113.1",
			Timestamp:         now.Add(-time.Duration(i) * time.Hour),
			FingerprintPrefix: "deadbeef",
			RiskScore:         0.2,
			RiskLevel:         domain.RiskLevelLow,
			Factors:           []string{domain.FactorNewIP},
		}
		require.NoError(t, st.Observations().AppendObservation(ctx, o))
	}

	t.Run("list is newest first and respects since/limit", func(t *testing.T) {
		got, err := st.Observations().ListRecentBySubject(ctx, "user_alpha_0001", now.Add(-24*time.Hour), 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.True(t, got[0].Timestamp.After(got[1].Timestamp))
		require.Equal(t, []string{domain.FactorNewIP}, got[0].Factors)
	})

	t.Run("prune removes old points", func(t *testing.T) {
		require.NoError(t, st.Observations().DeleteOlderThan(ctx, now.Add(-90*time.Minute)))

		got, err := st.Observations().ListRecentBySubject(ctx, "user_alpha_0001", now.Add(-24*time.Hour), 100)
		require.NoError(t, err)
		require.Len(t, got, 2)
	})
}

func TestRateLimitsRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	window := time.Now().UTC().Truncate(time.Minute)

	t.Run("increments per key and window", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			n, err := st.RateLimits().IncrementWindow(ctx, "203.0.113.1", window)
			require.NoError(t, err)
			require.Equal(t, want, n)
		}

		n, err := st.RateLimits().IncrementWindow(ctx, "203.0.113.2", window)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		n, err = st.RateLimits().IncrementWindow(ctx, "203.0.113.1", window.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("stale windows are swept", func(t *testing.T) {
		require.NoError(t, st.RateLimits().DeleteStale(ctx, window.Add(time.Minute)))

		n, err := st.RateLimits().IncrementWindow(ctx, "203.0.113.1", window)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})
}

func TestSecurityEventsRepo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now().UTC()

	put := func(id, eventType string, at time.Time) {
		require.NoError(t, st.SecurityEvents().AppendEvent(ctx, domain.SecurityEvent{
			ID:        id,
			Timestamp: at,
			Level:     domain.EventInfo,
			EventType: eventType,
			SubjectID: "user_alpha_0001",
			Attributes: map[string]string{
				"endpoint": "/v1/session",
			},
		}))
	}

	put("ev-1", domain.EventAuthSuccess, now.Add(-400*24*time.Hour))
	put("ev-2", domain.EventPerformanceWarning, now.Add(-400*24*time.Hour))
	put("ev-3", domain.EventAuthSuccess, now)

	t.Run("list returns attributes", func(t *testing.T) {
		got, err := st.SecurityEvents().ListBySubject(ctx, "user_alpha_0001", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, "/v1/session", got[0].Attributes["endpoint"])
	})

	t.Run("retention keeps audit types", func(t *testing.T) {
		keep := make([]string, 0, len(domain.AuditRetainedEvents))
		for k := range domain.AuditRetainedEvents {
			keep = append(keep, k)
		}

		require.NoError(t, st.SecurityEvents().DeleteOlderThan(ctx, now.Add(-365*24*time.Hour), keep))

		got, err := st.SecurityEvents().ListBySubject(ctx, "user_alpha_0001", 10)
		require.NoError(t, err)
		require.Len(t, got, 2) // the old performance warning is gone

		types := []string{got[0].EventType, got[1].EventType}
		require.NotContains(t, types, domain.EventPerformanceWarning)
	})
}
