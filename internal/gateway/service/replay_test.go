package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) *ReplayGuard {
	t.Helper()

	st := testStore(t)
	audit := testAudit(st)
	locks := NewLockService(st, audit, "node-a")
	risk := NewRiskService(st, audit)
	return NewReplayGuard(st, locks, risk, audit, "node-a", 0)
}

func TestClampReplayWindow(t *testing.T) {
	require.Equal(t, DefaultReplayWindow, ClampReplayWindow(0))
	require.Equal(t, MinReplayWindow, ClampReplayWindow(10*time.Second))
	require.Equal(t, MaxReplayWindow, ClampReplayWindow(time.Hour))
	require.Equal(t, 7*time.Minute, ClampReplayWindow(7*time.Minute))
}

func TestReplayGuard(t *testing.T) {
	ctx := context.Background()
	g := newGuard(t)
	fp := cryptox.Fingerprint("jti-0001")

	t.Run("fresh fingerprint passes and is scored", func(t *testing.T) {
		check, err := g.Check(ctx, fp, "user_alpha_0001", "203.0.113.1")
		require.NoError(t, err)
		require.False(t, check.Blacklisted)
		require.Contains(t, check.Risk.Factors, domain.FactorNoHistory)
		require.Equal(t, domain.RecommendAllow, check.Risk.Recommendation)
	})

	t.Run("record then check reports replay", func(t *testing.T) {
		require.NoError(t, g.Record(ctx, fp, "user_alpha_0001", domain.BlacklistReasonConsumed))

		check, err := g.Check(ctx, fp, "user_alpha_0001", "203.0.113.1")
		require.NoError(t, err)
		require.True(t, check.Blacklisted)
		require.Equal(t, domain.EventTokenReplay, check.Reason)
		require.False(t, check.Since.IsZero())
	})

	t.Run("replay emits a critical event", func(t *testing.T) {
		events, err := g.Store.SecurityEvents().ListBySubject(ctx, "user_alpha_0001", 50)
		require.NoError(t, err)

		var found bool
		for _, e := range events {
			if e.EventType == domain.EventTokenReplay {
				found = true
				require.Equal(t, domain.EventCritical, e.Level)
			}
		}
		require.True(t, found)
	})

	t.Run("entries past the window are lazily removed", func(t *testing.T) {
		g.now = func() time.Time { return time.Now().Add(g.Window + time.Second) }
		defer func() { g.now = time.Now }()

		check, err := g.Check(ctx, fp, "user_alpha_0001", "203.0.113.1")
		require.NoError(t, err)
		require.False(t, check.Blacklisted)

		// the stale entry is gone, not just ignored
		_, err = g.Store.Blacklist().GetEntry(ctx, fp)
		require.Error(t, err)
	})
}

func TestReplayGuardRecordIsConditional(t *testing.T) {
	ctx := context.Background()
	g := newGuard(t)
	fp := cryptox.Fingerprint("jti-race-0001")

	t.Run("only one of two racing verifiers records", func(t *testing.T) {
		// Both verifiers pass the check before either records.
		first, err := g.Check(ctx, fp, "user_alpha_0001", "203.0.113.1")
		require.NoError(t, err)
		require.False(t, first.Blacklisted)

		second, err := g.Check(ctx, fp, "user_alpha_0001", "203.0.113.2")
		require.NoError(t, err)
		require.False(t, second.Blacklisted)

		require.NoError(t, g.Record(ctx, fp, "user_alpha_0001", domain.BlacklistReasonConsumed))

		err = g.Record(ctx, fp, "user_alpha_0001", domain.BlacklistReasonConsumed)
		require.ErrorIs(t, err, ErrFingerprintConsumed)
	})

	t.Run("an expired entry does not block a new record", func(t *testing.T) {
		g.now = func() time.Time { return time.Now().Add(g.Window + time.Second) }
		defer func() { g.now = time.Now }()

		require.NoError(t, g.Record(ctx, fp, "user_alpha_0001", domain.BlacklistReasonConsumed))
	})

	t.Run("session logout re-record stays idempotent", func(t *testing.T) {
		sfp := cryptox.Fingerprint("session:sess-0001")
		require.NoError(t, g.RecordFor(ctx, sfp, "user_alpha_0001", domain.BlacklistReasonSessionLogout, time.Hour))
		require.NoError(t, g.RecordFor(ctx, sfp, "user_alpha_0001", domain.BlacklistReasonSessionLogout, time.Hour))
	})
}
