package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
)

const (
	DefaultReplayWindow = 5 * time.Minute
	MinReplayWindow     = 1 * time.Minute
	MaxReplayWindow     = 15 * time.Minute

	// FingerprintPrefixLen is how much of a fingerprint ends up in
	// behavioral observations.
	FingerprintPrefixLen = 8

	replaySlowThreshold = 5 * time.Second
)

// ErrFingerprintConsumed is returned by Record when another verifier consumed
// the fingerprint between this verifier's check and its record.
var ErrFingerprintConsumed = errors.New("fingerprint already consumed")

// ClampReplayWindow applies the configured window's floor and ceiling.
func ClampReplayWindow(w time.Duration) time.Duration {
	switch {
	case w <= 0:
		return DefaultReplayWindow
	case w < MinReplayWindow:
		return MinReplayWindow
	case w > MaxReplayWindow:
		return MaxReplayWindow
	}
	return w
}

// ReplayCheck is the outcome of a blacklist lookup plus, when the credential
// is still fresh, the behavioral assessment of the attempt.
type ReplayCheck struct {
	Blacklisted bool
	Reason      string
	Since       time.Time
	Risk        domain.RiskAssessment
}

// ReplayGuard enforces at-most-once credential consumption within the replay
// window. Each phase runs under its own fingerprint-scoped lock; the store's
// conditional writes make the split safe.
type ReplayGuard struct {
	Store  store.Store
	Locks  *LockService
	Risk   *RiskService
	Audit  *AuditService
	NodeID string
	Window time.Duration

	now func() time.Time
}

func NewReplayGuard(st store.Store, locks *LockService, risk *RiskService, audit *AuditService, nodeID string, window time.Duration) *ReplayGuard {
	return &ReplayGuard{
		Store:  st,
		Locks:  locks,
		Risk:   risk,
		Audit:  audit,
		NodeID: nodeID,
		Window: ClampReplayWindow(window),
		now:    time.Now,
	}
}

// Check reports whether the fingerprint has already been consumed. Entries
// older than the replay window are lazily deleted on access. When the
// credential is fresh the subject's behavioral risk is scored and included.
// Any lock or store failure is an error; callers fail secure.
func (g *ReplayGuard) Check(ctx context.Context, fingerprint, subjectID, clientIP string) (ReplayCheck, error) {
	start := g.now()
	defer g.warnIfSlow(ctx, "replay_check", start)

	lockID := "token_check:" + fingerprint
	if _, err := g.Locks.Acquire(ctx, lockID); err != nil {
		return ReplayCheck{}, fmt.Errorf("replay check lock: %w", err)
	}

	result, err := g.lookup(ctx, fingerprint)
	g.Locks.Release(ctx, lockID)
	if err != nil {
		return ReplayCheck{}, err
	}

	if result.Blacklisted {
		g.Audit.Emit(ctx, domain.SecurityEvent{
			Level:     domain.EventCritical,
			EventType: domain.EventTokenReplay,
			SubjectID: subjectID,
			ClientIP:  clientIP,
			Attributes: map[string]string{
				"fingerprint_prefix": prefix(fingerprint),
			},
		})
		return result, nil
	}

	// Risk scoring runs after the lock is gone; it reads and appends its
	// own records and never contends with the blacklist.
	result.Risk = g.Risk.Score(ctx, subjectID, clientIP, prefix(fingerprint))
	return result, nil
}

func (g *ReplayGuard) lookup(ctx context.Context, fingerprint string) (ReplayCheck, error) {
	now := g.now().UTC()

	entry, err := g.Store.Blacklist().GetEntry(ctx, fingerprint)
	if errors.Is(err, store.ErrNotFound) {
		return ReplayCheck{}, nil
	}
	if err != nil {
		return ReplayCheck{}, fmt.Errorf("replay check read: %w", err)
	}

	if now.Sub(entry.BlacklistedAt) > g.Window {
		// Logically absent. Removing it here keeps the table small without
		// waiting for housekeeping.
		if err := g.Store.Blacklist().DeleteEntry(ctx, fingerprint); err != nil {
			return ReplayCheck{}, fmt.Errorf("replay check expiry: %w", err)
		}
		return ReplayCheck{}, nil
	}

	return ReplayCheck{
		Blacklisted: true,
		Reason:      domain.EventTokenReplay,
		Since:       entry.BlacklistedAt,
	}, nil
}

// Record consumes the fingerprint. A failure here must fail the surrounding
// verification: success without a recorded fingerprint would let another
// replica accept the same credential. When two verifiers race past Check,
// only the first Record succeeds; the loser gets ErrFingerprintConsumed.
func (g *ReplayGuard) Record(ctx context.Context, fingerprint, subjectID, reason string) error {
	return g.RecordFor(ctx, fingerprint, subjectID, reason, g.Window)
}

// RecordFor is Record with an explicit blacklist lifetime, used when a
// session token is revoked for its remaining validity rather than the
// replay window.
func (g *ReplayGuard) RecordFor(ctx context.Context, fingerprint, subjectID, reason string, lifetime time.Duration) error {
	start := g.now()
	defer g.warnIfSlow(ctx, "replay_record", start)

	lockID := "token_blacklist:" + fingerprint
	if _, err := g.Locks.Acquire(ctx, lockID); err != nil {
		return fmt.Errorf("replay record lock: %w", err)
	}
	defer g.Locks.Release(ctx, lockID)

	now := g.now().UTC()

	// Re-read under the lock. Check and Record run under separate lock
	// acquisitions, so a racing verifier may have recorded in between;
	// the write only goes through against an absent or expired entry.
	existing, err := g.Store.Blacklist().GetEntry(ctx, fingerprint)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("replay record read: %w", err)
	case existing.Expired(now):
	case reason == domain.BlacklistReasonSessionLogout && existing.Reason == domain.BlacklistReasonSessionLogout:
		// Repeated logout of the same session. The fingerprint is already
		// dead for at least as long as this call would make it.
		return nil
	default:
		return fmt.Errorf("replay record %s: %w", prefix(fingerprint), ErrFingerprintConsumed)
	}

	entry := domain.BlacklistEntry{
		Fingerprint:   fingerprint,
		BlacklistedAt: now,
		ExpiresAt:     now.Add(lifetime),
		SubjectID:     subjectID,
		Reason:        reason,
		NodeID:        g.NodeID,
	}
	if err := g.Store.Blacklist().PutEntry(ctx, entry); err != nil {
		return fmt.Errorf("replay record write: %w", err)
	}
	return nil
}

func (g *ReplayGuard) warnIfSlow(ctx context.Context, operation string, start time.Time) {
	elapsed := g.now().Sub(start)
	if elapsed <= replaySlowThreshold {
		return
	}
	g.Audit.Emit(ctx, domain.SecurityEvent{
		Level:     domain.EventWarn,
		EventType: domain.EventPerformanceWarning,
		Attributes: map[string]string{
			"operation":  operation,
			"elapsed_ms": fmt.Sprintf("%d", elapsed.Milliseconds()),
		},
	})
}

func prefix(fingerprint string) string {
	if len(fingerprint) <= FingerprintPrefixLen {
		return fingerprint
	}
	return fingerprint[:FingerprintPrefixLen]
}
