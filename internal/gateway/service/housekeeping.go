package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopscribe/shopscribe/internal/gateway/domain"
	"github.com/shopscribe/shopscribe/internal/gateway/store"
)

const (
	// observationRetention keeps at least a day of behavioral history for
	// the risk scorer.
	observationRetention = 48 * time.Hour

	// eventRetention is the sweep horizon for non-audit events. Audit
	// relevant types are kept at least a year.
	eventRetention      = 30 * 24 * time.Hour
	auditEventRetention = 365 * 24 * time.Hour

	// rateBucketRetention keeps a few windows for diagnostics.
	rateBucketRetention = 10 * time.Minute
)

// HousekeepingService periodically sweeps expired blacklist entries, dead
// locks, stale rate buckets, old observations and out-of-retention security
// events so none of the tables grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	now func() time.Time
}

// NewHousekeepingService creates the sweeper. If interval is 0 or negative,
// defaults to 15 minutes.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the worker, waiting for any in-progress sweep.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a sweep immediately on startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep performs one cleanup pass. Each deletion is independent; a failure
// in one table does not stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	now := s.now().UTC()
	s.Logger.Debug("starting housekeeping sweep")

	var swept int

	if err := s.Store.Blacklist().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to sweep expired blacklist entries", "error", err)
	} else {
		swept++
	}

	if err := s.Store.Locks().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to sweep expired locks", "error", err)
	} else {
		swept++
	}

	if err := s.Store.RateLimits().DeleteStale(ctx, now.Add(-rateBucketRetention)); err != nil {
		s.Logger.Error("failed to sweep stale rate buckets", "error", err)
	} else {
		swept++
	}

	if err := s.Store.Observations().DeleteOlderThan(ctx, now.Add(-observationRetention)); err != nil {
		s.Logger.Error("failed to sweep old observations", "error", err)
	} else {
		swept++
	}

	// Two passes over events: the short horizon spares audit types, the
	// long horizon takes everything.
	keep := make([]string, 0, len(domain.AuditRetainedEvents))
	for t := range domain.AuditRetainedEvents {
		keep = append(keep, t)
	}
	if err := s.Store.SecurityEvents().DeleteOlderThan(ctx, now.Add(-eventRetention), keep); err != nil {
		s.Logger.Error("failed to sweep security events", "error", err)
	} else {
		swept++
	}
	if err := s.Store.SecurityEvents().DeleteOlderThan(ctx, now.Add(-auditEventRetention), nil); err != nil {
		s.Logger.Error("failed to sweep audit events", "error", err)
	} else {
		swept++
	}

	s.Logger.Debug("housekeeping sweep completed", "successful_sweeps", swept)
}
