// Package cleanup prunes encounters that have been idle past the retention
// window. Encounters are anonymous and unlisted, so ones nobody has touched
// in weeks are abandoned tables, not data anyone will come back for.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes encounters whose last commit is older than the cutoff and
// reports how many were removed. Both store variants implement it.
type Pruner interface {
	PruneIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// Service runs the retention sweep on a fixed interval. Sweeps are
// idempotent and safe to run from multiple processes against the same
// database.
type Service struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service. Encounters idle longer than
// retention are deleted on each sweep.
func NewService(pruner Pruner, retention, interval time.Duration) *Service {
	return &Service{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
	}
}

// Start launches the background sweep loop. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"retention", s.retention,
		"interval", s.interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)
	count, err := s.pruner.PruneIdle(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned idle encounters", "count", count)
	}
}
