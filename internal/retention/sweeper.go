// Package retention ages out old execution records.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/autorule/internal/metrics"
	"github.com/gyaneshwarpardhi/autorule/internal/store"
)

// Sweeper periodically deletes execution records older than maxAge.
type Sweeper struct {
	store    store.Store
	maxAge   time.Duration
	interval time.Duration
}

func NewSweeper(st store.Store, maxAge, interval time.Duration) *Sweeper {
	return &Sweeper{store: st, maxAge: maxAge, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)
	n, err := s.store.PruneRecords(ctx, cutoff)
	if err != nil {
		slog.Error("record prune failed", "cutoff", cutoff, "err", err)
		return
	}
	if n > 0 {
		slog.Info("pruned execution records", "count", n, "cutoff", cutoff)
	}
	metrics.RecordsPruned.Add(float64(n))
}
