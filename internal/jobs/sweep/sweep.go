// Package sweep deletes orphaned pending operations (tentative calls whose
// client never confirmed) to bound ledger growth. Usage for swept rows was
// never charged and never will be.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethnolens/ethnolens/internal/metrics"
)

type pendingStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	store    pendingStore
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func New(store pendingStore, ttl, interval time.Duration) *Job {
	return &Job{
		store:    store,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on every tick until the context is cancelled. A failed sweep is
// logged and retried on the next tick.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("pending sweep started", "ttl", j.ttl, "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("pending sweep stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Job) sweep(ctx context.Context) {
	cutoff := j.now().Add(-j.ttl)
	n, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Warn("pending sweep failed", "error", err)
		return
	}
	if n > 0 {
		metrics.PendingSweptTotal.Add(float64(n))
		slog.Info("pending operations swept", "deleted", n, "cutoff", cutoff)
	}
}
