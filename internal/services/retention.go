package services

import (
	"context"
	"time"

	"mapsketch/internal/logging"
)

// RetentionSweeper periodically deletes closed session records older than
// the retention window
type RetentionSweeper struct {
	store    SessionPruner
	keep     time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewRetentionSweeper(store SessionPruner, keep, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{store: store, keep: keep, interval: interval, now: time.Now}
}

// Sweep runs one pass and returns the number of records removed
func (r *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.keep)
	n, err := r.store.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("🧹 Pruned old session records")
	}
	return n, nil
}

// Run sweeps on every tick until ctx is cancelled
func (r *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				logging.Warn().Err(err).Msg("⚠️ Session retention sweep failed")
			}
		}
	}
}
