package admission

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the periodic maintenance pass: expiring overdue claim offers
// (promoting the next waiting entry for each) and trimming the payment event
// dedup window.
type Sweeper struct {
	queue     *WaitlistQueue
	dedup     DedupStore
	retention time.Duration
	now       func() time.Time
}

// NewSweeper creates a sweeper for the core's queue and dedup window.
func (c *Core) NewSweeper() *Sweeper {
	return &Sweeper{
		queue:     c.Queue,
		dedup:     c.Events.dedup,
		retention: c.cfg.DedupRetention,
		now:       c.now,
	}
}

// Sweep performs one maintenance pass.
// POST: All claim offers due at the sweep instant are expired and their
// seats re-offered; dedup marks older than the retention window are gone
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.now()

	expired, err := s.queue.ExpireSweep(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		slog.Info("sweep_event", "event", "claims_expired", "count", expired)
	}

	purged, err := s.dedup.PurgeBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		slog.Info("sweep_event", "event", "dedup_purged", "count", purged)
	}
	return nil
}

// StartSweepWorker runs Sweep on a ticker until stopCh closes.
func StartSweepWorker(s *Sweeper, interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := s.Sweep(ctx); err != nil {
					slog.Error("sweep_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("sweep_worker_stopped")
				return
			}
		}
	}()
}
