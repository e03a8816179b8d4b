package pending

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/kpapadakis/ledgerdesk/internal/config"
)

// Sweeper clears expired drafts on a cron schedule. It only runs when a
// TTL is configured; with TTL disabled stale drafts persist until the
// user cancels them.
type Sweeper struct {
	store    *Store
	schedule string
	gron     *gronx.Gronx
}

func NewSweeper(s *Store, cfg config.PendingConfig) *Sweeper {
	return &Sweeper{
		store:    s,
		schedule: cfg.SweepSchedule,
		gron:     gronx.New(),
	}
}

func (w *Sweeper) Start(ctx context.Context) {
	if w.store.ttl <= 0 {
		slog.Info("pending sweeper disabled, no ttl configured")
		return
	}
	if !w.gron.IsValid(w.schedule) {
		slog.Error("invalid pending sweep schedule", "schedule", w.schedule)
		return
	}

	slog.Info("pending sweeper started", "schedule", w.schedule, "ttl", w.store.ttl)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("pending sweeper stopped")
			return
		case <-ticker.C:
			due, err := w.gron.IsDue(w.schedule, time.Now())
			if err != nil || !due {
				continue
			}
			if n := w.store.SweepExpired(); n > 0 {
				slog.Info("swept expired pending operations", "count", n)
			}
		}
	}
}
