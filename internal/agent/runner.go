package agent

import (
	"context"
	"log/slog"
	"time"
)

// InboxRunner keeps agent inboxes moving between conversational turns:
// a sender blocking on WaitForResponse would otherwise starve until the
// recipient's next utterance. It wakes on inbox notifications and on a
// timer, and either way the durable message rows decide what runs.
type InboxRunner struct {
	workers  []InboxWorker
	deps     *Deps
	interval time.Duration
}

func NewInboxRunner(deps *Deps, interval time.Duration, workers ...InboxWorker) *InboxRunner {
	if interval <= 0 {
		interval = time.Second
	}
	return &InboxRunner{workers: workers, deps: deps, interval: interval}
}

func (r *InboxRunner) Start(ctx context.Context) {
	for _, w := range r.workers {
		go r.run(ctx, w)
	}
}

func (r *InboxRunner) run(ctx context.Context, w InboxWorker) {
	wake := make(chan struct{}, 1)
	if err := r.deps.Bus.OnInbox(w.ID(), func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}); err != nil {
		slog.Warn("inbox subscribe failed, polling only", "agent", w.ID(), "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("inbox runner started", "agent", w.ID(), "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
		w.ServeInbox(ctx)
	}
}
