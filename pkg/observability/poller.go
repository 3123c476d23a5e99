package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreflow/runtime/pkg/workpool"
)

// PollWorkpool samples pool.Health on every tick until ctx is cancelled,
// feeding WorkpoolQueueDepth. The workpool has no push-based metrics hook
// of its own, so this is the same poll-and-sample shape the admin surface
// already uses for its own health endpoint.
func (m *Metrics) PollWorkpool(ctx context.Context, pool *workpool.Pool, tick time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if tick <= 0 {
		tick = 10 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			health, err := pool.Health(ctx)
			if err != nil {
				log.Warn("observability: workpool health sample failed", "error", err)
				continue
			}
			m.SetQueueDepth("all", "scheduled_or_running", health.QueueDepth)
			m.SetQueueDepth("all", "dead", health.DeadTaskCount)
		}
	}
}
