package workpool

import (
	"context"
	"time"
)

// runOrphanSweep periodically resets tasks stuck in 'running' whose lease
// has gone stale (the owning worker crashed or its process died) back to
// 'scheduled', so another worker resumes the attempt. Every pool instance
// runs this independently; the operation is idempotent.
func (p *Pool) runOrphanSweep(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			recovered, err := p.recoverOrphans(ctx)
			if err != nil {
				p.log.Error("orphan sweep failed", "error", err)
				continue
			}
			p.health.recordOrphanScan(recovered)
			if recovered > 0 {
				p.log.Warn("recovered orphaned workpool tasks", "count", recovered)
			}
		}
	}
}

func (p *Pool) recoverOrphans(ctx context.Context) (int, error) {
	threshold := time.Now().Add(-p.cfg.OrphanThreshold)

	result, err := p.db.ExecContext(ctx, `
		UPDATE workpool_tasks
		SET state = 'scheduled', next_run_at = now(), locked_by = NULL, locked_at = NULL, updated_at = now()
		WHERE state = 'running' AND locked_at < $1`,
		threshold)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
