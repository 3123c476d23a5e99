package workpool

import (
	"context"
	"sync"
	"time"
)

// PoolHealth reports the pool's current activity for the admin surface.
type PoolHealth struct {
	PodID            string          `json:"pod_id"`
	ActiveWorkers    int             `json:"active_workers"`
	TotalWorkers     int             `json:"total_workers"`
	QueueDepth       int             `json:"queue_depth"`
	DeadTaskCount    int             `json:"dead_task_count"`
	LastOrphanScan   time.Time       `json:"last_orphan_scan"`
	OrphansRecovered int             `json:"orphans_recovered"`
	WorkerStats      []WorkerHealth  `json:"worker_stats"`
}

// WorkerHealth reports one worker's current activity.
type WorkerHealth struct {
	ID            string `json:"id"`
	Status        string `json:"status"` // "idle" or "working"
	CurrentTaskID string `json:"current_task_id,omitempty"`
}

type healthState struct {
	mu               sync.Mutex
	workers          map[string]*WorkerHealth
	lastOrphanScan   time.Time
	orphansRecovered int
}

func (h *healthState) markActive(workerID, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.workers == nil {
		h.workers = make(map[string]*WorkerHealth)
	}
	h.workers[workerID] = &WorkerHealth{ID: workerID, Status: "working", CurrentTaskID: taskID}
}

func (h *healthState) markIdle(workerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.workers == nil {
		h.workers = make(map[string]*WorkerHealth)
	}
	h.workers[workerID] = &WorkerHealth{ID: workerID, Status: "idle"}
}

func (h *healthState) recordOrphanScan(recovered int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastOrphanScan = time.Now()
	h.orphansRecovered += recovered
}

// Health reports current pool activity, including a live queue-depth query.
func (p *Pool) Health(ctx context.Context) (*PoolHealth, error) {
	var queueDepth, deadCount int
	if err := p.db.GetContext(ctx, &queueDepth,
		`SELECT count(*) FROM workpool_tasks WHERE state IN ('scheduled', 'running')`); err != nil {
		return nil, err
	}
	if err := p.db.GetContext(ctx, &deadCount,
		`SELECT count(*) FROM workpool_tasks WHERE state = 'dead'`); err != nil {
		return nil, err
	}

	p.health.mu.Lock()
	stats := make([]WorkerHealth, 0, len(p.health.workers))
	active := 0
	for _, w := range p.health.workers {
		stats = append(stats, *w)
		if w.Status == "working" {
			active++
		}
	}
	lastScan := p.health.lastOrphanScan
	recovered := p.health.orphansRecovered
	p.health.mu.Unlock()

	return &PoolHealth{
		PodID:            p.podID,
		ActiveWorkers:    active,
		TotalWorkers:     p.cfg.MaxParallelism,
		QueueDepth:       queueDepth,
		DeadTaskCount:    deadCount,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
		WorkerStats:      stats,
	}, nil
}
