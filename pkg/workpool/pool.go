package workpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/internal/store"
)

// Config bounds the pool's concurrency and polling behavior.
type Config struct {
	PodID             string
	WorkerCount       int           // default 5
	MaxParallelism    int           // default = WorkerCount
	PollInterval      time.Duration // default 250ms
	PollIntervalJitter time.Duration // default 0 (no jitter)
	LeaseTTL          time.Duration // default 30s
	OrphanThreshold   time.Duration // default 2 * LeaseTTL
	OrphanScanInterval time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 5
	}
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = c.WorkerCount
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.OrphanThreshold <= 0 {
		c.OrphanThreshold = 2 * c.LeaseTTL
	}
	if c.OrphanScanInterval <= 0 {
		c.OrphanScanInterval = 30 * time.Second
	}
	return c
}

// Pool is the runtime's single task scheduler: one pool per process,
// shared by every subsystem that needs to schedule durable, retried work.
type Pool struct {
	podID  string
	db     *sqlx.DB
	cfg    Config
	leaser PartitionLeaser
	log    *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	deadLetterMu sync.RWMutex
	deadLetters  map[string]DeadLetterFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	health healthState
}

// New creates a Pool backed by s. leaser may be nil, in which case an
// in-process leaser is used (single-process correctness only).
func New(s *store.Store, cfg Config, leaser PartitionLeaser, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	if leaser == nil {
		leaser = NewInProcessLeaser()
	}
	return &Pool{
		podID:       cfg.PodID,
		db:          s.DB,
		cfg:         cfg.withDefaults(),
		leaser:      leaser,
		log:         log,
		handlers:    make(map[string]Handler),
		deadLetters: make(map[string]DeadLetterFunc),
		stopCh:      make(chan struct{}),
	}
}

// RegisterHandler binds targetRef to the function invoked on each attempt.
func (p *Pool) RegisterHandler(targetRef string, h Handler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[targetRef] = h
}

// RegisterDeadLetterFunc binds targetRef to the callback invoked once a
// task exhausts its retry budget.
func (p *Pool) RegisterDeadLetterFunc(targetRef string, fn DeadLetterFunc) {
	p.deadLetterMu.Lock()
	defer p.deadLetterMu.Unlock()
	p.deadLetters[targetRef] = fn
}

// Enqueue schedules a new task in its own transaction.
func (p *Pool) Enqueue(ctx context.Context, targetRef string, args []byte, opts EnqueueOptions) (uuid.UUID, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("workpool: begin: %w", err)
	}
	defer tx.Rollback()

	id, err := p.EnqueueTx(ctx, tx, targetRef, args, opts)
	if err != nil {
		return uuid.Nil, err
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("workpool: commit: %w", err)
	}
	return id, nil
}

// EnqueueTx schedules a new task as part of an existing transaction, so
// callers (the orchestrator's steps 6/7) can make "schedule work" and
// "record that it was scheduled" atomic.
func (p *Pool) EnqueueTx(ctx context.Context, tx *sqlx.Tx, targetRef string, args []byte, opts EnqueueOptions) (uuid.UUID, error) {
	opts = opts.withDefaults()
	id := uuid.New()
	runAt := time.Now()
	if opts.RunAt != nil {
		runAt = *opts.RunAt
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO workpool_tasks (task_id, target_ref, args, partition_key, attempt_count, next_run_at, state, max_attempts, initial_backoff_ms, backoff_base)
		VALUES ($1, $2, $3, $4, 0, $5, 'scheduled', $6, $7, $8)`,
		id, targetRef, args, opts.PartitionKey, runAt, opts.MaxAttempts, opts.InitialBackoffMs, opts.Base,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("workpool: enqueue: %w", store.Translate(err))
	}
	return id, nil
}

// EnqueueJSON marshals args and calls Enqueue.
func (p *Pool) EnqueueJSON(ctx context.Context, targetRef string, args any, opts EnqueueOptions) (uuid.UUID, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return uuid.Nil, fmt.Errorf("workpool: marshal args: %w", err)
	}
	return p.Enqueue(ctx, targetRef, payload, opts)
}

// Start launches MaxParallelism dispatch goroutines plus the orphan sweep.
// Safe to call once; a second call is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.MaxParallelism; i++ {
		workerID := fmt.Sprintf("%s-workpool-%d", p.podID, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanSweep(ctx)
	}()

	p.log.Info("workpool started", "pod_id", p.podID, "parallelism", p.cfg.MaxParallelism)
}

// Stop signals every worker to exit and waits for in-flight attempts to
// finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.log.Info("workpool stopped", "pod_id", p.podID)
}
