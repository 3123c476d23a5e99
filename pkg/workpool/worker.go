package workpool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

const claimBatchSize = 20

// taskRow mirrors the workpool_tasks columns this package reads.
type taskRow struct {
	TaskID           uuid.UUID  `db:"task_id"`
	TargetRef        string     `db:"target_ref"`
	Args             []byte     `db:"args"`
	PartitionKey     *string    `db:"partition_key"`
	AttemptCount     int        `db:"attempt_count"`
	MaxAttempts      int        `db:"max_attempts"`
	InitialBackoffMs int        `db:"initial_backoff_ms"`
	Base             float64    `db:"backoff_base"`
	NextRunAt        time.Time  `db:"next_run_at"`
	State            string     `db:"state"`
	LastError        *string    `db:"last_error"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	LockedBy         *string    `db:"locked_by"`
	LockedAt         *time.Time `db:"locked_at"`
}

func (r taskRow) toTask() Task {
	return Task{
		TaskID:           r.TaskID,
		TargetRef:        r.TargetRef,
		Args:             r.Args,
		PartitionKey:     r.PartitionKey,
		AttemptCount:     r.AttemptCount,
		MaxAttempts:      r.MaxAttempts,
		InitialBackoffMs: r.InitialBackoffMs,
		Base:             r.Base,
		NextRunAt:        r.NextRunAt,
		State:            State(r.State),
		LastError:        r.LastError,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		LockedBy:         r.LockedBy,
		LockedAt:         r.LockedAt,
	}
}

// runWorker polls for claimable tasks until stopCh closes.
func (p *Pool) runWorker(ctx context.Context, workerID string) {
	log := p.log.With("worker_id", workerID)
	log.Info("workpool worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("workpool worker stopping")
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.claimNext(ctx, workerID)
		if err != nil {
			if errors.Is(err, ErrNoTaskAvailable) {
				p.sleep(p.pollInterval())
				continue
			}
			log.Error("claim failed", "error", err)
			p.sleep(time.Second)
			continue
		}

		p.health.markActive(workerID, task.TaskID.String())
		p.execute(ctx, workerID, *task)
		p.health.markIdle(workerID)
	}
}

func (p *Pool) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}

func (p *Pool) pollInterval() time.Duration {
	base := p.cfg.PollInterval
	jitter := p.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// claimNext selects a batch of due tasks, acquires the first leaseable
// partition among them, and marks that task running.
func (p *Pool) claimNext(ctx context.Context, workerID string) (*Task, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("workpool: begin claim: %w", err)
	}
	defer tx.Rollback()

	var rows []taskRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT * FROM workpool_tasks
		WHERE state = 'scheduled' AND next_run_at <= now()
		ORDER BY next_run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, claimBatchSize)
	if err != nil {
		return nil, fmt.Errorf("workpool: select candidates: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoTaskAvailable
	}

	for _, row := range rows {
		if row.PartitionKey != nil {
			acquired, err := p.leaser.TryAcquire(ctx, *row.PartitionKey, workerID, p.cfg.LeaseTTL)
			if err != nil {
				return nil, fmt.Errorf("workpool: acquire lease: %w", err)
			}
			if !acquired {
				continue
			}
		}

		now := time.Now()
		_, err := tx.ExecContext(ctx, `
			UPDATE workpool_tasks
			SET state = 'running', attempt_count = attempt_count + 1,
			    locked_by = $1, locked_at = $2, updated_at = $2
			WHERE task_id = $3`,
			workerID, now, row.TaskID)
		if err != nil {
			if row.PartitionKey != nil {
				_ = p.leaser.Release(ctx, *row.PartitionKey, workerID)
			}
			return nil, fmt.Errorf("workpool: claim task: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("workpool: commit claim: %w", err)
		}

		row.State = string(StateRunning)
		row.AttemptCount++
		task := row.toTask()
		return &task, nil
	}

	return nil, ErrNoTaskAvailable
}

// execute runs one attempt's Handler and applies the retry or terminal
// transition based on its outcome.
func (p *Pool) execute(ctx context.Context, workerID string, task Task) {
	log := p.log.With("worker_id", workerID, "task_id", task.TaskID, "target_ref", task.TargetRef)
	defer p.releasePartition(ctx, workerID, task.PartitionKey)

	p.handlersMu.RLock()
	handler, ok := p.handlers[task.TargetRef]
	p.handlersMu.RUnlock()
	if !ok {
		p.markFailedOrDead(ctx, task, ErrUnknownTarget)
		log.Error("no handler registered for target ref")
		return
	}

	err := handler(ctx, task)
	if err == nil {
		p.markSucceeded(ctx, task)
		return
	}

	log.Warn("task attempt failed", "attempt", task.AttemptCount, "error", err)
	p.markFailedOrDead(ctx, task, err)
}

func (p *Pool) releasePartition(ctx context.Context, workerID string, partitionKey *string) {
	if partitionKey == nil {
		return
	}
	if err := p.leaser.Release(ctx, *partitionKey, workerID); err != nil {
		p.log.Warn("failed to release partition lease", "partition_key", *partitionKey, "error", err)
	}
}

func (p *Pool) markSucceeded(ctx context.Context, task Task) {
	_, err := p.db.ExecContext(ctx,
		`UPDATE workpool_tasks SET state = 'succeeded', updated_at = now() WHERE task_id = $1`,
		task.TaskID)
	if err != nil {
		p.log.Error("failed to mark task succeeded", "task_id", task.TaskID, "error", err)
	}
}

func (p *Pool) markFailedOrDead(ctx context.Context, task Task, taskErr error) {
	errMsg := sanitizeForColumn(taskErr.Error())

	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5 // ErrUnknownTarget and similar never went through EnqueueTx's withDefaults
	}

	if task.AttemptCount >= maxAttempts {
		if _, err := p.db.ExecContext(ctx,
			`UPDATE workpool_tasks SET state = 'dead', last_error = $1, updated_at = now() WHERE task_id = $2`,
			errMsg, task.TaskID); err != nil {
			p.log.Error("failed to mark task dead", "task_id", task.TaskID, "error", err)
			return
		}
		p.invokeDeadLetter(ctx, task, taskErr)
		return
	}

	initialBackoff := time.Duration(task.InitialBackoffMs) * time.Millisecond
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	base := task.Base
	if base <= 0 {
		base = 2.0
	}

	delay := backoffDelay(initialBackoff, base, task.AttemptCount)
	nextRunAt := time.Now().Add(delay)
	if _, err := p.db.ExecContext(ctx,
		`UPDATE workpool_tasks SET state = 'scheduled', last_error = $1, next_run_at = $2, updated_at = now() WHERE task_id = $3`,
		errMsg, nextRunAt, task.TaskID); err != nil {
		p.log.Error("failed to reschedule task", "task_id", task.TaskID, "error", err)
	}
}

func (p *Pool) invokeDeadLetter(ctx context.Context, task Task, finalErr error) {
	p.deadLetterMu.RLock()
	fn, ok := p.deadLetters[task.TargetRef]
	p.deadLetterMu.RUnlock()
	if !ok {
		return
	}
	if err := fn(ctx, task, finalErr); err != nil {
		p.log.Error("dead letter callback failed", "task_id", task.TaskID, "target_ref", task.TargetRef, "error", err)
	}
}

// backoffDelay computes initialBackoff * base^attempt with +/-25% jitter.
func backoffDelay(initialBackoff time.Duration, base float64, attempt int) time.Duration {
	raw := float64(initialBackoff) * math.Pow(base, float64(attempt-1))
	jitterFactor := 0.75 + rand.Float64()*0.5
	return time.Duration(raw * jitterFactor)
}

// sanitizeForColumn truncates an error message to a sane column width.
func sanitizeForColumn(msg string) string {
	const maxLen = 2000
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
