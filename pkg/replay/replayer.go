package replay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/internal/store"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/projection"
	"github.com/coreflow/runtime/pkg/workpool"
)

const replayChunkTarget = "replay-chunk"

// Replayer drives chunked replay runs against the projection registry.
type Replayer struct {
	db       *sqlx.DB
	events   *eventstore.Store
	registry *projection.Registry
	pool     *workpool.Pool
	log      *slog.Logger
}

// New builds a Replayer.
func New(s *store.Store, events *eventstore.Store, registry *projection.Registry, pool *workpool.Pool, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	return &Replayer{db: s.DB, events: events, registry: registry, pool: pool, log: log}
}

// Wire registers the chunk-processing handler with the workpool. Call
// once at startup.
func (r *Replayer) Wire() {
	r.pool.RegisterHandler(replayChunkTarget, r.processChunk)
}

type chunkArgs struct {
	ReplayID       uuid.UUID `json:"replay_id"`
	Projection     string    `json:"projection"`
	AfterPosition  int64     `json:"after_position"` // exclusive lower bound
	ChunkSize      int       `json:"chunk_size"`
}

// TriggerRebuild starts a new replay run for projectionName. fromPosition
// and chunkSize are optional; nil selects the defaults (0, 100).
func (r *Replayer) TriggerRebuild(ctx context.Context, projectionName string, fromPosition *int64, chunkSize *int) (uuid.UUID, error) {
	var activeCount int
	if err := r.db.GetContext(ctx, &activeCount,
		`SELECT count(*) FROM replay_checkpoints WHERE projection = $1 AND status = 'running'`,
		projectionName); err != nil {
		return uuid.Nil, fmt.Errorf("replay: check active: %w", err)
	}
	if activeCount > 0 {
		return uuid.Nil, ErrReplayAlreadyActive
	}

	maxPosition, err := r.events.MaxGlobalPosition(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("replay: max global position: %w", err)
	}

	from := int64(0)
	if fromPosition != nil {
		from = *fromPosition
	}
	from = clamp(from, 0, maxPosition)

	size := defaultChunkSize
	if chunkSize != nil && *chunkSize >= 1 {
		size = *chunkSize
	}

	totalEvents := maxPosition - from
	if totalEvents < 0 {
		totalEvents = 0
	}

	replayID := uuid.New()
	status := StatusRunning
	var completedAt any
	if totalEvents == 0 {
		status = StatusCompleted
		completedAt = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO replay_checkpoints
			(replay_id, projection, start_position, last_position, target_position, status, events_processed, completed_at)
		VALUES ($1, $2, $3, $3, $4, $5, 0, $6)`,
		replayID, projectionName, from, maxPosition, status, completedAt,
	); err != nil {
		return uuid.Nil, fmt.Errorf("replay: insert checkpoint: %w", err)
	}

	if totalEvents == 0 {
		return replayID, nil
	}

	args, err := json.Marshal(chunkArgs{
		ReplayID:      replayID,
		Projection:    projectionName,
		AfterPosition: from - 1,
		ChunkSize:     size,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("replay: marshal chunk args: %w", err)
	}

	partitionKey := "replay:" + projectionName
	if _, err := r.pool.Enqueue(ctx, replayChunkTarget, args, workpool.EnqueueOptions{PartitionKey: &partitionKey}); err != nil {
		return uuid.Nil, fmt.Errorf("replay: schedule first chunk: %w", err)
	}

	return replayID, nil
}

// ListActiveRebuilds returns every replay_checkpoints row currently running,
// for the admin surface's "what's in flight" view.
func (r *Replayer) ListActiveRebuilds(ctx context.Context) ([]Checkpoint, error) {
	var rows []Checkpoint
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM replay_checkpoints WHERE status = 'running' ORDER BY started_at ASC`); err != nil {
		return nil, fmt.Errorf("replay: list active rebuilds: %w", err)
	}
	return rows, nil
}

// CancelRebuild transitions a running replay to cancelled. In-flight
// chunks observe this on their next iteration (processChunk re-checks
// status) and stop scheduling further chunks.
func (r *Replayer) CancelRebuild(ctx context.Context, replayID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE replay_checkpoints SET status = 'cancelled', updated_at = now() WHERE replay_id = $1 AND status = 'running'`,
		replayID)
	if err != nil {
		return fmt.Errorf("replay: cancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReplayNotFound
	}
	return nil
}

// GetRebuildStatus computes the current progress of a replay run.
func (r *Replayer) GetRebuildStatus(ctx context.Context, replayID uuid.UUID) (*RebuildStatus, error) {
	var cp Checkpoint
	if err := r.db.GetContext(ctx, &cp, `SELECT * FROM replay_checkpoints WHERE replay_id = $1`, replayID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReplayNotFound
		}
		return nil, fmt.Errorf("replay: get status: %w", err)
	}

	totalEvents := int64(0)
	if cp.TargetPosition != nil {
		totalEvents = *cp.TargetPosition - cp.StartPosition
		if totalEvents < 0 {
			totalEvents = 0
		}
	}

	percent := 100.0
	if totalEvents > 0 {
		percent = math.Round(float64(cp.EventsProcessed)/float64(totalEvents)*1000) / 10
	}

	status := &RebuildStatus{Checkpoint: cp, TotalEvents: totalEvents, PercentComplete: percent}

	if cp.Status == StatusRunning && cp.EventsProcessed > 0 {
		elapsed := time.Since(cp.StartedAt).Seconds()
		if elapsed > 0 {
			throughput := float64(cp.EventsProcessed) / elapsed
			if throughput > 0 {
				remaining := totalEvents - cp.EventsProcessed
				if remaining < 0 {
					remaining = 0
				}
				ms := int64(float64(remaining) / throughput * 1000)
				status.EstimatedRemainingMs = &ms
			}
		}
	}

	return status, nil
}

func (r *Replayer) processChunk(ctx context.Context, task workpool.Task) error {
	var args chunkArgs
	if err := json.Unmarshal(task.Args, &args); err != nil {
		return fmt.Errorf("replay: unmarshal chunk args: %w", err)
	}

	var cp Checkpoint
	if err := r.db.GetContext(ctx, &cp, `SELECT * FROM replay_checkpoints WHERE replay_id = $1`, args.ReplayID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("replay: load checkpoint: %w", err)
	}
	if cp.Status != StatusRunning {
		return nil // cancelled, completed, or failed elsewhere — stop.
	}

	def, ok := r.registry.Get(args.Projection)
	if !ok {
		return fmt.Errorf("replay: unknown projection %q", args.Projection)
	}

	events, err := r.events.ReadFromPosition(ctx, args.AfterPosition, args.ChunkSize, nil, "")
	if err != nil {
		return fmt.Errorf("replay: read chunk: %w", err)
	}

	for _, e := range events {
		handler, ok := def.EventHandlers[e.EventType]
		if !ok {
			continue
		}
		partitionKey, err := def.PartitionKey(e.Payload)
		if err != nil {
			return fmt.Errorf("replay: derive partition key: %w", err)
		}
		if err := handler(ctx, projection.Args{
			EventID:        e.EventID.String(),
			EventType:      e.EventType,
			GlobalPosition: e.GlobalPosition,
			PartitionKey:   partitionKey,
			Payload:        e.Payload,
		}); err != nil {
			return fmt.Errorf("replay: handler for %s: %w", e.EventType, err)
		}
	}

	lastPosition := args.AfterPosition
	if len(events) > 0 {
		lastPosition = events[len(events)-1].GlobalPosition
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE replay_checkpoints
		SET last_position = $1, events_processed = events_processed + $2, chunks_completed = chunks_completed + 1, updated_at = now()
		WHERE replay_id = $3`,
		lastPosition, len(events), args.ReplayID); err != nil {
		return fmt.Errorf("replay: advance checkpoint: %w", err)
	}

	if len(events) < args.ChunkSize {
		if _, err := r.db.ExecContext(ctx,
			`UPDATE replay_checkpoints SET status = 'completed', completed_at = now(), updated_at = now() WHERE replay_id = $1`,
			args.ReplayID); err != nil {
			return fmt.Errorf("replay: mark completed: %w", err)
		}
		return nil
	}

	nextArgs, err := json.Marshal(chunkArgs{
		ReplayID:      args.ReplayID,
		Projection:    args.Projection,
		AfterPosition: lastPosition,
		ChunkSize:     args.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("replay: marshal next chunk args: %w", err)
	}
	partitionKey := "replay:" + args.Projection
	if _, err := r.pool.Enqueue(ctx, replayChunkTarget, nextArgs, workpool.EnqueueOptions{PartitionKey: &partitionKey}); err != nil {
		return fmt.Errorf("replay: schedule next chunk: %w", err)
	}
	return nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
