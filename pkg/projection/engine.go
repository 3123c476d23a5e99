package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/internal/store"
	"github.com/coreflow/runtime/pkg/workpool"
)

// quarantineThreshold is how many delivery attempts a single
// (projectionName, eventId) pair tolerates before it is quarantined and
// further attempts halt, per the poison-events contract.
const quarantineThreshold = 3

// Engine wires registered Definitions to the workpool as handlers for the
// "projection:{name}" target, enforcing the checkpoint/poison-event
// contract around every dispatch.
type Engine struct {
	db       *sqlx.DB
	registry *Registry
	pool     *workpool.Pool
	log      *slog.Logger
}

// New builds an Engine over registry, dispatching through pool.
func New(s *store.Store, registry *Registry, pool *workpool.Pool, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: s.DB, registry: registry, pool: pool, log: log}
}

type taskArgs struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	GlobalPosition int64  `json:"global_position"`
	Payload        []byte `json:"payload"`
}

// Wire registers every definition in the registry as a workpool handler.
// Call once at startup after all projections have been registered.
func (e *Engine) Wire() {
	for _, def := range e.registry.GetRebuildOrder() {
		def := def
		e.pool.RegisterHandler("projection:"+def.Name, e.handlerFor(def))
		e.pool.RegisterDeadLetterFunc("projection:"+def.Name, e.deadLetterFor(def))
	}
}

func (e *Engine) handlerFor(def Definition) workpool.Handler {
	return func(ctx context.Context, task workpool.Task) error {
		var args taskArgs
		if err := json.Unmarshal(task.Args, &args); err != nil {
			return fmt.Errorf("projection %s: unmarshal task args: %w", def.Name, err)
		}

		handler, ok := def.EventHandlers[args.EventType]
		if !ok {
			return nil // this projection does not subscribe to this event type
		}

		quarantined, err := e.isQuarantined(ctx, def.Name, args.EventID)
		if err != nil {
			return err
		}
		if quarantined {
			e.log.Warn("projection: skipping quarantined event", "projection", def.Name, "event_id", args.EventID)
			return nil
		}

		partitionKey, err := def.PartitionKey(args.Payload)
		if err != nil {
			return fmt.Errorf("projection %s: derive partition key: %w", def.Name, err)
		}

		return e.withCheckpoint(ctx, def.Name, partitionKey, args, handler)
	}
}

// withCheckpoint is the idempotency wrapper (spec.md §4.D): the handler
// only runs if args.GlobalPosition is strictly greater than the
// projection's last checkpointed position for this partition, and the
// checkpoint advances in the same transaction as the handler's own write
// — but since handlers own their read-model storage independently of
// internal/store, "same transaction" here means: checkpoint advance
// happens immediately after a successful handler call, and a handler that
// fails leaves the checkpoint untouched so a retry re-runs it.
func (e *Engine) withCheckpoint(ctx context.Context, projectionName, partitionKey string, args taskArgs, handler EventHandler) error {
	last, err := e.lastCheckpoint(ctx, projectionName, partitionKey)
	if err != nil {
		return err
	}
	if last != nil && args.GlobalPosition <= *last {
		return nil // already applied
	}

	if err := handler(ctx, Args{
		EventID:        args.EventID,
		EventType:      args.EventType,
		GlobalPosition: args.GlobalPosition,
		PartitionKey:   partitionKey,
		Payload:        args.Payload,
	}); err != nil {
		return err
	}

	return e.advanceCheckpoint(ctx, projectionName, partitionKey, args.GlobalPosition, args.EventID)
}

func (e *Engine) lastCheckpoint(ctx context.Context, projectionName, partitionKey string) (*int64, error) {
	var last int64
	err := e.db.GetContext(ctx, &last,
		`SELECT last_global_position FROM projection_checkpoints WHERE projection_name = $1 AND partition_key = $2`,
		projectionName, partitionKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("projection: read checkpoint: %w", err)
	}
	return &last, nil
}

func (e *Engine) advanceCheckpoint(ctx context.Context, projectionName, partitionKey string, position int64, eventID string) error {
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO projection_checkpoints (projection_name, partition_key, last_global_position, last_event_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (projection_name, partition_key) DO UPDATE
		SET last_global_position = EXCLUDED.last_global_position,
		    last_event_id = EXCLUDED.last_event_id,
		    updated_at = now()
		WHERE projection_checkpoints.last_global_position < EXCLUDED.last_global_position`,
		projectionName, partitionKey, position, eventID)
	if err != nil {
		return fmt.Errorf("projection: advance checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) isQuarantined(ctx context.Context, projectionName, eventID string) (bool, error) {
	var status string
	err := e.db.GetContext(ctx, &status,
		`SELECT status FROM poison_events WHERE event_id = $1 AND projection_name = $2`,
		eventID, projectionName)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("projection: check poison status: %w", err)
	}
	return status == "quarantined", nil
}

// deadLetterFor records a projection-specific dead-letter row once the
// workpool exhausts retries for one task, adds that task's delivery
// attempts to the event's poison attempt count, and quarantines the
// offending event once the count reaches quarantineThreshold.
func (e *Engine) deadLetterFor(def Definition) workpool.DeadLetterFunc {
	return func(ctx context.Context, task workpool.Task, finalErr error) error {
		var args taskArgs
		if err := json.Unmarshal(task.Args, &args); err != nil {
			return fmt.Errorf("projection %s: unmarshal dead-letter args: %w", def.Name, err)
		}

		if _, err := e.db.ExecContext(ctx, `
			INSERT INTO projection_dead_letters (dead_letter_id, projection_name, event_id, task_id, error, status)
			VALUES ($1, $2, $3, $4, $5, 'pending')`,
			uuid.New(), def.Name, args.EventID, task.TaskID, finalErr.Error()); err != nil {
			return fmt.Errorf("projection %s: insert dead letter: %w", def.Name, err)
		}

		deliveries := task.AttemptCount
		if deliveries < 1 {
			deliveries = 1
		}
		attempts, err := e.recordPoisonAttempt(ctx, def.Name, args, deliveries, finalErr)
		if err != nil {
			return err
		}
		if attempts >= quarantineThreshold {
			e.log.Warn("projection: quarantining event", "projection", def.Name, "event_id", args.EventID, "attempts", attempts)
		}
		return nil
	}
}

func (e *Engine) recordPoisonAttempt(ctx context.Context, projectionName string, args taskArgs, deliveries int, finalErr error) (int, error) {
	status := "pending"
	attempts := deliveries

	existing, err := e.db.QueryxContext(ctx,
		`SELECT attempt_count FROM poison_events WHERE event_id = $1 AND projection_name = $2`,
		args.EventID, projectionName)
	if err != nil {
		return 0, fmt.Errorf("projection: read poison attempt count: %w", err)
	}
	if existing.Next() {
		var prev int
		_ = existing.Scan(&prev)
		attempts = prev + deliveries
	}
	existing.Close()

	query := `
		INSERT INTO poison_events (event_id, event_type, projection_name, status, attempt_count, error, event_payload, global_position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, projection_name) DO UPDATE
		SET status = EXCLUDED.status, attempt_count = EXCLUDED.attempt_count, error = EXCLUDED.error`
	if attempts >= quarantineThreshold {
		status = "quarantined"
		query += `, quarantined_at = now()`
	}

	if _, err := e.db.ExecContext(ctx, query,
		args.EventID, args.EventType, projectionName, status, attempts, finalErr.Error(), args.Payload, args.GlobalPosition); err != nil {
		return 0, fmt.Errorf("projection: record poison attempt: %w", err)
	}
	return attempts, nil
}

// ErrUnknownProjection means a caller named a projection no Definition was
// registered for.
var ErrUnknownProjection = errors.New("projection: no definition registered")

// ErrNoFilterExpr means ExplainEvent was called against a projection that
// registered no FilterExpr.
var ErrNoFilterExpr = errors.New("projection: definition has no filter expression")

// ExplainEvent previews what payload looks like after projectionName's
// FilterExpr runs, without invoking the projection's own EventHandler or
// touching any checkpoint — this is read-only, for the admin replay
// surface's preview endpoint. It returns ErrNoFilterExpr if the
// definition registered none.
func (e *Engine) ExplainEvent(projectionName string, payload []byte) (any, error) {
	def, ok := e.registry.Get(projectionName)
	if !ok {
		return nil, fmt.Errorf("projection: %s: %w", projectionName, ErrUnknownProjection)
	}
	if def.FilterExpr == "" {
		return nil, ErrNoFilterExpr
	}

	filter, err := compileFilter(def.FilterExpr)
	if err != nil {
		return nil, err
	}
	return filter.run(payload)
}

// PoisonEvent is one row of poison_events, for the admin listing surface.
type PoisonEvent struct {
	EventID        string  `db:"event_id"`
	EventType      string  `db:"event_type"`
	ProjectionName string  `db:"projection_name"`
	Status         string  `db:"status"`
	AttemptCount   int     `db:"attempt_count"`
	Error          *string `db:"error"`
	EventPayload   []byte  `db:"event_payload"`
	GlobalPosition int64   `db:"global_position"`
	ResolvedBy     *string `db:"resolved_by"`
	ReviewNotes    *string `db:"review_notes"`
}

// ListPoisonEvents returns up to limit quarantined poison events, optionally
// filtered to a single projection, most recently quarantined first.
func (e *Engine) ListPoisonEvents(ctx context.Context, projectionName string, limit int) ([]PoisonEvent, error) {
	var rows []PoisonEvent
	var err error
	if projectionName != "" {
		err = e.db.SelectContext(ctx, &rows, `
			SELECT event_id, event_type, projection_name, status, attempt_count, error, event_payload, global_position, resolved_by, review_notes
			FROM poison_events WHERE status = 'quarantined' AND projection_name = $1
			ORDER BY quarantined_at DESC LIMIT $2`,
			projectionName, limit)
	} else {
		err = e.db.SelectContext(ctx, &rows, `
			SELECT event_id, event_type, projection_name, status, attempt_count, error, event_payload, global_position, resolved_by, review_notes
			FROM poison_events WHERE status = 'quarantined'
			ORDER BY quarantined_at DESC LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("projection: list poison events: %w", err)
	}
	return rows, nil
}

// ReplayPoisonEvent transitions a quarantined (projectionName, eventId) back
// to replayed and re-schedules its handler for a single attempt, using the
// event type/payload/position captured when it was quarantined.
func (e *Engine) ReplayPoisonEvent(ctx context.Context, projectionName, eventID, resolvedBy string) error {
	var pe PoisonEvent
	if err := e.db.GetContext(ctx, &pe, `
		SELECT event_id, event_type, projection_name, status, attempt_count, error, event_payload, global_position, resolved_by, review_notes
		FROM poison_events WHERE event_id = $1 AND projection_name = $2 AND status = 'quarantined'`,
		eventID, projectionName); err != nil {
		return fmt.Errorf("projection: no quarantined poison event %s/%s: %w", projectionName, eventID, err)
	}

	res, err := e.db.ExecContext(ctx, `
		UPDATE poison_events SET status = 'replayed', resolved_by = $1
		WHERE event_id = $2 AND projection_name = $3 AND status = 'quarantined'`,
		resolvedBy, eventID, projectionName)
	if err != nil {
		return fmt.Errorf("projection: replay poison event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("projection: no quarantined poison event %s/%s", projectionName, eventID)
	}

	args, err := json.Marshal(taskArgs{EventID: pe.EventID, EventType: pe.EventType, GlobalPosition: pe.GlobalPosition, Payload: pe.EventPayload})
	if err != nil {
		return fmt.Errorf("projection: marshal replay args: %w", err)
	}
	def, ok := e.registry.Get(projectionName)
	if !ok {
		return fmt.Errorf("projection: unknown projection %q", projectionName)
	}
	partitionKey, err := def.PartitionKey(pe.EventPayload)
	if err != nil {
		return fmt.Errorf("projection: derive partition key for replay: %w", err)
	}
	_, err = e.pool.Enqueue(ctx, "projection:"+projectionName, args, workpool.EnqueueOptions{PartitionKey: &partitionKey, MaxAttempts: 1})
	if err != nil {
		return fmt.Errorf("projection: reschedule replayed event: %w", err)
	}
	return nil
}

// IgnorePoisonEvent transitions a quarantined (projectionName, eventId) to
// ignored, permanently dropping it.
func (e *Engine) IgnorePoisonEvent(ctx context.Context, projectionName, eventID, resolvedBy, notes string) error {
	res, err := e.db.ExecContext(ctx, `
		UPDATE poison_events SET status = 'ignored', resolved_by = $1, review_notes = $2
		WHERE event_id = $3 AND projection_name = $4 AND status = 'quarantined'`,
		resolvedBy, notes, eventID, projectionName)
	if err != nil {
		return fmt.Errorf("projection: ignore poison event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("projection: no quarantined poison event %s/%s", projectionName, eventID)
	}
	return nil
}
