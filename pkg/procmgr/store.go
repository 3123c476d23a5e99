package procmgr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Instance is one (pmName, instanceId) process manager's durable state.
type Instance struct {
	PMName             string    `db:"pm_name"`
	InstanceID         string    `db:"instance_id"`
	Status             State     `db:"status"`
	LastGlobalPosition int64     `db:"last_global_position"`
	CommandsEmitted    int       `db:"commands_emitted"`
	CommandsFailed     int       `db:"commands_failed"`
	CustomState        []byte    `db:"custom_state"`
	StateVersion       int       `db:"state_version"`
	TriggerEventID     *string   `db:"trigger_event_id"`
	CorrelationID      *string   `db:"correlation_id"`
	ErrorMessage       *string   `db:"error_message"`
	CreatedAt          time.Time `db:"created_at"`
	LastUpdatedAt      time.Time `db:"last_updated_at"`
}

// Store is process_manager_states CRUD, with ApplyEvent enforcing the FSM
// inside a per-instance row lock.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db for process manager persistence.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetOrCreate loads (pmName, instanceId), creating an idle instance if
// absent.
func (s *Store) GetOrCreate(ctx context.Context, pmName, instanceID string) (Instance, error) {
	inst, err := s.get(ctx, s.db, pmName, instanceID)
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Instance{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO process_manager_states (pm_name, instance_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (pm_name, instance_id) DO NOTHING`,
		pmName, instanceID, StateIdle)
	if err != nil {
		return Instance{}, fmt.Errorf("procmgr: create instance: %w", err)
	}
	return s.get(ctx, s.db, pmName, instanceID)
}

func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, pmName, instanceID string) (Instance, error) {
	var inst Instance
	err := sqlx.GetContext(ctx, q, &inst,
		`SELECT * FROM process_manager_states WHERE pm_name = $1 AND instance_id = $2`,
		pmName, instanceID)
	if err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// TransitionResult is what Apply callbacks return to drive the store
// update alongside the FSM move.
type TransitionResult struct {
	CustomState       []byte
	CommandsEmitted   int // delta to add
	CommandsFailed    int // delta to add
	ErrorMessage      *string
	LastGlobalPosition *int64
	TriggerEventID    *string
	CorrelationID     *string
}

// ApplyEvent locks (pmName, instanceId), asserts the FSM transition for
// event, lets apply compute the side-effects to persist, and commits the
// new status + those side-effects atomically.
func (s *Store) ApplyEvent(ctx context.Context, pmName, instanceID string, event Event, apply func(Instance) (TransitionResult, error)) (Instance, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Instance{}, fmt.Errorf("procmgr: begin: %w", err)
	}
	defer tx.Rollback()

	var inst Instance
	err = tx.GetContext(ctx, &inst,
		`SELECT * FROM process_manager_states WHERE pm_name = $1 AND instance_id = $2 FOR UPDATE`,
		pmName, instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		inst = Instance{PMName: pmName, InstanceID: instanceID, Status: StateIdle}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO process_manager_states (pm_name, instance_id, status) VALUES ($1, $2, $3)`,
			pmName, instanceID, StateIdle); err != nil {
			return Instance{}, fmt.Errorf("procmgr: create instance: %w", err)
		}
	} else if err != nil {
		return Instance{}, fmt.Errorf("procmgr: load instance: %w", err)
	}

	next, err := Definition.AssertApply(inst.Status, event)
	if err != nil {
		return Instance{}, err
	}

	result, err := apply(inst)
	if err != nil {
		return Instance{}, err
	}

	lastPos := inst.LastGlobalPosition
	if result.LastGlobalPosition != nil {
		lastPos = *result.LastGlobalPosition
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE process_manager_states SET
			status = $1,
			custom_state = COALESCE($2, custom_state),
			commands_emitted = commands_emitted + $3,
			commands_failed = commands_failed + $4,
			error_message = $5,
			last_global_position = $6,
			trigger_event_id = COALESCE($7, trigger_event_id),
			correlation_id = COALESCE($8, correlation_id),
			state_version = state_version + 1,
			last_updated_at = now()
		WHERE pm_name = $9 AND instance_id = $10`,
		next, nullableBytes(result.CustomState), result.CommandsEmitted, result.CommandsFailed,
		result.ErrorMessage, lastPos, result.TriggerEventID, result.CorrelationID,
		pmName, instanceID)
	if err != nil {
		return Instance{}, fmt.Errorf("procmgr: persist transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Instance{}, fmt.Errorf("procmgr: commit: %w", err)
	}

	inst.Status = next
	inst.LastGlobalPosition = lastPos
	return inst, nil
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
