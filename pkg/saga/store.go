package saga

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/internal/store"
)

// Instance is one (sagaType, sagaId) workflow's durable state.
type Instance struct {
	SagaType              string     `db:"saga_type"`
	SagaID                string     `db:"saga_id"`
	WorkflowID            string     `db:"workflow_id"`
	Status                Status     `db:"status"`
	TriggerEventID        uuid.UUID  `db:"trigger_event_id"`
	TriggerGlobalPosition int64      `db:"trigger_global_position"`
	Error                 *string    `db:"error"`
	CreatedAt             time.Time  `db:"created_at"`
	CompletedAt           *time.Time `db:"completed_at"`
	CurrentStepIndex      int        `db:"current_step_index"`
	StepState             []byte     `db:"step_state"`
}

// Store is saga_instances CRUD.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db for saga persistence.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new instance for (sagaType, sagaId) with status
// running. Returns ErrAlreadyRunning if one already exists.
func (s *Store) Create(ctx context.Context, sagaType, sagaID, workflowID string, triggerEventID uuid.UUID, triggerPosition int64) (Instance, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saga_instances (saga_type, saga_id, workflow_id, status, trigger_event_id, trigger_global_position)
		VALUES ($1, $2, $3, 'running', $4, $5)`,
		sagaType, sagaID, workflowID, triggerEventID, triggerPosition)
	if err != nil {
		if errors.Is(store.Translate(err), store.ErrDuplicateKey) {
			return Instance{}, ErrAlreadyRunning
		}
		return Instance{}, fmt.Errorf("saga: create instance: %w", err)
	}
	return s.Get(ctx, sagaType, sagaID)
}

// Get loads a saga instance by its business key.
func (s *Store) Get(ctx context.Context, sagaType, sagaID string) (Instance, error) {
	var inst Instance
	err := s.db.GetContext(ctx, &inst,
		`SELECT * FROM saga_instances WHERE saga_type = $1 AND saga_id = $2`,
		sagaType, sagaID)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, fmt.Errorf("saga: no instance %s/%s", sagaType, sagaID)
	}
	if err != nil {
		return Instance{}, fmt.Errorf("saga: get instance: %w", err)
	}
	return inst, nil
}

// AdvanceStep persists a successful step's outcome and moves the cursor
// forward.
func (s *Store) AdvanceStep(ctx context.Context, sagaType, sagaID string, nextIndex int, nextState []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE saga_instances SET current_step_index = $1, step_state = COALESCE($2, step_state)
		WHERE saga_type = $3 AND saga_id = $4`,
		nextIndex, nullableBytes(nextState), sagaType, sagaID)
	if err != nil {
		return fmt.Errorf("saga: advance step: %w", err)
	}
	return nil
}

// MarkStatus transitions a saga instance's status, optionally recording
// an error and a completion timestamp.
func (s *Store) MarkStatus(ctx context.Context, sagaType, sagaID string, status Status, errMsg *string) error {
	var completedAt any
	if status == StatusCompleted || status == StatusCompensated {
		completedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE saga_instances SET status = $1, error = $2, completed_at = COALESCE($3, completed_at)
		WHERE saga_type = $4 AND saga_id = $5`,
		status, errMsg, completedAt, sagaType, sagaID)
	if err != nil {
		return fmt.Errorf("saga: mark status: %w", err)
	}
	return nil
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
