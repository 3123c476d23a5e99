package agentbc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type checkpointRow struct {
	AgentID               string         `db:"agent_id"`
	SubscriptionID        string         `db:"subscription_id"`
	LastProcessedPosition int64          `db:"last_processed_position"`
	LastEventID           *uuid.UUID     `db:"last_event_id"`
	Status                LifecycleState `db:"status"`
	EventsProcessed       int64          `db:"events_processed"`
	ConfigOverrides       []byte         `db:"config_overrides"`
}

// CheckpointStore is agent_checkpoints CRUD.
type CheckpointStore struct {
	db *sqlx.DB
}

func NewCheckpointStore(db *sqlx.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// GetOrCreate loads an agent's checkpoint, creating one (stopped, at -1)
// if absent.
func (s *CheckpointStore) GetOrCreate(ctx context.Context, agentID, subscriptionID string) (Checkpoint, error) {
	row, err := s.get(ctx, agentID)
	if err == nil {
		return toCheckpoint(row), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_checkpoints (agent_id, subscription_id)
		VALUES ($1, $2)
		ON CONFLICT (agent_id) DO NOTHING`,
		agentID, subscriptionID)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("agentbc: create checkpoint: %w", err)
	}
	row, err = s.get(ctx, agentID)
	if err != nil {
		return Checkpoint{}, err
	}
	return toCheckpoint(row), nil
}

func (s *CheckpointStore) get(ctx context.Context, agentID string) (checkpointRow, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM agent_checkpoints WHERE agent_id = $1`, agentID)
	return row, err
}

// Advance persists lastEventId/lastProcessedPosition and increments
// eventsProcessed (step 5 of the subscription handler).
func (s *CheckpointStore) Advance(ctx context.Context, agentID string, eventID uuid.UUID, position int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_checkpoints
		SET last_event_id = $1, last_processed_position = $2, events_processed = events_processed + 1, updated_at = now()
		WHERE agent_id = $3`,
		eventID, position, agentID)
	if err != nil {
		return fmt.Errorf("agentbc: advance checkpoint: %w", err)
	}
	return nil
}

// SetStatus transitions an agent's lifecycle status.
func (s *CheckpointStore) SetStatus(ctx context.Context, agentID string, status LifecycleState) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_checkpoints SET status = $1, updated_at = now() WHERE agent_id = $2`,
		status, agentID)
	if err != nil {
		return fmt.Errorf("agentbc: set checkpoint status: %w", err)
	}
	return nil
}

func toCheckpoint(row checkpointRow) Checkpoint {
	return Checkpoint{
		AgentID:               row.AgentID,
		SubscriptionID:        row.SubscriptionID,
		LastProcessedPosition: row.LastProcessedPosition,
		LastEventID:           row.LastEventID,
		Status:                row.Status,
		EventsProcessed:       row.EventsProcessed,
		ConfigOverrides:       row.ConfigOverrides,
	}
}
