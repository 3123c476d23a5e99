package agentbc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DeadLetterStatus is one of agent_dead_letters.status.
type DeadLetterStatus string

const (
	DeadLetterPending  DeadLetterStatus = "pending"
	DeadLetterReplayed DeadLetterStatus = "replayed"
	DeadLetterIgnored  DeadLetterStatus = "ignored"
)

// AgentDeadLetter is one row of agent_dead_letters.
type AgentDeadLetter struct {
	DeadLetterID    uuid.UUID        `db:"dead_letter_id"`
	AgentID         string           `db:"agent_id"`
	SubscriptionID  string           `db:"subscription_id"`
	EventID         uuid.UUID        `db:"event_id"`
	GlobalPosition  int64            `db:"global_position"`
	SanitizedError  string           `db:"sanitized_error"`
	AttemptCount    int              `db:"attempt_count"`
	Status          DeadLetterStatus `db:"status"`
	CreatedAt       time.Time        `db:"created_at"`
}

// DeadLetterStore is agent_dead_letters CRUD.
type DeadLetterStore struct {
	db *sqlx.DB
}

func NewDeadLetterStore(db *sqlx.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Record persists a failure from any step of the subscription handler,
// sanitizing the triggering error first.
func (s *DeadLetterStore) Record(ctx context.Context, agentID, subscriptionID string, eventID uuid.UUID, globalPosition int64, cause error) (AgentDeadLetter, error) {
	dl := AgentDeadLetter{
		DeadLetterID:   uuid.New(),
		AgentID:        agentID,
		SubscriptionID: subscriptionID,
		EventID:        eventID,
		GlobalPosition: globalPosition,
		SanitizedError: sanitizeError(cause.Error()),
		AttemptCount:   1,
		Status:         DeadLetterPending,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_dead_letters (dead_letter_id, agent_id, subscription_id, event_id, global_position, sanitized_error, attempt_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')`,
		dl.DeadLetterID, dl.AgentID, dl.SubscriptionID, dl.EventID, dl.GlobalPosition, dl.SanitizedError, dl.AttemptCount)
	if err != nil {
		return AgentDeadLetter{}, fmt.Errorf("agentbc: record dead letter: %w", err)
	}
	return dl, nil
}

// ListPending returns up to limit pending dead letters, optionally filtered
// to one agent, most recent first.
func (s *DeadLetterStore) ListPending(ctx context.Context, agentID string, limit int) ([]AgentDeadLetter, error) {
	var rows []AgentDeadLetter
	var err error
	if agentID != "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM agent_dead_letters WHERE status = 'pending' AND agent_id = $1
			ORDER BY created_at DESC LIMIT $2`,
			agentID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM agent_dead_letters WHERE status = 'pending'
			ORDER BY created_at DESC LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("agentbc: list dead letters: %w", err)
	}
	return rows, nil
}

// Get loads a single dead letter by id.
func (s *DeadLetterStore) Get(ctx context.Context, deadLetterID uuid.UUID) (AgentDeadLetter, error) {
	var dl AgentDeadLetter
	if err := s.db.GetContext(ctx, &dl, `SELECT * FROM agent_dead_letters WHERE dead_letter_id = $1`, deadLetterID); err != nil {
		return AgentDeadLetter{}, fmt.Errorf("agentbc: get dead letter: %w", err)
	}
	return dl, nil
}

// SetStatus transitions pending -> replayed|ignored.
func (s *DeadLetterStore) SetStatus(ctx context.Context, deadLetterID uuid.UUID, status DeadLetterStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_dead_letters SET status = $1 WHERE dead_letter_id = $2 AND status = 'pending'`,
		status, deadLetterID)
	if err != nil {
		return fmt.Errorf("agentbc: set dead letter status: %w", err)
	}
	return nil
}
