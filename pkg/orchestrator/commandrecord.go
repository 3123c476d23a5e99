package orchestrator

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

// CommandRecordStatus mirrors command_records.status.
type CommandRecordStatus string

const (
	CommandPending   CommandRecordStatus = "pending"
	CommandCompleted CommandRecordStatus = "completed"
	CommandRejected  CommandRecordStatus = "rejected"
	CommandFailed    CommandRecordStatus = "failed"
)

// CommandRecord is the durable row backing exactly-once command execution:
// a retried Envelope with the same CommandID finds its prior outcome here
// instead of re-running the handler.
type CommandRecord struct {
	CommandID     uuid.UUID           `db:"command_id"`
	CommandType   string              `db:"command_type"`
	Status        CommandRecordStatus `db:"status"`
	CorrelationID uuid.UUID           `db:"correlation_id"`
	ResultDigest  *string             `db:"result_digest"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

// insertCommandRecord records step 1: a pending row for env, inside tx.
// ErrDuplicateCommand is returned if commandId was already recorded —
// the caller should look the existing record up and return its outcome
// rather than re-running the handler.
func insertCommandRecord(ctx context.Context, tx *sqlx.Tx, env Envelope) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO command_records (command_id, command_type, status, correlation_id)
		VALUES ($1, $2, 'pending', $3)`,
		env.CommandID, env.CommandType, env.CorrelationID)
	if err != nil {
		if errors.Is(store.Translate(err), store.ErrDuplicateKey) {
			return ErrDuplicateCommand
		}
		return fmt.Errorf("orchestrator: insert command record: %w", err)
	}
	return nil
}

// getCommandRecord looks up a previously recorded command by id.
func getCommandRecord(ctx context.Context, db *sqlx.DB, commandID uuid.UUID) (*CommandRecord, error) {
	var rec CommandRecord
	err := db.GetContext(ctx, &rec, `SELECT * FROM command_records WHERE command_id = $1`, commandID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: get command record: %w", err)
	}
	return &rec, nil
}

// completeCommandRecord finalizes a command's outcome inside tx (steps
// 6/7 share this transaction with projection/saga scheduling per the
// orchestrator's transactional design).
func completeCommandRecord(ctx context.Context, tx *sqlx.Tx, commandID uuid.UUID, status CommandRecordStatus, digest string) error {
	var digestArg any
	if digest != "" {
		digestArg = digest
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE command_records SET status = $1, result_digest = $2, updated_at = now() WHERE command_id = $3`,
		status, digestArg, commandID)
	if err != nil {
		return fmt.Errorf("orchestrator: complete command record: %w", err)
	}
	return nil
}
