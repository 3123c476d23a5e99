package agentbc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PendingApproval is one row of pending_approvals.
type PendingApproval struct {
	ApprovalID      uuid.UUID      `db:"approval_id"`
	AgentID         string         `db:"agent_id"`
	DecisionID      string         `db:"decision_id"`
	ActionType      string         `db:"action_type"`
	ActionPayload   []byte         `db:"action_payload"`
	Confidence      float64        `db:"confidence"`
	Reason          string         `db:"reason"`
	Status          ApprovalStatus `db:"status"`
	RequestedAt     time.Time      `db:"requested_at"`
	ExpiresAt       time.Time      `db:"expires_at"`
	ReviewerID      *string        `db:"reviewer_id"`
	ReviewedAt      *time.Time     `db:"reviewed_at"`
	ReviewNote      *string        `db:"review_note"`
	RejectionReason *string        `db:"rejection_reason"`
}

// ApprovalStore is pending_approvals CRUD plus the FSM-guarded transitions.
type ApprovalStore struct {
	db *sqlx.DB
}

func NewApprovalStore(db *sqlx.DB) *ApprovalStore {
	return &ApprovalStore{db: db}
}

// Create raises a new pending approval.
func (s *ApprovalStore) Create(ctx context.Context, pa PendingApproval) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_approvals
			(approval_id, agent_id, decision_id, action_type, action_payload, confidence, reason, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)`,
		pa.ApprovalID, pa.AgentID, pa.DecisionID, pa.ActionType, pa.ActionPayload, pa.Confidence, pa.Reason, pa.ExpiresAt)
	if err != nil {
		return fmt.Errorf("agentbc: create pending approval: %w", err)
	}
	return nil
}

// Get loads an approval by id.
func (s *ApprovalStore) Get(ctx context.Context, approvalID uuid.UUID) (PendingApproval, error) {
	var pa PendingApproval
	err := s.db.GetContext(ctx, &pa, `SELECT * FROM pending_approvals WHERE approval_id = $1`, approvalID)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingApproval{}, fmt.Errorf("agentbc: no pending approval %s", approvalID)
	}
	if err != nil {
		return PendingApproval{}, fmt.Errorf("agentbc: get pending approval: %w", err)
	}
	return pa, nil
}

// ListPending returns up to limit pending approvals, optionally filtered to
// one agent, oldest-requested first (so operators clear the queue in
// request order).
func (s *ApprovalStore) ListPending(ctx context.Context, agentID string, limit int) ([]PendingApproval, error) {
	var rows []PendingApproval
	var err error
	if agentID != "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM pending_approvals WHERE status = 'pending' AND agent_id = $1
			ORDER BY requested_at ASC LIMIT $2`,
			agentID, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT * FROM pending_approvals WHERE status = 'pending'
			ORDER BY requested_at ASC LIMIT $1`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("agentbc: list pending approvals: %w", err)
	}
	return rows, nil
}

// Transition asserts and applies an approval FSM event, row-locking the
// approval for the duration of the check-and-update. Expiry (event may be
// lazily computed by the caller from ExpiresAt, or forced by an admin
// sweep) uses the same path as an explicit approve/reject.
func (s *ApprovalStore) Transition(ctx context.Context, approvalID uuid.UUID, event ApprovalEvent, reviewerID, note *string) (PendingApproval, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return PendingApproval{}, fmt.Errorf("agentbc: begin approval transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pa PendingApproval
	if err := tx.GetContext(ctx, &pa, `SELECT * FROM pending_approvals WHERE approval_id = $1 FOR UPDATE`, approvalID); err != nil {
		return PendingApproval{}, fmt.Errorf("agentbc: lock pending approval: %w", err)
	}

	next, err := ApprovalFSM.AssertApply(pa.Status, event)
	if err != nil {
		return PendingApproval{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pending_approvals
		SET status = $1, reviewer_id = COALESCE($2, reviewer_id), review_note = COALESCE($3, review_note),
		    rejection_reason = CASE WHEN $1 = 'rejected' THEN $3 ELSE rejection_reason END,
		    reviewed_at = now()
		WHERE approval_id = $4`,
		next, reviewerID, note, approvalID)
	if err != nil {
		return PendingApproval{}, fmt.Errorf("agentbc: persist approval transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PendingApproval{}, fmt.Errorf("agentbc: commit approval transition: %w", err)
	}
	pa.Status = next
	return pa, nil
}

// ExpireDue transitions every pending approval whose expiresAt has passed
// to expired, returning the affected approval ids — the admin sweep's
// forced-expiration mechanism.
func (s *ApprovalStore) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids, `
		UPDATE pending_approvals
		SET status = 'expired', reviewed_at = $1
		WHERE status = 'pending' AND expires_at <= $1
		RETURNING approval_id`,
		now)
	if err != nil {
		return nil, fmt.Errorf("agentbc: expire due approvals: %w", err)
	}
	return ids, nil
}
