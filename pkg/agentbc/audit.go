package agentbc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/pkg/idgen"
)

// AuditEventType is one of the 16 material-action event types every agent
// action records.
type AuditEventType string

const (
	AuditPatternDetected          AuditEventType = "PatternDetected"
	AuditCommandEmitted           AuditEventType = "CommandEmitted"
	AuditApprovalRequested        AuditEventType = "ApprovalRequested"
	AuditApprovalGranted          AuditEventType = "ApprovalGranted"
	AuditApprovalRejected         AuditEventType = "ApprovalRejected"
	AuditApprovalExpired          AuditEventType = "ApprovalExpired"
	AuditDeadLetterRecorded       AuditEventType = "DeadLetterRecorded"
	AuditCheckpointUpdated        AuditEventType = "CheckpointUpdated"
	AuditAgentCommandRouted       AuditEventType = "AgentCommandRouted"
	AuditAgentCommandRoutingFailed AuditEventType = "AgentCommandRoutingFailed"
	AuditAgentStarted             AuditEventType = "AgentStarted"
	AuditAgentPaused              AuditEventType = "AgentPaused"
	AuditAgentResumed             AuditEventType = "AgentResumed"
	AuditAgentStopped             AuditEventType = "AgentStopped"
	AuditAgentReconfigured        AuditEventType = "AgentReconfigured"
	AuditAgentErrorRecoveryStarted AuditEventType = "AgentErrorRecoveryStarted"
)

// AuditEvent is one row of agent_audit_events.
type AuditEvent struct {
	AuditID    uuid.UUID      `db:"audit_id"`
	AgentID    string         `db:"agent_id"`
	DecisionID string         `db:"decision_id"`
	EventType  AuditEventType `db:"event_type"`
	Timestamp  time.Time      `db:"timestamp"`
	Payload    []byte         `db:"payload"`
}

// AuditLog is agent_audit_events append-only write access.
type AuditLog struct {
	db *sqlx.DB
}

func NewAuditLog(db *sqlx.DB) *AuditLog {
	return &AuditLog{db: db}
}

// NewDecisionID returns a fresh "dec_{epochMs}_{8hex}" identifier, reusing
// the runtime-wide id format.
func NewDecisionID(now time.Time) string {
	return idgen.DecisionID(now)
}

// Record appends one audit event, marshaling payload to JSON.
func (l *AuditLog) Record(ctx context.Context, agentID, decisionID string, eventType AuditEventType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("agentbc: marshal audit payload: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO agent_audit_events (audit_id, agent_id, decision_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), agentID, decisionID, eventType, raw)
	if err != nil {
		return fmt.Errorf("agentbc: record audit event: %w", err)
	}
	return nil
}
