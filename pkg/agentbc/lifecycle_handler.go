package agentbc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreflow/runtime/pkg/domainport"
	"github.com/coreflow/runtime/pkg/eventstore"
)

// lifecycleCommandPayload is the shared shape of StartAgent/PauseAgent/
// ResumeAgent/StopAgent/ReconfigureAgent.
type lifecycleCommandPayload struct {
	AgentID string `json:"agent_id"`
}

var lifecycleAuditEvent = map[LifecycleEvent]AuditEventType{
	EventStart:              AuditAgentStarted,
	EventPause:              AuditAgentPaused,
	EventResume:             AuditAgentResumed,
	EventStop:                AuditAgentStopped,
	EventReconfigure:        AuditAgentReconfigured,
	EventEnterErrorRecovery: AuditAgentErrorRecoveryStarted,
}

// LifecycleHandler is the domainport.CommandHandler for the five lifecycle
// commands (spec.md §4.G "command-to-event map"): it asserts the FSM
// transition against the agent's current checkpoint status, persists the
// new status, and records an event + audit row.
type LifecycleHandler struct {
	checkpoints *CheckpointStore
	audit       *AuditLog
	events      *eventstore.Store
}

func NewLifecycleHandler(checkpoints *CheckpointStore, audit *AuditLog, events *eventstore.Store) *LifecycleHandler {
	return &LifecycleHandler{checkpoints: checkpoints, audit: audit, events: events}
}

func (h *LifecycleHandler) Handle(ctx context.Context, commandType string, args []byte) (domainport.Decision, error) {
	event, ok := LifecycleEventForCommand(commandType)
	if !ok {
		return domainport.Decision{
			Status:          domainport.DecisionRejected,
			RejectionCode:   "UNKNOWN_LIFECYCLE_COMMAND",
			RejectionReason: fmt.Sprintf("%q is not a recognized agent lifecycle command", commandType),
		}, nil
	}

	var payload lifecycleCommandPayload
	if err := json.Unmarshal(args, &payload); err != nil {
		return domainport.Decision{}, fmt.Errorf("agentbc: unmarshal lifecycle command payload: %w", err)
	}

	checkpoint, err := h.checkpoints.GetOrCreate(ctx, payload.AgentID, payload.AgentID)
	if err != nil {
		return domainport.Decision{}, err
	}

	next, err := Lifecycle.AssertApply(checkpoint.Status, event)
	if err != nil {
		return domainport.Decision{
			Status:          domainport.DecisionRejected,
			RejectionCode:   "INVALID_LIFECYCLE_TRANSITION",
			RejectionReason: err.Error(),
		}, nil
	}

	if err := h.checkpoints.SetStatus(ctx, payload.AgentID, next); err != nil {
		return domainport.Decision{}, err
	}

	decisionID := NewDecisionID(time.Now())
	auditType, ok := lifecycleAuditEvent[event]
	if !ok {
		auditType = AuditAgentReconfigured
	}
	_ = h.audit.Record(ctx, payload.AgentID, decisionID, auditType, map[string]any{"from": checkpoint.Status, "to": next})

	eventPayload, err := json.Marshal(map[string]any{"agent_id": payload.AgentID, "from": checkpoint.Status, "to": next})
	if err != nil {
		return domainport.Decision{}, fmt.Errorf("agentbc: marshal lifecycle event payload: %w", err)
	}

	currentVersion, err := h.events.GetStreamVersion(ctx, "agent", payload.AgentID)
	if err != nil {
		return domainport.Decision{}, fmt.Errorf("agentbc: read agent stream version: %w", err)
	}

	return domainport.Decision{
		Status:          domainport.DecisionSuccess,
		StreamType:      "agent",
		StreamID:        payload.AgentID,
		ExpectedVersion: currentVersion,
		Events: []eventstore.NewEvent{
			{
				EventType:      string(auditType),
				BoundedContext: "agent",
				Payload:        eventPayload,
			},
		},
		Data: map[string]any{"status": next},
	}, nil
}
