package agentbc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"

	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/workpool"
)

// Executor routes an agent-emitted command through the command bus.
type Executor interface {
	Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error)
}

// Manager dispatches matching events to registered agent Subscriptions,
// running the subscription handler pipeline (spec.md §4.G steps 1-7).
type Manager struct {
	events     *eventstore.Store
	checkpoints *CheckpointStore
	approvals  *ApprovalStore
	deadletters *DeadLetterStore
	audit      *AuditLog
	pool       *workpool.Pool
	executor   Executor
	log        *slog.Logger

	subs     map[string]Subscription
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewManager wires a Manager against its stores.
func NewManager(db *sqlx.DB, events *eventstore.Store, pool *workpool.Pool, executor Executor, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		events:      events,
		checkpoints: NewCheckpointStore(db),
		approvals:   NewApprovalStore(db),
		deadletters: NewDeadLetterStore(db),
		audit:       NewAuditLog(db),
		pool:        pool,
		executor:    executor,
		log:         log,
		subs:        make(map[string]Subscription),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register adds an agent subscription.
func (m *Manager) Register(sub Subscription) {
	if sub.Priority == 0 {
		sub.Priority = DefaultPriority
	}
	m.subs[sub.AgentID] = sub
	m.breakers[sub.AgentID] = NewCircuitBreakerWithPolicy(sub.AgentID, sub.Config.CircuitBreaker)
}

// Wire registers one workpool handler per subscription, keyed
// "agent-event:{agentId}".
func (m *Manager) Wire() {
	for agentID, sub := range m.subs {
		sub := sub
		m.pool.RegisterHandler("agent-event:"+agentID, m.handlerFor(sub))
	}
}

type agentEventArgs struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	StreamID       string `json:"stream_id"`
	GlobalPosition int64  `json:"global_position"`
}

func (m *Manager) handlerFor(sub Subscription) workpool.Handler {
	return func(ctx context.Context, task workpool.Task) error {
		var args agentEventArgs
		if err := json.Unmarshal(task.Args, &args); err != nil {
			return fmt.Errorf("agentbc %s: unmarshal event args: %w", sub.AgentID, err)
		}

		ev, lookupErr := m.lookupEvent(ctx, args.GlobalPosition)
		if lookupErr != nil {
			return fmt.Errorf("agentbc %s: load triggering event: %w", sub.AgentID, lookupErr)
		}

		if !matchesEventType(sub.EventTypes, ev.EventType) {
			return nil
		}

		if handleErr := m.handle(ctx, sub, ev); handleErr != nil {
			if _, dlErr := m.deadletters.Record(ctx, sub.AgentID, sub.SubscriptionID, ev.EventID, ev.GlobalPosition, handleErr); dlErr != nil {
				return fmt.Errorf("agentbc %s: record dead letter after handler failure %v: %w", sub.AgentID, handleErr, dlErr)
			}
			decisionID := NewDecisionID(time.Now())
			_ = m.audit.Record(ctx, sub.AgentID, decisionID, AuditDeadLetterRecorded, map[string]any{
				"eventId": ev.EventID, "globalPosition": ev.GlobalPosition, "error": handleErr.Error(),
			})
			return nil // failure is captured as a dead letter, not retried by the workpool
		}
		return nil
	}
}

func matchesEventType(eventTypes []string, eventType string) bool {
	if len(eventTypes) == 0 {
		return true
	}
	for _, t := range eventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

func (m *Manager) lookupEvent(ctx context.Context, globalPosition int64) (eventstore.Event, error) {
	ev, err := m.events.GetByGlobalPosition(ctx, globalPosition)
	if err != nil {
		return eventstore.Event{}, err
	}
	return *ev, nil
}

// handle runs the full subscription handler pipeline for one event against
// one subscription: spec.md §4.G steps 1-7.
func (m *Manager) handle(ctx context.Context, sub Subscription, ev eventstore.Event) error {
	checkpoint, err := m.checkpoints.GetOrCreate(ctx, sub.AgentID, sub.SubscriptionID)
	if err != nil {
		return err
	}
	if checkpoint.Status != LifecycleActive {
		return nil // step 1: skip when not active
	}

	history, err := m.events.ReadStream(ctx, ev.StreamType, ev.StreamID)
	if err != nil {
		return fmt.Errorf("load event history: %w", err)
	}
	filtered := filterWindow(history, sub.Config.PatternWindow, ev.Timestamp)

	if len(filtered) < sub.Config.PatternWindow.MinEvents {
		return m.checkpoints.Advance(ctx, sub.AgentID, ev.EventID, ev.GlobalPosition)
	}

	ec := AgentExecutionContext{
		AgentID:    sub.AgentID,
		Event:      ev,
		History:    filtered,
		Checkpoint: checkpoint,
		Config:     sub.Config,
	}

	breaker := m.breakers[sub.AgentID]
	result, err := breaker.Execute(func() (any, error) {
		return sub.OnEvent(ctx, ec)
	})
	if err != nil {
		return fmt.Errorf("onEvent: %w", err)
	}

	if advErr := m.checkpoints.Advance(ctx, sub.AgentID, ev.EventID, ev.GlobalPosition); advErr != nil {
		return advErr
	}

	decision, _ := result.(*Decision)
	if decision == nil || decision.Command == nil {
		return nil
	}

	decisionID := NewDecisionID(time.Now())
	_ = m.audit.Record(ctx, sub.AgentID, decisionID, AuditPatternDetected, map[string]any{
		"confidence": decision.Confidence, "reason": decision.Reason,
	})

	requiresApproval := decision.RequiresApproval || shouldRequireApproval(sub.Config.HumanInLoop, decision.Command.CommandType, decision.Confidence, sub.Config.ConfidenceThreshold)
	if requiresApproval {
		return m.raiseApproval(ctx, sub, decision, decisionID)
	}
	return m.routeCommand(ctx, sub, decision, decisionID)
}

func filterWindow(history []eventstore.Event, window PatternWindow, until time.Time) []eventstore.Event {
	d, err := ParseDuration(window.Duration)
	if err != nil {
		d = 0
	}
	cutoff := until.Add(-d)
	out := make([]eventstore.Event, 0, len(history))
	for _, ev := range history {
		if d == 0 || !ev.Timestamp.Before(cutoff) {
			out = append(out, ev)
		}
	}
	if window.EventLimit > 0 && len(out) > window.EventLimit {
		out = out[len(out)-window.EventLimit:]
	}
	return out
}

// shouldRequireApproval implements spec.md §4.G step 6's precedence:
// explicit requiresApproval list, then autoApprove list, then confidence
// threshold (default 0.9).
func shouldRequireApproval(policy HumanInLoopPolicy, commandType string, confidence, threshold float64) bool {
	for _, ct := range policy.RequiresApproval {
		if ct == commandType {
			return true
		}
	}
	for _, ct := range policy.AutoApprove {
		if ct == commandType {
			return false
		}
	}
	if threshold <= 0 {
		threshold = 0.9
	}
	return confidence < threshold
}

func (m *Manager) raiseApproval(ctx context.Context, sub Subscription, decision *Decision, decisionID string) error {
	timeout := sub.Config.ApprovalTimeout
	if timeout == "" {
		timeout = "24h"
	}
	d, err := ParseDuration(timeout)
	if err != nil {
		return fmt.Errorf("parse approval timeout: %w", err)
	}

	pa := PendingApproval{
		ApprovalID:    uuid.New(),
		AgentID:       sub.AgentID,
		DecisionID:    decisionID,
		ActionType:    decision.Command.CommandType,
		ActionPayload: decision.Command.Payload,
		Confidence:    decision.Confidence,
		Reason:        decision.Reason,
		ExpiresAt:     time.Now().Add(d),
	}
	if err := m.approvals.Create(ctx, pa); err != nil {
		return err
	}
	return m.audit.Record(ctx, sub.AgentID, decisionID, AuditApprovalRequested, map[string]any{
		"approvalId": pa.ApprovalID, "actionType": pa.ActionType, "expiresAt": pa.ExpiresAt,
	})
}

func (m *Manager) routeCommand(ctx context.Context, sub Subscription, decision *Decision, decisionID string) error {
	result, err := m.executor.Execute(ctx, *decision.Command)
	if err != nil || result.Status != orchestrator.ResultSuccess {
		reason := ""
		if err != nil {
			reason = err.Error()
		} else {
			reason = string(result.Status)
		}
		_ = m.audit.Record(ctx, sub.AgentID, decisionID, AuditAgentCommandRoutingFailed, map[string]any{
			"commandType": decision.Command.CommandType, "reason": reason,
		})
		if err != nil {
			return fmt.Errorf("route command: %w", err)
		}
		return nil
	}
	return m.audit.Record(ctx, sub.AgentID, decisionID, AuditAgentCommandRouted, map[string]any{
		"commandType": decision.Command.CommandType,
	})
}
