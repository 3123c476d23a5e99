// Package agentbc implements the agent bounded context (spec.md §4.G): an
// event-subscribing pattern detector that either emits a command directly
// or raises a PendingApproval for human review, governed by a cost budget,
// a per-agent circuit breaker, and a lifecycle FSM, with every material
// action recorded to an append-only audit trail.
package agentbc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/orchestrator"
)

var errNoExecutorWired = errors.New("agentbc: no command executor wired")

// Default subscription priorities relative to projections (100) and sagas
// (300); agents sit in between.
const DefaultPriority = 250

// NoopExecutor is an Executor that refuses every command. It lets a
// process wire a Manager before any concrete command bus exists — every
// agent decision still routes through the approval/audit pipeline, it
// just has nowhere to land once it clears that gate.
type NoopExecutor struct{}

// Execute always fails: no command bus is wired.
func (NoopExecutor) Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error) {
	return orchestrator.Result{}, errNoExecutorWired
}

// PatternWindow bounds how much history an agent's onEvent sees.
type PatternWindow struct {
	Duration   string // "Nd|Nh|Nm"
	MinEvents  int
	EventLimit int
}

// Config is one agent's tunable policy.
type Config struct {
	PatternWindow       PatternWindow
	HumanInLoop         HumanInLoopPolicy
	ApprovalTimeout     string  // "Nm|Nh|Nd", default "24h"
	ConfidenceThreshold float64 // default 0.9
	CircuitBreaker      CircuitBreakerPolicy
}

// HumanInLoopPolicy lists which command types always/never require
// approval; anything else falls back to the confidence threshold.
type HumanInLoopPolicy struct {
	RequiresApproval []string
	AutoApprove      []string
}

// Checkpoint is an agent's durable subscription cursor.
type Checkpoint struct {
	AgentID               string
	SubscriptionID        string
	LastProcessedPosition int64
	LastEventID           *uuid.UUID
	Status                LifecycleState
	EventsProcessed       int64
	ConfigOverrides       []byte
	UpdatedAt             time.Time
}

// AgentExecutionContext is what a registered onEvent handler sees.
type AgentExecutionContext struct {
	AgentID    string
	Event      eventstore.Event
	History    []eventstore.Event
	Checkpoint Checkpoint
	Config     Config
}

// Decision is what onEvent returns: nil means "no action", and so does a
// non-nil Decision with a nil Command; neither is recorded beyond the
// checkpoint advance.
type Decision struct {
	Command          *orchestrator.Envelope
	Confidence       float64
	Reason           string
	RequiresApproval bool
}

// OnEventFunc is the agent's pattern-detection/decision logic. The Manager
// passes it no analyzer: an implementation that uses an LLM boundary
// (llmport) holds that dependency itself.
type OnEventFunc func(ctx context.Context, ec AgentExecutionContext) (*Decision, error)

// Subscription binds an agent to the event types it cares about and how to
// derive a per-entity partition key (typically streamId) from an event.
type Subscription struct {
	AgentID               string
	SubscriptionID        string
	EventTypes            []string
	PartitionKeyFromEvent func(ev eventstore.Event) (string, error)
	Priority              int // default DefaultPriority
	Config                Config
	OnEvent               OnEventFunc
}
