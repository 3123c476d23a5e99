// Package saga implements the durable, checkpointed workflow runtime for
// multi-step orchestrating sagas (spec.md §4.F): each step is a mutation
// (an orchestrator command) or an explicit compensation, resumable across
// process restarts via a durable step cursor and serialized on the
// workpool partition key "{sagaType}:{sagaId}".
package saga

import (
	"context"

	"github.com/coreflow/runtime/pkg/orchestrator"
)

// Status mirrors saga_instances.status.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
)

// StepContext is what a step's Execute/Compensate sees.
type StepContext struct {
	SagaType      string
	SagaID        string
	WorkflowID    string
	TriggerEvent  TriggerEvent
	StepState     []byte // the accumulated JSON state prior steps produced
}

// TriggerEvent is the event that started the saga.
type TriggerEvent struct {
	EventID        string
	CorrelationID  string
	GlobalPosition int64
	Payload        []byte
}

// StepResult is what a successful Execute returns: the command to run
// (optional — a step may be a pure wait/compute with no command) and the
// state to merge forward into StepContext.StepState for later steps and
// for compensation.
type StepResult struct {
	Command   *orchestrator.Envelope
	NextState []byte
}

// Step is one unit of a saga's workflow. Compensate is invoked, in
// reverse step order, for every step that already executed successfully
// when a later step fails.
type Step struct {
	Name       string
	Execute    func(ctx context.Context, sc StepContext) (StepResult, error)
	Compensate func(ctx context.Context, sc StepContext) error
}

// Definition binds a sagaType to its step sequence and business-key
// derivation. sagaId must be unique per business key — at most one saga
// instance runs per (sagaType, sagaId).
type Definition struct {
	SagaType         string
	SagaIDFromPayload func(payload []byte) (string, error)
	Steps            []Step
}
