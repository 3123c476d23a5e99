// Package domainport defines the sole mutation boundary the command
// orchestrator invokes (§4.B step 3): CommandHandler. Domain bounded
// contexts (Orders, Inventory, ...) implement this interface; the
// orchestrator neither knows nor cares what lives behind it.
package domainport

import (
	"context"

	"github.com/coreflow/runtime/pkg/eventstore"
)

// Decision is the outcome a CommandHandler returns after mutating its CMS
// snapshot and computing the event(s) that record the decision.
type Decision struct {
	Status DecisionStatus

	// Success fields.
	Events          []eventstore.NewEvent
	StreamType      string
	StreamID        string
	ExpectedVersion int
	StateUpdate     any
	Data            any

	// Rejected fields.
	RejectionCode   string
	RejectionReason string
	RejectionCtx    any

	// Conflict fields (handler-detected, distinct from the event store's
	// own OCC conflict on append).
	CurrentVersion int

	// Error fields.
	ErrorMessage string
}

type DecisionStatus string

const (
	DecisionSuccess  DecisionStatus = "success"
	DecisionRejected DecisionStatus = "rejected"
	DecisionConflict DecisionStatus = "conflict"
	DecisionError    DecisionStatus = "error"
)

// CommandHandler is the one mutation boundary: it reads/writes the domain's
// own CMS snapshot and returns the events that append, all within the
// transaction the orchestrator wraps around step 3.
type CommandHandler interface {
	Handle(ctx context.Context, commandType string, args []byte) (Decision, error)
}

// CommandHandlerFunc adapts a plain function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, commandType string, args []byte) (Decision, error)

func (f CommandHandlerFunc) Handle(ctx context.Context, commandType string, args []byte) (Decision, error) {
	return f(ctx, commandType, args)
}
