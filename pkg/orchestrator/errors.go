package orchestrator

import "errors"

var (
	// ErrDuplicateCommand means insertCommandRecord found commandId already
	// recorded; the orchestrator resolves this by returning the prior
	// outcome instead of re-invoking the handler.
	ErrDuplicateCommand = errors.New("orchestrator: command already recorded")

	// ErrUnknownCommandType means Execute was called with a commandType no
	// CommandConfig was registered for.
	ErrUnknownCommandType = errors.New("orchestrator: unknown command type")

	// ErrNoPartitionKey means a ProjectionTarget's PartitionKeyFromPayload
	// returned an error and the command cannot be routed to its projection.
	ErrNoPartitionKey = errors.New("orchestrator: could not derive partition key")

	// ErrInvalidEnvelope means Execute was called with an Envelope missing
	// a required field (spec.md §7's "validation" error category).
	ErrInvalidEnvelope = errors.New("orchestrator: invalid command envelope")
)
