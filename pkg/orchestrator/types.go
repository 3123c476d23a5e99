// Package orchestrator implements the command orchestrator (spec.md §4.B):
// the 7-step pipeline that turns a command envelope into a recorded
// decision, an appended event, scheduled projection/saga fan-out, and a
// terminal command record.
package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the command entry point (spec.md §6 "Command entry").
// UserID and TargetContext are informational only (audit trail, manual
// routing override) and are not required: a system-originated command has
// no user, and the bounded context is otherwise resolved from CommandType
// via the registered CommandConfig.
type Envelope struct {
	CommandID     uuid.UUID `validate:"required"`
	CommandType   string    `validate:"required"`
	CorrelationID uuid.UUID `validate:"required"`
	Timestamp     time.Time `validate:"required"`
	UserID        string
	TargetContext string
	Payload       []byte
}

// ResultStatus discriminates the four outcomes a command execution yields.
type ResultStatus string

const (
	ResultSuccess  ResultStatus = "success"
	ResultRejected ResultStatus = "rejected"
	ResultConflict ResultStatus = "conflict"
	ResultError    ResultStatus = "error"
)

// Result is the discriminated union returned to the command's caller.
type Result struct {
	Status ResultStatus

	Version int
	Data    any

	RejectionCode   string
	RejectionReason string
	RejectionCtx    any

	ConflictCode   string // always "CONCURRENT_MODIFICATION" when Status == ResultConflict
	CurrentVersion int

	ErrorMessage string
}

// ProjectionTarget names a projection to schedule after a successful append
// and how to derive the workpool partition key for it from the event
// payload.
type ProjectionTarget struct {
	ProjectionName          string
	PartitionKeyFromPayload func(payload []byte) (string, error)
}

// SagaTarget names a saga type to start after a successful append.
type SagaTarget struct {
	SagaType string
}

// PMTarget names a process manager to notify after a successful append.
type PMTarget struct {
	PMName string
}

// AgentTarget names an agent subscription to notify after a successful
// append.
type AgentTarget struct {
	AgentID string
}

// CommandConfig binds a commandType to its domain handler, event stream
// target, middleware chain, and post-append fan-out.
type CommandConfig struct {
	CommandType          string
	StreamType           string
	Middleware           []Middleware
	PrimaryProjection    *ProjectionTarget
	SecondaryProjections []ProjectionTarget
	Sagas                []SagaTarget
	ProcessManagers      []PMTarget
	Agents               []AgentTarget
	BoundedContext       string
}
