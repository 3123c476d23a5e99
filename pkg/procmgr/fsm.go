// Package procmgr implements the process manager FSM and dispatcher
// (spec.md §4.F): an event-driven coordinator that emits commands without
// awaiting, serialized per (pmName, instanceId) on the workpool.
package procmgr

import "github.com/coreflow/runtime/pkg/fsm"

// State mirrors process_manager_states.status.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Event is a process manager transition trigger.
type Event string

const (
	EventStart   Event = "START"
	EventSuccess Event = "SUCCESS"
	EventFail    Event = "FAIL"
	EventReset   Event = "RESET"
	EventRetry   Event = "RETRY"
)

// Definition is the one fixed process manager FSM shape every PM instance
// follows, regardless of pmName.
var Definition = fsm.EventDefinition[State, Event]{
	Initial: StateIdle,
	Transitions: map[State]map[Event]State{
		StateIdle: {
			EventStart: StateProcessing,
		},
		StateProcessing: {
			EventSuccess: StateCompleted,
			EventFail:    StateFailed,
		},
		StateCompleted: {
			EventReset: StateIdle,
		},
		StateFailed: {
			EventRetry: StateProcessing,
			EventReset: StateIdle,
		},
	},
}
