package agentbc

import "github.com/coreflow/runtime/pkg/fsm"

// LifecycleState is one of an agent's four lifecycle states.
type LifecycleState string

const (
	LifecycleStopped       LifecycleState = "stopped"
	LifecycleActive        LifecycleState = "active"
	LifecyclePaused        LifecycleState = "paused"
	LifecycleErrorRecovery LifecycleState = "error_recovery"
)

// LifecycleEvent is one of the seven events that drive the lifecycle FSM.
type LifecycleEvent string

const (
	EventStart              LifecycleEvent = "START"
	EventPause              LifecycleEvent = "PAUSE"
	EventResume             LifecycleEvent = "RESUME"
	EventStop               LifecycleEvent = "STOP"
	EventReconfigure        LifecycleEvent = "RECONFIGURE"
	EventEnterErrorRecovery LifecycleEvent = "ENTER_ERROR_RECOVERY"
	EventRecover            LifecycleEvent = "RECOVER"
)

// Lifecycle is the exact 10-transition agent lifecycle FSM.
var Lifecycle = fsm.EventDefinition[LifecycleState, LifecycleEvent]{
	Initial: LifecycleStopped,
	Transitions: map[LifecycleState]map[LifecycleEvent]LifecycleState{
		LifecycleStopped: {
			EventStart: LifecycleActive,
		},
		LifecycleActive: {
			EventPause:              LifecyclePaused,
			EventStop:               LifecycleStopped,
			EventEnterErrorRecovery: LifecycleErrorRecovery,
			EventReconfigure:        LifecycleActive,
		},
		LifecyclePaused: {
			EventResume:      LifecycleActive,
			EventStop:        LifecycleStopped,
			EventReconfigure: LifecycleActive,
		},
		LifecycleErrorRecovery: {
			EventRecover: LifecycleActive,
			EventStop:    LifecycleStopped,
		},
	},
}

// commandToEvent maps the five lifecycle command types onto their FSM
// event, case-sensitively; an unknown command type has no mapping.
var commandToEvent = map[string]LifecycleEvent{
	"StartAgent":        EventStart,
	"PauseAgent":        EventPause,
	"ResumeAgent":       EventResume,
	"StopAgent":         EventStop,
	"ReconfigureAgent":  EventReconfigure,
}

// LifecycleEventForCommand returns the FSM event a lifecycle command type
// maps to, and false if the command type is not a lifecycle command.
func LifecycleEventForCommand(commandType string) (LifecycleEvent, bool) {
	ev, ok := commandToEvent[commandType]
	return ev, ok
}
