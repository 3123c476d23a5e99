package procmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/workpool"
)

// EventView is the slice of an event a process manager's OnEvent sees —
// enough to decide a transition and build follow-up commands, without
// exposing the full eventstore.Event shape.
type EventView struct {
	EventID        string
	EventType      string
	GlobalPosition int64
	CorrelationID  string
	Payload        []byte
}

// Decision is what a Definition's OnEvent returns: whether to transition
// the FSM, and any commands to emit through the orchestrator as a result.
type Decision struct {
	Transition  *Event
	Commands    []orchestrator.Envelope
	CustomState []byte
}

// OnEventFunc decides a process manager instance's response to one event.
type OnEventFunc func(ctx context.Context, inst Instance, event EventView) (Decision, error)

// Definition binds a pmName to the logic deriving its instance id and
// its event-handling decision function.
type Definition struct {
	PMName                 string
	InstanceIDFromPayload  func(payload []byte) (string, error)
	OnEvent                OnEventFunc
}

// CommandExecutor is the subset of orchestrator.Orchestrator a process
// manager needs: run a command, get back its outcome. Defined here (not
// imported as a concrete type) so procmgr does not need to know about
// the rest of the orchestrator's wiring.
type CommandExecutor interface {
	Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error)
}

// Manager dispatches events to registered process manager Definitions via
// the workpool, serialized per (pmName, instanceId).
type Manager struct {
	store    *Store
	pool     *workpool.Pool
	executor CommandExecutor
	defs     map[string]Definition
	log      *slog.Logger
}

// NewManager builds a Manager.
func NewManager(db *sqlx.DB, pool *workpool.Pool, executor CommandExecutor, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: NewStore(db), pool: pool, executor: executor, defs: make(map[string]Definition), log: log}
}

// Register adds a process manager definition.
func (m *Manager) Register(def Definition) {
	m.defs[def.PMName] = def
}

// Wire registers one workpool handler per registered pmName, target
// "pm-event:{pmName}".
func (m *Manager) Wire() {
	for _, def := range m.defs {
		def := def
		m.pool.RegisterHandler("pm-event:"+def.PMName, m.handlerFor(def))
	}
}

type eventArgs struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	GlobalPosition int64  `json:"global_position"`
	CorrelationID  string `json:"correlation_id"`
	Payload        []byte `json:"payload"`
}

func (m *Manager) handlerFor(def Definition) workpool.Handler {
	return func(ctx context.Context, task workpool.Task) error {
		var args eventArgs
		if err := json.Unmarshal(task.Args, &args); err != nil {
			return fmt.Errorf("procmgr %s: unmarshal task args: %w", def.PMName, err)
		}

		instanceID, err := def.InstanceIDFromPayload(args.Payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNoInstanceID, def.PMName, err)
		}

		inst, err := m.store.GetOrCreate(ctx, def.PMName, instanceID)
		if err != nil {
			return fmt.Errorf("procmgr %s: get instance: %w", def.PMName, err)
		}

		decision, err := def.OnEvent(ctx, inst, EventView{
			EventID:        args.EventID,
			EventType:      args.EventType,
			GlobalPosition: args.GlobalPosition,
			CorrelationID:  args.CorrelationID,
			Payload:        args.Payload,
		})
		if err != nil {
			return fmt.Errorf("procmgr %s: on event: %w", def.PMName, err)
		}
		if decision.Transition == nil {
			return nil
		}

		emitted, failed := 0, 0
		for _, env := range decision.Commands {
			if _, execErr := m.executor.Execute(ctx, env); execErr != nil {
				failed++
				m.log.Warn("procmgr: command emission failed", "pm_name", def.PMName, "instance_id", instanceID, "error", execErr)
			} else {
				emitted++
			}
		}

		eventID, correlationID, position := args.EventID, args.CorrelationID, args.GlobalPosition
		_, err = m.store.ApplyEvent(ctx, def.PMName, instanceID, *decision.Transition, func(Instance) (TransitionResult, error) {
			return TransitionResult{
				CustomState:        decision.CustomState,
				CommandsEmitted:    emitted,
				CommandsFailed:     failed,
				LastGlobalPosition: &position,
				TriggerEventID:     &eventID,
				CorrelationID:      &correlationID,
			}, nil
		})
		if err != nil {
			return fmt.Errorf("procmgr %s: apply event: %w", def.PMName, err)
		}
		return nil
	}
}
