package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/workpool"
)

// Executor is the subset of orchestrator.Orchestrator a saga step needs
// to run its command and observe the outcome.
type Executor interface {
	Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error)
}

// Runtime dispatches saga-start events into Definitions and drives each
// instance's steps (and compensation) via the workpool.
type Runtime struct {
	store    *Store
	pool     *workpool.Pool
	executor Executor
	defs     map[string]Definition
	log      *slog.Logger
}

// NewRuntime builds a Runtime.
func NewRuntime(db *sqlx.DB, pool *workpool.Pool, executor Executor, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{store: NewStore(db), pool: pool, executor: executor, defs: make(map[string]Definition), log: log}
}

// Register adds a saga definition.
func (r *Runtime) Register(def Definition) {
	r.defs[def.SagaType] = def
}

// Wire registers the start and step workpool handlers for every registered
// saga type; compensation runs inside the step handler.
func (r *Runtime) Wire() {
	for _, def := range r.defs {
		def := def
		r.pool.RegisterHandler("saga-start:"+def.SagaType, r.startHandler(def))
		r.pool.RegisterHandler("saga-step:"+def.SagaType, r.stepHandler(def))
	}
}

type startArgs struct {
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
	Payload       []byte `json:"payload"`
}

type stepArgs struct {
	SagaID       string       `json:"saga_id"`
	StepIndex    int          `json:"step_index"`
	TriggerEvent TriggerEvent `json:"trigger_event"`
}

func (r *Runtime) startHandler(def Definition) workpool.Handler {
	return func(ctx context.Context, task workpool.Task) error {
		var args startArgs
		if err := json.Unmarshal(task.Args, &args); err != nil {
			return fmt.Errorf("saga %s: unmarshal start args: %w", def.SagaType, err)
		}

		sagaID, err := def.SagaIDFromPayload(args.Payload)
		if err != nil {
			return fmt.Errorf("saga %s: derive saga id: %w", def.SagaType, err)
		}

		eventUUID, err := uuid.Parse(args.EventID)
		if err != nil {
			return fmt.Errorf("saga %s: parse trigger event id: %w", def.SagaType, err)
		}

		if _, err := r.store.Create(ctx, def.SagaType, sagaID, uuid.New().String(), eventUUID, 0); err != nil {
			if err == ErrAlreadyRunning {
				r.log.Info("saga: instance already started, ignoring duplicate trigger", "saga_type", def.SagaType, "saga_id", sagaID)
				return nil
			}
			return fmt.Errorf("saga %s: create instance: %w", def.SagaType, err)
		}

		trigger := TriggerEvent{EventID: args.EventID, CorrelationID: args.CorrelationID, Payload: args.Payload}
		return r.scheduleStep(ctx, def.SagaType, sagaID, 0, trigger)
	}
}

func (r *Runtime) scheduleStep(ctx context.Context, sagaType, sagaID string, stepIndex int, trigger TriggerEvent) error {
	args, err := json.Marshal(stepArgs{SagaID: sagaID, StepIndex: stepIndex, TriggerEvent: trigger})
	if err != nil {
		return fmt.Errorf("saga %s: marshal step args: %w", sagaType, err)
	}
	partitionKey := sagaType + ":" + sagaID
	_, err = r.pool.Enqueue(ctx, "saga-step:"+sagaType, args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	if err != nil {
		return fmt.Errorf("saga %s: schedule step %d: %w", sagaType, stepIndex, err)
	}
	return nil
}

func (r *Runtime) stepHandler(def Definition) workpool.Handler {
	return func(ctx context.Context, task workpool.Task) error {
		var args stepArgs
		if err := json.Unmarshal(task.Args, &args); err != nil {
			return fmt.Errorf("saga %s: unmarshal step args: %w", def.SagaType, err)
		}

		inst, err := r.store.Get(ctx, def.SagaType, args.SagaID)
		if err != nil {
			return fmt.Errorf("saga %s: load instance: %w", def.SagaType, err)
		}
		if inst.Status == StatusCompensating {
			// a retry after a failed or interrupted compensation re-runs the loop
			return r.compensate(ctx, def, args.SagaID, args.StepIndex-1, args.TriggerEvent, inst.StepState)
		}
		if inst.Status != StatusRunning {
			return nil // already completed/failed/compensated elsewhere
		}

		if args.StepIndex >= len(def.Steps) {
			return r.store.MarkStatus(ctx, def.SagaType, args.SagaID, StatusCompleted, nil)
		}

		step := def.Steps[args.StepIndex]
		sc := StepContext{
			SagaType:     def.SagaType,
			SagaID:       args.SagaID,
			WorkflowID:   inst.WorkflowID,
			TriggerEvent: args.TriggerEvent,
			StepState:    inst.StepState,
		}

		result, err := step.Execute(ctx, sc)
		if err == nil && result.Command != nil {
			cmdResult, cmdErr := r.executor.Execute(ctx, *result.Command)
			if cmdErr != nil {
				err = cmdErr
			} else if cmdResult.Status != orchestrator.ResultSuccess {
				err = fmt.Errorf("saga %s: step %q command rejected/conflicted: %s", def.SagaType, step.Name, cmdResult.Status)
			}
		}

		if err != nil {
			r.log.Warn("saga: step failed, starting compensation", "saga_type", def.SagaType, "saga_id", args.SagaID, "step", step.Name, "error", err)
			errMsg := err.Error()
			if markErr := r.store.MarkStatus(ctx, def.SagaType, args.SagaID, StatusCompensating, &errMsg); markErr != nil {
				return markErr
			}
			return r.compensate(ctx, def, args.SagaID, args.StepIndex-1, args.TriggerEvent, inst.StepState)
		}

		nextIndex := args.StepIndex + 1
		if err := r.store.AdvanceStep(ctx, def.SagaType, args.SagaID, nextIndex, result.NextState); err != nil {
			return err
		}
		if nextIndex >= len(def.Steps) {
			return r.store.MarkStatus(ctx, def.SagaType, args.SagaID, StatusCompleted, nil)
		}
		return r.scheduleStep(ctx, def.SagaType, args.SagaID, nextIndex, args.TriggerEvent)
	}
}

// compensate runs Compensate for every already-succeeded step, from
// fromStepIndex down to 0, synchronously within one task attempt. Each
// Compensate must be idempotent: a crash mid-loop causes the whole loop
// to re-run on retry.
func (r *Runtime) compensate(ctx context.Context, def Definition, sagaID string, fromStepIndex int, trigger TriggerEvent, stepState []byte) error {
	sc := StepContext{SagaType: def.SagaType, SagaID: sagaID, TriggerEvent: trigger, StepState: stepState}
	for i := fromStepIndex; i >= 0; i-- {
		step := def.Steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx, sc); err != nil {
			return fmt.Errorf("saga %s: compensate step %q: %w", def.SagaType, step.Name, err)
		}
	}
	return r.store.MarkStatus(ctx, def.SagaType, sagaID, StatusCompensated, nil)
}
