package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/internal/store"
	"github.com/coreflow/runtime/pkg/domainport"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/workpool"
)

// envelopeValidator is a single struct-tag validator shared across every
// Execute call, as recommended by the validator/v10 docs (it caches
// reflection work per struct type).
var envelopeValidator = validator.New()

// Orchestrator runs the 7-step command pipeline (spec.md §4.B) against a
// registry of CommandConfigs, one domainport.CommandHandler per bounded
// context.
type Orchestrator struct {
	db       *sqlx.DB
	events   *eventstore.Store
	pool     *workpool.Pool
	log      *slog.Logger
	handlers map[string]domainport.CommandHandler
	configs  map[string]CommandConfig
}

// New builds an Orchestrator over the shared store, event store, and
// workpool.
func New(s *store.Store, events *eventstore.Store, pool *workpool.Pool, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		db:       s.DB,
		events:   events,
		pool:     pool,
		log:      log,
		handlers: make(map[string]domainport.CommandHandler),
		configs:  make(map[string]CommandConfig),
	}
}

// Register binds a commandType to its pipeline configuration and domain
// handler. Call once per command type at startup.
func (o *Orchestrator) Register(cfg CommandConfig, handler domainport.CommandHandler) {
	o.configs[cfg.CommandType] = cfg
	o.handlers[cfg.CommandType] = handler
}

type projectionTaskArgs struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	GlobalPosition int64  `json:"global_position"`
	Payload        []byte `json:"payload"`
}

type sagaStartArgs struct {
	EventID       string `json:"event_id"`
	CorrelationID string `json:"correlation_id"`
	Payload       []byte `json:"payload"`
}

// Execute runs the full pipeline for env: record the command, run
// middleware, invoke the domain handler, append the resulting event, and
// schedule downstream projection/saga work — all within one database
// transaction, so a crash between any two steps leaves nothing half-done.
//
// A retried Envelope with a CommandID already recorded as completed,
// rejected, or failed returns that prior outcome without re-invoking the
// handler.
func (o *Orchestrator) Execute(ctx context.Context, env Envelope) (Result, error) {
	if err := envelopeValidator.Struct(env); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidEnvelope, err)
	}

	cfg, ok := o.configs[env.CommandType]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommandType, env.CommandType)
	}
	handler, ok := o.handlers[env.CommandType]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommandType, env.CommandType)
	}

	if existing, err := getCommandRecord(ctx, o.db, env.CommandID); err != nil {
		return Result{}, err
	} else if existing != nil && existing.Status != CommandPending {
		return resultFromRecord(*existing), nil
	}

	tx, err := o.db.BeginTxx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: begin: %w", err)
	}
	defer tx.Rollback()

	// Step 1: record the command.
	if err := insertCommandRecord(ctx, tx, env); err != nil {
		if errors.Is(err, ErrDuplicateCommand) {
			tx.Rollback()
			existing, getErr := getCommandRecord(ctx, o.db, env.CommandID)
			if getErr != nil {
				return Result{}, getErr
			}
			if existing != nil {
				return resultFromRecord(*existing), nil
			}
		}
		return Result{}, err
	}

	// Step 2: middleware chain. Any middleware may short-circuit with a
	// rejection.
	mwResult, err := runChain(ctx, cfg.Middleware, env)
	if err != nil {
		return Result{}, err
	}
	if mwResult.Rejected {
		if err := completeCommandRecord(ctx, tx, env.CommandID, CommandRejected, mwResult.Code); err != nil {
			return Result{}, err
		}
		if err := tx.Commit(); err != nil {
			return Result{}, fmt.Errorf("orchestrator: commit: %w", err)
		}
		return Result{Status: ResultRejected, RejectionCode: mwResult.Code, RejectionReason: mwResult.Reason}, nil
	}

	// Step 3: invoke the domain handler.
	decision, err := handler.Handle(ctx, env.CommandType, env.Payload)
	if err != nil {
		return Result{}, err
	}

	// Step 4: rejection/conflict handling.
	switch decision.Status {
	case domainport.DecisionRejected:
		if err := completeCommandRecord(ctx, tx, env.CommandID, CommandRejected, decision.RejectionCode); err != nil {
			return Result{}, err
		}
		if err := tx.Commit(); err != nil {
			return Result{}, fmt.Errorf("orchestrator: commit: %w", err)
		}
		return Result{
			Status:          ResultRejected,
			RejectionCode:   decision.RejectionCode,
			RejectionReason: decision.RejectionReason,
			RejectionCtx:    decision.RejectionCtx,
		}, nil

	case domainport.DecisionConflict:
		if err := completeCommandRecord(ctx, tx, env.CommandID, CommandFailed, "CONCURRENT_MODIFICATION"); err != nil {
			return Result{}, err
		}
		if err := tx.Commit(); err != nil {
			return Result{}, fmt.Errorf("orchestrator: commit: %w", err)
		}
		return Result{
			Status:         ResultConflict,
			ConflictCode:   "CONCURRENT_MODIFICATION",
			CurrentVersion: decision.CurrentVersion,
		}, nil

	case domainport.DecisionError:
		if err := completeCommandRecord(ctx, tx, env.CommandID, CommandFailed, "HANDLER_ERROR"); err != nil {
			return Result{}, err
		}
		if err := tx.Commit(); err != nil {
			return Result{}, fmt.Errorf("orchestrator: commit: %w", err)
		}
		return Result{Status: ResultError, ErrorMessage: decision.ErrorMessage}, nil

	case domainport.DecisionSuccess:
		// falls through to step 5

	default:
		return Result{}, fmt.Errorf("orchestrator: unknown decision status %q", decision.Status)
	}

	// Step 5: append the event(s) the handler computed.
	appendResult, err := o.events.AppendToStreamTx(ctx, tx, decision.StreamType, decision.StreamID, decision.ExpectedVersion, cfg.BoundedContext, decision.Events)
	if err != nil {
		var conflict *eventstore.Conflict
		if errors.As(err, &conflict) {
			if cErr := completeCommandRecord(ctx, tx, env.CommandID, CommandFailed, "CONCURRENT_MODIFICATION"); cErr != nil {
				return Result{}, cErr
			}
			if cErr := tx.Commit(); cErr != nil {
				return Result{}, fmt.Errorf("orchestrator: commit: %w", cErr)
			}
			return Result{
				Status:         ResultConflict,
				ConflictCode:   "CONCURRENT_MODIFICATION",
				CurrentVersion: conflict.CurrentVersion,
			}, nil
		}
		return Result{}, err
	}

	// Step 6: schedule projection work.
	if cfg.PrimaryProjection != nil {
		if err := o.scheduleProjection(ctx, tx, *cfg.PrimaryProjection, appendResult, decision.Events); err != nil {
			return Result{}, err
		}
	}
	for _, proj := range cfg.SecondaryProjections {
		if err := o.scheduleProjection(ctx, tx, proj, appendResult, decision.Events); err != nil {
			return Result{}, err
		}
	}

	// Step 7: route to saga/agent subscriptions and process managers.
	for _, saga := range cfg.Sagas {
		if err := o.scheduleSagaStart(ctx, tx, saga, env, appendResult); err != nil {
			return Result{}, err
		}
	}
	for _, pm := range cfg.ProcessManagers {
		if err := o.schedulePMEvent(ctx, tx, pm, env, appendResult, decision.Events); err != nil {
			return Result{}, err
		}
	}
	for _, agentTarget := range cfg.Agents {
		if err := o.scheduleAgentEvent(ctx, tx, agentTarget, decision.StreamID, appendResult, decision.Events); err != nil {
			return Result{}, err
		}
	}

	if err := completeCommandRecord(ctx, tx, env.CommandID, CommandCompleted, fmt.Sprintf("version:%d", appendResult.NewVersion)); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("orchestrator: commit: %w", err)
	}

	o.log.Info("command executed",
		"command_id", env.CommandID, "command_type", env.CommandType, "new_version", appendResult.NewVersion)

	return Result{Status: ResultSuccess, Version: appendResult.NewVersion, Data: decision.Data}, nil
}

func (o *Orchestrator) scheduleProjection(ctx context.Context, tx *sqlx.Tx, target ProjectionTarget, appendResult *eventstore.AppendResult, events []eventstore.NewEvent) error {
	payload := firstPayload(events)
	eventType := ""
	if len(events) > 0 {
		eventType = events[0].EventType
	}
	partitionKey := target.ProjectionName
	if target.PartitionKeyFromPayload != nil {
		key, err := target.PartitionKeyFromPayload(payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNoPartitionKey, target.ProjectionName, err)
		}
		partitionKey = key
	}

	args, err := json.Marshal(projectionTaskArgs{
		EventID:        appendResult.EventIDs[0].String(),
		EventType:      eventType,
		GlobalPosition: appendResult.GlobalPositions[0],
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal projection args: %w", err)
	}

	_, err = o.pool.EnqueueTx(ctx, tx, "projection:"+target.ProjectionName, args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	if err != nil {
		return fmt.Errorf("orchestrator: schedule projection %s: %w", target.ProjectionName, err)
	}
	return nil
}

func (o *Orchestrator) scheduleSagaStart(ctx context.Context, tx *sqlx.Tx, target SagaTarget, env Envelope, appendResult *eventstore.AppendResult) error {
	args, err := json.Marshal(sagaStartArgs{
		EventID:       appendResult.EventIDs[0].String(),
		CorrelationID: env.CorrelationID.String(),
		Payload:       env.Payload,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal saga start args: %w", err)
	}

	partitionKey := target.SagaType + ":" + env.CorrelationID.String()
	_, err = o.pool.EnqueueTx(ctx, tx, "saga-start:"+target.SagaType, args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	if err != nil {
		return fmt.Errorf("orchestrator: schedule saga start %s: %w", target.SagaType, err)
	}
	return nil
}

func (o *Orchestrator) schedulePMEvent(ctx context.Context, tx *sqlx.Tx, target PMTarget, env Envelope, appendResult *eventstore.AppendResult, events []eventstore.NewEvent) error {
	eventType := ""
	if len(events) > 0 {
		eventType = events[0].EventType
	}
	args, err := json.Marshal(struct {
		EventID        string `json:"event_id"`
		EventType      string `json:"event_type"`
		GlobalPosition int64  `json:"global_position"`
		CorrelationID  string `json:"correlation_id"`
		Payload        []byte `json:"payload"`
	}{
		EventID:        appendResult.EventIDs[0].String(),
		EventType:      eventType,
		GlobalPosition: appendResult.GlobalPositions[0],
		CorrelationID:  env.CorrelationID.String(),
		Payload:        firstPayload(events),
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal pm event args: %w", err)
	}

	partitionKey := target.PMName + ":" + env.CorrelationID.String()
	_, err = o.pool.EnqueueTx(ctx, tx, "pm-event:"+target.PMName, args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	if err != nil {
		return fmt.Errorf("orchestrator: schedule pm event %s: %w", target.PMName, err)
	}
	return nil
}

func (o *Orchestrator) scheduleAgentEvent(ctx context.Context, tx *sqlx.Tx, target AgentTarget, streamID string, appendResult *eventstore.AppendResult, events []eventstore.NewEvent) error {
	eventType := ""
	if len(events) > 0 {
		eventType = events[0].EventType
	}
	args, err := json.Marshal(struct {
		EventID        string `json:"event_id"`
		EventType      string `json:"event_type"`
		StreamID       string `json:"stream_id"`
		GlobalPosition int64  `json:"global_position"`
	}{
		EventID:        appendResult.EventIDs[0].String(),
		EventType:      eventType,
		StreamID:       streamID,
		GlobalPosition: appendResult.GlobalPositions[0],
	})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal agent event args: %w", err)
	}

	partitionKey := target.AgentID + ":" + streamID
	_, err = o.pool.EnqueueTx(ctx, tx, "agent-event:"+target.AgentID, args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	if err != nil {
		return fmt.Errorf("orchestrator: schedule agent event %s: %w", target.AgentID, err)
	}
	return nil
}

func firstPayload(events []eventstore.NewEvent) []byte {
	if len(events) == 0 {
		return nil
	}
	return events[0].Payload
}

// resultFromRecord reconstructs a coarse Result from a previously completed
// CommandRecord — enough for an idempotent retry to see the same terminal
// status without re-running the handler. Callers that need the original
// Data/Version should read the appended event(s) via eventstore instead.
func resultFromRecord(rec CommandRecord) Result {
	switch rec.Status {
	case CommandCompleted:
		return Result{Status: ResultSuccess}
	case CommandRejected:
		code := ""
		if rec.ResultDigest != nil {
			code = *rec.ResultDigest
		}
		return Result{Status: ResultRejected, RejectionCode: code}
	case CommandFailed:
		digest := ""
		if rec.ResultDigest != nil {
			digest = *rec.ResultDigest
		}
		if digest == "CONCURRENT_MODIFICATION" {
			return Result{Status: ResultConflict, ConflictCode: digest}
		}
		return Result{Status: ResultError, ErrorMessage: digest}
	default:
		return Result{Status: ResultError, ErrorMessage: "command record in unexpected state"}
	}
}
