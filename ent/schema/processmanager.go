package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProcessManagerState is one instance of a process manager FSM, uniquely
// identified by (pmName, instanceId). Concurrency is serialized by the
// workpool partition key "{pmName}:{instanceId}".
type ProcessManagerState struct {
	ent.Schema
}

func (ProcessManagerState) Fields() []ent.Field {
	return []ent.Field{
		field.String("pm_name").Immutable(),
		field.String("instance_id").Immutable(),
		field.Enum("status").
			Values("idle", "processing", "completed", "failed").
			Default("idle"),
		field.Int64("last_global_position").Default(-1),
		field.Int("commands_emitted").Default(0),
		field.Int("commands_failed").Default(0),
		field.Bytes("custom_state").Optional(),
		field.Int("state_version").Default(0),
		field.String("trigger_event_id").Optional(),
		field.String("correlation_id").Optional(),
		field.String("error_message").Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("last_updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (ProcessManagerState) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("pm_name", "instance_id").Unique(),
	}
}

// SagaInstance is one durable, compensatable multi-step coordinator run,
// keyed by the business identity (sagaType, sagaId).
type SagaInstance struct {
	ent.Schema
}

func (SagaInstance) Fields() []ent.Field {
	return []ent.Field{
		field.String("saga_type").Immutable(),
		field.String("saga_id").Immutable(),
		field.String("workflow_id").Immutable(),
		field.Enum("status").
			Values("pending", "running", "completed", "failed", "compensating", "compensated").
			Default("pending"),
		field.String("trigger_event_id").Immutable(),
		field.Int64("trigger_global_position").Immutable(),
		field.String("error").Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("completed_at").Optional().Nillable(),
	}
}

func (SagaInstance) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("saga_type", "saga_id").Unique(),
	}
}
