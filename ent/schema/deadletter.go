package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProjectionDeadLetter records a workpool task that exhausted retries while
// updating a projection's read model.
type ProjectionDeadLetter struct {
	ent.Schema
}

func (ProjectionDeadLetter) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("dead_letter_id").Unique().Immutable(),
		field.String("projection_name").Immutable(),
		field.String("event_id").Immutable(),
		field.String("task_id").Immutable(),
		field.String("error").Immutable(),
		field.Enum("status").
			Values("pending", "retrying", "retried", "ignored").
			Default("pending"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("resolved_at").Optional().Nillable(),
	}
}

func (ProjectionDeadLetter) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("projection_name", "status"),
	}
}

// AgentDeadLetter records an agent event-handler failure beyond its retry
// budget (spec.md §4.G "Failure policy").
type AgentDeadLetter struct {
	ent.Schema
}

func (AgentDeadLetter) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("dead_letter_id").Unique().Immutable(),
		field.String("agent_id").Immutable(),
		field.String("subscription_id").Immutable(),
		field.String("event_id").Immutable(),
		field.Int64("global_position").Immutable(),
		field.String("sanitized_error").Immutable(),
		field.Int("attempt_count").Default(1),
		field.Enum("status").
			Values("pending", "replayed", "ignored").
			Default("pending"),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (AgentDeadLetter) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_id", "status"),
	}
}
