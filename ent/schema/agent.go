package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AgentCheckpoint is one agent's subscription progress and lifecycle state.
type AgentCheckpoint struct {
	ent.Schema
}

func (AgentCheckpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("agent_id").Immutable(),
		field.String("subscription_id").Immutable(),
		field.Int64("last_processed_position").Default(-1),
		field.String("last_event_id").Optional(),
		field.Enum("status").
			Values("active", "paused", "stopped", "error_recovery").
			Default("stopped"),
		field.Int("events_processed").Default(0),
		field.Bytes("config_overrides").Optional(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (AgentCheckpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_id").Unique(),
	}
}

// PendingApproval is a human-in-the-loop approval request raised by an
// agent decision whose confidence fell below its auto-approve threshold.
type PendingApproval struct {
	ent.Schema
}

func (PendingApproval) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("approval_id").Unique().Immutable(),
		field.String("agent_id").Immutable(),
		field.String("decision_id").Immutable(),
		field.String("action_type").Immutable(),
		field.Bytes("action_payload").Immutable(),
		field.Float("confidence").Immutable(),
		field.String("reason").Immutable(),
		field.Enum("status").
			Values("pending", "approved", "rejected", "expired").
			Default("pending"),
		field.Time("requested_at").Default(time.Now).Immutable(),
		field.Time("expires_at").Immutable(),
		field.String("reviewer_id").Optional(),
		field.Time("reviewed_at").Optional().Nillable(),
		field.String("review_note").Optional(),
		field.String("rejection_reason").Optional(),
	}
}

func (PendingApproval) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_id"),
		index.Fields("status"),
	}
}

// AgentAuditEvent is an append-only record of a material agent action.
// One of the 16 audit event types named in spec.md §4.G.
type AgentAuditEvent struct {
	ent.Schema
}

func (AgentAuditEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("audit_id").Unique().Immutable(),
		field.String("agent_id").Immutable(),
		field.String("decision_id").Immutable(),
		field.String("event_type").Immutable(),
		field.Time("timestamp").Default(time.Now).Immutable(),
		field.Bytes("payload").Immutable(),
	}
}

func (AgentAuditEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("agent_id"),
		index.Fields("decision_id"),
	}
}
