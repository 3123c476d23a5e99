package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/internal/store"
)

// Store is the event store's handle on the shared Postgres pool.
type Store struct {
	db  *sqlx.DB
	log *slog.Logger
}

// New wraps s for event store operations.
func New(s *store.Store, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: s.DB, log: log}
}

// AppendToStream assigns versions expectedVersion+1..+N to events in order,
// writes them and the stream row in one transaction, and returns a
// Conflict error if the stream's current version has moved since the
// caller last read it.
//
// If any event carries an IdempotencyKey that already exists in the store,
// AppendToStream is a no-op for the WHOLE call and returns the identifiers
// of the events already recorded for that key (not a partial re-append) —
// callers that retry a whole command's event batch get back the original
// result instead of a duplicate.
func (s *Store) AppendToStream(ctx context.Context, streamType, streamID string, expectedVersion int, boundedContext string, events []NewEvent) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}

	for _, ne := range events {
		if idempotent, err := s.checkIdempotency(ctx, ne.IdempotencyKey); err != nil {
			return nil, err
		} else if idempotent != nil {
			return idempotent, nil
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("eventstore: begin: %w", err)
	}
	defer tx.Rollback()

	result, err := s.appendWithinTx(ctx, tx, streamType, streamID, expectedVersion, boundedContext, events)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("eventstore: commit: %w", err)
	}

	s.log.Debug("appended to stream", "stream_type", streamType, "stream_id", streamID, "new_version", result.NewVersion, "events", len(events))
	return result, nil
}

// AppendToStreamTx is AppendToStream's transactional counterpart: it
// participates in a transaction the caller owns (and commits), so the
// orchestrator can make "record the command", "invoke the domain handler"
// and "append the resulting event" one atomic unit (steps 1/3/5). The
// caller is responsible for the idempotency short-circuit check and for
// committing/rolling back tx.
func (s *Store) AppendToStreamTx(ctx context.Context, tx *sqlx.Tx, streamType, streamID string, expectedVersion int, boundedContext string, events []NewEvent) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrEmptyAppend
	}
	return s.appendWithinTx(ctx, tx, streamType, streamID, expectedVersion, boundedContext, events)
}

func (s *Store) appendWithinTx(ctx context.Context, tx *sqlx.Tx, streamType, streamID string, expectedVersion int, boundedContext string, events []NewEvent) (*AppendResult, error) {
	var currentVersion int
	err := tx.GetContext(ctx, &currentVersion,
		`SELECT current_version FROM streams WHERE stream_type = $1 AND stream_id = $2 FOR UPDATE`,
		streamType, streamID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		currentVersion = 0
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO streams (stream_type, stream_id, current_version) VALUES ($1, $2, 0)`,
			streamType, streamID); err != nil {
			return nil, fmt.Errorf("eventstore: create stream: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("eventstore: read stream version: %w", err)
	}

	if currentVersion != expectedVersion {
		return nil, &Conflict{
			StreamType:      streamType,
			StreamID:        streamID,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  currentVersion,
		}
	}

	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	result := &AppendResult{
		EventIDs:        make([]uuid.UUID, 0, len(events)),
		GlobalPositions: make([]int64, 0, len(events)),
	}

	for i, ne := range events {
		version := currentVersion + i + 1
		eventID := uuid.New()
		pos := globalPosition(nowMs, streamType, streamID, version)

		category := ne.Category
		if category == "" {
			category = CategoryDomain
		}
		schemaVersion := ne.SchemaVersion
		if schemaVersion == 0 {
			schemaVersion = 1
		}
		correlationID := uuid.Nil
		if ne.CorrelationID != nil {
			correlationID = *ne.CorrelationID
		} else if v7, err := uuid.NewV7(); err == nil {
			correlationID = v7
		} else {
			correlationID = uuid.New()
		}

		var causationID any
		if ne.CausationID != nil {
			causationID = *ne.CausationID
		}
		var idemKey any
		if ne.IdempotencyKey != nil {
			idemKey = *ne.IdempotencyKey
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (
				event_id, event_type, stream_type, stream_id, version, global_position,
				bounded_context, category, schema_version, correlation_id, causation_id,
				occurred_at, payload, metadata, idempotency_key
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			eventID, ne.EventType, streamType, streamID, version, pos,
			boundedContext, string(category), schemaVersion, correlationID, causationID,
			now, ne.Payload, ne.Metadata, idemKey,
		)
		if err != nil {
			return nil, fmt.Errorf("eventstore: insert event: %w", store.Translate(err))
		}

		result.EventIDs = append(result.EventIDs, eventID)
		result.GlobalPositions = append(result.GlobalPositions, pos)
		result.NewVersion = version
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE streams SET current_version = $1, updated_at = now() WHERE stream_type = $2 AND stream_id = $3`,
		result.NewVersion, streamType, streamID); err != nil {
		return nil, fmt.Errorf("eventstore: update stream: %w", err)
	}

	return result, nil
}

// checkIdempotency returns a synthesized AppendResult if an event with key
// already exists, nil otherwise.
func (s *Store) checkIdempotency(ctx context.Context, key *string) (*AppendResult, error) {
	if key == nil {
		return nil, nil
	}
	existing, err := s.GetByIdempotencyKey(ctx, *key)
	if errors.Is(err, ErrEventNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &AppendResult{
		EventIDs:        []uuid.UUID{existing.EventID},
		GlobalPositions: []int64{existing.GlobalPosition},
		NewVersion:      existing.Version,
	}, nil
}

type eventRow struct {
	EventID        uuid.UUID `db:"event_id"`
	EventType      string    `db:"event_type"`
	StreamType     string    `db:"stream_type"`
	StreamID       string    `db:"stream_id"`
	Version        int       `db:"version"`
	GlobalPosition int64     `db:"global_position"`
	BoundedContext string    `db:"bounded_context"`
	Category       string    `db:"category"`
	SchemaVersion  int       `db:"schema_version"`
	CorrelationID  uuid.UUID `db:"correlation_id"`
	CausationID    *uuid.UUID `db:"causation_id"`
	OccurredAt     time.Time `db:"occurred_at"`
	Payload        []byte    `db:"payload"`
	Metadata       []byte    `db:"metadata"`
	IdempotencyKey *string   `db:"idempotency_key"`
}

func (r eventRow) toEvent() Event {
	return Event{
		EventID:        r.EventID,
		EventType:      r.EventType,
		StreamType:     r.StreamType,
		StreamID:       r.StreamID,
		Version:        r.Version,
		GlobalPosition: r.GlobalPosition,
		BoundedContext: r.BoundedContext,
		Category:       Category(r.Category),
		SchemaVersion:  r.SchemaVersion,
		CorrelationID:  r.CorrelationID,
		CausationID:    r.CausationID,
		Timestamp:      r.OccurredAt,
		Payload:        r.Payload,
		Metadata:       r.Metadata,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// ReadStream returns all events for (streamType, streamId) in ascending
// version order.
func (s *Store) ReadStream(ctx context.Context, streamType, streamID string) ([]Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM events WHERE stream_type = $1 AND stream_id = $2 ORDER BY version ASC`,
		streamType, streamID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: read stream: %w", err)
	}
	return rowsToEvents(rows), nil
}

// GetStreamVersion returns the current version of a stream, or 0 if it does
// not exist yet.
func (s *Store) GetStreamVersion(ctx context.Context, streamType, streamID string) (int, error) {
	var version int
	err := s.db.GetContext(ctx, &version,
		`SELECT current_version FROM streams WHERE stream_type = $1 AND stream_id = $2`,
		streamType, streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("eventstore: get stream version: %w", err)
	}
	return version, nil
}

// ReadFromPosition returns events with globalPosition > fromPosition in
// ascending order, up to limit, optionally filtered by eventTypes and
// boundedContext. Because eventTypes is applied in memory, this over-fetches
// (3x limit) to reduce the chance of returning a short batch
// when a filter is sparse; callers must still tolerate short batches.
func (s *Store) ReadFromPosition(ctx context.Context, fromPosition int64, limit int, eventTypes []string, boundedContext string) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	fetchLimit := limit
	if len(eventTypes) > 0 {
		fetchLimit = limit * 3
	}

	query := `SELECT * FROM events WHERE global_position > $1`
	args := []any{fromPosition}
	if boundedContext != "" {
		args = append(args, boundedContext)
		query += fmt.Sprintf(" AND bounded_context = $%d", len(args))
	}
	args = append(args, fetchLimit)
	query += fmt.Sprintf(" ORDER BY global_position ASC LIMIT $%d", len(args))

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("eventstore: read from position: %w", err)
	}

	events := rowsToEvents(rows)
	if len(eventTypes) == 0 {
		return events, nil
	}

	wanted := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = true
	}
	filtered := make([]Event, 0, limit)
	for _, e := range events {
		if wanted[e.EventType] {
			filtered = append(filtered, e)
			if len(filtered) == limit {
				break
			}
		}
	}
	return filtered, nil
}

// GetByCorrelation returns every event sharing correlationID, in global
// position order, reconstructing a causal chain end to end.
func (s *Store) GetByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM events WHERE correlation_id = $1 ORDER BY global_position ASC`,
		correlationID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: get by correlation: %w", err)
	}
	return rowsToEvents(rows), nil
}

// GetByIdempotencyKey looks up the (at most one) event recorded with key.
func (s *Store) GetByIdempotencyKey(ctx context.Context, key string) (*Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM events WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore: get by idempotency key: %w", err)
	}
	e := row.toEvent()
	return &e, nil
}

// GetByGlobalPosition looks up a single event by its exact global position,
// used by replay and the admin preview endpoint.
func (s *Store) GetByGlobalPosition(ctx context.Context, position int64) (*Event, error) {
	var row eventRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM events WHERE global_position = $1`, position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("eventstore: get by global position: %w", err)
	}
	e := row.toEvent()
	return &e, nil
}

// MaxGlobalPosition returns the highest globalPosition recorded, or 0 if the
// store is empty. Used by replay to clamp fromPosition.
func (s *Store) MaxGlobalPosition(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.GetContext(ctx, &max, `SELECT MAX(global_position) FROM events`); err != nil {
		return 0, fmt.Errorf("eventstore: max global position: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

func rowsToEvents(rows []eventRow) []Event {
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events
}
