// Package dcb implements dynamic consistency boundaries (spec.md §4.H): a
// named scope spanning multiple event streams, with its own optimistic
// concurrency version, used when a domain operation must atomically reason
// about streams that don't share a single stream id ("reserve across three
// products").
package dcb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/coreflow/runtime/pkg/eventstore"
)

// Scope is one dcb_scopes row.
type Scope struct {
	ScopeKey       string   `db:"scope_key"`
	CurrentVersion int      `db:"current_version"`
	StreamIDs      []string `db:"stream_ids"`
}

// VersionCheck is checkScopeVersion's discriminated result.
type VersionCheck string

const (
	VersionMatch    VersionCheck = "match"
	VersionMismatch VersionCheck = "mismatch"
	VersionNotFound VersionCheck = "not_found"
)

// Store is dcb_scopes CRUD plus the scope-level OCC operations.
type Store struct {
	db     *sqlx.DB
	events *eventstore.Store
}

func NewStore(db *sqlx.DB, events *eventstore.Store) *Store {
	return &Store{db: db, events: events}
}

// ScopeKey builds the canonical "tenant:{tenantId}:{scopeType}:{scopeId}"
// key.
func ScopeKey(tenantID, scopeType, scopeID string) string {
	return fmt.Sprintf("tenant:%s:%s:%s", tenantID, scopeType, scopeID)
}

// GetOrCreateScope creates key at version 0 if absent, otherwise returns
// the existing scope unchanged.
func (s *Store) GetOrCreateScope(ctx context.Context, key string) (Scope, error) {
	scope, err := s.get(ctx, key)
	if err == nil {
		return scope, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Scope{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dcb_scopes (scope_key, current_version, stream_ids)
		VALUES ($1, 0, '{}')
		ON CONFLICT (scope_key) DO NOTHING`,
		key)
	if err != nil {
		return Scope{}, fmt.Errorf("dcb: create scope %s: %w", key, err)
	}
	return s.get(ctx, key)
}

func (s *Store) get(ctx context.Context, key string) (Scope, error) {
	var scope Scope
	err := s.db.GetContext(ctx, &scope, `SELECT * FROM dcb_scopes WHERE scope_key = $1`, key)
	if err != nil {
		return Scope{}, err
	}
	return scope, nil
}

// CheckScopeVersion compares expected against the scope's current stored
// version, without mutating anything.
func (s *Store) CheckScopeVersion(ctx context.Context, key string, expected int) (VersionCheck, int, error) {
	scope, err := s.get(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return VersionNotFound, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("dcb: check scope version %s: %w", key, err)
	}
	if scope.CurrentVersion == expected {
		return VersionMatch, scope.CurrentVersion, nil
	}
	return VersionMismatch, scope.CurrentVersion, nil
}

// ErrVersionConflict is returned by CommitScope when expectedVersion does
// not match the scope's stored version.
var ErrVersionConflict = errors.New("dcb: scope version conflict")

// CommitScope applies an OCC-guarded bump of the scope's version and
// union-merges streamIds into it. A scope created via expectedVersion=0
// is inserted directly at version 1 (creation-and-first-commit in one
// call, for callers that skip GetOrCreateScope).
func (s *Store) CommitScope(ctx context.Context, key string, expectedVersion int, streamIDs []string) (Scope, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Scope{}, fmt.Errorf("dcb: begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing Scope
	err = tx.GetContext(ctx, &existing, `SELECT * FROM dcb_scopes WHERE scope_key = $1 FOR UPDATE`, key)
	if errors.Is(err, sql.ErrNoRows) {
		if expectedVersion != 0 {
			return Scope{}, ErrVersionConflict
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dcb_scopes (scope_key, current_version, stream_ids)
			VALUES ($1, 1, $2)`,
			key, mergeStreamIDs(nil, streamIDs))
		if err != nil {
			return Scope{}, fmt.Errorf("dcb: create scope on commit %s: %w", key, err)
		}
		if err := tx.Commit(); err != nil {
			return Scope{}, fmt.Errorf("dcb: commit create %s: %w", key, err)
		}
		return Scope{ScopeKey: key, CurrentVersion: 1, StreamIDs: mergeStreamIDs(nil, streamIDs)}, nil
	}
	if err != nil {
		return Scope{}, fmt.Errorf("dcb: lock scope %s: %w", key, err)
	}
	if existing.CurrentVersion != expectedVersion {
		return Scope{}, ErrVersionConflict
	}

	merged := mergeStreamIDs(existing.StreamIDs, streamIDs)
	next := expectedVersion + 1
	_, err = tx.ExecContext(ctx, `
		UPDATE dcb_scopes SET current_version = $1, stream_ids = $2, last_updated_at = now()
		WHERE scope_key = $3`,
		next, merged, key)
	if err != nil {
		return Scope{}, fmt.Errorf("dcb: update scope %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Scope{}, fmt.Errorf("dcb: commit update %s: %w", key, err)
	}
	return Scope{ScopeKey: key, CurrentVersion: next, StreamIDs: merged}, nil
}

func mergeStreamIDs(existing, additional []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(additional))
	out := make([]string, 0, len(existing)+len(additional))
	for _, id := range existing {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range additional {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// ReadVirtualStream aggregates events from every stream in the scope and
// returns them in globalPosition order, bounded by limit.
func (s *Store) ReadVirtualStream(ctx context.Context, key string, fromGlobalPosition int64, limit int) ([]eventstore.Event, error) {
	scope, err := s.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dcb: read virtual stream %s: %w", key, err)
	}
	if len(scope.StreamIDs) == 0 {
		return nil, nil
	}

	var merged []eventstore.Event
	for _, ref := range scope.StreamIDs {
		streamType, streamID, err := splitStreamRef(ref)
		if err != nil {
			return nil, fmt.Errorf("dcb: scope %s: %w", key, err)
		}
		events, err := s.events.ReadStream(ctx, streamType, streamID)
		if err != nil {
			return nil, fmt.Errorf("dcb: read stream %s for scope %s: %w", ref, key, err)
		}
		for _, ev := range events {
			if ev.GlobalPosition > fromGlobalPosition {
				merged = append(merged, ev)
			}
		}
	}

	sortByGlobalPosition(merged)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// splitStreamRef splits a "{streamType}:{streamId}" scope member back into
// its parts — CommitScope's streamIds are recorded in this composite form
// since a scope's streams need not share one stream type.
func splitStreamRef(ref string) (streamType, streamID string, err error) {
	idx := strings.IndexByte(ref, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("malformed stream ref %q, want {streamType}:{streamId}", ref)
	}
	return ref[:idx], ref[idx+1:], nil
}

func sortByGlobalPosition(events []eventstore.Event) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j-1].GlobalPosition > events[j].GlobalPosition; j-- {
			events[j-1], events[j] = events[j], events[j-1]
		}
	}
}
