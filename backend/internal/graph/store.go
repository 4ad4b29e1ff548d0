package graph

import (
	"context"
	"strings"

	"github.com/go-openapi/inflect"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/source"
)

// Record is one result row returned by a graph-query fragment.
type Record []any

// Store is an open session against a graph-capable store. Implementations
// are used by a single goroutine.
type Store interface {
	// Name is the graph (or database) the store writes into.
	Name() string
	// Dialect is the literal escaping the store's query parser expects.
	Dialect() cypher.Dialect
	// CreateGraph creates the named graph; an existing graph yields a
	// conflict error.
	CreateGraph(ctx context.Context) error
	// Begin opens the unit of work for one entity or relationship definition.
	Begin(ctx context.Context) (Tx, error)
	IndexExists(ctx context.Context, name string) (bool, error)
	// CreateIndex creates index name on the id property of label. A label
	// that has no storage yet yields a missing-storage error.
	CreateIndex(ctx context.Context, label, name string) error
	Close() error
}

// Tx is the unit of work for one definition.
type Tx interface {
	// Fetch reads the definition's source rows.
	Fetch(ctx context.Context, query string) ([]source.Row, error)
	// Apply runs one fragment in its own nested unit of work. On failure
	// only that unit is undone and earlier fragments stay applied.
	Apply(ctx context.Context, fragment string) ([]Record, error)
	Commit() error
	Rollback() error
}

// IndexName derives the deterministic id-index name for label,
// e.g. EventParticipant -> idx_event_participant_id.
func IndexName(label string) string {
	return "idx_" + strings.ToLower(inflect.Underscore(label)) + "_id"
}
