// Package age implements graph.Store on PostgreSQL with the Apache AGE
// extension. Graph queries and source reads share one pinned connection,
// so session settings and transactions apply to both.
package age

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/graph"
	"relgraph/backend/internal/source"
	apperrors "relgraph/backend/pkg/errors"
	"relgraph/backend/pkg/logger"
)

const (
	loadExtension = `LOAD 'age'`
	setSearchPath = `SET search_path = ag_catalog, "$user", public`
	createGraph   = `SELECT ag_catalog.create_graph($1)`
	indexExists   = `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = $1 AND indexname = $2)`

	savepoint = "relgraph_row"
)

// Store is a graph.Store over one PostgreSQL connection.
type Store struct {
	conn   *sql.Conn
	exec   *Executor
	logger *zap.Logger
}

var _ graph.Store = (*Store)(nil)

// Open pins a connection from db and prepares it for graph queries.
// Failure to load the extension is fatal.
func Open(ctx context.Context, db *sql.DB, graphName string) (*Store, error) {
	exec, err := NewExecutor(graphName)
	if err != nil {
		return nil, apperrors.NewConfigValidationFailed("GRAPH_NAME", err.Error())
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed("postgres", pqCode(err), err)
	}

	for _, stmt := range []string{loadExtension, setSearchPath} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, apperrors.NewFatal(pqCode(err), "prepare AGE session", classify(err, stmt))
		}
	}

	return &Store{
		conn:   conn,
		exec:   exec,
		logger: logger.Get(),
	}, nil
}

// Name implements graph.Store.
func (s *Store) Name() string {
	return s.exec.Graph()
}

func (s *Store) Dialect() cypher.Dialect {
	return cypher.DialectAGE
}

// Close releases the pinned connection back to the pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateGraph implements graph.Store.
func (s *Store) CreateGraph(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, createGraph, s.Name()); err != nil {
		cerr := classify(err, createGraph)
		if !apperrors.IsConflict(cerr) && strings.Contains(err.Error(), "already exists") {
			return apperrors.NewConflict(pqCode(err), "graph already exists", err)
		}
		return cerr
	}
	s.logger.Info("Graph created", zap.String("graph", s.Name()))
	return nil
}

// Begin implements graph.Store.
func (s *Store) Begin(ctx context.Context) (graph.Tx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewFatal(pqCode(err), "begin transaction", err)
	}
	return &storeTx{tx: tx, exec: s.exec}, nil
}

// IndexExists implements graph.Store. AGE keeps each graph in a schema of
// the same name.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := s.conn.QueryRowContext(ctx, indexExists, s.Name(), name).Scan(&exists); err != nil {
		return false, classify(err, indexExists)
	}
	return exists, nil
}

// CreateIndex implements graph.Store. The label's table only exists once a
// vertex of that label was created.
func (s *Store) CreateIndex(ctx context.Context, label, name string) error {
	if !cypher.IsIdentifier(label) || !cypher.IsIdentifier(name) {
		return apperrors.NewFatal("", fmt.Sprintf("invalid index %q on %q", name, label), nil)
	}
	stmt := IndexStatement(s.Name(), label, name)
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return classify(err, stmt)
	}
	return nil
}

// IndexStatement renders the DDL for the integer-cast id index of label.
//
// The index serves SQL predicates on the same expression, such as
// agtype_access_operator(properties, '"id"'::agtype)::bigint = 7 against the
// label table. Cypher property maps like MATCH (a:User {id: 7}) compile to a
// containment test on properties and are not served by it. Creation fails
// with a data exception when a vertex of label holds a non-integer id.
func IndexStatement(graphName, label, name string) string {
	return fmt.Sprintf(
		`CREATE INDEX %s ON %s.%s USING btree ((ag_catalog.agtype_access_operator(properties, '"id"'::ag_catalog.agtype)::bigint))`,
		pq.QuoteIdentifier(name), pq.QuoteIdentifier(graphName), pq.QuoteIdentifier(label))
}

type storeTx struct {
	tx   *sql.Tx
	exec *Executor
}

func (t *storeTx) Fetch(ctx context.Context, query string) ([]source.Row, error) {
	rows, err := source.Fetch(ctx, t.tx, query)
	if err != nil {
		return nil, apperrors.NewFatal(apperrors.CodeSourceQuery, "source query failed", err)
	}
	return rows, nil
}

// Apply runs fragment inside a savepoint so a failing row leaves the
// enclosing transaction usable.
func (t *storeTx) Apply(ctx context.Context, fragment string) ([]graph.Record, error) {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return nil, apperrors.NewFatal(pqCode(err), "create savepoint", err)
	}

	records, err := t.exec.Exec(ctx, t.tx, fragment)
	if err != nil {
		cerr := classify(err, fragment)
		if _, rerr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rerr != nil {
			return nil, apperrors.NewFatal(pqCode(rerr), "rollback to savepoint", errors.Join(cerr, rerr))
		}
		return nil, cerr
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return nil, apperrors.NewFatal(pqCode(err), "release savepoint", err)
	}
	return records, nil
}

func (t *storeTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return apperrors.NewFatal(pqCode(err), "commit", err)
	}
	return nil
}

func (t *storeTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return apperrors.NewFatal(pqCode(err), "rollback", err)
	}
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
