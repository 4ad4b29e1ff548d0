package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/source"
	apperrors "relgraph/backend/pkg/errors"
	"relgraph/backend/pkg/logger"
)

// Neo4j status codes treated as idempotent conflicts.
var neo4jConflictCodes = []string{
	"Neo.ClientError.Database.ExistingDatabaseFound",
	"Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists",
	"Neo.ClientError.Schema.IndexAlreadyExists",
}

// Repository is the Neo4j-backed Store. Neo4j has no savepoints, so each
// applied fragment runs in its own managed write transaction and the
// per-definition Commit only releases resources.
type Repository struct {
	driver   neo4j.DriverWithContext
	source   *sql.DB
	database string
	logger   *zap.Logger
}

// NewRepository creates a graph repository writing into database (empty for
// the server default) and reading source rows from src.
func NewRepository(driver neo4j.DriverWithContext, src *sql.DB, database string) *Repository {
	return &Repository{
		driver:   driver,
		source:   src,
		database: database,
		logger:   logger.Get(),
	}
}

// OpenRepository connects to uri and verifies connectivity.
func OpenRepository(ctx context.Context, uri, user, password, database string, src *sql.DB) (*Repository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, "", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, neo4jCode(err), err)
	}
	return NewRepository(driver, src, database), nil
}

// Name implements Store.
func (r *Repository) Name() string {
	if r.database == "" {
		return "neo4j"
	}
	return r.database
}

// Dialect reports backslash escaping; Neo4j rejects doubled quotes.
func (r *Repository) Dialect() cypher.Dialect {
	return cypher.DialectNeo4j
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// CreateGraph creates the configured database. The server default database
// always exists and is reported as a conflict.
func (r *Repository) CreateGraph(ctx context.Context) error {
	if r.database == "" {
		return apperrors.NewConflict("", "default database already exists", nil)
	}
	if !cypher.IsIdentifier(r.database) {
		return apperrors.NewConfigValidationFailed("NEO4J_DATABASE", fmt.Sprintf("invalid database name %q", r.database))
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: "system"})
	defer session.Close(ctx)

	query := fmt.Sprintf("CREATE DATABASE %s WAIT", r.database)
	if _, err := session.Run(ctx, query, nil); err != nil {
		return classifyNeo4j(err, query)
	}

	r.logger.Info("Database created", zap.String("database", r.database))
	return nil
}

// Begin implements Store.
func (r *Repository) Begin(ctx context.Context) (Tx, error) {
	return &repositoryTx{repo: r}, nil
}

// Run executes a fragment in a managed write transaction and collects its
// records. Transient failures are retried by the driver.
func (r *Repository) Run(ctx context.Context, fragment string) ([]Record, error) {
	session := r.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, fragment, nil)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]Record, 0, len(records))
		for _, rec := range records {
			rows = append(rows, Record(rec.Values))
		}
		return rows, nil
	})
	if err != nil {
		return nil, classifyNeo4j(err, fragment)
	}
	return out.([]Record), nil
}

// IndexExists implements Store.
func (r *Repository) IndexExists(ctx context.Context, name string) (bool, error) {
	session := r.newSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `SHOW INDEXES YIELD name WHERE name = $name RETURN name`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"name": name,
	})
	if err != nil {
		return false, classifyNeo4j(err, query)
	}
	found := result.Next(ctx)
	if err := result.Err(); err != nil {
		return false, classifyNeo4j(err, query)
	}
	return found, nil
}

// CreateIndex implements Store. Neo4j indexes do not depend on existing
// nodes, so missing storage never occurs here.
func (r *Repository) CreateIndex(ctx context.Context, label, name string) error {
	if !cypher.IsIdentifier(label) || !cypher.IsIdentifier(name) {
		return apperrors.NewFatal("", fmt.Sprintf("invalid index %q on %q", name, label), nil)
	}

	session := r.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf("CREATE INDEX %s FOR (n:%s) ON (n.id)", name, label)
	if _, err := session.Run(ctx, query, nil); err != nil {
		return classifyNeo4j(err, query)
	}
	return nil
}

func (r *Repository) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

type repositoryTx struct {
	repo *Repository
}

func (t *repositoryTx) Fetch(ctx context.Context, query string) ([]source.Row, error) {
	rows, err := source.Fetch(ctx, t.repo.source, query)
	if err != nil {
		return nil, apperrors.NewFatal(apperrors.CodeSourceQuery, "source query failed", err)
	}
	return rows, nil
}

func (t *repositoryTx) Apply(ctx context.Context, fragment string) ([]Record, error) {
	return t.repo.Run(ctx, fragment)
}

func (t *repositoryTx) Commit() error   { return nil }
func (t *repositoryTx) Rollback() error { return nil }

// classifyNeo4j maps a driver error onto the migration error taxonomy.
func classifyNeo4j(err error, query string) error {
	code := neo4jCode(err)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewGraphQueryFailed(apperrors.ErrorTypeFatal, apperrors.CodeCanceled, query, err)
	case neo4j.IsConnectivityError(err), strings.HasPrefix(code, "Neo.ClientError.Security."):
		return apperrors.NewGraphQueryFailed(apperrors.ErrorTypeFatal, code, query, err)
	}
	for _, c := range neo4jConflictCodes {
		if code == c {
			return apperrors.NewConflict(code, "already exists", err)
		}
	}
	return apperrors.NewGraphQueryFailed(apperrors.ErrorTypeRow, code, query, err)
}

func neo4jCode(err error) string {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		return nerr.Code
	}
	return ""
}
