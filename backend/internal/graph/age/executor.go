package age

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"relgraph/backend/internal/graph"
)

// graphNameRe matches names accepted by ag_catalog.create_graph.
var graphNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Querier is satisfied by *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Executor wraps openCypher fragments in the cypher() set-returning
// function. It does not interpret errors.
type Executor struct {
	graph string
}

// NewExecutor returns an executor for graph. The name is embedded in SQL
// text, so it is restricted to lower-case identifiers.
func NewExecutor(graphName string) (*Executor, error) {
	if !graphNameRe.MatchString(graphName) {
		return nil, fmt.Errorf("invalid graph name %q", graphName)
	}
	return &Executor{graph: graphName}, nil
}

// Graph returns the graph name.
func (e *Executor) Graph() string {
	return e.graph
}

// Wrap renders the SQL statement that runs fragment against the graph. The
// fragment is dollar-quoted with a tag that does not occur inside it.
func (e *Executor) Wrap(fragment string) string {
	tag := dollarTag(fragment)
	return fmt.Sprintf("SELECT * FROM ag_catalog.cypher('%s', %s %s %s) AS (result ag_catalog.agtype)",
		e.graph, tag, fragment, tag)
}

// Exec runs fragment on q and returns one Record per result row.
func (e *Executor) Exec(ctx context.Context, q Querier, fragment string) ([]graph.Record, error) {
	rows, err := q.QueryContext(ctx, e.Wrap(fragment))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Record
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			out = append(out, graph.Record{v.String})
		} else {
			out = append(out, graph.Record{nil})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func dollarTag(fragment string) string {
	tag := "$cypher$"
	for i := 1; strings.Contains(fragment, tag); i++ {
		tag = fmt.Sprintf("$cypher%d$", i)
	}
	return tag
}
