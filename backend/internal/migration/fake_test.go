package migration

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/graph"
	"relgraph/backend/internal/source"
	apperrors "relgraph/backend/pkg/errors"
)

var (
	vertexFragmentRe = regexp.MustCompile(`^MERGE \(n:(\w+) \{id: ([^}]+)\}\)`)
	edgeFragmentRe   = regexp.MustCompile(`^MATCH \(a:(\w+) \{id: ([^}]+)\}\), \(b:(\w+) \{id: ([^}]+)\}\) MERGE \(a\)-\[r:(\w+)\]->\(b\)`)
)

// memStore is an in-memory graph.Store with MERGE semantics on the
// fragments built by the cypher package. Work applied inside a tx becomes
// visible to other units only after Commit.
type memStore struct {
	rows      map[string][]source.Row
	fetchErr  map[string]error
	failOn    map[string]error // fragment substring -> error
	graphErr  error
	indexErr  error
	vertices  map[string]string // "Label/id" -> last fragment
	edges     map[string]string // "TYPE/src/dst" -> last fragment
	indexes   map[string]bool
	applied   []string
	commits   int
	rollbacks int
	closed    bool
	dialect   cypher.Dialect
}

func newMemStore() *memStore {
	return &memStore{
		rows:     map[string][]source.Row{},
		fetchErr: map[string]error{},
		failOn:   map[string]error{},
		vertices: map[string]string{},
		edges:    map[string]string{},
		indexes:  map[string]bool{},
	}
}

func (s *memStore) Name() string { return "mem_graph" }

func (s *memStore) Dialect() cypher.Dialect { return s.dialect }

func (s *memStore) CreateGraph(ctx context.Context) error {
	if s.graphErr != nil {
		return s.graphErr
	}
	s.graphErr = apperrors.NewConflict("42P06", `graph "mem_graph" already exists`, nil)
	return nil
}

func (s *memStore) Begin(ctx context.Context) (graph.Tx, error) {
	return &memTx{
		store:    s,
		vertices: map[string]string{},
		edges:    map[string]string{},
	}, nil
}

func (s *memStore) IndexExists(ctx context.Context, name string) (bool, error) {
	return s.indexes[name], nil
}

func (s *memStore) CreateIndex(ctx context.Context, label, name string) error {
	if s.indexErr != nil {
		return s.indexErr
	}
	if s.countLabel(label) == 0 {
		return apperrors.NewMissingStorage("42P01", fmt.Sprintf(`relation "mem_graph.%s" does not exist`, label), nil)
	}
	s.indexes[name] = true
	return nil
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func (s *memStore) countLabel(label string) int {
	n := 0
	for k := range s.vertices {
		if strings.HasPrefix(k, label+"/") {
			n++
		}
	}
	return n
}

func (s *memStore) countType(relType string) int {
	n := 0
	for k := range s.edges {
		if strings.HasPrefix(k, relType+"/") {
			n++
		}
	}
	return n
}

type memTx struct {
	store    *memStore
	vertices map[string]string
	edges    map[string]string
	done     bool
}

func (t *memTx) Fetch(ctx context.Context, query string) ([]source.Row, error) {
	if err := t.store.fetchErr[query]; err != nil {
		return nil, err
	}
	return t.store.rows[query], nil
}

func (t *memTx) Apply(ctx context.Context, fragment string) ([]graph.Record, error) {
	t.store.applied = append(t.store.applied, fragment)
	for sub, err := range t.store.failOn {
		if strings.Contains(fragment, sub) {
			return nil, err
		}
	}

	if m := edgeFragmentRe.FindStringSubmatch(fragment); m != nil {
		src, dst := m[1]+"/"+m[2], m[3]+"/"+m[4]
		if !t.hasVertex(src) || !t.hasVertex(dst) {
			return nil, nil
		}
		t.edges[m[5]+"/"+src+"/"+dst] = fragment
		return []graph.Record{{int64(len(t.edges))}}, nil
	}
	if m := vertexFragmentRe.FindStringSubmatch(fragment); m != nil {
		t.vertices[m[1]+"/"+m[2]] = fragment
		return []graph.Record{{int64(len(t.vertices))}}, nil
	}
	return nil, apperrors.NewRowError("42601", "syntax error", nil)
}

func (t *memTx) hasVertex(key string) bool {
	if _, ok := t.vertices[key]; ok {
		return true
	}
	_, ok := t.store.vertices[key]
	return ok
}

func (t *memTx) Commit() error {
	t.done = true
	t.store.commits++
	for k, v := range t.vertices {
		t.store.vertices[k] = v
	}
	for k, v := range t.edges {
		t.store.edges[k] = v
	}
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.rollbacks++
	return nil
}

func row(cols []string, vals ...any) source.Row {
	return source.Row{Columns: cols, Values: vals}
}
