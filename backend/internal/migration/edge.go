package migration

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/graph"
	"relgraph/backend/internal/source"
	apperrors "relgraph/backend/pkg/errors"
)

// EdgeMaterializer upserts one directed edge per source row of a
// relationship. Endpoints are matched, never created.
type EdgeMaterializer struct {
	logger *zap.Logger
}

// NewEdgeMaterializer creates an edge materializer
func NewEdgeMaterializer(logger *zap.Logger) *EdgeMaterializer {
	return &EdgeMaterializer{logger: logger}
}

// MaterializeRelationship runs the edge pass for def in one unit of work.
// A row whose endpoint vertex does not exist is skipped with
// ENDPOINT_MISSING.
func (m *EdgeMaterializer) MaterializeRelationship(ctx context.Context, store graph.Store, def RelationshipDefinition) (report DefinitionReport, err error) {
	name := def.Name()
	report = DefinitionReport{Kind: KindRelationship, Name: name}
	log := m.logger.With(zap.String("relationship", name))

	tx, err := store.Begin(ctx)
	if err != nil {
		return report, err
	}
	defer func() {
		if err != nil {
			rollback(log, tx)
		}
	}()

	rows, err := tx.Fetch(ctx, def.SourceQuery)
	if err != nil {
		return report, err
	}
	report.Rows = len(rows)
	if len(rows) == 0 {
		log.Info("No source rows, skipping relationship")
		return report, tx.Commit()
	}

	propKeys := slices.Sorted(maps.Keys(def.Properties))
	for _, row := range rows {
		if err = canceled(ctx); err != nil {
			return report, err
		}
		key, rowErr := m.applyRow(ctx, tx, store.Dialect(), def, propKeys, row)
		if rowErr == nil {
			report.Created++
			continue
		}
		if !apperrors.IsRowLocal(rowErr) {
			err = rowErr
			return report, err
		}
		report.skip(key, rowErr)
		logSkip(log, name, key, rowErr)
	}

	if err = tx.Commit(); err != nil {
		return report, err
	}
	logPass(log, report)
	return report, nil
}

func (m *EdgeMaterializer) applyRow(ctx context.Context, tx graph.Tx, dialect cypher.Dialect, def RelationshipDefinition, propKeys []string, row source.Row) (string, error) {
	var ids [2]string
	var keys [2]string
	for i, col := range def.Endpoints {
		v, ok := row.Get(col)
		if !ok || cypher.IsNull(v) {
			keys[i] = unknownKey
			return edgeKey(keys, i), apperrors.NewRowError(apperrors.CodeKeyMissing, fmt.Sprintf("endpoint column %s is missing or null", col), nil)
		}
		keys[i] = fmt.Sprint(v)
		lit, err := dialect.Identifier(v)
		if err != nil {
			return edgeKey(keys, i), err
		}
		ids[i] = lit
	}
	key := edgeKey(keys, 1)

	props := cypher.NewProperties(dialect)
	for _, prop := range propKeys {
		v, _ := row.Get(def.Properties[prop])
		if err := props.Add(prop, v); err != nil {
			return key, err
		}
	}

	fragment, err := cypher.MergeEdge(def.MatchTemplate, def.Type, ids[0], ids[1], props)
	if err != nil {
		return key, err
	}
	records, err := tx.Apply(ctx, fragment)
	if err != nil {
		return key, err
	}
	if len(records) == 0 {
		return key, apperrors.NewRowError(apperrors.CodeEndpointMissing,
			fmt.Sprintf("no %s vertex %s or no %s vertex %s", def.From, keys[0], def.To, keys[1]), nil)
	}
	return key, nil
}

// edgeKey renders "source->target" from the endpoint keys read so far.
func edgeKey(keys [2]string, upto int) string {
	if upto == 0 {
		return keys[0] + "->" + unknownKey
	}
	return keys[0] + "->" + keys[1]
}
