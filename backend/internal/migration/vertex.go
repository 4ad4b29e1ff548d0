package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/graph"
	"relgraph/backend/internal/source"
	apperrors "relgraph/backend/pkg/errors"
)

// KeyColumn is the source column holding the relational primary key.
const KeyColumn = "id"

const unknownKey = "?"

// VertexMaterializer upserts one vertex per source row of an entity.
type VertexMaterializer struct {
	logger *zap.Logger
}

// NewVertexMaterializer creates a vertex materializer
func NewVertexMaterializer(logger *zap.Logger) *VertexMaterializer {
	return &VertexMaterializer{logger: logger}
}

// MaterializeEntity runs the vertex pass for def in one unit of work.
// Row-local failures are recorded as skips; any other error rolls the
// unit back and is returned.
func (m *VertexMaterializer) MaterializeEntity(ctx context.Context, store graph.Store, def EntityDefinition) (report DefinitionReport, err error) {
	report = DefinitionReport{Kind: KindEntity, Name: def.Label}
	log := m.logger.With(zap.String("label", def.Label))

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
		log.Info("No source rows, skipping entity")
		return report, tx.Commit()
	}

	for _, row := range rows {
		if err = canceled(ctx); err != nil {
			return report, err
		}
		key, rowErr := m.applyRow(ctx, tx, store.Dialect(), def, row)
		if rowErr == nil {
			report.Created++
			continue
		}
		if !apperrors.IsRowLocal(rowErr) {
			err = rowErr
			return report, err
		}
		report.skip(key, rowErr)
		logSkip(log, def.Label, key, rowErr)
	}

	if err = tx.Commit(); err != nil {
		return report, err
	}
	logPass(log, report)
	return report, nil
}

func (m *VertexMaterializer) applyRow(ctx context.Context, tx graph.Tx, dialect cypher.Dialect, def EntityDefinition, row source.Row) (string, error) {
	id, ok := row.Get(KeyColumn)
	if !ok || cypher.IsNull(id) {
		return unknownKey, apperrors.NewRowError(apperrors.CodeKeyMissing, fmt.Sprintf("row has no %s", KeyColumn), nil)
	}
	key := fmt.Sprint(id)

	idLit, err := dialect.Identifier(id)
	if err != nil {
		return key, err
	}

	props := cypher.NewProperties(dialect)
	for i, col := range row.Columns {
		if col == KeyColumn {
			continue
		}
		if err := props.Add(col, row.Values[i]); err != nil {
			return key, err
		}
	}

	fragment, err := cypher.MergeVertex(def.Label, idLit, props)
	if err != nil {
		return key, err
	}
	records, err := tx.Apply(ctx, fragment)
	if err != nil {
		return key, err
	}
	if len(records) == 0 {
		return key, apperrors.NewRowError(apperrors.CodeNotConfirmed, "upsert returned no vertex id", nil)
	}
	return key, nil
}

func rollback(log *zap.Logger, tx graph.Tx) {
	if err := tx.Rollback(); err != nil {
		log.Error("Failed to roll back unit of work", zap.Error(err))
	}
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewFatal(apperrors.CodeCanceled, "migration canceled", err)
	}
	return nil
}

func logSkip(log *zap.Logger, definition, key string, err error) {
	log.Warn("Row skipped",
		zap.String("definition", definition),
		zap.String("key", key),
		zap.String("code", apperrors.CodeOf(err)),
		zap.Error(err),
	)
}

func logPass(log *zap.Logger, report DefinitionReport) {
	if report.Created == 0 && report.Skipped > 0 {
		log.Warn("All rows skipped",
			zap.String("definition", report.Name),
			zap.Int("skipped", report.Skipped),
		)
		return
	}
	log.Info("Definition committed",
		zap.String("definition", report.Name),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
	)
}
