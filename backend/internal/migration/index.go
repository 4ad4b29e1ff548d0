package migration

import (
	"context"

	"go.uber.org/zap"

	"relgraph/backend/internal/graph"
	apperrors "relgraph/backend/pkg/errors"
)

// IndexManager ensures the id lookup index of each vertex label.
type IndexManager struct {
	logger *zap.Logger
}

// NewIndexManager creates an index manager
func NewIndexManager(logger *zap.Logger) *IndexManager {
	return &IndexManager{logger: logger}
}

// EnsureIndex creates the id index of label unless it already exists. A
// label without storage has no vertices and needs no index, and a label
// whose ids the index expression cannot hold (non-integer keys on AGE) is
// left unindexed. Both outcomes are reported, not returned as errors.
func (m *IndexManager) EnsureIndex(ctx context.Context, store graph.Store, label string) (IndexReport, error) {
	name := graph.IndexName(label)
	report := IndexReport{Label: label, Name: name}
	log := m.logger.With(zap.String("label", label), zap.String("index", name))

	exists, err := store.IndexExists(ctx, name)
	if err != nil {
		return report, err
	}
	if exists {
		log.Info("Index already exists")
		report.Outcome = IndexExisting
		return report, nil
	}

	err = store.CreateIndex(ctx, label, name)
	switch {
	case err == nil:
		log.Info("Index created")
		report.Outcome = IndexCreated
	case apperrors.IsConflict(err):
		log.Info("Index already exists", zap.String("code", apperrors.CodeOf(err)))
		report.Outcome = IndexExisting
	case apperrors.IsMissingStorage(err):
		log.Warn("No storage for label, index not created; load vertices of this label and re-run",
			zap.String("code", apperrors.CodeOf(err)))
		report.Outcome = IndexMissingStorage
	case apperrors.IsFatal(err):
		return report, err
	default:
		log.Warn("Index rejected by the store, edge lookups on this label will scan; check that its ids are integers",
			zap.String("code", apperrors.CodeOf(err)), zap.Error(err))
		report.Outcome = IndexSkipped
		report.Code = apperrors.CodeOf(err)
		report.Message = err.Error()
	}
	return report, nil
}
