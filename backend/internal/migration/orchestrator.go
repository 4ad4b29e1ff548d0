package migration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"relgraph/backend/internal/graph"
	apperrors "relgraph/backend/pkg/errors"
	"relgraph/backend/pkg/logger"
)

// State is a step of the migration state machine.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnected      State = "connected"
	StateGraphReady     State = "graph_ready"
	StateVerticesLoaded State = "vertices_loaded"
	StateIndexesReady   State = "indexes_ready"
	StateEdgesLoaded    State = "edges_loaded"
	StateFinished       State = "finished"
	StateFailed         State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// Connector opens the store session a run writes through.
type Connector func(ctx context.Context) (graph.Store, error)

// Orchestrator sequences one migration run: graph creation, the vertex
// pass, the index pass and the edge pass.
type Orchestrator struct {
	connect Connector
	defs    *Definitions
	runID   string
	state   State
	logger  *zap.Logger

	vertices *VertexMaterializer
	edges    *EdgeMaterializer
	indexes  *IndexManager
}

// NewOrchestrator creates an orchestrator for one run over defs.
func NewOrchestrator(connect Connector, defs *Definitions) *Orchestrator {
	runID := uuid.NewString()
	log := logger.WithRun(runID)
	return &Orchestrator{
		connect:  connect,
		defs:     defs,
		runID:    runID,
		state:    StateDisconnected,
		logger:   log,
		vertices: NewVertexMaterializer(log),
		edges:    NewEdgeMaterializer(log),
		indexes:  NewIndexManager(log),
	}
}

// RunID identifies the run in logs and reports.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run performs the migration. The store is closed on every exit path. On a
// fatal error the run ends in StateFailed and the partial report is
// returned with the error.
func (o *Orchestrator) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{
		RunID:     o.runID,
		State:     o.state,
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			o.fail(err)
		}
		report.State = o.state
		report.FinishedAt = time.Now()
	}()

	if o.state != StateDisconnected {
		return report, apperrors.NewFatal("", "orchestrator already ran", nil)
	}
	if err = o.defs.Validate(); err != nil {
		return report, err
	}

	o.logger.Info("Starting migration",
		zap.Int("entities", len(o.defs.Entities)),
		zap.Int("relationships", len(o.defs.Relationships)),
	)

	store, err := o.connect(ctx)
	if err != nil {
		return report, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			o.logger.Warn("Failed to close store", zap.Error(cerr))
		}
	}()
	report.Graph = store.Name()
	o.transition(StateConnected)

	if err = store.CreateGraph(ctx); err != nil {
		if !apperrors.IsConflict(err) {
			return report, err
		}
		o.logger.Info("Graph already exists", zap.String("graph", store.Name()))
		err = nil
	}
	o.transition(StateGraphReady)

	for _, def := range o.defs.Entities {
		rep, perr := o.vertices.MaterializeEntity(ctx, store, def)
		report.Definitions = append(report.Definitions, rep)
		if perr != nil {
			return report, perr
		}
	}
	o.transition(StateVerticesLoaded)

	for _, def := range o.defs.Entities {
		rep, perr := o.indexes.EnsureIndex(ctx, store, def.Label)
		if perr != nil {
			return report, perr
		}
		report.Indexes = append(report.Indexes, rep)
	}
	o.transition(StateIndexesReady)

	for _, def := range o.defs.Relationships {
		rep, perr := o.edges.MaterializeRelationship(ctx, store, def)
		report.Definitions = append(report.Definitions, rep)
		if perr != nil {
			return report, perr
		}
	}
	o.transition(StateEdgesLoaded)

	created, skipped := report.Totals()
	o.transition(StateFinished)
	o.logger.Info("Migration finished",
		zap.Int("created", created),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(report.StartedAt)),
	)
	return report, nil
}

func (o *Orchestrator) transition(next State) {
	o.logger.Info("State transition",
		zap.String("from", string(o.state)),
		zap.String("to", string(next)),
	)
	o.state = next
}

// fail moves the run to StateFailed and logs err with a stack trace.
func (o *Orchestrator) fail(err error) {
	if o.state.Terminal() {
		return
	}
	o.logger.Error("Migration failed",
		zap.String("state", string(o.state)),
		zap.String("code", apperrors.CodeOf(err)),
		zap.Error(err),
		zap.Stack("stack"),
	)
	o.state = StateFailed
}
