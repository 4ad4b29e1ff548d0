package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relgraph/backend/internal/graph"
	"relgraph/backend/internal/graph/age"
	"relgraph/backend/internal/migration"
	"relgraph/backend/internal/source"
	"relgraph/backend/pkg/config"
	apperrors "relgraph/backend/pkg/errors"
	"relgraph/backend/pkg/logger"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Materialize the relational schema as a graph",
		Long: `Create the graph if needed, upsert one vertex per entity row, ensure the id
indexes, then upsert one edge per relationship row.

Rows that cannot be materialized are skipped and listed in the report. Any
connection-class failure rolls back the current definition and exits 1.

Example:
  relgraph migrate
  GRAPH_BACKEND=neo4j SOURCE_DRIVER=mysql relgraph migrate --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts)
		},
	}
}

func runMigrate(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	if err := logger.Init(cfg.Env, level); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	defer logger.Sync()
	log := logger.Get()

	path := opts.Definitions
	if path == "" {
		path = cfg.DefinitionsFile
	}
	defs, err := migration.LoadDefinitions(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid definitions", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting relgraph migration",
		zap.String("backend", cfg.GraphBackend),
		zap.String("source", cfg.SourceDriver),
		zap.String("target", cfg.SourceTarget()),
	)

	orch := migration.NewOrchestrator(newConnector(cfg), defs)
	report, runErr := orch.Run(ctx)
	if report != nil {
		out := cmd.OutOrStdout()
		if runErr != nil {
			out = cmd.ErrOrStderr()
		}
		if err := writeReport(out, opts.Format, report); err != nil {
			log.Warn("Failed to write report", zap.Error(err))
		}
	}
	if runErr != nil {
		return wrapRunError(fmt.Sprintf("migration failed [%s]", apperrors.CodeOf(runErr)), runErr)
	}
	return nil
}

func writeReport(w io.Writer, format string, report *migration.Report) error {
	if format == "json" {
		return report.WriteJSON(w)
	}
	return report.WriteText(w)
}

// newConnector opens the relational source and the configured graph
// backend. The returned store owns the source database handle.
func newConnector(cfg *config.Config) migration.Connector {
	return func(ctx context.Context) (graph.Store, error) {
		db, err := source.Open(ctx, cfg.SourceDriver, cfg.SourceDSN())
		if err != nil {
			return nil, apperrors.NewGraphConnectionFailed(cfg.SourceTarget(), source.ErrorCode(err), err)
		}

		var store graph.Store
		switch cfg.GraphBackend {
		case config.BackendAGE:
			store, err = age.Open(ctx, db, cfg.GraphName)
		case config.BackendNeo4j:
			store, err = graph.OpenRepository(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, db)
		default:
			err = apperrors.NewConfigValidationFailed("GRAPH_BACKEND", fmt.Sprintf("unsupported backend %q", cfg.GraphBackend))
		}
		if err != nil {
			db.Close()
			return nil, err
		}
		return &ownedStore{Store: store, db: db}, nil
	}
}

// ownedStore closes the source database after the graph session.
type ownedStore struct {
	graph.Store
	db *sql.DB
}

func (s *ownedStore) Close() error {
	return errors.Join(s.Store.Close(), s.db.Close())
}
