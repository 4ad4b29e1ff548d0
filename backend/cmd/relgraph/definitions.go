package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"relgraph/backend/internal/migration"
)

// NewDefinitionsCommand creates the definitions command.
func NewDefinitionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "definitions",
		Short: "Print the effective entity and relationship definitions",
		Long: `Print the definitions a migration would use, with derived source queries
and match templates filled in. The YAML output is a valid definitions file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(rootOpts)
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}
			out, err := defs.Encode()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encode definitions", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// ValidateResult is the JSON payload of the validate command.
type ValidateResult struct {
	Valid         bool `json:"valid"`
	Entities      int  `json:"entities"`
	Relationships int  `json:"relationships"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate definitions without touching a database",
		Args:  cobra.NoArgs,
		Example: `  relgraph validate
  relgraph validate --definitions ./definitions.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(rootOpts)
			if err != nil {
				return err
			}
			result := ValidateResult{Valid: true, Entities: len(defs.Entities), Relationships: len(defs.Relationships)}
			if rootOpts.Format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "definitions valid: %d entities, %d relationships\n",
				result.Entities, result.Relationships)
			return nil
		},
	}
}

// loadDefinitions resolves the definitions file from the flag, then from
// DEFINITIONS_FILE, then falls back to the built-in tables.
func loadDefinitions(opts *RootOptions) (*migration.Definitions, error) {
	path := opts.Definitions
	if path == "" {
		_ = godotenv.Load()
		path = os.Getenv("DEFINITIONS_FILE")
	}
	defs, err := migration.LoadDefinitions(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid definitions", err)
	}
	return defs, nil
}
