package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relgraph/backend/internal/migration"
	apperrors "relgraph/backend/pkg/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DEFINITIONS_FILE", "")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"migrate", "definitions", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	defs := cmd.PersistentFlags().Lookup("definitions")
	require.NotNil(t, defs)
	assert.Equal(t, "d", defs.Shorthand)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Equal(t, "definitions valid: 5 entities, 11 relationships\n", out)

	out, err = execute(t, "validate", "--format", "json")
	require.NoError(t, err)
	var result ValidateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, ValidateResult{Valid: true, Entities: 5, Relationships: 11}, result)
}

func TestValidateCommand_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  - label: 'bad label'\n"), 0o600))

	_, err := execute(t, "validate", "--definitions", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}

func TestDefinitionsCommand(t *testing.T) {
	out, err := execute(t, "definitions")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "entities:\n"))
	assert.Contains(t, out, "type: PARTICIPATES_IN")

	decoded, err := migration.DecodeDefinitions(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, migration.DefaultDefinitions(), decoded)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "validate", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "migration failed", errors.New("boom"))))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New(`unknown command "nope"`)))

	fatal := apperrors.NewFatal("08006", "connection lost", nil)
	assert.Equal(t, ExitFailure, GetExitCode(wrapRunError("migration failed", fatal)))
	cfgErr := apperrors.NewConfigMissingRequired("entities")
	assert.Equal(t, ExitCommandError, GetExitCode(wrapRunError("migration failed", cfgErr)))
}
