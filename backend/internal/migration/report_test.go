package migration

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "relgraph/backend/pkg/errors"
)

func sampleReport() *Report {
	start := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	votes := DefinitionReport{Kind: KindRelationship, Name: "VOTED(User->Post)", Rows: 2, Created: 1}
	votes.skip("2->11", apperrors.NewRowError(apperrors.CodeEndpointMissing, "no Post vertex 11", nil))

	return &Report{
		RunID:      "run-1",
		Graph:      "social_graph",
		State:      StateFinished,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Definitions: []DefinitionReport{
			{Kind: KindEntity, Name: "User", Rows: 3, Created: 3},
			votes,
		},
		Indexes: []IndexReport{
			{Label: "User", Name: "idx_user_id", Outcome: IndexCreated},
			{Label: "Tag", Name: "idx_tag_id", Outcome: IndexSkipped, Code: "22P02", Message: "invalid input syntax"},
		},
	}
}

func TestReportWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteText(&buf))
	out := buf.String()

	assert.Contains(t, out, "run run-1 on graph social_graph: finished in 1.5s")
	assert.Regexp(t, `entity\s+User\s+3\s+3\s+0`, out)
	assert.Regexp(t, `relationship\s+VOTED\(User->Post\)\s+2\s+1\s+1`, out)
	assert.Regexp(t, `TOTAL\s+4\s+1`, out)
	assert.Regexp(t, `User\s+idx_user_id\s+created`, out)
	assert.Regexp(t, `Tag\s+idx_tag_id\s+skipped \(22P02\)`, out)
	assert.Contains(t, out, "VOTED(User->Post) key=2->11 code=ENDPOINT_MISSING")
}

func TestReportWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteJSON(&buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, StateFinished, decoded.State)
	require.Len(t, decoded.Definitions, 2)
	require.Len(t, decoded.Definitions[1].Skips, 1)
	assert.Equal(t, "ENDPOINT_MISSING", decoded.Definitions[1].Skips[0].Code)
	assert.Equal(t, IndexCreated, decoded.Indexes[0].Outcome)
	assert.Empty(t, decoded.Indexes[0].Code)
	assert.Equal(t, "22P02", decoded.Indexes[1].Code)
}
