package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relgraph/backend/internal/cypher"
	"relgraph/backend/internal/source"
	apperrors "relgraph/backend/pkg/errors"
)

var postVotes = RelationshipDefinition{
	Type: "VOTED", From: "User", To: "Post",
	SourceQuery:   "SELECT user_id, post_id, vote_type, created_at FROM post_votes",
	MatchTemplate: cypher.DefaultMatchTemplate("User", "Post"),
	Properties:    map[string]string{"vote_type": "vote_type", "created_at": "created_at"},
	Endpoints:     [2]string{"user_id", "post_id"},
}

var voteCols = []string{"user_id", "post_id", "vote_type", "created_at"}

func seedVertices(store *memStore, keys ...string) {
	for _, k := range keys {
		store.vertices[k] = "seeded"
	}
}

func TestMaterializeRelationship(t *testing.T) {
	store := newMemStore()
	seedVertices(store, "User/7", "User/8", "Post/12")
	at := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	store.rows[postVotes.SourceQuery] = []source.Row{
		row(voteCols, int64(7), int64(12), "up", at),
		row(voteCols, int64(8), int64(12), nil, at),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	report, err := m.MaterializeRelationship(context.Background(), store, postVotes)
	require.NoError(t, err)

	assert.Equal(t, KindRelationship, report.Kind)
	assert.Equal(t, "VOTED(User->Post)", report.Name)
	assert.Equal(t, 2, report.Created)
	assert.Zero(t, report.Skipped)
	assert.Equal(t, 2, store.countType("VOTED"))

	// properties are emitted sorted by graph property name
	assert.Equal(t,
		"MATCH (a:User {id: 7}), (b:Post {id: 12}) MERGE (a)-[r:VOTED]->(b) SET r.created_at = '2024-03-09T14:05:00Z', r.vote_type = 'up' RETURN id(r)",
		store.edges["VOTED/User/7/Post/12"])
	assert.NotContains(t, store.edges["VOTED/User/8/Post/12"], "vote_type")
}

func TestMaterializeRelationship_EndpointMissing(t *testing.T) {
	store := newMemStore()
	seedVertices(store, "User/7", "Post/12")
	store.rows[postVotes.SourceQuery] = []source.Row{
		row(voteCols, int64(7), int64(12), "up", nil),
		row(voteCols, int64(7), int64(99), "down", nil),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	report, err := m.MaterializeRelationship(context.Background(), store, postVotes)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Skips, 1)
	assert.Equal(t, "7->99", report.Skips[0].Key)
	assert.Equal(t, apperrors.CodeEndpointMissing, report.Skips[0].Code)
	assert.Equal(t, 1, store.countType("VOTED"))
	assert.Equal(t, 2, len(store.vertices), "no implicit vertex is created")
}

func TestMaterializeRelationship_MissingEndpointColumn(t *testing.T) {
	store := newMemStore()
	seedVertices(store, "User/7", "Post/12")
	store.rows[postVotes.SourceQuery] = []source.Row{
		row([]string{"user_id", "vote_type"}, int64(7), "up"),
		row(voteCols, nil, int64(12), "up", nil),
		row(voteCols, int64(7), int64(12), "up", nil),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	report, err := m.MaterializeRelationship(context.Background(), store, postVotes)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Skips, 2)
	assert.Equal(t, "7->?", report.Skips[0].Key)
	assert.Equal(t, "?->?", report.Skips[1].Key)
	for _, s := range report.Skips {
		assert.Equal(t, apperrors.CodeKeyMissing, s.Code)
	}
	assert.Len(t, store.applied, 1)
}

func TestMaterializeRelationship_QuotesNonIntegerKeys(t *testing.T) {
	store := newMemStore()
	def := RelationshipDefinition{
		Type: "MEMBER_OF", From: "User", To: "Community",
		SourceQuery:   "SELECT username, slug FROM community_members",
		MatchTemplate: "MATCH (a:User {username: %s}), (b:Community {slug: %s})",
		Endpoints:     [2]string{"username", "slug"},
	}
	store.rows[def.SourceQuery] = []source.Row{
		row([]string{"username", "slug"}, "O'Brien", "go"),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	_, err := m.MaterializeRelationship(context.Background(), store, def)
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	assert.Equal(t,
		"MATCH (a:User {username: 'O''Brien'}), (b:Community {slug: 'go'}) MERGE (a)-[r:MEMBER_OF]->(b) RETURN id(r)",
		store.applied[0])
}

func TestMaterializeRelationship_UsesStoreDialect(t *testing.T) {
	store := newMemStore()
	store.dialect = cypher.DialectNeo4j
	def := RelationshipDefinition{
		Type: "MEMBER_OF", From: "User", To: "Community",
		SourceQuery:   "SELECT username, community_id, role FROM community_members",
		MatchTemplate: "MATCH (a:User {username: %s}), (b:Community {id: %s})",
		Properties:    map[string]string{"role": "role"},
		Endpoints:     [2]string{"username", "community_id"},
	}
	store.rows[def.SourceQuery] = []source.Row{
		row([]string{"username", "community_id", "role"}, "O'Brien", int64(1), "owner's pick"),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	_, err := m.MaterializeRelationship(context.Background(), store, def)
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	assert.Equal(t,
		`MATCH (a:User {username: 'O\'Brien'}), (b:Community {id: 1}) MERGE (a)-[r:MEMBER_OF]->(b) SET r.role = 'owner\'s pick' RETURN id(r)`,
		store.applied[0])
}

func TestMaterializeRelationship_SharedTypeIsIndependent(t *testing.T) {
	store := newMemStore()
	seedVertices(store, "User/1", "Post/10", "Reply/20")
	replyVotes := RelationshipDefinition{
		Type: "VOTED", From: "User", To: "Reply",
		SourceQuery:   "SELECT user_id, reply_id, vote_type FROM reply_votes",
		MatchTemplate: cypher.DefaultMatchTemplate("User", "Reply"),
		Properties:    map[string]string{"vote_type": "vote_type"},
		Endpoints:     [2]string{"user_id", "reply_id"},
	}
	store.rows[postVotes.SourceQuery] = []source.Row{row(voteCols, int64(1), int64(10), "up", nil)}
	store.rows[replyVotes.SourceQuery] = []source.Row{
		row([]string{"user_id", "reply_id", "vote_type"}, int64(1), int64(20), "down"),
		row([]string{"user_id", "reply_id", "vote_type"}, int64(1), int64(21), "down"),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	posts, err := m.MaterializeRelationship(context.Background(), store, postVotes)
	require.NoError(t, err)
	replies, err := m.MaterializeRelationship(context.Background(), store, replyVotes)
	require.NoError(t, err)

	assert.Equal(t, 1, posts.Created)
	assert.Zero(t, posts.Skipped)
	assert.Equal(t, 1, replies.Created)
	assert.Equal(t, 1, replies.Skipped)
	assert.Equal(t, 2, store.commits)
}

func TestMaterializeRelationship_BeforeVertexPass(t *testing.T) {
	store := newMemStore()
	store.rows[postVotes.SourceQuery] = []source.Row{
		row(voteCols, int64(1), int64(10), "up", nil),
		row(voteCols, int64(2), int64(10), "up", nil),
	}

	m := NewEdgeMaterializer(zap.NewNop())
	report, err := m.MaterializeRelationship(context.Background(), store, postVotes)
	require.NoError(t, err)

	assert.Zero(t, report.Created)
	assert.Equal(t, 2, report.Skipped)
	for _, s := range report.Skips {
		assert.Equal(t, apperrors.CodeEndpointMissing, s.Code)
	}
	assert.Empty(t, store.edges)
	assert.Empty(t, store.vertices)
}

func TestMaterializeRelationship_FatalRollsBack(t *testing.T) {
	store := newMemStore()
	seedVertices(store, "User/1", "User/2", "Post/10")
	store.rows[postVotes.SourceQuery] = []source.Row{
		row(voteCols, int64(1), int64(10), "up", nil),
		row(voteCols, int64(2), int64(10), "up", nil),
	}
	store.failOn["(a:User {id: 2})"] = apperrors.NewGraphQueryFailed(apperrors.ErrorTypeFatal, "57P01", "q", nil)

	m := NewEdgeMaterializer(zap.NewNop())
	_, err := m.MaterializeRelationship(context.Background(), store, postVotes)
	require.Error(t, err)
	assert.Equal(t, "57P01", apperrors.CodeOf(err))
	assert.Equal(t, 1, store.rollbacks)
	assert.Empty(t, store.edges)
}
