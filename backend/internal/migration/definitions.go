// Package migration materializes a relational schema as a property graph.
//
// Definitions are plain data. One generic materializer per kind interprets
// them: every EntityDefinition becomes a vertex pass and every
// RelationshipDefinition an edge pass, sequenced by the Orchestrator.
package migration

import (
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"

	"relgraph/backend/internal/cypher"
	apperrors "relgraph/backend/pkg/errors"
)

// EntityDefinition turns each row of SourceQuery into a vertex of Label.
// The row's id column is the vertex key; every other column is a property.
type EntityDefinition struct {
	Label       string `yaml:"label" json:"label"`
	SourceQuery string `yaml:"source_query,omitempty" json:"source_query,omitempty"`
}

// RelationshipDefinition turns each row of SourceQuery into one directed
// edge of Type from the From vertex keyed by Endpoints[0] to the To vertex
// keyed by Endpoints[1].
type RelationshipDefinition struct {
	Type          string            `yaml:"type" json:"type"`
	From          string            `yaml:"from" json:"from"`
	To            string            `yaml:"to" json:"to"`
	SourceQuery   string            `yaml:"source_query" json:"source_query"`
	MatchTemplate string            `yaml:"match_template,omitempty" json:"match_template,omitempty"`
	Properties    map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"` // graph property -> source column
	Endpoints     [2]string         `yaml:"endpoints" json:"endpoints"`
}

// Name identifies the definition; several definitions may share a Type.
func (d RelationshipDefinition) Name() string {
	return fmt.Sprintf("%s(%s->%s)", d.Type, d.From, d.To)
}

// Definitions is the ordered set of passes a run performs.
type Definitions struct {
	Entities      []EntityDefinition       `yaml:"entities" json:"entities"`
	Relationships []RelationshipDefinition `yaml:"relationships" json:"relationships"`
}

// DefaultDefinitions returns the built-in tables for the social schema.
func DefaultDefinitions() *Definitions {
	defs := &Definitions{
		Entities: []EntityDefinition{
			{Label: "User", SourceQuery: "SELECT id, username, email, display_name, bio, karma, created_at FROM users"},
			{Label: "Community", SourceQuery: "SELECT id, name, description, created_at FROM communities"},
			{Label: "Post", SourceQuery: "SELECT id, title, body, score, created_at FROM posts"},
			{Label: "Reply", SourceQuery: "SELECT id, body, score, created_at FROM replies"},
			{Label: "Event", SourceQuery: "SELECT id, title, starts_at, location, created_at FROM events"},
		},
		Relationships: []RelationshipDefinition{
			{
				Type: "FOLLOWS", From: "User", To: "User",
				SourceQuery: "SELECT follower_id, followed_id, created_at FROM follows",
				Properties:  map[string]string{"since": "created_at"},
				Endpoints:   [2]string{"follower_id", "followed_id"},
			},
			{
				Type: "MEMBER_OF", From: "User", To: "Community",
				SourceQuery: "SELECT user_id, community_id, role, joined_at FROM community_members",
				Properties:  map[string]string{"role": "role", "joined_at": "joined_at"},
				Endpoints:   [2]string{"user_id", "community_id"},
			},
			{
				Type: "AUTHORED", From: "User", To: "Post",
				SourceQuery: "SELECT id, author_id, created_at FROM posts",
				Properties:  map[string]string{"created_at": "created_at"},
				Endpoints:   [2]string{"author_id", "id"},
			},
			{
				Type: "AUTHORED", From: "User", To: "Reply",
				SourceQuery: "SELECT id, author_id, created_at FROM replies",
				Properties:  map[string]string{"created_at": "created_at"},
				Endpoints:   [2]string{"author_id", "id"},
			},
			{
				Type: "REPLY_TO", From: "Reply", To: "Post",
				SourceQuery: "SELECT id, post_id FROM replies",
				Endpoints:   [2]string{"id", "post_id"},
			},
			{
				Type: "POSTED_IN", From: "Post", To: "Community",
				SourceQuery: "SELECT id, community_id FROM posts WHERE community_id IS NOT NULL",
				Endpoints:   [2]string{"id", "community_id"},
			},
			{
				Type: "VOTED", From: "User", To: "Post",
				SourceQuery: "SELECT user_id, post_id, vote_type, created_at FROM post_votes",
				Properties:  map[string]string{"vote_type": "vote_type", "created_at": "created_at"},
				Endpoints:   [2]string{"user_id", "post_id"},
			},
			{
				Type: "VOTED", From: "User", To: "Reply",
				SourceQuery: "SELECT user_id, reply_id, vote_type, created_at FROM reply_votes",
				Properties:  map[string]string{"vote_type": "vote_type", "created_at": "created_at"},
				Endpoints:   [2]string{"user_id", "reply_id"},
			},
			{
				Type: "FAVORITED", From: "User", To: "Post",
				SourceQuery: "SELECT user_id, post_id, created_at FROM favorites",
				Properties:  map[string]string{"created_at": "created_at"},
				Endpoints:   [2]string{"user_id", "post_id"},
			},
			{
				Type: "PARTICIPATES_IN", From: "User", To: "Event",
				SourceQuery: "SELECT user_id, event_id, status, joined_at FROM event_participants",
				Properties:  map[string]string{"status": "status", "joined_at": "joined_at"},
				Endpoints:   [2]string{"user_id", "event_id"},
			},
			{
				Type: "HOSTED_BY", From: "Event", To: "Community",
				SourceQuery: "SELECT id, community_id FROM events WHERE community_id IS NOT NULL",
				Endpoints:   [2]string{"id", "community_id"},
			},
		},
	}
	defs.applyDefaults()
	return defs
}

// TableName derives the conventional table for label, e.g. Community -> communities.
func TableName(label string) string {
	return inflect.Pluralize(strings.ToLower(inflect.Underscore(label)))
}

// applyDefaults fills in the source queries and match templates that can be
// derived from labels.
func (d *Definitions) applyDefaults() {
	for i := range d.Entities {
		e := &d.Entities[i]
		if strings.TrimSpace(e.SourceQuery) == "" {
			e.SourceQuery = "SELECT * FROM " + TableName(e.Label)
		}
	}
	for i := range d.Relationships {
		r := &d.Relationships[i]
		if strings.TrimSpace(r.MatchTemplate) == "" {
			r.MatchTemplate = cypher.DefaultMatchTemplate(r.From, r.To)
		}
	}
}

// Validate checks the definitions before any store is touched. Relationship
// endpoints must name declared entities so the vertex pass covers them.
func (d *Definitions) Validate() error {
	if len(d.Entities) == 0 {
		return apperrors.NewConfigMissingRequired("entities")
	}

	labels := make(map[string]bool, len(d.Entities))
	for i, e := range d.Entities {
		field := fmt.Sprintf("entities[%d]", i)
		if !cypher.IsIdentifier(e.Label) {
			return apperrors.NewConfigValidationFailed(field+".label", fmt.Sprintf("invalid label %q", e.Label))
		}
		if labels[e.Label] {
			return apperrors.NewConfigValidationFailed(field+".label", fmt.Sprintf("duplicate label %q", e.Label))
		}
		labels[e.Label] = true
		if strings.TrimSpace(e.SourceQuery) == "" {
			return apperrors.NewConfigMissingRequired(field + ".source_query")
		}
	}

	names := make(map[string]bool, len(d.Relationships))
	for i, r := range d.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if !cypher.IsIdentifier(r.Type) {
			return apperrors.NewConfigValidationFailed(field+".type", fmt.Sprintf("invalid relationship type %q", r.Type))
		}
		for _, end := range []struct{ key, label string }{{"from", r.From}, {"to", r.To}} {
			if !labels[end.label] {
				return apperrors.NewConfigValidationFailed(field+"."+end.key, fmt.Sprintf("unknown entity %q", end.label))
			}
		}
		if names[r.Name()] {
			return apperrors.NewConfigValidationFailed(field, fmt.Sprintf("duplicate relationship %s", r.Name()))
		}
		names[r.Name()] = true
		if strings.TrimSpace(r.SourceQuery) == "" {
			return apperrors.NewConfigMissingRequired(field + ".source_query")
		}
		if r.Endpoints[0] == "" || r.Endpoints[1] == "" {
			return apperrors.NewConfigValidationFailed(field+".endpoints", "both endpoint columns are required")
		}
		if err := cypher.ValidateTemplate(r.MatchTemplate); err != nil {
			return apperrors.NewConfigValidationFailed(field+".match_template", err.Error())
		}
		for prop, col := range r.Properties {
			if !cypher.IsIdentifier(prop) {
				return apperrors.NewConfigValidationFailed(field+".properties", fmt.Sprintf("invalid property key %q", prop))
			}
			if col == "" {
				return apperrors.NewConfigValidationFailed(field+".properties", fmt.Sprintf("property %q has no source column", prop))
			}
		}
	}
	return nil
}
