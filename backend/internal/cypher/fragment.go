package cypher

import (
	"fmt"
	"strings"

	apperrors "relgraph/backend/pkg/errors"
)

// Endpoint aliases bound by a relationship match template.
const (
	SourceAlias = "a"
	TargetAlias = "b"
)

const (
	vertexAlias = "n"
	edgeAlias   = "r"
	slot        = "%s"
)

// Property is a rendered key/value pair ready for a SET clause.
type Property struct {
	Key     string
	Literal string
}

// Properties collects rendered properties in insertion order, skipping nulls.
// The zero value renders in the AGE dialect.
type Properties struct {
	Dialect Dialect
	items   []Property
}

// NewProperties returns an empty set rendering values in d.
func NewProperties(d Dialect) Properties {
	return Properties{Dialect: d}
}

// Add renders v and appends it under key. Null values are omitted so the
// property is absent on the element rather than stored as null.
func (p *Properties) Add(key string, v any) error {
	if !IsIdentifier(key) {
		return apperrors.NewEncodeError(fmt.Sprintf("invalid property key %q", key))
	}
	if IsNull(v) {
		return nil
	}
	lit, err := p.Dialect.Literal(v)
	if err != nil {
		return fmt.Errorf("property %s: %w", key, err)
	}
	p.items = append(p.items, Property{Key: key, Literal: lit})
	return nil
}

// Items returns the rendered properties.
func (p Properties) Items() []Property {
	return p.items
}

// set renders " SET x.k = v, ..." or "" when there is nothing to set.
func (p Properties) set(alias string) string {
	if len(p.items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(" SET ")
	for i, prop := range p.items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s.%s = %s", alias, prop.Key, prop.Literal)
	}
	return b.String()
}

// MergeVertex builds the upsert for one vertex keyed by id. id must already
// be rendered by Identifier.
func MergeVertex(label, id string, props Properties) (string, error) {
	if !IsIdentifier(label) {
		return "", apperrors.NewEncodeError(fmt.Sprintf("invalid label %q", label))
	}
	return fmt.Sprintf("MERGE (%s:%s {id: %s})%s RETURN id(%s)",
		vertexAlias, label, id, props.set(vertexAlias), vertexAlias), nil
}

// DefaultMatchTemplate matches both endpoints of a relationship by id.
func DefaultMatchTemplate(from, to string) string {
	return fmt.Sprintf("MATCH (%s:%s {id: %s}), (%s:%s {id: %s})",
		SourceAlias, from, slot, TargetAlias, to, slot)
}

// ValidateTemplate checks that tpl has exactly two ordered %s slots and no
// other formatting verbs.
func ValidateTemplate(tpl string) error {
	if n := strings.Count(tpl, slot); n != 2 {
		return fmt.Errorf("match template needs 2 %s slots, found %d", slot, n)
	}
	if strings.Count(tpl, "%") != 2 {
		return fmt.Errorf("match template may only contain %s slots", slot)
	}
	if !strings.Contains(tpl, "("+SourceAlias) || !strings.Contains(tpl, "("+TargetAlias) {
		return fmt.Errorf("match template must bind aliases %s and %s", SourceAlias, TargetAlias)
	}
	return nil
}

// MergeEdge fills tpl with the two rendered endpoint identifiers and appends
// the upsert of the single directed edge between them.
func MergeEdge(tpl, relType, source, target string, props Properties) (string, error) {
	if !IsIdentifier(relType) {
		return "", apperrors.NewEncodeError(fmt.Sprintf("invalid relationship type %q", relType))
	}
	if err := ValidateTemplate(tpl); err != nil {
		return "", apperrors.NewEncodeError(err.Error())
	}
	match := fmt.Sprintf(tpl, source, target)
	return fmt.Sprintf("%s MERGE (%s)-[%s:%s]->(%s)%s RETURN id(%s)",
		match, SourceAlias, edgeAlias, relType, TargetAlias, props.set(edgeAlias), edgeAlias), nil
}
