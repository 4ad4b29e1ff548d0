// Package cypher renders values and query fragments in the openCypher dialects
// of Apache AGE and Neo4j.
//
// Neither store accepts bind parameters for graph-query text reached through
// the relational bridge, so every value embedded in a fragment goes through
// Dialect.Literal. It is the only place where quoting happens.
package cypher

import (
	"database/sql/driver"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "relgraph/backend/pkg/errors"
)

// Null is the literal for an absent value.
const Null = "null"

// Dialect selects how text literals are escaped for a store.
type Dialect int

const (
	// DialectAGE doubles embedded quotes and backslashes.
	DialectAGE Dialect = iota
	// DialectNeo4j escapes embedded quotes and backslashes with a backslash.
	// Neo4j has no doubled-quote escape.
	DialectNeo4j
)

func (d Dialect) String() string {
	switch d {
	case DialectAGE:
		return "age"
	case DialectNeo4j:
		return "neo4j"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s can be embedded unquoted as a label,
// relationship type or property key.
func IsIdentifier(s string) bool {
	return len(s) <= 63 && identifierRe.MatchString(s)
}

// Literal renders v in the AGE dialect.
func Literal(v any) (string, error) {
	return DialectAGE.Literal(v)
}

// Literal renders v as a literal token. Nulls render as Null; callers that
// must omit null properties check IsNull first.
func (d Dialect) Literal(v any) (string, error) {
	v, err := resolve(v)
	if err != nil {
		return "", err
	}

	switch x := v.(type) {
	case nil:
		return Null, nil
	case time.Time:
		return d.quote(x.Format(time.RFC3339Nano))
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case string:
		return d.quote(x)
	case []byte:
		return d.quote(string(x))
	default:
		return "", apperrors.NewEncodeError(fmt.Sprintf("unsupported value type %T", v))
	}
}

// IsNull reports whether v is nil or a SQL null wrapper holding no value.
func IsNull(v any) bool {
	r, err := resolve(v)
	return err == nil && r == nil
}

// Identifier renders v in the AGE dialect.
func Identifier(v any) (string, error) {
	return DialectAGE.Identifier(v)
}

// Identifier renders an endpoint or key value. Integers, and strings holding
// a plain decimal integer, are emitted bare so they compare equal to the
// integer id stored on the vertex; anything else is quoted by Literal.
func (d Dialect) Identifier(v any) (string, error) {
	r, err := resolve(v)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", apperrors.NewEncodeError("identifier is null")
	}
	switch x := r.(type) {
	case string:
		if isCanonicalInt(x) {
			return x, nil
		}
	case []byte:
		if isCanonicalInt(string(x)) {
			return string(x), nil
		}
	case float32, float64, bool:
		return "", apperrors.NewEncodeError(fmt.Sprintf("unsupported identifier type %T", r))
	}
	return d.Literal(r)
}

// isCanonicalInt reports whether s is exactly the decimal form of an int64,
// so "42" qualifies but "042" and "+42" stay text.
func isCanonicalInt(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}

// resolve unwraps driver.Valuer implementations such as sql.NullString.
func resolve(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return nil, apperrors.NewEncodeError(fmt.Sprintf("resolve %T: %v", v, err))
		}
		return val, nil
	}
	return v, nil
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", apperrors.NewEncodeError(fmt.Sprintf("non-finite float %v", f))
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	// Keep the float type on the store side: 3 would otherwise become an integer.
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}

var (
	ageEscaper   = strings.NewReplacer(`\`, `\\`, "'", "''")
	neo4jEscaper = strings.NewReplacer(`\`, `\\`, "'", `\'`)
)

// quote wraps s in single quotes. Backslashes are always escaped, since both
// stores interpret backslash escapes inside string literals.
func (d Dialect) quote(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", apperrors.NewEncodeError("text contains a NUL byte")
	}
	if !strings.ContainsAny(s, `'\`) {
		return "'" + s + "'", nil
	}
	if d == DialectNeo4j {
		return "'" + neo4jEscaper.Replace(s) + "'", nil
	}
	return "'" + ageEscaper.Replace(s) + "'", nil
}
