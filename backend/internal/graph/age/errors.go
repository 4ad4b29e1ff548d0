package age

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"

	apperrors "relgraph/backend/pkg/errors"
)

// SQLSTATE codes with a specific meaning for the migration.
const (
	codeUndefinedFunction = "42883" // cypher() missing: extension not loaded
	codeUndefinedFile     = "58P01" // LOAD 'age' failed
	codeUndefinedTable    = "42P01" // label table not created yet
	codeDuplicateSchema   = "42P06" // graph already exists
	codeDuplicateTable    = "42P07" // index relation already exists
	codeDuplicateObject   = "42710"
	codeInvalidSchemaName = "3F000" // graph does not exist
)

// fatalClasses are SQLSTATE classes that no row-level retry can fix.
var fatalClasses = map[pq.ErrorClass]bool{
	"08": true, // connection exception
	"28": true, // invalid authorization
	"3D": true, // invalid catalog name
	"53": true, // insufficient resources
	"57": true, // operator intervention
	"58": true, // system error
}

// classify maps an error from a graph query onto the migration taxonomy.
// Errors that are not store errors (broken connections, cancellation) are fatal.
func classify(err error, query string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		code := ""
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			code = apperrors.CodeCanceled
		case isConnectionError(err):
			code = apperrors.CodeConnection
		}
		return apperrors.NewGraphQueryFailed(apperrors.ErrorTypeFatal, code, query, err)
	}

	code := string(pqErr.Code)
	switch {
	case fatalClasses[pqErr.Code.Class()],
		code == codeUndefinedFunction,
		code == codeUndefinedFile,
		code == codeInvalidSchemaName:
		return apperrors.NewGraphQueryFailed(apperrors.ErrorTypeFatal, code, query, err)
	case code == codeDuplicateSchema, code == codeDuplicateTable, code == codeDuplicateObject:
		return apperrors.NewConflict(code, pqErr.Message, err)
	case code == codeUndefinedTable:
		return apperrors.NewMissingStorage(code, pqErr.Message, err)
	}
	return apperrors.NewGraphQueryFailed(apperrors.ErrorTypeRow, code, query, err)
}

// isConnectionError reports transport-level failures.
func isConnectionError(err error) bool {
	var netErr net.Error
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.As(err, &netErr)
}
