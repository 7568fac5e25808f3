package database

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers
const (
	ErrNumAccessDenied      = 1045
	ErrNumDBAccessDenied    = 1044
	ErrNumTableAccessDenied = 1142
	ErrNumTableExists       = 1050
	ErrNumTriggerExists     = 1359
	ErrNumTableMissing      = 1146
	ErrNumTriggerMissing    = 1360
	ErrNumDuplicateEntry    = 1062
	ErrNumSyntax            = 1064
	ErrNumNoReferencedRow   = 1452
	ErrNumLockWaitTimeout   = 1205
	ErrNumDeadlock          = 1213
	ErrNumTriggerPrivilege  = 1419
)

// ErrorNumber returns the MySQL error number carried by err, or 0
func ErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

// IsRetryable reports whether err is a deadlock or lock wait timeout.
// Both roll back the statement and succeed when the transaction is rerun.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch ErrorNumber(err) {
	case ErrNumDeadlock, ErrNumLockWaitTimeout:
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock found") ||
		strings.Contains(msg, "lock wait timeout exceeded")
}

// CategorizeError turns a database error into a short message for the
// terminal. With verbose set the full error is returned.
func CategorizeError(err error, verbose bool) string {
	if verbose {
		return err.Error()
	}

	switch ErrorNumber(err) {
	case ErrNumSyntax:
		return "SQL syntax error - use --verbose for details"
	case ErrNumDuplicateEntry, ErrNumNoReferencedRow:
		return "constraint violation - use --verbose for details"
	case ErrNumTableMissing, ErrNumTriggerMissing:
		return "referenced object does not exist - use --verbose for details"
	case ErrNumTableExists, ErrNumTriggerExists:
		return "object already exists - use --verbose for details"
	case ErrNumAccessDenied, ErrNumDBAccessDenied, ErrNumTableAccessDenied:
		return "permission denied - check database user privileges"
	case ErrNumTriggerPrivilege:
		return "creating triggers needs SUPER or log_bin_trust_function_creators=1"
	case ErrNumDeadlock, ErrNumLockWaitTimeout:
		return "database is busy - try again later"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return "cannot reach the database - check database.url"
	case strings.Contains(msg, "access denied"):
		return "permission denied - check database user privileges"
	}

	return "database operation failed - use --verbose for details"
}
