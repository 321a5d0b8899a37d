package persistence

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	appErrors "github.com/nexuscrm/kernel/pkg/errors"
)

// isMySQLError reports whether err carries one of the given server error numbers.
func isMySQLError(err error, numbers ...uint16) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	for _, n := range numbers {
		if myErr.Number == n {
			return true
		}
	}
	return false
}

// IsDuplicateEntry reports a unique key violation.
func IsDuplicateEntry(err error) bool {
	return isMySQLError(err, ErrDuplicateEntry)
}

// translateDuplicate maps a unique key violation to a ConflictError and
// passes every other error through.
func translateDuplicate(err error, resource, field, value string) error {
	if IsDuplicateEntry(err) {
		return appErrors.NewConflictError(resource, field, value)
	}
	return err
}

// isDeadlock checks if an error is a deadlock or lock wait timeout.
func isDeadlock(err error) bool {
	return isMySQLError(err, ErrDeadlock, ErrLockWaitTimeout)
}
