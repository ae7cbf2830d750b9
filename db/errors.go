package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/strata/errors"
)

// ErrDatabaseClosed marks operations on a handle that was closed.
var ErrDatabaseClosed = errors.New("database is closed")

// sqliteCode extracts the primary result code from a go-sqlite3 error.
func sqliteCode(err error) (sqlite3.ErrNo, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsDatabaseClosed reports whether err came from a closed handle.
// database/sql reports this with an unexported error, so its text is matched.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDatabaseClosed) || strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports whether err is lock contention a caller may retry.
func IsBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3.ErrBusy || code == sqlite3.ErrLocked)
}

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3.ErrConstraint
}
