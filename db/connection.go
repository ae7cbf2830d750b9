// Package db opens the SQLite files behind the sqlite document store and
// keeps their schema current.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// pragmas run on every new database handle, in order.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"foreign_keys", "ON"},
	{"busy_timeout", fmt.Sprint(SQLiteBusyTimeoutMS)},
}

// Open opens the SQLite file at path and applies the connection pragmas.
// log may be nil.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.OrNop(log)
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "set %s on %s", p.name, path)
		}
	}
	log.Debugw("Opened database", "path", path)
	return conn, nil
}

// OpenWithMigrations opens path and brings its schema up to date.
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn, log); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return conn, nil
}
