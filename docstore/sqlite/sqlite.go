// Package sqlite stores documents in SQLite, one database file per store and
// one table per collection. Each row keeps the envelope's reserved fields in
// columns (id, key, data_set) next to the extended JSON document, so lookups
// by key, dataset and id run as indexed SQL while the remaining predicates
// are evaluated in Go.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/strata/db"
	"github.com/teranos/strata/docstore"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

// Separator joins database name parts; the name becomes the file name.
const Separator = "."

var collectionName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Driver opens one SQLite file per database under dir.
type Driver struct {
	dir string
	log *zap.SugaredLogger
}

var _ docstore.Driver = (*Driver)(nil)

// NewDriver returns a driver storing databases as <dir>/<name>.db.
func NewDriver(dir string, log *zap.SugaredLogger) *Driver {
	return &Driver{dir: dir, log: logger.OrNop(log)}
}

func (d *Driver) Name() string      { return "sqlite" }
func (d *Driver) Separator() string { return Separator }

// Path returns the file backing dbName.
func (d *Driver) Path(dbName string) string {
	return filepath.Join(d.dir, dbName+".db")
}

// Open opens or creates the database file and applies migrations.
func (d *Driver) Open(ctx context.Context, dbName string) (docstore.Store, error) {
	if dbName == "" {
		return nil, errors.NewPrecondition("database name is empty")
	}
	if d.dir == "" {
		return nil, errors.WithHint(
			errors.NewPrecondition("sqlite driver has no directory"),
			"pass a source of the form sqlite:<dir>")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, errors.MarkTransientIO(err, "create directory %s", d.dir)
	}
	path := d.Path(dbName)
	conn, err := db.OpenWithMigrations(path, d.log)
	if err != nil {
		return nil, errors.MarkTransientIO(err, "open database %s", dbName)
	}
	return NewStore(dbName, conn, d.log), nil
}

// Store is one SQLite database.
type Store struct {
	name string
	conn *sql.DB
	log  *zap.SugaredLogger

	mu          sync.Mutex
	collections map[string]*Collection
	closed      bool
}

var _ docstore.Store = (*Store)(nil)

// NewStore wraps an open, migrated connection.
func NewStore(name string, conn *sql.DB, log *zap.SugaredLogger) *Store {
	return &Store{
		name:        name,
		conn:        conn,
		log:         logger.OrNop(log),
		collections: make(map[string]*Collection),
	}
}

func (s *Store) Name() string { return s.name }

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrapf(docstore.ErrClosed, "database %s", s.name)
	}
	return nil
}

// Collection returns the named collection, creating its table on first use.
func (s *Store) Collection(ctx context.Context, name string) (docstore.Collection, error) {
	if !collectionName.MatchString(name) {
		return nil, errors.NewPrecondition("invalid collection name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Wrapf(docstore.ErrClosed, "database %s", s.name)
	}
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	c := &Collection{store: s, name: name, table: "doc_" + name}
	if _, err := s.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, table_name) VALUES (?, ?)", name, c.table); err != nil {
		return nil, s.classify(err, "register collection %s", name)
	}
	if _, err := s.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS "`+c.table+`" (
		id BLOB PRIMARY KEY,
		key TEXT NOT NULL,
		data_set BLOB NOT NULL,
		doc TEXT NOT NULL
	)`); err != nil {
		return nil, s.classify(err, "create table for %s", name)
	}
	s.collections[name] = c
	s.log.Debugw("Collection ready", logger.FieldDatabase, s.name, logger.FieldCollection, name)
	return c, nil
}

// DropDatabase drops every collection table and empties the catalog. The
// store stays usable.
func (s *Store) DropDatabase(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	rows, err := s.conn.QueryContext(ctx, "SELECT table_name FROM collections")
	if err != nil {
		return s.classify(err, "list collections")
	}
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return s.classify(err, "scan collection")
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s.classify(err, "list collections")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err, "begin drop")
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS "`+t+`"`); err != nil {
			tx.Rollback()
			return s.classify(err, "drop %s", t)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections"); err != nil {
		tx.Rollback()
		return s.classify(err, "clear catalog")
	}
	if err := tx.Commit(); err != nil {
		return s.classify(err, "commit drop")
	}

	s.mu.Lock()
	s.collections = make(map[string]*Collection)
	s.mu.Unlock()
	s.log.Infow("Dropped database", logger.FieldDatabase, s.name, logger.FieldCount, len(tables))
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return errors.Wrapf(err, "close database %s", s.name)
	}
	return nil
}

// classify maps driver errors onto the error taxonomy.
func (s *Store) classify(err error, format string, args ...interface{}) error {
	switch {
	case err == nil:
		return nil
	case db.IsDatabaseClosed(err):
		return errors.Wrapf(errors.Mark(err, docstore.ErrClosed), format, args...)
	case db.IsConstraint(err):
		return errors.MarkConflict(err, format, args...)
	case db.IsBusy(err):
		return errors.WithHintf(errors.MarkTransientIO(err, format, args...),
			"another connection held the lock for over %dms; retry", db.SQLiteBusyTimeoutMS)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(err, format, args...)
	default:
		return errors.MarkTransientIO(err, format, args...)
	}
}
