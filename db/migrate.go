package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema step. Version is the numeric file prefix.
type Migration struct {
	Version string
	File    string
}

// Migrations lists the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, _, _ := strings.Cut(e.Name(), "_")
		out = append(out, Migration{Version: version, File: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// Migrate applies every pending migration. log may be nil.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	_, err := MigrateContext(context.Background(), db, log)
	return err
}

// MigrateContext applies every pending migration, each in its own
// transaction, and returns how many were applied.
func MigrateContext(ctx context.Context, db *sql.DB, log *zap.SugaredLogger) (int, error) {
	log = logger.OrNop(log)
	all, err := Migrations()
	if err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		// schema_migrations itself comes from 000
		if applied == nil && m.Version != "000" {
			return n, errors.Newf("schema_migrations table missing, but migration is not 000: %s", m.File)
		}
		if err := apply(ctx, db, m); err != nil {
			return n, err
		}
		if applied == nil {
			applied = map[string]bool{}
		}
		applied[m.Version] = true
		n++
		log.Infow("Applied migration", "migration", m.File, "version", m.Version)
	}
	log.Debugw("Migrations complete", "applied", n, logger.FieldCount, len(all))
	return n, nil
}

// appliedVersions returns the recorded versions, or nil when the
// schema_migrations table does not exist yet.
func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "inspect schema")
	}
	if exists == 0 {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan migration version")
		}
		applied[v] = true
	}
	return applied, errors.Wrap(rows.Err(), "list applied migrations")
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	body, err := migrations.ReadFile(path.Join(migrationsDir, m.File))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.File)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.File)
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.File)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.File)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.File)
}
