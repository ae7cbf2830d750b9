// Package testing holds fixtures shared by strata's package tests.
package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/db"
)

// CreateTestDB returns an in-memory SQLite database with the catalog schema
// applied. It is closed when the test ends.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Every pooled connection to :memory: is its own database, so pin one
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec("PRAGMA foreign_keys = ON")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn, zaptest.NewLogger(t).Sugar()))
	return conn
}
