// Package sqlitetest opens throwaway sqlite databases for tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/Additional-Code/procura/internal/database"
)

// New returns connections to a fresh in-memory database with the full schema.
// The pool is capped at one connection, so the database lives as long as the
// test and write transactions are serialised the way a row lock would.
func New(t testing.TB) *database.Connections {
	t.Helper()

	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.CreateSchema(context.Background(), db))

	return &database.Connections{Writer: db, Reader: db}
}

// NewFile returns connections to a fresh database file under t.TempDir with
// an unrestricted pool, so concurrent transactions really contend. Writers
// begin IMMEDIATE and wait on the busy timeout for the database write lock.
func NewFile(t testing.TB) *database.Connections {
	t.Helper()

	path := filepath.Join(t.TempDir(), "procura.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	sqldb, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.CreateSchema(context.Background(), db))

	return &database.Connections{Writer: db, Reader: db}
}
