package testutil

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/rusq/mcp-clickhouse/internal/journal"
)

const Driver = "sqlite"

// TestDB returns an open in-memory SQLite database, closed on test cleanup.
func TestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return TestDBDSN(t, ":memory:")
}

func TestDBDSN(t *testing.T, dsn string) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open(Driver, dsn)
	if err != nil {
		t.Fatalf("TestDBDSN: %s: %s", dsn, err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Ping(); err != nil {
		t.Fatalf("TestDBDSN: %s: %s", dsn, err)
	}
	return db
}

// TestJournal returns an open in-memory journal, closed on test cleanup.
func TestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(t.Context(), ":memory:")
	if err != nil {
		t.Fatalf("TestJournal: %s", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}
