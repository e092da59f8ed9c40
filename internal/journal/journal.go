// Copyright (c) 2021-2026 Rustam Gilyazov and Contributors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package journal keeps a local record of the queries executed through the
// server in a SQLite database.  The journal is optional: when disabled, no
// database is opened and nothing is recorded.
//
// Journalling is an observability aid, not a transaction log: a failure to
// record an entry must never fail the query it describes.  Callers are
// expected to log and discard Record errors.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Driver is the database/sql driver name used for the journal storage.
const Driver = "sqlite"

// Entry statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry is a single journal record.
type Entry struct {
	ID        int64     `db:"ID,omitempty" json:"id"`
	StartedAt time.Time `db:"STARTED_AT,omitempty" json:"started_at"`
	Tool      string    `db:"TOOL" json:"tool"`
	Query     string    `db:"QUERY" json:"query,omitempty"`
	QueryID   string    `db:"QUERY_ID,omitempty" json:"query_id,omitempty"`
	Status    string    `db:"STATUS" json:"status"`
	Error     string    `db:"ERROR,omitempty" json:"error,omitempty"`
	RowCount  int64     `db:"ROW_COUNT" json:"row_count"`
	ElapsedMS int64     `db:"ELAPSED_MS" json:"elapsed_ms"`
}

// Journal is the query journal.  It is safe for concurrent use.
type Journal struct {
	conn *sqlx.DB
	er   entryRepository
}

// Open opens (creating, if necessary) the journal database at path and
// migrates it to the current schema version.  Use ":memory:" for an
// ephemeral journal.
func Open(ctx context.Context, path string) (*Journal, error) {
	conn, err := sqlx.Open(Driver, path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	if err := Migrate(ctx, conn.DB, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: %w", err)
	}
	slog.DebugContext(ctx, "journal open", "path", path)
	return &Journal{conn: conn, er: newEntryRepository()}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j == nil || j.conn == nil {
		return nil
	}
	return j.conn.Close()
}

// Record writes an entry to the journal.  A zero StartedAt is set to the
// current time, an empty Status defaults to StatusOK.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	if _, err := j.er.Insert(ctx, j.conn, &e); err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to n most recent entries, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	ee, err := j.er.Recent(ctx, j.conn, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return ee, nil
}

// Count returns the total number of entries in the journal.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	n, err := j.er.Count(ctx, j.conn)
	if err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}
