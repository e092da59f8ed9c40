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

package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rusq/tagops"
)

const dbTag = "db"

// entryCols are the columns of the JOURNAL table, in struct order.
var entryCols = tagops.Tags(Entry{}, dbTag)

// entryRepository provides access to the JOURNAL table.
type entryRepository struct{}

func newEntryRepository() entryRepository {
	return entryRepository{}
}

// newBindAddFn returns a function that appends a column and a binding to the
// statement and the binds slice.
func newBindAddFn(stmt *strings.Builder, binds *[]any) func(col string, val any) {
	return func(col string, val any) {
		if stmt.Len() > 0 {
			stmt.WriteByte(',')
		}
		stmt.WriteString(col)
		*binds = append(*binds, val)
	}
}

// placeholders returns a string of "?" placeholders for each element of v.
func placeholders[T any](v []T) string {
	return strings.Repeat("?,", len(v)-1) + "?"
}

// Insert inserts the entry e, returning the ID assigned to it.  ID and
// StartedAt are only bound when set, otherwise the table defaults apply.
func (entryRepository) Insert(ctx context.Context, conn sqlx.ExtContext, e *Entry) (int64, error) {
	var (
		stmt  strings.Builder
		binds []any
	)
	addFn := newBindAddFn(&stmt, &binds)
	if e.ID != 0 {
		addFn("ID", e.ID)
	}
	if !e.StartedAt.IsZero() {
		addFn("STARTED_AT", e.StartedAt)
	}
	addFn("TOOL", e.Tool)
	addFn("QUERY", e.Query)
	addFn("QUERY_ID", e.QueryID)
	addFn("STATUS", e.Status)
	addFn("ERROR", e.Error)
	addFn("ROW_COUNT", e.RowCount)
	addFn("ELAPSED_MS", e.ElapsedMS)

	stmtStr := "INSERT INTO JOURNAL (" + stmt.String() + ") VALUES (" + placeholders(binds) + ")"
	r, err := conn.ExecContext(ctx, conn.Rebind(stmtStr), binds...)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert: last insert id: %w", err)
	}
	e.ID = id
	return id, nil
}

// Recent returns up to n entries ordered newest first.  A non-positive n
// yields an empty slice.
func (entryRepository) Recent(ctx context.Context, conn sqlx.ExtContext, n int) ([]Entry, error) {
	ee := []Entry{}
	if n <= 0 {
		return ee, nil
	}
	stmt := "SELECT " + strings.Join(entryCols, ",") + " FROM JOURNAL ORDER BY ID DESC LIMIT ?"
	if err := sqlx.SelectContext(ctx, conn, &ee, conn.Rebind(stmt), n); err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	return ee, nil
}

// Count returns the total number of journal entries.
func (entryRepository) Count(ctx context.Context, conn sqlx.ExtContext) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, conn, &n, "SELECT COUNT(*) FROM JOURNAL"); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
