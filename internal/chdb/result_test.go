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

package chdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusq/mcp-clickhouse/internal/testutil"
)

// scanRows operates on *sqlx.Rows and is driver-agnostic, so sqlite stands in
// for ClickHouse in these tests.

func TestScanRows(t *testing.T) {
	db := testutil.TestDB(t)
	_, err := db.Exec(`CREATE TABLE users (id INTEGER, name TEXT, note BLOB)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users VALUES (1, 'Alice', X'6869'), (2, 'Bob', NULL)`)
	require.NoError(t, err)

	rows, err := db.Queryx(`SELECT id, name, note FROM users ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	res, err := scanRows(rows)
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, res.Columns, 3)
	assert.Equal(t, "id", res.Columns[0].Name)
	assert.Equal(t, "name", res.Columns[1].Name)
	assert.Equal(t, "note", res.Columns[2].Name)

	require.Equal(t, 2, res.RowCount())
	assert.EqualValues(t, 1, res.Rows[0]["id"])
	assert.Equal(t, "Alice", res.Rows[0]["name"])
	// BLOB values must arrive as strings, not []byte.
	assert.Equal(t, "hi", res.Rows[0]["note"])
	assert.Equal(t, "Bob", res.Rows[1]["name"])
	assert.Nil(t, res.Rows[1]["note"])
}

func TestScanRows_empty(t *testing.T) {
	db := testutil.TestDB(t)
	_, err := db.Exec(`CREATE TABLE empty (id INTEGER)`)
	require.NoError(t, err)

	rows, err := db.Queryx(`SELECT id FROM empty`)
	require.NoError(t, err)
	defer rows.Close()

	res, err := scanRows(rows)
	require.NoError(t, err)
	assert.Equal(t, 0, res.RowCount())
	// Rows must serialise to an empty JSON array, not null.
	assert.NotNil(t, res.Rows)
	require.Len(t, res.Columns, 1)
	assert.Equal(t, "id", res.Columns[0].Name)
}

func TestResult_Truncate(t *testing.T) {
	mkresult := func(n int) *Result {
		r := &Result{Columns: []Column{{Name: "id"}}}
		for i := range n {
			r.Rows = append(r.Rows, map[string]any{"id": i})
		}
		return r
	}
	tests := []struct {
		name     string
		rows     int
		limit    int
		wantRows int
		wantCut  bool
	}{
		{name: "no truncation needed", rows: 2, limit: 10, wantRows: 2, wantCut: false},
		{name: "exact fit", rows: 5, limit: 5, wantRows: 5, wantCut: false},
		{name: "truncates", rows: 10, limit: 3, wantRows: 3, wantCut: true},
		{name: "to zero", rows: 2, limit: 0, wantRows: 0, wantCut: true},
		{name: "negative is a no-op", rows: 2, limit: -1, wantRows: 2, wantCut: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mkresult(tt.rows)
			cut := r.Truncate(tt.limit)
			assert.Equal(t, tt.wantCut, cut)
			assert.Equal(t, tt.wantRows, r.RowCount())
		})
	}
}

func TestResult_Value(t *testing.T) {
	r := &Result{
		Columns: []Column{{Name: "id"}, {Name: "name"}},
		Rows: []map[string]any{
			{"id": int64(1), "name": "Alice"},
		},
	}
	assert.Equal(t, "Alice", r.Value(0, "name"))
	assert.Nil(t, r.Value(0, "missing"))
	assert.Nil(t, r.Value(1, "name"))
	assert.Nil(t, r.Value(-1, "name"))
	var nilRes *Result
	assert.Nil(t, nilRes.Value(0, "name"))
	assert.Equal(t, 0, nilRes.RowCount())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "bytes to string", in: []byte("hello"), want: "hello"},
		{name: "string passthrough", in: "hello", want: "hello"},
		{name: "int passthrough", in: int64(42), want: int64(42)},
		{name: "nil passthrough", in: nil, want: nil},
		{name: "float passthrough", in: 3.14, want: 3.14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.in))
		})
	}
}
