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

// In this file: dynamic result set scanning.

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Column is the column metadata of a result set.  Type is the database type
// name as reported by the driver, i.e. a ClickHouse type such as "UInt64" or
// "Nullable(String)".
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is a fully materialised result set.  Rows are mappings from column
// name to value; the column order is preserved in Columns.
type Result struct {
	QueryID string           `json:"query_id"`
	Columns []Column         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// RowCount returns the number of rows in the result.
func (r *Result) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Value returns the value of the named column in row i, or nil if the row or
// column does not exist.
func (r *Result) Value(i int, column string) any {
	if r == nil || i < 0 || i >= len(r.Rows) {
		return nil
	}
	return r.Rows[i][column]
}

// Truncate shortens the result to at most n rows, returning true if rows were
// dropped.
func (r *Result) Truncate(n int) bool {
	if n < 0 || len(r.Rows) <= n {
		return false
	}
	r.Rows = r.Rows[:n]
	return true
}

// scanRows drains rows into a Result.  Values go through normalize so that
// the result serialises cleanly to JSON and text formats.
func scanRows(rows *sqlx.Rows) (*Result, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name}
		if i < len(types) && types[i] != nil {
			columns[i].Type = types[i].DatabaseTypeName()
		}
	}

	result := &Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(vals))
		for i, v := range vals {
			row[names[i]] = normalize(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return result, nil
}

// normalize converts driver-specific values into plain serialisable ones.
// Byte slices become strings: ClickHouse String columns arrive as []byte, and
// base64 (the default JSON encoding for []byte) is never what the caller
// wants.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return v
	}
}
