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

package format

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
)

// JSON writes the result as a JSON array of column-keyed objects.
type JSON struct {
	opts options
}

// JSONL writes the result as one JSON object per line, matching the
// ClickHouse JSONEachRow format.
type JSONL struct {
	opts options
}

type jsonOptions struct {
	Indent string
}

func init() {
	converters[CJSON] = NewJSON
	converters[CJSONL] = NewJSONL
}

// NewJSON returns a JSON array serialiser.
func NewJSON(opts ...Option) Formatter {
	var settings options
	for _, fn := range opts {
		fn(&settings)
	}
	return &JSON{settings}
}

// NewJSONL returns a JSON lines serialiser.
func NewJSONL(opts ...Option) Formatter {
	var settings options
	for _, fn := range opts {
		fn(&settings)
	}
	return &JSONL{settings}
}

// WithIndent sets the indentation string for the JSON serialiser.  It has no
// effect on JSONL, which is line-oriented.
func WithIndent(indent string) Option {
	return func(o *options) {
		o.Indent = indent
	}
}

// Extension returns the file extension for the formatter.
func (j *JSON) Extension() string {
	return ".json"
}

// WriteResult writes the rows as a JSON array.  Object keys within a row are
// in lexicographic order; the original column order is available to the
// caller in r.Columns.
func (j *JSON) WriteResult(ctx context.Context, w io.Writer, r *chdb.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if j.opts.Indent != "" {
		enc.SetIndent("", j.opts.Indent)
	}
	return enc.Encode(r.Rows)
}

// Extension returns the file extension for the formatter.
func (j *JSONL) Extension() string {
	return ".jsonl"
}

// WriteResult writes one JSON object per line.
func (j *JSONL) WriteResult(ctx context.Context, w io.Writer, r *chdb.Result) error {
	enc := json.NewEncoder(w)
	for _, row := range r.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}
