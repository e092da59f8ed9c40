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
	"encoding/csv"
	"io"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
)

// CSV writes the result as separated values with a header row.  It backs
// both the csv and tsv formats, the difference being the field delimiter.
type CSV struct {
	opts options
	ext  string
}

type csvOptions struct {
	UseCRLF bool
	Comma   rune
}

func init() {
	converters[CCSV] = NewCSV
	converters[CTSV] = NewTSV
}

// NewCSV returns a comma separated values serialiser.
func NewCSV(opts ...Option) Formatter {
	settings := options{
		csvOptions: csvOptions{
			UseCRLF: false,
			Comma:   ',',
		},
	}
	for _, fn := range opts {
		fn(&settings)
	}
	return &CSV{opts: settings, ext: ".csv"}
}

// NewTSV returns a tab separated values serialiser (the format ClickHouse
// calls TabSeparatedWithNames).
func NewTSV(opts ...Option) Formatter {
	settings := options{
		csvOptions: csvOptions{
			UseCRLF: false,
			Comma:   '\t',
		},
	}
	for _, fn := range opts {
		fn(&settings)
	}
	return &CSV{opts: settings, ext: ".tsv"}
}

// WithCRLF sets the line terminator to \r\n.
func WithCRLF(b bool) Option {
	return func(o *options) {
		o.UseCRLF = b
	}
}

// Extension returns the file extension for the formatter.
func (c *CSV) Extension() string {
	return c.ext
}

func (c *CSV) mkwriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = c.opts.Comma
	cw.UseCRLF = c.opts.UseCRLF
	return cw
}

// WriteResult writes the header row of column names, then one record per
// result row, in column order.
func (c *CSV) WriteResult(ctx context.Context, w io.Writer, r *chdb.Result) error {
	cw := c.mkwriter(w)
	defer cw.Flush()

	header := make([]string, len(r.Columns))
	for i, col := range r.Columns {
		header[i] = col.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(r.Columns))
	for i := range r.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j, col := range r.Columns {
			record[j] = cellString(r.Value(i, col.Name))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
