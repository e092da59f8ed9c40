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

// Package format provides serialisers for query results in different output
// format types.
package format

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
)

// Type is the serialiser type.
//
//go:generate stringer -type Type -trimprefix C format.go
type Type int

const (
	CUnknown Type = iota // Unknown serialiser type
	CCSV                 // CCSV is the comma separated values serialiser
	CTSV                 // CTSV is the tab separated values serialiser
	CJSON                // CJSON is the JSON array serialiser
	CJSONL               // CJSONL is the JSON lines serialiser (one object per row)
)

var Descriptions = map[Type]string{
	CCSV:   "comma separated values with a header row",
	CTSV:   "tab separated values with a header row",
	CJSON:  "JSON array of column-keyed objects",
	CJSONL: "one JSON object per row (JSONEachRow)",
}

// Types is a list of serialiser types.
type Types []Type

func (tt Types) String() string {
	var s []string
	for _, t := range tt {
		s = append(s, t.String())
	}
	return strings.Join(s, ", ")
}

// All returns all registered serialiser types.
func All() Types {
	return slices.SortedFunc(maps.Keys(converters), func(a, b Type) int {
		return cmp.Compare(a.String(), b.String())
	})
}

// Formatter is the interface that each serialiser must implement.
type Formatter interface {
	// WriteResult writes the result set to w.
	WriteResult(ctx context.Context, w io.Writer, r *chdb.Result) error
	// Extension returns the file extension for the formatter.
	Extension() string
}

type options struct {
	csvOptions
	jsonOptions
}

// Option is the serialiser option.
type Option func(*options)

var converters = make(map[Type]func(opts ...Option) Formatter)

// Set implements flag.Value.  It accepts the lowercase serialiser name, i.e.
// "csv" or "jsonl".
func (e *Type) Set(v string) error {
	v = strings.ToLower(v)
	for i := 0; i < len(_Type_index)-1; i++ {
		if strings.ToLower(_Type_name[_Type_index[i]:_Type_index[i+1]]) == v {
			*e = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown format: %s", v)
}

// FormatFunc returns the serialiser constructor for the type.
func (e *Type) FormatFunc() (func(opts ...Option) Formatter, bool) {
	fn, ok := converters[*e]
	return fn, ok
}

// New returns a serialiser for the named format.  The name is matched case
// insensitively.
func New(name string, opts ...Option) (Formatter, error) {
	var t Type
	if err := t.Set(name); err != nil {
		return nil, err
	}
	fn, ok := t.FormatFunc()
	if !ok {
		return nil, fmt.Errorf("unknown format: %s", name)
	}
	return fn(opts...), nil
}

// cellString renders a single result value as text for the tabular
// serialisers.  NULL renders as an empty cell.
func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
