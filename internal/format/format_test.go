package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
)

func TestAll(t *testing.T) {
	got := All()

	assert.Equal(t, Types{CCSV, CJSON, CJSONL, CTSV}, got)
}

func TestType_Set(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{input: "csv", want: CCSV},
		{input: "CSV", want: CCSV},
		{input: "tsv", want: CTSV},
		{input: "json", want: CJSON},
		{input: "jsonl", want: CJSONL},
		{input: "parquet", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var typ Type
			err := typ.Set(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, typ)
		})
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"csv", "tsv", "json", "jsonl"} {
		t.Run(name, func(t *testing.T) {
			f, err := New(name)
			require.NoError(t, err)
			assert.NotNil(t, f)
			assert.True(t, strings.HasPrefix(f.Extension(), "."))
		})
	}
	t.Run("unknown", func(t *testing.T) {
		_, err := New("avro")
		assert.Error(t, err)
	})
}

// testResult returns a small two-row result used by the serialiser tests.
func testResult() *chdb.Result {
	return &chdb.Result{
		QueryID: "test-query",
		Columns: []chdb.Column{
			{Name: "id", Type: "UInt64"},
			{Name: "name", Type: "String"},
		},
		Rows: []map[string]any{
			{"id": int64(1), "name": "Alice"},
			{"id": int64(2), "name": "Bob"},
		},
	}
}

func TestCSV_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewCSV()
	require.NoError(t, f.WriteResult(t.Context(), &buf, testResult()))

	want := "id,name\n1,Alice\n2,Bob\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, ".csv", f.Extension())
}

func TestTSV_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewTSV()
	require.NoError(t, f.WriteResult(t.Context(), &buf, testResult()))

	want := "id\tname\n1\tAlice\n2\tBob\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, ".tsv", f.Extension())
}

func TestCSV_WriteResult_quoting(t *testing.T) {
	r := &chdb.Result{
		Columns: []chdb.Column{{Name: "v", Type: "String"}},
		Rows: []map[string]any{
			{"v": `say "hi", friend`},
			{"v": nil},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewCSV().WriteResult(t.Context(), &buf, r))
	assert.Equal(t, "v\n\"say \"\"hi\"\", friend\"\n\n", buf.String())
}

func TestJSON_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSON()
	require.NoError(t, f.WriteResult(t.Context(), &buf, testResult()))

	want := `[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]` + "\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, ".json", f.Extension())
}

func TestJSON_WriteResult_indent(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSON(WithIndent("  "))
	require.NoError(t, f.WriteResult(t.Context(), &buf, testResult()))
	assert.Contains(t, buf.String(), "\n  {")
}

func TestJSONL_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONL()
	require.NoError(t, f.WriteResult(t.Context(), &buf, testResult()))

	want := `{"id":1,"name":"Alice"}` + "\n" + `{"id":2,"name":"Bob"}` + "\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, ".jsonl", f.Extension())
}

func TestJSON_WriteResult_emptyRows(t *testing.T) {
	r := &chdb.Result{Columns: []chdb.Column{{Name: "id"}}, Rows: []map[string]any{}}
	var buf bytes.Buffer
	require.NoError(t, NewJSON().WriteResult(t.Context(), &buf, r))
	assert.Equal(t, "[]\n", buf.String())
}

func TestCellString(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil is empty", in: nil, want: ""},
		{name: "string", in: "x", want: "x"},
		{name: "bytes", in: []byte("y"), want: "y"},
		{name: "int", in: int64(42), want: "42"},
		{name: "float", in: 1.5, want: "1.5"},
		{name: "bool", in: true, want: "true"},
		{name: "time", in: ts, want: "2024-06-01T12:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cellString(tt.in))
		})
	}
}
