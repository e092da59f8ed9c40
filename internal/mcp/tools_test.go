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

package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/rusq/fsadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
	"github.com/rusq/mcp-clickhouse/internal/chdb/mock_chdb"
	"github.com/rusq/mcp-clickhouse/internal/journal"
	"github.com/rusq/mcp-clickhouse/internal/testutil"
)

// testResult returns a small two-row result set.
func testResult() *chdb.Result {
	return &chdb.Result{
		QueryID: "qid-1",
		Columns: []chdb.Column{
			{Name: "id", Type: "UInt64"},
			{Name: "name", Type: "String"},
		},
		Rows: []map[string]any{
			{"id": uint64(1), "name": "Alice"},
			{"id": uint64(2), "name": "Bob"},
		},
	}
}

// isErrorResult returns true when the result carries IsError=true.
func isErrorResult(r *mcplib.CallToolResult) bool {
	return r != nil && r.IsError
}

// firstText returns the text of the first TextContent in the result.
func firstText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content, "result has no content")
	txt, ok := r.Content[0].(mcplib.TextContent)
	require.True(t, ok, "first content item is not TextContent")
	return txt.Text
}

// ─── handleListDatabases ──────────────────────────────────────────────────────

func TestHandleListDatabases(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(m *mock_chdb.MockQuerier)
		wantIsError bool
		wantText    string // substring expected in first text content
	}{
		{
			name: "returns database names as JSON",
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ListDatabases(gomock.Any()).Return([]string{"default", "system"}, nil)
			},
			wantText: "system",
		},
		{
			name: "empty list returns empty JSON array",
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ListDatabases(gomock.Any()).Return([]string{}, nil)
			},
			wantText: "[]",
		},
		{
			name: "gateway error returns error result",
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ListDatabases(gomock.Any()).Return(nil, errors.New("connection refused"))
			},
			wantIsError: true,
			wantText:    "connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			srv, mock := newTestServer(t, ctrl)
			tt.setup(mock)

			result, err := srv.handleListDatabases(t.Context(), mcplib.CallToolRequest{})
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantIsError, isErrorResult(result))
			if tt.wantText != "" {
				assert.Contains(t, firstText(t, result), tt.wantText)
			}
		})
	}
}

// ─── handleListTables ─────────────────────────────────────────────────────────

func TestHandleListTables(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		setup       func(m *mock_chdb.MockQuerier)
		wantIsError bool
		wantText    string
	}{
		{
			name:        "missing database returns error result",
			args:        nil,
			setup:       func(m *mock_chdb.MockQuerier) {},
			wantIsError: true,
			wantText:    "database is required",
		},
		{
			name: "returns table list as JSON",
			args: map[string]any{"database": "default"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ListTables(gomock.Any(), "default", "").Return([]chdb.Table{
					{
						Name:      "events",
						Engine:    "MergeTree",
						TotalRows: 42,
						Columns: []chdb.TableColumn{
							{Name: "ts", Type: "DateTime"},
							{Name: "payload", Type: "String"},
						},
					},
				}, nil)
			},
			wantText: "MergeTree",
		},
		{
			name: "like pattern is passed through",
			args: map[string]any{"database": "default", "like": "ev%"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ListTables(gomock.Any(), "default", "ev%").Return([]chdb.Table{}, nil)
			},
			wantText: "[]",
		},
		{
			name: "gateway error returns error result",
			args: map[string]any{"database": "default"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ListTables(gomock.Any(), "default", "").Return(nil, errors.New("code: 81"))
			},
			wantIsError: true,
			wantText:    "code: 81",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			srv, mock := newTestServer(t, ctrl)
			tt.setup(mock)

			result, err := srv.handleListTables(t.Context(), toolReq(tt.args))
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantIsError, isErrorResult(result))
			if tt.wantText != "" {
				assert.Contains(t, firstText(t, result), tt.wantText)
			}
		})
	}
}

// ─── handleRunSelectQuery ─────────────────────────────────────────────────────

func TestHandleRunSelectQuery(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		setup       func(m *mock_chdb.MockQuerier)
		wantIsError bool
		wantText    string
		notWantText string
	}{
		{
			name:        "missing query returns error result",
			args:        nil,
			setup:       func(m *mock_chdb.MockQuerier) {},
			wantIsError: true,
			wantText:    "query is required",
		},
		{
			name:        "blank query returns error result",
			args:        map[string]any{"query": "   "},
			setup:       func(m *mock_chdb.MockQuerier) {},
			wantIsError: true,
			wantText:    "query is required",
		},
		{
			name: "returns rows as JSON",
			args: map[string]any{"query": "SELECT id, name FROM users"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT id, name FROM users").Return(testResult(), nil)
			},
			wantText: "Alice",
		},
		{
			name: "result carries the query id",
			args: map[string]any{"query": "SELECT 1"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)
			},
			wantText: "qid-1",
		},
		{
			name: "limit truncates the result",
			args: map[string]any{"query": "SELECT 1", "limit": float64(1)},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)
			},
			wantText:    "truncated",
			notWantText: "Bob",
		},
		{
			name: "query failure carries the prefix",
			args: map[string]any{"query": "SELECT bogus"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT bogus").Return(nil, errors.New("code: 47, message: unknown identifier"))
			},
			wantIsError: true,
			wantText:    "query failed:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			srv, mock := newTestServer(t, ctrl)
			tt.setup(mock)

			result, err := srv.handleRunSelectQuery(t.Context(), toolReq(tt.args))
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantIsError, isErrorResult(result))
			if tt.wantText != "" {
				assert.Contains(t, firstText(t, result), tt.wantText)
			}
			if tt.notWantText != "" {
				assert.NotContains(t, firstText(t, result), tt.notWantText)
			}
		})
	}
}

func TestHandleRunSelectQuery_journal(t *testing.T) {
	t.Run("successful query is recorded", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv, mock := newTestServer(t, ctrl)
		srv.jrnl = testutil.TestJournal(t)
		mock.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)

		_, err := srv.handleRunSelectQuery(t.Context(), toolReq(map[string]any{"query": "SELECT 1"}))
		require.NoError(t, err)

		ee, err := srv.jrnl.Recent(t.Context(), 1)
		require.NoError(t, err)
		require.Len(t, ee, 1)
		assert.Equal(t, "run_select_query", ee[0].Tool)
		assert.Equal(t, journal.StatusOK, ee[0].Status)
		assert.Equal(t, "qid-1", ee[0].QueryID)
		assert.EqualValues(t, 2, ee[0].RowCount)
	})
	t.Run("failed query is recorded with the error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv, mock := newTestServer(t, ctrl)
		srv.jrnl = testutil.TestJournal(t)
		mock.EXPECT().Query(gomock.Any(), "SELECT bogus").Return(nil, errors.New("unknown identifier"))

		_, err := srv.handleRunSelectQuery(t.Context(), toolReq(map[string]any{"query": "SELECT bogus"}))
		require.NoError(t, err)

		ee, err := srv.jrnl.Recent(t.Context(), 1)
		require.NoError(t, err)
		require.Len(t, ee, 1)
		assert.Equal(t, journal.StatusError, ee[0].Status)
		assert.Contains(t, ee[0].Error, "query failed:")
	})
}

// ─── handleSaveQueryResults ───────────────────────────────────────────────────

func TestHandleSaveQueryResults(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		setup       func(m *mock_chdb.MockQuerier)
		wantIsError bool
		wantText    string
		wantFile    string // relative path expected to exist under the export root
		wantContent string // exact file content, when wantFile is set
	}{
		{
			name:        "missing query returns error result",
			args:        map[string]any{"filepath": "out.csv"},
			setup:       func(m *mock_chdb.MockQuerier) {},
			wantIsError: true,
			wantText:    "query is required",
		},
		{
			name:        "missing filepath returns error result",
			args:        map[string]any{"query": "SELECT 1"},
			setup:       func(m *mock_chdb.MockQuerier) {},
			wantIsError: true,
			wantText:    "filepath is required",
		},
		{
			name:        "unknown format returns error result",
			args:        map[string]any{"query": "SELECT 1", "filepath": "out.xml", "format": "xml"},
			setup:       func(m *mock_chdb.MockQuerier) {},
			wantIsError: true,
			wantText:    "unknown format",
		},
		{
			name: "saves csv by default",
			args: map[string]any{"query": "SELECT id, name FROM users", "filepath": "out.csv"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT id, name FROM users").Return(testResult(), nil)
			},
			wantText:    "success",
			wantFile:    "out.csv",
			wantContent: "id,name\n1,Alice\n2,Bob\n",
		},
		{
			name: "saves tsv",
			args: map[string]any{"query": "SELECT 1", "filepath": "out.tsv", "format": "tsv"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)
			},
			wantText:    "success",
			wantFile:    "out.tsv",
			wantContent: "id\tname\n1\tAlice\n2\tBob\n",
		},
		{
			name: "saves json",
			args: map[string]any{"query": "SELECT 1", "filepath": "sub/dir/out.json", "format": "JSON"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)
			},
			wantText:    "success",
			wantFile:    filepath.Join("sub", "dir", "out.json"),
			wantContent: `[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]` + "\n",
		},
		{
			name: "saves jsonl",
			args: map[string]any{"query": "SELECT 1", "filepath": "out.jsonl", "format": "jsonl"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)
			},
			wantText:    "success",
			wantFile:    "out.jsonl",
			wantContent: "{\"id\":1,\"name\":\"Alice\"}\n{\"id\":2,\"name\":\"Bob\"}\n",
		},
		{
			name: "query failure carries the prefix",
			args: map[string]any{"query": "SELECT bogus", "filepath": "out.csv"},
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().Query(gomock.Any(), "SELECT bogus").Return(nil, errors.New("unknown identifier"))
			},
			wantIsError: true,
			wantText:    "query failed:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			dir := t.TempDir()
			mock := mock_chdb.NewMockQuerier(ctrl)
			srv := New(mock, WithFS(fsadapter.NewDirectory(dir)))
			tt.setup(mock)

			result, err := srv.handleSaveQueryResults(t.Context(), toolReq(tt.args))
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantIsError, isErrorResult(result))
			if tt.wantText != "" {
				assert.Contains(t, firstText(t, result), tt.wantText)
			}
			if tt.wantFile != "" {
				b, err := os.ReadFile(filepath.Join(dir, tt.wantFile))
				require.NoError(t, err)
				assert.Equal(t, tt.wantContent, string(b))
			}
		})
	}
}

func TestHandleSaveQueryResults_journal(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := mock_chdb.NewMockQuerier(ctrl)
	srv := New(mock,
		WithFS(fsadapter.NewDirectory(t.TempDir())),
		WithJournal(testutil.TestJournal(t)),
	)
	mock.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)

	_, err := srv.handleSaveQueryResults(t.Context(), toolReq(map[string]any{"query": "SELECT 1", "filepath": "out.csv"}))
	require.NoError(t, err)

	ee, err := srv.jrnl.Recent(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, ee, 1)
	assert.Equal(t, "save_query_results", ee[0].Tool)
	assert.Equal(t, journal.StatusOK, ee[0].Status)
	assert.EqualValues(t, 2, ee[0].RowCount)
}

func TestHandleSaveQueryResults_tree(t *testing.T) {
	// Successive saves land in their own subdirectories under the export
	// root, and intermediate directories are created as needed.
	ctrl := gomock.NewController(t)
	dir := t.TempDir()
	mock := mock_chdb.NewMockQuerier(ctrl)
	srv := New(mock, WithFS(fsadapter.NewDirectory(dir)))
	mock.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil).Times(3)

	for _, fpath := range []string{"top.csv", "reports/2026/users.csv", "reports/2026/users.jsonl"} {
		_, err := srv.handleSaveQueryResults(t.Context(), toolReq(map[string]any{"query": "SELECT 1", "filepath": fpath}))
		require.NoError(t, err)
	}

	got := testutil.CollectFiles(t, os.DirFS(dir))
	require.Len(t, got, 3)
	assert.Contains(t, got, "top.csv")
	assert.Contains(t, got, "reports/2026/users.csv")
	assert.Contains(t, got, "reports/2026/users.jsonl")
	for path, fi := range got {
		assert.NotZero(t, fi.Size, "file %s is empty", path)
	}
}

func TestHandleSaveQueryResults_overwrite(t *testing.T) {
	// Saving to an existing path replaces the file rather than appending.
	ctrl := gomock.NewController(t)
	dir := testutil.PrepareTestDirectory(t, fstest.MapFS{
		"out.csv": &fstest.MapFile{Data: []byte("stale,data\nfrom,before\n")},
	})
	mock := mock_chdb.NewMockQuerier(ctrl)
	srv := New(mock, WithFS(fsadapter.NewDirectory(dir)))
	mock.EXPECT().Query(gomock.Any(), "SELECT 1").Return(testResult(), nil)

	result, err := srv.handleSaveQueryResults(t.Context(), toolReq(map[string]any{"query": "SELECT 1", "filepath": "out.csv"}))
	require.NoError(t, err)
	assert.False(t, isErrorResult(result))

	b, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Alice\n2,Bob\n", string(b))
}

// ─── handleServerInfo ─────────────────────────────────────────────────────────

func TestHandleServerInfo(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(m *mock_chdb.MockQuerier)
		wantIsError bool
		wantText    string
	}{
		{
			name: "returns server info as JSON",
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ServerInfo(gomock.Any()).Return(&chdb.ServerInfo{
					Version:  "24.3.1.100",
					Hostname: "ch-node-1",
					Uptime:   3600,
					Database: "default",
					Timezone: "UTC",
				}, nil)
			},
			wantText: "24.3.1.100",
		},
		{
			name: "gateway error returns error result",
			setup: func(m *mock_chdb.MockQuerier) {
				m.EXPECT().ServerInfo(gomock.Any()).Return(nil, errors.New("connection refused"))
			},
			wantIsError: true,
			wantText:    "connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			srv, mock := newTestServer(t, ctrl)
			tt.setup(mock)

			result, err := srv.handleServerInfo(t.Context(), mcplib.CallToolRequest{})
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantIsError, isErrorResult(result))
			if tt.wantText != "" {
				assert.Contains(t, firstText(t, result), tt.wantText)
			}
		})
	}
}

// ─── handleQueryHistory ───────────────────────────────────────────────────────

func TestHandleQueryHistory(t *testing.T) {
	newJournalServer := func(t *testing.T) *Server {
		t.Helper()
		ctrl := gomock.NewController(t)
		m := mock_chdb.NewMockQuerier(ctrl)
		return New(m, WithJournal(testutil.TestJournal(t)))
	}

	t.Run("returns entries newest first", func(t *testing.T) {
		srv := newJournalServer(t)
		for _, q := range []string{"SELECT 1", "SELECT 2", "SELECT 3"} {
			require.NoError(t, srv.jrnl.Record(t.Context(), journal.Entry{Tool: "run_select_query", Query: q}))
		}

		result, err := srv.handleQueryHistory(t.Context(), toolReq(map[string]any{"limit": float64(2)}))
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, isErrorResult(result))
		text := firstText(t, result)
		assert.Contains(t, text, "SELECT 3")
		assert.Contains(t, text, "SELECT 2")
		assert.NotContains(t, text, "SELECT 1")
		assert.Contains(t, text, `"total":3`)
	})
	t.Run("empty journal", func(t *testing.T) {
		srv := newJournalServer(t)

		result, err := srv.handleQueryHistory(t.Context(), toolReq(nil))
		require.NoError(t, err)
		assert.False(t, isErrorResult(result))
		assert.Contains(t, firstText(t, result), `"total":0`)
	})
	t.Run("closed journal returns error result", func(t *testing.T) {
		srv := newJournalServer(t)
		require.NoError(t, srv.jrnl.Close())

		result, err := srv.handleQueryHistory(t.Context(), toolReq(nil))
		require.NoError(t, err)
		assert.True(t, isErrorResult(result))
		assert.Contains(t, firstText(t, result), "query_history")
	})
}
