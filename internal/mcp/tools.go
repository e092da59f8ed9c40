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

// In this file: MCP tool definitions and handler implementations.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
	"github.com/rusq/mcp-clickhouse/internal/format"
	"github.com/rusq/mcp-clickhouse/internal/journal"
)

// Row limits for run_select_query.
const (
	defLimit = 1000
	minLimit = 1
	maxLimit = 10000
)

// Entry limits for query_history.
const (
	defHistory = 20
	maxHistory = 100
)

// record writes a journal entry for an executed query.  It is a noop when
// journalling is disabled.  Journalling failures are logged, never returned:
// a failure to record must not fail the tool call that it describes.
func (s *Server) record(ctx context.Context, start time.Time, tool, query, queryID string, rows int64, qerr error) {
	if s.jrnl == nil {
		return
	}
	e := journal.Entry{
		StartedAt: start.UTC(),
		Tool:      tool,
		Query:     query,
		QueryID:   queryID,
		Status:    journal.StatusOK,
		RowCount:  rows,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if qerr != nil {
		e.Status = journal.StatusError
		e.Error = qerr.Error()
	}
	if err := s.jrnl.Record(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "journal record failed", "tool", tool, "error", err)
	}
}

// ─── list_databases ───────────────────────────────────────────────────────────

func (s *Server) toolListDatabases() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_databases",
		mcplib.WithDescription("List all databases on the ClickHouse server. Returns a JSON array of database names."),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListDatabases}
}

func (s *Server) handleListDatabases(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	s.logger.DebugContext(ctx, "mcp: list_databases")

	names, err := s.db.ListDatabases(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("list_databases: %w", err)), nil
	}

	result, err := resultJSON(names)
	if err != nil {
		return resultErr(fmt.Errorf("list_databases: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_tables ──────────────────────────────────────────────────────────────

func (s *Server) toolListTables() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_tables",
		mcplib.WithDescription(`List the tables of a ClickHouse database.

Returns a JSON array of table objects with the table engine, comment, total
row and byte counts, and full column details (name, ClickHouse type, comment,
default expression).`),
		mcplib.WithString("database",
			mcplib.Description("Name of the database to list tables from (e.g. \"default\")."),
			mcplib.Required(),
		),
		mcplib.WithString("like",
			mcplib.Description("Optional SQL LIKE pattern to filter table names (e.g. \"events_%\")."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListTables}
}

func (s *Server) handleListTables(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	database, ok := stringArg(req, "database")
	if !ok || database == "" {
		return resultErr(errors.New("list_tables: database is required")), nil
	}
	like, _ := stringArg(req, "like")

	s.logger.DebugContext(ctx, "mcp: list_tables", "database", database, "like", like)

	tables, err := s.db.ListTables(ctx, database, like)
	if err != nil {
		return resultErr(fmt.Errorf("list_tables: %w", err)), nil
	}

	result, err := resultJSON(tables)
	if err != nil {
		return resultErr(fmt.Errorf("list_tables: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── run_select_query ─────────────────────────────────────────────────────────

func (s *Server) toolRunSelectQuery() mcpsrv.ServerTool {
	tool := mcplib.NewTool("run_select_query",
		mcplib.WithDescription(`Run a SELECT query against the ClickHouse database.

The query is executed in read-only mode with an execution time cap (unless
the server was started read-write).  Returns a JSON object with the query ID,
ordered column metadata (name and ClickHouse type), rows as column-keyed
objects, and the row count.  When the result was cut at the row limit,
"truncated" is set to true.`),
		mcplib.WithString("query",
			mcplib.Description("The SELECT statement to execute (ClickHouse SQL dialect)."),
			mcplib.Required(),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of rows to return (1–10000, default 1000)."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleRunSelectQuery}
}

// queryResponse is the JSON payload returned by run_select_query.
type queryResponse struct {
	QueryID   string           `json:"query_id"`
	Columns   []chdb.Column    `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated,omitempty"`
}

func (s *Server) handleRunSelectQuery(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query, ok := stringArg(req, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return resultErr(errors.New("run_select_query: query is required")), nil
	}
	limit := intArg(req, "limit", defLimit)
	limit = max(min(limit, maxLimit), minLimit) // ensure within bounds

	s.logger.DebugContext(ctx, "mcp: run_select_query", "query", query, "limit", limit)

	start := time.Now()
	r, err := s.db.Query(ctx, query)
	if err != nil {
		err = fmt.Errorf("query failed: %w", err)
		s.record(ctx, start, "run_select_query", query, "", 0, err)
		return resultErr(err), nil
	}
	truncated := r.Truncate(limit)
	s.record(ctx, start, "run_select_query", query, r.QueryID, int64(r.RowCount()), nil)

	result, err := resultJSON(queryResponse{
		QueryID:   r.QueryID,
		Columns:   r.Columns,
		Rows:      r.Rows,
		RowCount:  r.RowCount(),
		Truncated: truncated,
	})
	if err != nil {
		return resultErr(fmt.Errorf("run_select_query: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── save_query_results ───────────────────────────────────────────────────────

func (s *Server) toolSaveQueryResults() mcpsrv.ServerTool {
	tool := mcplib.NewTool("save_query_results",
		mcplib.WithDescription(`Run a SELECT query and save the result to a file under the configured
output directory (or zip archive).

The file path is relative to the output root; directories are created as
needed.  CSV and TSV files carry a header row; JSON is an array of
column-keyed objects, JSONL has one object per line.`),
		mcplib.WithString("query",
			mcplib.Description("The SELECT statement to execute (ClickHouse SQL dialect)."),
			mcplib.Required(),
		),
		mcplib.WithString("filepath",
			mcplib.Description("File path relative to the output root (e.g. \"reports/daily.csv\")."),
			mcplib.Required(),
		),
		mcplib.WithString("format",
			mcplib.Description("Output format: csv (default), tsv, json or jsonl."),
		),
		mcplib.WithBoolean("indent",
			mcplib.Description("Pretty-print the output (json format only)."),
		),
		mcplib.WithReadOnlyHintAnnotation(false),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleSaveQueryResults}
}

// saveResponse is the JSON payload returned by save_query_results.
type saveResponse struct {
	Status      string        `json:"status"`
	Format      string        `json:"format"`
	Filepath    string        `json:"filepath"`
	RowsWritten int           `json:"rows_written"`
	Columns     []chdb.Column `json:"columns"`
	QueryID     string        `json:"query_id"`
}

func (s *Server) handleSaveQueryResults(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query, ok := stringArg(req, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return resultErr(errors.New("save_query_results: query is required")), nil
	}
	fpath, ok := stringArg(req, "filepath")
	if !ok || fpath == "" {
		return resultErr(errors.New("save_query_results: filepath is required")), nil
	}
	name, _ := stringArg(req, "format")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "csv"
	}
	var opts []format.Option
	if boolArg(req, "indent", false) {
		opts = append(opts, format.WithIndent("  "))
	}
	f, err := format.New(name, opts...)
	if err != nil {
		return resultErr(fmt.Errorf("save_query_results: %w", err)), nil
	}

	s.logger.DebugContext(ctx, "mcp: save_query_results", "query", query, "filepath", fpath, "format", name)

	start := time.Now()
	r, err := s.db.Query(ctx, query)
	if err != nil {
		err = fmt.Errorf("query failed: %w", err)
		s.record(ctx, start, "save_query_results", query, "", 0, err)
		return resultErr(err), nil
	}
	if err := s.saveResult(ctx, f, fpath, r); err != nil {
		err = fmt.Errorf("save_query_results: %w", err)
		s.record(ctx, start, "save_query_results", query, r.QueryID, int64(r.RowCount()), err)
		return resultErr(err), nil
	}
	s.record(ctx, start, "save_query_results", query, r.QueryID, int64(r.RowCount()), nil)
	s.logger.InfoContext(ctx, "mcp: save_query_results: saved", "filepath", fpath, "format", name, "rows", r.RowCount())

	result, err := resultJSON(saveResponse{
		Status:      "success",
		Format:      name,
		Filepath:    fpath,
		RowsWritten: r.RowCount(),
		Columns:     r.Columns,
		QueryID:     r.QueryID,
	})
	if err != nil {
		return resultErr(fmt.Errorf("save_query_results: serialise: %w", err)), nil
	}
	return result, nil
}

// saveResult writes the result through the formatter to a new file at fpath
// under the export root.
func (s *Server) saveResult(ctx context.Context, f format.Formatter, fpath string, r *chdb.Result) error {
	w, err := s.fsa.Create(fpath)
	if err != nil {
		return fmt.Errorf("create %q: %w", fpath, err)
	}
	if err := f.WriteResult(ctx, w, r); err != nil {
		w.Close()
		return fmt.Errorf("write %q: %w", fpath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %q: %w", fpath, err)
	}
	return nil
}

// ─── server_info ──────────────────────────────────────────────────────────────

func (s *Server) toolServerInfo() mcpsrv.ServerTool {
	tool := mcplib.NewTool("server_info",
		mcplib.WithDescription("Return ClickHouse server information: version, host name, uptime, current database, and timezone."),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleServerInfo}
}

func (s *Server) handleServerInfo(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	s.logger.DebugContext(ctx, "mcp: server_info")

	info, err := s.db.ServerInfo(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("server_info: %w", err)), nil
	}

	result, err := resultJSON(info)
	if err != nil {
		return resultErr(fmt.Errorf("server_info: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── query_history ────────────────────────────────────────────────────────────

func (s *Server) toolQueryHistory() mcpsrv.ServerTool {
	tool := mcplib.NewTool("query_history",
		mcplib.WithDescription("Return the most recent queries executed through this server, newest first, with their status, row counts and timing."),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of entries to return (1–100, default 20)."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleQueryHistory}
}

// historyResponse is the JSON payload returned by query_history.
type historyResponse struct {
	Entries []journal.Entry `json:"entries"`
	Total   int64           `json:"total"`
}

func (s *Server) handleQueryHistory(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := intArg(req, "limit", defHistory)
	limit = max(min(limit, maxHistory), minLimit)

	s.logger.DebugContext(ctx, "mcp: query_history", "limit", limit)

	ee, err := s.jrnl.Recent(ctx, limit)
	if err != nil {
		return resultErr(fmt.Errorf("query_history: %w", err)), nil
	}
	total, err := s.jrnl.Count(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("query_history: %w", err)), nil
	}

	result, err := resultJSON(historyResponse{Entries: ee, Total: total})
	if err != nil {
		return resultErr(fmt.Errorf("query_history: serialise: %w", err)), nil
	}
	return result, nil
}
