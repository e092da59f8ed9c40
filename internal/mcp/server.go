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

// In this file: MCP server construction and transport management.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"
	"github.com/rusq/fsadapter"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
	"github.com/rusq/mcp-clickhouse/internal/journal"
)

const (
	serverName    = "mcp-clickhouse"
	serverVersion = "1.0.0"
)

// Transport selects how the MCP server communicates with its client.
type Transport string

const (
	// TransportStdio uses stdin/stdout for communication (default, suitable
	// for local agent integrations such as Claude Desktop).
	TransportStdio Transport = "stdio"
	// TransportHTTP uses Streamable HTTP transport (suitable for remote
	// agents or when multiple concurrent clients are needed).
	TransportHTTP Transport = "http"
	// TransportSSE uses the legacy Server-Sent Events transport for clients
	// that do not speak streamable HTTP yet.
	TransportSSE Transport = "sse"
)

// ParseTransport converts the string value of a flag or environment variable
// into a Transport.
func ParseTransport(s string) (Transport, error) {
	switch Transport(strings.ToLower(s)) {
	case TransportStdio:
		return TransportStdio, nil
	case TransportHTTP:
		return TransportHTTP, nil
	case TransportSSE:
		return TransportSSE, nil
	}
	return "", fmt.Errorf("unknown transport %q (want stdio, http or sse)", s)
}

// Server wraps an MCP server and the underlying database gateway.
type Server struct {
	mcp    *mcpsrv.MCPServer
	db     chdb.Querier
	jrnl   *journal.Journal
	fsa    fsadapter.FS
	logger *slog.Logger
}

// Option is a functional option for [New].
type Option func(*Server)

// WithLogger sets the server logger.  A nil logger is ignored.
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// WithJournal enables the query journal.  When set, executed queries are
// recorded in it and the query_history tool is registered.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) {
		s.jrnl = j
	}
}

// WithFS sets the export root for save_query_results.  When unset, the tool
// is not registered.
func WithFS(fsa fsadapter.FS) Option {
	return func(s *Server) {
		s.fsa = fsa
	}
}

// New creates a new MCP server backed by the given database gateway.  The
// server is populated with all available tools but does not start listening
// until one of the Serve* methods is called.
func New(db chdb.Querier, opt ...Option) *Server {
	s := &Server{
		db:     db,
		logger: slog.Default(),
	}
	for _, o := range opt {
		o(s)
	}

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(instructions()),
	)

	// Register all tools.
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}

	s.mcp = mcpServer
	return s
}

// instructions returns the server instructions that describe the database to
// the connecting agent.
func instructions() string {
	return `You are connected to a ClickHouse database through the mcp-clickhouse server.

Available tools allow you to:
- List databases on the server
- List tables of a database, with engine, size and column details
- Run a SELECT query and receive rows as JSON (run_select_query)
- Save query results to a CSV/TSV/JSON/JSONL file (save_query_results)
- Get ClickHouse server information (server_info)
- Review recently executed queries (query_history)

Queries are executed with the ClickHouse readonly setting and an execution
time cap unless the server was started in read-write mode.  Use ClickHouse
SQL dialect.  Every query is tagged with a query ID which is returned in the
result and can be matched against system.query_log on the server.
`
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled.
// This is the standard transport used by local agent integrations.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// ServeHTTP runs the MCP server as a Streamable HTTP server on addr until ctx
// is cancelled.  addr should be a host:port string such as "127.0.0.1:8493".
// The MCP endpoint is mounted on /mcp, and a trivial GET /healthz endpoint is
// provided for supervisors.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	streamSrv := mcpsrv.NewStreamableHTTPServer(s.mcp)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamSrv)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: middleware.Logger(mux),
	}

	s.logger.InfoContext(ctx, "mcp server listening on http", "addr", addr, "endpoint", "/mcp")

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		if err := httpSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// ServeSSE runs the MCP server with the legacy SSE transport on addr until
// ctx is cancelled.  The SSE stream is served on /sse, messages are posted to
// /message.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseSrv := mcpsrv.NewSSEServer(s.mcp)

	s.logger.InfoContext(ctx, "mcp server listening on sse", "addr", addr, "endpoint", "/sse")

	errCh := make(chan error, 1)
	go func() {
		if err := sseSrv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp sse server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		if err := sseSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp sse server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// tools returns all MCP tools that this server exposes.  Optional tools are
// included only when their backing facility is configured.
func (s *Server) tools() []mcpsrv.ServerTool {
	tt := []mcpsrv.ServerTool{
		s.toolListDatabases(),
		s.toolListTables(),
		s.toolRunSelectQuery(),
		s.toolServerInfo(),
	}
	if s.fsa != nil {
		tt = append(tt, s.toolSaveQueryResults())
	}
	if s.jrnl != nil {
		tt = append(tt, s.toolQueryHistory())
	}
	return tt
}

// AddTool adds an additional tool to the MCP server.  This can be called
// after New but before serving starts.  It is intended for CLI-layer tools
// that have access to internal CLI packages.
func (s *Server) AddTool(tool mcpsrv.ServerTool) {
	s.mcp.AddTool(tool.Tool, tool.Handler)
}

// resultText is a helper that wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr is a helper that wraps an error in a CallToolResult with IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON is a helper that serialises v to JSON and returns a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named int argument from a tool call request.  The MCP
// protocol serialises numbers as float64, so we convert accordingly.
func intArg(req mcplib.CallToolRequest, name string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return defaultVal
}

// boolArg extracts a named bool argument from a tool call request.
func boolArg(req mcplib.CallToolRequest, name string, defaultVal bool) bool {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}
