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

// Package chdb is the ClickHouse database gateway.  It owns the connection
// configuration, executes queries with per-query safety settings (read-only
// mode, execution time cap, unique query IDs), and provides schema
// introspection over the system tables.
//
// The connection is dialled lazily: Open constructs the client without
// touching the network, and the first query (or an explicit Ping) establishes
// the connection.  This lets the server start and keep answering with clean
// errors while ClickHouse is unreachable, recovering automatically once it
// comes back.
package chdb

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"
)

// Driver is the database/sql driver name registered by clickhouse-go.
const Driver = "clickhouse"

// clientProduct is the product name reported to the server in the client
// hello.
const clientProduct = "mcp-clickhouse"

// productVersion returns the module version baked into the binary, if any.
func productVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "unknown"
}

// Client is a ClickHouse gateway.  It is safe for concurrent use.
type Client struct {
	conn    *sqlx.DB
	cfg     Config
	limiter *rate.Limiter
}

// Open creates a new Client for the given configuration.  It validates the
// configuration and constructs the connection pool, but does not dial: use
// Ping to verify connectivity.
func Open(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chdb: config: %w", err)
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, fmt.Errorf("chdb: config: %w", err)
	}
	db := sqlx.NewDb(clickhouse.OpenDB(opts), Driver)
	c := &Client{
		conn:    db,
		cfg:     cfg,
		limiter: newLimiter(cfg.RatePerMin),
	}
	slog.Debug("clickhouse client created", "dsn", cfg.DSN(), "protocol", cfg.Protocol)
	return c, nil
}

// newLimiter returns a rate limiter admitting perMin queries per minute, or
// an unlimited one when perMin is zero or negative.
func newLimiter(perMin int) *rate.Limiter {
	if perMin <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 1)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	slog.Debug("closing clickhouse connection", "dsn", c.cfg.DSN())
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("chdb: close: %w", err)
	}
	return nil
}

// Ping dials the server and verifies that it responds.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("chdb: ping %s: %w", c.cfg.DSN(), err)
	}
	return nil
}

// queryContext stamps ctx with the per-query client settings and the query
// ID, so that the driver applies them to the next statement.
func (c *Client) queryContext(ctx context.Context, queryID string) context.Context {
	settings := clickhouse.Settings{}
	if c.cfg.ReadOnly {
		settings["readonly"] = 1
	}
	if c.cfg.MaxExecutionTime > 0 {
		settings["max_execution_time"] = int(c.cfg.MaxExecutionTime / time.Second)
	}
	return clickhouse.Context(ctx,
		clickhouse.WithSettings(settings),
		clickhouse.WithQueryID(queryID),
	)
}

// Query executes the statement and returns the full result set.  Each call
// gets a fresh query ID, which is returned in the Result and can be used to
// correlate with the server-side query log.
func (c *Client) Query(ctx context.Context, query string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chdb: limiter: %w", err)
	}
	queryID := uuid.NewString()
	slog.DebugContext(ctx, "executing query", "query_id", queryID, "readonly", c.cfg.ReadOnly)

	rows, err := c.conn.QueryxContext(c.queryContext(ctx, queryID), query)
	if err != nil {
		return nil, fmt.Errorf("chdb: query %s: %w", queryID, err)
	}
	defer rows.Close()

	res, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("chdb: query %s: %w", queryID, err)
	}
	res.QueryID = queryID
	return res, nil
}

// ListDatabases returns the names of all databases on the server.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chdb: limiter: %w", err)
	}
	names := []string{} // serialises as [], not null
	ctx = c.queryContext(ctx, uuid.NewString())
	if err := c.conn.SelectContext(ctx, &names, "SELECT name FROM system.databases ORDER BY name"); err != nil {
		return nil, fmt.Errorf("chdb: list databases: %w", err)
	}
	return names, nil
}

// TableColumn describes a single column of a table.
type TableColumn struct {
	Name    string `db:"name" json:"name"`
	Type    string `db:"type" json:"type"`
	Comment string `db:"comment" json:"comment,omitempty"`
	Default string `db:"default_expression" json:"default_expression,omitempty"`
}

// Table describes a table together with its columns.
type Table struct {
	Name       string        `db:"name" json:"name"`
	Engine     string        `db:"engine" json:"engine"`
	Comment    string        `db:"comment" json:"comment,omitempty"`
	TotalRows  uint64        `db:"total_rows" json:"total_rows"`
	TotalBytes uint64        `db:"total_bytes" json:"total_bytes"`
	Columns    []TableColumn `json:"columns"`
}

// ListTables returns the tables of the given database, with column details.
// If like is not empty, only tables whose name matches the SQL LIKE pattern
// are returned.
func (c *Client) ListTables(ctx context.Context, database, like string) ([]Table, error) {
	if database == "" {
		return nil, fmt.Errorf("chdb: list tables: %w", ErrNoDatabase)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chdb: limiter: %w", err)
	}
	ctx = c.queryContext(ctx, uuid.NewString())

	q := "SELECT name, engine, comment, coalesce(total_rows, 0) AS total_rows, coalesce(total_bytes, 0) AS total_bytes FROM system.tables WHERE database = ?"
	args := []any{database}
	if like != "" {
		q += " AND name LIKE ?"
		args = append(args, like)
	}
	q += " ORDER BY name"

	tables := []Table{} // serialises as [], not null
	if err := c.conn.SelectContext(ctx, &tables, q, args...); err != nil {
		return nil, fmt.Errorf("chdb: list tables: %w", err)
	}
	if len(tables) == 0 {
		return tables, nil
	}

	cq := "SELECT table, name, type, comment, default_expression FROM system.columns WHERE database = ?"
	cargs := []any{database}
	if like != "" {
		cq += " AND table LIKE ?"
		cargs = append(cargs, like)
	}
	cq += " ORDER BY table, position"

	type tableColumn struct {
		Table string `db:"table"`
		TableColumn
	}
	var cols []tableColumn
	if err := c.conn.SelectContext(ctx, &cols, cq, cargs...); err != nil {
		return nil, fmt.Errorf("chdb: list columns: %w", err)
	}
	byTable := make(map[string][]TableColumn, len(tables))
	for _, col := range cols {
		byTable[col.Table] = append(byTable[col.Table], col.TableColumn)
	}
	for i := range tables {
		tables[i].Columns = byTable[tables[i].Name]
	}
	return tables, nil
}

// ServerInfo is the server identification returned by the server_info tool
// and the check command.
type ServerInfo struct {
	Version  string `db:"version" json:"version"`
	Hostname string `db:"hostname" json:"hostname"`
	Uptime   uint64 `db:"uptime" json:"uptime_seconds"`
	Database string `db:"database" json:"current_database"`
	Timezone string `db:"timezone" json:"timezone"`
}

// ServerInfo returns the server version and related runtime information.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chdb: limiter: %w", err)
	}
	ctx = c.queryContext(ctx, uuid.NewString())
	var info ServerInfo
	const q = "SELECT version() AS version, hostName() AS hostname, uptime() AS uptime, currentDatabase() AS database, timezone() AS timezone"
	if err := c.conn.QueryRowxContext(ctx, q).StructScan(&info); err != nil {
		return nil, fmt.Errorf("chdb: server info: %w", err)
	}
	return &info, nil
}
