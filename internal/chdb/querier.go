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
	"context"
	"errors"
)

var (
	// ErrNoDatabase is returned when an operation requires a database name
	// and none was given.
	ErrNoDatabase = errors.New("no database specified")
)

// Querier is the gateway interface consumed by the MCP server.  *Client is
// the production implementation.
//
//go:generate mockgen -destination=mock_chdb/mock_chdb.go . Querier
type Querier interface {
	// Ping should dial the server and verify that it responds.
	Ping(ctx context.Context) error
	// Query should execute the statement and return the materialised result
	// set with a fresh query ID.
	Query(ctx context.Context, query string) (*Result, error)
	// ListDatabases should return the names of all databases on the server.
	ListDatabases(ctx context.Context) ([]string, error)
	// ListTables should return the tables of the database with column
	// details, filtered by the LIKE pattern if like is not empty.  It should
	// return ErrNoDatabase if database is empty.
	ListTables(ctx context.Context, database, like string) ([]Table, error)
	// ServerInfo should return the server identification.
	ServerInfo(ctx context.Context) (*ServerInfo, error)
}
