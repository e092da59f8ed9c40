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

// Package serve contains the CLI command for starting the MCP server.
package serve

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/rusq/fsadapter"
	"github.com/rusq/osenv/v2"

	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/cfg"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/golang/base"
	"github.com/rusq/mcp-clickhouse/internal/chdb"
	"github.com/rusq/mcp-clickhouse/internal/journal"
	internalmcp "github.com/rusq/mcp-clickhouse/internal/mcp"
)

//go:embed assets/serve.md
var mdServe string

// CmdServe is the "mcp-clickhouse serve" command.
var CmdServe = &base.Command{
	UsageLine:  "mcp-clickhouse serve [flags]",
	Short:      "start the MCP server",
	Long:       mdServe,
	FlagMask:   cfg.DefaultFlags,
	PrintFlags: true,
	Run:        RunServe,
}

var (
	listenAddr string
	transport  string
)

func init() {
	CmdServe.Flag.StringVar(&transport, "transport", osenv.Value("MCP_TRANSPORT", "stdio"), "MCP `transport`: \"stdio\", \"http\" or \"sse\"")
	CmdServe.Flag.StringVar(&listenAddr, "listen", osenv.Value("MCP_LISTEN", "127.0.0.1:8493"), "`address` to listen on when -transport is http or sse")
}

// RunServe is exported because serve is the default command, main falls back
// to it when no command is given on the command line.
func RunServe(ctx context.Context, cmd *base.Command, args []string) error {
	lg := cfg.Log
	if len(args) > 0 {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("serve accepts no arguments")
	}

	tr, err := internalmcp.ParseTransport(transport)
	if err != nil {
		base.SetExitStatus(base.SInvalidParameters)
		return err
	}

	if err := cfg.ClickHouse.Validate(); err != nil {
		base.SetExitStatus(base.SInvalidParameters)
		return fmt.Errorf("invalid configuration: %s", strings.Join(chdb.ExplainErr(err), "; "))
	}

	db, err := chdb.Open(cfg.ClickHouse)
	if err != nil {
		base.SetExitStatus(base.SInitializationError)
		return fmt.Errorf("serve: clickhouse: %w", err)
	}
	defer db.Close()

	// The client dials lazily, so an unreachable server does not prevent
	// startup.  Tools return error payloads until it becomes reachable.
	if err := db.Ping(ctx); err != nil {
		lg.WarnContext(ctx, "serve: clickhouse is not reachable", "target", cfg.ClickHouse.DSN(), "error", err)
	} else {
		lg.InfoContext(ctx, "serve: connected", "target", cfg.ClickHouse.DSN())
	}

	opts := []internalmcp.Option{internalmcp.WithLogger(lg)}
	if cfg.JournalPath != "" {
		jrnl, err := journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			base.SetExitStatus(base.SInitializationError)
			return fmt.Errorf("serve: journal: %w", err)
		}
		defer jrnl.Close()
		opts = append(opts, internalmcp.WithJournal(jrnl))
	}
	if cfg.Output != "" {
		fsa, err := fsadapter.New(cfg.Output)
		if err != nil {
			base.SetExitStatus(base.SInitializationError)
			return fmt.Errorf("serve: output location: %w", err)
		}
		defer fsa.Close()
		opts = append(opts, internalmcp.WithFS(fsa))
	}

	srv := internalmcp.New(db, opts...)

	switch tr {
	case internalmcp.TransportHTTP:
		lg.InfoContext(ctx, "serve: http transport", "addr", listenAddr)
		return srv.ServeHTTP(ctx, listenAddr)
	case internalmcp.TransportSSE:
		lg.InfoContext(ctx, "serve: sse transport", "addr", listenAddr)
		return srv.ServeSSE(ctx, listenAddr)
	default:
		return srv.ServeStdio(ctx)
	}
}
