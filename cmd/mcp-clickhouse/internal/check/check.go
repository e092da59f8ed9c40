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

// Package check implements the connectivity diagnostic command.  Unlike
// serve, which tolerates an unreachable server, check fails loudly.
package check

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/cfg"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/golang/base"
	"github.com/rusq/mcp-clickhouse/internal/chdb"
)

//go:embed assets/check.md
var mdCheck string

// CmdCheck is the "mcp-clickhouse check" command.
var CmdCheck = &base.Command{
	UsageLine:  "mcp-clickhouse check [flags]",
	Short:      "verify ClickHouse connectivity and report server details",
	Long:       mdCheck,
	FlagMask:   cfg.OmitOutputFlag | cfg.OmitJournalFlag,
	PrintFlags: true,
	Run:        runCheck,
}

func runCheck(ctx context.Context, cmd *base.Command, args []string) error {
	if len(args) > 0 {
		base.SetExitStatus(base.SInvalidParameters)
		return errors.New("check accepts no arguments")
	}
	if err := cfg.ClickHouse.Validate(); err != nil {
		base.SetExitStatus(base.SInvalidParameters)
		return fmt.Errorf("invalid configuration: %s", strings.Join(chdb.ExplainErr(err), "; "))
	}

	db, err := chdb.Open(cfg.ClickHouse)
	if err != nil {
		base.SetExitStatus(base.SInitializationError)
		return fmt.Errorf("check: clickhouse: %w", err)
	}
	defer db.Close()

	if err := check(ctx, os.Stdout, db, cfg.ClickHouse.DSN()); err != nil {
		base.SetExitStatus(base.SApplicationError)
		return err
	}
	return nil
}

// check runs the diagnostic against db, writing a human readable report to w.
func check(ctx context.Context, w io.Writer, db chdb.Querier, target string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "  ClickHouse connectivity check")
	cyan.Fprintln(w, "  -----------------------------")
	fmt.Fprintf(w, "  Target:      %s\n", target)

	yellow.Fprintf(w, "  Connection:  ")
	if err := db.Ping(ctx); err != nil {
		red.Fprintf(w, "UNREACHABLE (%v)\n", err)
		return fmt.Errorf("ping: %w", err)
	}
	green.Fprintln(w, "OK")

	var (
		info *chdb.ServerInfo
		dbs  []string
	)
	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		info, err = db.ServerInfo(ctx)
		return err
	})
	eg.Go(func() error {
		var err error
		dbs, err = db.ListDatabases(ctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		red.Fprintf(w, "  Error:       %v\n", err)
		return err
	}

	fmt.Fprintf(w, "  Version:     %s\n", info.Version)
	if info.Hostname != "" {
		fmt.Fprintf(w, "  Hostname:    %s\n", info.Hostname)
	}
	fmt.Fprintf(w, "  Timezone:    %s\n", info.Timezone)
	fmt.Fprintf(w, "  Started:     %s\n", humanize.Time(time.Now().Add(-time.Duration(info.Uptime)*time.Second)))
	fmt.Fprintf(w, "  Databases:   %s\n", humanize.Comma(int64(len(dbs))))

	if info.Database != "" {
		tables, err := db.ListTables(ctx, info.Database, "")
		if err != nil {
			red.Fprintf(w, "  Error:       %v\n", err)
			return err
		}
		var total uint64
		for _, t := range tables {
			total += t.TotalBytes
		}
		fmt.Fprintf(w, "  Tables:      %s in %q, %s on disk\n",
			humanize.Comma(int64(len(tables))), info.Database, humanize.Bytes(total))
	}

	fmt.Fprintln(w)
	green.Fprintln(w, "  All checks passed.")
	fmt.Fprintln(w)
	return nil
}
