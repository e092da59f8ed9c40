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

// Command mcp-clickhouse is an MCP server that gives AI agents read access
// to ClickHouse databases.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/cfg"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/check"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/golang/base"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/golang/help"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/man"
	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/serve"
)

// defCmd is the command that runs when none is given.  The server
// historically started without subcommands, and MCP client configurations
// written for it must keep working.
const defCmd = "serve"

func init() {
	base.MCPClickHouse.Commands = []*base.Command{
		serve.CmdServe,
		check.CmdCheck,
		CmdVersion,

		man.Environment,
		man.Transports,
	}
}

// secrets defines the names of the supported secret files that we load our
// secrets from.  Inexperienced windows users might have bad experience trying
// to create .env file with the notepad as it will battle for having the
// "txt" extension.  Let it have it.
var secrets = []string{".env", ".env.txt", "secrets.txt"}

func main() {
	loadSecrets(secrets)

	base.Usage = mainUsage

	args := normalizeArgs(os.Args[1:])
	base.CmdName = args[0]
	if args[0] == "help" {
		help.Help(os.Stdout, args[1:])
		base.Exit()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

BigCmdLoop:
	for bigCmd := base.MCPClickHouse; ; {
		for _, cmd := range bigCmd.Commands {
			if cmd.Name() != args[0] {
				continue
			}
			if len(cmd.Commands) > 0 {
				bigCmd = cmd
				args = args[1:]
				if len(args) == 0 {
					help.PrintUsage(os.Stderr, bigCmd)
					base.SetExitStatus(base.SHelpRequested)
					base.Exit()
				}
				if args[0] == "help" {
					help.Help(os.Stdout, append(strings.Split(base.CmdName, " "), args[1:]...))
					base.Exit()
				}
				base.CmdName += " " + args[0]
				continue BigCmdLoop
			}
			if !cmd.Runnable() {
				continue
			}
			invoke(ctx, cmd, args)
			base.Exit()
		}
		helpArg := ""
		if i := strings.LastIndex(base.CmdName, " "); i >= 0 {
			helpArg = " " + base.CmdName[:i]
		}
		fmt.Fprintf(os.Stderr, "mcp-clickhouse %s: unknown command\nRun 'mcp-clickhouse help%s' for usage.\n", base.CmdName, helpArg)
		base.SetExitStatus(base.SHelpRequested)
		base.Exit()
	}
}

// normalizeArgs inserts the default command when none is given.  Bare flags
// select the default command as well, so that "mcp-clickhouse -transport
// http" does what it says.
func normalizeArgs(args []string) []string {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return append([]string{defCmd}, args...)
	}
	return args
}

func mainUsage() {
	help.PrintUsage(os.Stderr, base.MCPClickHouse)
	base.SetExitStatus(base.SHelpRequested)
	base.Exit()
}

// invoke parses the command flags, initialises logging and tracing, and runs
// the command.
func invoke(ctx context.Context, cmd *base.Command, args []string) {
	if cmd.CustomFlags {
		args = args[1:]
	} else {
		cmd.Flag.Usage = func() { cmd.Usage() }
		cfg.SetBaseFlags(&cmd.Flag, cmd.FlagMask)
		if err := cmd.Flag.Parse(args[1:]); err != nil {
			base.SetExitStatus(base.SInvalidParameters)
			return
		}
		args = cmd.Flag.Args()
	}

	lg, err := initLog(cfg.LogFile, cfg.JsonHandler, cfg.Verbose)
	if err != nil {
		base.SetExitStatus(base.SInitializationError)
		lg.Error("failed to initialise logging", "error", err)
		return
	}
	cfg.Log = lg

	base.AtExit(initTrace(cfg.TraceFile))
	initDebug()

	if err := cmd.Run(ctx, cmd, args); err != nil {
		if base.ExitStatus() == base.SNoError {
			base.SetExitStatus(base.SApplicationError)
		}
		lg.ErrorContext(ctx, "run failed", "command", cmd.Name(), "error", err)
	}
}

// loadSecrets load secrets from the files in secrets slice.
func loadSecrets(files []string) {
	for _, f := range files {
		godotenv.Load(f)
	}
}
