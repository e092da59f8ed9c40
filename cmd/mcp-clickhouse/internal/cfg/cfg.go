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

// Package cfg contains common configuration variables.
package cfg

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/rusq/osenv/v2"

	"github.com/rusq/mcp-clickhouse/internal/chdb"
)

var (
	TraceFile   string
	LogFile     string
	JsonHandler bool
	Verbose     bool

	// Output is the location (a directory or a zip file) where the
	// save_query_results tool writes files.  Empty disables the tool.
	Output string
	// JournalPath is the location of the query journal database.  Empty
	// disables journaling.
	JournalPath string

	// ClickHouse holds the connection parameters, populated from flags and
	// environment by SetBaseFlags.
	ClickHouse = chdb.DefaultConfig()
)

// Log is the package-wide logger.  It is replaced in main once the log flags
// are parsed.
var Log = slog.Default()

// SetDebugLevel enables debug output of the default logger.
func SetDebugLevel() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

type FlagMask int

const (
	DefaultFlags        FlagMask = 0
	OmitClickHouseFlags FlagMask = 1 << iota
	OmitOutputFlag
	OmitJournalFlag

	OmitAll = OmitClickHouseFlags |
		OmitOutputFlag |
		OmitJournalFlag
)

// SetBaseFlags sets base flags
func SetBaseFlags(fs *flag.FlagSet, mask FlagMask) {
	fs.StringVar(&TraceFile, "trace", os.Getenv("TRACE_FILE"), "trace `filename`")
	fs.StringVar(&LogFile, "log", os.Getenv("LOG_FILE"), "log `file`, if not specified, messages are printed to STDERR")
	fs.BoolVar(&JsonHandler, "log-json", osenv.Value("LOG_JSON", false), "log in JSON format")
	fs.BoolVar(&Verbose, "v", osenv.Value("DEBUG", false), "verbose messages")

	if mask&OmitClickHouseFlags == 0 {
		fs.StringVar(&ClickHouse.Host, "host", osenv.Value("CLICKHOUSE_HOST", ClickHouse.Host), "ClickHouse server `hostname` or IP address")
		fs.IntVar(&ClickHouse.Port, "port", osenv.Value("CLICKHOUSE_PORT", ClickHouse.Port), "ClickHouse server `port`, 0 selects the protocol default\n(9000 native, 8123 http, 9440/8443 with TLS)")
		fs.StringVar(&ClickHouse.Database, "database", osenv.Value("CLICKHOUSE_DATABASE", ClickHouse.Database), "`database` to connect to (empty for the server default)")
		fs.StringVar(&ClickHouse.Username, "user", osenv.Value("CLICKHOUSE_USER", ClickHouse.Username), "ClickHouse `username`")
		fs.StringVar(&ClickHouse.Password, "password", osenv.Secret("CLICKHOUSE_PASSWORD", ""), "ClickHouse `password`\n(environment: CLICKHOUSE_PASSWORD)")
		fs.Var(&ClickHouse.Protocol, "protocol", "wire `protocol`, \"native\" or \"http\"")
		fs.BoolVar(&ClickHouse.Secure, "secure", osenv.Value("CLICKHOUSE_SECURE", ClickHouse.Secure), "connect over TLS")
		fs.BoolVar(&ClickHouse.Verify, "verify", osenv.Value("CLICKHOUSE_VERIFY", ClickHouse.Verify), "verify the server TLS certificate (to disable,\nspecify: -verify=false)")
		fs.StringVar(&ClickHouse.CACert, "ca-cert", osenv.Value("CLICKHOUSE_CA_CERT", ""), "`path` to the CA certificate bundle in PEM format")
		fs.StringVar(&ClickHouse.ClientCert, "client-cert", osenv.Value("CLICKHOUSE_CLIENT_CERT", ""), "`path` to the client certificate in PEM format (mTLS)")
		fs.StringVar(&ClickHouse.ClientKey, "client-key", osenv.Value("CLICKHOUSE_CLIENT_KEY", ""), "`path` to the client certificate key in PEM format (mTLS)")
		fs.DurationVar(&ClickHouse.ConnectTimeout, "connect-timeout", envDuration("CLICKHOUSE_CONNECT_TIMEOUT", ClickHouse.ConnectTimeout), "connection `timeout`")
		fs.DurationVar(&ClickHouse.MaxExecutionTime, "max-execution-time", envDuration("CLICKHOUSE_MAX_EXECUTION_TIME", ClickHouse.MaxExecutionTime), "server-side query execution `limit`, 0 leaves the server default")
		fs.BoolVar(&ClickHouse.ReadOnly, "readonly", osenv.Value("CLICKHOUSE_READONLY", ClickHouse.ReadOnly), "run queries with readonly=1 (to allow writes,\nspecify: -readonly=false)")
		fs.IntVar(&ClickHouse.RatePerMin, "rate-limit", osenv.Value("CLICKHOUSE_RATE_LIMIT", ClickHouse.RatePerMin), "maximum `queries` per minute, 0 is unlimited")
	}
	if mask&OmitOutputFlag == 0 {
		fs.StringVar(&Output, "o", osenv.Value("MCP_OUTPUT", ""), "`location` (directory or zip file) for files written by the\nsave_query_results tool, empty disables the tool")
	}
	if mask&OmitJournalFlag == 0 {
		fs.StringVar(&JournalPath, "journal", osenv.Value("MCP_JOURNAL", ""), "query journal `file`, empty disables journaling")
	}
	setDevFlags(fs, mask)
}

// envDuration reads a duration from the environment variable key.  A plain
// number is taken to mean seconds, otherwise the value must be in the Go
// duration syntax, i.e. "1m30s".
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	slog.Warn("invalid duration value, using default", "variable", key, "value", v, "default", def)
	return def
}
