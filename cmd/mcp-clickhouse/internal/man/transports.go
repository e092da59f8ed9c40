package man

import (
	_ "embed"

	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/golang/base"
)

//go:embed assets/transports.md
var transportsMD string

var Transports = &base.Command{
	UsageLine: "mcp-clickhouse transports",
	Short:     "how to choose between stdio, http and sse",
	Long:      transportsMD,
}
