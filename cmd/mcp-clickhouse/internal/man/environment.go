package man

import (
	_ "embed"

	"github.com/rusq/mcp-clickhouse/cmd/mcp-clickhouse/internal/golang/base"
)

//go:embed assets/environment.md
var environmentMD string

var Environment = &base.Command{
	UsageLine: "mcp-clickhouse environment",
	Short:     "environment variables reference",
	Long:      environmentMD,
}
