// Package main provides the remotesql CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/remotesql/internal/cli"

	// Register the target database adapters.
	_ "github.com/leapstack-labs/remotesql/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/remotesql/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/remotesql/pkg/adapters/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
