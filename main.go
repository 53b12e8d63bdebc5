// Command tenantsql rewrites SQL so that it only reads and writes the rows of
// one tenant.
//
// Usage:
//
//	tenantsql [--config config.yaml] <command>
//
// Commands:
//   - rewrite: scope a single SQL text to a tenant and print the result
//   - tables: list the tables the tenant rule applies to
//   - check: validate configuration and startup wiring
//   - serve: expose the rewrite engine over HTTP
package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
