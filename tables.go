package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTablesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tenant-scoped tables",
		Long: `List the tables the tenant rule applies to.

In AUTO mode the configured database is scanned for tables carrying one of the
target columns. In ASSIGN mode the configured table list is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), c.cfg, defaultProviders(nil), c.logger)
			if err != nil {
				return err
			}
			for _, t := range eng.Rule().TargetTables() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}
