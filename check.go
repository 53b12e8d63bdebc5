package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and startup wiring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context(), c.cfg, defaultProviders(nil), c.logger)
			if err != nil {
				return err
			}

			rule := eng.Rule()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Version:        %s\n", c.cfg.Version)
			fmt.Fprintf(w, "Scan mode:      %s\n", rule.Mode())
			fmt.Fprintf(w, "Tenant column:  %s\n", rule.TenantColumn())
			fmt.Fprintf(w, "Target columns: %s\n", strings.Join(rule.TargetColumns(), ", "))
			fmt.Fprintf(w, "Target tables:  %d\n", len(rule.TargetTables()))
			fmt.Fprintf(w, "Filter suffix:  %s\n", rule.FilterSuffix())
			if len(rule.TargetTables()) == 0 {
				fmt.Fprintln(w, "\nNo target tables: statements will pass through unscoped.")
			}
			return nil
		},
	}
}
