package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/tenantsql/pkg/config"
	"github.com/ekaya-inc/tenantsql/pkg/logging"
)

// cli holds state shared by subcommands, populated in PersistentPreRunE.
type cli struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "tenantsql",
		Short: "Tenant-scoping SQL rewriter",
		Long: `tenantsql - Tenant-scoping SQL rewriter

tenantsql rewrites SELECT and INSERT statements so that every access to a
tenant table is constrained to the tenant of the current caller.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./config.yaml if present, else environment)")

	root.AddCommand(newRewriteCmd(c))
	root.AddCommand(newTablesCmd(c))
	root.AddCommand(newCheckCmd(c))
	root.AddCommand(newServeCmd(c))

	return root
}

func (c *cli) load() error {
	var err error
	if c.cfgFile != "" {
		c.cfg, err = config.Load(c.cfgFile, Version)
	} else {
		c.cfg, err = config.LoadDefault(Version)
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	c.logger, err = logging.NewLogger(c.cfg.Log.Level, c.cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	return nil
}
