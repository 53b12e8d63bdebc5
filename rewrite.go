package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/tenantsql/pkg/sql"
)

func newRewriteCmd(c *cli) *cobra.Command {
	var (
		tenantID    int64
		kind        string
		statementID string
		token       string
	)

	cmd := &cobra.Command{
		Use:   "rewrite [SQL]",
		Short: "Scope a SQL statement to a tenant",
		Long: `Rewrite a SELECT or INSERT so that it only touches rows of one tenant.

The SQL is read from the arguments, or from stdin when none are given. The
tenant comes from --tenant, or from the tid claim of --token.`,
		Example: `  # Scope a query to tenant 42
  tenantsql rewrite --tenant 42 "SELECT * FROM orders"

  # Scope an insert read from a file
  tenantsql rewrite --tenant 42 --kind insert < insert.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if query == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				query = string(data)
			}

			stmtKind := sql.ParseKind(kind)
			if stmtKind != sql.KindSelect && stmtKind != sql.KindInsert {
				return fmt.Errorf("unsupported --kind %q (want select or insert)", kind)
			}

			ctx := cmd.Context()
			if token != "" {
				var err error
				if ctx, err = identityFromToken(ctx, c.cfg, token); err != nil {
					return err
				}
			}

			var explicit *int64
			if cmd.Flags().Changed("tenant") {
				explicit = &tenantID
			}

			eng, err := buildEngine(ctx, c.cfg, defaultProviders(explicit), c.logger)
			if err != nil {
				return err
			}

			out, err := eng.Rewrite(ctx, statementID, query, stmtKind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(out.SQL))
			if out.PassThrough() {
				fmt.Fprintln(cmd.ErrOrStderr(), "-- statement passed through unmodified")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&tenantID, "tenant", 0, "tenant id to scope to")
	f.StringVar(&kind, "kind", "select", "statement kind: select or insert")
	f.StringVar(&statementID, "id", "cli", "statement id used for exclusion lookup")
	f.StringVar(&token, "token", "", "JWT whose tid claim supplies the tenant")

	return cmd
}
