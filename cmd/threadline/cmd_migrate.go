package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Create the translation table, and the corpus tables when they are absent,
by applying every embedded migration that has not run yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // nothing left to flush.

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", st.Dialect(), db.SchemaVersion())

			return nil
		},
	}
}
