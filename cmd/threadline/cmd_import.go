package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/store"
)

func newImportCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <sqlite-file>",
		Short: "Copy a SQLite corpus into the configured PostgreSQL database",
		Long: `Copy dialogue lines, thread dependencies and existing translations from a
SQLite corpus into PostgreSQL so runs can use several workers.

Rows already present in the target are kept. Dependencies are copied only
when the target has none.

Flags:
  --dry-run   Read and count the source rows without writing`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.IsPostgres() {
				return fmt.Errorf("import needs a postgres database.url")
			}

			ctx := cmd.Context()

			src, err := store.OpenSQLite(ctx, args[0], a.log)
			if err != nil {
				return err
			}
			defer src.Close() //nolint:errcheck // read-only source.

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // import commits or rolls back itself.

			dst, ok := st.(*store.PostgresStore)
			if !ok {
				return fmt.Errorf("import needs a postgres database.url")
			}

			report, err := store.ImportCorpus(ctx, src, dst, dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if a.format == "json" {
				return formatJSON(out, report)
			}

			edges := strconv.Itoa(report.EdgesInserted)
			if report.EdgesSkipped {
				edges = "skipped"
			}

			formatTable(out, []string{"TABLE", "READ", "INSERTED"}, [][]string{
				{"dialogue", strconv.Itoa(report.LinesRead), strconv.Itoa(report.LinesInserted)},
				{"thread_graph", strconv.Itoa(report.EdgesRead), edges},
				{"dialogue_tl", strconv.Itoa(report.TranslationsRead), strconv.Itoa(report.TranslationsInserted)},
			})

			if report.DryRun {
				fmt.Fprintln(out, "\ndry run: nothing was written")
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count source rows without writing")

	return cmd
}
