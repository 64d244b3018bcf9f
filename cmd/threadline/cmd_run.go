package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/api"
	"github.com/persistorai/threadline/internal/config"
	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/service"
	"github.com/persistorai/threadline/internal/telemetry"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		dryRun   bool
		workers  int
		strategy string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Translate every pending series in dependency order",
		Long: `Build the thread dependency graph, derive the series and translate each
pending one against the completion server. Lines already translated are
reused as context and never resubmitted.

Exit status is 0 on success, 1 on a fatal error and 3 when the run
finished but at least one series failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("workers") {
				a.cfg.Run.Workers = workers
			}

			if cmd.Flags().Changed("strategy") {
				a.cfg.Run.Strategy = strategy
			}

			if err := a.cfg.Validate(); err != nil {
				return err
			}

			return a.run(cmd, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Translate but roll back every write")
	cmd.Flags().IntVar(&workers, "workers", 1, "Series translated concurrently (postgres only)")
	cmd.Flags().StringVar(&strategy, "strategy", service.StrategyShortestPath, "Scheduling strategy: shortest-path|max-leaf")

	return cmd
}

func (a *app) run(cmd *cobra.Command, dryRun bool) error {
	ctx := cmd.Context()

	shutdown, err := telemetry.Setup(ctx, a.cfg.OTel.Endpoint, config.Version, a.log)
	if err != nil {
		return err
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := shutdown(flushCtx); err != nil {
			a.log.WithError(err).Warn("flushing traces")
		}
	}()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // best-effort close on exit.

	r, err := a.loadRoster()
	if err != nil {
		return err
	}

	client := a.completionClient()
	runner := service.NewRunner(st, a.engine(client, r), a.log)

	if a.cfg.Status.Addr != "" {
		srvCtx, stopServer := context.WithCancel(ctx)
		done := make(chan struct{})

		go func() {
			defer close(done)

			router := api.NewRouter(srvCtx, &api.RouterDeps{
				Log:        a.log,
				Store:      st,
				Completion: client,
				Progress:   runner.Progress(),
				Version:    config.Version,
			})

			if err := api.Serve(srvCtx, a.cfg.Status.Addr, router, a.log); err != nil {
				a.log.WithError(err).Error("status server stopped")
			}
		}()

		defer func() {
			stopServer()
			<-done
		}()
	}

	summary, err := runner.Run(ctx, service.RunOptions{
		Strategy: a.cfg.Run.Strategy,
		Workers:  a.cfg.Run.Workers,
		DryRun:   dryRun,
	})
	if summary != nil {
		if perr := a.printSummary(cmd, summary); perr != nil && err == nil {
			err = perr
		}
	}

	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errSeriesFailed, summary.Failed, summary.Leaves)
	}

	return nil
}

func (a *app) printSummary(cmd *cobra.Command, s *models.RunSummary) error {
	out := cmd.OutOrStdout()

	if a.format == "json" {
		return formatJSON(out, s)
	}

	formatTable(out, []string{"RUN", "LEAVES", "TRANSLATED", "SKIPPED", "FAILED", "LINES", "REUSED"}, [][]string{{
		s.RunID,
		strconv.Itoa(s.Leaves),
		strconv.Itoa(s.Translated),
		strconv.Itoa(s.Skipped),
		strconv.Itoa(s.Failed),
		strconv.Itoa(s.LinesTranslated),
		strconv.Itoa(s.LinesReused),
	}})

	return nil
}
