package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/service"
)

func newPlanCmd(a *app) *cobra.Command {
	var (
		strategy string
		pending  bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the series a run would translate, without translating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("strategy") {
				strategy = a.cfg.Run.Strategy
			}

			ctx := cmd.Context()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // read-only command.

			plan, err := service.NewRunner(st, nil, a.log).Plan(ctx, strategy)
			if err != nil {
				return err
			}

			if pending {
				plan.Series = pendingOnly(plan.Series)
			}

			return a.printPlan(cmd, plan)
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", service.StrategyShortestPath, "Scheduling strategy: shortest-path|max-leaf")
	cmd.Flags().BoolVar(&pending, "pending", false, "Only list series with lines left to translate")

	return cmd
}

func pendingOnly(series []models.PlannedSeries) []models.PlannedSeries {
	out := make([]models.PlannedSeries, 0, len(series))

	for _, s := range series {
		if !s.Skip {
			out = append(out, s)
		}
	}

	return out
}

func (a *app) printPlan(cmd *cobra.Command, plan *models.Plan) error {
	out := cmd.OutOrStdout()

	if a.format == "json" {
		return formatJSON(out, plan)
	}

	rows := make([][]string, 0, len(plan.Series))
	for i, s := range plan.Series {
		status := "pending"
		if s.Skip {
			status = "done"
		}

		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			s.Leaf.String(),
			strconv.Itoa(len(s.Threads)),
			strconv.Itoa(s.Remaining),
			status,
			s.Threads.Chain(),
		})
	}

	formatTable(out, []string{"#", "LEAF", "THREADS", "REMAINING", "STATUS", "CHAIN"}, rows)
	fmt.Fprintf(out, "\n%s: %d nodes, %d edges, %d series, %d pending\n",
		plan.Strategy, plan.Nodes, plan.Edges, len(plan.Series), plan.Pending())

	return nil
}
