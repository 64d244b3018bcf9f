package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRosterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Character roster commands",
	}
	cmd.AddCommand(rosterCheckCmd(a))

	return cmd
}

type rosterReport struct {
	Speakers int      `json:"speakers"`
	Unknown  []string `json:"unknown"`
}

func rosterCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every speaker label in the corpus decodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			r, err := a.loadRoster()
			if err != nil {
				return err
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // read-only command.

			speakers, err := st.Speakers(ctx)
			if err != nil {
				return err
			}

			report := rosterReport{Speakers: len(speakers), Unknown: r.Unknown(speakers)}
			if report.Unknown == nil {
				report.Unknown = []string{}
			}

			out := cmd.OutOrStdout()

			if a.format == "json" {
				if err := formatJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, label := range report.Unknown {
					fmt.Fprintf(out, "unknown speaker: %s\n", label)
				}

				fmt.Fprintf(out, "%d speakers, %d unknown\n", report.Speakers, len(report.Unknown))
			}

			if len(report.Unknown) > 0 {
				return fmt.Errorf("roster does not cover %d speaker labels", len(report.Unknown))
			}

			return nil
		},
	}
}
