package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/db"
)

const doctorTimeout = 5 * time.Second

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, database, roster and completion server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.doctor(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func (a *app) doctor(ctx context.Context, out io.Writer) error {
	fmt.Fprintln(out, "\nThreadline Doctor")
	fmt.Fprintln(out, "=================")

	results := a.doctorChecks(ctx)

	fmt.Fprintln(out)

	allPassed := true

	for _, r := range results {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
			allPassed = false
		}

		if r.Detail != "" {
			fmt.Fprintf(out, "%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Fprintf(out, "%s %s\n", mark, r.Name)
		}

		if !r.Passed && r.Hint != "" {
			fmt.Fprintf(out, "   Hint: %s\n", r.Hint)
		}
	}

	fmt.Fprintln(out)

	if !allPassed {
		fmt.Fprintln(out, "❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Fprintln(out, "✅ All checks passed!")

	return nil
}

// doctorChecks runs every check it can; later checks are skipped when the
// config they depend on did not load.
func (a *app) doctorChecks(ctx context.Context) []checkResult {
	if err := a.load(); err != nil {
		return []checkResult{{
			Name: "Config", Passed: false,
			Detail: err.Error(),
			Hint:   "Check --config, THREADLINE_CONFIG and THREADLINE_* variables",
		}}
	}

	detail := "defaults and environment"
	if a.configPath != "" {
		detail = a.configPath
	}

	results := []checkResult{{Name: "Config", Passed: true, Detail: detail}}

	checkCtx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	var speakers []string

	st, err := a.openStore(checkCtx)
	if err != nil {
		results = append(results, checkResult{
			Name: "Database", Passed: false,
			Detail: err.Error(),
			Hint:   "Check database.url and that the database is reachable",
		})
	} else {
		defer st.Close() //nolint:errcheck // diagnostics only.

		results = append(results, checkResult{
			Name: "Database", Passed: true,
			Detail: fmt.Sprintf("%s, schema v%d", st.Dialect(), db.SchemaVersion()),
		})

		speakers, err = st.Speakers(checkCtx)
		if err != nil {
			results = append(results, checkResult{Name: "Speakers", Passed: false, Detail: err.Error()})
		}
	}

	r, err := a.loadRoster()
	switch {
	case err != nil:
		results = append(results, checkResult{
			Name: "Roster", Passed: false,
			Detail: err.Error(),
			Hint:   "Fix roster.path or unset it to use the built-in roster",
		})
	case len(r.Unknown(speakers)) > 0:
		results = append(results, checkResult{
			Name: "Roster", Passed: false,
			Detail: fmt.Sprintf("%d of %d speaker labels unknown", len(r.Unknown(speakers)), len(speakers)),
			Hint:   "Run: threadline roster check",
		})
	default:
		results = append(results, checkResult{
			Name: "Roster", Passed: true,
			Detail: fmt.Sprintf("%d speaker labels decode", len(speakers)),
		})
	}

	if err := a.completionClient().Health(checkCtx); err != nil {
		results = append(results, checkResult{
			Name: "Completion server", Passed: false,
			Detail: a.cfg.Completion.URL,
			Hint:   fmt.Sprintf("Is the completion server running? Error: %v", err),
		})
	} else {
		results = append(results, checkResult{Name: "Completion server", Passed: true, Detail: a.cfg.Completion.URL})
	}

	return results
}
