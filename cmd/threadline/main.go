package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/config"
)

// Exit codes.
const (
	exitOK           = 0
	exitFatal        = 1
	exitSeriesFailed = 3
)

// errSeriesFailed marks a run that completed with at least one failed series.
var errSeriesFailed = errors.New("run completed with failed series")

// app holds state shared by every subcommand once the root pre-run has resolved it.
type app struct {
	configPath string
	format     string

	cfg *config.Config
	log *logrus.Logger
}

func versionString() string {
	return fmt.Sprintf("threadline version %s", config.Version)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "threadline",
		Short:   "Threadline: dependency-ordered dialogue translation against a local LLM",
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "TOML config file (env: THREADLINE_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&a.format, "format", "table", "Output format: json|table")

	doctorCmd := newDoctorCmd(a)
	doctorCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return nil } // doctor reports config errors itself

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newPlanCmd(a))
	rootCmd.AddCommand(newMigrateCmd(a))
	rootCmd.AddCommand(newRosterCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(doctorCmd)

	return rootCmd
}

// load resolves the config file path, loads configuration and builds the logger.
func (a *app) load() error {
	if a.configPath == "" {
		a.configPath = os.Getenv("THREADLINE_CONFIG")
	}

	switch a.format {
	case "json", "table":
	default:
		return fmt.Errorf("--format must be 'json' or 'table', got %q", a.format)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log

	return nil
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errSeriesFailed):
		return exitSeriesFailed
	default:
		return exitFatal
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)

	stop()

	if err != nil && !errors.Is(err, errSeriesFailed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	os.Exit(exitCode(err))
}
