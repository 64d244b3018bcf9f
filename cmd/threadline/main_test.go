package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/store"
)

// executeArgs runs a fresh root command with args and returns its stdout.
func executeArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out strings.Builder

	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&strings.Builder{})
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())

	return out.String(), err
}

// useCorpus points THREADLINE_DATABASE_URL at a fresh SQLite file seeded with stmts.
func useCorpus(t *testing.T, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "corpus.db")
	t.Setenv("THREADLINE_CONFIG", "")
	t.Setenv("THREADLINE_DATABASE_URL", "sqlite://"+path)
	t.Setenv("THREADLINE_LOG_LEVEL", "error")

	ctx := context.Background()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s, err := store.OpenSQLite(ctx, path, log)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close() //nolint:errcheck // test setup.

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, stmt := range stmts {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"fatal", errors.New("boom"), exitFatal},
		{"storage", fmt.Errorf("series a: %w", models.ErrStorage), exitFatal},
		{"failed series", fmt.Errorf("%w: 1 of 3", errSeriesFailed), exitSeriesFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantErr   bool
		wantLevel logrus.Level
		wantJSON  bool
	}{
		{name: "text info", level: "info", format: "text", wantLevel: logrus.InfoLevel},
		{name: "json debug", level: "debug", format: "json", wantLevel: logrus.DebugLevel, wantJSON: true},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := newLogger(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newLogger() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				return
			}

			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}

			if _, isJSON := log.Formatter.(*logrus.JSONFormatter); isJSON != tt.wantJSON {
				t.Errorf("JSON formatter = %v, want %v", isJSON, tt.wantJSON)
			}
		})
	}
}

func TestCommandArgs(t *testing.T) {
	useCorpus(t)

	tests := []struct {
		name string
		args []string
	}{
		{"run takes no args", []string{"run", "extra"}},
		{"plan takes no args", []string{"plan", "extra"}},
		{"import needs a file", []string{"import"}},
		{"bad format", []string{"plan", "--format", "yaml"}},
		{"unknown strategy", []string{"run", "--strategy", "random"}},
		{"workers need postgres", []string{"run", "--workers", "4"}},
		{"import needs postgres", []string{"import", "other.db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := executeArgs(t, tt.args...); err == nil {
				t.Errorf("executeArgs(%v) succeeded, want error", tt.args)
			}
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	var got []string
	for _, c := range root.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}

		got = append(got, c.Name())
	}

	want := []string{"doctor", "import", "migrate", "plan", "roster", "run"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("subcommands mismatch (-want +got):\n%s", diff)
	}

	var check *cobra.Command
	for _, c := range root.Commands() {
		if c.Name() == "roster" {
			check, _, _ = c.Find([]string{"check"})
		}
	}

	if check == nil || check.Name() != "check" {
		t.Error("roster check subcommand missing")
	}
}

func TestMigrateCommand(t *testing.T) {
	useCorpus(t)

	out, err := executeArgs(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if !strings.HasPrefix(out, "sqlite schema at version ") {
		t.Errorf("migrate output = %q", out)
	}
}

var planCorpus = []string{
	`INSERT INTO dialogue (script_id, address, thread, speaker, body) VALUES
		(1, 1, 'a', '少女', 'あ'), (1, 2, 'b', '少女', 'い'), (1, 3, 'c', NULL, 'う')`,
	`INSERT INTO thread_graph (tail_script_id, tail_thread, head_script_id, head_thread) VALUES
		(1, 'a', 1, 'b')`,
	`INSERT INTO dialogue_tl (script_id, address, tl_body) VALUES (1, 3, 'u')`,
}

func TestPlanCommand_JSON(t *testing.T) {
	useCorpus(t, planCorpus...)

	out, err := executeArgs(t, "plan", "--format", "json")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}

	a := models.Thread{ScriptID: 1, Name: "a"}
	b := models.Thread{ScriptID: 1, Name: "b"}
	c := models.Thread{ScriptID: 1, Name: "c"}

	want := []models.PlannedSeries{
		{Leaf: b, Threads: models.Series{a, b}, Remaining: 2},
		{Leaf: c, Threads: models.Series{c}, Remaining: 0, Skip: true},
	}

	if diff := cmp.Diff(want, plan.Series); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanCommand_PendingTable(t *testing.T) {
	useCorpus(t, planCorpus...)

	out, err := executeArgs(t, "plan", "--pending")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	if !strings.Contains(out, "1:a -> 1:b") {
		t.Errorf("plan output missing pending chain:\n%s", out)
	}

	if strings.Contains(out, "done") {
		t.Errorf("plan --pending listed a done series:\n%s", out)
	}
}

func TestRosterCheckCommand(t *testing.T) {
	t.Run("all known", func(t *testing.T) {
		useCorpus(t, planCorpus...)

		out, err := executeArgs(t, "roster", "check")
		if err != nil {
			t.Fatalf("roster check: %v\n%s", err, out)
		}

		if !strings.Contains(out, "1 speakers, 0 unknown") {
			t.Errorf("roster check output = %q", out)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		useCorpus(t, `INSERT INTO dialogue (script_id, address, thread, speaker, body) VALUES
			(1, 1, 'a', '謎の男', 'だれだ')`)

		out, err := executeArgs(t, "roster", "check", "--format", "json")
		if err == nil {
			t.Fatal("roster check succeeded, want error")
		}

		var report rosterReport
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}

		if diff := cmp.Diff(rosterReport{Speakers: 1, Unknown: []string{"謎の男"}}, report); diff != "" {
			t.Errorf("report mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDoctor_ReportsConfigError(t *testing.T) {
	t.Setenv("THREADLINE_CONFIG", "")
	t.Setenv("THREADLINE_DATABASE_URL", "")

	out, err := executeArgs(t, "doctor")
	if err == nil {
		t.Fatal("doctor succeeded without a database URL")
	}

	if !strings.Contains(out, "❌ Config") {
		t.Errorf("doctor output missing config failure:\n%s", out)
	}
}
