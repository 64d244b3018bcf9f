package db_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/persistorai/threadline/internal/db"
	"github.com/persistorai/threadline/internal/db/migrations"
)

func TestRunMigrations_SQLite(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	defer sqlDB.Close()

	sqlDB.SetMaxOpenConns(1)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	ctx := context.Background()

	for range 2 {
		if err := db.RunMigrations(ctx, sqlDB, goose.DialectSQLite3, log, migrations.FS); err != nil {
			t.Fatalf("RunMigrations() error: %v", err)
		}
	}

	for _, table := range []string{"dialogue", "thread_graph", "dialogue_tl"} {
		var name string

		err := sqlDB.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	if got := db.SchemaVersion(); got != 2 {
		t.Errorf("SchemaVersion() = %d, want 2", got)
	}
}
