package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // register the sqlite database/sql driver

	"github.com/persistorai/threadline/internal/db"
	"github.com/persistorai/threadline/internal/db/migrations"
	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/models"
)

// Compile-time check: *SQLiteStore must satisfy Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed Repository. SQLite serializes writers,
// so the handle is limited to one connection and series run one at a time.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *logrus.Logger
}

// OpenSQLite opens the corpus database at path. ":memory:" opens a private
// in-memory database.
func OpenSQLite(ctx context.Context, path string, log *logrus.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("opening sqlite", err)
	}

	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, storageErr("pinging sqlite", err)
	}

	return &SQLiteStore{db: sqlDB, path: path, log: log}, nil
}

// Dialect returns DialectSQLite.
func (s *SQLiteStore) Dialect() string { return DialectSQLite }

// DB exposes the underlying handle for seeding and import.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := db.RunMigrations(ctx, s.db, goose.DialectSQLite3, s.log, migrations.FS); err != nil {
		return storageErr("migrating sqlite", err)
	}

	return nil
}

// Snapshot reads every fact the scheduler needs inside one transaction.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("beginning snapshot transaction", err)
	}

	defer tx.Rollback() //nolint:errcheck // read-only transaction.

	snap := &models.Snapshot{}

	rows, err := tx.QueryContext(ctx, threadsSQL)
	if err != nil {
		return nil, storageErr("querying threads", err)
	}

	snap.Threads, err = scanThreads(rows)
	rows.Close()

	if err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, edgesSQL)
	if err != nil {
		return nil, storageErr("querying edges", err)
	}

	snap.Edges, err = scanEdges(rows)
	rows.Close()

	if err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, countsSQL)
	if err != nil {
		return nil, storageErr("querying line counts", err)
	}

	err = scanCounts(rows, snap)
	rows.Close()

	if err != nil {
		return nil, err
	}

	return snap, nil
}

// Speakers returns every distinct speaker label in the corpus.
func (s *SQLiteStore) Speakers(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, speakersSQL)
	if err != nil {
		return nil, storageErr("querying speakers", err)
	}
	defer rows.Close()

	return scanSpeakers(rows)
}

// BeginSeries opens a write transaction for one series. database/sql rolls a
// transaction back when its context is canceled, so the transaction is
// detached from ctx and only ever ends through Commit or Rollback.
func (s *SQLiteStore) BeginSeries(ctx context.Context) (domain.SeriesTx, error) {
	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, storageErr("beginning series transaction", err)
	}

	return &sqliteSeriesTx{tx: tx}, nil
}

// HealthCheck verifies the database file is readable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return storageErr("sqlite health check", err)
	}

	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageErr("closing sqlite", err)
	}

	return nil
}

type sqliteSeriesTx struct {
	tx *sql.Tx
}

func (t *sqliteSeriesTx) Lines(ctx context.Context, thread models.Thread) ([]models.DialogueLine, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := t.tx.QueryContext(ctx, `
		SELECT d.address, d.speaker, d.body, d.variant_body, tl.tl_body
		FROM dialogue d
		LEFT JOIN dialogue_tl tl ON tl.script_id = d.script_id AND tl.address = d.address
		WHERE d.script_id = ? AND d.thread = ?
		ORDER BY d.address`, int64(thread.ScriptID), thread.Name)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying lines of %s", thread), err)
	}
	defer rows.Close()

	return scanLines(rows, thread)
}

func (t *sqliteSeriesTx) UpsertTranslation(ctx context.Context, tl models.Translation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO dialogue_tl (script_id, address, tl_body, tl_variant_body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (script_id, address) DO UPDATE SET
			tl_body         = excluded.tl_body,
			tl_variant_body = excluded.tl_variant_body`,
		int64(tl.ScriptID), int64(tl.Address), tl.Body, tl.VariantBody)
	if err != nil {
		return storageErr(fmt.Sprintf("upserting translation %d:%#x", tl.ScriptID, tl.Address), err)
	}

	return nil
}

func (t *sqliteSeriesTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return storageErr("committing series", err)
	}

	return nil
}

func (t *sqliteSeriesTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		return storageErr("rolling back series", err)
	}

	return nil
}
