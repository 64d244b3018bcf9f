package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/threadline/internal/db"
	"github.com/persistorai/threadline/internal/db/migrations"
	"github.com/persistorai/threadline/internal/dbpool"
	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/metrics"
	"github.com/persistorai/threadline/internal/models"
)

// Compile-time check: *PostgresStore must satisfy Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is the PostgreSQL-backed Repository. It supports parallel
// series, each on its own pooled connection.
type PostgresStore struct {
	pool *dbpool.Pool
	log  *logrus.Logger
}

// NewPostgresStore creates a PostgresStore on an open pool.
func NewPostgresStore(pool *dbpool.Pool, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, log: log}
}

// Dialect returns DialectPostgres.
func (s *PostgresStore) Dialect() string { return DialectPostgres }

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := db.MigratePostgres(ctx, s.pool, s.log, migrations.FS); err != nil {
		return storageErr("migrating postgres", err)
	}

	return nil
}

// Snapshot reads every fact the scheduler needs inside one read-only transaction.
func (s *PostgresStore) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, storageErr("beginning snapshot transaction", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // read-only transaction.

	snap := &models.Snapshot{}

	rows, err := tx.Query(ctx, threadsSQL)
	if err != nil {
		return nil, storageErr("querying threads", err)
	}

	snap.Threads, err = scanThreads(rows)
	rows.Close()

	if err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, edgesSQL)
	if err != nil {
		return nil, storageErr("querying edges", err)
	}

	snap.Edges, err = scanEdges(rows)
	rows.Close()

	if err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, countsSQL)
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
func (s *PostgresStore) Speakers(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, speakersSQL)
	if err != nil {
		return nil, storageErr("querying speakers", err)
	}
	defer rows.Close()

	return scanSpeakers(rows)
}

// BeginSeries opens a read-write transaction for one series.
func (s *PostgresStore) BeginSeries(ctx context.Context) (domain.SeriesTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("beginning series transaction", err)
	}

	s.recordPoolStats()

	return &pgSeriesTx{tx: tx}, nil
}

// HealthCheck verifies database connectivity.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.HealthCheck(ctx); err != nil {
		return storageErr("postgres health check", err)
	}

	s.recordPoolStats()

	return nil
}

func (s *PostgresStore) recordPoolStats() {
	st := s.pool.Stats()

	metrics.DBConnections.WithLabelValues("max").Set(float64(st.Max))
	metrics.DBConnections.WithLabelValues("total").Set(float64(st.Total))
	metrics.DBConnections.WithLabelValues("acquired").Set(float64(st.Acquired))
	metrics.DBConnections.WithLabelValues("idle").Set(float64(st.Idle))
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgSeriesTx struct {
	tx pgx.Tx
}

func (t *pgSeriesTx) Lines(ctx context.Context, thread models.Thread) ([]models.DialogueLine, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := t.tx.Query(ctx, `
		SELECT d.address, d.speaker, d.body, d.variant_body, tl.tl_body
		FROM dialogue d
		LEFT JOIN dialogue_tl tl ON tl.script_id = d.script_id AND tl.address = d.address
		WHERE d.script_id = $1 AND d.thread = $2
		ORDER BY d.address`, int32(thread.ScriptID), thread.Name)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("querying lines of %s", thread), err)
	}
	defer rows.Close()

	return scanLines(rows, thread)
}

func (t *pgSeriesTx) UpsertTranslation(ctx context.Context, tl models.Translation) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := t.tx.Exec(ctx, `
		INSERT INTO dialogue_tl (script_id, address, tl_body, tl_variant_body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (script_id, address) DO UPDATE SET
			tl_body         = EXCLUDED.tl_body,
			tl_variant_body = EXCLUDED.tl_variant_body`,
		int32(tl.ScriptID), int64(tl.Address), tl.Body, tl.VariantBody)
	if err != nil {
		return storageErr(fmt.Sprintf("upserting translation %d:%#x", tl.ScriptID, tl.Address), err)
	}

	return nil
}

func (t *pgSeriesTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return storageErr("committing series", err)
	}

	return nil
}

func (t *pgSeriesTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return storageErr("rolling back series", err)
	}

	return nil
}
