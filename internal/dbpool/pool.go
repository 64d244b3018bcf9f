// Package dbpool manages the PostgreSQL connection pool behind the corpus store.
package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultMaxConns is used when the caller passes a non-positive limit.
const DefaultMaxConns = 8

// seriesStatementTimeout bounds every statement on a pooled connection.
const seriesStatementTimeout = "30s"

// Pool wraps a pgxpool.Pool. One connection serves snapshot reads and one is
// held per in-flight series transaction.
type Pool struct {
	pool *pgxpool.Pool
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Max      int32
	Total    int32
	Acquired int32
	Idle     int32
}

// NewPool connects to databaseURL and verifies the connection.
func NewPool(ctx context.Context, databaseURL string, maxConns int) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	cfg.ConnConfig.RuntimeParams["statement_timeout"] = seriesStatementTimeout
	cfg.ConnConfig.RuntimeParams["application_name"] = "threadline"

	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	cfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config validation.
	cfg.MinConns = 1
	// Series transactions stay open across completion calls.
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Exec runs a statement that returns no rows.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

// Query runs a statement that returns rows.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// QueryRow runs a statement that returns at most one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// Begin starts a read-write transaction.
func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.pool.Begin(ctx)
}

// BeginTx starts a transaction with the given options.
func (p *Pool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) { //nolint:gocritic // matches pgxpool.Pool.
	return p.pool.BeginTx(ctx, opts)
}

// HealthCheck acquires a connection and pings the server.
func (p *Pool) HealthCheck(ctx context.Context) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	return nil
}

// Stats reports current pool usage.
func (p *Pool) Stats() Stats {
	s := p.pool.Stat()

	return Stats{
		Max:      s.MaxConns(),
		Total:    s.TotalConns(),
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
	}
}

// ConnString returns the connection string the pool was created with.
func (p *Pool) ConnString() string {
	return p.pool.Config().ConnString()
}

// Close closes every connection in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}
