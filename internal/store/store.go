// Package store provides the relational stores holding the dialogue corpus,
// the thread dependency graph and the translations.
//
// PostgresStore (pgx) and SQLiteStore (modernc) run the same schema and
// expose the same domain.Repository surface. Every failure they return
// wraps models.ErrStorage.
package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/threadline/internal/dbpool"
	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/models"
)

const defaultQueryTimeout = 30 * time.Second

// Dialect names.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Store is a Repository that can also migrate its own schema.
type Store interface {
	domain.Repository
	Migrate(ctx context.Context) error
	Dialect() string
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrStorage, op, err)
}

// toThread converts database integers into a Thread, rejecting out-of-range script IDs.
func toThread(scriptID int64, name string) (models.Thread, error) {
	if scriptID < 0 || scriptID > math.MaxUint16 {
		return models.Thread{}, fmt.Errorf("%w: script id %d out of range", models.ErrDataIntegrity, scriptID)
	}

	return models.Thread{ScriptID: uint16(scriptID), Name: name}, nil
}

func toAddress(addr int64) (uint32, error) {
	if addr < 0 || addr > math.MaxUint32 {
		return 0, fmt.Errorf("%w: address %d out of range", models.ErrDataIntegrity, addr)
	}

	return uint32(addr), nil
}

// DialectOf returns the store dialect selected by a database URL.
func DialectOf(databaseURL string) (string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(databaseURL, "sqlite://"), strings.HasPrefix(databaseURL, "file:"):
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme in %q", redactURL(databaseURL))
	}
}

// sqlitePath extracts the file path from a sqlite:// or file: URL.
func sqlitePath(databaseURL string) string {
	if p, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		return p
	}

	return databaseURL
}

func redactURL(u string) string {
	if i := strings.Index(u, "@"); i >= 0 {
		if j := strings.Index(u, "://"); j >= 0 && j < i {
			return u[:j+3] + "***" + u[i:]
		}
	}

	return u
}

// Open connects to the store named by databaseURL.
func Open(ctx context.Context, databaseURL string, maxConns int, log *logrus.Logger) (Store, error) {
	dialect, err := DialectOf(databaseURL)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		return OpenSQLite(ctx, sqlitePath(databaseURL), log)
	}

	pool, err := dbpool.NewPool(ctx, databaseURL, maxConns)
	if err != nil {
		return nil, storageErr("connecting to postgres", err)
	}

	return NewPostgresStore(pool, log), nil
}

// Snapshot queries shared by both dialects. The edge query has no GROUP BY so
// duplicate dependencies survive to the graph builder.
const (
	threadsSQL = `
		SELECT tail_script_id, tail_thread FROM thread_graph
		UNION SELECT head_script_id, head_thread FROM thread_graph
		UNION SELECT script_id, thread FROM dialogue`

	edgesSQL = `
		SELECT tail_script_id, tail_thread, head_script_id, head_thread
		FROM thread_graph
		ORDER BY tail_script_id, tail_thread, head_script_id, head_thread`

	countsSQL = `
		SELECT d.script_id, d.thread, COUNT(*), COUNT(*) - COUNT(tl.tl_body)
		FROM dialogue d
		LEFT JOIN dialogue_tl tl ON tl.script_id = d.script_id AND tl.address = d.address
		GROUP BY d.script_id, d.thread`

	speakersSQL = `
		SELECT DISTINCT speaker FROM dialogue
		WHERE speaker IS NOT NULL
		ORDER BY speaker`
)

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanThreads(rows rowScanner) ([]models.Thread, error) {
	var out []models.Thread

	for rows.Next() {
		var (
			id   int64
			name string
		)

		if err := rows.Scan(&id, &name); err != nil {
			return nil, storageErr("scanning thread", err)
		}

		t, err := toThread(id, name)
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating threads", err)
	}

	return out, nil
}

func scanEdges(rows rowScanner) ([]models.Edge, error) {
	var out []models.Edge

	for rows.Next() {
		var (
			tailID, headID     int64
			tailName, headName string
		)

		if err := rows.Scan(&tailID, &tailName, &headID, &headName); err != nil {
			return nil, storageErr("scanning edge", err)
		}

		tail, err := toThread(tailID, tailName)
		if err != nil {
			return nil, err
		}

		head, err := toThread(headID, headName)
		if err != nil {
			return nil, err
		}

		out = append(out, models.Edge{Tail: tail, Head: head})
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating edges", err)
	}

	return out, nil
}

func scanCounts(rows rowScanner, snap *models.Snapshot) error {
	snap.LineCounts = make(map[models.Thread]int)
	snap.Remaining = make(map[models.Thread]int)

	for rows.Next() {
		var (
			id, total, remaining int64
			name                 string
		)

		if err := rows.Scan(&id, &name, &total, &remaining); err != nil {
			return storageErr("scanning line counts", err)
		}

		t, err := toThread(id, name)
		if err != nil {
			return err
		}

		snap.LineCounts[t] = int(total)
		if remaining > 0 {
			snap.Remaining[t] = int(remaining)
		}
	}

	if err := rows.Err(); err != nil {
		return storageErr("iterating line counts", err)
	}

	return nil
}

func scanSpeakers(rows rowScanner) ([]string, error) {
	var out []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storageErr("scanning speaker", err)
		}

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating speakers", err)
	}

	return out, nil
}

func scanLines(rows rowScanner, thread models.Thread) ([]models.DialogueLine, error) {
	var out []models.DialogueLine

	for rows.Next() {
		var (
			addr                          int64
			speaker, variant, translation *string
			body                          string
		)

		if err := rows.Scan(&addr, &speaker, &body, &variant, &translation); err != nil {
			return nil, storageErr("scanning dialogue line", err)
		}

		a, err := toAddress(addr)
		if err != nil {
			return nil, err
		}

		out = append(out, models.DialogueLine{
			ScriptID:    thread.ScriptID,
			Thread:      thread.Name,
			Address:     a,
			Speaker:     speaker,
			Body:        body,
			Variant:     variant,
			Translation: translation,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating dialogue lines", err)
	}

	return out, nil
}
