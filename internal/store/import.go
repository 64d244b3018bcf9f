package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

const importBatchSize = 500

// ImportReport summarizes copying a SQLite corpus into PostgreSQL.
type ImportReport struct {
	Source               string        `json:"source"`
	Target               string        `json:"target"`
	DryRun               bool          `json:"dry_run"`
	LinesRead            int           `json:"lines_read"`
	EdgesRead            int           `json:"edges_read"`
	TranslationsRead     int           `json:"translations_read"`
	LinesInserted        int           `json:"lines_inserted"`
	EdgesInserted        int           `json:"edges_inserted"`
	TranslationsInserted int           `json:"translations_inserted"`
	EdgesSkipped         bool          `json:"edges_skipped"`
	Duration             time.Duration `json:"duration"`
}

type corpusLine struct {
	scriptID, address int64
	thread, body      string
	speaker, variant  *string
}

type corpusEdge struct {
	tailID, headID     int64
	tailName, headName string
}

type corpusTranslation struct {
	scriptID, address int64
	body              string
	variant           *string
}

// ImportCorpus copies dialogue, thread_graph and dialogue_tl from src into
// dst inside one transaction. Existing dialogue and translation rows are kept.
// thread_graph has no key, so edges are only copied into an empty table.
func ImportCorpus(ctx context.Context, src *SQLiteStore, dst *PostgresStore, dryRun bool) (*ImportReport, error) {
	start := time.Now()
	r := &ImportReport{Source: src.path, Target: redactURL(dst.pool.ConnString()), DryRun: dryRun}

	defer func() { r.Duration = time.Since(start) }()

	lines, err := src.readLines(ctx)
	if err != nil {
		return r, err
	}

	edges, err := src.readEdges(ctx)
	if err != nil {
		return r, err
	}

	tls, err := src.readTranslations(ctx)
	if err != nil {
		return r, err
	}

	r.LinesRead, r.EdgesRead, r.TranslationsRead = len(lines), len(edges), len(tls)

	log := dst.log.WithFields(logrus.Fields{
		"lines":        r.LinesRead,
		"edges":        r.EdgesRead,
		"translations": r.TranslationsRead,
	})
	log.Info("read corpus from sqlite")

	if dryRun {
		log.Info("dry run, skipping postgres writes")
		return r, nil
	}

	tx, err := dst.pool.Begin(ctx)
	if err != nil {
		return r, storageErr("beginning import transaction", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	if r.LinesInserted, err = insertLines(ctx, tx, lines); err != nil {
		return r, err
	}

	var existing int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM thread_graph").Scan(&existing); err != nil {
		return r, storageErr("counting thread_graph", err)
	}

	if existing == 0 {
		if r.EdgesInserted, err = insertEdges(ctx, tx, edges); err != nil {
			return r, err
		}
	} else {
		r.EdgesSkipped = true
		dst.log.WithField("existing", existing).Warn("thread_graph already populated, edges not copied")
	}

	if r.TranslationsInserted, err = insertTranslations(ctx, tx, tls); err != nil {
		return r, err
	}

	if err := tx.Commit(ctx); err != nil {
		return r, storageErr("committing import", err)
	}

	dst.log.WithFields(logrus.Fields{
		"lines":        r.LinesInserted,
		"edges":        r.EdgesInserted,
		"translations": r.TranslationsInserted,
	}).Info("corpus imported")

	return r, nil
}

func (s *SQLiteStore) readLines(ctx context.Context) ([]corpusLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT script_id, address, thread, speaker, body, variant_body FROM dialogue ORDER BY script_id, address`)
	if err != nil {
		return nil, storageErr("reading dialogue", err)
	}
	defer rows.Close()

	var out []corpusLine

	for rows.Next() {
		var l corpusLine
		if err := rows.Scan(&l.scriptID, &l.address, &l.thread, &l.speaker, &l.body, &l.variant); err != nil {
			return nil, storageErr("scanning dialogue", err)
		}

		out = append(out, l)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating dialogue", err)
	}

	return out, nil
}

func (s *SQLiteStore) readEdges(ctx context.Context) ([]corpusEdge, error) {
	rows, err := s.db.QueryContext(ctx, edgesSQL)
	if err != nil {
		return nil, storageErr("reading thread_graph", err)
	}
	defer rows.Close()

	var out []corpusEdge

	for rows.Next() {
		var e corpusEdge
		if err := rows.Scan(&e.tailID, &e.tailName, &e.headID, &e.headName); err != nil {
			return nil, storageErr("scanning thread_graph", err)
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating thread_graph", err)
	}

	return out, nil
}

func (s *SQLiteStore) readTranslations(ctx context.Context) ([]corpusTranslation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT script_id, address, tl_body, tl_variant_body FROM dialogue_tl ORDER BY script_id, address`)
	if err != nil {
		return nil, storageErr("reading dialogue_tl", err)
	}
	defer rows.Close()

	var out []corpusTranslation

	for rows.Next() {
		var t corpusTranslation
		if err := rows.Scan(&t.scriptID, &t.address, &t.body, &t.variant); err != nil {
			return nil, storageErr("scanning dialogue_tl", err)
		}

		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating dialogue_tl", err)
	}

	return out, nil
}

// sendBatches queues one statement per item and sends them in groups,
// returning the number of rows actually inserted.
func sendBatches[T any](ctx context.Context, tx pgx.Tx, what string, items []T, queue func(*pgx.Batch, *T)) (int, error) {
	inserted := 0

	for i := 0; i < len(items); i += importBatchSize {
		end := min(i+importBatchSize, len(items))

		batch := &pgx.Batch{}
		for j := i; j < end; j++ {
			queue(batch, &items[j])
		}

		results := tx.SendBatch(ctx, batch)

		for j := i; j < end; j++ {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return inserted, storageErr(fmt.Sprintf("inserting %s batch %d-%d", what, i, end), err)
			}

			inserted += int(tag.RowsAffected())
		}

		if err := results.Close(); err != nil {
			return inserted, storageErr(fmt.Sprintf("closing %s batch %d-%d", what, i, end), err)
		}
	}

	return inserted, nil
}

func insertLines(ctx context.Context, tx pgx.Tx, lines []corpusLine) (int, error) {
	return sendBatches(ctx, tx, "dialogue", lines, func(b *pgx.Batch, l *corpusLine) {
		b.Queue(`INSERT INTO dialogue (script_id, address, thread, speaker, body, variant_body)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (script_id, address) DO NOTHING`,
			l.scriptID, l.address, l.thread, l.speaker, l.body, l.variant)
	})
}

func insertEdges(ctx context.Context, tx pgx.Tx, edges []corpusEdge) (int, error) {
	return sendBatches(ctx, tx, "thread_graph", edges, func(b *pgx.Batch, e *corpusEdge) {
		b.Queue(`INSERT INTO thread_graph (tail_script_id, tail_thread, head_script_id, head_thread)
			VALUES ($1, $2, $3, $4)`,
			e.tailID, e.tailName, e.headID, e.headName)
	})
}

func insertTranslations(ctx context.Context, tx pgx.Tx, tls []corpusTranslation) (int, error) {
	return sendBatches(ctx, tx, "dialogue_tl", tls, func(b *pgx.Batch, t *corpusTranslation) {
		b.Queue(`INSERT INTO dialogue_tl (script_id, address, tl_body, tl_variant_body)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (script_id, address) DO NOTHING`,
			t.scriptID, t.address, t.body, t.variant)
	})
}
