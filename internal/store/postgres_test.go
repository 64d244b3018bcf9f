package store_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/persistorai/threadline/internal/dbpool"
	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/store"
)

// setupPostgres returns a migrated store and a script ID private to the test.
func setupPostgres(t *testing.T) (*store.PostgresStore, *dbpool.Pool, uint16) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := dbpool.NewPool(ctx, dbURL, 4)
	if err != nil {
		t.Fatalf("connecting to test DB: %v", err)
	}

	s := store.NewPostgresStore(pool, testLogger())
	t.Cleanup(func() { s.Close() }) //nolint:errcheck // test cleanup.

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	scriptID := uint16(50000 + rand.IntN(15000)) //nolint:gosec // test data.

	t.Cleanup(func() {
		cleanCtx := context.Background()
		pool.Exec(cleanCtx, "DELETE FROM dialogue_tl WHERE script_id = $1", int32(scriptID))       //nolint:errcheck // best-effort cleanup
		pool.Exec(cleanCtx, "DELETE FROM dialogue WHERE script_id = $1", int32(scriptID))          //nolint:errcheck // best-effort cleanup
		pool.Exec(cleanCtx, "DELETE FROM thread_graph WHERE tail_script_id = $1", int32(scriptID)) //nolint:errcheck // best-effort cleanup
	})

	return s, pool, scriptID
}

func TestPostgresStore_LinesAndUpsert(t *testing.T) {
	s, pool, scriptID := setupPostgres(t)
	ctx := context.Background()
	thread := models.Thread{ScriptID: scriptID, Name: "pg"}

	_, err := pool.Exec(ctx, `INSERT INTO dialogue (script_id, address, thread, speaker, body) VALUES
		($1, 32, 'pg', 'ハイリ', '二'), ($1, 16, 'pg', NULL, '一')`, int32(scriptID))
	if err != nil {
		t.Fatalf("seeding dialogue: %v", err)
	}

	for _, body := range []string{"first", "second"} {
		err := store.InSeries(ctx, s, func(ctx context.Context, tx domain.SeriesTx) error {
			return tx.UpsertTranslation(ctx, models.Translation{ScriptID: scriptID, Address: 16, Body: body})
		})
		if err != nil {
			t.Fatalf("upsert %q: %v", body, err)
		}
	}

	var lines []models.DialogueLine

	err = store.InSeries(ctx, s, func(ctx context.Context, tx domain.SeriesTx) error {
		var err error
		lines, err = tx.Lines(ctx, thread)

		return err
	}, store.DiscardWrites())
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	if len(lines) != 2 || lines[0].Address != 16 || lines[1].Address != 32 {
		t.Fatalf("Lines() = %+v, want addresses 16, 32", lines)
	}

	if lines[0].Translation == nil || *lines[0].Translation != "second" {
		t.Errorf("line 16 translation = %v, want second", lines[0].Translation)
	}

	if lines[1].Translated() {
		t.Errorf("line 32 translated, want untranslated")
	}
}

func TestPostgresStore_SnapshotKeepsDuplicateEdges(t *testing.T) {
	s, pool, scriptID := setupPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO thread_graph (tail_script_id, tail_thread, head_script_id, head_thread) VALUES
		($1, 'x', $1, 'y'), ($1, 'x', $1, 'y')`, int32(scriptID))
	if err != nil {
		t.Fatalf("seeding thread_graph: %v", err)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	want := models.Edge{
		Tail: models.Thread{ScriptID: scriptID, Name: "x"},
		Head: models.Thread{ScriptID: scriptID, Name: "y"},
	}

	n := 0
	for _, e := range snap.Edges {
		if e == want {
			n++
		}
	}

	if n != 2 {
		t.Errorf("edge %v appears %d times, want 2", want, n)
	}
}

func TestPostgresStore_HealthCheck(t *testing.T) {
	s, _, _ := setupPostgres(t)

	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
}

func TestImportCorpus(t *testing.T) {
	dst, pool, scriptID := setupPostgres(t)
	ctx := context.Background()

	src := newSQLiteStore(t,
		fmt.Sprintf(`INSERT INTO dialogue (script_id, address, thread, speaker, body) VALUES
			(%d, 1, 'imp', '少女', 'あ'), (%d, 2, 'imp', NULL, 'い')`, scriptID, scriptID),
		fmt.Sprintf(`INSERT INTO dialogue_tl (script_id, address, tl_body) VALUES (%d, 1, 'a')`, scriptID),
	)

	dry, err := store.ImportCorpus(ctx, src, dst, true)
	if err != nil {
		t.Fatalf("ImportCorpus(dry run): %v", err)
	}

	if dry.LinesRead != 2 || dry.TranslationsRead != 1 || dry.LinesInserted != 0 {
		t.Errorf("dry run report = %+v, want 2 lines read, nothing inserted", dry)
	}

	var n int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM dialogue WHERE script_id = $1", int32(scriptID)).Scan(&n); err != nil {
		t.Fatalf("counting dialogue: %v", err)
	}

	if n != 0 {
		t.Fatalf("dry run wrote %d dialogue rows", n)
	}

	first, err := store.ImportCorpus(ctx, src, dst, false)
	if err != nil {
		t.Fatalf("ImportCorpus: %v", err)
	}

	if first.LinesInserted != 2 || first.TranslationsInserted != 1 {
		t.Errorf("first import = %+v, want 2 lines and 1 translation inserted", first)
	}

	again, err := store.ImportCorpus(ctx, src, dst, false)
	if err != nil {
		t.Fatalf("ImportCorpus again: %v", err)
	}

	if again.LinesInserted != 0 || again.TranslationsInserted != 0 {
		t.Errorf("second import = %+v, want nothing inserted", again)
	}
}
