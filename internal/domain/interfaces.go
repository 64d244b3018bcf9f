// Package domain defines the interfaces shared between the scheduler, the
// translation engine and their storage and completion backends. Consumers
// should depend on these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/persistorai/threadline/internal/models"
)

// Completer is the external tokenizer and text generation service.
type Completer interface {
	Tokenize(ctx context.Context, text string) ([]int, error)
	Complete(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error)
}

// SeriesTx is the unit of work for one series. Every upsert made through it
// is committed together when the series scope closes.
type SeriesTx interface {
	// Lines returns the lines of thread ordered by address, with any stored translation.
	Lines(ctx context.Context, thread models.Thread) ([]models.DialogueLine, error)
	// UpsertTranslation stores t, replacing any previous row for the same key.
	UpsertTranslation(ctx context.Context, t models.Translation) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SeriesBeginner opens series transactions.
type SeriesBeginner interface {
	BeginSeries(ctx context.Context) (SeriesTx, error)
}

// Repository is the relational store holding the dialogue corpus and its translations.
type Repository interface {
	SeriesBeginner
	// Snapshot reads the dependency edges, thread keys and line counts for one run.
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	// Speakers returns every distinct speaker label in the corpus.
	Speakers(ctx context.Context) ([]string, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// SeriesTranslator translates one series inside an open series transaction.
type SeriesTranslator interface {
	TranslateSeries(ctx context.Context, tx SeriesTx, series models.Series) (*models.SeriesResult, error)
}
