package service

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

// mockRepo serves a fixed snapshot and records series transactions.
type mockRepo struct {
	mu       sync.Mutex
	snapshot *models.Snapshot
	txs      []*mockTx
}

func (m *mockRepo) Snapshot(context.Context) (*models.Snapshot, error) { return m.snapshot, nil }

func (m *mockRepo) Speakers(context.Context) ([]string, error) { return nil, nil }

func (m *mockRepo) HealthCheck(context.Context) error { return nil }

func (m *mockRepo) Close() error { return nil }

func (m *mockRepo) BeginSeries(context.Context) (domain.SeriesTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &mockTx{}
	m.txs = append(m.txs, tx)

	return tx, nil
}

type mockTx struct {
	committed  bool
	rolledBack bool
}

func (t *mockTx) Lines(context.Context, models.Thread) ([]models.DialogueLine, error) { return nil, nil }

func (t *mockTx) UpsertTranslation(context.Context, models.Translation) error { return nil }

func (t *mockTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

// mockTranslator records every series it is handed.
type mockTranslator struct {
	mu     sync.Mutex
	series []models.Series

	translate func(ctx context.Context, tx domain.SeriesTx, series models.Series) (*models.SeriesResult, error)
}

func (m *mockTranslator) TranslateSeries(ctx context.Context, tx domain.SeriesTx, series models.Series) (*models.SeriesResult, error) {
	m.mu.Lock()
	m.series = append(m.series, series)
	m.mu.Unlock()

	if m.translate == nil {
		return &models.SeriesResult{Translated: len(series)}, nil
	}

	return m.translate(ctx, tx, series)
}

func (m *mockTranslator) calls() []models.Series {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.Series(nil), m.series...)
}
