// Package service schedules and runs translation series over the dialogue corpus.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/graph"
	"github.com/persistorai/threadline/internal/metrics"
	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/store"
)

// Scheduling strategies.
const (
	StrategyShortestPath = "shortest-path"
	StrategyMaxLeaf      = "max-leaf"
)

// ErrUnknownStrategy is returned for a strategy name other than the ones above.
var ErrUnknownStrategy = errors.New("unknown scheduling strategy")

// RunOptions controls a translation run.
type RunOptions struct {
	Strategy string
	// Workers is the number of series translated concurrently. Values below 1 mean 1.
	Workers int
	// DryRun translates every pending series but rolls its writes back.
	DryRun bool
}

// Runner plans series from a corpus snapshot and drives the translator over them.
type Runner struct {
	repo       domain.Repository
	translator domain.SeriesTranslator
	log        *logrus.Logger
	progress   *Progress
}

// NewRunner creates a Runner.
func NewRunner(repo domain.Repository, translator domain.SeriesTranslator, log *logrus.Logger) *Runner {
	return &Runner{
		repo:       repo,
		translator: translator,
		log:        log,
		progress:   &Progress{},
	}
}

// Progress exposes the live counters of the current or last run.
func (r *Runner) Progress() *Progress { return r.progress }

// Plan reads a snapshot, builds the thread graph and lists the series the
// strategy derives, marking the ones with nothing left to translate.
func (r *Runner) Plan(ctx context.Context, strategy string) (*models.Plan, error) {
	snap, err := r.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	g, err := graph.Build(snap)
	if err != nil {
		return nil, fmt.Errorf("building thread graph: %w", err)
	}

	var series []models.Series

	switch strategy {
	case StrategyShortestPath, "":
		strategy = StrategyShortestPath

		series, err = graph.ShortestPathSeries(g)
		if err != nil {
			return nil, fmt.Errorf("scheduling series: %w", err)
		}
	case StrategyMaxLeaf:
		series = graph.MaxLeafSeries(g)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	plan := &models.Plan{
		Strategy: strategy,
		Nodes:    g.Len(),
		Edges:    g.EdgeCount(),
		Series:   make([]models.PlannedSeries, 0, len(series)),
	}

	for _, s := range series {
		plan.Series = append(plan.Series, models.PlannedSeries{
			Leaf:      s.Leaf(),
			Threads:   s,
			Remaining: s.Remaining(snap.Remaining),
			Skip:      s.Done(snap.Remaining),
		})
	}

	return plan, nil
}

// Run translates every pending series of the plan in leaf order. A
// series-scoped failure is logged and counted and the run moves on; a fatal
// error stops dispatch and is returned together with the partial summary.
// Whatever a series wrote before it stopped stays committed.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	plan, err := r.Plan(ctx, opts.Strategy)
	if err != nil {
		return nil, err
	}

	workers := max(opts.Workers, 1)
	runID := uuid.New().String()

	summary := &models.RunSummary{RunID: runID, Leaves: len(plan.Series)}

	log := r.log.WithFields(logrus.Fields{
		"run_id":   runID,
		"strategy": plan.Strategy,
		"nodes":    plan.Nodes,
		"edges":    plan.Edges,
		"series":   len(plan.Series),
		"pending":  plan.Pending(),
		"workers":  workers,
		"dry_run":  opts.DryRun,
	})
	log.Info("run started")

	r.progress.start(runID, plan.Strategy, len(plan.Series))
	defer r.progress.finish()

	var mu sync.Mutex

	record := func(fn func(s *models.RunSummary)) {
		mu.Lock()
		fn(summary)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, ps := range plan.Series {
		if gctx.Err() != nil {
			break
		}

		if ps.Skip {
			r.progress.skipped.Add(1)
			metrics.SeriesTotal.WithLabelValues("skipped").Inc()
			record(func(s *models.RunSummary) { s.Skipped++ })
			log.WithField("series", ps.Threads.Chain()).Debug("series already translated")

			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			return r.runSeries(gctx, ps.Threads, opts.DryRun, log, record)
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	log.WithFields(logrus.Fields{
		"leaves":           summary.Leaves,
		"translated":       summary.Translated,
		"skipped":          summary.Skipped,
		"failed":           summary.Failed,
		"lines_translated": summary.LinesTranslated,
		"lines_reused":     summary.LinesReused,
	}).Info("run finished")

	return summary, err
}

// runSeries translates one series inside its own transaction. It returns an
// error only when the failure is fatal to the whole run.
func (r *Runner) runSeries(
	ctx context.Context,
	series models.Series,
	dryRun bool,
	log *logrus.Entry,
	record func(func(*models.RunSummary)),
) error {
	chain := series.Chain()
	log = log.WithField("series", chain)

	r.progress.enter(chain)
	metrics.SeriesInFlight.Inc()

	defer func() {
		r.progress.leave(chain)
		metrics.SeriesInFlight.Dec()
	}()

	var opts []store.SeriesOption
	if dryRun {
		opts = append(opts, store.DiscardWrites())
	}

	var res *models.SeriesResult

	err := store.InSeries(ctx, r.repo, func(ctx context.Context, tx domain.SeriesTx) error {
		var err error
		res, err = r.translator.TranslateSeries(ctx, tx, series)

		return err
	}, opts...)

	if res != nil {
		r.progress.linesTranslated.Add(int64(res.Translated))
		r.progress.linesReused.Add(int64(res.Reused))
		record(func(s *models.RunSummary) {
			s.LinesTranslated += res.Translated
			s.LinesReused += res.Reused
		})
	}

	switch {
	case err == nil:
		r.progress.translated.Add(1)
		metrics.SeriesTotal.WithLabelValues("translated").Inc()
		record(func(s *models.RunSummary) { s.Translated++ })
		log.Info("series translated")

		return nil
	case models.IsFatal(err):
		r.progress.failed.Add(1)
		metrics.SeriesTotal.WithLabelValues("failed").Inc()
		metrics.ErrorsTotal.WithLabelValues("fatal").Inc()
		record(func(s *models.RunSummary) { s.Failed++ })
		log.WithError(err).Error("series failed, stopping run")

		return fmt.Errorf("series %s: %w", chain, err)
	default:
		r.progress.failed.Add(1)
		metrics.SeriesTotal.WithLabelValues("failed").Inc()
		metrics.ErrorsTotal.WithLabelValues("series").Inc()
		record(func(s *models.RunSummary) { s.Failed++ })
		log.WithError(err).Warn("series failed, continuing")

		return nil
	}
}
