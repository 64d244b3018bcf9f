package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/persistorai/threadline/internal/domain"
)

type seriesOptions struct {
	discard bool
}

// SeriesOption configures InSeries.
type SeriesOption func(*seriesOptions)

// DiscardWrites rolls the series transaction back instead of committing it.
func DiscardWrites() SeriesOption {
	return func(o *seriesOptions) { o.discard = true }
}

// InSeries runs fn inside a series transaction that is committed on every
// exit path: normal return, error return and panic. Only DiscardWrites
// turns the close into a rollback. Closing uses a context detached from
// ctx's cancellation so a shutdown signal cannot drop finished work.
func InSeries(ctx context.Context, b domain.SeriesBeginner, fn func(ctx context.Context, tx domain.SeriesTx) error, opts ...SeriesOption) (err error) {
	var o seriesOptions
	for _, opt := range opts {
		opt(&o)
	}

	tx, err := b.BeginSeries(ctx)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		r := recover()

		var cerr error
		if o.discard {
			cerr = tx.Rollback(closeCtx)
		} else {
			cerr = tx.Commit(closeCtx)
		}

		if r != nil {
			panic(r)
		}

		if cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing series transaction: %w", cerr))
		}
	}()

	return fn(ctx, tx)
}
