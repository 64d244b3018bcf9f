package main

import (
	"context"
	"fmt"

	"github.com/persistorai/threadline/internal/completion"
	"github.com/persistorai/threadline/internal/roster"
	"github.com/persistorai/threadline/internal/store"
	"github.com/persistorai/threadline/internal/translate"
)

// openStore connects to the configured corpus and brings its schema up to date.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, a.cfg.Database.URL.Value(), a.cfg.Database.MaxConns, a.log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck // already failing.
		return nil, err
	}

	return st, nil
}

// loadRoster reads the configured roster, or the built-in one when no path is set.
func (a *app) loadRoster() (*roster.Roster, error) {
	if a.cfg.Roster.Path == "" {
		return roster.Default()
	}

	return roster.Load(a.cfg.Roster.Path)
}

func (a *app) completionClient() *completion.Client {
	return completion.New(completion.Config{
		BaseURL:     a.cfg.Completion.URL,
		AllowRemote: a.cfg.Completion.AllowRemote,
		Timeout:     a.cfg.Completion.Timeout,
		RateLimit:   a.cfg.Completion.RateLimit,
	}, a.log)
}

func (a *app) engine(c *completion.Client, r *roster.Roster) *translate.Engine {
	return translate.NewEngine(c, r, translate.Config{
		ContextTokens:  a.cfg.Completion.ContextTokens,
		PredictTokens:  a.cfg.Completion.PredictTokens,
		SourceLanguage: a.cfg.Prompt.SourceLanguage,
		TargetLanguage: a.cfg.Prompt.TargetLanguage,
	}, a.log)
}
