package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/persistorai/threadline/internal/domain"
	"github.com/persistorai/threadline/internal/metrics"
	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/roster"
)

// Defaults for a 1024-token llama.cpp context.
const (
	DefaultContextTokens = 1024
	DefaultPredictTokens = 64
)

var tracer = otel.Tracer("threadline/translate")

// Compile-time check: *Engine must satisfy domain.SeriesTranslator.
var _ domain.SeriesTranslator = (*Engine)(nil)

// Config sets the token budget and language pair of an Engine.
type Config struct {
	ContextTokens  int
	PredictTokens  int
	SourceLanguage string
	TargetLanguage string
}

// Engine translates series one line at a time against a completion server.
// It holds no per-series state and may be shared between goroutines.
type Engine struct {
	completer domain.Completer
	roster    *roster.Roster
	prompts   *PromptBuilder
	cfg       Config
	log       *logrus.Logger
}

// NewEngine creates an Engine. Zero token budgets fall back to the defaults.
func NewEngine(completer domain.Completer, r *roster.Roster, cfg Config, log *logrus.Logger) *Engine {
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = DefaultContextTokens
	}

	if cfg.PredictTokens <= 0 {
		cfg.PredictTokens = DefaultPredictTokens
	}

	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = "Japanese"
	}

	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "English"
	}

	return &Engine{
		completer: completer,
		roster:    r,
		prompts:   NewPromptBuilder(r, cfg.SourceLanguage, cfg.TargetLanguage),
		cfg:       cfg,
		log:       log,
	}
}

// line is a dialogue line after placeholder substitution and speaker decoding.
type line struct {
	address uint32
	speaker *SpeakerPair
	body    string
	variant *string
}

// TranslateSeries walks every thread of series in order, reusing stored
// translations as context and translating the rest. Each accepted line is
// upserted through tx before the next one is attempted, so on error every
// earlier line of the series stays written.
func (e *Engine) TranslateSeries(ctx context.Context, tx domain.SeriesTx, series models.Series) (*models.SeriesResult, error) {
	ctx, span := tracer.Start(ctx, "translate.TranslateSeries",
		trace.WithAttributes(
			attribute.String("series.leaf", series.Leaf().String()),
			attribute.Int("series.threads", len(series)),
		),
	)
	defer span.End()

	res := &models.SeriesResult{}
	window := &Window{}

	for _, thread := range series {
		if err := e.translateThread(ctx, tx, thread, window, res); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			return res, err
		}
	}

	span.SetAttributes(attribute.Int("lines.translated", res.Translated))

	return res, nil
}

func (e *Engine) translateThread(ctx context.Context, tx domain.SeriesTx, thread models.Thread, window *Window, res *models.SeriesResult) error {
	rows, err := tx.Lines(ctx, thread)
	if err != nil {
		return fmt.Errorf("loading lines of %s: %w", thread, err)
	}

	e.log.WithFields(logrus.Fields{
		"thread": thread.String(),
		"lines":  len(rows),
	}).Info("translating thread")

	for i := range rows {
		l, err := e.prepare(&rows[i])
		if err != nil {
			return fmt.Errorf("thread %s address %#x: %w", thread, rows[i].Address, err)
		}

		if rows[i].Translated() {
			window.Append(Exchange{Speaker: l.speaker, Source: l.body, Target: *rows[i].Translation})
			res.Reused++
			metrics.LinesTotal.WithLabelValues("main", "reused").Inc()

			continue
		}

		if err := e.translateOne(ctx, tx, thread, l, window, res); err != nil {
			metrics.LinesTotal.WithLabelValues("main", "failed").Inc()
			return fmt.Errorf("thread %s address %#x: %w", thread, l.address, err)
		}
	}

	return nil
}

// prepare substitutes placeholders and decodes the speaker of a stored line.
func (e *Engine) prepare(row *models.DialogueLine) (line, error) {
	l := line{address: row.Address, body: e.roster.Substitute(row.Body)}

	if row.Variant != nil {
		v := e.roster.Substitute(*row.Variant)
		l.variant = &v
	}

	if row.Speaker != nil {
		label := e.roster.Substitute(*row.Speaker)

		sp, err := e.roster.Decode(label)
		if err != nil {
			return line{}, err
		}

		l.speaker = &SpeakerPair{Source: label, Target: sp.Name}
	}

	return l, nil
}

func (e *Engine) translateOne(ctx context.Context, tx domain.SeriesTx, thread models.Thread, l line, window *Window, res *models.SeriesResult) error {
	snapshot := window.Clone()
	prefix := SpeakerPrefix(speakerTarget(l.speaker))

	var source *string
	if l.speaker != nil {
		source = &l.speaker.Source
	}

	text, err := e.translateLine(ctx, window, source, l.body, prefix)
	if err != nil {
		return err
	}

	var variant *string

	if l.variant != nil {
		v, err := e.translateLine(ctx, snapshot, source, *l.variant, prefix)

		switch {
		case err == nil:
			variant = &v
			res.Variants++
			metrics.LinesTotal.WithLabelValues("variant", "translated").Inc()
		case models.IsFatal(err):
			return fmt.Errorf("variant: %w", err)
		default:
			res.VariantFailures++
			metrics.LinesTotal.WithLabelValues("variant", "failed").Inc()
			e.log.WithError(err).WithFields(logrus.Fields{
				"thread":  thread.String(),
				"address": fmt.Sprintf("%#x", l.address),
			}).Warn("variant translation failed, keeping main line only")
		}
	}

	err = tx.UpsertTranslation(ctx, models.Translation{
		ScriptID:    thread.ScriptID,
		Address:     l.address,
		Body:        text,
		VariantBody: variant,
	})
	if err != nil {
		return err
	}

	window.Append(Exchange{Speaker: l.speaker, Source: l.body, Target: text})
	res.Translated++
	metrics.LinesTotal.WithLabelValues("main", "translated").Inc()

	fields := logrus.Fields{
		"thread":  thread.String(),
		"address": fmt.Sprintf("%#x", l.address),
		"context": window.Len() - 1,
	}
	if variant != nil {
		fields["variant"] = *variant
	}

	e.log.WithFields(fields).Info(prefix + text)

	return nil
}

// translateLine fits the prompt for text into the token budget by evicting
// the oldest window entries, then requests a completion that must start
// with prefix. The returned text has the prefix stripped.
func (e *Engine) translateLine(ctx context.Context, window *Window, speaker *string, text, prefix string) (string, error) {
	tokens, err := e.fit(ctx, window, speaker, text)
	if err != nil {
		return "", err
	}

	out, err := e.completer.Complete(ctx, models.CompletionRequest{
		Prompt:    tokens,
		MaxTokens: e.cfg.PredictTokens,
		Grammar:   Grammar(prefix),
	})
	if err != nil {
		return "", err
	}

	if !out.StopReason.Natural() {
		return "", &models.GenerationCutoffError{Partial: out.Content}
	}

	body, ok := strings.CutPrefix(out.Content, prefix)
	if !ok {
		return "", fmt.Errorf("%w: output does not start with %q: %q", models.ErrCompletionService, prefix, out.Content)
	}

	return strings.TrimSpace(body), nil
}

// fit returns the tokens of the first prompt that fits ContextTokens minus
// PredictTokens. Every iteration strictly shrinks the window.
func (e *Engine) fit(ctx context.Context, window *Window, speaker *string, text string) ([]int, error) {
	budget := e.cfg.ContextTokens - e.cfg.PredictTokens

	for {
		prompt, err := e.prompts.Build(window, speaker, text)
		if err != nil {
			return nil, err
		}

		tokens, err := e.completer.Tokenize(ctx, prompt)
		if err != nil {
			return nil, err
		}

		if len(tokens) <= budget {
			metrics.PromptTokens.Observe(float64(len(tokens)))
			return tokens, nil
		}

		if window.Len() == 0 {
			return nil, fmt.Errorf("%w: %d tokens, budget %d", models.ErrPromptTooLarge, len(tokens), budget)
		}

		n := window.Evict(evictionStep(window.Len()))
		metrics.ContextEvictions.Add(float64(n))
	}
}
