package translate_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/threadline/internal/models"
	"github.com/persistorai/threadline/internal/roster"
)

const testRosterYAML = `
placeholders:
  - token: "#Name[1]"
    value: "玻ヰ璃"
anonymous:
  "？？？": "???"
voice_suffix:
  source: "の声"
  target: "'s voice"
characters:
  - source: "玻ヰ璃[ハイリ]＝ラリック"
    short: "玻ヰ璃"
    target: "Hairi Lalique"
    gender: Female
  - source: "カンパネラ"
    target: "Campanella"
    gender: Unknown
glossary:
  - trigger: "透京"
    entry: "[element] Name: Tokyo (透京) | Type: Place"
`

func testRoster(t *testing.T) *roster.Roster {
	t.Helper()

	r, err := roster.Parse([]byte(testRosterYAML))
	if err != nil {
		t.Fatalf("parsing test roster: %v", err)
	}

	return r
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func ptr[T any](v T) *T { return &v }

// stubCompleter counts calls and records the prompt behind every completion.
// By default one token is charged per turn marker plus ten per "長", and
// completions echo the forced prefix followed by "EN<n>".
type stubCompleter struct {
	tokenizeFn func(text string) ([]int, error)
	completeFn func(n int, req *models.CompletionRequest) (*models.CompletionResult, error)

	tokenizeCalls int
	completeCalls int
	lastPrompt    string
	prompts       []string
	requests      []models.CompletionRequest
}

func (s *stubCompleter) Tokenize(_ context.Context, text string) ([]int, error) {
	s.tokenizeCalls++
	s.lastPrompt = text

	if s.tokenizeFn != nil {
		return s.tokenizeFn(text)
	}

	n := strings.Count(text, "<|eot_id|>") + 10*strings.Count(text, "長")

	return make([]int, n), nil
}

func (s *stubCompleter) Complete(_ context.Context, req models.CompletionRequest) (*models.CompletionResult, error) {
	s.completeCalls++
	s.prompts = append(s.prompts, s.lastPrompt)
	s.requests = append(s.requests, req)

	if s.completeFn != nil {
		return s.completeFn(s.completeCalls, &req)
	}

	return &models.CompletionResult{
		Content:    grammarPrefix(req.Grammar) + " EN" + strconv.Itoa(s.completeCalls) + " ",
		StopReason: models.StopEOS,
	}, nil
}

// grammarPrefix extracts the forced literal from a grammar built by translate.Grammar.
func grammarPrefix(g string) string {
	s := strings.TrimPrefix(g, `root ::= "`)
	s = s[:strings.LastIndex(s, `" [^\x00]*`)]

	return strings.ReplaceAll(s, `\"`, `"`)
}

// fakeTx is an in-memory series transaction.
type fakeTx struct {
	lines     map[models.Thread][]models.DialogueLine
	upserts   []models.Translation
	upsertErr error
	linesErr  error
}

func (f *fakeTx) Lines(_ context.Context, thread models.Thread) ([]models.DialogueLine, error) {
	if f.linesErr != nil {
		return nil, f.linesErr
	}

	return f.lines[thread], nil
}

func (f *fakeTx) UpsertTranslation(_ context.Context, t models.Translation) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}

	f.upserts = append(f.upserts, t)

	return nil
}

func (f *fakeTx) Commit(context.Context) error   { return nil }
func (f *fakeTx) Rollback(context.Context) error { return nil }

func dl(thread models.Thread, addr uint32, speaker *string, body string) models.DialogueLine {
	return models.DialogueLine{ScriptID: thread.ScriptID, Thread: thread.Name, Address: addr, Speaker: speaker, Body: body}
}

func translated(l models.DialogueLine, tl string) models.DialogueLine {
	l.Translation = &tl
	return l
}
