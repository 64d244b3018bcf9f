package models_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/persistorai/threadline/internal/models"
)

func TestThread_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Thread
		want int
	}{
		{name: "script id first", a: models.Thread{ScriptID: 1, Name: "z"}, b: models.Thread{ScriptID: 2, Name: "a"}, want: -1},
		{name: "name breaks ties", a: models.Thread{ScriptID: 3, Name: "b"}, b: models.Thread{ScriptID: 3, Name: "a"}, want: 1},
		{name: "equal", a: models.Thread{ScriptID: 3, Name: "a"}, b: models.Thread{ScriptID: 3, Name: "a"}, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Compare(tc.b); got != tc.want {
				t.Errorf("Compare() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSeries_Done(t *testing.T) {
	a := models.Thread{ScriptID: 1, Name: "A"}
	b := models.Thread{ScriptID: 1, Name: "B"}
	c := models.Thread{ScriptID: 1, Name: "C"}
	s := models.Series{a, b, c}

	if s.Done(map[models.Thread]int{a: 2, b: 1}) {
		t.Error("series with remaining lines in A and B reported done")
	}

	if s.Done(map[models.Thread]int{a: 0, b: 0, c: 1}) {
		t.Error("series with a remaining line in the leaf reported done")
	}

	if !s.Done(map[models.Thread]int{}) {
		t.Error("series with no remaining lines not reported done")
	}

	if got := s.Remaining(map[models.Thread]int{a: 2, c: 5}); got != 7 {
		t.Errorf("Remaining() = %d, want 7", got)
	}

	if got := s.Leaf(); got != c {
		t.Errorf("Leaf() = %v, want %v", got, c)
	}

	if got := s.Chain(); got != "1:A -> 1:B -> 1:C" {
		t.Errorf("Chain() = %q", got)
	}
}

func TestStopReason_Natural(t *testing.T) {
	for reason, want := range map[models.StopReason]bool{
		models.StopEOS:   true,
		models.StopWord:  true,
		models.StopLimit: false,
		models.StopNone:  false,
	} {
		if got := reason.Natural(); got != want {
			t.Errorf("%s.Natural() = %v, want %v", reason, got, want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "data integrity", err: fmt.Errorf("building graph: %w", models.ErrDataIntegrity), want: true},
		{name: "unknown speaker", err: fmt.Errorf("decoding: %w", models.ErrUnknownSpeaker), want: true},
		{name: "storage", err: fmt.Errorf("upsert: %w", models.ErrStorage), want: true},
		{name: "canceled", err: fmt.Errorf("tokenize: %w", context.Canceled), want: true},
		{name: "cutoff", err: &models.GenerationCutoffError{Partial: "[EN]: Hel"}, want: false},
		{name: "service", err: fmt.Errorf("complete: %w", models.ErrCompletionService), want: false},
		{name: "prompt too large", err: models.ErrPromptTooLarge, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := models.IsFatal(tc.err); got != tc.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestGenerationCutoffError_Is(t *testing.T) {
	err := fmt.Errorf("line 3: %w", &models.GenerationCutoffError{Partial: "partial"})

	if !errors.Is(err, models.ErrGenerationCutoff) {
		t.Fatal("expected errors.Is to match ErrGenerationCutoff")
	}

	var cutoff *models.GenerationCutoffError
	if !errors.As(err, &cutoff) || cutoff.Partial != "partial" {
		t.Fatalf("errors.As failed or wrong partial: %+v", cutoff)
	}
}

func TestPlan_Pending(t *testing.T) {
	p := models.Plan{Series: []models.PlannedSeries{{Skip: true}, {}, {}}}
	if got := p.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
}
