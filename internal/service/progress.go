package service

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressSnapshot is a point-in-time view of a run, served by the status API.
type ProgressSnapshot struct {
	RunID           string    `json:"run_id,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	Series          int64     `json:"series"`
	Translated      int64     `json:"translated"`
	Skipped         int64     `json:"skipped"`
	Failed          int64     `json:"failed"`
	InFlight        int64     `json:"in_flight"`
	LinesTranslated int64     `json:"lines_translated"`
	LinesReused     int64     `json:"lines_reused"`
	Current         []string  `json:"current,omitempty"`
}

// Progress tracks a run. Counters are updated from concurrent series
// workers; the zero value is ready to use.
type Progress struct {
	series          atomic.Int64
	translated      atomic.Int64
	skipped         atomic.Int64
	failed          atomic.Int64
	inFlight        atomic.Int64
	linesTranslated atomic.Int64
	linesReused     atomic.Int64
	running         atomic.Bool

	mu       sync.Mutex
	runID    string
	strategy string
	started  time.Time
	current  map[string]struct{}
}

func (p *Progress) start(runID, strategy string, series int) {
	p.mu.Lock()
	p.runID = runID
	p.strategy = strategy
	p.started = time.Now().UTC()
	p.current = make(map[string]struct{})
	p.mu.Unlock()

	p.series.Store(int64(series))
	p.translated.Store(0)
	p.skipped.Store(0)
	p.failed.Store(0)
	p.inFlight.Store(0)
	p.linesTranslated.Store(0)
	p.linesReused.Store(0)
	p.running.Store(true)
}

func (p *Progress) finish() { p.running.Store(false) }

func (p *Progress) enter(chain string) {
	p.inFlight.Add(1)

	p.mu.Lock()
	p.current[chain] = struct{}{}
	p.mu.Unlock()
}

func (p *Progress) leave(chain string) {
	p.inFlight.Add(-1)

	p.mu.Lock()
	delete(p.current, chain)
	p.mu.Unlock()
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Running:         p.running.Load(),
		Series:          p.series.Load(),
		Translated:      p.translated.Load(),
		Skipped:         p.skipped.Load(),
		Failed:          p.failed.Load(),
		InFlight:        p.inFlight.Load(),
		LinesTranslated: p.linesTranslated.Load(),
		LinesReused:     p.linesReused.Load(),
	}

	p.mu.Lock()
	s.RunID = p.runID
	s.Strategy = p.strategy
	s.StartedAt = p.started

	for c := range p.current {
		s.Current = append(s.Current, c)
	}
	p.mu.Unlock()

	slices.Sort(s.Current)

	return s
}
