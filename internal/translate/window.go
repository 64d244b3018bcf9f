// Package translate implements the context-bounded translation engine: it
// walks a series line by line, keeps a rolling window of translated
// exchanges, and fits every prompt into the completion server's context.
package translate

import "slices"

// SpeakerPair is a speaker label together with its decoded target rendering.
type SpeakerPair struct {
	Source string
	Target string
}

// Exchange is one translated line held in the context window.
type Exchange struct {
	Speaker *SpeakerPair
	Source  string
	Target  string
}

// Window is the ordered rolling context of a series. It only grows at the
// end and only shrinks by dropping its oldest entries.
type Window struct {
	entries []Exchange
}

// Append adds e as the newest entry.
func (w *Window) Append(e Exchange) {
	w.entries = append(w.entries, e)
}

// Len returns the number of entries.
func (w *Window) Len() int { return len(w.entries) }

// Entries returns the entries oldest first. Callers must not modify the slice.
func (w *Window) Entries() []Exchange { return w.entries }

// Evict drops up to n of the oldest entries and returns how many were dropped.
func (w *Window) Evict(n int) int {
	n = min(max(n, 0), len(w.entries))
	w.entries = slices.Delete(w.entries, 0, n)

	return n
}

// Clone returns an independent copy of the window.
func (w *Window) Clone() *Window {
	return &Window{entries: slices.Clone(w.entries)}
}

// evictionStep is the number of entries dropped per fit iteration.
func evictionStep(n int) int {
	return max(1, n/16)
}
