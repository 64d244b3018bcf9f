package models

// Edge is a dependency between two threads: Head follows on from Tail.
type Edge struct {
	Tail Thread `json:"tail"`
	Head Thread `json:"head"`
}

// Series is an ordered chain of threads translated together for narrative continuity.
type Series []Thread

// Leaf returns the last thread of the series.
func (s Series) Leaf() Thread {
	if len(s) == 0 {
		return Thread{}
	}

	return s[len(s)-1]
}

// Remaining sums the untranslated line counts of every thread in the series.
func (s Series) Remaining(remaining map[Thread]int) int {
	total := 0
	for _, t := range s {
		total += remaining[t]
	}

	return total
}

// Done reports whether every thread in the series is fully translated.
// A series is only skipped when all of its threads are done, not just the leaf.
func (s Series) Done(remaining map[Thread]int) bool {
	for _, t := range s {
		if remaining[t] > 0 {
			return false
		}
	}

	return true
}

// Chain renders the series as "a -> b -> c" for operator output.
func (s Series) Chain() string {
	out := ""
	for i, t := range s {
		if i > 0 {
			out += " -> "
		}
		out += t.String()
	}

	return out
}
