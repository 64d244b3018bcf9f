// Package models defines the data types shared across threadline packages.
package models

import (
	"cmp"
	"fmt"
)

// Thread identifies a named dialogue unit within a script.
type Thread struct {
	ScriptID uint16 `json:"script_id"`
	Name     string `json:"thread"`
}

// String renders the thread as "script:name", the form used in logs.
func (t Thread) String() string {
	return fmt.Sprintf("%d:%s", t.ScriptID, t.Name)
}

// Compare orders threads by script ID, then name.
func (t Thread) Compare(o Thread) int {
	if c := cmp.Compare(t.ScriptID, o.ScriptID); c != 0 {
		return c
	}

	return cmp.Compare(t.Name, o.Name)
}

// Snapshot is the set of relational facts the scheduler is built from.
// It is read once per run.
type Snapshot struct {
	// Threads holds every thread referenced as an edge endpoint or carrying dialogue.
	Threads []Thread
	// Edges holds the raw dependency facts. Duplicates are preserved so the
	// graph builder can reject them.
	Edges []Edge
	// LineCounts is the total number of dialogue lines per thread.
	LineCounts map[Thread]int
	// Remaining is the number of lines lacking a translation per thread.
	// Threads with nothing left may be absent.
	Remaining map[Thread]int
}
