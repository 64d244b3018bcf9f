package models

// PlannedSeries is one unit of scheduled work together with its remaining line count.
type PlannedSeries struct {
	Leaf      Thread `json:"leaf"`
	Threads   Series `json:"threads"`
	Remaining int    `json:"remaining"`
	Skip      bool   `json:"skip"`
}

// Plan is the ordered list of series a run will process.
type Plan struct {
	Strategy string          `json:"strategy"`
	Nodes    int             `json:"nodes"`
	Edges    int             `json:"edges"`
	Series   []PlannedSeries `json:"series"`
}

// Pending returns the number of series that will actually be translated.
func (p *Plan) Pending() int {
	n := 0
	for _, s := range p.Series {
		if !s.Skip {
			n++
		}
	}

	return n
}

// RunSummary is the outcome of a translation run.
type RunSummary struct {
	RunID           string `json:"run_id"`
	Leaves          int    `json:"leaves"`
	Translated      int    `json:"translated"`
	Skipped         int    `json:"skipped"`
	Failed          int    `json:"failed"`
	LinesTranslated int    `json:"lines_translated"`
	LinesReused     int    `json:"lines_reused"`
}

// SeriesResult counts what the engine did with one series.
type SeriesResult struct {
	Translated int `json:"translated"`
	Reused     int `json:"reused"`
	Variants   int `json:"variants"`
	// VariantFailures counts variant renderings dropped after a series-scoped error.
	VariantFailures int `json:"variant_failures"`
}
