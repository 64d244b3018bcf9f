package graph_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/persistorai/threadline/internal/graph"
	"github.com/persistorai/threadline/internal/models"
)

func th(name string) models.Thread { return models.Thread{ScriptID: 1, Name: name} }

func edge(tail, head string) models.Edge { return models.Edge{Tail: th(tail), Head: th(head)} }

func mustBuild(t *testing.T, snap *models.Snapshot) *graph.Graph {
	t.Helper()

	g, err := graph.Build(snap)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	return g
}

func mustSeries(t *testing.T, g *graph.Graph) []models.Series {
	t.Helper()

	s, err := graph.ShortestPathSeries(g)
	if err != nil {
		t.Fatalf("ShortestPathSeries() error: %v", err)
	}

	return s
}

func TestBuild_IsolatedTopThreads(t *testing.T) {
	g := mustBuild(t, &models.Snapshot{
		LineCounts: map[models.Thread]int{th("A"): 3, th("B"): 5},
	})

	want := []graph.Arc{{To: 1, Weight: 3}, {To: 2, Weight: 5}}
	if diff := cmp.Diff(want, g.Out(graph.Root)); diff != "" {
		t.Errorf("root arcs mismatch (-want +got):\n%s", diff)
	}

	got := mustSeries(t, g)
	if diff := cmp.Diff([]models.Series{{th("A")}, {th("B")}}, got); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_ChainWeightsUseHeadLineCount(t *testing.T) {
	g := mustBuild(t, &models.Snapshot{
		Edges:      []models.Edge{edge("A", "B"), edge("B", "C")},
		LineCounts: map[models.Thread]int{th("A"): 4, th("B"): 2, th("C"): 1},
	})

	if g.Len() != 4 || g.EdgeCount() != 3 {
		t.Fatalf("Len() = %d, EdgeCount() = %d; want 4, 3", g.Len(), g.EdgeCount())
	}

	a, _ := g.Index(th("A"))
	b, _ := g.Index(th("B"))

	if diff := cmp.Diff([]graph.Arc{{To: a, Weight: 4}}, g.Out(graph.Root)); diff != "" {
		t.Errorf("root arcs mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]graph.Arc{{To: b + 1, Weight: 1}}, g.Out(b)); diff != "" {
		t.Errorf("B arcs mismatch (-want +got):\n%s", diff)
	}

	got := mustSeries(t, g)
	if diff := cmp.Diff([]models.Series{{th("A"), th("B"), th("C")}}, got); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_IndicesSortedByScriptThenName(t *testing.T) {
	g := mustBuild(t, &models.Snapshot{
		Threads: []models.Thread{{ScriptID: 2, Name: "a"}, {ScriptID: 1, Name: "b"}, {ScriptID: 1, Name: "a"}},
	})

	want := []models.Thread{{ScriptID: 1, Name: "a"}, {ScriptID: 1, Name: "b"}, {ScriptID: 2, Name: "a"}}
	for i, tt := range want {
		if got := g.Thread(i + 1); got != tt {
			t.Errorf("Thread(%d) = %v, want %v", i+1, got, tt)
		}
	}
}

func TestBuild_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		snap    *models.Snapshot
		wantErr string
	}{
		{
			name:    "duplicate edge",
			snap:    &models.Snapshot{Edges: []models.Edge{edge("A", "B"), edge("A", "B")}},
			wantErr: "duplicate dependency 1:A -> 1:B",
		},
		{
			name: "cycle without top entry",
			snap: &models.Snapshot{
				Edges:      []models.Edge{edge("A", "B"), edge("B", "A")},
				LineCounts: map[models.Thread]int{th("C"): 1},
			},
			wantErr: "unreachable from root: 1:A, 1:B",
		},
		{
			name:    "negative line count",
			snap:    &models.Snapshot{LineCounts: map[models.Thread]int{th("A"): -1}},
			wantErr: "out of range",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := graph.Build(tc.snap)
			if !errors.Is(err, models.ErrDataIntegrity) {
				t.Fatalf("expected ErrDataIntegrity, got %v", err)
			}

			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestShortestPathTree_EqualDistanceTiebreak(t *testing.T) {
	g := mustBuild(t, &models.Snapshot{
		Edges: []models.Edge{edge("A", "B"), edge("A", "C"), edge("B", "D"), edge("C", "D")},
		LineCounts: map[models.Thread]int{
			th("A"): 1, th("B"): 1, th("C"): 1, th("D"): 1,
		},
	})

	pred, err := graph.ShortestPathTree(g)
	if err != nil {
		t.Fatalf("ShortestPathTree() error: %v", err)
	}

	if diff := cmp.Diff([]int{0, 0, 1, 1, 2}, pred); diff != "" {
		t.Errorf("pred mismatch (-want +got):\n%s", diff)
	}

	want := []models.Series{{th("A"), th("C")}, {th("A"), th("B"), th("D")}}
	if diff := cmp.Diff(want, graph.ExtractSeries(g, pred)); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
}

func TestShortestPathTree_PrefersCheaperRoute(t *testing.T) {
	g := mustBuild(t, &models.Snapshot{
		Edges:      []models.Edge{edge("A", "B"), edge("A", "C"), edge("B", "C")},
		LineCounts: map[models.Thread]int{th("A"): 1, th("B"): 9, th("C"): 2},
	})

	pred, err := graph.ShortestPathTree(g)
	if err != nil {
		t.Fatalf("ShortestPathTree() error: %v", err)
	}

	a, _ := g.Index(th("A"))
	c, _ := g.Index(th("C"))

	if pred[c] != a {
		t.Errorf("pred[C] = %d, want A (%d)", pred[c], a)
	}
}

func TestShortestPathTree_OverflowSkipped(t *testing.T) {
	t.Run("alternative route", func(t *testing.T) {
		g := mustBuild(t, &models.Snapshot{
			Edges:      []models.Edge{edge("A", "B"), edge("B", "C"), edge("A", "C")},
			LineCounts: map[models.Thread]int{th("A"): 1, th("B"): math.MaxUint32 - 1, th("C"): 5},
		})

		pred, err := graph.ShortestPathTree(g)
		if err != nil {
			t.Fatalf("ShortestPathTree() error: %v", err)
		}

		a, _ := g.Index(th("A"))
		c, _ := g.Index(th("C"))

		if pred[c] != a {
			t.Errorf("pred[C] = %d, want %d", pred[c], a)
		}
	})

	t.Run("only route overflows", func(t *testing.T) {
		g := mustBuild(t, &models.Snapshot{
			Edges:      []models.Edge{edge("A", "B"), edge("B", "C")},
			LineCounts: map[models.Thread]int{th("A"): 1, th("B"): math.MaxUint32 - 1, th("C"): 5},
		})

		_, err := graph.ShortestPathTree(g)
		if !errors.Is(err, models.ErrDataIntegrity) {
			t.Fatalf("expected ErrDataIntegrity, got %v", err)
		}
	})
}

func TestShortestPathTree_FormsTree(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	counts := map[models.Thread]int{}

	var edges []models.Edge

	for i, n := range names {
		counts[th(n)] = (i*7)%5 + 1
		for j := i + 1; j < len(names); j++ {
			if (i+j)%3 == 0 {
				edges = append(edges, edge(n, names[j]))
			}
		}
	}

	g := mustBuild(t, &models.Snapshot{Edges: edges, LineCounts: counts})

	pred, err := graph.ShortestPathTree(g)
	if err != nil {
		t.Fatalf("ShortestPathTree() error: %v", err)
	}

	if pred[graph.Root] != graph.Root {
		t.Fatalf("pred[root] = %d, want root", pred[graph.Root])
	}

	for v := 1; v < g.Len(); v++ {
		steps, u := 0, v
		for u != graph.Root {
			u = pred[u]
			steps++

			if steps > g.Len() {
				t.Fatalf("node %d does not reach root within %d steps", v, g.Len())
			}
		}
	}
}

func TestExtractSeries_Idempotent(t *testing.T) {
	g := mustBuild(t, &models.Snapshot{
		Edges:      []models.Edge{edge("A", "B"), edge("A", "C"), edge("C", "D"), edge("E", "D")},
		LineCounts: map[models.Thread]int{th("A"): 2, th("B"): 3, th("C"): 1, th("D"): 4, th("E"): 1},
	})

	pred, err := graph.ShortestPathTree(g)
	if err != nil {
		t.Fatalf("ShortestPathTree() error: %v", err)
	}

	first := graph.ExtractSeries(g, pred)
	second := graph.ExtractSeries(g, pred)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated extraction differs (-first +second):\n%s", diff)
	}

	if len(first) != len(graph.Leaves(pred)) {
		t.Errorf("got %d series for %d leaves", len(first), len(graph.Leaves(pred)))
	}
}
