// Package graph turns thread dependency facts into a weighted directed graph
// rooted at a synthetic node and linearizes it into translation series.
package graph

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/persistorai/threadline/internal/models"
)

// Root is the index of the synthetic root node.
const Root = 0

// Arc is a weighted outgoing edge.
type Arc struct {
	To     int
	Weight uint32
}

// Graph is a directed graph over thread indices 1..N plus the synthetic root 0.
// It is immutable once built.
type Graph struct {
	threads []models.Thread // index 0 is the zero Thread standing in for the root
	index   map[models.Thread]int
	out     [][]Arc
	edges   int
}

// Build assigns stable node indices to every thread in the snapshot, adds a
// tail→head edge weighted by the head's total line count for every
// dependency fact, and connects the root to every top thread.
//
// A duplicate dependency, or a thread the root cannot reach, is a data
// integrity violation.
func Build(snap *models.Snapshot) (*Graph, error) { //nolint:gocognit,cyclop // single pass per build phase.
	seen := make(map[models.Thread]struct{}, len(snap.Threads))

	var threads []models.Thread

	add := func(t models.Thread) {
		if _, ok := seen[t]; ok {
			return
		}

		seen[t] = struct{}{}
		threads = append(threads, t)
	}

	for _, t := range snap.Threads {
		add(t)
	}

	for _, e := range snap.Edges {
		add(e.Tail)
		add(e.Head)
	}

	for t := range snap.LineCounts {
		add(t)
	}

	slices.SortFunc(threads, models.Thread.Compare)

	g := &Graph{
		threads: make([]models.Thread, 0, len(threads)+1),
		index:   make(map[models.Thread]int, len(threads)),
		out:     make([][]Arc, len(threads)+1),
	}

	g.threads = append(g.threads, models.Thread{})
	for i, t := range threads {
		g.threads = append(g.threads, t)
		g.index[t] = i + 1
	}

	weightOf := func(t models.Thread) (uint32, error) {
		n := snap.LineCounts[t]
		if n < 0 || n > math.MaxUint32 {
			return 0, fmt.Errorf("%w: line count %d for thread %s out of range", models.ErrDataIntegrity, n, t)
		}

		return uint32(n), nil //nolint:gosec // range checked above.
	}

	hasTail := make([]bool, len(g.threads))
	pairs := make(map[[2]int]struct{}, len(snap.Edges))

	for _, e := range snap.Edges {
		tail, head := g.index[e.Tail], g.index[e.Head]

		key := [2]int{tail, head}
		if _, dup := pairs[key]; dup {
			return nil, fmt.Errorf("%w: duplicate dependency %s -> %s", models.ErrDataIntegrity, e.Tail, e.Head)
		}

		pairs[key] = struct{}{}

		w, err := weightOf(e.Head)
		if err != nil {
			return nil, err
		}

		g.out[tail] = append(g.out[tail], Arc{To: head, Weight: w})
		hasTail[head] = true
		g.edges++
	}

	for i := 1; i < len(g.threads); i++ {
		if hasTail[i] {
			continue
		}

		w, err := weightOf(g.threads[i])
		if err != nil {
			return nil, err
		}

		g.out[Root] = append(g.out[Root], Arc{To: i, Weight: w})
		g.edges++
	}

	if err := g.checkReachable(); err != nil {
		return nil, err
	}

	return g, nil
}

// checkReachable rejects any node the root cannot reach, such as a cycle with no top entry.
func (g *Graph) checkReachable() error {
	visited := make([]bool, len(g.threads))
	visited[Root] = true
	stack := []int{Root}

	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, a := range g.out[u] {
			if !visited[a.To] {
				visited[a.To] = true
				stack = append(stack, a.To)
			}
		}
	}

	var orphans []string

	for i := 1; i < len(visited); i++ {
		if !visited[i] {
			orphans = append(orphans, g.threads[i].String())
		}
	}

	if len(orphans) > 0 {
		return fmt.Errorf("%w: threads unreachable from root: %s", models.ErrDataIntegrity, strings.Join(orphans, ", "))
	}

	return nil
}

// Len returns the number of nodes including the root.
func (g *Graph) Len() int { return len(g.threads) }

// EdgeCount returns the number of edges including root edges.
func (g *Graph) EdgeCount() int { return g.edges }

// Thread returns the thread at node index i. The root maps to the zero Thread.
func (g *Graph) Thread(i int) models.Thread { return g.threads[i] }

// Index returns the node index of t.
func (g *Graph) Index(t models.Thread) (int, bool) {
	i, ok := g.index[t]
	return i, ok
}

// Out returns the outgoing arcs of node u. Callers must not modify the slice.
func (g *Graph) Out(u int) []Arc { return g.out[u] }

// Adjacency returns the unweighted tail→heads view of the graph, root included.
func (g *Graph) Adjacency() [][]int {
	adj := make([][]int, len(g.out))
	for u, arcs := range g.out {
		adj[u] = make([]int, len(arcs))
		for i, a := range arcs {
			adj[u][i] = a.To
		}
	}

	return adj
}

// Threads maps node indices to thread keys, dropping the root.
func (g *Graph) Threads(path []int) models.Series {
	out := make(models.Series, 0, len(path))
	for _, v := range path {
		if v == Root {
			continue
		}

		out = append(out, g.threads[v])
	}

	return out
}
