package graph

import (
	"slices"

	"github.com/persistorai/threadline/internal/models"
)

// frame is one level of the explicit depth-first stack.
type frame struct {
	node    int
	pending []int
}

// MaxLeafPaths walks adj depth-first from start, visiting the unvisited
// neighbours of each node in ascending order of their own unvisited
// neighbour count, so apparent dead ends are explored first. It returns
// every root-to-leaf path of the resulting spanning tree, start excluded.
func MaxLeafPaths(adj [][]int, start int) [][]int {
	if start < 0 || start >= len(adj) {
		return nil
	}

	visited := make([]bool, len(adj))
	visited[start] = true

	unvisitedDegree := func(v int) int {
		n := 0
		for _, w := range adj[v] {
			if !visited[w] {
				n++
			}
		}

		return n
	}

	order := func(v int) []int {
		var next []int

		for _, w := range adj[v] {
			if !visited[w] && !slices.Contains(next, w) {
				next = append(next, w)
			}
		}

		slices.SortStableFunc(next, func(a, b int) int {
			return unvisitedDegree(a) - unvisitedDegree(b)
		})

		return next
	}

	var paths [][]int

	path := []int{}
	stack := []frame{{node: start, pending: order(start)}}
	children := []int{0}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		next := -1

		for len(top.pending) > 0 {
			w := top.pending[0]
			top.pending = top.pending[1:]

			if !visited[w] {
				next = w
				break
			}
		}

		if next >= 0 {
			visited[next] = true
			children[len(children)-1]++
			path = append(path, next)
			stack = append(stack, frame{node: next, pending: order(next)})
			children = append(children, 0)

			continue
		}

		if len(stack) > 1 && children[len(children)-1] == 0 {
			paths = append(paths, slices.Clone(path))
		}

		stack = stack[:len(stack)-1]
		children = children[:len(children)-1]

		if len(path) > 0 {
			path = path[:len(path)-1]
		}
	}

	return paths
}

// MaxLeafSeries runs MaxLeafPaths from the root of g and maps the paths to series.
func MaxLeafSeries(g *Graph) []models.Series {
	paths := MaxLeafPaths(g.Adjacency(), Root)
	out := make([]models.Series, 0, len(paths))

	for _, p := range paths {
		out = append(out, g.Threads(p))
	}

	return out
}
