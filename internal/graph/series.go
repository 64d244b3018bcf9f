package graph

import "github.com/persistorai/threadline/internal/models"

// Leaves returns, in ascending order, every non-root node that is no other node's predecessor.
func Leaves(pred []int) []int {
	parent := make([]bool, len(pred))
	for v := 1; v < len(pred); v++ {
		parent[pred[v]] = true
	}

	var leaves []int

	for v := 1; v < len(pred); v++ {
		if !parent[v] {
			leaves = append(leaves, v)
		}
	}

	return leaves
}

// PathTo walks predecessors from v back to the root and returns the
// root-to-v path, root excluded. The walk is bounded by len(pred) steps.
func PathTo(pred []int, v int) []int {
	var path []int

	for steps := 0; v != Root && steps < len(pred); steps++ {
		path = append(path, v)
		v = pred[v]
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path
}

// ExtractSeries derives one series per leaf of the shortest-path tree, in
// ascending leaf order. It is deterministic for a given predecessor array.
func ExtractSeries(g *Graph, pred []int) []models.Series {
	leaves := Leaves(pred)
	out := make([]models.Series, 0, len(leaves))

	for _, leaf := range leaves {
		out = append(out, g.Threads(PathTo(pred, leaf)))
	}

	return out
}

// ShortestPathSeries builds the shortest-path tree of g and extracts its series.
func ShortestPathSeries(g *Graph) ([]models.Series, error) {
	pred, err := ShortestPathTree(g)
	if err != nil {
		return nil, err
	}

	return ExtractSeries(g, pred), nil
}
