package graph

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/persistorai/threadline/internal/models"
)

type queueItem struct {
	dist uint32
	node int
}

// distQueue is a min-heap ordered by (dist, node).
type distQueue []queueItem

func (q distQueue) Len() int { return len(q) }

func (q distQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}

	return q[i].node < q[j].node
}

func (q distQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *distQueue) Push(x any) { *q = append(*q, x.(queueItem)) } //nolint:forcetypeassert // heap only receives queueItem.

func (q *distQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]

	return it
}

// ShortestPathTree runs Dijkstra from the root and returns the predecessor of
// every node. pred[Root] == Root marks the end of every path.
//
// A relaxation whose distance would overflow is skipped. Any node left
// without a finite distance or a predecessor is reported as a data
// integrity violation.
func ShortestPathTree(g *Graph) ([]int, error) {
	n := g.Len()
	dist := make([]uint32, n)
	reached := make([]bool, n)
	done := make([]bool, n)
	pred := make([]int, n)

	for i := range pred {
		pred[i] = -1
	}

	reached[Root] = true
	q := &distQueue{{dist: 0, node: Root}}

	for q.Len() > 0 {
		it := heap.Pop(q).(queueItem) //nolint:forcetypeassert // heap only holds queueItem.
		u := it.node

		if done[u] {
			continue
		}

		done[u] = true

		for _, a := range g.out[u] {
			if dist[u] > math.MaxUint32-a.Weight {
				continue
			}

			alt := dist[u] + a.Weight
			if !reached[a.To] || alt < dist[a.To] {
				reached[a.To] = true
				dist[a.To] = alt
				pred[a.To] = u
				heap.Push(q, queueItem{dist: alt, node: a.To})
			}
		}
	}

	for v := 1; v < n; v++ {
		if !reached[v] || pred[v] < 0 {
			return nil, fmt.Errorf("%w: no shortest path to thread %s", models.ErrDataIntegrity, g.threads[v])
		}
	}

	pred[Root] = Root

	return pred, nil
}
