package graph

import (
	"container/heap"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// pqItem is a single open-set entry: the node plus its running g/f scores.
// The priority queue orders by f-score, tie-broken by h-score (§4.1).
type pqItem struct {
	node  string
	g     float64
	f     float64
	h     float64
	index int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].h < pq[j].h
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// MetricAStar finds the shortest path from start to goal by Euclidean edge
// length, for AMR vehicles which are not constrained to the topological
// row/corridor model. Returns nil if no path exists.
func (c *Catalog) MetricAStar(start, goal string) *domain.Path {
	startNode, ok := c.Node(start)
	if !ok {
		return nil
	}
	goalNode, ok := c.Node(goal)
	if !ok {
		return nil
	}
	if start == goal {
		return &domain.Path{}
	}

	open := &priorityQueue{}
	heap.Init(open)
	heap.Push(open, &pqItem{node: start, g: 0, f: startNode.EuclideanDistance(goalNode), h: startNode.EuclideanDistance(goalNode)})

	cameFrom := make(map[string]string)
	bestG := map[string]float64{start: 0}
	closed := make(map[string]bool)

	for open.Len() > 0 {
		current := heap.Pop(open).(*pqItem)
		if closed[current.node] {
			continue
		}
		if current.node == goal {
			return buildMetricPath(cameFrom, start, goal, c)
		}
		closed[current.node] = true

		currentNode, _ := c.Node(current.node)
		for _, next := range c.Neighbors(current.node) {
			nextNode, ok := c.Node(next)
			if !ok || !nextNode.Passable() {
				continue
			}
			tentativeG := current.g + currentNode.EuclideanDistance(nextNode)
			if existing, seen := bestG[next]; seen && tentativeG >= existing {
				continue
			}
			bestG[next] = tentativeG
			cameFrom[next] = current.node
			h := nextNode.EuclideanDistance(goalNode)
			heap.Push(open, &pqItem{node: next, g: tentativeG, f: tentativeG + h, h: h})
		}
	}
	return nil
}

func buildMetricPath(cameFrom map[string]string, start, goal string, c *Catalog) *domain.Path {
	seq := []string{goal}
	cur := goal
	for cur != start {
		prev, ok := cameFrom[cur]
		if !ok {
			return nil
		}
		seq = append(seq, prev)
		cur = prev
	}
	// reverse
	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}

	steps := make([]domain.Step, 0, len(seq)-1)
	for i := 1; i < len(seq); i++ {
		a, _ := c.Node(seq[i-1])
		b, _ := c.Node(seq[i])
		steps = append(steps, domain.Step{
			Node:      seq[i],
			Direction: domain.InferDirection(a, b),
		})
	}
	return &domain.Path{Steps: steps, TotalStep: len(steps)}
}
