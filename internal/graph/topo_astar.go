package graph

import (
	"container/heap"
	"math"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// Penalty weights for the topological weighted A* used by shuttles (§4.1).
const (
	penaltySoftAvoid = 500.0

	penaltyTrafficOpposedBase        = 150.0
	penaltyTrafficOpposedEmptyVsCarry = 30.0
	penaltyTrafficOpposedCarryVsCarry = 50.0
	penaltyTrafficWithEmpty           = 5.0
	penaltyTrafficWithCarry           = 8.0
	penaltyTrafficCrossing            = 15.0

	penaltyCorridorAgainst           = 180.0
	penaltyCorridorAgainstHighTraffic = 250.0
	penaltyCorridorWith              = 12.0
	penaltyCorridorWithHighTraffic   = 25.0
	penaltyCorridorCrossing          = 35.0
	penaltyCorridorCrossingHighTraffic = 60.0
)

// OccupationView is the read-only slice of C2 the pathfinder consumes.
type OccupationView interface {
	// OwnerOf returns the current owner of a node, or "" if unoccupied.
	OwnerOf(node string) string
}

// TrafficView is the read-only slice of C4 the pathfinder consumes.
type TrafficView interface {
	// DirectionHistogram returns, for a node, the count of active-path
	// traversals per direction (1..4).
	DirectionHistogram(node string) map[int]int
	// IsCorridor reports whether a node qualifies as a corridor, and
	// whether it is additionally high-traffic.
	IsCorridor(node string) (corridor bool, highTraffic bool)
}

// RowLockView is the read-only slice of C6 the pathfinder consumes.
type RowLockView interface {
	// Allowed reports whether entering node from the given direction is
	// permitted by the current one-way row lock, if any.
	Allowed(node string, direction int) bool
}

// Request parameterizes a single topological pathfinding call.
type Request struct {
	Start      string
	Goal       string
	IsCarrying bool
	Avoid      map[string]struct{}
	// FinalAction, if non-empty, is annotated on the path's last edge only.
	FinalAction string
}

// topoItem is the open-set entry for the weighted topological search.
type topoItem struct {
	node  string
	g     float64
	f     float64
	index int
}

type topoPQ []*topoItem

func (pq topoPQ) Len() int            { return len(pq) }
func (pq topoPQ) Less(i, j int) bool  { return pq[i].f < pq[j].f }
func (pq topoPQ) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *topoPQ) Push(x any) {
	item := x.(*topoItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *topoPQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// TopoPathfinder runs the shuttle topological A* against a catalog plus the
// three coordination views it needs penalty input from.
type TopoPathfinder struct {
	Catalog    *Catalog
	Occupation OccupationView
	Traffic    TrafficView
	RowLocks   RowLockView
}

// FindPath runs the full three-tier fallback chain described in §4.1:
// soft-avoid+traffic+corridor, then drop the avoid list, then direct base
// A*. Returns nil if every tier fails.
func (p *TopoPathfinder) FindPath(req Request) *domain.Path {
	if path := p.search(req, true); path != nil {
		return path
	}
	relaxed := req
	relaxed.Avoid = nil
	if path := p.search(relaxed, true); path != nil {
		return path
	}
	direct := relaxed
	if path := p.search(direct, false); path != nil {
		return path
	}
	return nil
}

// search runs one A* pass; applyPenalties=false yields plain base-cost A*
// (fallback tier 3), ignoring occupation/traffic/corridor entirely but
// still honoring row one-way exclusion, since that is a hard constraint,
// not a soft penalty.
func (p *TopoPathfinder) search(req Request, applyPenalties bool) *domain.Path {
	if req.Start == req.Goal {
		return &domain.Path{}
	}
	if _, ok := p.Catalog.Node(req.Start); !ok {
		return nil
	}
	goalNode, ok := p.Catalog.Node(req.Goal)
	if !ok {
		return nil
	}

	open := &topoPQ{}
	heap.Init(open)
	heap.Push(open, &topoItem{node: req.Start, g: 0, f: p.heuristic(req.Start, goalNode)})

	cameFrom := make(map[string]string)
	cameDir := make(map[string]int)
	bestG := map[string]float64{req.Start: 0}
	closed := make(map[string]bool)

	for open.Len() > 0 {
		current := heap.Pop(open).(*topoItem)
		if closed[current.node] {
			continue
		}
		if current.node == req.Goal {
			return p.buildPath(cameFrom, cameDir, req)
		}
		closed[current.node] = true

		currentNode, _ := p.Catalog.Node(current.node)
		for _, next := range p.Catalog.Neighbors(current.node) {
			nextNode, ok := p.Catalog.Node(next)
			if !ok || !nextNode.Passable() {
				continue
			}
			dir := domain.InferDirection(currentNode, nextNode)

			if p.RowLocks != nil && !p.RowLocks.Allowed(next, dir) {
				continue // row one-way: infinite cost, edge excluded
			}

			cost := 1.0
			if applyPenalties {
				if _, avoided := req.Avoid[next]; avoided {
					continue // hard avoid, not soft, while the avoid tier is active
				}
				cost += p.occupationPenalty(next)
				cost += p.trafficPenalty(next, dir, req.IsCarrying)
				cost += p.corridorPenalty(next, dir, req.IsCarrying)
			}

			tentativeG := current.g + cost
			if existing, seen := bestG[next]; seen && tentativeG >= existing {
				continue
			}
			bestG[next] = tentativeG
			cameFrom[next] = current.node
			cameDir[next] = dir
			heap.Push(open, &topoItem{node: next, g: tentativeG, f: tentativeG + p.heuristic(next, goalNode)})
		}
	}
	return nil
}

func (p *TopoPathfinder) heuristic(node string, goal domain.Node) float64 {
	n, ok := p.Catalog.Node(node)
	if !ok {
		return math.Inf(1)
	}
	return float64(n.ManhattanDistance(goal))
}

func (p *TopoPathfinder) occupationPenalty(node string) float64 {
	if p.Occupation == nil {
		return 0
	}
	if p.Occupation.OwnerOf(node) != "" {
		return penaltySoftAvoid
	}
	return 0
}

// trafficPenalty scores a node against the active-path direction histogram
// per §4.1: opposite-direction traffic is penalized heaviest, with-traffic
// gives a small bonus, and perpendicular crossing is a mid penalty.
func (p *TopoPathfinder) trafficPenalty(node string, dir int, carrying bool) float64 {
	if p.Traffic == nil {
		return 0
	}
	hist := p.Traffic.DirectionHistogram(node)
	if len(hist) == 0 {
		return 0
	}

	opposite := oppositeDirection(dir)
	var penalty float64
	for otherDir, count := range hist {
		if count == 0 {
			continue
		}
		switch {
		case otherDir == opposite:
			penalty += penaltyTrafficOpposedBase
			if carrying {
				penalty += penaltyTrafficOpposedCarryVsCarry
			} else {
				penalty += penaltyTrafficOpposedEmptyVsCarry
			}
		case otherDir == dir:
			if carrying {
				penalty -= penaltyTrafficWithCarry
			} else {
				penalty -= penaltyTrafficWithEmpty
			}
		default:
			penalty += penaltyTrafficCrossing
		}
	}
	if penalty < 0 {
		penalty = 0
	}
	return penalty
}

// corridorPenalty applies the dominant-direction corridor penalty table.
func (p *TopoPathfinder) corridorPenalty(node string, dir int, carrying bool) float64 {
	if p.Traffic == nil {
		return 0
	}
	isCorridor, highTraffic := p.Traffic.IsCorridor(node)
	if !isCorridor {
		return 0
	}
	hist := p.Traffic.DirectionHistogram(node)
	dominant := dominantDirection(hist)
	if dominant == 0 {
		return 0
	}

	switch {
	case dir == dominant:
		if highTraffic {
			return penaltyCorridorWithHighTraffic
		}
		return penaltyCorridorWith
	case dir == oppositeDirection(dominant):
		if highTraffic {
			return penaltyCorridorAgainstHighTraffic
		}
		return penaltyCorridorAgainst
	default:
		if highTraffic {
			return penaltyCorridorCrossingHighTraffic
		}
		return penaltyCorridorCrossing
	}
}

func oppositeDirection(dir int) int {
	switch dir {
	case 1:
		return 3
	case 2:
		return 4
	case 3:
		return 1
	case 4:
		return 2
	default:
		return 0
	}
}

func dominantDirection(hist map[int]int) int {
	total := 0
	best, bestCount := 0, 0
	for dir, count := range hist {
		total += count
		if count > bestCount {
			best, bestCount = dir, count
		}
	}
	if total == 0 || float64(bestCount)/float64(total) < 0.70 {
		return 0
	}
	return best
}

func (p *TopoPathfinder) buildPath(cameFrom map[string]string, cameDir map[string]int, req Request) *domain.Path {
	seq := []string{req.Goal}
	cur := req.Goal
	for cur != req.Start {
		prev, ok := cameFrom[cur]
		if !ok {
			return nil
		}
		seq = append(seq, prev)
		cur = prev
	}
	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}

	steps := make([]domain.Step, 0, len(seq)-1)
	for i := 1; i < len(seq); i++ {
		action := ""
		if i == len(seq)-1 {
			action = req.FinalAction
		}
		steps = append(steps, domain.Step{
			Node:      seq[i],
			Direction: cameDir[seq[i]],
			Action:    action,
		})
	}
	return &domain.Path{Steps: steps, TotalStep: len(steps)}
}
