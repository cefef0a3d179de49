// Package graph implements the floor graph catalog and the two pathfinding
// modes used by the controller: metric A* for AMRs and a weighted
// topological A* for shuttles (§4.1 of the design).
package graph

import (
	"sync"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// Catalog holds the graph for a single floor (or the whole building, keyed
// by node id), loaded once at startup and read-only thereafter — only the
// per-node Blocked/HasBox flags are mutated, by external observation.
type Catalog struct {
	mu        sync.RWMutex
	nodes     map[string]domain.Node
	neighbors map[string][]string
}

// NewCatalog creates an empty catalog; callers populate it via Load.
func NewCatalog() *Catalog {
	return &Catalog{
		nodes:     make(map[string]domain.Node),
		neighbors: make(map[string][]string),
	}
}

// Load replaces the catalog contents with the given nodes and edges. It is
// intended to run once at process startup, before any pathfinding begins.
func (c *Catalog) Load(nodes []domain.Node, edges []domain.Edge) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodes = make(map[string]domain.Node, len(nodes))
	for _, n := range nodes {
		c.nodes[n.QR] = n
	}

	c.neighbors = make(map[string][]string, len(nodes))
	for _, e := range edges {
		c.neighbors[e.From] = append(c.neighbors[e.From], e.To)
		c.neighbors[e.To] = append(c.neighbors[e.To], e.From)
	}
}

// Node returns a node by id.
func (c *Catalog) Node(qr string) (domain.Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[qr]
	return n, ok
}

// Neighbors returns the adjacent node ids of qr.
func (c *Catalog) Neighbors(qr string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.neighbors[qr]))
	copy(out, c.neighbors[qr])
	return out
}

// SetBlocked updates the blocked flag for a node, observed externally (map
// sensor/WMS feed), never a controller decision.
func (c *Catalog) SetBlocked(qr string, blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[qr]; ok {
		n.Blocked = blocked
		c.nodes[qr] = n
	}
}

// SetHasBox updates the hasBox flag for a node.
func (c *Catalog) SetHasBox(qr string, hasBox bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[qr]; ok {
		n.HasBox = hasBox
		c.nodes[qr] = n
	}
}

// RowOf returns the row a node belongs to, used by row-lock assignment
// (§4.6) and the staging scheduler (§4.10).
func (c *Catalog) RowOf(qr string) (floor string, row int, ok bool) {
	n, found := c.Node(qr)
	if !found {
		return "", 0, false
	}
	return n.FloorID, n.Row, true
}

// Nodes returns a snapshot of every node in the catalog, for collaborators
// that need to enumerate cells (e.g. the staging scheduler's end-node
// catalog adapter) rather than look up a single id.
func (c *Catalog) Nodes() []domain.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}
