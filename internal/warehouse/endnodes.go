package warehouse

import (
	"sort"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// CatalogView is the slice of graph.Catalog the cell finder needs.
type CatalogView interface {
	Nodes() []domain.Node
}

// Cells implements staging.EndNodeFinder against a graph catalog: every
// node tagged CellTypeEndNode is a candidate, filtered to the requested
// pallet type and gated by the catalog's own hasBox/blocked flags — the
// same externally-driven signals the pathfinder reads, so a cell occupied
// by a stored pallet or marked down stops being offered without the
// scheduler needing its own availability ledger.
type Cells struct {
	Catalog    CatalogView
	PalletType func(domain.Node) string
}

// NewCells creates a cell finder. If palletType is nil, every end node is
// treated as able to hold any pallet type (the demo layout's single-type
// case); a real deployment supplies a function reading a cell-type tag.
func NewCells(catalog CatalogView, palletType func(domain.Node) string) *Cells {
	if palletType == nil {
		palletType = func(domain.Node) string { return "" }
	}
	return &Cells{Catalog: catalog, PalletType: palletType}
}

func (c *Cells) available(n domain.Node, floor, wantPalletType string) bool {
	if n.FloorID != floor || n.CellType != CellTypeEndNode {
		return false
	}
	if n.Blocked || n.HasBox {
		return false
	}
	if wantPalletType == "" {
		return true
	}
	pt := c.PalletType(n)
	return pt == "" || pt == wantPalletType
}

// FirstAvailable returns any currently-available end node for palletType on
// floor; ties broken row-then-column ascending for determinism.
func (c *Cells) FirstAvailable(floor, palletType string) (domain.Node, bool) {
	var candidates []domain.Node
	for _, n := range c.Catalog.Nodes() {
		if c.available(n, floor, palletType) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return domain.Node{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Row != candidates[j].Row {
			return candidates[i].Row < candidates[j].Row
		}
		return candidates[i].Col < candidates[j].Col
	})
	return candidates[0], true
}

// InRow returns every available end node for palletType in (floor, row),
// ordered column-ascending (left to right), per §4.10 step 4.
func (c *Cells) InRow(floor string, row int, palletType string) []domain.Node {
	var out []domain.Node
	for _, n := range c.Catalog.Nodes() {
		if n.Row != row {
			continue
		}
		if c.available(n, floor, palletType) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Col < out[j].Col })
	return out
}
