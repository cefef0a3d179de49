// Package warehouse provides the floor-graph seed data and the end-node
// cell catalog adapter a real deployment would instead source from a
// WMS/DB. Seed builds a demo multi-floor grid shaped like a warehouse aisle
// layout; Cells wraps graph.Catalog to satisfy staging.EndNodeFinder
// against it.
package warehouse

import (
	"fmt"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// CellTypeEndNode marks a node as a storage-cell end node reachable by the
// staging scheduler; CellTypeAisle marks a plain travel node.
const (
	CellTypeEndNode = "end_node"
	CellTypeAisle   = "aisle"
)

// Layout parameterizes the demo grid generated by Seed.
type Layout struct {
	Floors    []string
	Rows      int
	Cols      int
	EndCols   int // left-most columns on each row reserved as end-node cells
	PalletType string
}

// DefaultLayout is a small but non-trivial grid: 2 floors, 6 rows, 10
// columns, with the first 2 columns of each row reserved as end-node cells.
func DefaultLayout() Layout {
	return Layout{
		Floors:     []string{"F1", "F2"},
		Rows:       6,
		Cols:       10,
		EndCols:    2,
		PalletType: "standard",
	}
}

// Seed builds the node/edge lists for a rectangular grid per floor: every
// node connects to its 4-neighbours on the same floor, plus a single
// lifter-entry node per floor at (row 0, col EndCols) used by
// mission.EntryResolver.
func Seed(layout Layout) (nodes []domain.Node, edges []domain.Edge, entryNodes map[string]string) {
	entryNodes = make(map[string]string, len(layout.Floors))

	for _, floor := range layout.Floors {
		for row := 0; row < layout.Rows; row++ {
			for col := 0; col < layout.Cols; col++ {
				qr := nodeID(floor, row, col)
				cellType := CellTypeAisle
				if col < layout.EndCols {
					cellType = CellTypeEndNode
				}
				nodes = append(nodes, domain.Node{
					QR:            qr,
					Col:           col,
					Row:           row,
					FloorID:       floor,
					X:             float64(col),
					Y:             float64(row),
					DirectionType: "",
					CellType:      cellType,
				})
			}
		}

		for row := 0; row < layout.Rows; row++ {
			for col := 0; col < layout.Cols; col++ {
				from := nodeID(floor, row, col)
				if col+1 < layout.Cols {
					edges = append(edges, domain.Edge{From: from, To: nodeID(floor, row, col+1), Distance: 1})
				}
				if row+1 < layout.Rows {
					edges = append(edges, domain.Edge{From: from, To: nodeID(floor, row+1, col), Distance: 1})
				}
			}
		}

		entryNodes[floor] = nodeID(floor, 0, layout.EndCols)
	}

	return nodes, edges, entryNodes
}

func nodeID(floor string, row, col int) string {
	return fmt.Sprintf("%s-R%02d-C%02d", floor, row, col)
}
