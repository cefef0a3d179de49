package rowlock

import (
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
)

// batchAssignment is a row assignment pinned to a pickup batch for a bounded
// window (§4.6: persisted for 1h).
type batchAssignment struct {
	floor     string
	row       int
	expiresAt time.Time
}

// Coordination assigns every staged task belonging to a pickup batch to the
// same target row, so concurrent shuttles converge on one aisle (§4.6).
type Coordination struct {
	mu    sync.Mutex
	byBatch map[string]batchAssignment
	now   func() time.Time
}

// NewCoordination creates an empty row-coordination store.
func NewCoordination() *Coordination {
	return &Coordination{
		byBatch: make(map[string]batchAssignment),
		now:     time.Now,
	}
}

// AssignRowForBatch returns the row already assigned to batchID if one is
// live; otherwise it assigns endNodeRow/floor to the batch, persists it for
// ttl (defaulting to constants.RowBatchTTL), and returns it.
func (c *Coordination) AssignRowForBatch(batchID string, floor string, endNodeRow int, ttl time.Duration) (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = constants.RowBatchTTL
	}

	now := c.now()
	if existing, ok := c.byBatch[batchID]; ok && now.Before(existing.expiresAt) {
		return existing.floor, existing.row
	}

	c.byBatch[batchID] = batchAssignment{
		floor:     floor,
		row:       endNodeRow,
		expiresAt: now.Add(ttl),
	}
	return floor, endNodeRow
}

// RowOf returns the row currently assigned to batchID, if live.
func (c *Coordination) RowOf(batchID string) (floor string, row int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, found := c.byBatch[batchID]
	if !found || !c.now().Before(a.expiresAt) {
		return "", 0, false
	}
	return a.floor, a.row, true
}
