// Package rowlock implements row direction locking and row coordination
// (C6): the one-way lock per row that the shuttle pathfinder treats as a
// hard constraint, and the batch->row assignment that keeps concurrent
// shuttles converging on a single aisle.
package rowlock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// NodeLocator resolves a node to its (floor, row), the same contract
// graph.Catalog.RowOf satisfies.
type NodeLocator func(node string) (floor string, row int, ok bool)

// Locks is the one-way direction lock store on (floor, row) keys (§4.6).
type Locks struct {
	mu      sync.Mutex
	entries map[domain.RowLockKey]*domain.RowLock
	locate  NodeLocator
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an empty row-lock store. locate resolves a node id to its
// (floor, row) for Allowed's graph.RowLockView contract.
func New(locate NodeLocator) *Locks {
	return &Locks{
		entries: make(map[domain.RowLockKey]*domain.RowLock),
		locate:  locate,
		logger:  slog.With(slog.String("component", constants.ComponentRowLock)),
		now:     time.Now,
	}
}

// Request locks (floor, row) in direction for vehicle. The first arriving
// vehicle sets the direction; later requests in the same direction join
// members; a request in the opposite direction is refused.
func (l *Locks) Request(floor string, row int, vehicle string, direction domain.RowDirection) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.RowLockKey{Floor: floor, Row: row}
	lock, ok := l.entries[key]
	if !ok {
		l.entries[key] = &domain.RowLock{
			Direction: direction,
			Members:   map[string]struct{}{vehicle: {}},
			LockedAt:  l.now(),
		}
		return nil
	}

	if lock.Direction != direction {
		return domain.ErrRowDirectionClash
	}
	lock.Members[vehicle] = struct{}{}
	lock.LockedAt = l.now()
	return nil
}

// Release removes vehicle from (floor, row)'s lock; when Members empties,
// the key itself is deleted (§8 invariant 5: members empty iff key absent).
func (l *Locks) Release(floor string, row int, vehicle string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := domain.RowLockKey{Floor: floor, Row: row}
	lock, ok := l.entries[key]
	if !ok {
		return
	}
	delete(lock.Members, vehicle)
	if len(lock.Members) == 0 {
		delete(l.entries, key)
	}
}

// Allowed reports whether entering node from direction is permitted by the
// row's current one-way lock, if any. Implements graph.RowLockView.
func (l *Locks) Allowed(node string, direction int) bool {
	if l.locate == nil {
		return true
	}
	floor, row, ok := l.locate(node)
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lock, locked := l.entries[domain.RowLockKey{Floor: floor, Row: row}]
	if !locked {
		return true
	}
	return directionMatches(lock.Direction, direction)
}

// directionMatches maps the lock's logical L->R/R->L direction onto the
// grid direction codes (§3 constants.Direction*): right traversal is
// consistent with L->R, left with R->L.
func directionMatches(lockDir domain.RowDirection, direction int) bool {
	switch direction {
	case constants.DirectionRight:
		return lockDir == domain.RowLeftToRight
	case constants.DirectionLeft:
		return lockDir == domain.RowRightToLeft
	default:
		return true // vertical moves within a row aren't constrained by direction
	}
}

// Sweep drops locks whose LockedAt predates maxAge, and is intended to run
// on a periodic ticker (default 10 min per §3/§4.6).
func (l *Locks) Sweep(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, lock := range l.entries {
		if now.Sub(lock.LockedAt) > maxAge {
			delete(l.entries, key)
			l.logger.Warn("swept stale row lock", slog.String("floor", key.Floor), slog.Int("row", key.Row))
		}
	}
}

// Snapshot returns a copy of the lock for (floor,row), if any, for
// diagnostics and testing.
func (l *Locks) Snapshot(floor string, row int) (domain.RowLock, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.entries[domain.RowLockKey{Floor: floor, Row: row}]
	if !ok {
		return domain.RowLock{}, false
	}
	members := make(map[string]struct{}, len(lock.Members))
	for k := range lock.Members {
		members[k] = struct{}{}
	}
	return domain.RowLock{Direction: lock.Direction, Members: members, LockedAt: lock.LockedAt}, true
}
