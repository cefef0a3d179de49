// Package occupation implements the node occupation store (C2): the sole
// source of truth for "is a node physically occupied right now".
package occupation

import (
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// Store maps node -> {owner, lease}. Entries expire silently; a stalled
// vehicle relinquishes the node once its lease lapses.
type Store struct {
	mu      sync.RWMutex
	entries map[string]domain.Reservation
	now     func() time.Time
}

// New creates an empty occupation store.
func New() *Store {
	return &Store{
		entries: make(map[string]domain.Reservation),
		now:     time.Now,
	}
}

// Block sets owner on node if absent or expired; an idempotent refresh if
// owner already matches. Fails with ErrAlreadyHeld if a different vehicle
// currently holds a live lease.
func (s *Store) Block(node, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.entries[node]; ok && !existing.Expired(now) && existing.Owner != owner {
		return domain.ErrAlreadyHeld
	}
	s.entries[node] = domain.Reservation{
		Key:       node,
		Owner:     owner,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// Unblock releases node only if owner matches; otherwise refuses. Callers
// are expected to log the refusal as drift.
func (s *Store) Unblock(node, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[node]
	if !ok {
		return nil
	}
	if existing.Owner != owner {
		return domain.ErrOwnerMismatch
	}
	delete(s.entries, node)
	return nil
}

// HandleMove performs the two-step block(to)/unblock(from) hand-off. If
// block(to) fails, from is left untouched and the failure is reported.
func (s *Store) HandleMove(vehicle, from, to string, ttl time.Duration) error {
	if err := s.Block(to, vehicle, ttl); err != nil {
		return err
	}
	if from == "" || from == to {
		return nil
	}
	return s.Unblock(from, vehicle)
}

// ClearVehicle releases every node currently owned by vehicle, used on task
// completion/failure and vehicle deregistration.
func (s *Store) ClearVehicle(vehicle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for node, r := range s.entries {
		if r.Owner == vehicle {
			delete(s.entries, node)
		}
	}
}

// OwnerOf returns the current live owner of node, or "" if unoccupied or
// expired. Implements graph.OccupationView for the pathfinder.
func (s *Store) OwnerOf(node string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entries[node]
	if !ok {
		return ""
	}
	if r.Expired(s.now()) {
		metrics.IncOccupationLeaseExpiration()
		return ""
	}
	return r.Owner
}

// GetAll returns a snapshot of every live reservation, for pathfinder
// avoidance and diagnostics.
func (s *Store) GetAll() []domain.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]domain.Reservation, 0, len(s.entries))
	for _, r := range s.entries {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	return out
}
