// Package vehiclestate implements the controller's cached view of every
// vehicle (§3 VehicleState, §5 "writes to a single vehicle's record are
// funneled through its dispatcher task"). It is a plain in-memory index;
// the single-writer guarantee is a convention the dispatcher/executor
// callers honor, not something this store enforces.
package vehiclestate

import (
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// Store indexes every known vehicle's cached state.
type Store struct {
	mu    sync.RWMutex
	state map[string]domain.VehicleState
	now   func() time.Time
}

// New creates an empty vehicle state store.
func New() *Store {
	return &Store{
		state: make(map[string]domain.VehicleState),
		now:   time.Now,
	}
}

// Upsert replaces vehicle's cached state wholesale, stamping UpdatedAt.
func (s *Store) Upsert(v domain.VehicleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.UpdatedAt = s.now()
	s.state[v.ID] = v
}

// Get returns vehicle's cached state.
func (s *Store) Get(vehicle string) (domain.VehicleState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[vehicle]
	return v, ok
}

// Mutate applies fn to vehicle's current state (zero value if unknown) and
// stores the result, under a single lock so read-modify-write is atomic.
func (s *Store) Mutate(vehicle string, fn func(*domain.VehicleState)) domain.VehicleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.state[vehicle]
	v.ID = vehicle
	fn(&v)
	v.UpdatedAt = s.now()
	s.state[vehicle] = v
	return v
}

// GetAll returns a snapshot of every vehicle's cached state.
func (s *Store) GetAll() []domain.VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.VehicleState, 0, len(s.state))
	for _, v := range s.state {
		out = append(out, v)
	}
	return out
}

// IdleOfKind returns every vehicle of the given kind currently idle and
// available for dispatch.
func (s *Store) IdleOfKind(kind domain.VehicleKind) []domain.VehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VehicleState
	for _, v := range s.state {
		if v.Kind == kind && v.IsIdle() {
			out = append(out, v)
		}
	}
	return out
}

// CountActive returns the number of vehicles of kind not currently idle,
// used by the staging scheduler's multi-vehicle-mode trigger (§4.10).
func (s *Store) CountActive(kind domain.VehicleKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.state {
		if v.Kind == kind && !v.IsIdle() {
			n++
		}
	}
	return n
}
