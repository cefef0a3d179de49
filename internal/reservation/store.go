// Package reservation implements the general-purpose reservation store (C3):
// a set-if-absent-with-expiry lock used by the staging scheduler for
// end-node selection and by shuttles for pickup/parking locks. Unlike the
// node occupation store (C2), it never refreshes a lease on re-acquire by
// the same owner — a second acquire by the current owner still fails until
// the key is explicitly released or its lease expires.
package reservation

import (
	"strings"
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// Key namespace prefixes (§6 persisted state layout).
const (
	PrefixEndNodeLock = "endnode:lock:"
	PrefixPickupLock  = "pickup:lock:"
	PrefixParkingLock = "parking:"
)

// EndNodeLockKey builds the namespaced key for an end-node cell lock.
func EndNodeLockKey(cellID string) string { return PrefixEndNodeLock + cellID }

// PickupLockKey builds the namespaced key for a pickup-node lock.
func PickupLockKey(qr string) string { return PrefixPickupLock + qr }

// ParkingLockKey builds the namespaced key for a parking-node lock.
func ParkingLockKey(qr string) string { return PrefixParkingLock + qr + ":lock" }

// namespaceOf derives the reservation_contention_total namespace label
// from a key's prefix, for keys built by the helpers above.
func namespaceOf(key string) string {
	switch {
	case strings.HasPrefix(key, PrefixEndNodeLock):
		return "endnode"
	case strings.HasPrefix(key, PrefixPickupLock):
		return "pickup"
	case strings.HasPrefix(key, PrefixParkingLock):
		return "parking"
	default:
		return "other"
	}
}

// Store is the set-if-absent-with-expiry lock used across the staging
// scheduler (C10), conflict resolver (C9) and shuttle pickup flow.
type Store struct {
	mu      sync.Mutex
	entries map[string]domain.Reservation
	now     func() time.Time
}

// New creates an empty reservation store.
func New() *Store {
	return &Store{
		entries: make(map[string]domain.Reservation),
		now:     time.Now,
	}
}

// Acquire sets key -> owner if absent or expired; never refreshes on
// reacquire even by the same owner. Returns domain.ErrAlreadyHeld (a
// lock-contention control signal, not a failure) if the key is live.
func (s *Store) Acquire(key, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.entries[key]; ok && !existing.Expired(now) {
		metrics.IncReservationContention(namespaceOf(key))
		return domain.ErrAlreadyHeld
	}
	s.entries[key] = domain.Reservation{
		Key:       key,
		Owner:     owner,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// Release removes key only if owner matches; otherwise refuses (drift).
func (s *Store) Release(key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[key]
	if !ok {
		return nil
	}
	if existing.Owner != owner {
		return domain.ErrOwnerMismatch
	}
	delete(s.entries, key)
	return nil
}

// Owner returns the live owner of key, or "" if unheld/expired.
func (s *Store) Owner(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.entries[key]
	if !ok || r.Expired(s.now()) {
		return ""
	}
	return r.Owner
}

// ClearOwner releases every key currently held by owner, used when a
// vehicle is deregistered or its task fails.
func (s *Store) ClearOwner(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, r := range s.entries {
		if r.Owner == owner {
			delete(s.entries, key)
		}
	}
}
