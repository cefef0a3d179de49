package reservation

import (
	"errors"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// BuntStore is the tidwall/buntdb-backed alternate to Store (C3), selected
// when RESERVATION_BACKEND=buntdb. It implements the identical
// Acquire/Release/Owner/ClearOwner contract, delegating expiry to buntdb's
// native per-key TTL (SetOptions.Expires) instead of a timestamp field
// checked on read.
type BuntStore struct {
	db *buntdb.DB
}

// NewBuntStore opens (or creates) a buntdb database at path. Pass ":memory:"
// for an ephemeral, non-persisted store equivalent to the in-memory Store.
func NewBuntStore(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, domain.NewUnavailableError("failed to open reservation store", err).WithContext("path", path)
	}
	return &BuntStore{db: db}, nil
}

// Close releases the underlying database handle.
func (b *BuntStore) Close() error {
	return b.db.Close()
}

// Acquire sets key -> owner if absent or expired; never refreshes on
// reacquire, matching Store's semantics exactly (§4.3).
func (b *BuntStore) Acquire(key, owner string, ttl time.Duration) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(key); err == nil {
			// buntdb evicts expired keys lazily but guarantees Get never
			// returns one past its TTL, so a hit here means it's live.
			return domain.ErrAlreadyHeld
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		_, _, err := tx.Set(key, owner, &buntdb.SetOptions{Expires: true, TTL: ttl})
		return err
	})
	if errors.Is(err, domain.ErrAlreadyHeld) {
		metrics.IncReservationContention(namespaceOf(key))
		return domain.ErrAlreadyHeld
	}
	if err != nil {
		return domain.NewUnavailableError("reservation store acquire failed", err).WithContext("key", key)
	}
	return nil
}

// Release removes key only if owner matches; otherwise refuses (drift).
func (b *BuntStore) Release(key, owner string) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if val != owner {
			return domain.ErrOwnerMismatch
		}
		_, err = tx.Delete(key)
		return err
	})
	if errors.Is(err, domain.ErrOwnerMismatch) {
		return domain.ErrOwnerMismatch
	}
	if err != nil {
		return domain.NewUnavailableError("reservation store release failed", err).WithContext("key", key)
	}
	return nil
}

// Owner returns the live owner of key, or "" if unheld/expired.
func (b *BuntStore) Owner(key string) string {
	var owner string
	_ = b.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key)
		if err != nil {
			return nil
		}
		owner = val
		return nil
	})
	return owner
}

// ClearOwner releases every key currently held by owner.
func (b *BuntStore) ClearOwner(owner string) {
	var toDelete []string
	_ = b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, val string) bool {
			if val == owner {
				toDelete = append(toDelete, key)
			}
			return true
		})
	})
	if len(toDelete) == 0 {
		return
	}
	_ = b.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range toDelete {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}
