package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

func TestAcquire_SetIfAbsent(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire("endnode:lock:c1", "shuttle-1", time.Minute))
	assert.Equal(t, "shuttle-1", s.Owner("endnode:lock:c1"))
}

func TestAcquire_ContentionOnLiveLease(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire("endnode:lock:c1", "shuttle-1", time.Minute))

	err := s.Acquire("endnode:lock:c1", "shuttle-2", time.Minute)
	require.Error(t, err)
	assert.True(t, domain.IsLockContention(err))
}

func TestAcquire_NeverRefreshesOnReacquireBySameOwner(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Acquire("pickup:lock:q1", "shuttle-1", time.Minute))

	// Even the same owner re-acquiring a live lease is refused, unlike C2.
	err := s.Acquire("pickup:lock:q1", "shuttle-1", time.Minute)
	require.Error(t, err)
	assert.True(t, domain.IsLockContention(err))
}

func TestAcquire_SucceedsAfterExpiry(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Acquire("parking:q1:lock", "shuttle-1", time.Second))
	now = now.Add(2 * time.Second)

	require.NoError(t, s.Acquire("parking:q1:lock", "shuttle-2", time.Minute))
	assert.Equal(t, "shuttle-2", s.Owner("parking:q1:lock"))
}

func TestRelease_OwnerMismatchRefused(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire("endnode:lock:c1", "shuttle-1", time.Minute))

	err := s.Release("endnode:lock:c1", "shuttle-2")
	require.Error(t, err)
	assert.Equal(t, "shuttle-1", s.Owner("endnode:lock:c1"))
}

func TestRelease_ThenAcquireByAnother(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire("endnode:lock:c1", "shuttle-1", time.Minute))
	require.NoError(t, s.Release("endnode:lock:c1", "shuttle-1"))
	require.NoError(t, s.Acquire("endnode:lock:c1", "shuttle-2", time.Minute))
	assert.Equal(t, "shuttle-2", s.Owner("endnode:lock:c1"))
}

func TestClearOwner_ReleasesEveryKey(t *testing.T) {
	s := New()
	require.NoError(t, s.Acquire("endnode:lock:c1", "shuttle-1", time.Minute))
	require.NoError(t, s.Acquire("pickup:lock:q1", "shuttle-1", time.Minute))
	require.NoError(t, s.Acquire("endnode:lock:c2", "shuttle-2", time.Minute))

	s.ClearOwner("shuttle-1")

	assert.Equal(t, "", s.Owner("endnode:lock:c1"))
	assert.Equal(t, "", s.Owner("pickup:lock:q1"))
	assert.Equal(t, "shuttle-2", s.Owner("endnode:lock:c2"))
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "endnode:lock:c1", EndNodeLockKey("c1"))
	assert.Equal(t, "pickup:lock:Q1", PickupLockKey("Q1"))
	assert.Equal(t, "parking:Q1:lock", ParkingLockKey("Q1"))
}
