package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

func newTestBuntStore(t *testing.T) *BuntStore {
	t.Helper()
	s, err := NewBuntStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuntStore_AcquireRelease(t *testing.T) {
	s := newTestBuntStore(t)

	require.NoError(t, s.Acquire("endnode:lock:A1", "task-1", time.Minute))
	assert.Equal(t, "task-1", s.Owner("endnode:lock:A1"))

	err := s.Acquire("endnode:lock:A1", "task-2", time.Minute)
	assert.ErrorIs(t, err, domain.ErrAlreadyHeld)

	require.NoError(t, s.Release("endnode:lock:A1", "task-1"))
	assert.Equal(t, "", s.Owner("endnode:lock:A1"))
}

func TestBuntStore_ReleaseRefusesWrongOwner(t *testing.T) {
	s := newTestBuntStore(t)
	require.NoError(t, s.Acquire("pickup:lock:Q1", "task-1", time.Minute))

	err := s.Release("pickup:lock:Q1", "task-2")
	assert.ErrorIs(t, err, domain.ErrOwnerMismatch)
	assert.Equal(t, "task-1", s.Owner("pickup:lock:Q1"))
}

func TestBuntStore_AcquireNeverRefreshesOnReacquireBySameOwner(t *testing.T) {
	s := newTestBuntStore(t)
	require.NoError(t, s.Acquire("parking:Q2:lock", "task-1", 20*time.Millisecond))

	err := s.Acquire("parking:Q2:lock", "task-1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrAlreadyHeld)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, "", s.Owner("parking:Q2:lock"))
	require.NoError(t, s.Acquire("parking:Q2:lock", "task-1", time.Minute))
}

func TestBuntStore_ClearOwner(t *testing.T) {
	s := newTestBuntStore(t)
	require.NoError(t, s.Acquire("endnode:lock:A1", "task-1", time.Minute))
	require.NoError(t, s.Acquire("endnode:lock:A2", "task-1", time.Minute))
	require.NoError(t, s.Acquire("endnode:lock:A3", "task-2", time.Minute))

	s.ClearOwner("task-1")

	assert.Equal(t, "", s.Owner("endnode:lock:A1"))
	assert.Equal(t, "", s.Owner("endnode:lock:A2"))
	assert.Equal(t, "task-2", s.Owner("endnode:lock:A3"))
}
