package rowlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

func nodeRows(rows map[string][2]interface{}) NodeLocator {
	return func(node string) (string, int, bool) {
		v, ok := rows[node]
		if !ok {
			return "", 0, false
		}
		return v[0].(string), v[1].(int), true
	}
}

func TestRequest_FirstVehicleSetsDirection(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))

	snap, ok := l.Snapshot("F1", 3)
	require.True(t, ok)
	assert.Equal(t, domain.RowLeftToRight, snap.Direction)
	assert.Contains(t, snap.Members, "s1")
}

func TestRequest_SameDirectionJoinsMembers(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))
	require.NoError(t, l.Request("F1", 3, "s2", domain.RowLeftToRight))

	snap, _ := l.Snapshot("F1", 3)
	assert.Len(t, snap.Members, 2)
}

func TestRequest_OppositeDirectionRefused(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))

	err := l.Request("F1", 3, "s2", domain.RowRightToLeft)
	require.Error(t, err)
}

func TestRelease_EmptiesDeletesKey(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))
	l.Release("F1", 3, "s1")

	_, ok := l.Snapshot("F1", 3)
	assert.False(t, ok, "key must be absent once members empties")
}

func TestRelease_PartialStillLocked(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))
	require.NoError(t, l.Request("F1", 3, "s2", domain.RowLeftToRight))
	l.Release("F1", 3, "s1")

	snap, ok := l.Snapshot("F1", 3)
	require.True(t, ok)
	assert.NotContains(t, snap.Members, "s1")
	assert.Contains(t, snap.Members, "s2")
}

func TestAllowed_NoLockAlwaysAllowed(t *testing.T) {
	l := New(nodeRows(map[string][2]interface{}{"n1": {"F1", 3}}))
	assert.True(t, l.Allowed("n1", constants.DirectionLeft))
}

func TestAllowed_RespectsLockedDirection(t *testing.T) {
	l := New(nodeRows(map[string][2]interface{}{"n1": {"F1", 3}}))
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))

	assert.True(t, l.Allowed("n1", constants.DirectionRight))
	assert.False(t, l.Allowed("n1", constants.DirectionLeft))
}

func TestSweep_DropsStaleLocks(t *testing.T) {
	l := New(nil)
	now := time.Now()
	l.now = func() time.Time { return now }
	require.NoError(t, l.Request("F1", 3, "s1", domain.RowLeftToRight))

	now = now.Add(time.Hour)
	l.Sweep(10 * time.Minute)

	_, ok := l.Snapshot("F1", 3)
	assert.False(t, ok)
}

func TestAssignRowForBatch_PersistsAndReuses(t *testing.T) {
	c := NewCoordination()
	floor, row := c.AssignRowForBatch("batch:pickup:q1", "F1", 3, time.Hour)
	assert.Equal(t, "F1", floor)
	assert.Equal(t, 3, row)

	floor2, row2 := c.AssignRowForBatch("batch:pickup:q1", "F1", 7, time.Hour)
	assert.Equal(t, 3, row2, "existing assignment wins over a later row")
	assert.Equal(t, floor, floor2)
}

func TestAssignRowForBatch_ExpiresAfterTTL(t *testing.T) {
	c := NewCoordination()
	now := time.Now()
	c.now = func() time.Time { return now }
	c.AssignRowForBatch("batch:pickup:q1", "F1", 3, time.Minute)

	now = now.Add(2 * time.Minute)
	_, row := c.AssignRowForBatch("batch:pickup:q1", "F1", 9, time.Minute)
	assert.Equal(t, 9, row, "expired assignment is replaced")
}
