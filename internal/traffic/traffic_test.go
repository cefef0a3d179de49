package traffic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

func samePath(nodes ...string) domain.Path {
	steps := make([]domain.Step, len(nodes))
	for i, n := range nodes {
		steps[i] = domain.Step{Node: n, Direction: 2}
	}
	return domain.Path{Steps: steps, TotalStep: len(steps)}
}

func TestSaveAndGetPath_RoundTrip(t *testing.T) {
	m := New()
	path := samePath("A", "B", "C")
	m.SavePath("v1", path, true, 5, time.Minute)

	got, ok := m.Get("v1")
	require.True(t, ok)
	assert.Equal(t, path, got.Path)
	assert.True(t, got.Metadata.IsCarrying)
}

func TestDeletePath_RemovesBoth(t *testing.T) {
	m := New()
	m.SavePath("v1", samePath("A"), false, 0, time.Minute)
	m.DeletePath("v1")

	_, ok := m.Get("v1")
	assert.False(t, ok)
	assert.Empty(t, m.GetAllActivePaths())
}

func TestGetAllActivePaths_ExcludesExpired(t *testing.T) {
	m := New()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.SavePath("v1", samePath("A"), false, 0, time.Second)
	now = now.Add(2 * time.Second)

	assert.Empty(t, m.GetAllActivePaths())
}

func TestIsCorridor_RequiresTwoVehiclesAndDominantDirection(t *testing.T) {
	m := New()
	m.SavePath("v1", samePath("X", "C"), false, 0, time.Minute)

	corridor, _ := m.IsCorridor("C")
	assert.False(t, corridor, "single vehicle is never a corridor")

	m.SavePath("v2", samePath("Y", "C"), false, 0, time.Minute)
	corridor, highTraffic := m.IsCorridor("C")
	assert.True(t, corridor)
	assert.False(t, highTraffic)
}

func TestIsCorridor_HighTrafficAtThreeVehicles(t *testing.T) {
	m := New()
	m.SavePath("v1", samePath("X", "C"), false, 0, time.Minute)
	m.SavePath("v2", samePath("Y", "C"), false, 0, time.Minute)
	m.SavePath("v3", samePath("Z", "C"), false, 0, time.Minute)

	corridor, highTraffic := m.IsCorridor("C")
	assert.True(t, corridor)
	assert.True(t, highTraffic)
}

func TestDirectionHistogram_CountsPerDirection(t *testing.T) {
	m := New()
	m.SavePath("v1", domain.Path{Steps: []domain.Step{{Node: "C", Direction: 2}}}, false, 0, time.Minute)
	m.SavePath("v2", domain.Path{Steps: []domain.Step{{Node: "C", Direction: 4}}}, false, 0, time.Minute)

	hist := m.DirectionHistogram("C")
	assert.Equal(t, 1, hist[2])
	assert.Equal(t, 1, hist[4])
}
