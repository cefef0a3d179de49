package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

func TestScore_CarryingAlwaysOutranksEmpty(t *testing.T) {
	now := time.Now()
	carrying := domain.Task{ID: "t1", Carrying: true, RegisteredAt: now}
	empty := domain.Task{ID: "t2", Carrying: false, RegisteredAt: now.Add(-time.Hour)}

	assert.True(t, Outranks(carrying, empty))
}

func TestScore_FIFOAmongEqualCargoStatus(t *testing.T) {
	now := time.Now()
	earlier := domain.Task{ID: "t1", Carrying: false, RegisteredAt: now.Add(-time.Minute)}
	later := domain.Task{ID: "t2", Carrying: false, RegisteredAt: now}

	assert.True(t, Outranks(earlier, later))
}

func TestCompare_ReportsReason(t *testing.T) {
	now := time.Now()
	carrying := domain.Task{ID: "t1", Carrying: true, RegisteredAt: now}
	empty := domain.Task{ID: "t2", Carrying: false, RegisteredAt: now.Add(-time.Hour)}

	cmp := Compare("shuttle-1", carrying, "shuttle-2", empty)
	assert.Equal(t, "shuttle-1", cmp.Winner)
	assert.Equal(t, "shuttle-2", cmp.Loser)
	assert.Equal(t, ReasonCargoStatus, cmp.Reason)
	assert.Greater(t, cmp.Diff, int64(0))
}

func TestCompare_FIFOReason(t *testing.T) {
	now := time.Now()
	earlier := domain.Task{ID: "t1", Carrying: false, RegisteredAt: now.Add(-time.Minute)}
	later := domain.Task{ID: "t2", Carrying: false, RegisteredAt: now}

	cmp := Compare("shuttle-1", earlier, "shuttle-2", later)
	assert.Equal(t, "shuttle-1", cmp.Winner)
	assert.Equal(t, ReasonFIFO, cmp.Reason)
}
