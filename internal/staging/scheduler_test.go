package staging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

type stubTaskQueue struct {
	registered []domain.Task
}

func (s *stubTaskQueue) Register(t domain.Task) { s.registered = append(s.registered, t) }

type stubRowAssigner struct {
	floor string
	row   int
}

func (s *stubRowAssigner) AssignRowForBatch(batchID, floor string, endNodeRow int, ttl time.Duration) (string, int) {
	return s.floor, s.row
}

type stubReservationLocker struct {
	held map[string]bool
}

func (s *stubReservationLocker) Acquire(key, owner string, ttl time.Duration) error {
	if s.held == nil {
		s.held = make(map[string]bool)
	}
	if s.held[key] {
		return domain.ErrAlreadyHeld
	}
	s.held[key] = true
	return nil
}

type stubEndNodes struct {
	first    domain.Node
	firstOK  bool
	inRow    []domain.Node
}

func (s *stubEndNodes) FirstAvailable(floor, palletType string) (domain.Node, bool) { return s.first, s.firstOK }
func (s *stubEndNodes) InRow(floor string, row int, palletType string) []domain.Node { return s.inRow }

func noActiveShuttles() int { return 0 }
func twoActiveShuttles() int { return 2 }

func TestTick_EmptyQueueNoop(t *testing.T) {
	sched := New(&stubTaskQueue{}, &stubRowAssigner{}, &stubReservationLocker{}, &stubEndNodes{}, noActiveShuttles)
	sched.Tick()
	assert.Equal(t, 0, sched.QueueLen())
}

func TestTick_CommitsFirstAvailableCell(t *testing.T) {
	tq := &stubTaskQueue{}
	endNodes := &stubEndNodes{
		first: domain.Node{QR: "E1", FloorID: "F1", Row: 3}, firstOK: true,
		inRow: []domain.Node{{QR: "E2", Col: 2, FloorID: "F1", Row: 3}, {QR: "E1", Col: 1, FloorID: "F1", Row: 3}},
	}
	sched := New(tq, &stubRowAssigner{}, &stubReservationLocker{}, endNodes, noActiveShuttles)
	sched.Push(domain.Task{ID: "t1", PickupFloor: "F1", PalletType: "euro"})

	sched.Tick()

	require.Len(t, tq.registered, 1)
	assert.Equal(t, "E1", tq.registered[0].EndNode, "leftmost (column-ascending) candidate wins")
	assert.Equal(t, "F1", tq.registered[0].EndFloor)
	assert.Equal(t, 3, tq.registered[0].Row)
}

func TestTick_SkipsLockedCellsInColumnOrder(t *testing.T) {
	tq := &stubTaskQueue{}
	locker := &stubReservationLocker{held: map[string]bool{"endnode:lock:E1": true}}
	endNodes := &stubEndNodes{
		first: domain.Node{QR: "E1", FloorID: "F1", Row: 3}, firstOK: true,
		inRow: []domain.Node{{QR: "E1", Col: 1, FloorID: "F1", Row: 3}, {QR: "E2", Col: 2, FloorID: "F1", Row: 3}},
	}
	sched := New(tq, &stubRowAssigner{}, locker, endNodes, noActiveShuttles)
	sched.Push(domain.Task{ID: "t1", PickupFloor: "F1", PalletType: "euro"})

	sched.Tick()

	require.Len(t, tq.registered, 1)
	assert.Equal(t, "E2", tq.registered[0].EndNode)
}

func TestTick_NoCandidatesPushesBack(t *testing.T) {
	tq := &stubTaskQueue{}
	endNodes := &stubEndNodes{first: domain.Node{QR: "E1", FloorID: "F1", Row: 3}, firstOK: true}
	sched := New(tq, &stubRowAssigner{}, &stubReservationLocker{}, endNodes, noActiveShuttles)
	sched.Push(domain.Task{ID: "t1", PickupFloor: "F1", PalletType: "euro"})

	sched.Tick()

	assert.Empty(t, tq.registered)
	assert.Equal(t, 1, sched.QueueLen())
}

func TestTick_NoRowAvailablePushesBack(t *testing.T) {
	tq := &stubTaskQueue{}
	endNodes := &stubEndNodes{firstOK: false}
	sched := New(tq, &stubRowAssigner{}, &stubReservationLocker{}, endNodes, noActiveShuttles)
	sched.Push(domain.Task{ID: "t1", PickupFloor: "F1", PalletType: "euro"})

	sched.Tick()

	assert.Empty(t, tq.registered)
	assert.Equal(t, 1, sched.QueueLen())
}

func TestTick_MultiVehicleModeUsesRowAssigner(t *testing.T) {
	tq := &stubTaskQueue{}
	rowAssigner := &stubRowAssigner{floor: "F1", row: 9}
	endNodes := &stubEndNodes{
		first: domain.Node{QR: "E1", FloorID: "F1", Row: 3}, firstOK: true,
		inRow: []domain.Node{{QR: "E9", Col: 1, FloorID: "F1", Row: 9}},
	}
	sched := New(tq, rowAssigner, &stubReservationLocker{}, endNodes, twoActiveShuttles)
	sched.Push(domain.Task{ID: "t1", PickupNode: "P1", PickupFloor: "F1", PalletType: "euro"})

	sched.Tick()

	require.Len(t, tq.registered, 1)
	assert.Equal(t, 9, tq.registered[0].Row, "multi-vehicle mode defers to the batch row assignment")
}

func TestOnlyOneTaskAdvancesPerTick(t *testing.T) {
	tq := &stubTaskQueue{}
	endNodes := &stubEndNodes{
		first: domain.Node{QR: "E1", FloorID: "F1", Row: 3}, firstOK: true,
		inRow: []domain.Node{{QR: "E1", Col: 1, FloorID: "F1", Row: 3}},
	}
	sched := New(tq, &stubRowAssigner{}, &stubReservationLocker{}, endNodes, noActiveShuttles)
	sched.Push(domain.Task{ID: "t1", PickupFloor: "F1", PalletType: "euro"})
	sched.Push(domain.Task{ID: "t2", PickupFloor: "F1", PalletType: "euro"})

	sched.Tick()

	assert.Len(t, tq.registered, 1)
	assert.Equal(t, 1, sched.QueueLen())
}
