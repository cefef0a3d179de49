package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
	"github.com/warehouse-wcs/fleet-controller/internal/mission"
)

type stubCatalogMutator struct{ cleared []string }

func (s *stubCatalogMutator) SetHasBox(qr string, hasBox bool) {
	if !hasBox {
		s.cleared = append(s.cleared, qr)
	}
}

func TestOnTaskComplete_FreesVehicleAndClearsPath(t *testing.T) {
	tasks := newStubTasks(domain.Task{ID: "t1"})
	tasks.byVehicle["s1"] = "t1"
	vehicles := newStubVehicles(domain.VehicleState{ID: "s1", Status: domain.VehicleMoving, Carrying: true})
	traffic := &stubTraffic{}
	bus := events.NewBus(4)
	d := New(tasks, vehicles, &stubMission{}, &stubOccupation{}, &stubReservations{}, traffic, &stubCatalog{}, bus, nil)
	router := NewRouter(d, &stubCatalogMutator{}, nil)

	router.onTaskComplete(context.Background(), events.VehicleEvent{Kind: events.KindTaskComplete, Vehicle: "s1"})

	assert.Equal(t, domain.TaskCompleted, tasks.byID["t1"].Status)
	assert.Contains(t, traffic.deleted, "s1")
	v, _ := vehicles.Get("s1")
	assert.Equal(t, domain.VehicleIdle, v.Status)
	assert.False(t, v.Carrying)
}

func TestOnPickupComplete_ClearsHasBoxAndMarksInProgress(t *testing.T) {
	task := domain.Task{ID: "t1", PickupNode: "A", EndNode: "B", EndFloor: "F1"}
	tasks := newStubTasks(task)
	tasks.byVehicle["s1"] = "t1"
	vehicles := newStubVehicles(domain.VehicleState{ID: "s1", CurrentFloor: "F1"})
	bus := events.NewBus(4)
	catMut := &stubCatalogMutator{}
	mb := &stubMission{envelope: &mission.Envelope{TaskID: "t1", Vehicle: "s1"}}
	d := New(tasks, vehicles, mb, &stubOccupation{}, &stubReservations{}, &stubTraffic{}, &stubCatalog{}, bus, nil)
	router := NewRouter(d, catMut, nil)

	router.onPickupComplete(context.Background(), events.VehicleEvent{Kind: events.KindPickupComplete, Vehicle: "s1"})

	assert.Contains(t, catMut.cleared, "A")
	assert.Equal(t, domain.TaskInProgress, tasks.byID["t1"].Status)
}

func TestOnShuttleWaiting_InvokesConflictHandler(t *testing.T) {
	tasks := newStubTasks()
	vehicles := newStubVehicles()
	bus := events.NewBus(4)
	var called bool
	onWaiting := func(ctx context.Context, vehicle, waitingAt, targetNode, blockedBy string) {
		called = true
		assert.Equal(t, "s1", vehicle)
	}
	d := New(tasks, vehicles, &stubMission{}, &stubOccupation{}, &stubReservations{}, &stubTraffic{}, &stubCatalog{}, bus, onWaiting)
	router := NewRouter(d, &stubCatalogMutator{}, nil)

	router.onShuttleWaiting(context.Background(), events.VehicleEvent{Vehicle: "s1", WaitingAt: "A", TargetNode: "B", BlockedBy: "s2"})
	assert.True(t, called)
}

func TestOnShuttleMoved_ReleasesPickupLockWhenCarrying(t *testing.T) {
	task := domain.Task{ID: "t1", PickupNode: "A", Status: domain.TaskInProgress}
	tasks := newStubTasks(task)
	tasks.byVehicle["s1"] = "t1"
	vehicles := newStubVehicles(domain.VehicleState{ID: "s1", Carrying: true})
	reservations := &stubReservations{}
	bus := events.NewBus(4)
	d := New(tasks, vehicles, &stubMission{}, &stubOccupation{}, reservations, &stubTraffic{}, &stubCatalog{}, bus, nil)
	router := NewRouter(d, &stubCatalogMutator{}, nil)

	router.onShuttleMoved(context.Background(), events.VehicleEvent{Vehicle: "s1", PreviousNode: "A", CurrentNode: "B"})

	time.Sleep(10 * time.Millisecond)
	assert.NotEmpty(t, reservations.released)
}
