// Package dispatch implements the shuttle dispatcher and event router
// (C12): the single-writer loop that hands pending tasks to idle shuttles,
// and the handler table that reacts to vehicle/lifter events (§4.12).
package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
	"github.com/warehouse-wcs/fleet-controller/internal/mission"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// TaskQueue is the C11 slice the dispatcher drives.
type TaskQueue interface {
	NextPending() (domain.Task, bool)
	Get(taskID string) (domain.Task, bool)
	TaskForVehicle(vehicle string) (domain.Task, bool)
	UpdateStatus(taskID string, status domain.TaskStatus, vehicle string) error
}

// VehicleStore is the vehicle-state slice the dispatcher reads and writes.
type VehicleStore interface {
	Get(vehicle string) (domain.VehicleState, bool)
	IdleOfKind(kind domain.VehicleKind) []domain.VehicleState
	Mutate(vehicle string, fn func(*domain.VehicleState)) domain.VehicleState
}

// MissionBuilder is the C8 slice used to compute the next segment.
type MissionBuilder interface {
	BuildSegment(ctx context.Context, req mission.Request) (*mission.Envelope, error)
}

// OccupationView is the C2 slice the event handlers drive.
type OccupationView interface {
	Block(node, owner string, ttl time.Duration) error
	HandleMove(vehicle, from, to string, ttl time.Duration) error
	ClearVehicle(vehicle string)
}

// ReservationView is the C3 slice used to release the pickup lock.
type ReservationView interface {
	Release(key, owner string) error
}

// TrafficView is the C4 slice used to delete a completed vehicle's path.
type TrafficView interface {
	DeletePath(vehicle string)
}

// CatalogView resolves a node's position, for the closest-shuttle policy.
type CatalogView interface {
	Node(qr string) (domain.Node, bool)
}

// ConflictHandler is the C9 slice invoked on a shuttle-waiting event.
type ConflictHandler func(ctx context.Context, vehicle, waitingAt, targetNode, blockedBy string)

// Dispatcher is the C12 single-writer loop plus event router.
type Dispatcher struct {
	Tasks        TaskQueue
	Vehicles     VehicleStore
	Mission      MissionBuilder
	Occupation   OccupationView
	Reservations ReservationView
	Traffic      TrafficView
	Catalog      CatalogView
	Bus          *events.Bus
	OnWaiting    ConflictHandler

	OccupationLease    time.Duration
	PublishAckTimeout  time.Duration
	PublishRetryPeriod time.Duration

	logger *slog.Logger
}

// New creates a dispatcher.
func New(tasks TaskQueue, vehicles VehicleStore, mb MissionBuilder, occupation OccupationView,
	reservations ReservationView, traffic TrafficView, catalog CatalogView, bus *events.Bus, onWaiting ConflictHandler) *Dispatcher {
	return &Dispatcher{
		Tasks:              tasks,
		Vehicles:           vehicles,
		Mission:            mb,
		Occupation:         occupation,
		Reservations:       reservations,
		Traffic:            traffic,
		Catalog:            catalog,
		Bus:                bus,
		OnWaiting:          onWaiting,
		OccupationLease:    constants.DefaultOccupationLease,
		PublishAckTimeout:  constants.PublishAckTimeout,
		PublishRetryPeriod: constants.PublishRetryPeriod,
		logger:             slog.With(slog.String("component", constants.ComponentDispatcher)),
	}
}

// DispatchNextTask implements §4.12's dispatchNextTask(): peek the oldest
// pending task, choose an idle shuttle, build the pickup segment, mark the
// task assigned, and publish the mission.
func (d *Dispatcher) DispatchNextTask(ctx context.Context) bool {
	task, ok := d.Tasks.NextPending()
	if !ok {
		return false
	}

	shuttle, ok := d.pickShuttle(task)
	if !ok {
		return false
	}

	dispatchStart := time.Now()
	envelope, err := d.Mission.BuildSegment(ctx, mission.Request{
		Vehicle:          shuttle,
		Task:             task,
		FinalTargetNode:  task.PickupNode,
		FinalTargetFloor: task.PickupFloor,
		Purpose:          mission.PurposePickup,
	})
	metrics.ObserveMissionDispatch(string(mission.PurposePickup), time.Since(dispatchStart).Seconds())
	if err != nil {
		d.logger.Error("failed to build pickup segment", slog.String("task", task.ID), slog.String("error", err.Error()))
		_ = d.Tasks.UpdateStatus(task.ID, domain.TaskFailed, "")
		return true
	}

	if err := d.Tasks.UpdateStatus(task.ID, domain.TaskAssigned, shuttle.ID); err != nil {
		d.logger.Error("failed to mark task assigned", slog.String("task", task.ID), slog.String("error", err.Error()))
		return true
	}
	d.Vehicles.Mutate(shuttle.ID, func(v *domain.VehicleState) {
		v.Status = domain.VehicleMoving
		v.ActiveTaskID = task.ID
	})

	d.PublishMission(ctx, shuttle.ID, *envelope)
	return true
}

// pickShuttle implements the §4.12 selection policy: same-floor idle
// shuttles first, then the closest by Manhattan distance, ties broken
// deterministically by vehicle id.
func (d *Dispatcher) pickShuttle(task domain.Task) (domain.VehicleState, bool) {
	idle := d.Vehicles.IdleOfKind(domain.VehicleShuttle)
	if len(idle) == 0 {
		return domain.VehicleState{}, false
	}

	var sameFloor []domain.VehicleState
	for _, v := range idle {
		if v.CurrentFloor == task.PickupFloor {
			sameFloor = append(sameFloor, v)
		}
	}
	candidates := sameFloor
	if len(candidates) == 0 {
		candidates = idle
	}

	pickup, hasPickup := d.Catalog.Node(task.PickupNode)
	sort.Slice(candidates, func(i, j int) bool {
		di, dj := d.distance(candidates[i], pickup, hasPickup), d.distance(candidates[j], pickup, hasPickup)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

func (d *Dispatcher) distance(v domain.VehicleState, pickup domain.Node, hasPickup bool) int {
	if !hasPickup {
		return 0
	}
	node, ok := d.Catalog.Node(v.CurrentNode)
	if !ok {
		return 1 << 30
	}
	return node.ManhattanDistance(pickup)
}

// PublishMission implements the §4.12/§5 publish-with-retry contract: emit
// the mission, then retry every PublishRetryPeriod until an ack arrives or
// PublishAckTimeout elapses, at which point the task is marked failed.
func (d *Dispatcher) PublishMission(ctx context.Context, vehicle string, envelope mission.Envelope) {
	ackTopic := "vehicle.mission.ack." + vehicle
	ack := d.Bus.Subscribe(ackTopic)

	go func() {
		deadline := time.Now().Add(d.PublishAckTimeout)
		ticker := time.NewTicker(d.PublishRetryPeriod)
		defer ticker.Stop()

		publish := func() {
			d.Bus.Publish("vehicle.mission."+vehicle, envelope)
		}
		publish()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ack:
				return
			case <-ticker.C:
				if time.Now().After(deadline) {
					d.logger.Warn("mission publish timed out, marking task failed",
						slog.String("vehicle", vehicle), slog.String("task", envelope.TaskID))
					_ = d.Tasks.UpdateStatus(envelope.TaskID, domain.TaskFailed, "")
					d.Vehicles.Mutate(vehicle, func(v *domain.VehicleState) {
						v.Status = domain.VehicleIdle
						v.ActiveTaskID = ""
					})
					return
				}
				publish()
			}
		}
	}()
}
