package dispatch

import (
	"context"
	"log/slog"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
	"github.com/warehouse-wcs/fleet-controller/internal/mission"
	"github.com/warehouse-wcs/fleet-controller/internal/reservation"
)

// CatalogMutator clears the hasBox flag on pickup, the one catalog write
// the dispatcher itself performs.
type CatalogMutator interface {
	SetHasBox(qr string, hasBox bool)
}

// LifterRequester is the C7 slice used to re-request a stalled lifter.
type LifterRequester interface {
	RequestLifter(vehicle, targetFloor string, priority int64)
}

// Router subscribes to the vehicle/lifter event topics and dispatches to
// the §4.12 handler table.
type Router struct {
	*Dispatcher
	CatalogMutator CatalogMutator
	LiftersByFloor map[string]LifterRequester
	logger         *slog.Logger
}

// NewRouter wraps a Dispatcher with the event-handling table.
func NewRouter(d *Dispatcher, catalogMutator CatalogMutator, liftersByFloor map[string]LifterRequester) *Router {
	return &Router{Dispatcher: d, CatalogMutator: catalogMutator, LiftersByFloor: liftersByFloor, logger: d.logger}
}

// Run subscribes to vehicle.events and lifter.events and processes every
// envelope until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	vehicleEvents := r.Bus.Subscribe(events.TopicVehicleEvents)
	lifterEvents := r.Bus.Subscribe(events.TopicLifterEvents)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-vehicleEvents:
				if v, ok := env.Payload.(events.VehicleEvent); ok {
					r.handleVehicleEvent(ctx, v)
				}
			case env := <-lifterEvents:
				if l, ok := env.Payload.(events.LifterArrived); ok {
					r.handleLifterArrived(ctx, l)
				}
			}
		}
	}()
}

func (r *Router) handleVehicleEvent(ctx context.Context, evt events.VehicleEvent) {
	switch evt.Kind {
	case events.KindShuttleInitialized:
		r.onShuttleInitialized(evt)
	case events.KindShuttleMoved:
		r.onShuttleMoved(ctx, evt)
	case events.KindPickupComplete:
		r.onPickupComplete(ctx, evt)
	case events.KindTaskComplete:
		r.onTaskComplete(ctx, evt)
	case events.KindArrivedAtLifter:
		r.onArrivedAtLifter(evt)
	case events.KindWaitingForLifter:
		r.onWaitingForLifter(evt)
	case events.KindShuttleWaiting:
		r.onShuttleWaiting(ctx, evt)
	}
}

func (r *Router) onShuttleInitialized(evt events.VehicleEvent) {
	if err := r.Occupation.Block(evt.CurrentNode, evt.Vehicle, r.OccupationLease); err != nil {
		r.logger.Warn("initial occupation block refused", slog.String("vehicle", evt.Vehicle), slog.String("error", err.Error()))
	}
	r.Vehicles.Mutate(evt.Vehicle, func(v *domain.VehicleState) {
		v.Kind = domain.VehicleShuttle
		v.CurrentNode = evt.CurrentNode
		v.Status = domain.VehicleIdle
	})
}

func (r *Router) onShuttleMoved(ctx context.Context, evt events.VehicleEvent) {
	if err := r.Occupation.HandleMove(evt.Vehicle, evt.PreviousNode, evt.CurrentNode, r.OccupationLease); err != nil {
		r.logger.Warn("move hand-off refused", slog.String("vehicle", evt.Vehicle), slog.String("error", err.Error()))
	}
	v := r.Vehicles.Mutate(evt.Vehicle, func(v *domain.VehicleState) {
		v.CurrentNode = evt.CurrentNode
	})

	if task, ok := r.Tasks.TaskForVehicle(evt.Vehicle); ok && v.Carrying && task.Status == domain.TaskInProgress {
		if err := r.Reservations.Release(reservation.PickupLockKey(task.PickupNode), evt.Vehicle); err != nil {
			r.logger.Warn("pickup lock release refused", slog.String("vehicle", evt.Vehicle), slog.String("error", err.Error()))
		}
	}
	r.DispatchNextTask(ctx)
}

func (r *Router) onPickupComplete(ctx context.Context, evt events.VehicleEvent) {
	task, ok := r.Tasks.TaskForVehicle(evt.Vehicle)
	if !ok {
		return
	}
	_ = r.Tasks.UpdateStatus(task.ID, domain.TaskInProgress, evt.Vehicle)
	r.CatalogMutator.SetHasBox(task.PickupNode, false)
	r.Vehicles.Mutate(evt.Vehicle, func(v *domain.VehicleState) { v.Carrying = true })

	vehicle, ok := r.Vehicles.Get(evt.Vehicle)
	if !ok {
		return
	}
	envelope, err := r.Mission.BuildSegment(ctx, mission.Request{
		Vehicle:          vehicle,
		Task:             task,
		FinalTargetNode:  task.EndNode,
		FinalTargetFloor: task.EndFloor,
		Purpose:          mission.PurposeDropoff,
	})
	if err != nil {
		r.logger.Error("failed to build dropoff segment", slog.String("task", task.ID), slog.String("error", err.Error()))
		_ = r.Tasks.UpdateStatus(task.ID, domain.TaskFailed, "")
		return
	}
	r.PublishMission(ctx, evt.Vehicle, *envelope)
}

func (r *Router) onTaskComplete(ctx context.Context, evt events.VehicleEvent) {
	task, ok := r.Tasks.TaskForVehicle(evt.Vehicle)
	if ok {
		_ = r.Tasks.UpdateStatus(task.ID, domain.TaskCompleted, "")
	}
	r.Traffic.DeletePath(evt.Vehicle)
	r.Vehicles.Mutate(evt.Vehicle, func(v *domain.VehicleState) {
		v.Status = domain.VehicleIdle
		v.Carrying = false
		v.ActiveTaskID = ""
	})
	r.DispatchNextTask(ctx)
}

func (r *Router) onArrivedAtLifter(evt events.VehicleEvent) {
	r.Vehicles.Mutate(evt.Vehicle, func(v *domain.VehicleState) {
		v.Status = domain.VehicleWaiting
	})
}

func (r *Router) onWaitingForLifter(evt events.VehicleEvent) {
	task, ok := r.Tasks.TaskForVehicle(evt.Vehicle)
	if ok {
		_ = r.Tasks.UpdateStatus(task.ID, domain.TaskWaitingForLifter, evt.Vehicle)
	}
	vehicle, ok := r.Vehicles.Get(evt.Vehicle)
	if !ok {
		return
	}
	if lifter, ok := r.LiftersByFloor[vehicle.CurrentFloor]; ok {
		lifter.RequestLifter(evt.Vehicle, vehicle.CurrentFloor, 0)
	}
}

func (r *Router) onShuttleWaiting(ctx context.Context, evt events.VehicleEvent) {
	if r.OnWaiting != nil {
		r.OnWaiting(ctx, evt.Vehicle, evt.WaitingAt, evt.TargetNode, evt.BlockedBy)
	}
}

// handleLifterArrived implements §4.12's ARRIVED_AT_LIFTER follow-through:
// once C7 reports the lifter is at this vehicle's floor, compute the
// segment from the lifter-exit node to the task's final target.
func (r *Router) handleLifterArrived(ctx context.Context, evt events.LifterArrived) {
	vehicle, ok := r.Vehicles.Get(evt.Vehicle)
	if !ok || vehicle.CurrentFloor != evt.Floor {
		return
	}
	task, ok := r.Tasks.TaskForVehicle(evt.Vehicle)
	if !ok {
		return
	}

	purpose := mission.PurposePickup
	target, targetFloor := task.PickupNode, task.PickupFloor
	if vehicle.Carrying {
		purpose = mission.PurposeDropoff
		target, targetFloor = task.EndNode, task.EndFloor
	}

	envelope, err := r.Mission.BuildSegment(ctx, mission.Request{
		Vehicle:          vehicle,
		Task:             task,
		FinalTargetNode:  target,
		FinalTargetFloor: targetFloor,
		Purpose:          purpose,
	})
	if err != nil {
		r.logger.Error("failed to build post-lifter segment", slog.String("vehicle", evt.Vehicle), slog.String("error", err.Error()))
		return
	}
	r.Vehicles.Mutate(evt.Vehicle, func(v *domain.VehicleState) { v.Status = domain.VehicleMoving })
	r.PublishMission(ctx, evt.Vehicle, *envelope)
}
