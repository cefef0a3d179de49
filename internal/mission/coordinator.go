// Package mission implements the mission coordinator (C8): the
// next-segment builder that turns a vehicle's current position and target
// into a concrete path plus an onArrival semantic tag, consulting the
// occupation store, traffic map, and lifter coordination along the way
// (§4.8).
package mission

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/graph"
)

// onArrival tags (§4.8, §6).
const (
	OnArrivalTaskComplete     = "TASK_COMPLETE"
	OnArrivalPickupComplete   = "PICKUP_COMPLETE"
	OnArrivalArrivedAtLifter  = "ARRIVED_AT_LIFTER"
	OnArrivalWaitingForLifter = "WAITING_FOR_LIFTER"
)

// Purpose distinguishes a pickup leg from a drop-off leg, since both reach
// a same-floor final node but differ in their onArrival tag and last-edge
// action (§4.8 step 2).
type Purpose string

const (
	PurposePickup  Purpose = "pickup"
	PurposeDropoff Purpose = "dropoff"
)

// Pathfinder is the C1 slice the coordinator calls.
type Pathfinder interface {
	FindPath(req graph.Request) *domain.Path
}

// OccupationView is the C2 slice the coordinator reads for avoid-set
// construction.
type OccupationView interface {
	GetAll() []domain.Reservation
}

// TrafficStore is the C4 slice the coordinator writes the resulting path
// into.
type TrafficStore interface {
	SavePath(vehicle string, path domain.Path, isCarrying bool, priority int64, ttl time.Duration)
}

// LifterView is the C7 slice the coordinator consults for the cross-floor
// lookahead (§4.8 step 7).
type LifterView interface {
	Status(ctx context.Context) domain.LifterState
	RequestLifter(vehicle, targetFloor string, priority int64)
}

// EntryResolver returns the well-known lifter-entry node id for a floor,
// or false when none is known for it (§4.8 step 3). The resolver wired in
// internal/app reads only the seeded layout's entry-node map; it does no
// catalog lookup for floors missing from that map.
type EntryResolver func(floor string) (string, bool)

// Request parameterizes a single BuildSegment call.
type Request struct {
	Vehicle          domain.VehicleState
	Task             domain.Task
	FinalTargetNode  string
	FinalTargetFloor string
	Purpose          Purpose
	Priority         int64
}

// Envelope is the mission envelope returned to the dispatcher (§4.8): a
// path plus the metadata a shuttle/AMR executor needs to act on it.
type Envelope struct {
	TaskID                string
	Vehicle               string
	OnArrival             string
	Path                  domain.Path
	FinalTargetNode       string
	FinalTargetFloor      string
	PickupNodeQR          string
	EndNodeQR             string
	ItemInfo              []byte
	IsCarrying            bool
	RunningPathSimulation []string
}

// Coordinator builds mission envelopes (C8).
type Coordinator struct {
	Pathfinder     Pathfinder
	Occupation     OccupationView
	Traffic        TrafficStore
	EntryNode      EntryResolver
	LiftersByFloor map[string]LifterView
	PathTTL        time.Duration
	// Tracer wraps BuildSegment in a span. New defaults it to a noop
	// tracer; the field can be reassigned post-construction once a
	// telemetry provider is available, without forcing every caller (tests
	// included) to thread one through the constructor.
	Tracer trace.Tracer
	logger *slog.Logger
}

// New creates a mission coordinator.
func New(pathfinder Pathfinder, occupation OccupationView, traffic TrafficStore, entryResolver EntryResolver, liftersByFloor map[string]LifterView, pathTTL time.Duration) *Coordinator {
	return &Coordinator{
		Pathfinder:     pathfinder,
		Occupation:     occupation,
		Traffic:        traffic,
		EntryNode:      entryResolver,
		LiftersByFloor: liftersByFloor,
		PathTTL:        pathTTL,
		Tracer:         noop.NewTracerProvider().Tracer("mission"),
		logger:         slog.With(slog.String("component", constants.ComponentMission)),
	}
}

// BuildSegment runs the §4.8 algorithm: resolve position, branch on
// same-floor vs cross-floor, build the avoid set, call the pathfinder with
// fallback, cache the result, and (cross-floor only) apply the lifter
// lookahead truncation.
func (c *Coordinator) BuildSegment(ctx context.Context, req Request) (*Envelope, error) {
	ctx, span := c.Tracer.Start(ctx, "mission.BuildSegment",
		trace.WithAttributes(
			attribute.String("vehicle.id", req.Vehicle.ID),
			attribute.String("task.id", req.Task.ID),
			attribute.String("mission.purpose", string(req.Purpose)),
		))
	defer span.End()

	vehicle := req.Vehicle
	crossFloor := vehicle.CurrentFloor != req.FinalTargetFloor

	var target, onArrival, lastAction string
	if !crossFloor {
		target = req.FinalTargetNode
		lastAction = constants.ActionDropOff
		onArrival = OnArrivalTaskComplete
		if req.Purpose == PurposePickup {
			lastAction = constants.ActionPickUp
			onArrival = OnArrivalPickupComplete
		}
	} else {
		entry, ok := c.EntryNode(vehicle.CurrentFloor)
		if !ok {
			err := domain.NewNotFoundError("no lifter-entry node configured for floor", nil).
				WithContext("floor", vehicle.CurrentFloor)
			span.RecordError(err)
			return nil, err
		}
		target = entry
		lastAction = constants.ActionStopAtNode
		onArrival = OnArrivalArrivedAtLifter
	}

	avoid := c.avoidSet(vehicle.CurrentNode, target)

	path := c.Pathfinder.FindPath(graph.Request{
		Start:       vehicle.CurrentNode,
		Goal:        target,
		IsCarrying:  vehicle.Carrying,
		Avoid:       avoid,
		FinalAction: lastAction,
	})
	if path == nil {
		span.RecordError(domain.ErrNoPathFound)
		return nil, domain.ErrNoPathFound
	}

	c.Traffic.SavePath(vehicle.ID, *path, vehicle.Carrying, req.Priority, c.PathTTL)

	envelope := &Envelope{
		TaskID:                req.Task.ID,
		Vehicle:               vehicle.ID,
		OnArrival:             onArrival,
		Path:                  *path,
		FinalTargetNode:       req.FinalTargetNode,
		FinalTargetFloor:      req.FinalTargetFloor,
		PickupNodeQR:          req.Task.PickupNode,
		EndNodeQR:             req.Task.EndNode,
		ItemInfo:              req.Task.ItemInfo,
		IsCarrying:            vehicle.Carrying,
		RunningPathSimulation: path.NodeSequence(),
	}

	if !crossFloor {
		return envelope, nil
	}
	return c.applyLifterLookahead(ctx, envelope, vehicle, target, req.Priority)
}

// applyLifterLookahead implements §4.8 step 7: if the destination lifter is
// not already idle at the vehicle's floor, request it and truncate the
// path to stop one node short of the lifter entry.
func (c *Coordinator) applyLifterLookahead(ctx context.Context, envelope *Envelope, vehicle domain.VehicleState, entryNode string, priority int64) (*Envelope, error) {
	k := -1
	for i, step := range envelope.Path.Steps {
		if step.Node == entryNode {
			k = i + 1 // steps are 1-indexed hops from the start node
			break
		}
	}
	if k < 0 {
		return envelope, nil
	}

	lifter, ok := c.LiftersByFloor[vehicle.CurrentFloor]
	if !ok {
		c.logger.Warn("no lifter registered for floor", slog.String("floor", vehicle.CurrentFloor))
		return envelope, nil
	}

	status := lifter.Status(ctx)
	ready := status.Status == domain.LifterIdle && status.CurrentFloor == vehicle.CurrentFloor
	if ready {
		return envelope, nil
	}

	lifter.RequestLifter(vehicle.ID, vehicle.CurrentFloor, priority)

	truncateTo := k - 1
	if truncateTo <= 0 {
		envelope.Path = domain.Path{}
		envelope.RunningPathSimulation = nil
	} else {
		envelope.Path = domain.Path{Steps: envelope.Path.Steps[:truncateTo], TotalStep: truncateTo}
		envelope.RunningPathSimulation = envelope.Path.NodeSequence()
	}
	envelope.OnArrival = OnArrivalWaitingForLifter
	return envelope, nil
}

// avoidSet builds the pathfinder avoid set from every live occupation,
// excluding the vehicle's own current and target nodes (§4.8 step 4).
func (c *Coordinator) avoidSet(current, target string) map[string]struct{} {
	reservations := c.Occupation.GetAll()
	avoid := make(map[string]struct{}, len(reservations))
	for _, r := range reservations {
		if r.Key == current || r.Key == target {
			continue
		}
		avoid[r.Key] = struct{}{}
	}
	return avoid
}
