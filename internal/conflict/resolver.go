// Package conflict implements the conflict resolver (C9): the handler for
// an external "waiting" event, which tries priority yield, reroute,
// backtrack-to-parking, and finally an escalating wait-in-place, in that
// order (§4.9). It also runs the periodic deadlock detector (§4.9.2).
package conflict

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
	"github.com/warehouse-wcs/fleet-controller/internal/graph"
	"github.com/warehouse-wcs/fleet-controller/internal/priority"
	"github.com/warehouse-wcs/fleet-controller/internal/reservation"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// Action names, mirroring vehicle.command.<id>'s action field (§6).
const (
	ActionYield              = "YIELD"
	ActionReroute            = "REROUTE"
	ActionBacktrackToParking = "BACKTRACK_TO_PARKING"
	ActionBacktrackAndWait   = "BACKTRACK_AND_WAIT"
	ActionWait               = "WAIT"
)

// WaitingEvent is the external trigger for conflict resolution (§4.9).
// RetryCount and WaitSince accumulate across repeated calls for the same
// contention, driving the escalating wait-in-place timer.
type WaitingEvent struct {
	Vehicle    string
	WaitingAt  string
	TargetNode string
	BlockedBy  string
	RetryCount int
	WaitSince  time.Time
}

// Decision is the outcome of one Resolve call.
type Decision struct {
	Action      string
	Path        domain.Path
	ParkingNode string
	NextRetryAt time.Time
}

// Pathfinder is the C1 slice used for reroute attempts.
type Pathfinder interface {
	FindPath(req graph.Request) *domain.Path
}

// OccupationView is the C2 slice used to check node vacancy.
type OccupationView interface {
	OwnerOf(node string) string
	ClearVehicle(vehicle string)
}

// ReservationView is the C3 slice used for parking reservations.
type ReservationView interface {
	Acquire(key, owner string, ttl time.Duration) error
	ClearOwner(owner string)
}

// TrafficView is the C4 slice consulted for active paths.
type TrafficView interface {
	Get(vehicle string) (domain.ActivePath, bool)
	GetAllActivePaths() []domain.ActivePath
	SavePath(vehicle string, path domain.Path, isCarrying bool, priorityScore int64, ttl time.Duration)
}

// CatalogView is the C1 slice used for node properties and BFS search.
type CatalogView interface {
	Node(qr string) (domain.Node, bool)
	Neighbors(qr string) []string
}

// TaskLookup resolves a vehicle's currently assigned task, for priority
// comparison and carrying status.
type TaskLookup func(vehicle string) (domain.Task, bool)

// VehicleStateLookup resolves a vehicle's cached state, for the deadlock
// detector.
type VehicleStateLookup func() []domain.VehicleState

// Resolver runs the §4.9 conflict-resolution chain.
type Resolver struct {
	Pathfinder   Pathfinder
	Occupation   OccupationView
	Reservations ReservationView
	Traffic      TrafficView
	Catalog      CatalogView
	Tasks        TaskLookup
	VehicleStates VehicleStateLookup
	Bus          *events.Bus

	ParkingMaxDistance int
	MaxBacktrackSteps  int
	ParkingTTL         time.Duration

	// Tracer wraps Resolve and DetectAndBreak in spans. Defaulted to a noop
	// tracer by New; assigned post-construction once a telemetry provider is
	// available, mirroring mission.Coordinator.Tracer.
	Tracer trace.Tracer

	logger *slog.Logger
	now    func() time.Time
}

// New creates a conflict resolver.
func New(pathfinder Pathfinder, occupation OccupationView, reservations ReservationView, traffic TrafficView,
	catalog CatalogView, tasks TaskLookup, vehicleStates VehicleStateLookup, bus *events.Bus) *Resolver {
	return &Resolver{
		Pathfinder:         pathfinder,
		Occupation:         occupation,
		Reservations:       reservations,
		Traffic:            traffic,
		Catalog:            catalog,
		Tasks:              tasks,
		VehicleStates:      vehicleStates,
		Bus:                bus,
		ParkingMaxDistance: constants.ParkingMaxDistance,
		MaxBacktrackSteps:  constants.MaxBacktrackSteps,
		ParkingTTL:         constants.DefaultReservationTTL,
		Tracer:             noop.NewTracerProvider().Tracer("conflict"),
		logger:             slog.With(slog.String("component", constants.ComponentConflict)),
		now:                time.Now,
	}
}

// Resolve runs the ordered chain of §4.9 actions, returning the first one
// that succeeds.
func (r *Resolver) Resolve(ctx context.Context, evt WaitingEvent) Decision {
	ctx, span := r.Tracer.Start(ctx, "conflict.Resolve",
		trace.WithAttributes(
			attribute.String("vehicle.id", evt.Vehicle),
			attribute.String("blocked_by", evt.BlockedBy),
			attribute.Int("retry_count", evt.RetryCount),
		))
	defer span.End()

	d := r.resolve(ctx, evt)
	span.SetAttributes(attribute.String("conflict.action", d.Action))
	metrics.IncConflictResolution(d.Action)
	return d
}

func (r *Resolver) resolve(ctx context.Context, evt WaitingEvent) Decision {
	if d, ok := r.tryPriorityYield(evt); ok {
		return d
	}
	if d, ok := r.tryReroute(evt); ok {
		return d
	}
	if d, ok := r.tryBacktrack(evt); ok {
		return d
	}
	return r.waitInPlace(evt)
}

// tryPriorityYield implements §4.9 step 1: if this vehicle outranks the
// blocker, signal the blocker to yield and let this vehicle keep waiting
// for the ordinary path to clear.
func (r *Resolver) tryPriorityYield(evt WaitingEvent) (Decision, bool) {
	selfTask, ok := r.Tasks(evt.Vehicle)
	if !ok {
		return Decision{}, false
	}
	blockerTask, ok := r.Tasks(evt.BlockedBy)
	if !ok {
		return Decision{}, false
	}

	cmp := priority.Compare(evt.Vehicle, selfTask, evt.BlockedBy, blockerTask)
	if cmp.Winner != evt.Vehicle {
		return Decision{}, false
	}

	r.Bus.Publish(events.TopicVehicleEvents, events.MissionCommand{
		Vehicle: evt.BlockedBy,
		Action:  events.ActionYield,
		Reason:  string(cmp.Reason),
	})
	return Decision{Action: ActionYield}, true
}

// tryReroute implements §4.9 step 2: call the pathfinder avoiding the
// contested node and the blocker's active path, then validate the result
// against the tiered cost limit.
func (r *Resolver) tryReroute(evt WaitingEvent) (Decision, bool) {
	original, ok := r.Traffic.Get(evt.Vehicle)
	if !ok || original.Path.Empty() {
		return Decision{}, false
	}
	goal := original.Path.Steps[len(original.Path.Steps)-1].Node

	avoid := map[string]struct{}{evt.TargetNode: {}}
	if blockerPath, ok := r.Traffic.Get(evt.BlockedBy); ok {
		for _, s := range blockerPath.Path.Steps {
			avoid[s.Node] = struct{}{}
		}
	}

	newPath := r.Pathfinder.FindPath(graph.Request{
		Start:      evt.WaitingAt,
		Goal:       goal,
		IsCarrying: original.Metadata.IsCarrying,
		Avoid:      avoid,
	})
	if newPath == nil {
		return Decision{}, false
	}

	waitSec := r.now().Sub(evt.WaitSince).Seconds()
	limit := tierLimit(original.Metadata.IsCarrying, evt.RetryCount, waitSec)
	if float64(newPath.TotalStep) > float64(len(original.Path.Steps))*limit {
		return Decision{}, false
	}

	r.Traffic.SavePath(evt.Vehicle, *newPath, original.Metadata.IsCarrying, original.Metadata.Priority, 0)
	r.Bus.Publish(events.TopicVehicleEvents, events.MissionCommand{
		Vehicle: evt.Vehicle,
		Action:  events.ActionReroute,
		Path:    *newPath,
	})
	return Decision{Action: ActionReroute, Path: *newPath}, true
}

// tierLimit implements the §4.9 cost-limit table. A waitSec at or beyond
// the emergency threshold accepts any path length.
func tierLimit(carrying bool, retryCount int, waitSec float64) float64 {
	if waitSec >= constants.ConflictEmergencyWaitAt.Seconds() {
		return math.Inf(1)
	}
	limit := 2.00
	if carrying {
		limit = 1.40
	}
	limit += float64(retryCount) * 0.5
	limit += math.Floor(waitSec/15) * 0.5
	if limit > 5.0 {
		limit = 5.0
	}
	return limit
}

// tryBacktrack implements §4.9 step 3: walk backward along the original
// path up to MaxBacktrackSteps, searching each candidate node for a nearby
// parking spot.
func (r *Resolver) tryBacktrack(evt WaitingEvent) (Decision, bool) {
	original, ok := r.Traffic.Get(evt.Vehicle)
	if !ok || original.Path.Empty() {
		return Decision{}, false
	}

	steps := original.Path.Steps
	limit := r.MaxBacktrackSteps
	if limit <= 0 || limit > len(steps) {
		limit = len(steps)
	}
	for i := 0; i < limit; i++ {
		candidate := steps[len(steps)-1-i].Node
		if candidate == evt.TargetNode {
			continue
		}
		if r.Occupation.OwnerOf(candidate) != "" {
			continue
		}

		if parkingNode, ok := r.findParkingNode(candidate, evt.TargetNode, evt.Vehicle); ok {
			r.Bus.Publish(events.TopicVehicleEvents, events.MissionCommand{
				Vehicle: evt.Vehicle,
				Action:  events.ActionBacktrack,
				Reason:  parkingNode,
			})
			return Decision{Action: ActionBacktrackToParking, ParkingNode: parkingNode}, true
		}

		r.Bus.Publish(events.TopicVehicleEvents, events.MissionCommand{
			Vehicle: evt.Vehicle,
			Action:  events.ActionBacktrack,
			Reason:  "wait-in-place",
		})
		return Decision{Action: ActionBacktrackAndWait, ParkingNode: candidate}, true
	}
	return Decision{}, false
}

// findParkingNode implements §4.9.1: BFS outward from nearNode, trying
// acquire on every eligible candidate in ascending Manhattan-distance
// order until one succeeds.
func (r *Resolver) findParkingNode(nearNode, conflictNode, vehicle string) (string, bool) {
	maxDist := r.ParkingMaxDistance
	if maxDist <= 0 {
		maxDist = constants.ParkingMaxDistance
	}

	activePaths := r.Traffic.GetAllActivePaths()
	onAnyPath := make(map[string]struct{})
	for _, ap := range activePaths {
		for _, s := range ap.Path.Steps {
			onAnyPath[s.Node] = struct{}{}
		}
	}

	type candidate struct {
		node string
		dist int
	}
	nearPos, hasNearPos := r.Catalog.Node(nearNode)
	visited := map[string]int{nearNode: 0}
	queue := []string{nearNode}
	var candidates []candidate

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		dist := visited[cur]
		if dist > 0 {
			manhattan := dist
			if curPos, ok := r.Catalog.Node(cur); ok && hasNearPos {
				manhattan = nearPos.ManhattanDistance(curPos)
			}
			candidates = append(candidates, candidate{node: cur, dist: manhattan})
		}
		if dist >= maxDist {
			continue
		}
		for _, next := range r.Catalog.Neighbors(cur) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = dist + 1
			queue = append(queue, next)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	for _, c := range candidates {
		if c.node == conflictNode {
			continue
		}
		node, ok := r.Catalog.Node(c.node)
		if !ok || node.Blocked || node.HasBox || node.DirectionType == "" {
			continue
		}
		if _, onPath := onAnyPath[c.node]; onPath {
			continue
		}
		key := reservation.ParkingLockKey(c.node)
		if err := r.Reservations.Acquire(key, vehicle, r.ParkingTTL); err == nil {
			return c.node, true
		}
	}
	return "", false
}

// waitInPlace implements §4.9 step 4: escalating wait timer, forcing an
// emergency reroute once waitSec crosses the hard cap.
func (r *Resolver) waitInPlace(evt WaitingEvent) Decision {
	waitSec := r.now().Sub(evt.WaitSince).Seconds()
	if waitSec >= constants.ConflictEmergencyWaitAt.Seconds() {
		if d, ok := r.tryReroute(evt); ok {
			return d
		}
	}

	retryAfter := constants.ConflictInitialWait
	if evt.RetryCount > 0 {
		retryAfter = constants.ConflictRetryInterval
	}
	return Decision{Action: ActionWait, NextRetryAt: r.now().Add(retryAfter)}
}

// RunDeadlockDetector drives DetectAndBreak on a ticker until ctx is
// cancelled (§4.9.2).
func (r *Resolver) RunDeadlockDetector(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.DeadlockSweepEvery
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.DetectAndBreak()
			}
		}
	}()
}

// DetectAndBreak implements §4.9.2: build a wait-for graph from every
// MOVING vehicle with a reserved path to whoever owns a node on that path,
// DFS for a cycle, and force-release the lowest-priority member on
// detection.
func (r *Resolver) DetectAndBreak() {
	_, span := r.Tracer.Start(context.Background(), "conflict.DetectAndBreak")
	defer span.End()

	states := r.VehicleStates()
	waitFor := make(map[string]map[string]struct{})

	for _, v := range states {
		if v.Status != domain.VehicleMoving {
			continue
		}
		ap, ok := r.Traffic.Get(v.ID)
		if !ok {
			continue
		}
		edges := make(map[string]struct{})
		for _, step := range ap.Path.Steps {
			owner := r.Occupation.OwnerOf(step.Node)
			if owner != "" && owner != v.ID {
				edges[owner] = struct{}{}
			}
		}
		if len(edges) > 0 {
			waitFor[v.ID] = edges
		}
	}

	cycle := findCycle(waitFor)
	if cycle == nil {
		return
	}

	victim := r.lowestPriority(cycle)
	if victim == "" {
		return
	}
	r.logger.Warn("deadlock detected, force-releasing vehicle", slog.String("vehicle", victim), slog.Any("cycle", cycle))
	span.SetAttributes(attribute.String("deadlock.victim", victim), attribute.Int("deadlock.cycle_len", len(cycle)))
	metrics.IncDeadlockBroken(towerOf(states, victim))
	r.Occupation.ClearVehicle(victim)
	r.Reservations.ClearOwner(victim)
}

// towerOf resolves victim's current floor from the snapshot taken at the
// start of this sweep, for the per-tower deadlocks_broken_total label.
func towerOf(states []domain.VehicleState, victim string) string {
	for _, v := range states {
		if v.ID == victim {
			return v.CurrentFloor
		}
	}
	return "unknown"
}

func (r *Resolver) lowestPriority(vehicles []string) string {
	var lowest string
	var lowestScore int64
	first := true
	for _, v := range vehicles {
		task, ok := r.Tasks(v)
		if !ok {
			continue
		}
		s := priority.Score(task)
		if first || s < lowestScore {
			lowest, lowestScore, first = v, s, false
		}
	}
	return lowest
}

// findCycle runs a DFS over the wait-for graph and returns the first cycle
// found, or nil.
func findCycle(graph map[string]map[string]struct{}) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		path = append(path, node)
		for next := range graph[node] {
			switch color[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				for i, n := range path {
					if n == next {
						cycle = append([]string{}, path[i:]...)
						return true
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[node] = black
		return false
	}

	for node := range graph {
		if color[node] == white {
			if visit(node) {
				return cycle
			}
		}
	}
	return nil
}
