// Package app wires the fleet controller's components together (§4, §5):
// it owns construction, background-loop lifetime, and the small facade the
// HTTP layer drives. Nothing here implements domain logic itself — that
// lives in the internal/<component> packages; this package only connects
// them the way main() would, generalized out of main() so it can be
// exercised by tests.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/warehouse-wcs/fleet-controller/internal/amr"
	"github.com/warehouse-wcs/fleet-controller/internal/conflict"
	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/dispatch"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
	"github.com/warehouse-wcs/fleet-controller/internal/graph"
	"github.com/warehouse-wcs/fleet-controller/internal/infra/config"
	"github.com/warehouse-wcs/fleet-controller/internal/lifter"
	"github.com/warehouse-wcs/fleet-controller/internal/mission"
	"github.com/warehouse-wcs/fleet-controller/internal/occupation"
	"github.com/warehouse-wcs/fleet-controller/internal/plc"
	"github.com/warehouse-wcs/fleet-controller/internal/reservation"
	"github.com/warehouse-wcs/fleet-controller/internal/rowlock"
	"github.com/warehouse-wcs/fleet-controller/internal/staging"
	"github.com/warehouse-wcs/fleet-controller/internal/taskqueue"
	"github.com/warehouse-wcs/fleet-controller/internal/traffic"
	"github.com/warehouse-wcs/fleet-controller/internal/vehiclestate"
	"github.com/warehouse-wcs/fleet-controller/internal/warehouse"
)

// ReservationStore is the set-if-absent-with-expiry contract shared by the
// in-memory reservation.Store and the buntdb-backed reservation.BuntStore,
// selected at startup by Config.ReservationBackend.
type ReservationStore interface {
	Acquire(key, owner string, ttl time.Duration) error
	Release(key, owner string) error
	Owner(key string) string
	ClearOwner(owner string)
}

// System is every wired WCS component plus the background loops that drive
// them. The HTTP layer is built against it, not against the individual
// components, so it never needs to know the wiring.
type System struct {
	cfg    *config.Config
	logger *slog.Logger

	Bus          *events.Bus
	Catalog      *graph.Catalog
	Occupation   *occupation.Store
	Reservations ReservationStore
	Traffic      *traffic.Map
	RowLocks     *rowlock.Locks
	RowBatches   *rowlock.Coordination
	Pathfinder   *graph.TopoPathfinder

	Towers map[string]*lifter.Coordinator

	Mission  *mission.Coordinator
	Resolver *conflict.Resolver
	Staging  *staging.Scheduler
	Tasks    *taskqueue.Queue
	Vehicles *vehiclestate.Store

	Dispatcher *dispatch.Dispatcher
	Router     *dispatch.Router

	AMRCache    *amr.StateCache
	AMRExecutor *amr.Executor

	lifterTasks *lifterTaskLedger

	closers []func() error
}

// New wires the full WCS system from cfg. It seeds the demo floor catalog
// (internal/warehouse stands in for the out-of-scope WMS/DB cell source),
// builds every component listed in the design, and registers a small demo
// fleet, but starts no background loops — call Run for that.
func New(cfg *config.Config) (*System, error) {
	logger := slog.With(slog.String("component", constants.ComponentHTTPServer))

	layout := warehouse.DefaultLayout()
	nodes, edges, entryNodes := warehouse.Seed(layout)

	catalog := graph.NewCatalog()
	catalog.Load(nodes, edges)

	bus := events.NewBus(256)
	occStore := occupation.New()
	trafficMap := traffic.New()
	rowLocks := rowlock.New(catalog.RowOf)
	rowBatches := rowlock.NewCoordination()

	reservations, closeReservations, err := newReservationStore(cfg)
	if err != nil {
		return nil, err
	}

	pathfinder := &graph.TopoPathfinder{
		Catalog:    catalog,
		Occupation: occStore,
		Traffic:    trafficMap,
		RowLocks:   rowLocks,
	}

	towers, err := newTowers(cfg, layout, bus)
	if err != nil {
		return nil, err
	}
	liftersForMission := make(map[string]mission.LifterView, len(towers))
	liftersForDispatch := make(map[string]dispatch.LifterRequester, len(towers))
	for floor, tower := range towers {
		liftersForMission[floor] = tower
		liftersForDispatch[floor] = tower
	}

	entryResolver := func(floor string) (string, bool) {
		id, ok := entryNodes[floor]
		return id, ok
	}

	missionCoordinator := mission.New(pathfinder, occStore, trafficMap, entryResolver, liftersForMission, cfg.PathTTL)

	tasks := taskqueue.New()
	vehicles := vehiclestate.New()

	taskLookup := func(vehicle string) (domain.Task, bool) { return tasks.TaskForVehicle(vehicle) }
	vehicleStateLookup := func() []domain.VehicleState { return vehicles.GetAll() }

	resolver := conflict.New(pathfinder, occStore, reservations, trafficMap, catalog, taskLookup, vehicleStateLookup, bus)

	onWaiting := func(ctx context.Context, vehicle, waitingAt, targetNode, blockedBy string) {
		decision := resolver.Resolve(ctx, conflict.WaitingEvent{
			Vehicle:    vehicle,
			WaitingAt:  waitingAt,
			TargetNode: targetNode,
			BlockedBy:  blockedBy,
		})
		logger.InfoContext(ctx, "conflict resolved",
			slog.String("vehicle", vehicle), slog.String("action", decision.Action))
	}

	dispatcher := dispatch.New(tasks, vehicles, missionCoordinator, occStore, reservations, trafficMap, catalog, bus, onWaiting)
	router := dispatch.NewRouter(dispatcher, catalog, liftersForDispatch)

	activeShuttles := func() int { return vehicles.CountActive(domain.VehicleShuttle) }
	endNodes := warehouse.NewCells(catalog, nil)
	stagingScheduler := staging.New(tasks, rowBatches, reservations, endNodes, activeShuttles)

	amrCache := amr.NewStateCache()
	amrExecutor := amr.NewExecutor(catalog, bus)

	sys := &System{
		cfg:          cfg,
		logger:       logger,
		Bus:          bus,
		Catalog:      catalog,
		Occupation:   occStore,
		Reservations: reservations,
		Traffic:      trafficMap,
		RowLocks:     rowLocks,
		RowBatches:   rowBatches,
		Pathfinder:   pathfinder,
		Towers:       towers,
		Mission:      missionCoordinator,
		Resolver:     resolver,
		Staging:      stagingScheduler,
		Tasks:        tasks,
		Vehicles:     vehicles,
		Dispatcher:   dispatcher,
		Router:       router,
		AMRCache:     amrCache,
		AMRExecutor:  amrExecutor,
		lifterTasks:  newLifterTaskLedger(),
	}
	if closeReservations != nil {
		sys.closers = append(sys.closers, closeReservations)
	}

	sys.seedDemoFleet(layout, entryNodes)
	sys.startAMRPollers()

	return sys, nil
}

func newReservationStore(cfg *config.Config) (ReservationStore, func() error, error) {
	switch cfg.ReservationBackend {
	case "buntdb":
		store, err := reservation.NewBuntStore(cfg.ReservationDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open buntdb reservation store: %w", err)
		}
		return store, store.Close, nil
	default:
		return reservation.New(), nil, nil
	}
}

func newTowers(cfg *config.Config, layout warehouse.Layout, bus *events.Bus) (map[string]*lifter.Coordinator, error) {
	client := plc.NewGuardedClient(plc.NewSimClient(), cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout, cfg.CircuitBreakerHalfOpenLimit)
	mover := &lifter.PLCMover{Client: client, PollEvery: cfg.LifterPollInterval}
	sensor := func(ctx context.Context) domain.SensorSnapshot {
		return plc.SensorSnapshot(ctx, client, "LIFTER_1", "TOWER-1", layout.Floors)
	}

	towers := make(map[string]*lifter.Coordinator, len(layout.Floors))
	coordinator := lifter.New("TOWER-1", "LIFTER_1", mover, sensor, bus, cfg.LifterBusyTTL)
	for _, floor := range layout.Floors {
		towers[floor] = coordinator
	}
	return towers, nil
}

// seedDemoFleet registers a small starter fleet of shuttles and AMRs so the
// controller has vehicles to dispatch against on a cold start.
func (s *System) seedDemoFleet(layout warehouse.Layout, entryNodes map[string]string) {
	homeFloor := layout.Floors[0]
	homeNode := entryNodes[homeFloor]

	for i := 0; i < s.cfg.DefaultShuttleCount; i++ {
		id := fmt.Sprintf("SHUTTLE-%d", i+1)
		s.Vehicles.Upsert(domain.VehicleState{
			ID:           id,
			Kind:         domain.VehicleShuttle,
			CurrentNode:  homeNode,
			CurrentFloor: homeFloor,
			Status:       domain.VehicleIdle,
			UpdatedAt:    time.Now(),
		})
		if err := s.Occupation.Block(homeNode, id, s.cfg.OccupationLease); err != nil {
			s.logger.Warn("demo shuttle seed occupation refused", slog.String("vehicle", id), slog.String("error", err.Error()))
		}
	}
	for i := 0; i < s.cfg.DefaultAMRCount; i++ {
		id := fmt.Sprintf("AMR-%d", i+1)
		s.Vehicles.Upsert(domain.VehicleState{
			ID:           id,
			Kind:         domain.VehicleAMR,
			CurrentNode:  homeNode,
			CurrentFloor: homeFloor,
			Status:       domain.VehicleIdle,
			Battery:      100,
			UpdatedAt:    time.Now(),
		})
	}
}

// startAMRPollers builds the C13 poller set (no sensors source is wired)
// for every AMR currently registered, reading back from the vehicle-state
// store the AMR's own telemetry loop would otherwise push into. The sets it
// builds are neither run nor kept; Run builds and starts its own.
func (s *System) startAMRPollers() {
	for _, v := range s.Vehicles.GetAll() {
		if v.Kind != domain.VehicleAMR {
			continue
		}
		s.amrPollers(v.ID)
	}
}

func (s *System) amrPollers(id string) *amr.Pollers {
	location := func(ctx context.Context) (any, error) {
		v, ok := s.Vehicles.Get(id)
		if !ok {
			return nil, domain.ErrVehicleNotFound
		}
		return v.CurrentNode, nil
	}
	battery := func(ctx context.Context) (any, error) {
		v, ok := s.Vehicles.Get(id)
		if !ok {
			return nil, domain.ErrVehicleNotFound
		}
		return v.Battery, nil
	}
	cargo := func(ctx context.Context) (any, error) {
		v, ok := s.Vehicles.Get(id)
		if !ok {
			return nil, domain.ErrVehicleNotFound
		}
		return v.Carrying, nil
	}
	status := func(ctx context.Context) (any, error) {
		v, ok := s.Vehicles.Get(id)
		if !ok {
			return nil, domain.ErrVehicleNotFound
		}
		return string(v.Status), nil
	}
	return amr.NewPollers(id, s.AMRCache, location, battery, cargo, status, nil)
}

// Run starts every supervised background loop. It returns once all loops
// have been launched; the loops themselves run until ctx is cancelled.
func (s *System) Run(ctx context.Context) {
	s.Traffic.StartCleaner(ctx, s.cfg.TrafficCleanupPeriod)
	s.Staging.Run(ctx, s.cfg.StagingTickInterval)
	s.Resolver.RunDeadlockDetector(ctx, s.cfg.DeadlockSweepEvery)
	s.Router.Run(ctx)

	sweepEvery := s.cfg.RowLockSweepEvery
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RowLocks.Sweep(s.cfg.RowLockSweepAge)
			}
		}
	}()

	seenTowers := make(map[*lifter.Coordinator]bool, len(s.Towers))
	for _, tower := range s.Towers {
		if seenTowers[tower] {
			continue
		}
		seenTowers[tower] = true
		tower.Run(ctx, s.cfg.LifterTickInterval)
	}

	for _, v := range s.Vehicles.GetAll() {
		if v.Kind == domain.VehicleAMR {
			s.amrPollers(v.ID).Run(ctx)
		}
	}

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Dispatcher.DispatchNextTask(ctx)
			}
		}
	}()

	s.logger.InfoContext(ctx, "fleet controller background loops started")
}

// Shutdown releases any resources opened at construction (e.g. a buntdb
// file handle). Background loops stop on their own once ctx is cancelled.
func (s *System) Shutdown() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Error("error closing resource during shutdown", slog.String("error", err.Error()))
		}
	}
}

// newTaskID generates a short random id for HTTP-facing task/ledger
// entries (AMR path tasks, lifter external requests); committed shuttle
// tasks instead use the staging scheduler's own id scheme.
func newTaskID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
