// Package amr implements the AMR async executor and pollers (C13): five
// per-vehicle pollers feeding a state cache, and a fire-and-forget task
// executor that drives a metric-graph move list through a status sequence
// (§4.13).
package amr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
)

// Status values for a fire-and-forget AMR task (§4.13).
const (
	TaskQueued    = "QUEUED"
	TaskAssigned  = "ASSIGNED"
	TaskStarted   = "STARTED"
	TaskProgress  = "PROGRESS"
	TaskCompleted = "COMPLETED"
	TaskFailed    = "FAILED"
)

// Catalog is the C1 slice used to build the metric move list.
type Catalog interface {
	MetricAStar(start, goal string) *domain.Path
}

// PollFunc fetches one kind of AMR telemetry; the cache stores whatever it
// returns, type-erased, alongside the error for observability.
type PollFunc func(ctx context.Context) (any, error)

// StateCache stores every `amr:<id>:<kind>` entry pollers write to.
type StateCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Entry is a single cached poll result.
type Entry struct {
	Value     any
	Err       error
	UpdatedAt time.Time
}

// NewStateCache creates an empty AMR state cache.
func NewStateCache() *StateCache {
	return &StateCache{entries: make(map[string]Entry)}
}

func (c *StateCache) set(key string, value any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Value: value, Err: err, UpdatedAt: time.Now()}
}

// Get returns the cached entry for `amr:<id>:<kind>`.
func (c *StateCache) Get(id, kind string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(id, kind)]
	return e, ok
}

// All returns every cached entry for a given AMR id.
func (c *StateCache) All(id string) map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	prefix := "amr:" + id + ":"
	out := make(map[string]Entry)
	for k, v := range c.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = v
		}
	}
	return out
}

func cacheKey(id, kind string) string { return "amr:" + id + ":" + kind }

// pollerSpec pairs a telemetry kind with its fetch interval (§4.13).
type pollerSpec struct {
	kind     string
	interval time.Duration
	fetch    PollFunc
}

// Pollers owns the five background pollers for one AMR.
type Pollers struct {
	id     string
	cache  *StateCache
	specs  []pollerSpec
	logger *slog.Logger
}

// NewPollers creates the five pollers for AMR id. Any fetch func left nil
// is skipped.
func NewPollers(id string, cache *StateCache, location, battery, cargo, status, sensors PollFunc) *Pollers {
	p := &Pollers{id: id, cache: cache, logger: slog.With(slog.String("component", constants.ComponentAMR), slog.String("amr", id))}
	add := func(kind string, interval time.Duration, fn PollFunc) {
		if fn != nil {
			p.specs = append(p.specs, pollerSpec{kind: kind, interval: interval, fetch: fn})
		}
	}
	add("location", constants.AMRLocationPollInterval, location)
	add("battery", constants.AMRBatteryPollInterval, battery)
	add("cargo", constants.AMRCargoPollInterval, cargo)
	add("status", constants.AMRStatusPollInterval, status)
	add("sensors", constants.AMRSensorsPollInterval, sensors)
	return p
}

// Run starts every poller as its own supervised loop. Each poller retries
// on its own schedule after an error; none restart each other (§4.13: "a
// poller is never restarted automatically on error").
func (p *Pollers) Run(ctx context.Context) {
	for _, spec := range p.specs {
		go p.loop(ctx, spec)
	}
}

func (p *Pollers) loop(ctx context.Context, spec pollerSpec) {
	ticker := time.NewTicker(spec.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			value, err := spec.fetch(ctx)
			if err != nil {
				p.logger.Error("poll failed", slog.String("kind", spec.kind), slog.String("error", err.Error()))
			}
			p.cache.set(cacheKey(p.id, spec.kind), value, err)
		}
	}
}

// TaskEvent is one status transition emitted during fire-and-forget task
// execution (§4.13), published on events.TopicVehicleEvents.
type TaskEvent struct {
	TaskID  string
	Vehicle string
	Status  string
	Step    int
	Node    string
	Err     string
}

// Executor drives the fire-and-forget AMR task sequence.
type Executor struct {
	Catalog   Catalog
	Bus       *events.Bus
	StepDelay time.Duration
}

// NewExecutor creates an AMR task executor.
func NewExecutor(catalog Catalog, bus *events.Bus) *Executor {
	return &Executor{Catalog: catalog, Bus: bus, StepDelay: constants.AMRStepDelay}
}

// Enqueue builds the move list via metric A* and returns that path
// immediately (nil, after emitting a FAILED event, when no path exists);
// the status sequence runs in the background.
func (e *Executor) Enqueue(ctx context.Context, taskID, vehicle, start, goal string) *domain.Path {
	path := e.Catalog.MetricAStar(start, goal)
	if path == nil {
		e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskFailed, Err: "no path found"})
		return nil
	}

	e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskQueued})
	go e.run(ctx, taskID, vehicle, *path)
	return path
}

func (e *Executor) run(ctx context.Context, taskID, vehicle string, path domain.Path) {
	e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskAssigned})
	e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskStarted})

	delay := e.StepDelay
	if delay <= 0 {
		delay = constants.AMRStepDelay
	}

	for i, step := range path.Steps {
		select {
		case <-ctx.Done():
			e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskFailed, Err: "cancelled"})
			return
		case <-time.After(delay):
		}
		e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskProgress, Step: i + 1, Node: step.Node})
	}
	e.emit(TaskEvent{TaskID: taskID, Vehicle: vehicle, Status: TaskCompleted})
}

func (e *Executor) emit(evt TaskEvent) {
	e.Bus.Publish(events.TopicVehicleEvents, evt)
}
