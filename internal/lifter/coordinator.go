// Package lifter implements the single-lifter FIFO coordination queue
// (C7): one logical lifter per tower, a busy-locked processor loop, and
// drift correction against the physical PLC sensors (§4.7). §9's open
// question on lifter capacity is resolved by running one Coordinator per
// tower — a multi-lifter deployment registers more instances without
// changing the mission coordinator's contract.
package lifter

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/events"
	"github.com/warehouse-wcs/fleet-controller/internal/plc"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// Mover is the physical move primitive the processor loop calls (§4.7 step
// 5): commands the PLC to move the tower's lifter to targetFloor and
// blocks until arrival is confirmed or ctx is done.
type Mover interface {
	MoveTo(ctx context.Context, towerID, plcID, targetFloor string) error
}

// SensorReader reads the tower's physical sensor snapshot for drift
// correction (§4.7).
type SensorReader func(ctx context.Context) domain.SensorSnapshot

// Coordinator is the FIFO lifter queue and processor loop for a single
// physical tower.
type Coordinator struct {
	mu      sync.Mutex
	towerID string
	plcID   string
	state   domain.LifterState
	queue   *list.List // of domain.LifterRequest

	busy      bool
	busyUntil time.Time

	mover  Mover
	sensor SensorReader
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	busyTTL time.Duration
}

// New creates a lifter coordinator for one physical tower. A non-positive
// busyTTL falls back to constants.LifterBusyTTL; the initial state is
// synthesized from the sensor reader on the first Status call.
func New(towerID, plcID string, mover Mover, sensor SensorReader, bus *events.Bus, busyTTL time.Duration) *Coordinator {
	if busyTTL <= 0 {
		busyTTL = constants.LifterBusyTTL
	}
	return &Coordinator{
		towerID: towerID,
		plcID:   plcID,
		queue:   list.New(),
		mover:   mover,
		sensor:  sensor,
		bus:     bus,
		logger:  slog.With(slog.String("component", constants.ComponentLifter), slog.String("tower", towerID)),
		now:     time.Now,
		busyTTL: busyTTL,
	}
}

// RequestLifter appends a FIFO request for vehicle to travel to
// targetFloor, per §4.7's external request contract.
func (c *Coordinator) RequestLifter(vehicle, targetFloor string, priority int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.PushBack(domain.LifterRequest{
		Vehicle:     vehicle,
		TargetFloor: targetFloor,
		Priority:    priority,
		RequestedAt: c.now(),
	})
	metrics.SetLifterQueueDepth(c.towerID, c.queue.Len())
}

// Status returns the coordinator's cached lifter state, drift-corrected
// against the physical sensor snapshot on every read (§4.7).
func (c *Coordinator) Status(ctx context.Context) domain.LifterState {
	snap := c.sensor(ctx)
	resolved := snap.ResolvedFloor()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.TowerID == "" {
		// Cache empty: synthesize initial state from sensors.
		c.state = domain.LifterState{
			TowerID:      c.towerID,
			Status:       domain.LifterIdle,
			CurrentFloor: resolved,
			UpdatedAt:    c.now(),
		}
		return c.state
	}

	if resolved != "" && resolved != c.state.CurrentFloor && c.state.Status == domain.LifterIdle {
		c.logger.Warn("lifter drift detected, overwriting cache from sensor",
			slog.String("cached_floor", c.state.CurrentFloor), slog.String("sensor_floor", resolved))
		c.state.CurrentFloor = resolved
		c.state.UpdatedAt = c.now()
	}
	return c.state
}

// Tick runs one pass of the processor loop (§4.7 steps 1-7). It is
// intended to run on a supervised loop driven by the caller (or by Run).
func (c *Coordinator) Tick(ctx context.Context) {
	if !c.claimBusy() {
		return
	}
	defer c.clearBusy()

	req, ok := c.popNext()
	if !ok {
		return
	}

	c.mu.Lock()
	c.state.Status = domain.LifterMoving
	c.state.TargetFloor = req.TargetFloor
	c.state.AssignedTo = req.Vehicle
	c.mu.Unlock()

	moveCtx, cancel := context.WithTimeout(ctx, c.busyTTL)
	defer cancel()

	if err := c.mover.MoveTo(moveCtx, c.towerID, c.plcID, req.TargetFloor); err != nil {
		c.logger.Error("lifter move failed", slog.String("error", err.Error()), slog.String("vehicle", req.Vehicle))
		c.mu.Lock()
		c.state.Status = domain.LifterIdle
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.state.Status = domain.LifterIdle
	c.state.CurrentFloor = req.TargetFloor
	c.state.TargetFloor = ""
	c.state.UpdatedAt = c.now()
	c.mu.Unlock()

	c.bus.Publish(events.TopicLifterEvents, events.LifterArrived{
		TowerID: c.towerID,
		Floor:   req.TargetFloor,
		Vehicle: req.Vehicle,
	})
}

// Run drives Tick on a ticker until ctx is cancelled, the processor loop
// described structurally in §4.7 and §5.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick(ctx)
			}
		}
	}()
}

func (c *Coordinator) claimBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.busy && now.Before(c.busyUntil) {
		return false
	}
	c.busy = true
	c.busyUntil = now.Add(c.busyTTL)
	return true
}

func (c *Coordinator) clearBusy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
}

func (c *Coordinator) popNext() (domain.LifterRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	front := c.queue.Front()
	if front == nil {
		return domain.LifterRequest{}, false
	}
	c.queue.Remove(front)
	metrics.SetLifterQueueDepth(c.towerID, c.queue.Len())
	return front.Value.(domain.LifterRequest), true
}

// QueueLen reports the number of pending requests, for metrics (§ SPEC_FULL
// "lifter queue depth" series).
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// PLCMover is the default Mover, issuing the control-tag write and polling
// the position tag through a guarded plc.Client.
type PLCMover struct {
	Client     plc.Client
	PollEvery  time.Duration
}

// MoveTo writes the floor's control tag and polls its position tag until
// the PLC confirms arrival or ctx expires.
func (m *PLCMover) MoveTo(ctx context.Context, towerID, plcID, targetFloor string) error {
	ctrlTag, posTag := tagsFor(targetFloor)
	if err := m.Client.WriteValue(ctx, plcID, ctrlTag, true); err != nil {
		return err
	}

	interval := m.PollEvery
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			at, err := m.Client.GetValue(ctx, plcID, posTag)
			if err != nil {
				return err
			}
			if at {
				return nil
			}
		}
	}
}

func tagsFor(floor string) (ctrlTag, posTag string) {
	switch floor {
	case "F1", "1":
		return plc.TagLifterCtrlFloor1, plc.TagLifterPosFloor1
	case "F2", "2":
		return plc.TagLifterCtrlFloor2, plc.TagLifterPosFloor2
	default:
		return plc.TagLifterCtrlFloor1, plc.TagLifterPosFloor1
	}
}
