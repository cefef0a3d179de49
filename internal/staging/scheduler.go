// Package staging implements the staging scheduler (C10): the single-writer
// tick that commits one staged task per pass to an end node, row, and
// floor, then hands it to the shuttle task queue (§4.10).
package staging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/internal/reservation"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// TaskQueue is the C11 slice the scheduler commits into.
type TaskQueue interface {
	Register(t domain.Task)
}

// RowAssigner is the C6 coordination slice used in multi-vehicle mode.
type RowAssigner interface {
	AssignRowForBatch(batchID, floor string, endNodeRow int, ttl time.Duration) (string, int)
}

// ReservationLocker is the C3 slice used to lock an end-node cell.
type ReservationLocker interface {
	Acquire(key, owner string, ttl time.Duration) error
}

// EndNodeFinder resolves candidate end-node cells for a pallet type,
// standing in for the warehouse-management cell catalog (§4.10 step 3-4).
type EndNodeFinder interface {
	// FirstAvailable returns any currently-available end node for
	// palletType on floor, used to derive the target row; in multi-vehicle
	// mode its row is the one offered to the batch row assignment.
	FirstAvailable(floor, palletType string) (domain.Node, bool)
	// InRow returns every candidate end node for palletType in (floor,
	// row), ordered column-ascending (left to right).
	InRow(floor string, row int, palletType string) []domain.Node
}

// ActiveShuttleCounter reports how many shuttles are currently active, the
// multi-vehicle-mode trigger (§4.10 step 3).
type ActiveShuttleCounter func() int

// Scheduler runs the staging queue's 5s commit tick (C10).
type Scheduler struct {
	mu    sync.Mutex
	queue []domain.Task

	TaskQueue      TaskQueue
	RowAssigner    RowAssigner
	Reservations   ReservationLocker
	EndNodes       EndNodeFinder
	ActiveShuttles ActiveShuttleCounter

	EndNodeLeaseTTL time.Duration
	BatchTTL        time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// New creates a staging scheduler.
func New(taskQueue TaskQueue, rowAssigner RowAssigner, reservations ReservationLocker, endNodes EndNodeFinder, activeShuttles ActiveShuttleCounter) *Scheduler {
	return &Scheduler{
		TaskQueue:       taskQueue,
		RowAssigner:     rowAssigner,
		Reservations:    reservations,
		EndNodes:        endNodes,
		ActiveShuttles:  activeShuttles,
		EndNodeLeaseTTL: constants.DefaultReservationTTL,
		BatchTTL:        constants.RowBatchTTL,
		logger:          slog.With(slog.String("component", constants.ComponentStaging)),
		now:             time.Now,
	}
}

// Push appends a task to the back of the staging queue.
func (s *Scheduler) Push(t domain.Task) {
	s.mu.Lock()
	s.queue = append(s.queue, t)
	depth := len(s.queue)
	s.mu.Unlock()
	metrics.SetStagingQueueDepth(depth)
}

// pushFront reinserts a task at the head of the staging queue (§4.10 steps
// 4 and 7: uncommittable tasks go back to the front, not the back, so FIFO
// order among staged tasks is preserved across ticks).
func (s *Scheduler) pushFront(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]domain.Task{t}, s.queue...)
}

func (s *Scheduler) popFront() (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return domain.Task{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// QueueLen reports the number of tasks still waiting to be staged, for
// metrics.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run drives Tick on a ticker until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = constants.StagingTickInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Tick runs one pass of the §4.10 algorithm: at most one task advances.
func (s *Scheduler) Tick() {
	defer func() { metrics.SetStagingQueueDepth(s.QueueLen()) }()

	task, ok := s.popFront()
	if !ok {
		return
	}

	floor, row, ok := s.resolveRow(task)
	if !ok {
		s.logger.Debug("no end-node row available, deferring task", slog.String("task", task.ID))
		s.pushFront(task)
		return
	}

	candidates := s.EndNodes.InRow(floor, row, task.PalletType)
	if len(candidates) == 0 {
		s.pushFront(task)
		return
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Col < candidates[j].Col })

	for _, node := range candidates {
		key := reservation.EndNodeLockKey(node.QR)
		if err := s.Reservations.Acquire(key, task.ID, s.EndNodeLeaseTTL); err != nil {
			continue
		}
		task.EndNode = node.QR
		task.EndFloor = floor
		task.Row = row
		task.Status = domain.TaskPending
		s.TaskQueue.Register(task)
		return
	}
	s.pushFront(task)
}

// resolveRow implements §4.10 step 3.
func (s *Scheduler) resolveRow(task domain.Task) (floor string, row int, ok bool) {
	if s.ActiveShuttles() >= constants.MultiVehicleThreshold {
		node, found := s.EndNodes.FirstAvailable(task.PickupFloor, task.PalletType)
		if !found {
			return "", 0, false
		}
		batchID := "batch:pickup:" + task.PickupNode
		floor, row = s.RowAssigner.AssignRowForBatch(batchID, node.FloorID, node.Row, s.BatchTTL)
		return floor, row, true
	}

	node, found := s.EndNodes.FirstAvailable(task.PickupFloor, task.PalletType)
	if !found {
		return "", 0, false
	}
	return node.FloorID, node.Row, true
}
