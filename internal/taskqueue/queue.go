// Package taskqueue implements the globally ordered shuttle task queue
// (C11): a FIFO of committed tasks keyed by registration order, plus the
// status side effects §4.11 specifies for assignment and completion.
package taskqueue

import (
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// Queue is the committed-task FIFO plus its processing/vehicle indexes.
type Queue struct {
	mu           sync.Mutex
	tasks        map[string]domain.Task
	pendingOrder []string
	processing   map[string]struct{}
	vehicleTask  map[string]string
	now          func() time.Time
}

// New creates an empty task queue.
func New() *Queue {
	return &Queue{
		tasks:       make(map[string]domain.Task),
		processing:  make(map[string]struct{}),
		vehicleTask: make(map[string]string),
		now:         time.Now,
	}
}

// Register enqueues a newly committed task as pending, in registration
// order.
func (q *Queue) Register(t domain.Task) {
	q.mu.Lock()
	t.Status = domain.TaskPending
	if t.RegisteredAt.IsZero() {
		t.RegisteredAt = q.now()
	}
	q.tasks[t.ID] = t
	q.pendingOrder = append(q.pendingOrder, t.ID)
	depth := len(q.pendingOrder)
	q.mu.Unlock()
	metrics.SetTaskQueueDepth(string(domain.TaskPending), depth)
}

// NextPending peeks the earliest-registered task still in pending status,
// without removing it from the queue (removal happens on UpdateStatus to
// assigned, per §4.11).
func (q *Queue) NextPending() (domain.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.pendingOrder {
		if t, ok := q.tasks[id]; ok && t.Status == domain.TaskPending {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Get returns the current record for taskID.
func (q *Queue) Get(taskID string) (domain.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	return t, ok
}

// TaskForVehicle returns the task currently assigned to vehicle, if any.
func (q *Queue) TaskForVehicle(vehicle string) (domain.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id, ok := q.vehicleTask[vehicle]
	if !ok {
		return domain.Task{}, false
	}
	t, ok := q.tasks[id]
	return t, ok
}

// UpdateStatus transitions taskID to status, applying the side effects
// §4.11 specifies: assigned removes the task from the pending queue and
// indexes it by vehicle; completed/failed clears both indexes.
func (q *Queue) UpdateStatus(taskID string, status domain.TaskStatus, vehicle string) error {
	q.mu.Lock()

	t, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		return domain.NewNotFoundError("task not found", nil).WithContext("task_id", taskID)
	}
	t.Status = status
	t.UpdatedAt = q.now()
	if vehicle != "" {
		t.AssignedVehicle = vehicle
	}
	q.tasks[taskID] = t

	switch status {
	case domain.TaskAssigned:
		q.processing[taskID] = struct{}{}
		if vehicle != "" {
			q.vehicleTask[vehicle] = taskID
		}
		q.removePending(taskID)
	case domain.TaskCompleted, domain.TaskFailed:
		delete(q.processing, taskID)
		for v, id := range q.vehicleTask {
			if id == taskID {
				delete(q.vehicleTask, v)
			}
		}
	}
	pending, processing := len(q.pendingOrder), len(q.processing)
	q.mu.Unlock()

	metrics.SetTaskQueueDepth(string(domain.TaskPending), pending)
	metrics.SetTaskQueueDepth(string(domain.TaskAssigned), processing)
	return nil
}

func (q *Queue) removePending(taskID string) {
	for i, id := range q.pendingOrder {
		if id == taskID {
			q.pendingOrder = append(q.pendingOrder[:i], q.pendingOrder[i+1:]...)
			return
		}
	}
}

// ProcessingCount returns the number of tasks currently in the processing
// set, for metrics.
func (q *Queue) ProcessingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.processing)
}

// PendingCount returns the number of tasks still awaiting assignment.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, id := range q.pendingOrder {
		if t, ok := q.tasks[id]; ok && t.Status == domain.TaskPending {
			n++
		}
	}
	return n
}
