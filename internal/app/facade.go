package app

import (
	"context"

	"github.com/warehouse-wcs/fleet-controller/internal/amr"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// AMRPathResult is the response body shape for POST /amr/path (§6): the
// generated task id plus the metric-graph move list, wire-encoded the same
// way a mission envelope's steps are.
type AMRPathResult struct {
	TaskID       string   `json:"task_id"`
	MoveTaskList []string `json:"move_task_list"`
}

// EnqueueAMRPath implements POST /amr/path: build a metric A* path for amrID
// from startQR to goalQR and hand it to the async executor.
func (s *System) EnqueueAMRPath(ctx context.Context, amrID, startQR, goalQR string) (AMRPathResult, error) {
	if amrID == "" || startQR == "" || goalQR == "" {
		return AMRPathResult{}, domain.NewValidationError("amr_id, start and end are required", nil)
	}

	taskID := newTaskID("amr")
	path := s.AMRExecutor.Enqueue(ctx, taskID, amrID, startQR, goalQR)
	if path == nil {
		return AMRPathResult{}, domain.NewInternalError("no path found between the requested nodes", domain.ErrNoPathFound).
			WithContext("start", startQR).WithContext("goal", goalQR)
	}

	moveList := make([]string, len(path.Steps))
	for i, step := range path.Steps {
		moveList[i] = step.WireString()
	}
	return AMRPathResult{TaskID: taskID, MoveTaskList: moveList}, nil
}

// AMRState implements GET /amr/data/:id: every cached poller entry for the
// AMR, keyed by telemetry kind.
func (s *System) AMRState(amrID string) (map[string]amr.Entry, bool) {
	entries := s.AMRCache.All(amrID)
	if len(entries) == 0 {
		return nil, false
	}
	return entries, true
}

// LifterTaskResult is the response shape for the lifter task endpoints.
type LifterTaskResult struct {
	TaskID      string `json:"task_id"`
	Vehicle     string `json:"vehicle,omitempty"`
	TargetFloor string `json:"target_floor,omitempty"`
	Status      string `json:"status"`
	QueueLength int    `json:"queue_length"`
}

// RequestLifterTask implements POST /lifter/request-task: enqueue vehicle
// onto the tower serving targetFloor and record it in the external task
// ledger.
func (s *System) RequestLifterTask(vehicle, targetFloor string, priority int64) (LifterTaskResult, error) {
	if vehicle == "" || targetFloor == "" {
		return LifterTaskResult{}, domain.NewValidationError("vehicle and target_floor are required", nil)
	}

	tower, ok := s.Towers[targetFloor]
	if !ok {
		return LifterTaskResult{}, domain.NewNotFoundError("no lifter serves this floor", nil).
			WithContext("target_floor", targetFloor)
	}

	taskID := newTaskID("lifter")
	s.lifterTasks.push(&lifterTask{ID: taskID, Vehicle: vehicle, TargetFloor: targetFloor, Status: lifterTaskQueued})
	tower.RequestLifter(vehicle, targetFloor, priority)

	return LifterTaskResult{
		TaskID:      taskID,
		Vehicle:     vehicle,
		TargetFloor: targetFloor,
		Status:      lifterTaskQueued,
		QueueLength: tower.QueueLen(),
	}, nil
}

// CompleteLifterTask implements POST /lifter/complete-task/:id: mark taskID
// done and return the next queued lifter task, if any.
func (s *System) CompleteLifterTask(taskID string) (completed LifterTaskResult, next *LifterTaskResult, err error) {
	done, ok, nextTask := s.lifterTasks.complete(taskID)
	if !ok {
		return LifterTaskResult{}, nil, domain.NewNotFoundError("lifter task not found", nil).WithContext("task_id", taskID)
	}

	completed = LifterTaskResult{TaskID: done.ID, Vehicle: done.Vehicle, TargetFloor: done.TargetFloor, Status: done.Status}
	if nextTask == nil {
		return completed, nil, nil
	}
	return completed, &LifterTaskResult{
		TaskID:      nextTask.ID,
		Vehicle:     nextTask.Vehicle,
		TargetFloor: nextTask.TargetFloor,
		Status:      nextTask.Status,
	}, nil
}

// FleetSnapshot is the payload streamed on /ws/fleet: every vehicle's
// current state plus live queue depths, a multiplexed fleet-wide view.
type FleetSnapshot struct {
	Vehicles      []domain.VehicleState `json:"vehicles"`
	PendingTasks  int                   `json:"pending_tasks"`
	StagingTasks  int                   `json:"staging_tasks"`
	ProcessingSet int                   `json:"processing_tasks"`
}

// Snapshot builds the current FleetSnapshot for the WebSocket feed.
func (s *System) Snapshot() FleetSnapshot {
	return FleetSnapshot{
		Vehicles:      s.Vehicles.GetAll(),
		PendingTasks:  s.Tasks.PendingCount(),
		StagingTasks:  s.Staging.QueueLen(),
		ProcessingSet: s.Tasks.ProcessingCount(),
	}
}
