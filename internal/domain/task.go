package domain

import "time"

// TaskStatus is the lifecycle of a committed mission, per §3 Task.
type TaskStatus string

const (
	TaskPending           TaskStatus = "pending"
	TaskAssigned          TaskStatus = "assigned"
	TaskInProgress        TaskStatus = "in_progress"
	TaskWaitingForLifter  TaskStatus = "waiting_for_lifter"
	TaskCompleted         TaskStatus = "completed"
	TaskFailed            TaskStatus = "failed"
)

// IsTerminal reports whether the status ends the task's lifecycle.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is a single pickup/drop mission. EndNode/EndFloor are unset at
// registration and are filled in by the staging scheduler (C10) at commit
// time, never before.
type Task struct {
	ID             string     `json:"id"`
	PickupNode     string     `json:"pickup_node"`
	PickupFloor    string     `json:"pickup_floor"`
	EndNode        string     `json:"end_node,omitempty"`
	EndFloor       string     `json:"end_floor,omitempty"`
	PalletType     string     `json:"pallet_type"`
	Carrying       bool       `json:"carrying"`
	Status         TaskStatus `json:"status"`
	AssignedVehicle string    `json:"assigned_vehicle,omitempty"`
	BatchID        string     `json:"batch_id,omitempty"`
	Row            int        `json:"row,omitempty"`
	ItemInfo       []byte     `json:"item_info,omitempty"`
	RegisteredAt   time.Time  `json:"registered_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Committed reports whether the task has passed through C10 staging and has
// an end node assigned.
func (t Task) Committed() bool {
	return t.EndNode != ""
}
