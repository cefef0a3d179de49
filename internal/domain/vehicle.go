package domain

import "time"

// VehicleKind distinguishes the three fleet populations coordinated by the
// controller; each participates in a different subset of components (§4.13
// notes AMRs skip C3/C6/C9).
type VehicleKind string

const (
	VehicleShuttle VehicleKind = "SHUTTLE"
	VehicleAMR     VehicleKind = "AMR"
	VehicleLifter  VehicleKind = "LIFTER"
)

// VehicleStatus is the lifecycle state of a vehicle's current activity.
type VehicleStatus string

const (
	VehicleIdle     VehicleStatus = "IDLE"
	VehicleMoving   VehicleStatus = "MOVING"
	VehicleWaiting  VehicleStatus = "WAITING"
	VehiclePicking  VehicleStatus = "PICKING"
	VehicleDropping VehicleStatus = "DROPPING"
	VehicleError    VehicleStatus = "ERROR"
)

// VehicleState is the controller's cached view of a single vehicle. Writes
// to one vehicle's record are funneled through its dispatcher/executor
// (single-writer); readers get copies from the vehicle-state store's Get
// and GetAll.
type VehicleState struct {
	ID            string        `json:"id"`
	Kind          VehicleKind   `json:"kind"`
	CurrentNode   string        `json:"current_node"`
	CurrentFloor  string        `json:"current_floor"`
	Carrying      bool          `json:"carrying"`
	Status        VehicleStatus `json:"status"`
	ActiveTaskID  string        `json:"active_task_id,omitempty"`
	Battery       float64       `json:"battery,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsIdle reports whether the vehicle can accept a new task.
func (v VehicleState) IsIdle() bool {
	return v.Status == VehicleIdle && v.ActiveTaskID == ""
}
