package domain

import "time"

// LifterStatus is the vertical-transport state machine for a single tower.
type LifterStatus string

const (
	LifterIdle   LifterStatus = "IDLE"
	LifterMoving LifterStatus = "MOVING"
)

// LifterRequest is a single FIFO entry in a tower's coordinated queue.
type LifterRequest struct {
	Vehicle      string    `json:"vehicle"`
	TargetFloor  string    `json:"target_floor"`
	Priority     int64     `json:"priority"`
	RequestedAt  time.Time `json:"requested_at"`
}

// LifterState is the cached state of one physical lifter, drift-corrected
// against sensor reads on every access (§4.7).
type LifterState struct {
	TowerID      string       `json:"tower_id"`
	Status       LifterStatus `json:"status"`
	CurrentFloor string       `json:"current_floor"`
	TargetFloor  string       `json:"target_floor,omitempty"`
	AssignedTo   string       `json:"assigned_to,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// SensorSnapshot is the two-boolean-flag-per-floor physical readout the
// lifter coordinator reconciles its cache against.
type SensorSnapshot struct {
	TowerID string
	AtFloor map[string]bool // floor id -> sensor asserts "lifter platform is here"
	Error   bool
}

// ResolvedFloor returns the single floor the sensor snapshot asserts the
// lifter occupies, or "" if none/more than one flag is set (ambiguous).
func (s SensorSnapshot) ResolvedFloor() string {
	found := ""
	count := 0
	for floor, at := range s.AtFloor {
		if at {
			found = floor
			count++
		}
	}
	if count != 1 {
		return ""
	}
	return found
}
