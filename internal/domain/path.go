package domain

import (
	"fmt"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
)

// Step is a single hop in a vehicle path: the node being entered, the
// direction of travel used to reach it, and an action tag (non-NO_ACTION
// only ever appears on the path's final step, per §4.1).
type Step struct {
	Node      string `json:"node"`
	Direction int    `json:"direction"`
	Action    string `json:"action"`
}

// WireString renders the step in the "QR>dir:action" encoding used on
// vehicle.mission.<id> (§6).
func (s Step) WireString() string {
	return fmt.Sprintf("%s>%d:%s", s.Node, s.Direction, actionCode(s.Action))
}

func actionCode(action string) string {
	switch action {
	case constants.ActionPickUp:
		return "11"
	case constants.ActionDropOff:
		return "12"
	case constants.ActionSlow1:
		return "21"
	case constants.ActionSlow2:
		return "22"
	case constants.ActionStopAtNode:
		return "31"
	case constants.ActionFast:
		return "41"
	default:
		return "00"
	}
}

// Path is the pathfinder's output: an ordered sequence of steps plus a
// total count, as returned by C1 and cached by C4.
type Path struct {
	Steps     []Step `json:"steps"`
	TotalStep int    `json:"total_step"`
}

// Empty reports whether the path has no steps (the "wait in place" case in
// §4.8 step 7).
func (p Path) Empty() bool {
	return len(p.Steps) == 0
}

// NodeSequence returns just the node ids in order, used both for traffic
// crossing checks and for the "running_path_simulation" observer field.
func (p Path) NodeSequence() []string {
	nodes := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		nodes[i] = s.Node
	}
	return nodes
}

// PathMetadata is the bookkeeping C4 stores alongside a path.
type PathMetadata struct {
	IsCarrying bool      `json:"is_carrying"`
	Priority   int64     `json:"priority"`
	SavedAt    time.Time `json:"saved_at"`
	TTL        time.Duration `json:"ttl"`
}

// Expired reports whether the metadata's TTL has lapsed as of now.
func (m PathMetadata) Expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.SavedAt) > m.TTL
}

// ActivePath bundles a vehicle's cached path with its metadata, the shape
// returned by C4.getAllActivePaths() for the traffic model.
type ActivePath struct {
	Vehicle  string
	Path     Path
	Metadata PathMetadata
}
