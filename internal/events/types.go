package events

import "github.com/warehouse-wcs/fleet-controller/internal/domain"

// Topics mirror the logical channels of §6.
const (
	TopicVehicleEvents = "vehicle.events"
	TopicLifterEvents  = "lifter.events"
)

// Vehicle event kinds (§6 ingress).
const (
	KindShuttleInitialized = "shuttle-initialized"
	KindShuttleMoved       = "shuttle-moved"
	KindShuttleWaiting     = "shuttle-waiting"
	KindShuttleResumed     = "shuttle-resumed"
	KindShuttleTaskStarted = "shuttle-task-started"
	KindPickupComplete     = "PICKUP_COMPLETE"
	KindTaskComplete       = "TASK_COMPLETE"
	KindArrivedAtLifter    = "ARRIVED_AT_LIFTER"
	KindWaitingForLifter   = "WAITING_FOR_LIFTER"
)

// VehicleEvent is the tagged-variant envelope for every vehicle.events
// message (§6). Not every field is populated for every Kind; callers read
// only the fields relevant to the Kind they're handling, mirroring the
// dynamically-typed event payloads of the source system.
type VehicleEvent struct {
	Kind         string
	Vehicle      string
	PreviousNode string
	CurrentNode  string
	WaitingAt    string
	TargetNode   string
	BlockedBy    string
}

// LifterArrived is published on lifter.events when a tower finishes a move
// (§4.7 step 6).
type LifterArrived struct {
	TowerID string
	Floor   string
	Vehicle string
}

// MissionCommandAction enumerates vehicle.command.<id> action kinds (§6).
type MissionCommandAction string

const (
	ActionReroute   MissionCommandAction = "REROUTE"
	ActionBacktrack MissionCommandAction = "BACKTRACK"
	ActionYield     MissionCommandAction = "YIELD"
)

// MissionCommand is the egress vehicle.command.<id> envelope.
type MissionCommand struct {
	Vehicle   string
	Action    MissionCommandAction
	Path      domain.Path
	Reason    string
	OnArrival string
}
