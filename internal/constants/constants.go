package constants

import "time"

// Application constants centralized in one location to improve type safety
// and eliminate magic strings throughout the codebase.

// Default Configuration Values
const (
	DefaultPort     = 6660
	DefaultLogLevel = "INFO"

	// Occupation lease default (C2)
	DefaultOccupationLease = 300 * time.Second
	// Reservation default TTL (C3)
	DefaultReservationTTL = 120 * time.Second
	// Path/traffic metadata TTL (C4)
	DefaultPathTTL        = 600 * time.Second
	TrafficCleanupPeriod  = 30 * time.Second
	// Row lock idle expiry / sweep (C6)
	RowLockIdleExpiry = 5 * time.Minute
	RowLockSweepAge   = 10 * time.Minute
	RowLockSweepEvery = 1 * time.Minute
	RowBatchTTL       = 1 * time.Hour
	// Lifter (C7)
	LifterBusyTTL = 60 * time.Second
	// Conflict resolution (C9)
	ConflictInitialWait     = 5 * time.Second
	ConflictRetryInterval   = 15 * time.Second
	ConflictEmergencyWaitAt = 45 * time.Second
	DeadlockSweepEvery      = 30 * time.Second
	ParkingMaxDistance      = 3
	MaxBacktrackSteps       = 5
	// Staging scheduler (C10)
	StagingTickInterval   = 5 * time.Second
	MultiVehicleThreshold = 2
	// Publish-with-retry (C12)
	PublishAckTimeout  = 30 * time.Second
	PublishRetryPeriod = 500 * time.Millisecond
	// AMR pollers (C13)
	AMRLocationPollInterval = 1 * time.Second
	AMRBatteryPollInterval  = 5 * time.Second
	AMRCargoPollInterval    = 3 * time.Second
	AMRStatusPollInterval   = 2 * time.Second
	AMRSensorsPollInterval  = 2 * time.Second
	AMRStepDelay            = 3 * time.Second

	StatusUpdateInterval = 1 * time.Second
)

// HTTP Content Types
const (
	ContentTypeJSON      = "application/json"
	ContentTypeTextPlain = "text/plain"
)

// HTTP Methods
const (
	MethodGET  = "GET"
	MethodPOST = "POST"
)

// Component Names for Logging
const (
	ComponentHTTPServer   = "http-server"
	ComponentHTTPHandler  = "http_handler"
	ComponentGraph        = "graph"
	ComponentOccupation   = "occupation"
	ComponentReservation  = "reservation"
	ComponentTraffic      = "traffic"
	ComponentRowLock      = "rowlock"
	ComponentLifter       = "lifter"
	ComponentMission      = "mission"
	ComponentConflict     = "conflict"
	ComponentStaging      = "staging"
	ComponentTaskQueue    = "taskqueue"
	ComponentDispatcher   = "dispatcher"
	ComponentAMR          = "amr"
)

// Vehicle kinds and statuses, action/direction encodings used on the wire
// (mirrors the "QR>dir:action" step encoding from §6 of the spec).
const (
	DirectionUp    = 1
	DirectionRight = 2
	DirectionDown  = 3
	DirectionLeft  = 4
)

const (
	ActionNone       = "NO_ACTION"
	ActionPickUp     = "PICK_UP"
	ActionDropOff    = "DROP_OFF"
	ActionSlow1      = "SLOW_1"
	ActionSlow2      = "SLOW_2"
	ActionStopAtNode = "STOP_AT_NODE"
	ActionFast       = "FAST"
)

// Metrics
const (
	MetricsNamespace = "wcs"
)
