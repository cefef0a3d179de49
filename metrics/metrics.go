// Package metrics registers every Prometheus series the controller exposes:
// generic HTTP/process gauges in a HistogramVec/GaugeVec style, plus one
// series per store/coordinator in the fleet pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wcs"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP request processing.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Count of errors by kind and originating component.",
		},
		[]string{"kind", "component"},
	)

	avgResponseTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_response_time_seconds",
			Help:      "Most recent response time sample for a named operation.",
		},
		[]string{"operation"},
	)

	memoryUsageBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Process memory usage by kind (alloc/sys/heap_objects).",
		},
		[]string{"kind"},
	)

	// Domain-specific series (C1-C13), one counter/gauge per coordination
	// event a reviewer would want paged on.
	missionDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mission_dispatch_duration_seconds",
			Help:      "Time to build a mission segment (C8 BuildSegment).",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"purpose"},
	)

	conflictResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_resolutions_total",
			Help:      "Count of conflict resolutions by decision action (C9).",
		},
		[]string{"action"},
	)

	deadlocksBrokenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadlocks_broken_total",
			Help:      "Count of deadlock cycles broken via forced release (C9.2).",
		},
		[]string{"tower"},
	)

	lifterQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lifter_queue_depth",
			Help:      "Current FIFO queue depth per lifter tower (C7).",
		},
		[]string{"tower"},
	)

	corridorDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corridor_detections_total",
			Help:      "Count of nodes classified as a corridor by the traffic map (C4).",
		},
		[]string{"high_traffic"},
	)

	occupationLeaseExpirationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occupation_lease_expirations_total",
			Help:      "Count of node occupation entries observed expired on read (C2).",
		},
		[]string{},
	)

	reservationContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_contention_total",
			Help:      "Count of reservation Acquire calls that lost the race (C3).",
		},
		[]string{"namespace"},
	)

	stagingQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_queue_depth",
			Help:      "Number of tasks awaiting end-node commit (C10).",
		},
		[]string{},
	)

	taskQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of committed shuttle tasks by status (C11).",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestDuration,
		errorsTotal,
		avgResponseTime,
		memoryUsageBytes,
		missionDispatchDuration,
		conflictResolutionsTotal,
		deadlocksBrokenTotal,
		lifterQueueDepth,
		corridorDetectionsTotal,
		occupationLeaseExpirationsTotal,
		reservationContentionTotal,
		stagingQueueDepth,
		taskQueueDepth,
	)
}

// RecordHTTPRequest observes one HTTP request's duration.
func RecordHTTPRequest(method, endpoint, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(seconds)
}

// IncError increments the error counter for kind/component.
func IncError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// SetAvgResponseTime records the latest sample for a named operation.
func SetAvgResponseTime(operation string, seconds float64) {
	avgResponseTime.WithLabelValues(operation).Set(seconds)
}

// SetMemoryUsage records a process memory gauge sample.
func SetMemoryUsage(kind string, bytes float64) {
	memoryUsageBytes.WithLabelValues(kind).Set(bytes)
}

// ObserveMissionDispatch records how long BuildSegment took for purpose.
func ObserveMissionDispatch(purpose string, seconds float64) {
	missionDispatchDuration.WithLabelValues(purpose).Observe(seconds)
}

// IncConflictResolution counts one conflict-resolver decision by action.
func IncConflictResolution(action string) {
	conflictResolutionsTotal.WithLabelValues(action).Inc()
}

// IncDeadlockBroken counts one forced-release deadlock break for a tower.
func IncDeadlockBroken(tower string) {
	deadlocksBrokenTotal.WithLabelValues(tower).Inc()
}

// SetLifterQueueDepth publishes a tower's current FIFO depth.
func SetLifterQueueDepth(tower string, depth int) {
	lifterQueueDepth.WithLabelValues(tower).Set(float64(depth))
}

// IncCorridorDetection counts one corridor classification.
func IncCorridorDetection(highTraffic bool) {
	corridorDetectionsTotal.WithLabelValues(boolLabel(highTraffic)).Inc()
}

// IncOccupationLeaseExpiration counts one observed-expired occupation read.
func IncOccupationLeaseExpiration() {
	occupationLeaseExpirationsTotal.WithLabelValues().Inc()
}

// IncReservationContention counts one lost Acquire race in a key namespace.
func IncReservationContention(namespace string) {
	reservationContentionTotal.WithLabelValues(namespace).Inc()
}

// SetStagingQueueDepth publishes the staging scheduler's pending count.
func SetStagingQueueDepth(depth int) {
	stagingQueueDepth.WithLabelValues().Set(float64(depth))
}

// SetTaskQueueDepth publishes the shuttle task queue's count for a status.
func SetTaskQueueDepth(status string, depth int) {
	taskQueueDepth.WithLabelValues(status).Set(float64(depth))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
