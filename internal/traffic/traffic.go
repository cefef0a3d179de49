// Package traffic implements the path cache and traffic map (C4): the
// active-path-per-vehicle store the pathfinder's traffic/corridor penalties
// read from, plus the corridor detector and its background cleaner.
package traffic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/constants"
	"github.com/warehouse-wcs/fleet-controller/internal/domain"
	"github.com/warehouse-wcs/fleet-controller/metrics"
)

// corridorThreshold is the minimum share of traversals a single direction
// must hold at a node for that node to qualify as a corridor (§4.4).
const corridorThreshold = 0.70

// Map stores the active path of every vehicle currently moving, plus
// metadata, and answers the pathfinder's traffic/corridor queries.
type Map struct {
	mu     sync.RWMutex
	paths  map[string]domain.ActivePath
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty traffic map.
func New() *Map {
	return &Map{
		paths:  make(map[string]domain.ActivePath),
		logger: slog.With(slog.String("component", constants.ComponentTraffic)),
		now:    time.Now,
	}
}

// SavePath stores vehicle's path plus carrying/priority metadata, with a
// TTL defaulting to constants.DefaultPathTTL when ttl<=0.
func (m *Map) SavePath(vehicle string, path domain.Path, isCarrying bool, priority int64, ttl time.Duration) {
	if ttl <= 0 {
		ttl = constants.DefaultPathTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[vehicle] = domain.ActivePath{
		Vehicle: vehicle,
		Path:    path,
		Metadata: domain.PathMetadata{
			IsCarrying: isCarrying,
			Priority:   priority,
			SavedAt:    m.now(),
			TTL:        ttl,
		},
	}
}

// DeletePath removes vehicle's path and metadata together.
func (m *Map) DeletePath(vehicle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paths, vehicle)
}

// Get returns vehicle's currently cached path, if any.
func (m *Map) Get(vehicle string) (domain.ActivePath, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.paths[vehicle]
	return p, ok
}

// GetAllActivePaths returns a snapshot of every live (non-expired) active
// path, for the traffic model and for conflict-resolution reroute avoidance.
func (m *Map) GetAllActivePaths() []domain.ActivePath {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	out := make([]domain.ActivePath, 0, len(m.paths))
	for _, p := range m.paths {
		if !p.Metadata.Expired(now) {
			out = append(out, p)
		}
	}
	return out
}

// DirectionHistogram counts, for a node, the number of active-path
// traversals per direction (1..4). Implements graph.TrafficView.
func (m *Map) DirectionHistogram(node string) map[int]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()

	hist := make(map[int]int)
	for _, ap := range m.paths {
		if ap.Metadata.Expired(now) {
			continue
		}
		for _, step := range ap.Path.Steps {
			if step.Node == node && step.Direction != 0 {
				hist[step.Direction]++
			}
		}
	}
	return hist
}

// IsCorridor reports whether node is a corridor (§4.4): at least 2 distinct
// vehicles traverse it and a single direction holds >=70% of traversals.
// It is additionally high-traffic if at least 3 distinct vehicles traverse
// it. Implements graph.TrafficView.
func (m *Map) IsCorridor(node string) (corridor bool, highTraffic bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()

	vehicles := 0
	hist := make(map[int]int)
	for _, ap := range m.paths {
		if ap.Metadata.Expired(now) {
			continue
		}
		traversed := false
		for _, step := range ap.Path.Steps {
			if step.Node == node {
				traversed = true
				if step.Direction != 0 {
					hist[step.Direction]++
				}
			}
		}
		if traversed {
			vehicles++
		}
	}

	if vehicles < 2 {
		return false, false
	}

	total := 0
	best := 0
	for _, count := range hist {
		total += count
		if count > best {
			best = count
		}
	}
	if total == 0 || float64(best)/float64(total) < corridorThreshold {
		return false, false
	}
	highTraffic = vehicles >= 3
	metrics.IncCorridorDetection(highTraffic)
	return true, highTraffic
}

// StartCleaner runs the background cleaner described in §4.4: every
// cleanupPeriod, any path whose metadata age exceeds its TTL is deleted
// along with its metadata. It runs until ctx is cancelled.
func (m *Map) StartCleaner(ctx context.Context, cleanupPeriod time.Duration) {
	if cleanupPeriod <= 0 {
		cleanupPeriod = constants.TrafficCleanupPeriod
	}
	ticker := time.NewTicker(cleanupPeriod)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *Map) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for vehicle, p := range m.paths {
		if p.Metadata.Expired(now) {
			delete(m.paths, vehicle)
			m.logger.Debug("swept expired active path", slog.String("vehicle", vehicle))
		}
	}
}
