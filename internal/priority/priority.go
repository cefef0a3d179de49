// Package priority implements the deterministic priority calculator (C5)
// used by the conflict resolver to decide who yields in a node contention.
package priority

import "github.com/warehouse-wcs/fleet-controller/internal/domain"

// fifoBound caps the magnitude of the FIFO term so carryingWeight always
// dominates it. A raw RegisteredAt.UnixNano() grows with wall-clock time
// and eventually exceeds any fixed weight, so the term is folded into a
// window (~11.6 days) no pending task realistically outlives, the same
// way §4.5's own formula keeps its FIFO term under 1e6 rather than using
// an unbounded counter.
const fifoBound = 1_000_000_000_000_000

// carryingWeight dominates the bounded FIFO term below by three orders of
// magnitude, so any carrying task always outranks any non-carrying one,
// per §4.5, regardless of how far apart their registration times are.
const carryingWeight = 1_000_000_000_000_000_000

// Score returns the deterministic priority for a task per §4.5: carrying
// dominates unconditionally; among equals, the earlier-registered task
// wins within the fifoBound window (task ids are timestamp+random per §3,
// so registration order is the FIFO tie-break). Waiting time is
// deliberately excluded — escalation lives in the conflict resolver, not
// in priority.
func Score(t domain.Task) int64 {
	fifoTerm := t.RegisteredAt.UnixNano() % fifoBound
	var score int64
	if t.Carrying {
		score += carryingWeight
	}
	score -= fifoTerm
	return score
}

// Reason names the dominant criterion behind a Compare outcome.
type Reason string

const (
	ReasonCargoStatus Reason = "cargo_status"
	ReasonFIFO        Reason = "fifo"
)

// Comparison is the outcome of comparing two vehicles' claim on a contested
// node, as returned to the conflict resolver.
type Comparison struct {
	Winner string
	Loser  string
	Diff   int64
	Reason Reason
}

// Compare scores vehicle a's task ta against vehicle b's task tb and
// returns which vehicle outranks the other.
func Compare(vehicleA string, ta domain.Task, vehicleB string, tb domain.Task) Comparison {
	scoreA := Score(ta)
	scoreB := Score(tb)

	reason := ReasonFIFO
	if ta.Carrying != tb.Carrying {
		reason = ReasonCargoStatus
	}

	if scoreA >= scoreB {
		return Comparison{Winner: vehicleA, Loser: vehicleB, Diff: scoreA - scoreB, Reason: reason}
	}
	return Comparison{Winner: vehicleB, Loser: vehicleA, Diff: scoreB - scoreA, Reason: reason}
}

// Outranks reports whether a's task outranks b's task.
func Outranks(ta, tb domain.Task) bool {
	return Score(ta) > Score(tb)
}
