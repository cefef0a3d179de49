package plc

import (
	"context"
	"time"

	"github.com/warehouse-wcs/fleet-controller/internal/domain"
)

// Tag names used by the lifter coordinator (§6 PLC contract).
const (
	TagLifterPosFloor1  = "LIFTER_1_POS_F1"
	TagLifterPosFloor2  = "LIFTER_1_POS_F2"
	TagLifterCtrlFloor1 = "LIFTER_1_CTRL_F1"
	TagLifterCtrlFloor2 = "LIFTER_1_CTRL_F2"
	TagLifterError      = "LIFTER_1_ERROR"
)

// Client is the external PLC collaborator's contract (§6): getValue/writeValue
// against a PLC id and tag. The wire protocol (S7) is out of scope; only the
// interface is specified here, satisfied by whatever real client the
// deployment wires in.
type Client interface {
	GetValue(ctx context.Context, plcID, tag string) (bool, error)
	WriteValue(ctx context.Context, plcID, tag string, value bool) error
}

// GuardedClient wraps a Client with a circuit breaker so a flaky PLC link
// degrades to domain.ErrTypeUnavailable instead of hanging callers.
type GuardedClient struct {
	inner   Client
	breaker *CircuitBreaker
}

// NewGuardedClient wraps inner with circuit-breaker protection.
func NewGuardedClient(inner Client, maxFailures int, resetTimeout time.Duration, halfOpenLimit int) *GuardedClient {
	return &GuardedClient{
		inner:   inner,
		breaker: NewCircuitBreaker(maxFailures, resetTimeout, halfOpenLimit),
	}
}

// GetValue reads a tag through the circuit breaker.
func (g *GuardedClient) GetValue(ctx context.Context, plcID, tag string) (bool, error) {
	var value bool
	err := g.breaker.Execute(ctx, func() error {
		v, err := g.inner.GetValue(ctx, plcID, tag)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return false, domain.NewUnavailableError("plc getValue failed", err).
			WithContext("plc_id", plcID).WithContext("tag", tag)
	}
	return value, nil
}

// WriteValue writes a tag through the circuit breaker.
func (g *GuardedClient) WriteValue(ctx context.Context, plcID, tag string, value bool) error {
	err := g.breaker.Execute(ctx, func() error {
		return g.inner.WriteValue(ctx, plcID, tag, value)
	})
	if err != nil {
		return domain.NewUnavailableError("plc writeValue failed", err).
			WithContext("plc_id", plcID).WithContext("tag", tag)
	}
	return nil
}

// SensorSnapshot reads the two-boolean-flag-per-floor physical readout for a
// tower, used by the lifter coordinator's drift correction (§4.7).
func SensorSnapshot(ctx context.Context, client Client, plcID, towerID string, floors []string) domain.SensorSnapshot {
	snap := domain.SensorSnapshot{TowerID: towerID, AtFloor: make(map[string]bool, len(floors))}
	for _, floor := range floors {
		tag := positionTag(floor)
		if tag == "" {
			continue
		}
		v, err := client.GetValue(ctx, plcID, tag)
		if err != nil {
			snap.Error = true
			continue
		}
		snap.AtFloor[floor] = v
	}
	errVal, err := client.GetValue(ctx, plcID, TagLifterError)
	if err == nil && errVal {
		snap.Error = true
	}
	return snap
}

func positionTag(floor string) string {
	switch floor {
	case "F1", "1":
		return TagLifterPosFloor1
	case "F2", "2":
		return TagLifterPosFloor2
	default:
		return ""
	}
}
