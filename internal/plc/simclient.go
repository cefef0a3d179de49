package plc

import (
	"context"
	"sync"
	"time"
)

// SimClient is an in-process stand-in for the real S7/OPC-UA PLC link,
// used where no physical tower is wired up (demo/dev deployments and
// tests). A write to a CTRL tag schedules the matching POS tag to flip
// true after TravelTime, modelling the lifter's physical travel delay.
type SimClient struct {
	mu         sync.Mutex
	values     map[string]bool
	TravelTime time.Duration
}

// NewSimClient creates a simulated PLC client with every POS tag starting
// at floor 1 (true) and every CTRL tag at rest (false).
func NewSimClient() *SimClient {
	return &SimClient{
		values: map[string]bool{
			TagLifterPosFloor1: true,
		},
		TravelTime: 500 * time.Millisecond,
	}
}

// GetValue returns the cached value for tag, defaulting to false.
func (s *SimClient) GetValue(ctx context.Context, plcID, tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[tag], nil
}

// WriteValue sets tag immediately; a CTRL tag write additionally arms a
// timer that flips the corresponding POS tag once TravelTime elapses,
// simulating physical arrival.
func (s *SimClient) WriteValue(ctx context.Context, plcID, tag string, value bool) error {
	s.mu.Lock()
	s.values[tag] = value
	s.mu.Unlock()

	posTag := ""
	switch tag {
	case TagLifterCtrlFloor1:
		posTag = TagLifterPosFloor1
	case TagLifterCtrlFloor2:
		posTag = TagLifterPosFloor2
	default:
		return nil
	}
	if !value {
		return nil
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.TravelTime):
		}
		s.mu.Lock()
		s.values[TagLifterPosFloor1] = posTag == TagLifterPosFloor1
		s.values[TagLifterPosFloor2] = posTag == TagLifterPosFloor2
		s.values[tag] = false
		s.mu.Unlock()
	}()
	return nil
}
