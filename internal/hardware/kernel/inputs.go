package kernel

import (
	"sync"

	"github.com/traintastic/traintastic-go/internal/value"
)

// inputKey identifies one (channel, address) feedback point. A protocol
// with only one channel (DCC-EX) uses a single constant channel name.
type inputKey struct {
	channel string
	address int64
}

// InputChannels holds the last-reported TriState per (channel, address)
// and fires the caller's callback only on transitions.
type InputChannels struct {
	mu    sync.Mutex
	state map[inputKey]value.TriState
}

func NewInputChannels() *InputChannels {
	return &InputChannels{state: make(map[inputKey]value.TriState)}
}

// Update records a new reading and reports whether it differs from the
// last known value (the caller should only fire updateInputValue when
// changed==true).
func (c *InputChannels) Update(channel string, address int64, state value.TriState) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := inputKey{channel, address}
	prev, known := c.state[k]
	if known && prev == state {
		return false
	}
	c.state[k] = state
	return true
}

func (c *InputChannels) Get(channel string, address int64) value.TriState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state[inputKey{channel, address}]
}

// All returns a snapshot of every known (channel, address) -> state entry,
// used by the session layer's input-monitor "current values" query.
func (c *InputChannels) All() map[string]map[int64]value.TriState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[int64]value.TriState)
	for k, v := range c.state {
		m, ok := out[k.channel]
		if !ok {
			m = make(map[int64]value.TriState)
			out[k.channel] = m
		}
		m[k.address] = v
	}
	return out
}

// SimulateAction applies a SimulateInputAction against the current value
// and returns the resulting TriState, without recording it (the caller
// still goes through Update so transitions and the frame round-trip stay
// on one code path, shared between simulated and real input reports.
func (c *InputChannels) SimulateAction(channel string, address int64, action value.SimulateInputAction) value.TriState {
	current := c.Get(channel, address)
	switch action {
	case value.SimulateInputSetFalse:
		return value.TriStateFalse
	case value.SimulateInputSetTrue:
		return value.TriStateTrue
	case value.SimulateInputToggle:
		if current == value.TriStateTrue {
			return value.TriStateFalse
		}
		return value.TriStateTrue
	default:
		return current
	}
}
