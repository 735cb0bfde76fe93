// Package kernel implements the generic protocol-kernel pattern: every
// hardware integration (Z21, DCC-EX, LocoNet, ECoS,
// Märklin-CAN, DINAMO, HSI-88, CBUS, XpressNet) couples one of these
// Kernels to a protocol-specific state machine and an IOHandler.
//
// The pieces compose rather than inherit: Lifecycle owns
// create/start/started/stop; SendQueue is a bounded priority queue;
// PendingRequests repurposes InterruptService's pending-interrupt table
// into the echo/response pending-request table with its timeout windows;
// InputChannels repurposes
// ServiceRegistry's health-tracked service map into TriState-tracked input
// channels.
package kernel

import (
	"context"

	"github.com/traintastic/traintastic-go/internal/value"
)

// State is the kernel's own lifecycle state, distinct from (but driving)
// the owning Interface's online/offline property.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// validTransitions is the closed table of legal state moves.
var validTransitions = map[State]map[State]bool{
	StateStopped:  {StateStarting: true},
	StateStarting: {StateRunning: true, StateError: true, StateStopping: true},
	StateRunning:  {StateStopping: true, StateError: true},
	StateStopping: {StateStopped: true, StateError: true},
	StateError:    {StateStopped: true, StateStarting: true},
}

func IsValidTransition(from, to State) bool {
	if targets, ok := validTransitions[from]; ok {
		return targets[to]
	}
	return false
}

// Frame is an opaque on-the-wire unit; each protocol package defines its
// own concrete frame type and passes it through Receive/Send as `any`.
type Frame any

// IOHandler is the injected transport (serial / UDP / TCP / SocketCAN /
// simulation) a Kernel drives from its own goroutine.
type IOHandler interface {
	Start(ctx context.Context) error
	Stop() error
	// Write sends a raw frame payload. Called only from the kernel's own
	// goroutine.
	Write(data []byte) error
}

// Callbacks are the upward notifications a Kernel posts to the event loop.
// All fields are optional; a nil callback is a no-op.
type Callbacks struct {
	OnPowerChanged     func(on bool)
	OnEmergencyStop    func()
	OnInputValueChanged func(channel string, address int64, state value.TriState)
	OnStateChanged     func(State)
	OnDecoderSpeedFromStation func(address int64, throttle float64, direction value.Direction, emergencyStop bool)
}
