// Package dinamo implements the DINAMO protocol kernel: a
// point-to-point framed protocol with hold/fault/toggle bits in the
// header and a trailing CRC byte, per-direction toggle, per-message
// retries on response timeout, and explicit system/protocol version
// negotiation with a supported range check.
package dinamo

import (
	"context"
	"sync"
	"time"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const inputChannelDefault = "default"

// Header bits: hold/fault/toggle plus a 5-bit command.
const (
	flagHold    = 0x80
	flagFault   = 0x40
	flagToggle  = 0x20
)

var (
	msgFault = log.Register(log.Message{Code: "E2301", Severity: log.Critical, Format: "command station reports fault"})
	msgHold  = log.Register(log.Message{Code: "W2302", Severity: log.Warning, Format: "command station asserted hold"})
)

// versionRequestRetries bounds the negotiation retransmissions before the
// handshake is declared failed.
const versionRequestRetries = 2

var (
	minSupportedSystemVersion   = 1
	maxSupportedSystemVersion   = 3
	minSupportedProtocolVersion = 1
	maxSupportedProtocolVersion = 2
)

func crc(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

// Kernel is the DINAMO protocol kernel.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	inputs  *hwkernel.InputChannels
	cb      hwkernel.Callbacks
	pending *hwkernel.PendingRequests

	// transmit writes one frame to the I/O handler; split out so the
	// retry path can be exercised without a transport behind it.
	transmit func([]byte)

	mu           sync.Mutex
	toggleOut    bool
	holdActive   bool
	lastRequest  []byte
	systemVer    int
	protocolVer  int
	negotiated   bool
}

type Config struct{ Simulate bool }

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{
		inputs:  hwkernel.NewInputChannels(),
		cb:      cb,
		pending: hwkernel.NewPendingRequests(300*time.Millisecond, 1*time.Second),
	}
	k.pending.SetName(logID)
	sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
	k.sim = sim
	k.transmit = func(frame []byte) { _ = k.sim.Write(frame) }
	k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	return k
}

func (k *Kernel) Start() { k.lc.Start(k.started) }

func (k *Kernel) Stop() {
	k.pending.Clear()
	k.lc.Stop()
}

func (k *Kernel) State() hwkernel.State { return k.lc.State() }

func (k *Kernel) started(context.Context) {
	k.negotiateVersion()
}

// encode builds an outbound frame, alternating the toggle bit per new
// message so the command station can spot repeats. Retransmissions reuse
// the already-encoded bytes and therefore keep their toggle.
func (k *Kernel) encode(cmd, payload byte) []byte {
	k.mu.Lock()
	header := cmd & 0x1F
	if k.toggleOut {
		header |= flagToggle
	}
	k.toggleOut = !k.toggleOut
	k.mu.Unlock()
	return []byte{header, payload, crc([]byte{header, payload})}
}

// negotiateVersion asks the command station for its system/protocol
// version and validates it falls within the supported range. The request
// expects a reply: on timeout it is retransmitted (same bytes, same
// toggle) until the retry budget runs out, then the handshake is failed.
func (k *Kernel) negotiateVersion() {
	req := k.encode(0x01, 0x00)
	k.mu.Lock()
	k.lastRequest = req
	k.mu.Unlock()
	// Arm before transmitting: in simulation the reply can arrive on the
	// same call stack as the write.
	k.pending.ArmReply(versionRequestRetries, k.onReplyTimeout)
	k.transmit(req)
}

// onReplyTimeout retransmits the outstanding request while its retry
// budget lasts, then gives up on the handshake.
func (k *Kernel) onReplyTimeout() {
	k.mu.Lock()
	req := k.lastRequest
	k.mu.Unlock()
	if req == nil {
		return
	}
	if remaining, ok := k.pending.ConsumeRetry(); ok {
		k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgResponseTimeout, "version reply", remaining)
		k.pending.RearmReply(k.onReplyTimeout)
		k.transmit(req)
		return
	}
	k.pending.Clear()
	k.mu.Lock()
	k.lastRequest = nil
	k.mu.Unlock()
	k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgHandshakeFailed, "no version reply from command station")
}

func (k *Kernel) receive(data []byte) {
	for len(data) >= 3 {
		frame := data[:3]
		data = data[3:]
		k.handleFrame(frame)
	}
}

func (k *Kernel) handleFrame(frame []byte) {
	if crc(frame[:2]) != frame[2] {
		return // malformed frame, dropped, state unchanged
	}
	header, payload := frame[0], frame[1]

	// Hold and fault ride the header of any frame. Fault means the power
	// stage tripped; hold is the station-side emergency stop, reported
	// once per assertion.
	if header&flagFault != 0 {
		k.lc.Logger().Log(k.lc.LogID(), msgFault)
		if k.cb.OnPowerChanged != nil {
			k.cb.OnPowerChanged(false)
		}
	}
	k.mu.Lock()
	holdAsserted := header&flagHold != 0 && !k.holdActive
	k.holdActive = header&flagHold != 0
	k.mu.Unlock()
	if holdAsserted {
		k.lc.Logger().Log(k.lc.LogID(), msgHold)
		if k.cb.OnEmergencyStop != nil {
			k.cb.OnEmergencyStop()
		}
	}

	cmd := header & 0x1F
	switch cmd {
	case 0x01: // version reply: payload = systemVer<<4 | protocolVer
		k.pending.ReplyReceived()
		k.mu.Lock()
		k.lastRequest = nil
		k.mu.Unlock()
		sysVer, protoVer := int(payload>>4), int(payload&0x0F)
		k.mu.Lock()
		inRange := sysVer >= minSupportedSystemVersion && sysVer <= maxSupportedSystemVersion &&
			protoVer >= minSupportedProtocolVersion && protoVer <= maxSupportedProtocolVersion
		if inRange {
			k.systemVer, k.protocolVer, k.negotiated = sysVer, protoVer, true
		}
		k.mu.Unlock()
		if !inRange {
			k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgHandshakeFailed, "unsupported system/protocol version")
		}
	case 0x10: // feedback report: payload = address; toggle bit = state
		addr := int64(payload & 0x7F)
		state := value.TriStateFalse
		if header&flagToggle != 0 {
			state = value.TriStateTrue
		}
		if changed := k.inputs.Update(inputChannelDefault, addr, state); changed && k.cb.OnInputValueChanged != nil {
			k.cb.OnInputValueChanged(inputChannelDefault, addr, state)
		}
	}
}

// HoldActive reports whether the command station currently asserts hold.
func (k *Kernel) HoldActive() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.holdActive
}

func (k *Kernel) Negotiated() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.negotiated
}

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	if len(written) < 2 {
		return
	}
	cmd := written[0] & 0x1F
	if cmd == 0x01 {
		payload := byte(2<<4 | 1) // systemVer=2, protocolVer=1: inside the supported range
		push([]byte{0x01, payload, crc([]byte{0x01, payload})})
	}
}

func (k *Kernel) SimulateInputChange(address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(inputChannelDefault, address, action)
	if changed := k.inputs.Update(inputChannelDefault, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(inputChannelDefault, address, state)
	}
}
