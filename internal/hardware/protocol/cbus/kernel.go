// Package cbus implements the MERG CBUS protocol kernel: CAN-based
// MERG CBUS framing, following the same kernel discipline as the other
// protocols with no additional distinct contract. The kernel runs on the
// simulation transport only; no SocketCAN transport is wired to it.
package cbus

import (
	"context"
	"sync"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const inputChannelDefault = "default"

// OPC codes for the handful of CBUS events this kernel acts on.
const (
	opASON = 0x98 // accessory on (long event)
	opASOF = 0x99 // accessory off (long event)
	opTON  = 0x91 // track power on
	opTOF  = 0x92 // track power off
)

type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	inputs *hwkernel.InputChannels
	cb     hwkernel.Callbacks

	mu sync.Mutex
}

type Config struct{ Simulate bool }

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{inputs: hwkernel.NewInputChannels(), cb: cb}
	sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
	k.sim = sim
	k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	return k
}

func (k *Kernel) Start()                { k.lc.Start(func(context.Context) {}) }
func (k *Kernel) Stop()                 { k.lc.Stop() }
func (k *Kernel) State() hwkernel.State { return k.lc.State() }

func (k *Kernel) write(frame []byte) { _ = k.sim.Write(frame) }

func (k *Kernel) receive(data []byte) {
	for len(data) >= 5 {
		k.handleFrame(data[:5])
		data = data[5:]
	}
}

func (k *Kernel) handleFrame(f []byte) {
	switch f[0] {
	case opTON:
		if k.cb.OnPowerChanged != nil {
			k.cb.OnPowerChanged(true)
		}
	case opTOF:
		if k.cb.OnPowerChanged != nil {
			k.cb.OnPowerChanged(false)
		}
	case opASON, opASOF:
		addr := int64(f[3])<<8 | int64(f[4])
		state := value.TriStateFalse
		if f[0] == opASON {
			state = value.TriStateTrue
		}
		if changed := k.inputs.Update(inputChannelDefault, addr, state); changed && k.cb.OnInputValueChanged != nil {
			k.cb.OnInputValueChanged(inputChannelDefault, addr, state)
		}
	}
}

func (k *Kernel) PowerOn()  { k.write([]byte{opTON, 0, 0, 0, 0}) }
func (k *Kernel) PowerOff() { k.write([]byte{opTOF, 0, 0, 0, 0}) }

func (k *Kernel) SetOutput(address int64, on bool) {
	op := byte(opASOF)
	if on {
		op = opASON
	}
	k.write([]byte{op, 0, 0, byte(address >> 8), byte(address)})
}

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	if len(written) > 0 && (written[0] == opTON || written[0] == opTOF) {
		push(written)
	}
}

func (k *Kernel) SimulateInputChange(address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(inputChannelDefault, address, action)
	if changed := k.inputs.Update(inputChannelDefault, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(inputChannelDefault, address, state)
	}
}
