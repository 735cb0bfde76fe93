// Package xpressnet implements the XpressNet protocol kernel: a
// serial, byte-framed protocol following the same kernel discipline as
// the other protocols with no additional distinct contract.
package xpressnet

import (
	"context"
	"sync"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const inputChannelDefault = "default"

// Header bytes for the handful of XpressNet messages this kernel acts on.
const (
	headerNormalOperation = 0x61 // DB0 0x01: track power on
	headerTrackPowerOff   = 0x61 // DB0 0x00: track power off
	headerFeedback        = 0x42
)

func checksum(frame []byte) byte {
	var x byte
	for _, b := range frame {
		x ^= b
	}
	return x
}

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

func frame(header byte, data ...byte) []byte {
	f := append([]byte{header}, data...)
	return append(f, checksum(f))
}

func (k *Kernel) write(f []byte) { _ = k.sim.Write(f) }

func (k *Kernel) receive(data []byte) {
	for len(data) >= 3 {
		n := 3
		if data[0] == headerFeedback && len(data) >= 4 {
			n = 4
		}
		k.handleFrame(data[:n])
		data = data[n:]
	}
}

func (k *Kernel) handleFrame(f []byte) {
	switch f[0] {
	case headerNormalOperation:
		if len(f) >= 2 {
			if k.cb.OnPowerChanged != nil {
				k.cb.OnPowerChanged(f[1] == 0x01)
			}
		}
	case headerFeedback:
		if len(f) >= 3 {
			addr := int64(f[1])
			state := value.TriStateFalse
			if f[2] != 0 {
				state = value.TriStateTrue
			}
			if changed := k.inputs.Update(inputChannelDefault, addr, state); changed && k.cb.OnInputValueChanged != nil {
				k.cb.OnInputValueChanged(inputChannelDefault, addr, state)
			}
		}
	}
}

func (k *Kernel) PowerOn()  { k.write(frame(0x21, 0x81)) }
func (k *Kernel) PowerOff() { k.write(frame(0x21, 0x80)) }

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	if len(written) >= 2 && written[0] == 0x21 {
		switch written[1] {
		case 0x81:
			push(frame(headerNormalOperation, 0x01))
		case 0x80:
			push(frame(headerNormalOperation, 0x00))
		}
	}
}

func (k *Kernel) SimulateInputChange(address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(inputChannelDefault, address, action)
	if changed := k.inputs.Update(inputChannelDefault, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(inputChannelDefault, address, state)
	}
}
