// Package marklincan implements the Märklin-CAN protocol kernel over
// 13-byte CAN frames. The kernel runs on the simulation transport only:
// no SocketCAN, TCP or UDP transport is wired to it, and no four-byte
// length/hash network header is applied.
package marklincan

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/brutella/can"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const inputChannelDefault = "s88"

// Command identifiers carried in a Märklin-CAN frame's CAN id (the
// priority/command/hash-encoded 29-bit identifier).
const (
	cmdSystem      = 0x00
	cmdLocoSpeed   = 0x04
	cmdLocoDir     = 0x05
	cmdLocoFunc    = 0x06
	cmdAccessory   = 0x0B
	cmdS88Event    = 0x23
)

// Kernel is the Märklin-CAN protocol kernel. Its receive path takes
// 13-byte CAN frames from an iohandler.Simulation; no other transport is
// wired to it.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	inputs *hwkernel.InputChannels
	cb     hwkernel.Callbacks

	mu    sync.Mutex
	power value.TriState
	hash  uint16
}

type Config struct{ Simulate bool }

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{inputs: hwkernel.NewInputChannels(), cb: cb, hash: 0x1234}
	sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
	k.sim = sim
	k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	return k
}

func (k *Kernel) Start()                { k.lc.Start(func(context.Context) {}) }
func (k *Kernel) Stop()                 { k.lc.Stop() }
func (k *Kernel) State() hwkernel.State { return k.lc.State() }

// encodeID packs {priority, command, hash, response} into the 29-bit CAN
// identifier the way the Märklin-CAN wire format does.
func encodeID(command byte, hash uint16, response bool) uint32 {
	var id uint32
	id |= uint32(0x00) << 25 // priority
	id |= uint32(command) << 17
	if response {
		id |= 1 << 16
	}
	id |= uint32(hash)
	return id
}

func (k *Kernel) frame(command byte, response bool, data ...byte) []byte {
	buf := make([]byte, 13)
	binary.BigEndian.PutUint32(buf[0:4], encodeID(command, k.hash, response))
	buf[4] = byte(len(data))
	copy(buf[5:], data)
	return buf
}

func (k *Kernel) write(f []byte) { _ = k.sim.Write(f) }

func (k *Kernel) receive(data []byte) {
	for len(data) >= 13 {
		k.handleFrame(data[:13])
		data = data[13:]
	}
}

func (k *Kernel) handleFrame(f []byte) {
	id := binary.BigEndian.Uint32(f[0:4])
	command := byte((id >> 17) & 0xFF)
	length := int(f[4])
	payload := f[5 : 5+min(length, 8)]
	switch command {
	case cmdSystem:
		if len(payload) >= 5 {
			switch payload[4] {
			case 0x00: // system stop
				k.setPower(false)
			case 0x01: // system go
				k.setPower(true)
			}
		}
	case cmdS88Event:
		if len(payload) >= 5 {
			addr := int64(binary.BigEndian.Uint16(payload[0:2]))
			state := value.TriStateFalse
			if payload[5%len(payload)] != 0 {
				state = value.TriStateTrue
			}
			if changed := k.inputs.Update(inputChannelDefault, addr, state); changed && k.cb.OnInputValueChanged != nil {
				k.cb.OnInputValueChanged(inputChannelDefault, addr, state)
			}
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (k *Kernel) setPower(on bool) {
	k.mu.Lock()
	if on {
		k.power = value.TriStateTrue
	} else {
		k.power = value.TriStateFalse
	}
	k.mu.Unlock()
	if k.cb.OnPowerChanged != nil {
		k.cb.OnPowerChanged(on)
	}
}

func (k *Kernel) PowerOn()  { k.write(k.frame(cmdSystem, false, 0, 0, 0, 0, 0x01)) }
func (k *Kernel) PowerOff() { k.write(k.frame(cmdSystem, false, 0, 0, 0, 0, 0x00)) }

func (k *Kernel) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	speed := uint16(throttle * 1000)
	if eStop {
		speed = 0
	}
	data := make([]byte, 6)
	binary.BigEndian.PutUint32(data[0:4], uint32(address))
	binary.BigEndian.PutUint16(data[4:6], speed)
	k.write(k.frame(cmdLocoSpeed, false, data...))
}

func (k *Kernel) SetOutput(address int64, on bool) {
	data := make([]byte, 5)
	binary.BigEndian.PutUint32(data[0:4], uint32(address))
	if on {
		data[4] = 1
	}
	k.write(k.frame(cmdAccessory, false, data...))
}

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	if len(written) < 5 {
		return
	}
	id := binary.BigEndian.Uint32(written[0:4])
	command := byte((id >> 17) & 0xFF)
	if command == cmdSystem && len(written) >= 10 {
		push(written) // loopback acknowledges the system command
	}
}

func (k *Kernel) SimulateInputChange(address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(inputChannelDefault, address, action)
	if changed := k.inputs.Update(inputChannelDefault, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(inputChannelDefault, address, state)
	}
}

var _ can.Frame // documents the SocketCAN frame type this kernel's bytes map onto
