// Package dccex implements the DCC-EX protocol kernel:
// bracket-delimited `<X…>` text messages, a TriState track-power flag,
// sensor transitions, turnout/output/extended-accessory control gated on
// explicit response codes, and emergency stop (speed=1/ESTOP for every
// loco).
package dccex

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const inputChannelDefault = "default"

// Kernel is the DCC-EX protocol kernel.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	inputs *hwkernel.InputChannels
	cb     hwkernel.Callbacks

	mu    sync.Mutex
	buf   []byte
	power value.TriState

	outputsAwaitingReply map[int64]bool
}

type Config struct{ Simulate bool }

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{
		inputs:                hwkernel.NewInputChannels(),
		cb:                    cb,
		outputsAwaitingReply:  make(map[int64]bool),
	}
	sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
	k.sim = sim
	k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	return k
}

func (k *Kernel) Start()                { k.lc.Start(k.started) }
func (k *Kernel) Stop()                 { k.lc.Stop() }
func (k *Kernel) State() hwkernel.State { return k.lc.State() }

func (k *Kernel) started(_ context.Context) {}

func (k *Kernel) write(line string) { _ = k.sim.Write([]byte(line)) }

// receive buffers raw bytes and extracts complete `<...>` messages,
// matching the command station's bracket-delimited framing.
func (k *Kernel) receive(data []byte) {
	k.mu.Lock()
	k.buf = append(k.buf, data...)
	for {
		start := bytes.IndexByte(k.buf, '<')
		if start < 0 {
			k.buf = nil
			break
		}
		end := bytes.IndexByte(k.buf[start:], '>')
		if end < 0 {
			k.buf = k.buf[start:]
			break
		}
		msg := string(k.buf[start+1 : start+end])
		k.buf = k.buf[start+end+1:]
		k.mu.Unlock()
		k.handleMessage(msg)
		k.mu.Lock()
	}
	k.mu.Unlock()
}

func (k *Kernel) handleMessage(msg string) {
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.HasPrefix(cmd, "p") {
		cmd = "p" // the state digit follows the opcode directly: <p0>, <p1>
	}
	switch cmd {
	case "p": // power report: <p0> / <p1>
		if len(fields) >= 1 {
			state := value.TriStateFalse
			if strings.HasSuffix(fields[0], "1") || (len(msg) > 1 && msg[1] == '1') {
				state = value.TriStateTrue
			}
			k.mu.Lock()
			k.power = state
			k.mu.Unlock()
			if k.cb.OnPowerChanged != nil {
				k.cb.OnPowerChanged(state == value.TriStateTrue)
			}
		}
	case "Q": // sensor transition: <Q id> active, <q id> inactive
		if len(fields) >= 2 {
			addr, _ := strconv.ParseInt(fields[1], 10, 64)
			k.updateInput(addr, value.TriStateTrue)
		}
	case "q":
		if len(fields) >= 2 {
			addr, _ := strconv.ParseInt(fields[1], 10, 64)
			k.updateInput(addr, value.TriStateFalse)
		}
	case "H": // turnout/output response: <H id state>
		if len(fields) >= 2 {
			addr, _ := strconv.ParseInt(fields[1], 10, 64)
			k.mu.Lock()
			delete(k.outputsAwaitingReply, addr)
			k.mu.Unlock()
		}
	}
}

func (k *Kernel) updateInput(addr int64, state value.TriState) {
	if changed := k.inputs.Update(inputChannelDefault, addr, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(inputChannelDefault, addr, state)
	}
}

// SetPower writes the track power on/off command.
func (k *Kernel) SetPower(on bool) {
	if on {
		k.write("<1>")
	} else {
		k.write("<0>")
	}
}

// EmergencyStop sets speed=1 (ESTOP) for every loco.
func (k *Kernel) EmergencyStop() {
	k.write("<!>")
	if k.cb.OnEmergencyStop != nil {
		k.cb.OnEmergencyStop()
	}
}

// DecoderChanged sends a throttle command `<t 1 cab speed dir>`.
func (k *Kernel) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	speed := int(throttle * 126)
	if eStop {
		speed = -1
	}
	d := 1
	if dir == value.DirectionReverse {
		d = 0
	}
	k.write(fmt.Sprintf("<t 1 %d %d %d>", address, speed, d))
}

// SetOutput turns a turnout/output on or off and only marks it changed on
// receipt of the response.
func (k *Kernel) SetOutput(address int64, on bool) {
	k.mu.Lock()
	k.outputsAwaitingReply[address] = true
	k.mu.Unlock()
	state := 0
	if on {
		state = 1
	}
	k.write(fmt.Sprintf("<T %d %d>", address, state))
}

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	msg := strings.Trim(string(written), "<>")
	fields := strings.Fields(msg)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "1":
		push([]byte("<p1>"))
	case "0":
		push([]byte("<p0>"))
	case "T":
		if len(fields) >= 3 {
			push([]byte(fmt.Sprintf("<H %s %s>", fields[1], fields[2])))
		}
	}
}

func (k *Kernel) SimulateInputChange(address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(inputChannelDefault, address, action)
	k.updateInput(address, state)
}
