// Package ecos implements the ECoS protocol kernel: a
// line-based text protocol framed as `<REPLY ...>…<END ...>` and
// `<EVENT ...>…<END ...>` blocks, dispatched by an inner registry of
// objects keyed by integer id (command station, locomotive manager,
// switch manager, feedback manager).
package ecos

import (
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

// Object ids of the ECoS's own fixed registry.
const (
	ObjectCommandStation = 1
	ObjectLocomotives    = 10
	ObjectSwitches       = 11
	ObjectS88            = 26
	ObjectECoSDetector   = 27
)

const (
	inputChannelS88          = "s88"
	inputChannelECoSDetector = "ecosDetector"
)

// Kernel is the ECoS protocol kernel. Frame dispatch routes by object id
// parsed out of the reply/event header line.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	inputs *hwkernel.InputChannels
	cb     hwkernel.Callbacks

	mu     sync.Mutex
	offset int // single offset into the buffer so partial frames survive across reads
	buf    []byte
	power  value.TriState
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

func (k *Kernel) write(line string) { _ = k.sim.Write([]byte(line + "\n")) }

// receive keeps a single offset into the buffer so partial frames survive
// across reads.
func (k *Kernel) receive(data []byte) {
	k.mu.Lock()
	k.buf = append(k.buf, data...)
	for {
		end := strings.Index(string(k.buf[k.offset:]), "<END")
		if end < 0 {
			break
		}
		endLineEnd := strings.IndexByte(string(k.buf[k.offset+end:]), '\n')
		var frame string
		if endLineEnd < 0 {
			frame = string(k.buf[:k.offset+end])
			k.buf = nil
		} else {
			total := k.offset + end + endLineEnd + 1
			frame = string(k.buf[:total])
			k.buf = k.buf[total:]
		}
		k.offset = 0
		k.mu.Unlock()
		k.handleFrame(frame)
		k.mu.Lock()
	}
	k.mu.Unlock()
}

func (k *Kernel) handleFrame(frame string) {
	lines := strings.Split(strings.TrimSpace(frame), "\n")
	if len(lines) == 0 {
		return
	}
	header := strings.TrimSuffix(strings.TrimSpace(lines[0]), ">")
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return
	}
	// The object id is the first argument: "<REPLY get(1, ...)>" or "<EVENT 26>".
	idStr := fields[1]
	if i := strings.Index(idStr, "("); i >= 0 {
		idStr = idStr[i+1:]
	}
	id, err := strconv.Atoi(strings.TrimRight(idStr, ",)"))
	if err != nil {
		return
	}
	switch id {
	case ObjectCommandStation:
		for _, l := range lines[1:] {
			if strings.Contains(l, "status[GO]") {
				k.power = value.TriStateTrue
				if k.cb.OnPowerChanged != nil {
					k.cb.OnPowerChanged(true)
				}
			} else if strings.Contains(l, "status[STOP]") {
				k.power = value.TriStateFalse
				if k.cb.OnPowerChanged != nil {
					k.cb.OnPowerChanged(false)
				}
			}
		}
	case ObjectS88:
		k.handleFeedback(inputChannelS88, lines[1:])
	case ObjectECoSDetector:
		k.handleFeedback(inputChannelECoSDetector, lines[1:])
	}
}

func (k *Kernel) handleFeedback(channel string, lines []string) {
	for _, l := range lines {
		fields := strings.Fields(l)
		if len(fields) < 2 {
			continue
		}
		addr, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		state := value.TriStateFalse
		if strings.Contains(l, "state[1]") {
			state = value.TriStateTrue
		}
		if changed := k.inputs.Update(channel, addr, state); changed && k.cb.OnInputValueChanged != nil {
			k.cb.OnInputValueChanged(channel, addr, state)
		}
	}
}

// PowerOn/PowerOff send the ECoS command-station "go"/"stop" commands.
func (k *Kernel) PowerOn()  { k.write(fmt.Sprintf("request(%d, control, force)\nset(%d, go)", ObjectCommandStation, ObjectCommandStation)) }
func (k *Kernel) PowerOff() { k.write(fmt.Sprintf("set(%d, stop)", ObjectCommandStation)) }

// SetOutput pulses an accessory/switch on for a duration; ECoS has no
// feedback for this, so the kernel assumes success without waiting.
func (k *Kernel) SetOutput(address int64, on bool) {
	state := 0
	if on {
		state = 1
	}
	k.write(fmt.Sprintf("set(%d, switch, addr[%d, %d])", ObjectSwitches, address, state))
}

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	line := strings.TrimSpace(string(written))
	switch {
	case strings.Contains(line, "go)"):
		push([]byte(fmt.Sprintf("<REPLY set(%d, go)>\nstatus[GO]\n<END 0 (OK)>\n", ObjectCommandStation)))
	case strings.Contains(line, "stop)") && !strings.Contains(line, "switch"):
		push([]byte(fmt.Sprintf("<REPLY set(%d, stop)>\nstatus[STOP]\n<END 0 (OK)>\n", ObjectCommandStation)))
	}
}

func (k *Kernel) SimulateInputChange(channel string, address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(channel, address, action)
	if changed := k.inputs.Update(channel, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(channel, address, state)
	}
}
