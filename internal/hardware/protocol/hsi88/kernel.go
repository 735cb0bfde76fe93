// Package hsi88 implements the HSI-88 protocol kernel: serial,
// ASCII-line framed; registers modulesLeft+Middle+Right ≤ 31 feedback
// modules and decodes 16-bit status words per module.
package hsi88

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const (
	ChannelLeft   = "left"
	ChannelMiddle = "middle"
	ChannelRight  = "right"

	maxTotalModules = 31
)

// Config carries the module counts per bus segment.
type Config struct {
	ModulesLeft, ModulesMiddle, ModulesRight int
	Simulate                                 bool
}

func (c Config) validate() error {
	total := c.ModulesLeft + c.ModulesMiddle + c.ModulesRight
	if total > maxTotalModules {
		return fmt.Errorf("hsi88: %d modules exceeds the %d-module limit", total, maxTotalModules)
	}
	return nil
}

// Kernel is the HSI-88 protocol kernel.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	cfg    Config
	inputs *hwkernel.InputChannels
	cb     hwkernel.Callbacks

	mu  sync.Mutex
	buf string
}

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) (*Kernel, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	k := &Kernel{cfg: cfg, inputs: hwkernel.NewInputChannels(), cb: cb}
	sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
	k.sim = sim
	k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	return k, nil
}

func (k *Kernel) Start()                { k.lc.Start(func(context.Context) {}) }
func (k *Kernel) Stop()                 { k.lc.Stop() }
func (k *Kernel) State() hwkernel.State { return k.lc.State() }

func (k *Kernel) write(line string) { _ = k.sim.Write([]byte(line + "\n")) }

// RequestStatus polls every configured module for its current feedback
// word.
func (k *Kernel) RequestStatus() { k.write("r") }

// receive assembles ASCII lines (terminated by '\n') off the raw byte
// stream.
func (k *Kernel) receive(data []byte) {
	k.mu.Lock()
	k.buf += string(data)
	for {
		idx := strings.IndexByte(k.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(k.buf[:idx])
		k.buf = k.buf[idx+1:]
		k.mu.Unlock()
		k.handleLine(line)
		k.mu.Lock()
	}
	k.mu.Unlock()
}

// handleLine decodes one "<channel><module>:<hex16>" report line, e.g.
// "L1:8001" meaning left-bus module 1's 16-bit status word is 0x8001.
func (k *Kernel) handleLine(line string) {
	if len(line) < 2 {
		return
	}
	var channel string
	switch line[0] {
	case 'L':
		channel = ChannelLeft
	case 'M':
		channel = ChannelMiddle
	case 'R':
		channel = ChannelRight
	default:
		return
	}
	parts := strings.SplitN(line[1:], ":", 2)
	if len(parts) != 2 {
		return
	}
	module, err := strconv.Atoi(parts[0])
	if err != nil {
		return
	}
	word, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return
	}
	base := int64(module-1) * 16
	for bit := 0; bit < 16; bit++ {
		addr := base + int64(bit)
		state := value.TriStateFalse
		if word&(1<<uint(bit)) != 0 {
			state = value.TriStateTrue
		}
		if changed := k.inputs.Update(channel, addr, state); changed && k.cb.OnInputValueChanged != nil {
			k.cb.OnInputValueChanged(channel, addr, state)
		}
	}
}

func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	if strings.TrimSpace(string(written)) == "r" {
		push([]byte("L1:0000\n"))
	}
}

func (k *Kernel) SimulateInputChange(channel string, address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(channel, address, action)
	if changed := k.inputs.Update(channel, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(channel, address, state)
	}
}

var errModuleLimit = errors.New("hsi88: module limit exceeded")
