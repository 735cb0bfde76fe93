package loconet

import (
	"bytes"
	"sync"
	"time"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

const inputChannelDefault = "loconet"

// slot is the command-station resource holding one loco's control state.
type slot struct {
	number    byte
	address   int64
	speedStep int
	reverse   bool
	functions [29]bool
}

// pendingSpeed is a queued OPC_LOCO_SPD write waiting on a slot
// acquisition.
type pendingSpeed struct {
	address   int64
	speedStep int
	reverse   bool
}

// Kernel is the LocoNet protocol kernel. LocoNet echoes every frame the
// kernel itself puts on the bus, so sends are gated on an echo window: the
// next queued frame goes out only once the previous one's echo returned
// (or its timeout logged a warning and gave up waiting).
type Kernel struct {
	lc  *hwkernel.Lifecycle
	sim *iohandler.Simulation

	sendQueue *hwkernel.SendQueue
	pending   *hwkernel.PendingRequests
	inputs    *hwkernel.InputChannels
	cb        hwkernel.Callbacks

	// transmit writes one frame to the I/O handler; split out so the echo
	// gating can be exercised without a transport behind it.
	transmit func([]byte)

	mu               sync.Mutex
	slots            map[int64]*slot // keyed by address for lookup convenience
	slotsByNumber    map[byte]*slot
	pendingByAddress map[int64]*pendingSpeed
	awaitingSlot     map[int64]bool
	nextSlot         byte
	buf              []byte
	lastSent         []byte

	fastClockMaster bool
	pcapEnabled     bool
}

type Config struct {
	Simulate        bool
	FastClockMaster bool
}

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{
		sendQueue:        hwkernel.NewSendQueue(64),
		pending:          hwkernel.NewPendingRequests(250*time.Millisecond, time.Second),
		inputs:           hwkernel.NewInputChannels(),
		cb:               cb,
		slots:            make(map[int64]*slot),
		slotsByNumber:    make(map[byte]*slot),
		pendingByAddress: make(map[int64]*pendingSpeed),
		awaitingSlot:     make(map[int64]bool),
		nextSlot:         1,
		fastClockMaster:  cfg.FastClockMaster,
	}
	k.sendQueue.SetName(logID)
	k.pending.SetName(logID)
	sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
	k.sim = sim
	k.transmit = func(frame []byte) { _ = k.sim.Write(frame) }
	k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	return k
}

func (k *Kernel) Start() { k.lc.Start(nil) }

func (k *Kernel) Stop() {
	k.pending.Clear()
	k.lc.Stop()
}

func (k *Kernel) State() hwkernel.State { return k.lc.State() }

// write queues a frame behind any echo window still open.
func (k *Kernel) write(frame []byte) {
	if !k.sendQueue.Push(hwkernel.Message{Priority: hwkernel.PriorityNormal, Data: frame, ExpectsEcho: true}) {
		k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgSendQueueFull)
		return
	}
	k.trySendNext()
}

// trySendNext transmits the next queued frame unless an echo is still
// awaited, arming the echo timeout first since in simulation the echo
// arrives on the same call stack as the write.
func (k *Kernel) trySendNext() {
	k.mu.Lock()
	if !k.pending.Ready() {
		k.mu.Unlock()
		return
	}
	m, ok := k.sendQueue.Pop()
	if !ok {
		k.mu.Unlock()
		return
	}
	k.lastSent = append([]byte(nil), m.Data...)
	k.mu.Unlock()
	k.pending.ArmEcho(k.onEchoTimeout)
	k.transmit(m.Data)
}

// onEchoTimeout logs a warning and continues; the lost echo never blocks
// the queue for good.
func (k *Kernel) onEchoTimeout() {
	k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgEchoTimeout, "loconet frame echo")
	k.pending.EchoReceived() // close the expired window
	k.mu.Lock()
	k.lastSent = nil
	k.mu.Unlock()
	k.trySendNext()
}

func (k *Kernel) receive(data []byte) {
	k.mu.Lock()
	k.buf = append(k.buf, data...)
	for {
		op, payload, n, ok := Decode(k.buf)
		if !ok {
			if n > 0 {
				k.buf = k.buf[n:]
				continue
			}
			break
		}
		frame := append([]byte(nil), k.buf[:n]...)
		k.buf = k.buf[n:]
		if k.lastSent != nil && bytes.Equal(frame, k.lastSent) && k.pending.EchoReceived() {
			// Our own frame coming back off the bus: close the window and
			// let the queue advance instead of reprocessing it as remote
			// traffic.
			k.lastSent = nil
			k.mu.Unlock()
			k.trySendNext()
			k.mu.Lock()
			continue
		}
		k.mu.Unlock()
		k.handle(op, payload)
		k.mu.Lock()
	}
	k.mu.Unlock()
}

func (k *Kernel) handle(op byte, payload []byte) {
	switch op {
	case OpSlRdData:
		full := append([]byte{op}, payload...)
		if srd, ok := DecodeSlRdData(full[1:]); ok {
			k.onSlotReadData(srd)
		}
	case OpInputRep:
		if len(payload) >= 2 {
			addr := int64(payload[0]&0x7F)<<7 | int64(payload[1]&0x0F)<<1
			state := value.TriStateFalse
			if payload[1]&0x20 != 0 {
				state = value.TriStateTrue
			}
			if changed := k.inputs.Update(inputChannelDefault, addr, state); changed && k.cb.OnInputValueChanged != nil {
				k.cb.OnInputValueChanged(inputChannelDefault, addr, state)
			}
		}
	}
}

// onSlotReadData records the command station's assigned slot and flushes
// any pending speed write queued for that address.
func (k *Kernel) onSlotReadData(srd SlotReadData) {
	k.mu.Lock()
	s, ok := k.slotsByNumber[srd.Slot]
	if !ok {
		s = &slot{number: srd.Slot}
		k.slotsByNumber[srd.Slot] = s
	}
	s.address = srd.Address
	s.speedStep = int(srd.Speed)
	s.reverse = srd.Reverse
	k.slots[srd.Address] = s
	delete(k.awaitingSlot, srd.Address)

	pending, hasPending := k.pendingByAddress[srd.Address]
	delete(k.pendingByAddress, srd.Address)
	k.mu.Unlock()

	if hasPending {
		k.sendSpeed(s, pending.speedStep, pending.reverse)
	}
}

// DecoderChanged drives one loco: if no slot holds address, transmit
// OPC_LOCO_ADR and queue the speed write until the slot response arrives;
// otherwise write directly, skipping a retransmit if the speed step is
// unchanged.
func (k *Kernel) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	speedStep := int(throttle * 126)
	if eStop {
		speedStep = 1
	} else if speedStep > 0 {
		speedStep++ // LocoNet speed 0 = stop, 1 = eStop, 2..127 = running
	}
	reverse := dir == value.DirectionReverse

	k.mu.Lock()
	s, known := k.slots[address]
	if !known {
		alreadyAwaiting := k.awaitingSlot[address]
		k.pendingByAddress[address] = &pendingSpeed{address: address, speedStep: speedStep, reverse: reverse}
		if alreadyAwaiting {
			k.mu.Unlock()
			return
		}
		k.awaitingSlot[address] = true
		k.mu.Unlock()
		k.write(EncodeLocoAdr(address))
		return
	}
	k.mu.Unlock()
	k.sendSpeed(s, speedStep, reverse)
}

// sendSpeed writes OPC_LOCO_SPD only when the speed step or direction
// actually changes.
func (k *Kernel) sendSpeed(s *slot, speedStep int, reverse bool) {
	k.mu.Lock()
	if s.speedStep == speedStep && s.reverse == reverse {
		k.mu.Unlock()
		return
	}
	s.speedStep = speedStep
	s.reverse = reverse
	k.mu.Unlock()
	k.write(EncodeLocoSpd(s.number, byte(speedStep)))
}

// simulationRespond plays the command station's side of slot allocation
// in simulation mode: answering OPC_LOCO_ADR with a freshly assigned
// OPC_SL_RD_DATA for that address.
func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	if len(written) == 0 {
		return
	}
	// A real LocoNet bus echoes every transmitted frame.
	push(append([]byte(nil), written...))
	switch written[0] {
	case OpLocoAdr:
		if len(written) < 3 {
			return
		}
		addr := int64(written[1])<<7 | int64(written[2])
		k.mu.Lock()
		num := k.nextSlot
		k.nextSlot++
		k.mu.Unlock()
		push(EncodeSlRdData(num, addr, 0))
	}
}

func (k *Kernel) SetPCAPEnabled(enabled bool) { k.pcapEnabled = enabled }
func (k *Kernel) PCAPEnabled() bool            { return k.pcapEnabled }

func (k *Kernel) SimulateInputChange(address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(inputChannelDefault, address, action)
	if changed := k.inputs.Update(inputChannelDefault, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(inputChannelDefault, address, state)
	}
}
