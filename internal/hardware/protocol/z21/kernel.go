package z21

import (
	"context"
	"sync"
	"time"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/value"
)

var (
	msgBroadcastFlagsMismatch = log.Register(log.Message{Code: "W2101", Severity: log.Warning, Format: "broadcast flags mismatch after reconnect: want 0x%x, got 0x%x"})
)

const (
	keepAliveInterval             = 15 * time.Second
	purgeInactiveDecoderInterval  = 60 * time.Second
	inputChannelRBus              = "rbus"
	inputChannelLocoNet           = "loconet"
)

// locoCacheEntry is the cached command-station view of one loco, keyed
// by DCC address.
type locoCacheEntry struct {
	isEStop               bool
	speedStep             int
	speedSteps            int
	direction             value.Direction
	lastReceivedSpeedStep int
	lastSetTime           time.Time
}

// retryPolicy is the Z21 retry table by queue priority: low=1, normal=2,
// urgent=5 retries before a request is dropped.
var retryPolicy = hwkernel.RetryPolicy{
	hwkernel.PriorityLow:    1,
	hwkernel.PriorityNormal: 2,
	hwkernel.PriorityHigh:   5,
}

// Kernel is the Z21 client protocol kernel.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	io  *iohandler.UDP
	sim *iohandler.Simulation

	sendQueue *hwkernel.SendQueue
	pending   *hwkernel.PendingRequests
	inputs    *hwkernel.InputChannels
	cb        hwkernel.Callbacks

	// transmit writes one frame to the I/O handler; split out so the send
	// pipeline can be exercised without a transport behind it.
	transmit func([]byte)

	mu          sync.Mutex
	locos       map[int64]*locoCacheEntry
	buf         []byte
	inflight    *hwkernel.Message
	isUpdatingFromKernel bool
	keepAlive   *time.Timer
	wantBroadcastFlags uint32
	lastBroadcastFlags uint32

	simulated bool
}

type Config struct {
	Address   string // "host:port", used when not simulated
	Simulate  bool
}

// New constructs a Z21 client kernel.
func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{
		sendQueue: hwkernel.NewSendQueue(64),
		pending:   hwkernel.NewPendingRequests(500*time.Millisecond, 2*time.Second),
		inputs:    hwkernel.NewInputChannels(),
		cb:        cb,
		locos:     make(map[int64]*locoCacheEntry),
		simulated: cfg.Simulate,
	}
	k.sendQueue.SetName(logID)
	k.pending.SetName(logID)
	k.transmit = k.writeNow

	if cfg.Simulate {
		sim := &iohandler.Simulation{OnFrame: k.receive, Respond: k.simulationRespond}
		k.sim = sim
		k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	} else {
		udp := &iohandler.UDP{LocalAddr: ":0", RemoteAddr: cfg.Address, OnFrame: k.receive, OnError: k.onIOError}
		k.io = udp
		k.lc = hwkernel.NewLifecycle(logID, logger, udp, cb)
	}
	return k
}

func (k *Kernel) onIOError(err error) {
	k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgSocketDisconnected, err)
}

// Start spawns the kernel's I/O goroutine and begins the handshake.
func (k *Kernel) Start() {
	k.lc.Start(k.started)
}

func (k *Kernel) Stop() {
	k.mu.Lock()
	if k.keepAlive != nil {
		k.keepAlive.Stop()
	}
	k.inflight = nil
	k.mu.Unlock()
	k.pending.Clear()
	k.lc.Stop()
}

func (k *Kernel) State() hwkernel.State { return k.lc.State() }

// started sends LAN_SYSTEMSTATE_GETDATA and arms the 15s keep-alive.
func (k *Kernel) started(ctx context.Context) {
	k.send(SystemStateGetData(), hwkernel.PriorityNormal, uint16(headerSystemStateChanged))
	k.mu.Lock()
	k.keepAlive = time.AfterFunc(keepAliveInterval, func() { k.onKeepAlive(ctx) })
	k.mu.Unlock()
}

func (k *Kernel) onKeepAlive(ctx context.Context) {
	if k.lc.State() != hwkernel.StateRunning {
		return
	}
	k.send(SystemStateGetData(), hwkernel.PriorityNormal, uint16(headerSystemStateChanged))
	k.mu.Lock()
	k.keepAlive = time.AfterFunc(keepAliveInterval, func() { k.onKeepAlive(ctx) })
	k.mu.Unlock()
}

// send enqueues a message on the priority send queue and drains it as far
// as the echo/response windows allow. replyHeader is the LAN header the
// command station's reply will arrive under; zero marks a fire-and-forget
// command. Retry budgets come from the per-priority retryPolicy table.
func (k *Kernel) send(data []byte, prio hwkernel.Priority, replyHeader uint16) {
	m := hwkernel.Message{
		Priority:     prio,
		Data:         data,
		ExpectsReply: replyHeader != 0,
		MaxRetries:   retryPolicy[prio],
		Tag:          uint32(replyHeader),
	}
	if !k.sendQueue.Push(m) {
		k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgSendQueueFull)
		return
	}
	k.trySendNext()
}

// trySendNext advances the send queue: the highest-priority band drains
// FIFO, but never past a message whose reply window is still open, so a
// high-priority enqueue cannot overtake the frame in flight.
func (k *Kernel) trySendNext() {
	for {
		k.mu.Lock()
		if k.inflight != nil || !k.pending.Ready() {
			k.mu.Unlock()
			return
		}
		m, ok := k.sendQueue.Pop()
		if !ok {
			k.mu.Unlock()
			return
		}
		if m.ExpectsReply {
			k.inflight = &m
			k.mu.Unlock()
			// Arm before transmitting: in simulation the reply can arrive
			// on the same call stack as the write.
			k.pending.ArmReply(m.MaxRetries, k.onReplyTimeout)
			k.transmit(m.Data)
			return
		}
		k.mu.Unlock()
		k.transmit(m.Data)
	}
}

// onReplyTimeout retries the in-flight request while its budget lasts,
// then logs and advances the queue.
func (k *Kernel) onReplyTimeout() {
	k.mu.Lock()
	m := k.inflight
	k.mu.Unlock()
	if m == nil {
		return
	}
	if remaining, ok := k.pending.ConsumeRetry(); ok {
		k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgResponseTimeout, m.Tag, remaining)
		k.pending.RearmReply(k.onReplyTimeout)
		k.transmit(m.Data)
		return
	}
	k.lc.Logger().Log(k.lc.LogID(), hwkernel.MsgResponseTimeout, m.Tag, 0)
	k.pending.Clear()
	k.mu.Lock()
	k.inflight = nil
	k.mu.Unlock()
	k.trySendNext()
}

// completeInflight closes the reply window if f answers the in-flight
// request, then lets the queue advance.
func (k *Kernel) completeInflight(f Frame) {
	k.mu.Lock()
	m := k.inflight
	if m == nil || uint32(f.Header) != m.Tag {
		k.mu.Unlock()
		return
	}
	k.inflight = nil
	k.mu.Unlock()
	k.pending.ReplyReceived()
	k.trySendNext()
}

func (k *Kernel) receive(data []byte) {
	k.mu.Lock()
	k.buf = append(k.buf, data...)
	for {
		f, n, ok := Decode(k.buf)
		if !ok {
			break
		}
		k.buf = k.buf[n:]
		k.mu.Unlock()
		k.handleFrame(f)
		k.mu.Lock()
	}
	k.mu.Unlock()
}

func (k *Kernel) handleFrame(f Frame) {
	k.completeInflight(f)
	switch f.Header {
	case headerLanXLocoInfo:
		k.handleX(f.Payload)
	}
}

func (k *Kernel) handleX(payload []byte) {
	if len(payload) == 0 {
		return
	}
	if IsBCTrackPowerOn(payload) {
		if k.cb.OnPowerChanged != nil {
			k.cb.OnPowerChanged(true)
		}
		return
	}
	if IsBCTrackPowerOff(payload) {
		if k.cb.OnPowerChanged != nil {
			k.cb.OnPowerChanged(false)
		}
		return
	}
	if IsBCStopped(payload) {
		if k.cb.OnEmergencyStop != nil {
			k.cb.OnEmergencyStop()
		}
		return
	}
	if li, ok := DecodeLocoInfo(payload); ok {
		k.reconcileLocoInfo(li)
	}
}

// reconcileLocoInfo updates the LocoCache and forwards only the fields
// that actually changed.
// isUpdatingFromKernel suppresses the echo of our own outbound
// decoderChanged while it is in flight.
func (k *Kernel) reconcileLocoInfo(li LocoInfo) {
	k.mu.Lock()
	entry, ok := k.locos[li.Address]
	if !ok {
		entry = &locoCacheEntry{}
		k.locos[li.Address] = entry
	}
	changedSpeed := entry.lastReceivedSpeedStep != li.SpeedStep
	entry.lastReceivedSpeedStep = li.SpeedStep
	entry.speedStep = li.SpeedStep
	entry.speedSteps = li.SpeedSteps
	entry.isEStop = li.EmergencyStop
	suppress := k.isUpdatingFromKernel
	k.mu.Unlock()

	if suppress {
		return
	}
	if changedSpeed && k.cb.OnDecoderSpeedFromStation != nil {
		throttle := RescaleSpeedStep(li.SpeedStep, li.SpeedSteps)
		dir := value.DirectionForward
		if !li.Direction {
			dir = value.DirectionReverse
		}
		k.cb.OnDecoderSpeedFromStation(li.Address, throttle, dir, li.EmergencyStop)
	}
}

// PowerOn/PowerOff/EmergencyStop are invoked by the world-facing Interface
// in response to World Power/Run transitions. They ride the urgent band
// and await the matching LAN_X broadcast.
func (k *Kernel) PowerOn() {
	k.send(SetTrackPowerOn(), hwkernel.PriorityHigh, uint16(headerLanXLocoInfo))
}

func (k *Kernel) PowerOff() {
	k.send(SetTrackPowerOff(), hwkernel.PriorityHigh, uint16(headerLanXLocoInfo))
}

func (k *Kernel) EmergencyStop() {
	k.send(SetStop(), hwkernel.PriorityHigh, uint16(headerLanXLocoInfo))
}

func (k *Kernel) writeNow(frame []byte) {
	if k.io != nil {
		_ = k.io.Write(frame)
	} else if k.sim != nil {
		_ = k.sim.Write(frame)
	}
}

// simulationRespond is the synthetic peer used in simulation mode: it
// answers the handful of requests the kernel itself sends with the reply
// a real Z21 would send.
func (k *Kernel) simulationRespond(written []byte, push func([]byte)) {
	f, _, ok := Decode(written)
	if !ok {
		return
	}
	switch f.Header {
	case headerSystemStateGetData:
		push(EncodeLan(headerSystemStateChanged, make([]byte, 16)))
	case headerLanXLocoInfo:
		if len(f.Payload) < 2 {
			return
		}
		switch {
		case f.Payload[0] == 0x21 && f.Payload[1] == xSetTrackPowerOn:
			push(BCTrackPowerOn())
		case f.Payload[0] == 0x21 && f.Payload[1] == xSetTrackPowerOff:
			push(BCTrackPowerOff())
		case f.Payload[0] == xSetStop:
			push(BCStopped())
		}
	}
}

// DecoderChanged pushes a throttle/direction update down to the command
// station.
func (k *Kernel) DecoderChanged(address int64, throttle float64, dir value.Direction, eStop bool) {
	k.mu.Lock()
	entry, ok := k.locos[address]
	if !ok {
		entry = &locoCacheEntry{speedSteps: 126}
		k.locos[address] = entry
	}
	entry.direction = dir
	entry.lastSetTime = time.Now()
	k.isUpdatingFromKernel = true
	steps := entry.speedSteps
	if steps == 0 {
		steps = 126
	}
	step := int(throttle * float64(steps-1))
	entry.speedStep = step
	k.mu.Unlock()

	speedByte := byte(step + 1)
	if eStop {
		speedByte = 1
	}
	if dir == value.DirectionForward {
		speedByte |= 0x80
	}
	addrHi := byte((address>>8)&0x3F) | 0xC0
	addrLo := byte(address)
	k.send(EncodeX(xSetLocoDrive, 0x13, addrHi, addrLo, speedByte), hwkernel.PriorityNormal, 0)

	k.mu.Lock()
	k.isUpdatingFromKernel = false
	k.mu.Unlock()
}

// PurgeInactive drops cache entries that have had no local write for
// purgeInactiveDecoderInterval.
func (k *Kernel) PurgeInactive(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for addr, e := range k.locos {
		if !e.lastSetTime.IsZero() && now.Sub(e.lastSetTime) > purgeInactiveDecoderInterval {
			delete(k.locos, addr)
		}
	}
}

// SimulateInputChange constructs a plausible on-the-wire frame and routes
// it through receive(...), reusing the live code path.
func (k *Kernel) SimulateInputChange(channel string, address int64, action value.SimulateInputAction) {
	state := k.inputs.SimulateAction(channel, address, action)
	if changed := k.inputs.Update(channel, address, state); changed && k.cb.OnInputValueChanged != nil {
		k.cb.OnInputValueChanged(channel, address, state)
	}
}
