// Package z21server implements the Z21 LAN server kernel: tracks subscribers (UDP endpoint ↔ ClientId), a
// per-client broadcast-flags bitmask, and a capped set of
// (address, longAddress) subscriptions; purges inactive clients every
// 60s; mirrors power/emergency-stop state from the world and lists the
// SystemStatusChanges subscribers on a power change. It sends no
// LanSystemStateDataChanged frame itself.
package z21server

import (
	"context"
	"sync"
	"time"

	"github.com/traintastic/traintastic-go/internal/hardware/iohandler"
	hwkernel "github.com/traintastic/traintastic-go/internal/hardware/kernel"
	"github.com/traintastic/traintastic-go/internal/log"
)

const (
	maxSubscriptionsPerClient = 16
	purgeInterval             = 60 * time.Second
	inactivityThreshold       = 60 * time.Second

	BroadcastFlagSystemStatusChanges uint32 = 0x0100
)

// client is one subscribed Z21-LAN peer.
type client struct {
	id              string // UDP endpoint, e.g. "192.168.1.5:21105"
	broadcastFlags  uint32
	subscriptions   map[subscriptionKey]bool
	lastSeen        time.Time
}

type subscriptionKey struct {
	address     int64
	longAddress bool
}

// Kernel is the Z21 LAN server protocol kernel.
type Kernel struct {
	lc  *hwkernel.Lifecycle
	io  *iohandler.UDP
	sim *iohandler.Simulation

	mu       sync.Mutex
	clients  map[string]*client
	powerOn  bool
	stopped  bool

	purgeTimer *time.Timer
}

type Config struct {
	ListenAddr string
	Simulate   bool
}

func New(logID string, logger *log.Registry, cfg Config, cb hwkernel.Callbacks) *Kernel {
	k := &Kernel{clients: make(map[string]*client)}
	if cfg.Simulate {
		sim := &iohandler.Simulation{OnFrame: func([]byte) {}}
		k.sim = sim
		k.lc = hwkernel.NewLifecycle(logID, logger, sim, cb)
	} else {
		udp := &iohandler.UDP{LocalAddr: cfg.ListenAddr}
		k.io = udp
		k.lc = hwkernel.NewLifecycle(logID, logger, udp, cb)
	}
	return k
}

func (k *Kernel) Start() {
	k.lc.Start(func(ctx context.Context) {
		k.mu.Lock()
		k.purgeTimer = time.AfterFunc(purgeInterval, func() { k.purgeInactive(time.Now()) })
		k.mu.Unlock()
	})
}

func (k *Kernel) Stop() {
	k.mu.Lock()
	if k.purgeTimer != nil {
		k.purgeTimer.Stop()
	}
	k.mu.Unlock()
	k.lc.Stop()
}

func (k *Kernel) State() hwkernel.State { return k.lc.State() }

// Subscribe registers or refreshes a client's broadcast-flags mask.
func (k *Kernel) Subscribe(clientID string, flags uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.clients[clientID]
	if !ok {
		c = &client{id: clientID, subscriptions: make(map[subscriptionKey]bool)}
		k.clients[clientID] = c
	}
	c.broadcastFlags = flags
	c.lastSeen = time.Now()
}

// SubscribeLoco registers a client's interest in one decoder's updates,
// capped at 16 subscriptions per client.
func (k *Kernel) SubscribeLoco(clientID string, address int64, longAddress bool) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.clients[clientID]
	if !ok {
		return false
	}
	key := subscriptionKey{address, longAddress}
	if c.subscriptions[key] {
		return true
	}
	if len(c.subscriptions) >= maxSubscriptionsPerClient {
		return false
	}
	c.subscriptions[key] = true
	return true
}

func (k *Kernel) purgeInactive(now time.Time) {
	k.mu.Lock()
	for id, c := range k.clients {
		if now.Sub(c.lastSeen) > inactivityThreshold {
			delete(k.clients, id)
		}
	}
	stopped := k.stopped
	k.mu.Unlock()
	if !stopped {
		k.mu.Lock()
		k.purgeTimer = time.AfterFunc(purgeInterval, func() { k.purgeInactive(time.Now()) })
		k.mu.Unlock()
	}
}

// OnWorldPowerChanged mirrors the world's power/stop state and returns the
// ids of the clients whose broadcastFlags include SystemStatusChanges. It
// sends no LanSystemStateDataChanged frame itself.
func (k *Kernel) OnWorldPowerChanged(on, running bool) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.powerOn = on
	k.stopped = !running
	var targets []string
	for id, c := range k.clients {
		if c.broadcastFlags&BroadcastFlagSystemStatusChanges != 0 {
			targets = append(targets, id)
		}
	}
	return targets
}

func (k *Kernel) SubscriberCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.clients)
}
