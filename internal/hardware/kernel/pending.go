package kernel

import (
	"sync"
	"time"

	"github.com/traintastic/traintastic-go/internal/observability"
)

// RetryPolicy is a protocol's table-driven retry count by priority.
type RetryPolicy map[Priority]int

// PendingRequests tracks the "waiting for echo" / "waiting for response"
// state machine shared by every protocol kernel: a flag plus a timer for
// each, and a retry counter.
type PendingRequests struct {
	mu   sync.Mutex
	name string

	waitingEcho  bool
	echoTimer    *time.Timer
	echoTimeout  time.Duration

	waitingReply  bool
	replyTimer    *time.Timer
	replyTimeout  time.Duration
	retriesLeft   int
}

func NewPendingRequests(echoTimeout, replyTimeout time.Duration) *PendingRequests {
	return &PendingRequests{echoTimeout: echoTimeout, replyTimeout: replyTimeout}
}

// SetName labels this tracker's retry metric with the owning kernel's
// log id.
func (p *PendingRequests) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// ArmEcho starts the echo timeout; onTimeout runs on its own goroutine if
// the echo never arrives (caller's onTimeout must re-post to the kernel
// goroutine if it needs to touch kernel state).
func (p *PendingRequests) ArmEcho(onTimeout func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingEcho = true
	p.echoTimer = time.AfterFunc(p.echoTimeout, onTimeout)
}

// EchoReceived clears the waiting-for-echo flag and cancels its timer.
// Returns false if no echo was pending (the frame wasn't ours, or arrived
// after timeout and was already cleared).
func (p *PendingRequests) EchoReceived() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.waitingEcho {
		return false
	}
	p.waitingEcho = false
	if p.echoTimer != nil {
		p.echoTimer.Stop()
	}
	return true
}

func (p *PendingRequests) WaitingEcho() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitingEcho
}

// ArmReply starts the response timeout with the given retry budget.
func (p *PendingRequests) ArmReply(maxRetries int, onTimeout func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingReply = true
	p.retriesLeft = maxRetries
	p.replyTimer = time.AfterFunc(p.replyTimeout, onTimeout)
}

// RearmReply restarts the response timer after a retry without resetting
// the remaining retry budget (ArmReply would).
func (p *PendingRequests) RearmReply(onTimeout func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingReply = true
	p.replyTimer = time.AfterFunc(p.replyTimeout, onTimeout)
}

func (p *PendingRequests) ReplyReceived() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.waitingReply {
		return false
	}
	p.waitingReply = false
	if p.replyTimer != nil {
		p.replyTimer.Stop()
	}
	return true
}

func (p *PendingRequests) WaitingReply() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitingReply
}

// ConsumeRetry decrements the retry counter and reports whether a retry is
// still available.
func (p *PendingRequests) ConsumeRetry() (remaining int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retriesLeft <= 0 {
		return 0, false
	}
	p.retriesLeft--
	p.waitingReply = false
	name := p.name
	if name == "" {
		name = "kernel"
	}
	observability.RecordKernelRetry(name)
	return p.retriesLeft, true
}

// Clear cancels both timers and resets both flags, used on stop().
func (p *PendingRequests) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.echoTimer != nil {
		p.echoTimer.Stop()
	}
	if p.replyTimer != nil {
		p.replyTimer.Stop()
	}
	p.waitingEcho = false
	p.waitingReply = false
}

// Ready reports whether the queue may advance to the next message: both
// timers have cleared, or the message in flight needed neither.
func (p *PendingRequests) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.waitingEcho && !p.waitingReply
}
