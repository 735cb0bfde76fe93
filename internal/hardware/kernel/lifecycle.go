package kernel

import (
	"context"
	"sync"

	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/osutil"
)

// Lifecycle implements the create/start/started/stop sequence and owns
// the one goroutine a protocol kernel runs its I/O handler and all
// protocol state on, stepping through the
// Stopped/Starting/Running/Stopping/Error states.
type Lifecycle struct {
	mu    sync.Mutex
	state State
	cb    Callbacks
	logID string
	logger *log.Registry

	cancel context.CancelFunc
	wg     sync.WaitGroup

	io IOHandler

	// onStarted runs on the kernel goroutine immediately after the I/O
	// handler's Start succeeds.
	onStarted func(ctx context.Context)
	// onStopping runs on the kernel goroutine before the I/O handler is
	// stopped (e.g. to write a simulation snapshot).
	onStopping func()
}

// NewLifecycle constructs a Lifecycle bound to one IOHandler and logID
// (used in log.Registry.Log's objectID field).
func NewLifecycle(logID string, logger *log.Registry, io IOHandler, cb Callbacks) *Lifecycle {
	return &Lifecycle{logID: logID, logger: logger, io: io, cb: cb, state: StateStopped}
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) setState(s State) {
	l.mu.Lock()
	if !IsValidTransition(l.state, s) && l.state != s {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()
	if l.cb.OnStateChanged != nil {
		l.cb.OnStateChanged(s)
	}
}

// Start spawns exactly one I/O goroutine, calls ioHandler.Start on it, and
// invokes onStarted on first successful handshake. On handler construction
// failure it logs and enters the Error state.
func (l *Lifecycle) Start(onStarted func(ctx context.Context)) {
	l.mu.Lock()
	if l.state != StateStopped && l.state != StateError {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	l.onStarted = onStarted
	l.setState(StateStarting)

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.wg.Add(1)
	go l.run(ctx)
}

func (l *Lifecycle) run(ctx context.Context) {
	defer l.wg.Done()
	osutil.SetThreadName(l.logID)
	if err := l.io.Start(ctx); err != nil {
		if msgErr, ok := AsLogMessage(err); ok {
			l.logger.Log(l.logID, msgErr.Message, msgErr.Args...)
		}
		l.setState(StateError)
		return
	}
	l.setState(StateRunning)
	if l.onStarted != nil {
		l.onStarted(ctx)
	}
	<-ctx.Done()
}

// Stop posts ioHandler.Stop(), stops the I/O goroutine and joins it.
// Timers the caller owns are not touched; the caller cancels its own.
// onStopping, if set, runs first so the caller can write a simulation
// snapshot.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.setState(StateStopping)

	if l.onStopping != nil {
		l.onStopping()
	}
	_ = l.io.Stop()
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.setState(StateStopped)
}

func (l *Lifecycle) SetOnStopping(fn func()) { l.onStopping = fn }

func (l *Lifecycle) Logger() *log.Registry { return l.logger }
func (l *Lifecycle) LogID() string         { return l.logID }
