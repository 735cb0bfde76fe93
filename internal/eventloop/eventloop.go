// Package eventloop implements the single-goroutine work-queue executor
// that every World and protocol kernel posts closures onto:
// one goroutine owns all mutable state reachable from posted work, so
// handlers never need their own locking.
package eventloop

import (
	"context"
	"sync"

	"github.com/traintastic/traintastic-go/internal/osutil"
)

// Job is a unit of posted work. Jobs run strictly in posting order.
type Job func()

// EventLoop drains a single channel of Jobs on one dedicated goroutine.
type EventLoop struct {
	jobs    chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New creates an EventLoop with the given queue depth. A depth of 0 makes
// Post synchronous with the loop goroutine's readiness (rendezvous).
func New(queueDepth int) *EventLoop {
	return &EventLoop{
		jobs: make(chan Job, queueDepth),
		done: make(chan struct{}),
	}
}

// Run starts the loop goroutine. Run must be called exactly once; it
// returns immediately, the loop itself runs until Stop is called.
func (l *EventLoop) Run() {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		osutil.SetThreadName("event-loop")
		for {
			select {
			case job := <-l.jobs:
				job()
			case <-l.done:
				l.drain()
				return
			}
		}
	}()
}

// drain runs any jobs still queued at shutdown so posted work is never
// silently lost.
func (l *EventLoop) drain() {
	for {
		select {
		case job := <-l.jobs:
			job()
		default:
			return
		}
	}
}

// Post enqueues a job. It blocks if the queue is full; callers on the loop
// goroutine itself must never call Post synchronously without a buffered
// queue depth, or they will deadlock against their own job.
func (l *EventLoop) Post(job Job) {
	l.jobs <- job
}

// TryPost enqueues a job without blocking, reporting false if the queue was
// full.
func (l *EventLoop) TryPost(job Job) bool {
	select {
	case l.jobs <- job:
		return true
	default:
		return false
	}
}

// PostAndWait enqueues job and blocks until it has run, or ctx is done.
func (l *EventLoop) PostAndWait(ctx context.Context, job Job) error {
	done := make(chan struct{})
	l.jobs <- func() {
		job()
		close(done)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the loop to drain and exit, then waits for it to finish.
func (l *EventLoop) Stop() {
	close(l.done)
	l.wg.Wait()
}
