package object

import "sync"

// Event is a broadcast-only interface item; argument types are fixed at
// declaration and subscriptions are per-listener, added/removed during the
// session.
type Event struct {
	itemBase
	argTypes []ArgType

	mu          sync.RWMutex
	nextID      int
	subscribers map[int]func(args []any)
}

func NewEvent(name string, argTypes []ArgType, flags PropertyFlags) *Event {
	return &Event{
		itemBase:    newItemBase(name, flags),
		argTypes:    argTypes,
		subscribers: make(map[int]func(args []any)),
	}
}

func (e *Event) ArgTypes() []ArgType { return e.argTypes }

// Subscribe registers a listener and returns a token for Unsubscribe.
func (e *Event) Subscribe(fn func(args []any)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.subscribers[id] = fn
	return id
}

func (e *Event) Unsubscribe(token int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subscribers, token)
}

// Fire broadcasts args to every current subscriber. Subscribers are
// snapshotted before dispatch so a listener that unsubscribes mid-fire
// doesn't deadlock or skip siblings.
func (e *Event) Fire(args ...any) {
	e.mu.RLock()
	listeners := make([]func([]any), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		listeners = append(listeners, fn)
	}
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(args)
	}
}
