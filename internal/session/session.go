// Package session implements the per-connection ClientSession: handle
// allocation and refcounting, object descriptors, the command
// dispatch table, and property/attribute change fanout keyed by handle.
//
// A Session runs entirely on the event loop; the connection's read pump
// posts Dispatch calls onto it and the send callback enqueues pre-encoded
// frames onto the connection's FIFO write queue.
package session

import (
	"strings"

	"github.com/google/uuid"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/observability"
	"github.com/traintastic/traintastic-go/internal/table"
)

var (
	msgSessionCreated = log.Register(log.Message{Code: "I2001", Severity: log.Info, Format: "session %s created"})
	msgSessionClosed  = log.Register(log.Message{Code: "I2002", Severity: log.Info, Format: "session %s closed"})
)

// Resolver is the session's view of the object graph: the root object a
// NewSession response describes, plus id-keyed lookup for path walking.
// The traintastic.Root implements this.
type Resolver interface {
	RootObject() object.Object
	ObjectByID(id string) (object.Object, bool)
}

// Session is one client's projection of the object graph. It is created
// per connection and activated by the first valid NewSession request; a
// session is never reused across connections.
type Session struct {
	id       uuid.UUID
	started  bool
	resolver Resolver
	logger   *log.Registry
	send     func(frame []byte)

	nextHandle uint32
	handles    map[uint32]object.Object
	byObject   map[object.Object]uint32
	refCount   map[uint32]int
	unsub      map[uint32][]func()

	// Per-handle last-known vectors for the specialized input-monitor and
	// output-keyboard event channels (per-address deltas, not whole-vector
	// snapshots).
	lastInputs  map[uint32][]int64
	lastOutputs map[uint32][]bool
	inputIDs    map[uint32]map[int64]string

	tables     map[uint32]*table.Model
	tableUnsub map[uint32]func()
}

// New creates an inactive Session bound to a connection's send callback.
func New(resolver Resolver, logger *log.Registry, send func(frame []byte)) *Session {
	observability.SessionOpened()
	return &Session{
		resolver:    resolver,
		logger:      logger,
		send:        send,
		handles:     make(map[uint32]object.Object),
		byObject:    make(map[object.Object]uint32),
		refCount:    make(map[uint32]int),
		unsub:       make(map[uint32][]func()),
		lastInputs:  make(map[uint32][]int64),
		lastOutputs: make(map[uint32][]bool),
		inputIDs:    make(map[uint32]map[int64]string),
		tables:      make(map[uint32]*table.Model),
		tableUnsub:  make(map[uint32]func()),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// Close drops every handle and subscription; called when the connection
// goes away. After Close no further event frame is produced.
func (s *Session) Close() {
	for h := range s.handles {
		s.dropHandle(h)
	}
	for h := range s.tables {
		s.dropTable(h)
	}
	if s.started {
		s.logger.Log("", msgSessionClosed, s.id)
	}
	observability.SessionClosed()
}

// --- Handles ---

// handleFor returns the session-local handle for o, allocating one on
// first use. isNew reports whether the caller must emit the descriptor and
// connect signals.
func (s *Session) handleFor(o object.Object) (h uint32, isNew bool) {
	if h, ok := s.byObject[o]; ok {
		s.refCount[h]++
		return h, false
	}
	s.nextHandle++
	if s.nextHandle == 0 { // skip 0, it is the invalid handle
		s.nextHandle = 1
	}
	h = s.nextHandle
	s.handles[h] = o
	s.byObject[o] = h
	s.refCount[h] = 1
	observability.HandleAllocated()
	return h, true
}

func (s *Session) objectFor(h uint32) (object.Object, error) {
	o, ok := s.handles[h]
	if !ok {
		return nil, errs.New(errs.InvalidHandle, "handle %d is not held by this session", h)
	}
	return o, nil
}

// release decrements the handle's reference counter, dropping the handle
// and its subscriptions when it reaches zero.
func (s *Session) release(h uint32) error {
	if _, ok := s.handles[h]; !ok {
		return errs.New(errs.InvalidHandle, "handle %d is not held by this session", h)
	}
	s.refCount[h]--
	if s.refCount[h] <= 0 {
		s.dropHandle(h)
	}
	return nil
}

func (s *Session) dropHandle(h uint32) {
	for _, fn := range s.unsub[h] {
		fn()
	}
	if o, ok := s.handles[h]; ok {
		delete(s.byObject, o)
	}
	delete(s.unsub, h)
	delete(s.handles, h)
	delete(s.refCount, h)
	delete(s.lastInputs, h)
	delete(s.lastOutputs, h)
	delete(s.inputIDs, h)
	observability.HandleReleased()
}

func (s *Session) dropTable(h uint32) {
	if fn, ok := s.tableUnsub[h]; ok {
		fn()
	}
	delete(s.tableUnsub, h)
	delete(s.tables, h)
	observability.HandleReleased()
}

// --- Path resolution ---

// resolvePath walks a dotted id path starting at the root object: each
// step resolves a property whose ValueType is Object. The first segment may also be a bare world-unique id.
func (s *Session) resolvePath(path string) (object.Object, error) {
	cur := s.resolver.RootObject()
	if path == "" {
		return cur, nil
	}
	for i, seg := range strings.Split(path, ".") {
		item, ok := cur.Item(seg)
		if !ok {
			if i == 0 {
				if o, found := s.resolver.ObjectByID(seg); found {
					cur = o
					continue
				}
			}
			return nil, errs.New(errs.UnknownObject, "no property %q in path %q", seg, path)
		}
		prop, ok := object.AsObjectProperty(item)
		if !ok {
			return nil, errs.New(errs.UnknownObject, "property %q in path %q is not an object", seg, path)
		}
		ref := prop.Target()
		if ref.IsNull() {
			return nil, errs.New(errs.UnknownObject, "property %q in path %q is null", seg, path)
		}
		o, found := s.resolver.ObjectByID(ref.ID())
		if !found {
			return nil, errs.New(errs.UnknownObject, "id %q in path %q does not resolve", ref.ID(), path)
		}
		cur = o
	}
	return cur, nil
}
