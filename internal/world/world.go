// Package world implements the top-level aggregate: the
// World IdObject owning every domain entity, its PowerOff/PowerOn/Stop/Run
// + Edit state machine, its Settings and Clock SubObjects, and the
// directory/archive Loader/Saver.
package world

import (
	"sync"

	"github.com/traintastic/traintastic-go/internal/clock"
	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/eventloop"
	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

const ClassID object.ClassID = "world"

// World is the aggregate root of one layout; the server's Root holds at
// most one loaded World at a time. It embeds object.IdObjectBase so it is
// itself addressable and reflectable like any other IdObject.
type World struct {
	object.IdObjectBase

	loop   *eventloop.EventLoop
	logger *log.Registry

	mu      sync.RWMutex
	objects map[string]object.Object // every top-level IdObject reachable from this World, keyed by id

	nameProp  *object.Property
	stateProp *object.Property

	settings *Settings
	clock    *clock.Clock

	// lists aggregates every world-level IdObject class under the
	// vector-of-object property the World exposes for it. Populated in
	// New(); CreateObject appends to whichever list matches the
	// constructed class.
	lists map[object.ClassID]*object.VectorProperty

	trains     *object.VectorProperty
	boards     *object.VectorProperty
	decoders   *object.VectorProperty
	boosters   *object.VectorProperty
	ioModules  *object.VectorProperty
	interfaces *object.VectorProperty
}

// New constructs an empty World ready for either fresh use or loader
// replay. The World registers itself under its own id in its object
// table, so it is addressable by id like any other entity.
func New(id string, loop *eventloop.EventLoop, logger *log.Registry) *World {
	w := &World{
		IdObjectBase: object.NewIdObjectBase(ClassID, id),
		loop:         loop,
		logger:       logger,
		objects:      make(map[string]object.Object),
	}

	w.nameProp = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	w.stateProp = object.NewProperty("state", value.Set, value.NewSet(0), object.FlagReadOnly|object.FlagNoStore)
	w.stateProp.SetSetValues(value.WorldStateValues)
	w.AddItem(w.nameProp)
	w.AddItem(w.stateProp)

	w.settings = newSettings(w)
	w.AddItem(w.subObjectProperty("settings", w.settings))
	w.AddSubObject(w.settings)

	w.clock = clock.New(w, "clock", w.State, logger, 0, 0, 1, true)
	w.AddItem(w.subObjectProperty("clock", w.clock))
	w.AddSubObject(w.clock)

	w.trains = w.newObjectList("trains")
	w.boards = w.newObjectList("boards")
	w.decoders = w.newObjectList("decoders")
	w.boosters = w.newObjectList("boosters")
	w.ioModules = w.newObjectList("io_modules")
	w.interfaces = w.newObjectList("interfaces")

	w.lists = map[object.ClassID]*object.VectorProperty{
		TrainClassID:       w.trains,
		BoardClassID:       w.boards,
		DecoderClassID:     w.decoders,
		BoosterClassID:     w.boosters,
		InputModuleClassID:  w.ioModules,
		OutputModuleClassID: w.ioModules,

		Z21InterfaceClassID:        w.interfaces,
		Z21ServerInterfaceClassID:  w.interfaces,
		ECoSInterfaceClassID:       w.interfaces,
		LocoNetInterfaceClassID:    w.interfaces,
		DCCEXInterfaceClassID:      w.interfaces,
		MarklinCANInterfaceClassID: w.interfaces,
		DinamoInterfaceClassID:     w.interfaces,
		HSI88InterfaceClassID:      w.interfaces,
		CBUSInterfaceClassID:       w.interfaces,
		XpressNetInterfaceClassID:  w.interfaces,
	}

	w.objects[id] = w
	return w
}

// newObjectList builds one of the World's aggregate vector-of-object
// properties: read-only to clients (membership changes only through
// CreateObject/DestroyObject), but Store-flagged so the set of ids round-
// trips through Save/Load.
func (w *World) newObjectList(name string) *object.VectorProperty {
	p := object.NewVectorProperty(name, value.Object, object.FlagReadOnly|object.FlagStore)
	w.AddItem(p)
	return p
}

// CreateObject constructs a fresh top-level IdObject of class via the
// world-wide factory table, registers it under id, and appends it to
// whichever aggregate list (trains/boards/decoders/boosters/io_modules/
// interfaces) that class belongs to.
func (w *World) CreateObject(class object.ClassID, id string) (object.Object, error) {
	if _, exists := w.Object(id); exists {
		return nil, errs.New(errs.Failed, "object id %q already exists in this world", id)
	}
	f, err := lookupFactory(class)
	if err != nil {
		return nil, errs.Wrap(errs.UnknownClassId, err, "no factory registered for class_id %q", class)
	}
	o := f(w, id)
	if err := w.Register(o, id); err != nil {
		return nil, err
	}
	if list, ok := w.lists[class]; ok {
		_ = list.SetAllInternal(append(list.All(), value.NewObject(value.NewObjectRef(id))))
	}
	return o, nil
}

// CreateTrain is a typed convenience wrapper over CreateObject for the
// common "add a train" operation.
func (w *World) CreateTrain(id string) (*Train, error) {
	o, err := w.CreateObject(TrainClassID, id)
	if err != nil {
		return nil, err
	}
	return o.(*Train), nil
}

// Trains returns every Train currently registered, in list order.
func (w *World) Trains() []*Train { return listObjects[*Train](w, w.trains) }

// Boards returns every Board currently registered, in list order.
func (w *World) Boards() []*Board { return listObjects[*Board](w, w.boards) }

// Decoders returns every Decoder currently registered, in list order.
func (w *World) Decoders() []*Decoder { return listObjects[*Decoder](w, w.decoders) }

func listObjects[T object.Object](w *World, list *object.VectorProperty) []T {
	var out []T
	for _, v := range list.All() {
		if v.ObjRef.IsNull() {
			continue
		}
		o, ok := w.Object(v.ObjRef.ID())
		if !ok {
			continue
		}
		if t, ok := o.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// State returns the current WorldState bitset as a value.Value, satisfying
// clock.WorldStateFunc without clock importing world (avoiding a cycle).
func (w *World) State() value.Value { return w.stateProp.Value() }

func (w *World) Clock() *clock.Clock { return w.clock }
func (w *World) Settings() *Settings { return w.settings }

// Object looks up any top-level IdObject by id, including the World
// itself and every domain entity the loader has materialized.
func (w *World) Object(id string) (object.Object, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	o, ok := w.objects[id]
	return o, ok
}

// Objects returns every registered top-level IdObject, in no particular
// order; callers that need determinism should sort by id.
func (w *World) Objects() []object.Object {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]object.Object, 0, len(w.objects))
	for _, o := range w.objects {
		out = append(out, o)
	}
	return out
}

// Register adds a top-level IdObject to the world's object table. Returns
// a Failed error if the id collides.
func (w *World) Register(o object.Object, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.objects[id]; exists {
		return errs.New(errs.Failed, "object id %q already exists in this world", id)
	}
	w.objects[id] = o
	return nil
}

func (w *World) Unregister(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.objects, id)
}

// fireWorldEvent broadcasts to every top-level object, which in turn
// recurses into its own SubObjects so the whole tree reacts atomically.
func (w *World) fireWorldEvent(event value.WorldEvent) {
	state := w.State()
	for _, o := range w.Objects() {
		o.WorldEvent(state, event)
	}
}

func (w *World) setState(newState value.WorldState) {
	w.stateProp.SetInternal(value.NewSet(int64(newState)))
}

// --- Power/Run/Edit transitions.

func (w *World) powerState() value.WorldState {
	return value.WorldState(w.stateProp.Value().IntVal)
}

func (w *World) PowerOn() {
	st := w.powerState() | value.WorldStatePower
	w.setState(st)
	w.fireWorldEvent(value.WorldEventPowerOn)
}

func (w *World) PowerOff() {
	st := w.powerState() &^ (value.WorldStatePower | value.WorldStateRun)
	w.setState(st)
	w.fireWorldEvent(value.WorldEventPowerOff)
}

// Run transitions to Run; only meaningful while powered.
func (w *World) Run() error {
	st := w.powerState()
	if st&value.WorldStatePower == 0 {
		return errs.New(errs.InvalidCommand, "cannot run an unpowered world")
	}
	w.setState(st | value.WorldStateRun)
	w.fireWorldEvent(value.WorldEventRun)
	return nil
}

func (w *World) Stop() {
	st := w.powerState() &^ value.WorldStateRun
	w.setState(st)
	w.fireWorldEvent(value.WorldEventStop)
}

func (w *World) EditEnable() {
	st := w.powerState() | value.WorldStateEdit
	w.setState(st)
	w.fireWorldEvent(value.WorldEventEditEnabled)
}

func (w *World) EditDisable() {
	st := w.powerState() &^ value.WorldStateEdit
	w.setState(st)
	w.fireWorldEvent(value.WorldEventEditDisabled)
}

// SubObjectID is the synthetic id a SubObject is addressed by on the wire:
// it has no world-unique id of its own, so sessions resolve
// it as "<owningIdObjectID>.<propertyName>".
func SubObjectID(owner object.Object, propName string) string {
	id, _ := owner.(interface{ ID() string })
	if id == nil {
		return propName
	}
	return id.ID() + "." + propName
}

// subObjectProperty builds the ObjectProperty the World uses to expose an
// owned SubObject by name, pre-pointed at the child's synthetic id so
// sessions can resolve world.settings/world.clock immediately, and
// registers that synthetic id in the world's object table.
func (w *World) subObjectProperty(name string, child object.Object) *object.ObjectProperty {
	id := SubObjectID(w, name)
	w.objects[id] = child
	p := object.NewObjectProperty(name, object.FlagReadOnly|object.FlagNoStore|object.FlagSubObject)
	p.SetInternal(value.NewObjectRef(id))
	return p
}
