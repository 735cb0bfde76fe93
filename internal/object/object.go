package object

import (
	"sync"

	"github.com/traintastic/traintastic-go/internal/value"
)

// ClassID identifies an Object's concrete type for the loader's factory
// table.
type ClassID string

// Object is the polymorphic root type: IdObject, SubObject or
// StateObject. All three share item storage, lifecycle and world-event
// dispatch; only their identity and persistence differ. Domain entities
// (Clock, Train, Z21Interface, …) embed one of IdObjectBase/SubObjectBase/
// StateObjectBase and satisfy this interface through promoted methods,
// overriding Loaded/Destroy/WorldEvent where they need extra behavior.
type Object interface {
	ClassID() ClassID
	Items() []InterfaceItem
	Item(name string) (InterfaceItem, bool)
	AddItem(item InterfaceItem)

	// Destroy is idempotent-by-flag and transitively destroys owned
	// SubObjects. It holds the object alive (via the caller's own
	// reference) until OnDestroying listeners have returned.
	Destroy()
	IsDestroying() bool
	OnDestroying() *Event

	// Loaded is called once by the loader after every property (including
	// object references) has been resolved, leaves-first.
	Loaded()

	// WorldEvent recursively dispatches to owned SubObjects so the whole
	// tree reacts atomically.
	WorldEvent(state value.Value, event value.WorldEvent)

	PropertyChanged() *Event
	AttributeChanged() *Event
}

// base is embedded (indirectly, through IdObjectBase/SubObjectBase/
// StateObjectBase) by every concrete Object and implements the parts of the
// interface common to all three variants.
type base struct {
	mu    sync.RWMutex
	class ClassID
	order []string
	items map[string]InterfaceItem

	destroying   bool
	onDestroying *Event

	propertyChanged  *Event
	attributeChanged *Event

	subObjects []Object // owned SubObjects, for transitive Destroy/WorldEvent
}

func newBase(class ClassID) base {
	return base{
		class:            class,
		items:            make(map[string]InterfaceItem),
		onDestroying:     NewEvent("onDestroying", nil, FlagReadOnly|FlagNoStore),
		propertyChanged:  NewEvent("propertyChanged", nil, FlagReadOnly|FlagNoStore|FlagInternal),
		attributeChanged: NewEvent("attributeChanged", nil, FlagReadOnly|FlagNoStore|FlagInternal),
	}
}

func (b *base) ClassID() ClassID { return b.class }

// AddItem registers an interface item in declaration order.
// Every item's name must be unique within the object. A change callback
// already set on a scalar property is kept and runs before the object's
// propertyChanged event fires.
func (b *base) AddItem(item InterfaceItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := item.Name()
	if _, exists := b.items[name]; exists {
		panic("object: duplicate interface item name " + name)
	}
	b.items[name] = item
	b.order = append(b.order, name)

	item.Attributes().onChange = func(a *Attribute) {
		b.attributeChanged.Fire(name, a)
	}

	switch it := item.(type) {
	case *Property:
		prev := it.onChanged
		it.SetOnChanged(func(p *Property) {
			if prev != nil {
				prev(p)
			}
			b.propertyChanged.Fire(p)
		})
	case *UnitProperty:
		prev := it.onChanged
		it.SetOnChanged(func(p *Property) {
			if prev != nil {
				prev(p)
			}
			b.propertyChanged.Fire(p)
		})
	case *VectorProperty:
		it.SetOnChanged(func(p *VectorProperty) { b.propertyChanged.Fire(p) })
	case *ObjectProperty:
		it.SetOnChanged(func(p *ObjectProperty) { b.propertyChanged.Fire(p) })
	}
}

func (b *base) Items() []InterfaceItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]InterfaceItem, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.items[name])
	}
	return out
}

func (b *base) Item(name string) (InterfaceItem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	it, ok := b.items[name]
	return it, ok
}

// AddSubObject registers a child Object that Destroy/WorldEvent must
// transitively reach. The caller is responsible for also pointing a
// SubObject-flagged ObjectProperty at child, keeping the parent-property
// relation 1:1.
func (b *base) AddSubObject(child Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subObjects = append(b.subObjects, child)
}

func (b *base) IsDestroying() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroying
}

func (b *base) OnDestroying() *Event     { return b.onDestroying }
func (b *base) PropertyChanged() *Event  { return b.propertyChanged }
func (b *base) AttributeChanged() *Event { return b.attributeChanged }

// Destroy is idempotent-by-flag: a second call is a no-op. Children are
// destroyed before this object's onDestroying fires, so teardown is
// leaf-first.
func (b *base) Destroy() {
	b.mu.Lock()
	if b.destroying {
		b.mu.Unlock()
		return
	}
	b.destroying = true
	children := append([]Object(nil), b.subObjects...)
	b.mu.Unlock()

	for _, c := range children {
		c.Destroy()
	}
	b.onDestroying.Fire()
}

// Loaded has no default behavior; embedders override it when they need to
// react once every reference has been resolved.
func (b *base) Loaded() {}

// WorldEvent recurses into owned SubObjects. Embedders override it to add
// their own reaction and must call down into this method (or iterate
// SubObjects() themselves) to keep propagating.
func (b *base) WorldEvent(state value.Value, event value.WorldEvent) {
	b.mu.RLock()
	children := append([]Object(nil), b.subObjects...)
	b.mu.RUnlock()
	for _, c := range children {
		c.WorldEvent(state, event)
	}
}

// SubObjects returns the directly-owned children, for embedders that
// override WorldEvent/Loaded and need to propagate manually.
func (b *base) SubObjects() []Object {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Object(nil), b.subObjects...)
}

// --- IdObjectBase ---

// IdObjectBase is embedded by every top-level Object, addressed by a
// world-unique id string.
type IdObjectBase struct {
	base
	id string
}

// NewIdObjectBase constructs an IdObjectBase. id must be world-unique;
// the world's factory/loader is responsible for enforcing that.
func NewIdObjectBase(class ClassID, id string) IdObjectBase {
	b := IdObjectBase{base: newBase(class), id: id}
	idProp := NewProperty("id", value.String, value.NewString(id), FlagReadWrite|FlagStore)
	idProp.SetOnSet(func(v value.Value) bool { return v.StrVal != "" })
	b.AddItem(idProp)
	return b
}

func (o *IdObjectBase) ID() string { return o.id }

// SetID updates the id in place; used by the session's rename-on-save path
// and by the loader when id collisions are resolved.
func (o *IdObjectBase) SetID(id string) { o.id = id }

// --- SubObjectBase ---

// SubObjectBase is embedded by an Object owned by a parent via an
// ObjectProperty; its identity is (parent, property name), not a
// world-unique id.
type SubObjectBase struct {
	base
	parent   Object
	propName string
}

// NewSubObjectBase constructs a SubObjectBase. The caller must also point
// the parent's SubObject-flagged ObjectProperty at the resulting Object and
// register it via the parent's AddSubObject.
func NewSubObjectBase(class ClassID, parent Object, propName string) SubObjectBase {
	return SubObjectBase{base: newBase(class), parent: parent, propName: propName}
}

func (o *SubObjectBase) Parent() Object       { return o.parent }
func (o *SubObjectBase) PropertyName() string { return o.propName }

// --- StateObjectBase ---

// StateObjectBase is embedded by non-persistent runtime state:
// it has items and lifecycle like any Object, but the loader never
// serializes it and it is never assigned a world-unique id.
type StateObjectBase struct {
	base
}

func NewStateObjectBase(class ClassID) StateObjectBase {
	return StateObjectBase{base: newBase(class)}
}

// AsProperty/AsMethod/etc. are small helpers used by the session layer to
// type-assert an InterfaceItem without repeating the switch everywhere.
func AsProperty(item InterfaceItem) (*Property, bool)             { p, ok := item.(*Property); return p, ok }
func AsVectorProperty(item InterfaceItem) (*VectorProperty, bool) { p, ok := item.(*VectorProperty); return p, ok }
func AsObjectProperty(item InterfaceItem) (*ObjectProperty, bool) { p, ok := item.(*ObjectProperty); return p, ok }
func AsMethod(item InterfaceItem) (*Method, bool)                 { m, ok := item.(*Method); return m, ok }
func AsEvent(item InterfaceItem) (*Event, bool)                   { e, ok := item.(*Event); return e, ok }
