package object

import (
	"sync"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/value"
)

// AttributeName enumerates the well-known metadata slots.
type AttributeName string

const (
	AttrEnabled      AttributeName = "enabled"
	AttrMin          AttributeName = "min"
	AttrMax          AttributeName = "max"
	AttrValues       AttributeName = "values"
	AttrUnit         AttributeName = "unit"
	AttrDisplayName  AttributeName = "display_name"
	AttrCategory     AttributeName = "category"
	AttrObjectEditor AttributeName = "object_editor"
	AttrAliasKeys    AttributeName = "alias_keys"
	AttrAliasValues  AttributeName = "alias_values"
)

// Attribute holds either a scalar value or a vector of values. "Span"
// attributes (AliasKeys/AliasValues-style ref-to-vector rebinding) always
// fire their changed notification on Set, because identity of the
// underlying vector cannot be reliably compared — every other attribute
// suppresses no-op notifications by comparing old/new.
type Attribute struct {
	Name   AttributeName
	Span   bool
	scalar value.Value
	vector []value.Value
}

func (a *Attribute) IsVector() bool { return a.vector != nil || a.Span }

func (a *Attribute) Scalar() value.Value { return a.scalar }

func (a *Attribute) Vector() []value.Value {
	out := make([]value.Value, len(a.vector))
	copy(out, a.vector)
	return out
}

// AttributeMap is an InterfaceItem's attribute table. Attribute creation
// goes through Add, which enforces "must not already exist"; mutation goes
// through Set, which enforces "requires previously added".
type AttributeMap struct {
	mu      sync.RWMutex
	order   []AttributeName
	attrs   map[AttributeName]*Attribute
	onChange func(*Attribute)
}

func NewAttributeMap(onChange func(*Attribute)) *AttributeMap {
	return &AttributeMap{
		attrs:    make(map[AttributeName]*Attribute),
		onChange: onChange,
	}
}

// Add creates a new scalar attribute. Returns an error if the name already
// exists.
func (m *AttributeMap) Add(name AttributeName, v value.Value) (*Attribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.attrs[name]; exists {
		return nil, errs.New(errs.Failed, "attribute %q already exists", name)
	}
	a := &Attribute{Name: name, scalar: v}
	m.attrs[name] = a
	m.order = append(m.order, name)
	return a, nil
}

// AddVector creates a new vector attribute.
func (m *AttributeMap) AddVector(name AttributeName, v []value.Value, span bool) (*Attribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.attrs[name]; exists {
		return nil, errs.New(errs.Failed, "attribute %q already exists", name)
	}
	a := &Attribute{Name: name, vector: append([]value.Value(nil), v...), Span: span}
	m.attrs[name] = a
	m.order = append(m.order, name)
	return a, nil
}

// Set mutates an existing scalar attribute's value, firing onChange unless
// the new value equals the old one.
func (m *AttributeMap) Set(name AttributeName, v value.Value) error {
	m.mu.Lock()
	a, exists := m.attrs[name]
	if !exists {
		m.mu.Unlock()
		return errs.New(errs.Failed, "attribute %q was not previously added", name)
	}
	changed := a.scalar != v
	a.scalar = v
	m.mu.Unlock()
	if changed && m.onChange != nil {
		m.onChange(a)
	}
	return nil
}

// SetVector mutates an existing vector attribute. Span attributes always
// fire onChange; non-span vectors fire only when contents differ.
func (m *AttributeMap) SetVector(name AttributeName, v []value.Value) error {
	m.mu.Lock()
	a, exists := m.attrs[name]
	if !exists {
		m.mu.Unlock()
		return errs.New(errs.Failed, "attribute %q was not previously added", name)
	}
	changed := a.Span || !equalValues(a.vector, v)
	a.vector = append([]value.Value(nil), v...)
	m.mu.Unlock()
	if changed && m.onChange != nil {
		m.onChange(a)
	}
	return nil
}

func equalValues(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Get returns the named attribute and whether it exists.
func (m *AttributeMap) Get(name AttributeName) (*Attribute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attrs[name]
	return a, ok
}

// Each iterates attributes in declaration order.
func (m *AttributeMap) Each(fn func(*Attribute)) {
	m.mu.RLock()
	order := append([]AttributeName(nil), m.order...)
	m.mu.RUnlock()
	for _, name := range order {
		m.mu.RLock()
		a := m.attrs[name]
		m.mu.RUnlock()
		fn(a)
	}
}
