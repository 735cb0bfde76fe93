package object

import (
	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/value"
)

// OnSetFunc is the optional user predicate that may reject an assignment.
// Returning false fails the call with InvalidValue.
type OnSetFunc func(v value.Value) bool

// Property is a scalar interface item holding one typed value.
type Property struct {
	itemBase
	kind       value.Type
	current    value.Value
	onSet      OnSetFunc
	onChanged  func(*Property)
	enumValues value.EnumValues
	setValues  value.SetValues
}

// NewProperty constructs a Property. kind is fixed for the property's
// lifetime.
func NewProperty(name string, kind value.Type, initial value.Value, flags PropertyFlags) *Property {
	return &Property{
		itemBase: newItemBase(name, flags),
		kind:     kind,
		current:  initial,
	}
}

func (p *Property) Kind() value.Type    { return p.kind }
func (p *Property) Value() value.Value  { return p.current }
func (p *Property) SetOnSet(fn OnSetFunc) { p.onSet = fn }
func (p *Property) SetOnChanged(fn func(*Property)) { p.onChanged = fn }

// SetEnumValues/SetSetValues register the admissible name/value table used
// by wire-side conversion of Enum/Set properties.
func (p *Property) SetEnumValues(v value.EnumValues) { p.enumValues = v }
func (p *Property) SetSetValues(v value.SetValues)   { p.setValues = v }
func (p *Property) EnumValues() value.EnumValues     { return p.enumValues }
func (p *Property) SetValues() value.SetValues       { return p.setValues }

// Set assigns a new value from client/script code. Only runs on a
// ReadWrite property (NotWritable otherwise); the optional onSet predicate
// may reject the value (InvalidValue).
func (p *Property) Set(v value.Value) error {
	if !p.flags.ReadWrite() {
		return errs.New(errs.NotWritable, "property %q is read-only", p.name)
	}
	return p.setChecked(v)
}

// SetInternal bypasses the ReadWrite check and the onSet predicate; used
// for authoritative updates from protocol kernels.
func (p *Property) SetInternal(v value.Value) error {
	return p.apply(v)
}

func (p *Property) setChecked(v value.Value) error {
	if p.onSet != nil && !p.onSet(v) {
		return errs.New(errs.InvalidValue, "value rejected for property %q", p.name)
	}
	return p.apply(v)
}

func (p *Property) apply(v value.Value) error {
	if v.Kind != p.kind {
		return errs.New(errs.ConversionError, "property %q expects %s, got %s", p.name, p.kind, v.Kind)
	}
	changed := p.current != v
	p.current = v
	if changed && p.onChanged != nil {
		p.onChanged(p)
	}
	return nil
}

// VectorProperty is an ordered, homogeneous sequence of values.
type VectorProperty struct {
	itemBase
	kind      value.Type
	values    []value.Value
	onChanged func(*VectorProperty)
}

func NewVectorProperty(name string, kind value.Type, flags PropertyFlags) *VectorProperty {
	return &VectorProperty{itemBase: newItemBase(name, flags), kind: kind}
}

func (p *VectorProperty) Kind() value.Type { return p.kind }
func (p *VectorProperty) Len() int         { return len(p.values) }

func (p *VectorProperty) Get(i int) (value.Value, error) {
	if i < 0 || i >= len(p.values) {
		return value.Value{}, errs.New(errs.OutOfRange, "index %d out of range for property %q (len %d)", i, p.name, len(p.values))
	}
	return p.values[i], nil
}

func (p *VectorProperty) All() []value.Value {
	out := make([]value.Value, len(p.values))
	copy(out, p.values)
	return out
}

func (p *VectorProperty) SetOnChanged(fn func(*VectorProperty)) { p.onChanged = fn }

// SetAll replaces the whole vector, validating each element's kind. Only
// runs on a ReadWrite property (NotWritable otherwise).
func (p *VectorProperty) SetAll(values []value.Value) error {
	if !p.flags.ReadWrite() {
		return errs.New(errs.NotWritable, "property %q is read-only", p.name)
	}
	return p.SetAllInternal(values)
}

// SetAllInternal bypasses the ReadWrite check, for authoritative updates
// from the loader or from the World's own aggregate-list bookkeeping.
func (p *VectorProperty) SetAllInternal(values []value.Value) error {
	for i, v := range values {
		if v.Kind != p.kind {
			return errs.New(errs.ConversionError, "element %d of property %q expects %s, got %s", i, p.name, p.kind, v.Kind)
		}
	}
	p.values = append([]value.Value(nil), values...)
	if p.onChanged != nil {
		p.onChanged(p)
	}
	return nil
}

// ObjectProperty is a scalar holding a strong or subobject reference.
// SubObject flag on the owning item means its lifetime is
// owned by the container; otherwise it is shared with the referent.
type ObjectProperty struct {
	itemBase
	target    value.ObjectRef
	onChanged func(*ObjectProperty)
}

func NewObjectProperty(name string, flags PropertyFlags) *ObjectProperty {
	return &ObjectProperty{itemBase: newItemBase(name, flags)}
}

func (p *ObjectProperty) Target() value.ObjectRef { return p.target }
func (p *ObjectProperty) SetOnChanged(fn func(*ObjectProperty)) { p.onChanged = fn }

func (p *ObjectProperty) Set(ref value.ObjectRef) error {
	if !p.flags.ReadWrite() {
		return errs.New(errs.NotWritable, "property %q is read-only", p.name)
	}
	return p.SetInternal(ref)
}

func (p *ObjectProperty) SetInternal(ref value.ObjectRef) error {
	changed := p.target != ref
	p.target = ref
	if changed && p.onChanged != nil {
		p.onChanged(p)
	}
	return nil
}

// UnitProperty is a numeric Property with an associated display unit. Its
// current value is always stored in a fixed base unit; SetUnit rescales the
// displayed value without changing the stored base-unit magnitude.
type UnitProperty struct {
	Property
	unit     int64
	convert  func(v float64, fromUnit, toUnit int64) float64
}

func NewUnitProperty(name string, initial value.Value, flags PropertyFlags, unit int64, convert func(float64, int64, int64) float64) *UnitProperty {
	return &UnitProperty{
		Property: *NewProperty(name, value.Float, initial, flags),
		unit:     unit,
		convert:  convert,
	}
}

func (p *UnitProperty) Unit() int64 { return p.unit }

// SetUnit changes the display unit, converting the stored value so its
// physical magnitude is preserved.
func (p *UnitProperty) SetUnit(newUnit int64) error {
	if p.convert == nil || newUnit == p.unit {
		p.unit = newUnit
		return nil
	}
	f, err := value.ToFloat(p.current)
	if err != nil {
		return err
	}
	converted := p.convert(f, p.unit, newUnit)
	p.unit = newUnit
	return p.apply(value.NewFloat(converted))
}
