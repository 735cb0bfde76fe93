// Package value implements the tagged value kinds shared by every
// InterfaceItem: Boolean, Integer, Float, String, Enum, Set, Object and
// Invalid, plus the conversion rules between them.
//
// Invalid is reserved for zero-value Values and must never appear on a live
// interface item.
package value

import (
	"fmt"
	"math"

	"github.com/traintastic/traintastic-go/internal/errs"
)

// Type is the value kind discriminator.
type Type int

const (
	Invalid Type = iota
	Boolean
	Integer
	Float
	String
	Enum
	Set
	Object
)

func (t Type) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case String:
		return "string"
	case Enum:
		return "enum"
	case Set:
		return "set"
	case Object:
		return "object"
	default:
		return "invalid"
	}
}

// Value is a closed tagged union over Type. Only the fields matching Kind
// are meaningful; the rest are zero. An Enum carries its member name in
// StrVal and its underlying i64 in IntVal; a Set carries its bitfield in
// IntVal.
type Value struct {
	Kind     Type
	BoolVal  bool
	IntVal   int64
	FloatVal float64
	StrVal   string
	ObjRef   ObjectRef
}

// ObjectRef is an opaque reference to an Object by its world-unique id,
// resolved through the World's object table. A zero ObjectRef denotes a
// null reference.
type ObjectRef struct {
	id    string
	valid bool
}

// NewObjectRef wraps a world-unique object id as a reference.
func NewObjectRef(id string) ObjectRef {
	if id == "" {
		return ObjectRef{}
	}
	return ObjectRef{id: id, valid: true}
}

func (r ObjectRef) ID() string   { return r.id }
func (r ObjectRef) Valid() bool  { return r.valid }
func (r ObjectRef) IsNull() bool { return !r.valid }

func NewBool(v bool) Value   { return Value{Kind: Boolean, BoolVal: v} }
func NewInt(v int64) Value   { return Value{Kind: Integer, IntVal: v} }
func NewFloat(v float64) Value { return Value{Kind: Float, FloatVal: v} }
func NewString(v string) Value { return Value{Kind: String, StrVal: v} }
func NewEnum(name string, v int64) Value {
	return Value{Kind: Enum, StrVal: name, IntVal: v}
}
func NewSet(bits int64) Value { return Value{Kind: Set, IntVal: bits} }
func NewObject(ref ObjectRef) Value { return Value{Kind: Object, ObjRef: ref} }

// ToBool converts to bool. Boolean is never implicitly convertible
// to or from any numeric type through this layer.
func ToBool(v Value) (bool, error) {
	if v.Kind != Boolean {
		return false, errs.New(errs.ConversionError, "cannot convert %s to boolean", v.Kind)
	}
	return v.BoolVal, nil
}

// ToInt performs numeric narrowing with OutOfRange on failure, and rounds
// float→integer conversions half-to-even.
func ToInt(v Value) (int64, error) {
	switch v.Kind {
	case Integer:
		return v.IntVal, nil
	case Float:
		if math.IsNaN(v.FloatVal) || math.IsInf(v.FloatVal, 0) {
			return 0, errs.New(errs.OutOfRange, "float %v has no integer representation", v.FloatVal)
		}
		rounded := math.RoundToEven(v.FloatVal)
		if rounded > math.MaxInt64 || rounded < math.MinInt64 {
			return 0, errs.New(errs.OutOfRange, "float %v out of int64 range", v.FloatVal)
		}
		return int64(rounded), nil
	case Enum, Set:
		return v.IntVal, nil
	case String:
		return 0, errs.New(errs.ConversionError, "cannot convert string to integer through this layer")
	default:
		return 0, errs.New(errs.ConversionError, "cannot convert %s to integer", v.Kind)
	}
}

// ToFloat converts to float64, preserving Inf/NaN.
func ToFloat(v Value) (float64, error) {
	switch v.Kind {
	case Float:
		return v.FloatVal, nil
	case Integer:
		return float64(v.IntVal), nil
	default:
		return 0, errs.New(errs.ConversionError, "cannot convert %s to float", v.Kind)
	}
}

// ToString formats a value as a human string (not the JSON encoding — see
// json.go for the wire/storage form, which special-cases Inf/NaN and enum
// names).
func ToString(v Value) (string, error) {
	switch v.Kind {
	case String, Enum:
		return v.StrVal, nil
	case Boolean:
		return fmt.Sprintf("%t", v.BoolVal), nil
	case Integer, Set:
		return fmt.Sprintf("%d", v.IntVal), nil
	case Float:
		return formatFloat(v.FloatVal), nil
	default:
		return "", errs.New(errs.ConversionError, "cannot convert %s to string", v.Kind)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	default:
		return fmt.Sprintf("%g", f)
	}
}

// EnumValues is the admissible name/value table for an Enum property,
// supplied by the generated tables in enumset.go. An Enum property's
// current value must always be one of these names.
type EnumValues map[string]int64

// ToEnum matches a wire string against the declared name exactly
// (case-sensitive); failure is ConversionError.
func ToEnum(name string, values EnumValues) (Value, error) {
	v, ok := values[name]
	if !ok {
		return Value{}, errs.New(errs.ConversionError, "%q is not a member of this enum", name)
	}
	return NewEnum(name, v), nil
}

// SetValues is the admissible bit-name table for a Set property.
type SetValues map[string]int64

// Mask is the union of all declared bits.
func (sv SetValues) Mask() int64 {
	var m int64
	for _, bit := range sv {
		m |= bit
	}
	return m
}

// ToSet validates that bits has no members outside the declared mask.
func ToSet(bits int64, values SetValues) (Value, error) {
	if bits&^values.Mask() != 0 {
		return Value{}, errs.New(errs.ConversionError, "set value 0x%x has bits outside the declared mask", bits)
	}
	return NewSet(bits), nil
}

// SetNames decomposes a set value's bits into their declared member names,
// in map iteration order is not guaranteed stable; callers that need stable
// order should sort the result.
func SetNames(bits int64, values SetValues) []string {
	var names []string
	for name, bit := range values {
		if bits&bit == bit && bit != 0 {
			names = append(names, name)
		}
	}
	return names
}
