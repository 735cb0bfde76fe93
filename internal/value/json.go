package value

import (
	"encoding/json"
	"math"

	"github.com/traintastic/traintastic-go/internal/errs"
)

// MarshalJSON encodes floats with Inf/NaN special
// strings, enums by name, sets by their current bit value (names are
// resolved by the caller, which holds the Values attribute), objects by id
// or null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Invalid:
		return json.Marshal(nil)
	case Boolean:
		return json.Marshal(v.BoolVal)
	case Integer, Set:
		return json.Marshal(v.IntVal)
	case Float:
		if s := specialFloatString(v.FloatVal); s != "" {
			return json.Marshal(s)
		}
		return json.Marshal(v.FloatVal)
	case String:
		return json.Marshal(v.StrVal)
	case Enum:
		return json.Marshal(v.StrVal)
	case Object:
		if v.ObjRef.IsNull() {
			return json.Marshal(nil)
		}
		return json.Marshal(v.ObjRef.ID())
	default:
		return nil, errs.New(errs.ConversionError, "cannot marshal value of kind %s", v.Kind)
	}
}

func specialFloatString(f float64) string {
	s := formatFloat(f)
	if s == "Inf" || s == "-Inf" || s == "NaN" {
		return s
	}
	return ""
}

// DecodeAs unmarshals a raw JSON value into a Value of the given kind,
// applying the same Inf/NaN/enum-name/object-id rules as MarshalJSON.
// enumValues/setValues are consulted when kind is Enum/Set; may be nil
// otherwise.
func DecodeAs(raw json.RawMessage, kind Type, enumValues EnumValues, setValues SetValues) (Value, error) {
	switch kind {
	case Boolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding boolean")
		}
		return NewBool(b), nil
	case Integer:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding integer")
		}
		return NewInt(i), nil
	case Float:
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			switch s {
			case "Inf":
				return NewFloat(math.Inf(1)), nil
			case "-Inf":
				return NewFloat(math.Inf(-1)), nil
			case "NaN":
				return NewFloat(math.NaN()), nil
			}
			return Value{}, errs.New(errs.ConversionError, "unrecognized float string %q", s)
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding float")
		}
		return NewFloat(f), nil
	case String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding string")
		}
		return NewString(s), nil
	case Enum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding enum")
		}
		return ToEnum(s, enumValues)
	case Set:
		var i int64
		if err := json.Unmarshal(raw, &i); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding set")
		}
		return ToSet(i, setValues)
	case Object:
		var s *string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, errs.Wrap(errs.ConversionError, err, "decoding object reference")
		}
		if s == nil {
			return NewObject(ObjectRef{}), nil
		}
		return NewObject(NewObjectRef(*s)), nil
	default:
		return Value{}, errs.New(errs.ConversionError, "cannot decode value of kind %s", kind)
	}
}
