package object

import (
	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/value"
)

// ArgType is one of ValueType ∪ {Object, Void} for a Method's argument or
// result.
type ArgType int

const (
	ArgVoid ArgType = iota
	ArgBoolean
	ArgInteger
	ArgFloat
	ArgString
	ArgObject
)

func (t ArgType) valueKind() value.Type {
	switch t {
	case ArgBoolean:
		return value.Boolean
	case ArgInteger:
		return value.Integer
	case ArgFloat:
		return value.Float
	case ArgString:
		return value.String
	case ArgObject:
		return value.Object
	default:
		return value.Invalid
	}
}

// Handler is the bound implementation behind a Method. It receives already
// arity/type-checked arguments.
type Handler func(args []value.Value) (value.Value, error)

// Method is a callable interface item with a typed argument list and
// result.
type Method struct {
	itemBase
	argTypes   []ArgType
	resultType ArgType
	handler    Handler
}

func NewMethod(name string, argTypes []ArgType, resultType ArgType, handler Handler, flags PropertyFlags) *Method {
	return &Method{
		itemBase:   newItemBase(name, flags),
		argTypes:   argTypes,
		resultType: resultType,
		handler:    handler,
	}
}

func (m *Method) ArgTypes() []ArgType { return m.argTypes }
func (m *Method) ResultType() ArgType { return m.resultType }

// Call validates arity and per-argument conversion, invokes the bound
// handler, and maps any handler error to Failed.
func (m *Method) Call(args []value.Value) (value.Value, error) {
	if len(args) != len(m.argTypes) {
		return value.Value{}, errs.New(errs.InvalidCommand, "method %q expects %d arguments, got %d", m.name, len(m.argTypes), len(args))
	}
	converted := make([]value.Value, len(args))
	for i, want := range m.argTypes {
		if want == ArgVoid {
			continue
		}
		if args[i].Kind != want.valueKind() {
			return value.Value{}, errs.New(errs.ConversionError, "argument %d of method %q expects %s, got %s", i, m.name, want.valueKind(), args[i].Kind)
		}
		converted[i] = args[i]
	}
	if m.handler == nil {
		return value.Value{}, errs.New(errs.Failed, "method %q has no handler bound", m.name)
	}
	result, err := func() (res value.Value, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errs.New(errs.Failed, "method %q panicked: %v", m.name, r)
			}
		}()
		return m.handler(converted)
	}()
	if err != nil {
		if e, ok := err.(*errs.Error); ok {
			return value.Value{}, e
		}
		return value.Value{}, errs.Wrap(errs.Failed, err, "method %q failed", m.name)
	}
	return result, nil
}
