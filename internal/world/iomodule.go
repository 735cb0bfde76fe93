package world

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

const (
	OutputModuleClassID object.ClassID = "output_module"
	InputModuleClassID  object.ClassID = "input_module"
)

type outputControllable interface {
	SetOutput(address int64, on bool)
}

// OutputModule groups a contiguous address range behind one Interface,
// exposing each address as an element of a boolean vector property.
type OutputModule struct {
	object.IdObjectBase

	w        *World
	name     *object.Property
	address  *object.Property
	iface    *object.ObjectProperty
	outputs  *object.VectorProperty
	outType  *object.Property
}

func newOutputModule(w *World, id string) *OutputModule {
	m := &OutputModule{w: w, IdObjectBase: object.NewIdObjectBase(OutputModuleClassID, id)}
	m.name = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	m.address = object.NewProperty("address", value.Integer, value.NewInt(0), object.FlagReadWrite|object.FlagStore)
	m.iface = object.NewObjectProperty("interface", object.FlagReadWrite|object.FlagStore)
	m.outputs = object.NewVectorProperty("outputs", value.Boolean, object.FlagReadWrite|object.FlagNoStore)
	m.outType = object.NewProperty("output_type", value.Enum, value.NewEnum("accessory", int64(value.OutputTypeAccessory)), object.FlagReadWrite|object.FlagStore)
	m.outType.SetEnumValues(value.OutputTypeValues)
	_ = m.outputs.SetAll(make([]value.Value, 0))
	m.AddItem(m.name)
	m.AddItem(m.address)
	m.AddItem(m.iface)
	m.AddItem(m.outType)
	m.AddItem(m.outputs)
	return m
}

func (m *OutputModule) baseAddress() int64 { v, _ := value.ToInt(m.address.Value()); return v }

func (m *OutputModule) interfaceObject() (outputControllable, bool) {
	ref := m.iface.Target()
	if ref.IsNull() {
		return nil, false
	}
	o, ok := m.w.Object(ref.ID())
	if !ok {
		return nil, false
	}
	oc, ok := o.(outputControllable)
	return oc, ok
}

// SetOutput sets channel i (0-based, relative to the module's base
// address) through the linked interface.
func (m *OutputModule) SetOutput(i int, on bool) error {
	if oc, ok := m.interfaceObject(); ok {
		oc.SetOutput(m.baseAddress()+int64(i), on)
	}
	all := m.outputs.All()
	for len(all) <= i {
		all = append(all, value.NewBool(false))
	}
	all[i] = value.NewBool(on)
	return m.outputs.SetAll(all)
}

type inputSimulatable interface {
	SimulateInputChange(address int64, action value.SimulateInputAction)
}

// InputModule mirrors OutputModule for feedback/sensor addresses, with
// TriState readings instead of booleans.
type InputModule struct {
	object.IdObjectBase

	w       *World
	name    *object.Property
	address *object.Property
	iface   *object.ObjectProperty
	inputs  *object.VectorProperty
}

func newInputModule(w *World, id string) *InputModule {
	m := &InputModule{w: w, IdObjectBase: object.NewIdObjectBase(InputModuleClassID, id)}
	m.name = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	m.address = object.NewProperty("address", value.Integer, value.NewInt(0), object.FlagReadWrite|object.FlagStore)
	m.iface = object.NewObjectProperty("interface", object.FlagReadWrite|object.FlagStore)
	m.inputs = object.NewVectorProperty("inputs", value.Integer, object.FlagReadOnly|object.FlagNoStore)
	m.AddItem(m.name)
	m.AddItem(m.address)
	m.AddItem(m.iface)
	m.AddItem(m.inputs)
	return m
}

func (m *InputModule) baseAddress() int64 { v, _ := value.ToInt(m.address.Value()); return v }

func (m *InputModule) interfaceObject() (inputSimulatable, bool) {
	ref := m.iface.Target()
	if ref.IsNull() {
		return nil, false
	}
	o, ok := m.w.Object(ref.ID())
	if !ok {
		return nil, false
	}
	is, ok := o.(inputSimulatable)
	return is, ok
}

// SimulateInput exercises the module's interface as if channel i reported
// a hardware transition.
func (m *InputModule) SimulateInput(i int, action value.SimulateInputAction) {
	if is, ok := m.interfaceObject(); ok {
		is.SimulateInputChange(m.baseAddress()+int64(i), action)
	}
}

// SetValueFromHardware records a real report for channel i, growing the
// vector as needed.
func (m *InputModule) SetValueFromHardware(i int, state value.TriState) {
	all := m.inputs.All()
	for len(all) <= i {
		all = append(all, value.NewInt(int64(value.TriStateUndefined)))
	}
	all[i] = value.NewInt(int64(state))
	_ = m.inputs.SetAll(all)
}

func init() {
	RegisterClass(OutputModuleClassID, func(w *World, id string) object.Object { return newOutputModule(w, id) })
	RegisterClass(InputModuleClassID, func(w *World, id string) object.Object { return newInputModule(w, id) })
}
