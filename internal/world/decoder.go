package world

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

const DecoderClassID object.ClassID = "decoder"

// maxFunctions bounds the decoder function vector at the DCC-common 29
// functions (F0..F28).
const maxFunctions = 29

// Decoder is the world-level IdObject addressed by every protocol kernel's
// DecoderChanged callback: one DCC mobile decoder, its address, direction,
// throttle and function state.
//
// address/longAddress/speedSteps are plain stored properties, direction
// and throttle are read-write properties a kernel also updates via
// SetInternal when hardware reports a change out of band, and functions
// is a fixed-length vector of booleans rather than a dynamic map.
type Decoder struct {
	object.IdObjectBase

	w *World

	name        *object.Property
	address     *object.Property
	longAddr    *object.Property
	speedSteps  *object.Property
	direction   *object.Property
	throttle    *object.Property
	emergency   *object.Property
	functions   *object.VectorProperty
}

func newDecoder(w *World, id string) *Decoder {
	d := &Decoder{w: w, IdObjectBase: object.NewIdObjectBase(DecoderClassID, id)}

	d.name = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	d.address = object.NewProperty("address", value.Integer, value.NewInt(3), object.FlagReadWrite|object.FlagStore)
	d.longAddr = object.NewProperty("long_address", value.Boolean, value.NewBool(false), object.FlagReadWrite|object.FlagStore)
	d.speedSteps = object.NewProperty("speed_steps", value.Integer, value.NewInt(128), object.FlagReadWrite|object.FlagStore)
	d.direction = object.NewProperty("direction", value.Enum, value.NewEnum("forward", int64(value.DirectionForward)), object.FlagReadWrite|object.FlagStore)
	d.direction.SetEnumValues(value.DirectionValues)
	d.throttle = object.NewProperty("throttle", value.Float, value.NewFloat(0), object.FlagReadWrite|object.FlagStore)
	d.emergency = object.NewProperty("emergency_stop", value.Boolean, value.NewBool(false), object.FlagReadWrite|object.FlagNoStore)
	d.functions = object.NewVectorProperty("functions", value.Boolean, object.FlagReadWrite|object.FlagStore)
	empty := make([]value.Value, maxFunctions)
	for i := range empty {
		empty[i] = value.NewBool(false)
	}
	_ = d.functions.SetAll(empty)

	for _, it := range []object.InterfaceItem{d.name, d.address, d.longAddr, d.speedSteps, d.direction, d.throttle, d.emergency, d.functions} {
		d.AddItem(it)
	}
	return d
}

func (d *Decoder) Address() int64    { v, _ := value.ToInt(d.address.Value()); return v }
func (d *Decoder) LongAddress() bool { v, _ := value.ToBool(d.longAddr.Value()); return v }

func (d *Decoder) Throttle() float64 { v, _ := value.ToFloat(d.throttle.Value()); return v }

// SetThrottleFromHardware mirrors a kernel's out-of-band speed report
// without re-triggering the kernel send path.
func (d *Decoder) SetThrottleFromHardware(t float64) {
	_ = d.throttle.SetInternal(value.NewFloat(t))
}

func (d *Decoder) Direction() value.Direction {
	return value.Direction(d.direction.Value().IntVal)
}

func (d *Decoder) SetDirectionFromHardware(dir value.Direction) {
	name := "forward"
	if dir == value.DirectionReverse {
		name = "reverse"
	}
	_ = d.direction.SetInternal(value.NewEnum(name, int64(dir)))
}

func (d *Decoder) Function(i int) bool {
	v, err := d.functions.Get(i)
	if err != nil {
		return false
	}
	b, _ := value.ToBool(v)
	return b
}

func (d *Decoder) SetFunctionFromHardware(i int, on bool) {
	if i < 0 || i >= d.functions.Len() {
		return
	}
	all := d.functions.All()
	all[i] = value.NewBool(on)
	_ = d.functions.SetAll(all)
}

func init() {
	RegisterClass(DecoderClassID, func(w *World, id string) object.Object { return newDecoder(w, id) })
}
