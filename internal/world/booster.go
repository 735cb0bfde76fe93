package world

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

const BoosterClassID object.ClassID = "booster"

// powerControllable is satisfied by the Interface types whose kernel
// exposes its own PowerOn/PowerOff (every protocol except LocoNet, the
// feedback-only DINAMO/HSI-88 kernels and the Z21 server, which instead
// mirrors the world's own power state).
type powerControllable interface {
	PowerOn()
	PowerOff()
}

// Booster is a world-level IdObject representing one powered track
// segment driven through an Interface: a thin powerOn property plus an
// interface reference, no address of its own.
type Booster struct {
	object.IdObjectBase

	w       *World
	name    *object.Property
	powerOn *object.Property
	iface   *object.ObjectProperty
}

func newBooster(w *World, id string) *Booster {
	b := &Booster{w: w, IdObjectBase: object.NewIdObjectBase(BoosterClassID, id)}
	b.name = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	b.powerOn = object.NewProperty("power_on", value.Boolean, value.NewBool(false), object.FlagReadWrite|object.FlagNoStore)
	b.iface = object.NewObjectProperty("interface", object.FlagReadWrite|object.FlagStore)
	b.AddItem(b.name)
	b.AddItem(b.powerOn)
	b.AddItem(b.iface)
	return b
}

func (b *Booster) interfaceObject() (powerControllable, bool) {
	ref := b.iface.Target()
	if ref.IsNull() {
		return nil, false
	}
	o, ok := b.w.Object(ref.ID())
	if !ok {
		return nil, false
	}
	pc, ok := o.(powerControllable)
	return pc, ok
}

// SetPowerOn drives the linked interface, if any, and records the new
// state in the power_on property; with no interface linked only the
// property changes.
func (b *Booster) SetPowerOn(on bool) {
	if pc, ok := b.interfaceObject(); ok {
		if on {
			pc.PowerOn()
		} else {
			pc.PowerOff()
		}
	}
	_ = b.powerOn.SetInternal(value.NewBool(on))
}

func (b *Booster) PowerOn() bool { v, _ := value.ToBool(b.powerOn.Value()); return v }

func init() {
	RegisterClass(BoosterClassID, func(w *World, id string) object.Object { return newBooster(w, id) })
}
