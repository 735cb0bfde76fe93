package world

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
)

const TrainClassID object.ClassID = "train"

// Train is a world-level IdObject grouping a name, an active flag and a
// reference to the one Decoder it currently drives. Full consist and
// block-occupancy routing is out of scope here; speed, direction and
// emergency stop are properties of the linked Decoder, not of the Train.
type Train struct {
	object.IdObjectBase

	w *World

	name    *object.Property
	active  *object.Property
	decoder *object.ObjectProperty
}

func newTrain(w *World, id string) *Train {
	t := &Train{w: w, IdObjectBase: object.NewIdObjectBase(TrainClassID, id)}
	t.name = object.NewProperty("name", value.String, value.NewString(""), object.FlagReadWrite|object.FlagStore)
	t.active = object.NewProperty("active", value.Boolean, value.NewBool(false), object.FlagReadWrite|object.FlagStore)
	t.decoder = object.NewObjectProperty("decoder", object.FlagReadWrite|object.FlagStore)
	t.AddItem(t.name)
	t.AddItem(t.active)
	t.AddItem(t.decoder)
	return t
}

// Decoder resolves the train's linked Decoder through the owning World's
// object table, returning ok=false if unset or the reference is stale.
func (t *Train) Decoder() (*Decoder, bool) {
	ref := t.decoder.Target()
	if ref.IsNull() {
		return nil, false
	}
	o, ok := t.w.Object(ref.ID())
	if !ok {
		return nil, false
	}
	d, ok := o.(*Decoder)
	return d, ok
}

func init() {
	RegisterClass(TrainClassID, func(w *World, id string) object.Object { return newTrain(w, id) })
}
