package session

import (
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/value"
	"github.com/traintastic/traintastic-go/internal/wire"
	"github.com/traintastic/traintastic-go/internal/world"
)

// itemKind is the descriptor's per-item discriminator byte.
const (
	itemProperty uint8 = iota
	itemUnitProperty
	itemVectorProperty
	itemObjectProperty
	itemMethod
	itemEvent
)

// writeObject emits o as a handle-and-descriptor block: the handle, a
// "descriptor follows" flag, and — on first emission only — the full
// descriptor plus signal connection.
func (s *Session) writeObject(w *wire.Writer, o object.Object) {
	h, isNew := s.handleFor(o)
	w.WriteUint32(h)
	w.WriteBool(isNew)
	if isNew {
		s.writeDescriptor(w, o)
		s.subscribe(h, o)
	}
}

// writeDescriptor emits the class id and every non-internal interface item
// in declaration order, with per-item flags, type, current value and
// attribute snapshot.
func (s *Session) writeDescriptor(w *wire.Writer, o object.Object) {
	w.WriteString(string(o.ClassID()))

	var items []object.InterfaceItem
	for _, item := range o.Items() {
		if item.IsInternal() {
			continue
		}
		items = append(items, item)
	}
	w.WriteUint32(uint32(len(items)))

	for _, item := range items {
		w.WriteString(item.Name())
		w.WriteUint32(uint32(item.Flags()))
		switch it := item.(type) {
		case *object.UnitProperty:
			w.WriteUint8(itemUnitProperty)
			w.WriteValue(it.Value())
			w.WriteInt64(it.Unit())
		case *object.Property:
			w.WriteUint8(itemProperty)
			w.WriteUint8(uint8(it.Kind()))
			w.WriteValue(it.Value())
			switch it.Kind() {
			case value.Enum:
				writeNameTable(w, map[string]int64(it.EnumValues()))
			case value.Set:
				writeNameTable(w, map[string]int64(it.SetValues()))
			}
		case *object.VectorProperty:
			w.WriteUint8(itemVectorProperty)
			w.WriteUint8(uint8(it.Kind()))
			all := it.All()
			w.WriteUint32(uint32(len(all)))
			for _, v := range all {
				w.WriteValue(v)
			}
		case *object.ObjectProperty:
			w.WriteUint8(itemObjectProperty)
			ref := it.Target()
			if ref.IsNull() {
				w.WriteString("")
			} else {
				w.WriteString(ref.ID())
			}
			w.WriteBool(it.Flags().SubObject())
		case *object.Method:
			w.WriteUint8(itemMethod)
			w.WriteUint8(uint8(it.ResultType()))
			args := it.ArgTypes()
			w.WriteUint8(uint8(len(args)))
			for _, a := range args {
				w.WriteUint8(uint8(a))
			}
		case *object.Event:
			w.WriteUint8(itemEvent)
			args := it.ArgTypes()
			w.WriteUint8(uint8(len(args)))
			for _, a := range args {
				w.WriteUint8(uint8(a))
			}
		}
		writeAttributes(w, item)
	}
}

func writeNameTable(w *wire.Writer, table map[string]int64) {
	w.WriteUint32(uint32(len(table)))
	for name, v := range table {
		w.WriteString(name)
		w.WriteInt64(v)
	}
}

func writeAttributes(w *wire.Writer, item object.InterfaceItem) {
	var attrs []*object.Attribute
	item.Attributes().Each(func(a *object.Attribute) { attrs = append(attrs, a) })
	w.WriteUint32(uint32(len(attrs)))
	for _, a := range attrs {
		writeAttribute(w, a)
	}
}

func writeAttribute(w *wire.Writer, a *object.Attribute) {
	w.WriteString(string(a.Name))
	w.WriteBool(a.IsVector())
	if a.IsVector() {
		vec := a.Vector()
		w.WriteUint32(uint32(len(vec)))
		for _, v := range vec {
			w.WriteValue(v)
		}
	} else {
		w.WriteValue(a.Scalar())
	}
}

// --- Change fanout ---

// subscribe connects o's propertyChanged/attributeChanged signals to this
// session's event stream, keyed by h. The unsubscribe closures recorded
// here are what guarantee the handle invariant: after Release(h) is
// acknowledged no further event addressed to h is produced.
func (s *Session) subscribe(h uint32, o object.Object) {
	pc := o.PropertyChanged()
	pt := pc.Subscribe(func(args []any) { s.onPropertyChanged(h, o, args) })
	ac := o.AttributeChanged()
	at := ac.Subscribe(func(args []any) { s.onAttributeChanged(h, args) })
	s.unsub[h] = append(s.unsub[h],
		func() { pc.Unsubscribe(pt) },
		func() { ac.Unsubscribe(at) },
	)
}

// onPropertyChanged serializes a minimal ObjectPropertyChanged event with
// handle, name, kind and value; unit properties also carry the current
// unit code.
func (s *Session) onPropertyChanged(h uint32, o object.Object, args []any) {
	if len(args) == 0 {
		return
	}
	w := wire.NewWriter()
	w.WriteUint32(h)
	switch p := args[0].(type) {
	case *object.UnitProperty:
		w.WriteString(p.Name())
		w.WriteUint8(itemUnitProperty)
		w.WriteValue(p.Value())
		w.WriteInt64(p.Unit())
	case *object.Property:
		w.WriteString(p.Name())
		// The fired pointer is the embedded Property for unit properties;
		// re-resolve by name to recover the unit code.
		if item, ok := o.Item(p.Name()); ok {
			if up, isUnit := item.(*object.UnitProperty); isUnit {
				w.WriteUint8(itemUnitProperty)
				w.WriteValue(up.Value())
				w.WriteInt64(up.Unit())
				break
			}
		}
		w.WriteUint8(itemProperty)
		w.WriteValue(p.Value())
	case *object.VectorProperty:
		w.WriteString(p.Name())
		w.WriteUint8(itemVectorProperty)
		all := p.All()
		w.WriteUint32(uint32(len(all)))
		for _, v := range all {
			w.WriteValue(v)
		}
		s.fanoutVectorDeltas(h, o, p, all)
	case *object.ObjectProperty:
		w.WriteString(p.Name())
		w.WriteUint8(itemObjectProperty)
		ref := p.Target()
		if ref.IsNull() {
			w.WriteString("")
		} else {
			w.WriteString(ref.ID())
		}
	default:
		return
	}
	s.send(wire.EncodeFrame(wire.CommandObjectPropertyChanged, wire.Event, 0, w.Bytes()))

	if _, isBoard := o.(*world.Board); isBoard {
		bw := wire.NewWriter()
		bw.WriteUint32(h)
		s.send(wire.EncodeFrame(wire.CommandBoardTileDataChanged, wire.Event, 0, bw.Bytes()))
	}
}

// fanoutVectorDeltas emits the specialized per-address input-monitor and
// output-keyboard events for InputModule/OutputModule vector changes,
// comparing against the last snapshot this session sent.
func (s *Session) fanoutVectorDeltas(h uint32, o object.Object, p *object.VectorProperty, all []value.Value) {
	switch m := o.(type) {
	case *world.InputModule:
		if p.Name() != "inputs" {
			return
		}
		base := moduleBaseAddress(m)
		last := s.lastInputs[h]
		cur := make([]int64, len(all))
		for i, v := range all {
			cur[i] = v.IntVal
			if i < len(last) && last[i] == cur[i] {
				continue
			}
			w := wire.NewWriter()
			w.WriteUint32(h)
			w.WriteInt64(base + int64(i))
			w.WriteUint8(uint8(cur[i]))
			s.send(wire.EncodeFrame(wire.CommandInputMonitorValueChanged, wire.Event, 0, w.Bytes()))
		}
		s.lastInputs[h] = cur
	case *world.OutputModule:
		if p.Name() != "outputs" {
			return
		}
		base := moduleBaseAddress(m)
		last := s.lastOutputs[h]
		cur := make([]bool, len(all))
		for i, v := range all {
			cur[i] = v.BoolVal
			if i < len(last) && last[i] == cur[i] {
				continue
			}
			w := wire.NewWriter()
			w.WriteUint32(h)
			w.WriteInt64(base + int64(i))
			w.WriteBool(cur[i])
			s.send(wire.EncodeFrame(wire.CommandOutputKeyboardValueChanged, wire.Event, 0, w.Bytes()))
		}
		s.lastOutputs[h] = cur
	}
}

func moduleBaseAddress(o object.Object) int64 {
	if item, ok := o.Item("address"); ok {
		if p, ok := object.AsProperty(item); ok {
			v, _ := value.ToInt(p.Value())
			return v
		}
	}
	return 0
}

// onAttributeChanged serializes an ObjectAttributeChanged event carrying
// the item name, attribute name, kind and scalar or vector payload.
func (s *Session) onAttributeChanged(h uint32, args []any) {
	if len(args) < 2 {
		return
	}
	itemName, ok := args[0].(string)
	if !ok {
		return
	}
	attr, ok := args[1].(*object.Attribute)
	if !ok {
		return
	}
	w := wire.NewWriter()
	w.WriteUint32(h)
	w.WriteString(itemName)
	writeAttribute(w, attr)
	s.send(wire.EncodeFrame(wire.CommandObjectAttributeChanged, wire.Event, 0, w.Bytes()))
}

// sendPropertyChanged emits the snap-back event a failed ObjectSetProperty
// requires: the property's current (unchanged) value so the client reverts
// its optimistic edit.
func (s *Session) sendPropertyChanged(h uint32, o object.Object, name string) {
	item, ok := o.Item(name)
	if !ok {
		return
	}
	s.onPropertyChanged(h, o, []any{item})
}
