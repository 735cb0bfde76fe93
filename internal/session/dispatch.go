package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/observability"
	"github.com/traintastic/traintastic-go/internal/table"
	"github.com/traintastic/traintastic-go/internal/value"
	"github.com/traintastic/traintastic-go/internal/wire"
	"github.com/traintastic/traintastic-go/internal/world"
)

// Dispatch handles one inbound request frame. Runs on the event loop.
// Errors are answered with an ErrorResponse on the originating requestId;
// successful commands answer with a Response.
func (s *Session) Dispatch(h wire.Header, payload []byte) {
	_, span := observability.Tracer("traintastic/session").Start(context.Background(), "session."+commandName(h.Command))
	start := time.Now()
	err := s.dispatch(h, payload)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		s.send(wire.EncodeError(h.Command, h.RequestID, err))
	}
	span.End()
	observability.RecordSessionCommand(commandName(h.Command), status, int(time.Since(start).Milliseconds()))
}

func (s *Session) respond(h wire.Header, payload []byte) {
	s.send(wire.EncodeFrame(h.Command, wire.Response, h.RequestID, payload))
}

func (s *Session) dispatch(h wire.Header, payload []byte) error {
	if h.Type != wire.Request {
		return errs.New(errs.InvalidCommand, "unexpected message type %d from client", h.Type)
	}
	r := wire.NewReader(payload)

	switch h.Command {
	case wire.CommandPing:
		s.respond(h, nil)
		return nil

	case wire.CommandLogin:
		// Accepted anonymously, for now.
		s.respond(h, nil)
		return nil

	case wire.CommandNewSession:
		if s.started {
			return errs.New(errs.InvalidCommand, "session already established")
		}
		s.id = uuid.New()
		s.started = true
		s.logger.Log("", msgSessionCreated, s.id)
		w := wire.NewWriter()
		w.WriteRaw(s.id[:])
		s.writeObject(w, s.resolver.RootObject())
		s.respond(h, w.Bytes())
		return nil
	}

	if !s.started {
		return errs.New(errs.InvalidCommand, "no session established")
	}

	switch h.Command {
	case wire.CommandGetObject:
		path, err := r.ReadString()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed GetObject")
		}
		o, err := s.resolvePath(path)
		if err != nil {
			return err
		}
		w := wire.NewWriter()
		s.writeObject(w, o)
		s.respond(h, w.Bytes())
		return nil

	case wire.CommandReleaseObject:
		handle, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed ReleaseObject")
		}
		if err := s.release(handle); err != nil {
			return err
		}
		s.respond(h, nil)
		return nil

	case wire.CommandObjectSetProperty:
		return s.objectSetProperty(h, r)

	case wire.CommandObjectSetUnitPropertyUnit:
		handle, name, err := readHandleAndName(r)
		if err != nil {
			return err
		}
		unit, err := r.ReadInt64()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed ObjectSetUnitPropertyUnit")
		}
		o, err := s.objectFor(handle)
		if err != nil {
			return err
		}
		item, ok := o.Item(name)
		if !ok {
			return errs.New(errs.UnknownObject, "no property %q", name)
		}
		up, ok := item.(*object.UnitProperty)
		if !ok {
			return errs.New(errs.InvalidCommand, "property %q has no unit", name)
		}
		if err := up.SetUnit(unit); err != nil {
			return err
		}
		s.sendPropertyChanged(handle, o, name)
		s.respond(h, nil)
		return nil

	case wire.CommandObjectSetObjectPropertyById:
		handle, name, err := readHandleAndName(r)
		if err != nil {
			return err
		}
		idPath, err := r.ReadString()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed ObjectSetObjectPropertyById")
		}
		o, err := s.objectFor(handle)
		if err != nil {
			return err
		}
		item, ok := o.Item(name)
		if !ok {
			return errs.New(errs.UnknownObject, "no property %q", name)
		}
		prop, ok := object.AsObjectProperty(item)
		if !ok {
			return errs.New(errs.InvalidCommand, "property %q is not an object property", name)
		}
		var ref value.ObjectRef
		if idPath != "" {
			target, err := s.resolvePath(idPath)
			if err != nil {
				return err
			}
			id, ok := objectID(target)
			if !ok {
				return errs.New(errs.UnknownObject, "target of %q has no id", idPath)
			}
			ref = value.NewObjectRef(id)
		}
		if err := prop.Set(ref); err != nil {
			return err
		}
		s.respond(h, nil)
		return nil

	case wire.CommandObjectCallMethod:
		return s.objectCallMethod(h, r)

	case wire.CommandGetTableModel:
		return s.getTableModel(h, r)

	case wire.CommandReleaseTableModel:
		th, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed ReleaseTableModel")
		}
		if _, ok := s.tables[th]; !ok {
			return errs.New(errs.InvalidHandle, "table handle %d is not held by this session", th)
		}
		s.dropTable(th)
		s.respond(h, nil)
		return nil

	case wire.CommandTableModelSetRegion:
		th, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed TableModelSetRegion")
		}
		m, ok := s.tables[th]
		if !ok {
			return errs.New(errs.InvalidHandle, "table handle %d is not held by this session", th)
		}
		colMin, err1 := r.ReadUint32()
		colMax, err2 := r.ReadUint32()
		rowMin, err3 := r.ReadUint32()
		rowMax, err4 := r.ReadUint32()
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return errs.New(errs.InvalidCommand, "malformed TableModelSetRegion bounds")
		}
		s.respond(h, nil)
		m.SetRegion(int(colMin), int(colMax), int(rowMin), int(rowMax))
		return nil

	case wire.CommandInputMonitorGetInputInfo:
		handle, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed InputMonitorGetInputInfo")
		}
		o, err := s.objectFor(handle)
		if err != nil {
			return err
		}
		m, ok := o.(*world.InputModule)
		if !ok {
			return errs.New(errs.InvalidCommand, "handle %d is not an input module", handle)
		}
		base := moduleBaseAddress(m)
		item, _ := m.Item("inputs")
		vec, _ := object.AsVectorProperty(item)
		all := vec.All()
		w := wire.NewWriter()
		w.WriteUint32(uint32(len(all)))
		for i, v := range all {
			addr := base + int64(i)
			w.WriteInt64(addr)
			w.WriteUint8(uint8(v.IntVal))
			w.WriteString(s.inputIDs[handle][addr])
		}
		s.respond(h, w.Bytes())
		return nil

	case wire.CommandInputMonitorSetInputId:
		handle, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed InputMonitorSetInputId")
		}
		addr, err := r.ReadInt64()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed InputMonitorSetInputId")
		}
		id, err := r.ReadString()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed InputMonitorSetInputId")
		}
		if _, err := s.objectFor(handle); err != nil {
			return err
		}
		if s.inputIDs[handle] == nil {
			s.inputIDs[handle] = make(map[int64]string)
		}
		s.inputIDs[handle][addr] = id
		s.respond(h, nil)
		w := wire.NewWriter()
		w.WriteUint32(handle)
		w.WriteInt64(addr)
		w.WriteString(id)
		s.send(wire.EncodeFrame(wire.CommandInputMonitorInputIdChanged, wire.Event, 0, w.Bytes()))
		return nil

	case wire.CommandOutputKeyboardGetOutputInfo:
		handle, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed OutputKeyboardGetOutputInfo")
		}
		o, err := s.objectFor(handle)
		if err != nil {
			return err
		}
		m, ok := o.(*world.OutputModule)
		if !ok {
			return errs.New(errs.InvalidCommand, "handle %d is not an output module", handle)
		}
		base := moduleBaseAddress(m)
		item, _ := m.Item("outputs")
		vec, _ := object.AsVectorProperty(item)
		all := vec.All()
		w := wire.NewWriter()
		w.WriteUint32(uint32(len(all)))
		for i, v := range all {
			w.WriteInt64(base + int64(i))
			w.WriteBool(v.BoolVal)
		}
		s.respond(h, w.Bytes())
		return nil

	case wire.CommandOutputKeyboardSetOutputValue:
		handle, err := r.ReadUint32()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed OutputKeyboardSetOutputValue")
		}
		addr, err := r.ReadInt64()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed OutputKeyboardSetOutputValue")
		}
		on, err := r.ReadBool()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed OutputKeyboardSetOutputValue")
		}
		o, err := s.objectFor(handle)
		if err != nil {
			return err
		}
		m, ok := o.(*world.OutputModule)
		if !ok {
			return errs.New(errs.InvalidCommand, "handle %d is not an output module", handle)
		}
		idx := addr - moduleBaseAddress(m)
		if idx < 0 {
			return errs.New(errs.OutOfRange, "address %d is below the module's base address", addr)
		}
		if err := m.SetOutput(int(idx), on); err != nil {
			return err
		}
		s.respond(h, nil)
		return nil

	case wire.CommandBoardGetTileData:
		return s.boardGetTileData(h, r)
	}

	return errs.New(errs.InvalidCommand, "unknown command %d", h.Command)
}

func (s *Session) objectSetProperty(h wire.Header, r *wire.Reader) error {
	handle, name, err := readHandleAndName(r)
	if err != nil {
		return err
	}
	v, err := r.ReadValue()
	if err != nil {
		return errs.Wrap(errs.InvalidCommand, err, "malformed ObjectSetProperty value")
	}
	o, err := s.objectFor(handle)
	if err != nil {
		return err
	}
	item, ok := o.Item(name)
	if !ok {
		return errs.New(errs.UnknownObject, "no property %q", name)
	}

	var setErr error
	switch p := item.(type) {
	case *object.UnitProperty:
		converted, err := convertForProperty(&p.Property, v)
		if err != nil {
			setErr = err
		} else {
			setErr = p.Set(converted)
		}
	case *object.Property:
		converted, err := convertForProperty(p, v)
		if err != nil {
			setErr = err
		} else {
			setErr = p.Set(converted)
		}
	default:
		return errs.New(errs.InvalidCommand, "item %q is not a scalar property", name)
	}
	if setErr != nil {
		// Snap the client back: one PropertyChanged event carrying the
		// current (unchanged) value.
		s.sendPropertyChanged(handle, o, name)
		return setErr
	}
	s.respond(h, nil)
	return nil
}

func (s *Session) objectCallMethod(h wire.Header, r *wire.Reader) error {
	handle, name, err := readHandleAndName(r)
	if err != nil {
		return err
	}
	if _, err := r.ReadUint8(); err != nil { // declared result kind, informational
		return errs.Wrap(errs.InvalidCommand, err, "malformed ObjectCallMethod")
	}
	argc, err := r.ReadUint8()
	if err != nil {
		return errs.Wrap(errs.InvalidCommand, err, "malformed ObjectCallMethod")
	}
	args := make([]value.Value, 0, argc)
	for i := 0; i < int(argc); i++ {
		v, err := r.ReadValue()
		if err != nil {
			return errs.Wrap(errs.InvalidCommand, err, "malformed ObjectCallMethod argument %d", i)
		}
		args = append(args, v)
	}
	o, err := s.objectFor(handle)
	if err != nil {
		return err
	}
	item, ok := o.Item(name)
	if !ok {
		return errs.New(errs.UnknownObject, "no method %q", name)
	}
	m, ok := object.AsMethod(item)
	if !ok {
		return errs.New(errs.InvalidCommand, "item %q is not a method", name)
	}
	result, err := m.Call(args)
	if err != nil {
		return err
	}
	w := wire.NewWriter()
	if result.Kind != value.Invalid {
		w.WriteBool(true)
		w.WriteValue(result)
	} else {
		w.WriteBool(false)
	}
	s.respond(h, w.Bytes())
	return nil
}

func (s *Session) getTableModel(h wire.Header, r *wire.Reader) error {
	handle, err := r.ReadUint32()
	if err != nil {
		return errs.Wrap(errs.InvalidCommand, err, "malformed GetTableModel")
	}
	o, err := s.objectFor(handle)
	if err != nil {
		return err
	}
	t, ok := o.(table.Table)
	if !ok {
		return errs.New(errs.ObjectNotTable, "handle %d does not implement a table", handle)
	}
	m := table.NewModel(t)

	s.nextHandle++
	if s.nextHandle == 0 {
		s.nextHandle = 1
	}
	th := s.nextHandle
	s.tables[th] = m
	observability.HandleAllocated()

	m.OnColumnHeadersChanged = func(headers []string) {
		w := wire.NewWriter()
		w.WriteUint32(th)
		w.WriteUint32(uint32(len(headers)))
		for _, hd := range headers {
			w.WriteString(hd)
		}
		s.send(wire.EncodeFrame(wire.CommandTableModelColumnHeadersChanged, wire.Event, 0, w.Bytes()))
	}
	m.OnRowCountChanged = func(rows int) {
		w := wire.NewWriter()
		w.WriteUint32(th)
		w.WriteUint32(uint32(rows))
		s.send(wire.EncodeFrame(wire.CommandTableModelRowCountChanged, wire.Event, 0, w.Bytes()))
	}
	m.OnRegionUpdated = func(rowMin, rowMax, colMin, colMax int, cells [][]string) {
		w := wire.NewWriter()
		w.WriteUint32(th)
		w.WriteUint32(uint32(rowMin))
		w.WriteUint32(uint32(rowMax))
		w.WriteUint32(uint32(colMin))
		w.WriteUint32(uint32(colMax))
		for _, row := range cells {
			for _, cell := range row {
				w.WriteString(cell)
			}
		}
		s.send(wire.EncodeFrame(wire.CommandTableModelRegionUpdated, wire.Event, 0, w.Bytes()))
	}

	pc := o.PropertyChanged()
	pt := pc.Subscribe(func([]any) { m.Refresh() })
	s.tableUnsub[th] = func() { pc.Unsubscribe(pt) }

	headers := m.ColumnHeaders()
	w := wire.NewWriter()
	w.WriteUint32(th)
	w.WriteUint32(uint32(len(headers)))
	for _, hd := range headers {
		w.WriteString(hd)
	}
	w.WriteUint32(uint32(m.RowCount()))
	s.respond(h, w.Bytes())
	return nil
}

func (s *Session) boardGetTileData(h wire.Header, r *wire.Reader) error {
	handle, err := r.ReadUint32()
	if err != nil {
		return errs.Wrap(errs.InvalidCommand, err, "malformed BoardGetTileData")
	}
	o, err := s.objectFor(handle)
	if err != nil {
		return err
	}
	b, ok := o.(*world.Board)
	if !ok {
		return errs.New(errs.InvalidCommand, "handle %d is not a board", handle)
	}
	width, height := b.Dims()
	w := wire.NewWriter()
	w.WriteUint32(0) // tile count, patched below
	var count uint32
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := b.GetTileData(x, y)
			if t.ID == world.TileNone {
				continue
			}
			count++
			w.WriteUint32(uint32(x))
			w.WriteUint32(uint32(y))
			w.WriteInt64(int64(t.ID))
			w.WriteUint8(uint8(t.Rotation))
			w.WriteString(t.ObjectID)
			active, found := s.resolver.ObjectByID(t.ObjectID)
			if t.ObjectID != "" && found {
				w.WriteBool(true)
				s.writeObject(w, active)
			} else {
				w.WriteBool(false)
			}
		}
	}
	payload := w.Bytes()
	// Patch the tile count now that it is known.
	payload[0] = byte(count)
	payload[1] = byte(count >> 8)
	payload[2] = byte(count >> 16)
	payload[3] = byte(count >> 24)
	s.respond(h, payload)
	return nil
}

// convertForProperty applies the wire-side conversion rules to a value
// arriving for a typed property: enum names are matched
// case-sensitively against the declared Values table, set bitfields are
// checked against the declared mask, numeric narrowing rounds half-to-even
// and booleans never convert across kinds.
func convertForProperty(p *object.Property, v value.Value) (value.Value, error) {
	switch p.Kind() {
	case value.Boolean:
		b, err := value.ToBool(v)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBool(b), nil
	case value.Integer:
		if v.Kind == value.Boolean {
			return value.Value{}, errs.New(errs.ConversionError, "cannot convert boolean to integer")
		}
		i, err := value.ToInt(v)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(i), nil
	case value.Float:
		f, err := value.ToFloat(v)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(f), nil
	case value.String:
		if v.Kind != value.String {
			return value.Value{}, errs.New(errs.ConversionError, "cannot convert %s to string property", v.Kind)
		}
		return v, nil
	case value.Enum:
		values := p.EnumValues()
		switch v.Kind {
		case value.String:
			return value.ToEnum(v.StrVal, values)
		case value.Enum, value.Integer:
			for name, ev := range values {
				if ev == v.IntVal {
					return value.NewEnum(name, ev), nil
				}
			}
			return value.Value{}, errs.New(errs.ConversionError, "%d is not a member of this enum", v.IntVal)
		default:
			return value.Value{}, errs.New(errs.ConversionError, "cannot convert %s to enum", v.Kind)
		}
	case value.Set:
		if v.Kind != value.Set && v.Kind != value.Integer {
			return value.Value{}, errs.New(errs.ConversionError, "cannot convert %s to set", v.Kind)
		}
		return value.ToSet(v.IntVal, p.SetValues())
	default:
		return value.Value{}, errs.New(errs.ConversionError, "property kind %s not settable over the wire", p.Kind())
	}
}

func readHandleAndName(r *wire.Reader) (uint32, string, error) {
	h, err := r.ReadUint32()
	if err != nil {
		return 0, "", errs.Wrap(errs.InvalidCommand, err, "malformed handle")
	}
	name, err := r.ReadString()
	if err != nil {
		return 0, "", errs.Wrap(errs.InvalidCommand, err, "malformed item name")
	}
	return h, name, nil
}

func objectID(o object.Object) (string, bool) {
	ider, ok := o.(interface{ ID() string })
	if !ok {
		return "", false
	}
	return ider.ID(), true
}

func commandName(c wire.Command) string {
	switch c {
	case wire.CommandPing:
		return "ping"
	case wire.CommandLogin:
		return "login"
	case wire.CommandNewSession:
		return "newSession"
	case wire.CommandGetObject:
		return "getObject"
	case wire.CommandReleaseObject:
		return "releaseObject"
	case wire.CommandObjectSetProperty:
		return "objectSetProperty"
	case wire.CommandObjectSetUnitPropertyUnit:
		return "objectSetUnitPropertyUnit"
	case wire.CommandObjectSetObjectPropertyById:
		return "objectSetObjectPropertyById"
	case wire.CommandObjectCallMethod:
		return "objectCallMethod"
	case wire.CommandGetTableModel:
		return "getTableModel"
	case wire.CommandReleaseTableModel:
		return "releaseTableModel"
	case wire.CommandTableModelSetRegion:
		return "tableModelSetRegion"
	case wire.CommandInputMonitorGetInputInfo:
		return "inputMonitorGetInputInfo"
	case wire.CommandInputMonitorSetInputId:
		return "inputMonitorSetInputId"
	case wire.CommandOutputKeyboardGetOutputInfo:
		return "outputKeyboardGetOutputInfo"
	case wire.CommandOutputKeyboardSetOutputValue:
		return "outputKeyboardSetOutputValue"
	case wire.CommandBoardGetTileData:
		return "boardGetTileData"
	default:
		return "unknown"
	}
}
