package session

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/traintastic/traintastic-go/internal/log"
	"github.com/traintastic/traintastic-go/internal/object"
	"github.com/traintastic/traintastic-go/internal/traintastic"
	"github.com/traintastic/traintastic-go/internal/value"
	"github.com/traintastic/traintastic-go/internal/wire"
	"github.com/traintastic/traintastic-go/internal/world"
)

type capturedFrame struct {
	h       wire.Header
	payload []byte
}

type rig struct {
	t      *testing.T
	root   *traintastic.Root
	sess   *Session
	frames []capturedFrame
	nextID uint32
}

func newRig(t *testing.T) *rig {
	t.Helper()
	logger := log.NewRegistry(zap.NewNop().Sugar())
	root, err := traintastic.New(t.TempDir(), nil, logger)
	require.NoError(t, err)
	root.NewWorld()

	r := &rig{t: t, root: root}
	r.sess = New(root, logger, func(frame []byte) {
		h, payload, err := wire.ReadFrame(bytes.NewReader(frame))
		require.NoError(t, err)
		r.frames = append(r.frames, capturedFrame{h: h, payload: payload})
	})
	return r
}

// request dispatches one command and returns the frames it produced.
func (r *rig) request(cmd wire.Command, payload []byte) []capturedFrame {
	r.nextID++
	before := len(r.frames)
	r.sess.Dispatch(wire.Header{Command: cmd, Type: wire.Request, RequestID: r.nextID, DataSize: uint32(len(payload))}, payload)
	return r.frames[before:]
}

// response picks the single Response/ErrorResponse out of a frame batch.
func response(t *testing.T, frames []capturedFrame) capturedFrame {
	t.Helper()
	for _, f := range frames {
		if f.h.Type == wire.Response || f.h.Type == wire.ErrorResponse {
			return f
		}
	}
	t.Fatal("no response frame")
	return capturedFrame{}
}

func eventsOf(frames []capturedFrame, cmd wire.Command) []capturedFrame {
	var out []capturedFrame
	for _, f := range frames {
		if f.h.Type == wire.Event && f.h.Command == cmd {
			out = append(out, f)
		}
	}
	return out
}

// descriptorItem is the test-side parse of one descriptor entry.
type descriptorItem struct {
	flags uint32
	kind  uint8
}

// parseObjectBlock consumes a handle-and-descriptor block, returning the
// handle, whether a descriptor followed, and the parsed items.
func parseObjectBlock(t *testing.T, r *wire.Reader) (uint32, bool, string, map[string]descriptorItem) {
	t.Helper()
	handle, err := r.ReadUint32()
	require.NoError(t, err)
	isNew, err := r.ReadBool()
	require.NoError(t, err)
	if !isNew {
		return handle, false, "", nil
	}
	class, err := r.ReadString()
	require.NoError(t, err)
	count, err := r.ReadUint32()
	require.NoError(t, err)
	items := make(map[string]descriptorItem, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadString()
		require.NoError(t, err)
		flags, err := r.ReadUint32()
		require.NoError(t, err)
		kind, err := r.ReadUint8()
		require.NoError(t, err)
		switch kind {
		case itemProperty:
			vk, err := r.ReadUint8()
			require.NoError(t, err)
			_, err = r.ReadValue()
			require.NoError(t, err)
			if value.Type(vk) == value.Enum || value.Type(vk) == value.Set {
				n, err := r.ReadUint32()
				require.NoError(t, err)
				for j := uint32(0); j < n; j++ {
					_, err = r.ReadString()
					require.NoError(t, err)
					_, err = r.ReadInt64()
					require.NoError(t, err)
				}
			}
		case itemUnitProperty:
			_, err = r.ReadValue()
			require.NoError(t, err)
			_, err = r.ReadInt64()
			require.NoError(t, err)
		case itemVectorProperty:
			_, err = r.ReadUint8()
			require.NoError(t, err)
			n, err := r.ReadUint32()
			require.NoError(t, err)
			for j := uint32(0); j < n; j++ {
				_, err = r.ReadValue()
				require.NoError(t, err)
			}
		case itemObjectProperty:
			_, err = r.ReadString()
			require.NoError(t, err)
			_, err = r.ReadBool()
			require.NoError(t, err)
		case itemMethod:
			_, err = r.ReadUint8()
			require.NoError(t, err)
			n, err := r.ReadUint8()
			require.NoError(t, err)
			for j := uint8(0); j < n; j++ {
				_, err = r.ReadUint8()
				require.NoError(t, err)
			}
		case itemEvent:
			n, err := r.ReadUint8()
			require.NoError(t, err)
			for j := uint8(0); j < n; j++ {
				_, err = r.ReadUint8()
				require.NoError(t, err)
			}
		default:
			t.Fatalf("unknown item kind %d", kind)
		}
		// attributes
		an, err := r.ReadUint32()
		require.NoError(t, err)
		for j := uint32(0); j < an; j++ {
			_, err = r.ReadString()
			require.NoError(t, err)
			isVec, err := r.ReadBool()
			require.NoError(t, err)
			if isVec {
				vn, err := r.ReadUint32()
				require.NoError(t, err)
				for k := uint32(0); k < vn; k++ {
					_, err = r.ReadValue()
					require.NoError(t, err)
				}
			} else {
				_, err = r.ReadValue()
				require.NoError(t, err)
			}
		}
		items[name] = descriptorItem{flags: flags, kind: kind}
	}
	return handle, true, class, items
}

func (r *rig) newSession() {
	frames := r.request(wire.CommandLogin, nil)
	resp := response(r.t, frames)
	require.Equal(r.t, wire.Response, resp.h.Type)
	require.Empty(r.t, resp.payload, "login response carries no payload")

	frames = r.request(wire.CommandNewSession, nil)
	resp = response(r.t, frames)
	require.Equal(r.t, wire.Response, resp.h.Type)
}

func (r *rig) getObject(path string) uint32 {
	w := wire.NewWriter()
	w.WriteString(path)
	frames := r.request(wire.CommandGetObject, w.Bytes())
	resp := response(r.t, frames)
	require.Equal(r.t, wire.Response, resp.h.Type, "GetObject %q failed", path)
	handle, _, _, _ := parseObjectBlock(r.t, wire.NewReader(resp.payload))
	return handle
}

func TestAnonymousLoginAndWorldFetch(t *testing.T) {
	r := newRig(t)

	frames := r.request(wire.CommandLogin, nil)
	resp := response(t, frames)
	require.Equal(t, wire.Response, resp.h.Type)
	assert.Empty(t, resp.payload)

	frames = r.request(wire.CommandNewSession, nil)
	resp = response(t, frames)
	require.Equal(t, wire.Response, resp.h.Type)

	rd := wire.NewReader(resp.payload)
	uuidBytes, err := rd.ReadRaw(16)
	require.NoError(t, err)
	assert.Len(t, uuidBytes, 16)

	handle, isNew, class, items := parseObjectBlock(t, rd)
	assert.GreaterOrEqual(t, handle, uint32(1))
	require.True(t, isNew)
	assert.Equal(t, "traintastic", class)
	assert.Contains(t, items, "settings")
	assert.Contains(t, items, "world")
	assert.Contains(t, items, "world_list")
	assert.Contains(t, items, "version")
	assert.Equal(t, itemObjectProperty, items["world"].kind, "world property must be object-kind")
}

func TestNewSessionTwiceFails(t *testing.T) {
	r := newRig(t)
	r.newSession()
	frames := r.request(wire.CommandNewSession, nil)
	resp := response(t, frames)
	assert.Equal(t, wire.ErrorResponse, resp.h.Type)
}

func TestHandleReuseUntilRelease(t *testing.T) {
	r := newRig(t)
	r.newSession()

	h1 := r.getObject("world")

	// Second fetch of the same object: same handle, no descriptor.
	w := wire.NewWriter()
	w.WriteString("world")
	frames := r.request(wire.CommandGetObject, w.Bytes())
	resp := response(t, frames)
	h2, isNew, _, _ := parseObjectBlock(t, wire.NewReader(resp.payload))
	assert.Equal(t, h1, h2)
	assert.False(t, isNew, "subsequent references emit the handle only")

	// Releasing both references drops the handle; the next fetch sends the
	// object with a descriptor again.
	for i := 0; i < 2; i++ {
		w = wire.NewWriter()
		w.WriteUint32(h1)
		frames = r.request(wire.CommandReleaseObject, w.Bytes())
		require.Equal(t, wire.Response, response(t, frames).h.Type)
	}
	w = wire.NewWriter()
	w.WriteString("world")
	frames = r.request(wire.CommandGetObject, w.Bytes())
	resp = response(t, frames)
	_, isNew, _, _ = parseObjectBlock(t, wire.NewReader(resp.payload))
	assert.True(t, isNew, "after the last release the object is sent as new")
}

func TestReadOnlySetSnapsBack(t *testing.T) {
	r := newRig(t)
	r.newSession()
	h := r.getObject("world")

	w := wire.NewWriter()
	w.WriteUint32(h)
	w.WriteString("state")
	w.WriteValue(value.NewSet(0))
	frames := r.request(wire.CommandObjectSetProperty, w.Bytes())

	resp := response(t, frames)
	require.Equal(t, wire.ErrorResponse, resp.h.Type)
	rd := wire.NewReader(resp.payload)
	code, err := rd.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(wire.ErrNotWritable), code)

	events := eventsOf(frames, wire.CommandObjectPropertyChanged)
	require.Len(t, events, 1, "exactly one snap-back event")
	erd := wire.NewReader(events[0].payload)
	eh, err := erd.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, h, eh)
	name, err := erd.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "state", name)
}

func TestEnumSetRejectsUnknownName(t *testing.T) {
	r := newRig(t)
	r.newSession()

	_, err := r.root.World().CreateObject(world.OutputModuleClassID, "out1")
	require.NoError(t, err)
	h := r.getObject("out1")

	w := wire.NewWriter()
	w.WriteUint32(h)
	w.WriteString("output_type")
	w.WriteValue(value.NewString("no_such_type"))
	frames := r.request(wire.CommandObjectSetProperty, w.Bytes())

	resp := response(t, frames)
	require.Equal(t, wire.ErrorResponse, resp.h.Type)
	rd := wire.NewReader(resp.payload)
	code, err := rd.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(wire.ErrConversion), code)

	// Current value preserved.
	o, ok := r.root.ObjectByID("out1")
	require.True(t, ok)
	item, ok := o.Item("output_type")
	require.True(t, ok)
	p, ok := object.AsProperty(item)
	require.True(t, ok)
	assert.Equal(t, "accessory", p.Value().StrVal)
}

func TestCallMethodReturnsObject(t *testing.T) {
	r := newRig(t)
	r.newSession()

	w := wire.NewWriter()
	w.WriteUint32(1) // root handle from NewSession
	w.WriteString("new_world")
	w.WriteUint8(uint8(object.ArgObject))
	w.WriteUint8(0)
	frames := r.request(wire.CommandObjectCallMethod, w.Bytes())

	resp := response(t, frames)
	require.Equal(t, wire.Response, resp.h.Type)
	rd := wire.NewReader(resp.payload)
	hasResult, err := rd.ReadBool()
	require.NoError(t, err)
	require.True(t, hasResult)
	v, err := rd.ReadValue()
	require.NoError(t, err)
	assert.Equal(t, value.Object, v.Kind)
	assert.Equal(t, r.root.World().ID(), v.ObjRef.ID())
}

func TestTableModelStreaming(t *testing.T) {
	r := newRig(t)
	r.newSession()
	h := r.getObject("world")

	w := wire.NewWriter()
	w.WriteUint32(h)
	frames := r.request(wire.CommandGetTableModel, w.Bytes())
	resp := response(t, frames)
	require.Equal(t, wire.Response, resp.h.Type)

	rd := wire.NewReader(resp.payload)
	th, err := rd.ReadUint32()
	require.NoError(t, err)
	colCount, err := rd.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(3), colCount)
	headers := make([]string, colCount)
	for i := range headers {
		headers[i], err = rd.ReadString()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"id", "class", "name"}, headers)
	rowCount, err := rd.ReadUint32()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rowCount, uint32(1))

	// Subscribe a viewport; expect a region update event.
	w = wire.NewWriter()
	w.WriteUint32(th)
	w.WriteUint32(0)
	w.WriteUint32(2)
	w.WriteUint32(0)
	w.WriteUint32(uint32(rowCount - 1))
	frames = r.request(wire.CommandTableModelSetRegion, w.Bytes())
	events := eventsOf(frames, wire.CommandTableModelRegionUpdated)
	require.Len(t, events, 1)

	erd := wire.NewReader(events[0].payload)
	eth, err := erd.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, th, eth)

	// Release the model: the handle is gone.
	w = wire.NewWriter()
	w.WriteUint32(th)
	frames = r.request(wire.CommandReleaseTableModel, w.Bytes())
	require.Equal(t, wire.Response, response(t, frames).h.Type)

	w = wire.NewWriter()
	w.WriteUint32(th)
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteUint32(0)
	w.WriteUint32(0)
	frames = r.request(wire.CommandTableModelSetRegion, w.Bytes())
	assert.Equal(t, wire.ErrorResponse, response(t, frames).h.Type)
}

func TestReleaseStopsEvents(t *testing.T) {
	r := newRig(t)
	r.newSession()
	h := r.getObject("world")

	w := wire.NewWriter()
	w.WriteUint32(h)
	frames := r.request(wire.CommandReleaseObject, w.Bytes())
	require.Equal(t, wire.Response, response(t, frames).h.Type)

	before := len(r.frames)
	r.root.World().PowerOn()
	assert.Equal(t, before, len(r.frames), "no event after Release is acknowledged")
}

func TestBoardGetTileData(t *testing.T) {
	r := newRig(t)
	r.newSession()

	o, err := r.root.World().CreateObject(world.BoardClassID, "board1")
	require.NoError(t, err)
	b := o.(*world.Board)
	require.NoError(t, b.SetTileID(2, 3, world.Tile{ID: world.TileStraight, Rotation: 1}))

	h := r.getObject("board1")
	w := wire.NewWriter()
	w.WriteUint32(h)
	frames := r.request(wire.CommandBoardGetTileData, w.Bytes())
	resp := response(t, frames)
	require.Equal(t, wire.Response, resp.h.Type)

	rd := wire.NewReader(resp.payload)
	count, err := rd.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), count)
	x, err := rd.ReadUint32()
	require.NoError(t, err)
	y, err := rd.ReadUint32()
	require.NoError(t, err)
	id, err := rd.ReadInt64()
	require.NoError(t, err)
	rot, err := rd.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), x)
	assert.Equal(t, uint32(3), y)
	assert.Equal(t, int64(world.TileStraight), id)
	assert.Equal(t, uint8(1), rot)
}

func TestOutputKeyboard(t *testing.T) {
	r := newRig(t)
	r.newSession()

	_, err := r.root.World().CreateObject(world.OutputModuleClassID, "out1")
	require.NoError(t, err)
	h := r.getObject("out1")

	w := wire.NewWriter()
	w.WriteUint32(h)
	w.WriteInt64(2)
	w.WriteBool(true)
	frames := r.request(wire.CommandOutputKeyboardSetOutputValue, w.Bytes())
	require.Equal(t, wire.Response, response(t, frames).h.Type)

	events := eventsOf(frames, wire.CommandOutputKeyboardValueChanged)
	require.NotEmpty(t, events)
	erd := wire.NewReader(events[len(events)-1].payload)
	eh, err := erd.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, h, eh)
	addr, err := erd.ReadInt64()
	require.NoError(t, err)
	on, err := erd.ReadBool()
	require.NoError(t, err)
	assert.Equal(t, int64(2), addr)
	assert.True(t, on)

	w = wire.NewWriter()
	w.WriteUint32(h)
	frames = r.request(wire.CommandOutputKeyboardGetOutputInfo, w.Bytes())
	resp := response(t, frames)
	require.Equal(t, wire.Response, resp.h.Type)
	rd := wire.NewReader(resp.payload)
	count, err := rd.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
}

func TestCommandBeforeSessionRejected(t *testing.T) {
	r := newRig(t)
	w := wire.NewWriter()
	w.WriteString("world")
	frames := r.request(wire.CommandGetObject, w.Bytes())
	resp := response(t, frames)
	require.Equal(t, wire.ErrorResponse, resp.h.Type)
	rd := wire.NewReader(resp.payload)
	code, err := rd.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(wire.ErrInvalidCommand), code)
}
