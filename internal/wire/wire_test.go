package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/value"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Command: CommandGetObject, Type: Request, RequestID: 42, DataSize: 7}
	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestReadFrame(t *testing.T) {
	frame := EncodeFrame(CommandPing, Response, 9, []byte{1, 2, 3})
	h, payload, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, CommandPing, h.Command)
	assert.Equal(t, Response, h.Type)
	assert.Equal(t, uint32(9), h.RequestID)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestValueRoundTrip(t *testing.T) {
	cases := []value.Value{
		value.NewBool(true),
		value.NewInt(-12345),
		value.NewFloat(3.25),
		value.NewFloat(math.Inf(1)),
		value.NewString("hello"),
		value.NewSet(0b101),
		value.NewObject(value.NewObjectRef("world.clock")),
		value.NewObject(value.ObjectRef{}),
	}
	for _, v := range cases {
		w := NewWriter()
		w.WriteValue(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadValue()
		require.NoError(t, err)
		assert.Equal(t, v.Kind, got.Kind)
		switch v.Kind {
		case value.Float:
			if math.IsInf(v.FloatVal, 1) {
				assert.True(t, math.IsInf(got.FloatVal, 1))
			} else {
				assert.Equal(t, v.FloatVal, got.FloatVal)
			}
		case value.Object:
			assert.Equal(t, v.ObjRef.ID(), got.ObjRef.ID())
			assert.Equal(t, v.ObjRef.IsNull(), got.ObjRef.IsNull())
		default:
			assert.Equal(t, v.IntVal, got.IntVal)
			assert.Equal(t, v.StrVal, got.StrVal)
			assert.Equal(t, v.BoolVal, got.BoolVal)
		}
	}
}

func TestInvalidValueKindRejected(t *testing.T) {
	r := NewReader([]byte{0xEE})
	_, err := r.ReadValueKind()
	require.Error(t, err)
}

func TestEncodeErrorCarriesKind(t *testing.T) {
	frame := EncodeError(CommandObjectSetProperty, 3, errs.New(errs.NotWritable, "property %q is read-only", "state"))
	h, payload, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, ErrorResponse, h.Type)
	assert.Equal(t, uint32(3), h.RequestID)

	r := NewReader(payload)
	code, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(ErrNotWritable), code)
	msg, err := r.ReadString()
	require.NoError(t, err)
	assert.Contains(t, msg, "read-only")
}
