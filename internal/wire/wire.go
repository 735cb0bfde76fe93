// Package wire implements the client wire protocol's framing: a fixed
// 12-byte little-endian header followed by dataSize payload bytes, the command enumeration, and the binary encoding of
// value.Value on the wire.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/traintastic/traintastic-go/internal/errs"
	"github.com/traintastic/traintastic-go/internal/value"
)

// HeaderSize is the fixed 12-byte header length.
const HeaderSize = 12

// MessageType is the header's `type` byte.
type MessageType uint8

const (
	Request MessageType = iota
	Response
	Event
	// ErrorResponse answers a request whose dispatch failed. Payload: {code:u8, message:string}.
	ErrorResponse
)

// Command is the header's `command` byte, enumerated in the source.
type Command uint8

const (
	CommandPing Command = iota
	CommandLogin
	CommandNewSession
	CommandGetObject
	CommandReleaseObject
	CommandObjectSetProperty
	CommandObjectSetUnitPropertyUnit
	CommandObjectSetObjectPropertyById
	CommandObjectCallMethod
	CommandGetTableModel
	CommandReleaseTableModel
	CommandTableModelSetRegion
	CommandInputMonitorGetInputInfo
	CommandInputMonitorSetInputId
	CommandOutputKeyboardGetOutputInfo
	CommandOutputKeyboardSetOutputValue
	CommandBoardGetTileData

	// Event-only commands, sent server → client with type=Event and
	// requestId=0.
	CommandObjectPropertyChanged
	CommandObjectAttributeChanged
	CommandInputMonitorInputIdChanged
	CommandInputMonitorValueChanged
	CommandOutputKeyboardValueChanged
	CommandBoardTileDataChanged
	CommandTableModelColumnHeadersChanged
	CommandTableModelRowCountChanged
	CommandTableModelRegionUpdated
)

// CommandDiscover is answered over UDP only, never framed
// alongside the TCP/WebSocket command set above.
const CommandDiscover Command = 0xFF

// Header is the fixed 12-byte frame header:
// {command:u8, type:u8, reserved:u16, requestId:u32, dataSize:u32}.
type Header struct {
	Command   Command
	Type      MessageType
	RequestID uint32
	DataSize  uint32
}

func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(h.Command)
	buf[1] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	binary.LittleEndian.PutUint32(buf[4:8], h.RequestID)
	binary.LittleEndian.PutUint32(buf[8:12], h.DataSize)
	return buf
}

func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errs.New(errs.InvalidCommand, "header too short: %d bytes", len(buf))
	}
	return Header{
		Command:   Command(buf[0]),
		Type:      MessageType(buf[1]),
		RequestID: binary.LittleEndian.Uint32(buf[4:8]),
		DataSize:  binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// ReadFrame reads one full frame (header + payload) from r.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return Header{}, nil, err
	}
	h, err := DecodeHeader(hbuf)
	if err != nil {
		return Header{}, nil, err
	}
	payload := make([]byte, h.DataSize)
	if h.DataSize > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Header{}, nil, err
		}
	}
	return h, payload, nil
}

// EncodeFrame concatenates a header (with DataSize set from len(payload))
// and its payload into one buffer, ready for a single Write/WriteMessage.
func EncodeFrame(cmd Command, typ MessageType, requestID uint32, payload []byte) []byte {
	h := Header{Command: cmd, Type: typ, RequestID: requestID, DataSize: uint32(len(payload))}
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, h.Encode()...)
	out = append(out, payload...)
	return out
}

// --- Payload encoding helpers ---

// Writer accumulates a payload for one frame using the wire's primitive
// encodings.
type Writer struct{ buf []byte }

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteFloat64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf = append(w.buf, b[:]...)
}

// WriteRaw appends bytes without a length prefix (used for fixed-size
// fields like the 16-byte session UUID).
func (w *Writer) WriteRaw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteValue encodes a value.Value as {kind:u8, payload}: Boolean as one
// byte, Integer/Set/Enum as an int64 (an Enum's name is not sent — the
// session's descriptor carries the name/value table for display), Float as
// a float64, String as a length-prefixed string, Object as a
// length-prefixed id string (empty string encodes null).
func (w *Writer) WriteValue(v value.Value) {
	w.WriteUint8(uint8(v.Kind))
	switch v.Kind {
	case value.Boolean:
		w.WriteBool(v.BoolVal)
	case value.Integer, value.Enum, value.Set:
		w.WriteInt64(v.IntVal)
	case value.Float:
		w.WriteFloat64(v.FloatVal)
	case value.String:
		w.WriteString(v.StrVal)
	case value.Object:
		if v.ObjRef.IsNull() {
			w.WriteString("")
		} else {
			w.WriteString(v.ObjRef.ID())
		}
	}
}

// Reader parses a payload using the inverse of Writer's encodings.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

func (r *Reader) ReadUint8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	if r.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return int64(v), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	if r.remaining() < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return math.Float64frombits(v), nil
}

// ReadRaw reads exactly n bytes without a length prefix.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return b, nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// ReadValueKind reads a kind byte and validates it against value.Type's
// range, returning a ConversionError for anything outside {Boolean..Object}.
func (r *Reader) ReadValueKind() (value.Type, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return value.Invalid, err
	}
	k := value.Type(b)
	if k < value.Boolean || k > value.Object {
		return value.Invalid, errs.New(errs.ConversionError, "invalid wire value kind %d", b)
	}
	return k, nil
}

// ReadValue reads a {kind, payload} pair written by Writer.WriteValue. For
// Enum/Set kinds the caller must separately resolve the int64 against the
// property's declared Values table; ReadValue itself only decodes the raw
// wire bytes.
func (r *Reader) ReadValue() (value.Value, error) {
	kind, err := r.ReadValueKind()
	if err != nil {
		return value.Value{}, err
	}
	switch kind {
	case value.Boolean:
		b, err := r.ReadBool()
		return value.NewBool(b), err
	case value.Integer:
		i, err := r.ReadInt64()
		return value.NewInt(i), err
	case value.Enum:
		i, err := r.ReadInt64()
		return value.Value{Kind: value.Enum, IntVal: i}, err
	case value.Set:
		i, err := r.ReadInt64()
		return value.NewSet(i), err
	case value.Float:
		f, err := r.ReadFloat64()
		return value.NewFloat(f), err
	case value.String:
		s, err := r.ReadString()
		return value.NewString(s), err
	case value.Object:
		s, err := r.ReadString()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewObject(value.NewObjectRef(s)), nil
	default:
		return value.Value{}, fmt.Errorf("wire: unhandled value kind %v", kind)
	}
}

// ErrorCode is the one-byte error category carried in an ErrorResponse
// payload, mirroring the errs.Kind sum so clients can branch without
// parsing the message text.
type ErrorCode uint8

const (
	ErrOther ErrorCode = iota
	ErrConversion
	ErrNotWritable
	ErrInvalidValue
	ErrOutOfRange
	ErrInvalidCommand
	ErrInvalidHandle
	ErrObjectNotTable
	ErrUnknownClassId
	ErrUnknownObject
	ErrFailed
)

// ErrorCodeFor maps an errs.Kind to its wire error code.
func ErrorCodeFor(kind errs.Kind) ErrorCode {
	switch kind {
	case errs.ConversionError:
		return ErrConversion
	case errs.NotWritable:
		return ErrNotWritable
	case errs.InvalidValue:
		return ErrInvalidValue
	case errs.OutOfRange:
		return ErrOutOfRange
	case errs.InvalidCommand:
		return ErrInvalidCommand
	case errs.InvalidHandle:
		return ErrInvalidHandle
	case errs.ObjectNotTable:
		return ErrObjectNotTable
	case errs.UnknownClassId:
		return ErrUnknownClassId
	case errs.UnknownObject:
		return ErrUnknownObject
	case errs.Failed:
		return ErrFailed
	default:
		return ErrOther
	}
}

// EncodeError builds the ErrorResponse frame answering requestID.
func EncodeError(cmd Command, requestID uint32, err error) []byte {
	w := NewWriter()
	if e, ok := err.(*errs.Error); ok {
		w.WriteUint8(uint8(ErrorCodeFor(e.Kind)))
		w.WriteString(e.Message)
	} else {
		w.WriteUint8(uint8(ErrOther))
		w.WriteString(err.Error())
	}
	return EncodeFrame(cmd, ErrorResponse, requestID, w.Bytes())
}
