package osc

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Argument is a single OSC argument. The set of implementations is closed:
// Int32, Float32, String, Blob, Int64, Timetag, Float64, Char, RGBA, MIDI,
// Bool, Nil and Infinitum.
type Argument interface {
	// TypeTag returns the tag written to the type tag string for this value.
	TypeTag() TypeTag
	// appendBinary appends the 4-byte aligned payload to b.
	appendBinary(b []byte) []byte
}

type (
	Int32   int32
	Float32 float32
	String  string
	Blob    []byte
	Int64   int64
	Float64 float64
	// Char is a single ASCII character, sent in the low byte of a 32-bit slot.
	Char byte
	// Bool is sent as the payload-free tags 'T' or 'F'.
	Bool bool
	// Nil carries no payload.
	Nil struct{}
	// Infinitum (also called Impulse) carries no payload.
	Infinitum struct{}
)

// RGBA is a 32-bit color with 8 bits per component.
type RGBA struct {
	R, G, B, A uint8
}

// MIDI is a 4 byte MIDI message: port id, status byte and two data bytes.
type MIDI struct {
	Port, Status, Data1, Data2 uint8
}

func (Int32) TypeTag() TypeTag     { return TypeInt32 }
func (Float32) TypeTag() TypeTag   { return TypeFloat32 }
func (String) TypeTag() TypeTag    { return TypeString }
func (Blob) TypeTag() TypeTag      { return TypeBlob }
func (Int64) TypeTag() TypeTag     { return TypeInt64 }
func (Timetag) TypeTag() TypeTag   { return TypeTimeTag }
func (Float64) TypeTag() TypeTag   { return TypeFloat64 }
func (Char) TypeTag() TypeTag      { return TypeChar }
func (RGBA) TypeTag() TypeTag      { return TypeRGBA }
func (MIDI) TypeTag() TypeTag      { return TypeMIDI }
func (Nil) TypeTag() TypeTag       { return TypeNil }
func (Infinitum) TypeTag() TypeTag { return TypeInfinitum }

func (v Bool) TypeTag() TypeTag {
	if v {
		return TypeTrue
	}
	return TypeFalse
}

func (v Int32) appendBinary(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

func (v Float32) appendBinary(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(float32(v)))
}

func (v String) appendBinary(b []byte) []byte { return appendPaddedString(b, string(v)) }
func (v Blob) appendBinary(b []byte) []byte   { return appendBlob(b, v) }

func (v Int64) appendBinary(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

func (v Timetag) appendBinary(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

func (v Float64) appendBinary(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, math.Float64bits(float64(v)))
}

func (v Char) appendBinary(b []byte) []byte { return append(b, 0, 0, 0, byte(v)) }
func (v RGBA) appendBinary(b []byte) []byte { return append(b, v.R, v.G, v.B, v.A) }

func (v MIDI) appendBinary(b []byte) []byte {
	return append(b, v.Port, v.Status, v.Data1, v.Data2)
}

func (Bool) appendBinary(b []byte) []byte      { return b }
func (Nil) appendBinary(b []byte) []byte       { return b }
func (Infinitum) appendBinary(b []byte) []byte { return b }

// AppendArgument appends the encoded payload of a to b.
func AppendArgument(b []byte, a Argument) []byte {
	return a.appendBinary(b)
}

// String implementations used by Message.String.

func (v String) String() string { return string(v) }
func (v Blob) String() string   { return fmt.Sprintf("blob(%d)", len(v)) }
func (v Char) String() string   { return string(rune(v)) }
func (Nil) String() string      { return "Nil" }
func (Infinitum) String() string {
	return "Infinitum"
}

func (v RGBA) String() string {
	return fmt.Sprintf("rgba(%d,%d,%d,%d)", v.R, v.G, v.B, v.A)
}

func (v MIDI) String() string {
	return fmt.Sprintf("midi(%d,%#02x,%d,%d)", v.Port, v.Status, v.Data1, v.Data2)
}

////
// Decoders, registered in typeTable.
////

func argError(tag TypeTag, off int, format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{Tag: tag, Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// fixed returns the n payload bytes at off, or an error when they are not all present.
func fixed(tag TypeTag, data []byte, off, n int) ([]byte, int, error) {
	end, ok := span(len(data), off, n)
	if !ok {
		return nil, off, argError(tag, off, "need %d bytes, have %d", n, max(len(data)-off, 0))
	}
	return data[off:end], end, nil
}

func decodeInt32(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeInt32, data, off, bit32Size)
	if err != nil {
		return nil, off, err
	}
	return Int32(binary.BigEndian.Uint32(b)), n, nil
}

func decodeFloat32(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeFloat32, data, off, bit32Size)
	if err != nil {
		return nil, off, err
	}
	return Float32(math.Float32frombits(binary.BigEndian.Uint32(b))), n, nil
}

func decodeInt64(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeInt64, data, off, bit64Size)
	if err != nil {
		return nil, off, err
	}
	return Int64(binary.BigEndian.Uint64(b)), n, nil
}

func decodeFloat64(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeFloat64, data, off, bit64Size)
	if err != nil {
		return nil, off, err
	}
	return Float64(math.Float64frombits(binary.BigEndian.Uint64(b))), n, nil
}

func decodeTimetag(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeTimeTag, data, off, bit64Size)
	if err != nil {
		return nil, off, err
	}
	return Timetag(binary.BigEndian.Uint64(b)), n, nil
}

func decodeChar(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeChar, data, off, bit32Size)
	if err != nil {
		return nil, off, err
	}
	return Char(b[3]), n, nil
}

func decodeRGBA(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeRGBA, data, off, bit32Size)
	if err != nil {
		return nil, off, err
	}
	return RGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, n, nil
}

func decodeMIDI(data []byte, off int) (Argument, int, error) {
	b, n, err := fixed(TypeMIDI, data, off, bit32Size)
	if err != nil {
		return nil, off, err
	}
	return MIDI{Port: b[0], Status: b[1], Data1: b[2], Data2: b[3]}, n, nil
}

func decodeString(data []byte, off int) (Argument, int, error) {
	s, n, err := readPaddedString(data, off)
	if err != nil {
		return nil, off, argError(TypeString, off, "%v", err)
	}
	return String(s), n, nil
}

func decodeBlob(data []byte, off int) (Argument, int, error) {
	b, n, err := readBlob(data, off)
	if err != nil {
		return nil, off, argError(TypeBlob, off, "%v", err)
	}
	return Blob(b), n, nil
}

func decodeConst(a Argument) argDecoder {
	return func(_ []byte, off int) (Argument, int, error) {
		return a, off, nil
	}
}

// decodeArgument decodes the argument described by tag at off and returns the
// offset of the next argument.
func decodeArgument(tag TypeTag, data []byte, off int) (Argument, int, error) {
	info := lookupTag(tag)
	if info == nil {
		return nil, off, argError(tag, off, "unsupported type tag %q", rune(tag))
	}
	return info.decode(data, off)
}

// ToArgument converts a Go value to its OSC Argument. Arguments are returned unchanged.
func ToArgument(v interface{}) (Argument, error) {
	switch t := v.(type) {
	case Argument:
		return t, nil
	case nil:
		return Nil{}, nil
	case bool:
		return Bool(t), nil
	case int32:
		return Int32(t), nil
	case int:
		if t >= math.MinInt32 && t <= math.MaxInt32 {
			return Int32(t), nil
		}
		return Int64(t), nil
	case int64:
		return Int64(t), nil
	case float32:
		return Float32(t), nil
	case float64:
		return Float64(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Blob(t), nil
	case time.Time:
		return NewTimetagFromTime(t), nil
	case byte:
		return Char(t), nil
	default:
		return nil, fmt.Errorf("osc: unsupported argument type %T", v)
	}
}
