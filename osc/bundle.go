package osc

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	bundleTagString = "#bundle"

	// bundleHeaderSize is the "#bundle\x00" marker plus the time tag.
	bundleHeaderSize = 16
)

var bundleMarker = []byte(bundleTagString + "\x00")

// Bundle represents an OSC bundle. It consists of the OSC-string "#bundle"
// followed by an OSC Time Tag, followed by zero or more OSC bundle/message
// elements. The OSC-timetag is a 64-bit fixed point time tag. See
// http://opensoundcontrol.org/spec-1_0.html for more information.
type Bundle struct {
	Timetag  Timetag
	Elements []Packet
}

// Verify that Bundle implements the Packet interface.
var _ Packet = (*Bundle)(nil)

func (*Bundle) packet() {}

// NewBundle returns a bundle with the immediate time tag holding the given elements.
func NewBundle(elems ...Packet) *Bundle {
	return &Bundle{Timetag: ImmediateTimetag, Elements: elems}
}

// NewBundleWithTime returns an OSC Bundle scheduled for t.
func NewBundleWithTime(t time.Time, elems ...Packet) *Bundle {
	return &Bundle{Timetag: NewTimetagFromTime(t), Elements: elems}
}

// Append appends an OSC bundle or OSC message to the bundle.
func (b *Bundle) Append(pck Packet) error {
	switch t := pck.(type) {
	default:
		return fmt.Errorf("osc: unsupported packet type %T: only Bundle and Message are supported", pck)

	case *Bundle:
		if t == nil || t == b {
			return fmt.Errorf("osc: cannot append bundle %p to itself or as nil", t)
		}
	case *Message:
		if t == nil {
			return fmt.Errorf("osc: cannot append nil message")
		}
	}

	b.Elements = append(b.Elements, pck)
	return nil
}

// MarshalBinary serializes the OSC bundle to a byte array with the following
// format:
// 1. Bundle string: '#bundle'
// 2. OSC timetag
// 3. Length of first OSC bundle element
// 4. First bundle element
// 5. Length of n OSC bundle element
// 6. n bundle element
func (b *Bundle) MarshalBinary() ([]byte, error) {
	return b.AppendBinary(nil)
}

// AppendBinary appends the encoded bundle to buf. Each element's length prefix is
// computed from the bytes actually written for it.
func (b *Bundle) AppendBinary(buf []byte) ([]byte, error) {
	buf = append(buf, bundleMarker...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(b.Timetag))

	for i, elem := range b.Elements {
		if elem == nil {
			return buf, fmt.Errorf("osc: bundle element %d is nil", i)
		}

		// Reserve the size slot, write the element, then fill the slot in.
		sizeAt := len(buf)
		buf = append(buf, 0, 0, 0, 0)
		var err error
		if buf, err = AppendPacket(buf, elem); err != nil {
			return buf, err
		}

		size := len(buf) - sizeAt - bit32Size
		if size > math.MaxInt32 {
			return buf, fmt.Errorf("osc: bundle element %d too large: %d bytes", i, size)
		}
		binary.BigEndian.PutUint32(buf[sizeAt:], uint32(size))
	}

	return buf, nil
}

// NewBundleFromData returns a new OSC bundle created from the parsed data.
func NewBundleFromData(data []byte) (*Bundle, error) {
	b := &Bundle{}
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
// On error b is left untouched.
func (b *Bundle) UnmarshalBinary(data []byte) error {
	bb, err := parseBundle(data, 1, DefaultMaxBundleDepth)
	if err != nil {
		return err
	}
	*b = *bb
	return nil
}

// parseBundle reads the marker and the time tag, then elements until data is
// exhausted. depth is the nesting level of this bundle, starting at 1.
func parseBundle(data []byte, depth, maxDepth int) (*Bundle, error) {
	if len(data) < len(bundleMarker) || string(data[:len(bundleMarker)]) != string(bundleMarker) {
		return nil, &BundleStartError{newParseError(data, 0, "expected %q", bundleTagString+"\\0")}
	}
	if depth > maxDepth {
		pe := newParseError(data, 0, "bundle nesting exceeds %d levels", maxDepth)
		return nil, &pe
	}
	if len(data) < bundleHeaderSize {
		pe := newParseError(data, len(bundleMarker), "bundle time tag truncated")
		return nil, &pe
	}

	b := &Bundle{Timetag: Timetag(binary.BigEndian.Uint64(data[len(bundleMarker):]))}

	off := bundleHeaderSize
	for off < len(data) {
		if _, ok := span(len(data), off, bit32Size); !ok {
			pe := newParseError(data, off, "bundle element size truncated")
			return nil, &pe
		}
		length := int32(binary.BigEndian.Uint32(data[off:]))
		if length < 0 {
			pe := newParseError(data, off, "negative bundle element size %d", length)
			return nil, &pe
		}
		start := off + bit32Size
		end, ok := span(len(data), start, int(length))
		if !ok {
			pe := newParseError(data, off, "bundle element size %d exceeds remaining %d bytes", length, len(data)-start)
			return nil, &pe
		}

		p, err := parsePacket(data[start:end], depth+1, maxDepth)
		if err != nil {
			return nil, fmt.Errorf("bundle element at offset %d: %w", start, err)
		}
		b.Elements = append(b.Elements, p)
		off = end
	}

	return b, nil
}
