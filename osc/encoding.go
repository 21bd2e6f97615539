package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const (
	bit32Size = 4
	bit64Size = 8
)

var (
	errUnterminated = errors.New("missing string terminator")
	errShortPadding = errors.New("string padding truncated")
	errDirtyPadding = errors.New("non-zero padding byte")
	errShortLength  = errors.New("not enough bytes for length prefix")
	errShortBlob    = errors.New("blob length exceeds remaining data")
)

////
// De/Encoding functions
////

// padBytesNeeded determines how many bytes are needed to fill up to the next 4
// byte length.
func padBytesNeeded(elementLen int) int {
	return (4 - (elementLen % 4)) % 4
}

// span returns off+n when [off, off+n) lies inside a buffer of length size.
func span(size, off, n int) (int, bool) {
	if off < 0 || n < 0 || off > size {
		return 0, false
	}
	if n > math.MaxInt-off {
		return 0, false
	}
	end := off + n
	if end > size {
		return 0, false
	}
	return end, true
}

// readPaddedString reads a NUL-terminated, zero-padded string from data at off and
// returns it together with the offset just past its padding.
func readPaddedString(data []byte, off int) (string, int, error) {
	if off >= len(data) {
		return "", off, errUnterminated
	}
	pos := bytes.IndexByte(data[off:], 0)
	if pos == -1 {
		return "", off, errUnterminated
	}
	strEnd := off + pos
	end, ok := span(len(data), strEnd+1, padBytesNeeded(pos+1))
	if !ok {
		return "", off, errShortPadding
	}
	for _, c := range data[strEnd+1 : end] {
		if c != 0 {
			return "", off, errDirtyPadding
		}
	}
	return string(data[off:strEnd]), end, nil
}

// appendPaddedString appends str, its terminator and the padding up to the next
// 4 byte boundary.
func appendPaddedString(b []byte, str string) []byte {
	b = append(b, str...)
	b = append(b, 0)
	return appendPadding(b, len(str)+1)
}

func appendPadding(b []byte, n int) []byte {
	for i := padBytesNeeded(n); i > 0; i-- {
		b = append(b, 0)
	}
	return b
}

// readBlob parses an OSC blob at off. Padding bytes must be zero and are not returned.
// The returned slice is a copy.
func readBlob(data []byte, off int) ([]byte, int, error) {
	if _, ok := span(len(data), off, bit32Size); !ok {
		return nil, off, errShortLength
	}
	blobLen := binary.BigEndian.Uint32(data[off:])
	start := off + bit32Size
	if uint64(blobLen) > uint64(len(data)-start) {
		return nil, off, errShortBlob
	}
	n := int(blobLen)
	end, ok := span(len(data), start+n, padBytesNeeded(n))
	if !ok {
		return nil, off, errShortPadding
	}
	for _, c := range data[start+n : end] {
		if c != 0 {
			return nil, off, errDirtyPadding
		}
	}
	blob := make([]byte, n)
	copy(blob, data[start:start+n])
	return blob, end, nil
}

// appendBlob appends data as an OSC blob, adding padding if its length isn't
// 32-bit aligned.
func appendBlob(b []byte, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	b = append(b, data...)
	return appendPadding(b, len(data))
}
