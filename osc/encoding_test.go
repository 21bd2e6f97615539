package osc

import (
	"bytes"
	"math"
	"testing"
)

func TestReadPaddedString(t *testing.T) {
	for _, tt := range []struct {
		buf   []byte // buffer
		want  int    // bytes needed
		want1 string // resulting string
		err   error
	}{
		{[]byte{'t', 'e', 's', 't', 's', 't', 'r', 'i', 'n', 'g', 0, 0}, 12, "teststring", nil},
		{[]byte{'t', 'e', 's', 't', 'e', 'r', 's', 0}, 8, "testers", nil},
		{[]byte{'t', 'e', 's', 't', 's', 0, 0, 0}, 8, "tests", nil},
		{[]byte{'t', 'e', 's', 0, 0, 0, 0, 0}, 4, "tes", nil}, // OSC uses null terminated strings
		{[]byte{0, 0, 0, 0}, 4, "", nil},
		{[]byte{'t', 'e', 's', 't'}, 0, "", errUnterminated}, // if there is no null byte at the end, it doesn't work.
		{[]byte{'t', 'e', 's', 't', 0, 0}, 0, "", errShortPadding},
		{[]byte{'t', 'e', 's', 0, 0, 1, 0, 0}, 4, "tes", nil}, // only the padding of this string is checked
		{[]byte{'t', 'e', 0, 1}, 0, "", errDirtyPadding},
	} {
		got, got1, err := readPaddedString(tt.buf, 0)
		if err != tt.err {
			t.Errorf("%s: Error reading padded string: %v, want %v", tt.want1, err, tt.err)
		}
		if err != nil {
			continue
		}
		if got1 != tt.want {
			t.Errorf("%s: Bytes needed don't match; got = %d, want = %d", tt.want1, got1, tt.want)
		}
		if got != tt.want1 {
			t.Errorf("%s: Strings don't match; got = %b, want = %b", tt.want1, []byte(got), []byte(tt.want1))
		}
	}
}

func TestAppendPaddedString(t *testing.T) {
	for _, tt := range []struct {
		s    string
		want []byte
	}{
		{"", []byte{0, 0, 0, 0}},
		{"a", []byte{'a', 0, 0, 0}},
		{"abc", []byte{'a', 'b', 'c', 0}},
		{"abcd", []byte{'a', 'b', 'c', 'd', 0, 0, 0, 0}},
	} {
		if got := appendPaddedString(nil, tt.s); !bytes.Equal(got, tt.want) {
			t.Errorf("appendPaddedString(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestReadBlob(t *testing.T) {
	for _, tt := range []struct {
		name string
		buf  []byte
		want []byte
		off  int
		err  error
	}{
		{"aligned", []byte{0, 0, 0, 4, 1, 2, 3, 4}, []byte{1, 2, 3, 4}, 8, nil},
		{"padded", []byte{0, 0, 0, 1, 9, 0, 0, 0}, []byte{9}, 8, nil},
		{"empty", []byte{0, 0, 0, 0}, []byte{}, 4, nil},
		{"no_length", []byte{0, 0}, nil, 0, errShortLength},
		{"too_long", []byte{0, 0, 0, 5, 1, 2, 3, 4}, nil, 0, errShortBlob},
		{"max_length", []byte{0xff, 0xff, 0xff, 0xff, 1}, nil, 0, errShortBlob},
		{"short_padding", []byte{0, 0, 0, 2, 1, 2}, nil, 0, errShortPadding},
		{"dirty_padding", []byte{0, 0, 0, 1, 9, 0, 7, 0}, nil, 0, errDirtyPadding},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, off, err := readBlob(tt.buf, 0)
			if err != tt.err {
				t.Fatalf("readBlob() error = %v, want %v", err, tt.err)
			}
			if err != nil {
				return
			}
			if !bytes.Equal(got, tt.want) || off != tt.off {
				t.Errorf("readBlob() = %v, %d, want %v, %d", got, off, tt.want, tt.off)
			}
		})
	}
}

func TestReadBlobCopies(t *testing.T) {
	buf := []byte{0, 0, 0, 1, 7, 0, 0, 0}
	got, _, err := readBlob(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	buf[4] = 8
	if got[0] != 7 {
		t.Error("readBlob must not alias its input")
	}
}

func TestSpan(t *testing.T) {
	if _, ok := span(10, 8, 4); ok {
		t.Error("span past the end must fail")
	}
	if _, ok := span(10, 2, math.MaxInt); ok {
		t.Error("overflowing span must fail")
	}
	if end, ok := span(10, 6, 4); !ok || end != 10 {
		t.Errorf("span(10, 6, 4) = %d, %t", end, ok)
	}
}

func TestPadBytesNeeded(t *testing.T) {
	var n int
	n = padBytesNeeded(4)
	if n != 0 {
		t.Errorf("Number of pad bytes should be 0 and is: %d", n)
	}

	n = padBytesNeeded(3)
	if n != 1 {
		t.Errorf("Number of pad bytes should be 1 and is: %d", n)
	}

	n = padBytesNeeded(1)
	if n != 3 {
		t.Errorf("Number of pad bytes should be 3 and is: %d", n)
	}

	n = padBytesNeeded(0)
	if n != 0 {
		t.Errorf("Number of pad bytes should be 0 and is: %d", n)
	}

	n = padBytesNeeded(32)
	if n != 0 {
		t.Errorf("Number of pad bytes should be 0 and is: %d", n)
	}

	n = padBytesNeeded(63)
	if n != 1 {
		t.Errorf("Number of pad bytes should be 1 and is: %d", n)
	}

	n = padBytesNeeded(10)
	if n != 2 {
		t.Errorf("Number of pad bytes should be 2 and is: %d", n)
	}
}
