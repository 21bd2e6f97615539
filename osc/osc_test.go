package osc

import (
	"encoding/binary"
	"sync"
	"time"
)

const zero = string(byte(0))

// nulls returns a string of `i` nulls.
func nulls(i int) string {
	s := ""
	for j := 0; j < i; j++ {
		s += zero
	}
	return s
}

// pad returns s terminated and padded like an OSC-string.
func pad(s string) string {
	return s + nulls(4-len(s)%4)
}

func u32(v uint32) string {
	return string(binary.BigEndian.AppendUint32(nil, v))
}

func u64(v uint64) string {
	return string(binary.BigEndian.AppendUint64(nil, v))
}

// element prefixes raw with its bundle element length.
func element(raw string) string {
	return u32(uint32(len(raw))) + raw
}

type testCase struct {
	name    string
	obj     Packet
	raw     []byte
	wantErr bool
}

var messageTestCases = []testCase{
	{"address_only", NewMessage("/a"), []byte(pad("/a") + pad(",")), false},
	{"int32", NewMessage("/a", Int32(1)), []byte(pad("/a") + pad(",i") + u32(1)), false},
	{"negative_int32", NewMessage("/a", Int32(-2)), []byte(pad("/a") + pad(",i") + u32(0xfffffffe)), false},
	{"float32", NewMessage("/a", Float32(1)), []byte(pad("/a") + pad(",f") + u32(0x3f800000)), false},
	{"string", NewMessage("/a", String("hi")), []byte(pad("/a") + pad(",s") + pad("hi")), false},
	{"string_aligned", NewMessage("/abc", String("test")), []byte(pad("/abc") + pad(",s") + "test" + nulls(4)), false},
	{"empty_string", NewMessage("/a", String("")), []byte(pad("/a") + pad(",s") + nulls(4)), false},
	{"blob", NewMessage("/a", Blob{1, 2, 3}), []byte(pad("/a") + pad(",b") + u32(3) + "\x01\x02\x03" + nulls(1)), false},
	{"empty_blob", NewMessage("/a", Blob{}), []byte(pad("/a") + pad(",b") + u32(0)), false},
	{"int64", NewMessage("/a", Int64(1<<40)), []byte(pad("/a") + pad(",h") + u64(1<<40)), false},
	{"float64", NewMessage("/a", Float64(0.5)), []byte(pad("/a") + pad(",d") + u64(0x3fe0000000000000)), false},
	{"timetag", NewMessage("/a", Timetag(0x0102030405060708)), []byte(pad("/a") + pad(",t") + u64(0x0102030405060708)), false},
	{"char", NewMessage("/a", Char('x')), []byte(pad("/a") + pad(",c") + nulls(3) + "x"), false},
	{"rgba", NewMessage("/a", RGBA{1, 2, 3, 4}), []byte(pad("/a") + pad(",r") + "\x01\x02\x03\x04"), false},
	{"midi", NewMessage("/a", MIDI{0, 0x90, 60, 127}), []byte(pad("/a") + pad(",m") + "\x00\x90\x3c\x7f"), false},
	{"payload_free", NewMessage("/a", Bool(true), Bool(false), Nil{}, Infinitum{}), []byte(pad("/a") + pad(",TFNI")), false},
	{
		"mixed",
		NewMessage("/composition/layers/1", Int32(7), String("hello world"), Bool(true), Float32(0.25)),
		[]byte(pad("/composition/layers/1") + pad(",isTf") + u32(7) + pad("hello world") + u32(0x3e800000)),
		false,
	},
	{"empty_address", &Message{}, []byte(""), true},
}

var bundleTestCases = []testCase{
	{"empty", NewBundle(), []byte(pad("#bundle") + u64(1)), false},
	{
		"one_message",
		NewBundle(NewMessage("/a", Int32(1))),
		[]byte(pad("#bundle") + u64(1) + element(pad("/a")+pad(",i")+u32(1))),
		false,
	},
	{
		"timed",
		&Bundle{Timetag: 0x83aa7e8000000000, Elements: []Packet{NewMessage("/a"), NewMessage("/b", String("x"))}},
		[]byte(pad("#bundle") + u64(0x83aa7e8000000000) + element(pad("/a")+pad(",")) + element(pad("/b")+pad(",s")+pad("x"))),
		false,
	},
	{
		"nested",
		NewBundle(NewBundle(NewMessage("/a"))),
		[]byte(pad("#bundle") + u64(1) + element(pad("#bundle")+u64(1)+element(pad("/a")+pad(",")))),
		false,
	},
}

// skewClock runs real timers but reports the wall time shifted by an offset,
// like a system clock that is stepped while timers keep their monotonic time.
type skewClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *skewClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *skewClock) NewTimer(d time.Duration) Timer { return SystemClock{}.NewTimer(d) }

func (c *skewClock) Shift(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// fakeClock is a manual Clock. Timers fire when Advance or Set moves the time
// past their deadline.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c     chan time.Time
	at    time.Time
	clock *fakeClock
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{c: make(chan time.Time, 1), at: c.now.Add(d), clock: c}
	if d <= 0 {
		t.c <- c.now
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.fire()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
	c.fire()
}

func (c *fakeClock) fire() {
	kept := c.timers[:0]
	for _, t := range c.timers {
		if t.at.After(c.now) {
			kept = append(kept, t)
			continue
		}
		t.c <- c.now
	}
	c.timers = kept
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	for i, o := range t.clock.timers {
		if o == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}
