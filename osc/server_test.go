package osc

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chabad360/osckit/osctest"
)

var serverEpoch = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

// recorder collects the addresses of dispatched messages.
type recorder struct {
	mu      sync.Mutex
	got     []string
	senders []*Sender
}

func (r *recorder) method(name string) MethodFunc {
	return func(msg *Message, from *Sender) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.got = append(r.got, name)
		r.senders = append(r.senders, from)
		return nil
	}
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func (r *recorder) sender(i int) *Sender {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.senders[i]
}

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) handle(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// startServer serves s on an in-memory pipe and returns the client end.
func startServer(t *testing.T, s *Server) *osctest.Conn {
	t.Helper()
	p := osctest.NewPipe()
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(p.Server()) }()

	require.Eventually(t, func() bool { return s.LocalAddr() != nil }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		_ = s.Close()
		select {
		case err := <-errc:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Close")
		}
		p.Close()
	})
	return p.Client()
}

func send(t *testing.T, c net.PacketConn, p Packet) {
	t.Helper()
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	_, err = c.WriteTo(data, nil)
	require.NoError(t, err)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func TestServer_DispatchMessage(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/synth/freq", rec.method("freq")))
	require.NoError(t, d.AddMethodFunc("/synth/gain", rec.method("gain")))

	s := &Server{Dispatcher: d}
	c := startServer(t, s)

	send(t, c, NewMessage("/synth/freq", Float32(440)))
	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "message not dispatched")

	assert.Equal(t, []string{"freq"}, rec.calls())
	from := rec.sender(0)
	assert.Equal(t, osctest.Addr{ID: 1}, from.Addr)
	assert.Equal(t, ImmediateTimetag, from.Timetag)
	assert.False(t, from.Received.IsZero())

	send(t, c, NewMessage("/synth/*", Float32(1)))
	waitFor(t, func() bool { return len(rec.calls()) == 3 }, "pattern not dispatched")
	assert.Equal(t, []string{"freq", "freq", "gain"}, rec.calls())
}

func TestServer_ImmediateBundle(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/a", rec.method("a")))
	require.NoError(t, d.AddMethodFunc("/b", rec.method("b")))

	s := &Server{Dispatcher: d, Clock: newFakeClock(serverEpoch)}
	c := startServer(t, s)

	send(t, c, NewBundle(NewMessage("/a"), NewBundle(NewMessage("/b")), NewMessage("/a")))
	waitFor(t, func() bool { return len(rec.calls()) == 3 }, "immediate bundle not dispatched")

	assert.Equal(t, []string{"a", "b", "a"}, rec.calls())
	assert.Zero(t, s.Stats().Scheduled, "immediate bundles never enter the queue")
	assert.Zero(t, s.Pending())
}

func TestServer_ScheduledOrder(t *testing.T) {
	tests := []struct {
		name  string
		order []time.Duration
	}{
		{"in_order", []time.Duration{time.Second, 2 * time.Second}},
		{"reversed", []time.Duration{2 * time.Second, time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			d := NewAddressSpace()
			require.NoError(t, d.AddMethodFunc("/t1", rec.method("t1")))
			require.NoError(t, d.AddMethodFunc("/t2", rec.method("t2")))

			clock := newFakeClock(serverEpoch)
			s := &Server{Dispatcher: d, Clock: clock}
			c := startServer(t, s)

			for _, at := range tt.order {
				addr := "/t1"
				if at == 2*time.Second {
					addr = "/t2"
				}
				send(t, c, NewBundleWithTime(serverEpoch.Add(at), NewMessage(addr)))
			}
			waitFor(t, func() bool { return s.Pending() == 2 }, "bundles not scheduled")
			assert.Empty(t, rec.calls())

			clock.Advance(3 * time.Second)
			waitFor(t, func() bool { return len(rec.calls()) == 2 }, "bundles not released")
			assert.Equal(t, []string{"t1", "t2"}, rec.calls())
			assert.Equal(t, uint64(2), s.Stats().Scheduled)
		})
	}
}

func TestServer_ScheduledStepwise(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/first", rec.method("first")))
	require.NoError(t, d.AddMethodFunc("/second", rec.method("second")))
	require.NoError(t, d.AddMethodFunc("/tie", rec.method("tie")))

	clock := newFakeClock(serverEpoch)
	s := &Server{Dispatcher: d, Clock: clock}
	c := startServer(t, s)

	at := serverEpoch.Add(time.Second)
	send(t, c, NewBundleWithTime(serverEpoch.Add(2*time.Second), NewMessage("/second")))
	send(t, c, NewBundleWithTime(at, NewMessage("/first")))
	send(t, c, NewBundleWithTime(at, NewMessage("/tie", Int32(1))))
	waitFor(t, func() bool { return s.Pending() == 3 }, "bundles not scheduled")

	clock.Advance(time.Second)
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "first deadline not released")
	assert.Equal(t, []string{"first", "tie"}, rec.calls(), "same deadline releases in arrival order")
	waitFor(t, func() bool { return s.Pending() == 1 }, "pending not updated")

	ts := rec.sender(0).Timetag
	assert.Equal(t, NewTimetagFromTime(at), ts, "messages carry the bundle time tag")

	clock.Advance(time.Second)
	waitFor(t, func() bool { return len(rec.calls()) == 3 }, "second deadline not released")
	assert.Equal(t, "second", rec.calls()[2])
}

func TestServer_NestedBundleRescheduled(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/outer", rec.method("outer")))
	require.NoError(t, d.AddMethodFunc("/inner", rec.method("inner")))

	clock := newFakeClock(serverEpoch)
	s := &Server{Dispatcher: d, Clock: clock}
	c := startServer(t, s)

	send(t, c, NewBundleWithTime(serverEpoch.Add(time.Second),
		NewMessage("/outer"),
		NewBundleWithTime(serverEpoch.Add(5*time.Second), NewMessage("/inner")),
	))
	waitFor(t, func() bool { return s.Pending() == 1 }, "bundle not scheduled")

	clock.Advance(time.Second)
	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "outer not released")
	waitFor(t, func() bool { return s.Stats().Scheduled == 2 }, "inner bundle not scheduled again")
	assert.Equal(t, 1, s.Pending())

	clock.Advance(4 * time.Second)
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "inner not released")
	assert.Equal(t, []string{"outer", "inner"}, rec.calls())
}

func TestServer_LateBundle(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/late", rec.method("late")))

	s := &Server{Dispatcher: d, Clock: newFakeClock(serverEpoch)}
	c := startServer(t, s)

	send(t, c, NewBundleWithTime(serverEpoch.Add(-time.Hour), NewMessage("/late")))
	send(t, c, &Bundle{Timetag: 0, Elements: []Packet{NewMessage("/late")}})
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "late bundles must still be dispatched")
	assert.Zero(t, s.Stats().Scheduled)
}

func TestServer_ClockBackward(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/a", rec.method("a")))
	require.NoError(t, d.AddMethodFunc("/b", rec.method("b")))

	clock := newFakeClock(serverEpoch)
	s := &Server{Dispatcher: d, Clock: clock}
	c := startServer(t, s)

	send(t, c, NewBundleWithTime(serverEpoch.Add(time.Second), NewMessage("/a")))
	waitFor(t, func() bool { return s.Pending() == 1 }, "bundle not scheduled")
	clock.Advance(time.Second)
	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "first bundle not released")

	// The clock jumps back ten seconds. A bundle due before the latest time
	// already seen is not held back.
	clock.Set(serverEpoch.Add(-9 * time.Second))
	send(t, c, NewBundleWithTime(serverEpoch.Add(500*time.Millisecond), NewMessage("/b")))
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "bundle held back after clock moved backward")
	assert.Zero(t, s.Pending())
}

func TestServer_ClockBackwardWhileQueued(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/a", rec.method("a")))

	clock := &skewClock{}
	s := &Server{Dispatcher: d, Clock: clock}
	c := startServer(t, s)

	send(t, c, NewBundleWithTime(clock.Now().Add(200*time.Millisecond), NewMessage("/a")))
	waitFor(t, func() bool { return s.Pending() == 1 }, "bundle not scheduled")

	// The wall clock is stepped back an hour while the bundle waits. The
	// timer still fires on time and the bundle goes out with it.
	clock.Shift(-time.Hour)
	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "bundle held back after clock moved backward")
	assert.Zero(t, s.Pending())

	send(t, c, NewBundleWithTime(clock.Now().Add(time.Hour+300*time.Millisecond), NewMessage("/a")))
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "later bundle held back after clock moved backward")
}

func TestServer_MalformedDatagram(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/ok", rec.method("ok")))

	errs := &errorLog{}
	s := &Server{Dispatcher: d, ErrorHandler: errs.handle}
	c := startServer(t, s)

	_, err := c.WriteTo([]byte("garbage!"), nil)
	require.NoError(t, err)
	_, err = c.WriteTo([]byte(pad("/ok")+pad(",z")), nil)
	require.NoError(t, err)
	send(t, c, NewMessage("/ok"))

	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "valid datagram after malformed ones not dispatched")
	waitFor(t, func() bool { return len(errs.all()) == 2 }, "parse errors not reported")

	got := errs.all()
	var se *PacketStartError
	assert.True(t, errors.As(got[0], &se), "got %v", got[0])
	var ae *InvalidArgumentError
	assert.True(t, errors.As(got[1], &ae), "got %v", got[1])

	st := s.Stats()
	assert.Equal(t, uint64(3), st.Received)
	assert.Equal(t, uint64(2), st.Dropped)
	assert.Equal(t, uint64(1), st.Dispatched)
}

func TestServer_MaxBundleDepth(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/a", rec.method("a")))

	errs := &errorLog{}
	s := &Server{Dispatcher: d, MaxBundleDepth: 1, ErrorHandler: errs.handle}
	c := startServer(t, s)

	send(t, c, NewBundle(NewBundle(NewMessage("/a"))))
	send(t, c, NewBundle(NewMessage("/a")))

	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "flat bundle not dispatched")
	waitFor(t, func() bool { return len(errs.all()) == 1 }, "nested bundle not rejected")

	var pe *ParseError
	require.ErrorAs(t, errs.all()[0], &pe)
	assert.Contains(t, errs.all()[0].Error(), "nesting")
	assert.Equal(t, uint64(1), s.Stats().Dropped)
}

func TestServer_MethodChangesAddressSpace(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/target", rec.method("old")))
	require.NoError(t, d.AddMethodFunc("/swap", func(msg *Message, from *Sender) error {
		d.RemoveMethod("/target")
		return d.AddMethodFunc("/target", rec.method("new"))
	}))

	s := &Server{Dispatcher: d}
	c := startServer(t, s)

	send(t, c, NewMessage("/swap"))
	waitFor(t, func() bool { return s.Stats().Dispatched == 1 }, "swap not dispatched")
	send(t, c, NewMessage("/target"))
	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "target not dispatched")

	assert.Equal(t, []string{"new"}, rec.calls())
	assert.Zero(t, s.Stats().HandlerErrors)
}

func TestServer_HandlerFailureIsolated(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	boom := errors.New("boom")
	require.NoError(t, d.AddMethodFunc("/x", func(*Message, *Sender) error { return boom }))
	require.NoError(t, d.AddMethodFunc("/x", func(*Message, *Sender) error { panic("oops") }))
	require.NoError(t, d.AddMethodFunc("/x", rec.method("after")))

	errs := &errorLog{}
	s := &Server{Dispatcher: d, ErrorHandler: errs.handle}
	c := startServer(t, s)

	send(t, c, NewMessage("/x"))
	send(t, c, NewMessage("/x"))
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "server stopped after a failing method")

	got := errs.all()
	require.Len(t, got, 4)
	var he *HandlerError
	require.True(t, errors.As(got[0], &he))
	assert.Equal(t, "/x", he.Address)
	assert.ErrorIs(t, got[0], boom)
	require.True(t, errors.As(got[1], &he))
	assert.Contains(t, he.Err.Error(), "oops")
	assert.Equal(t, uint64(4), s.Stats().HandlerErrors)
}

func TestServer_CloseDiscardsPending(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/later", rec.method("later")))

	clock := newFakeClock(serverEpoch)
	p := osctest.NewPipe()
	defer p.Close()

	s := &Server{Dispatcher: d, Clock: clock}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(p.Server()) }()
	require.Eventually(t, func() bool { return s.LocalAddr() != nil }, time.Second, time.Millisecond)

	send(t, p.Client(), NewBundleWithTime(serverEpoch.Add(time.Hour), NewMessage("/later")))
	send(t, p.Client(), NewBundleWithTime(serverEpoch.Add(time.Minute), NewMessage("/later")))
	waitFor(t, func() bool { return s.Pending() == 2 }, "bundles not scheduled")

	require.NoError(t, s.Close())
	assert.Zero(t, s.Pending())
	assert.ErrorIs(t, <-errc, ErrServerClosed)

	clock.Advance(2 * time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.calls(), "discarded bundles must never be dispatched")

	assert.ErrorIs(t, s.Close(), ErrServerClosed)
	assert.ErrorIs(t, s.Serve(p.Server()), ErrServerClosed)
}

func TestServer_Lifecycle(t *testing.T) {
	s := &Server{}
	assert.ErrorIs(t, s.Send(NewMessage("/a"), osctest.Addr{}), ErrNotStarted)
	assert.Nil(t, s.LocalAddr())

	startServer(t, s)
	p := osctest.NewPipe()
	defer p.Close()
	assert.ErrorIs(t, s.Serve(p.Server()), ErrAlreadyStarted)

	unstarted := &Server{}
	assert.NoError(t, unstarted.Close())
	assert.ErrorIs(t, unstarted.Serve(p.Server()), ErrServerClosed)
}

func TestServer_Reply(t *testing.T) {
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/ping", func(msg *Message, from *Sender) error {
		return from.Reply(NewMessage("/pong", msg.Arguments...))
	}))

	tap := &tapLog{}
	s := &Server{Dispatcher: d, Tap: tap}
	c := startServer(t, s)

	send(t, c, NewMessage("/ping", Int32(7)))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, MaxPacketSize)
	n, _, err := c.ReadFrom(buf)
	require.NoError(t, err)

	got, err := ParsePacket(buf[:n])
	require.NoError(t, err)
	assert.True(t, NewMessage("/pong", Int32(7)).Equals(got.(*Message)))
	waitFor(t, func() bool { return s.Stats().Sent == 1 }, "send not counted")
	waitFor(t, func() bool { return len(tap.all()) == 2 }, "tap did not see both directions")
	assert.Equal(t, DirectionIn, tap.all()[0])
	assert.Equal(t, DirectionOut, tap.all()[1])
}

func TestServer_SendErrors(t *testing.T) {
	s := &Server{SendQueue: 1}
	startServer(t, s)

	assert.Error(t, s.Send(NewMessage("/a"), nil))
	assert.Error(t, s.Send(NewMessage("relative"), osctest.Addr{}))

	big := NewMessage("/big", Blob(make([]byte, MaxPacketSize)))
	assert.ErrorIs(t, s.Send(big, osctest.Addr{}), ErrPacketTooLarge)
}

// blockingTap holds the writer goroutine on its first outbound datagram
// until unblock is called.
type blockingTap struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	done    sync.Once
}

func (b *blockingTap) unblock() { b.done.Do(func() { close(b.release) }) }

func (b *blockingTap) Datagram(dir Direction, peer net.Addr, at time.Time, data []byte, err error) {
	if dir != DirectionOut {
		return
	}
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func TestServer_SendQueueFull(t *testing.T) {
	tap := &blockingTap{entered: make(chan struct{}), release: make(chan struct{})}
	s := &Server{SendQueue: 1, Tap: tap}
	startServer(t, s)
	t.Cleanup(tap.unblock)
	to := osctest.Addr{ID: 1}

	require.NoError(t, s.Send(NewMessage("/1"), to))
	select {
	case <-tap.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not pick up the first packet")
	}

	require.NoError(t, s.Send(NewMessage("/2"), to))
	assert.ErrorIs(t, s.Send(NewMessage("/3"), to), ErrSendQueueFull)
	assert.Equal(t, uint64(1), s.Stats().SendDropped)

	tap.unblock()
	waitFor(t, func() bool { return s.Stats().Sent == 2 }, "queued packets not sent")
}

func TestSender_ReplyWithoutServer(t *testing.T) {
	var s *Sender
	assert.ErrorIs(t, s.Reply(NewMessage("/a")), ErrNotStarted)
	assert.ErrorIs(t, (&Sender{}).Reply(NewMessage("/a")), ErrNotStarted)
}

func TestServer_ListenAndServe(t *testing.T) {
	rec := &recorder{}
	d := NewAddressSpace()
	require.NoError(t, d.AddMethodFunc("/udp", rec.method("udp")))

	s := &Server{Addr: "127.0.0.1:0", Dispatcher: d, ReadTimeout: 50 * time.Millisecond}
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe() }()
	require.Eventually(t, func() bool { return s.LocalAddr() != nil }, 2*time.Second, time.Millisecond)

	client, err := Dial(s.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(NewBundle(NewMessage("/udp", String("hi")))))
	waitFor(t, func() bool { return len(rec.calls()) == 1 }, "udp message not dispatched")

	// Reads time out regularly; that must not stop the server.
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, client.Send(NewMessage("/udp")))
	waitFor(t, func() bool { return len(rec.calls()) == 2 }, "server stopped after a read timeout")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, <-errc, ErrServerClosed)
}

type tapLog struct {
	mu   sync.Mutex
	dirs []Direction
}

func (l *tapLog) Datagram(dir Direction, _ net.Addr, _ time.Time, _ []byte, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirs = append(l.dirs, dir)
}

func (l *tapLog) all() []Direction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Direction(nil), l.dirs...)
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "in", DirectionIn.String())
	assert.Equal(t, "out", DirectionOut.String())
	assert.Equal(t, "Direction(9)", Direction(9).String())
}
