package osc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

const (
	// DefaultLateThreshold is how far past its time tag a bundle may arrive
	// before its dispatch is logged as late.
	DefaultLateThreshold = time.Second

	// DefaultSendQueue is the default size of the outbound queue.
	DefaultSendQueue = 64

	inboundQueue = 64
)

// Direction tells a Tap which way a datagram went.
type Direction uint8

// Datagram directions.
const (
	DirectionIn Direction = iota + 1
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Tap observes every datagram a Server receives or sends. For inbound datagrams
// err is the parse error, if any. Datagram is called from the server's own
// goroutines and must not block for long.
type Tap interface {
	Datagram(dir Direction, peer net.Addr, at time.Time, data []byte, err error)
}

// Sender describes where and when a dispatched message came from.
type Sender struct {
	// Addr is the remote address of the datagram.
	Addr net.Addr
	// Received is when the datagram was read.
	Received time.Time
	// Timetag is the time tag of the enclosing bundle, or ImmediateTimetag
	// for a bare message.
	Timetag Timetag

	server *Server
}

// Reply queues p to be sent back to the sender.
func (s *Sender) Reply(p Packet) error {
	if s == nil || s.server == nil || s.Addr == nil {
		return ErrNotStarted
	}
	return s.server.Send(p, s.Addr)
}

// Stats holds the counters of a Server.
type Stats struct {
	Received      uint64
	Dropped       uint64
	Scheduled     uint64
	Dispatched    uint64
	HandlerErrors uint64
	Sent          uint64
	SendDropped   uint64
}

// Server represents an OSC server. The server listens on Addr for incoming OSC
// packets and bundles. Messages are dispatched to the Dispatcher from a single
// goroutine, so methods of one server never run concurrently; bundles with a
// future time tag are held until their time.
type Server struct {
	Addr        string
	Dispatcher  *AddressSpace
	ReadTimeout time.Duration

	// MaxBundleDepth limits bundle nesting. Zero means DefaultMaxBundleDepth.
	MaxBundleDepth int

	// LateThreshold is how late a bundle may be before a warning is logged.
	// Zero means DefaultLateThreshold.
	LateThreshold time.Duration

	// SendQueue is the capacity of the outbound queue. Zero means DefaultSendQueue.
	SendQueue int

	// Clock defaults to SystemClock.
	Clock Clock

	// ErrorHandler, if set, receives parse, handler and send errors.
	// It is called from the server's goroutines.
	ErrorHandler func(err error)

	// Tap, if set, sees every datagram in both directions.
	Tap Tap

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory

	mu      sync.Mutex
	conn    net.PacketConn
	started bool
	closed  bool
	done    chan struct{}
	out     chan outbound
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	// Owned by the dispatch goroutine.
	queue     schedule
	highWater time.Time
	behind    bool

	pending       atomic.Int64
	received      atomic.Uint64
	dropped       atomic.Uint64
	scheduled     atomic.Uint64
	dispatched    atomic.Uint64
	handlerErrors atomic.Uint64
	sent          atomic.Uint64
	sendDropped   atomic.Uint64
}

type datagram struct {
	data []byte
	from net.Addr
	at   time.Time
}

type outbound struct {
	data []byte
	to   net.Addr
}

// newLogger returns a logger for scope, or a disabled one when f is nil.
func newLogger(f logging.LoggerFactory, scope string) logging.LeveledLogger {
	if f == nil {
		f = &logging.DefaultLoggerFactory{DefaultLogLevel: logging.LogLevelDisabled, Writer: io.Discard}
	}
	return f.NewLogger(scope)
}

// ListenAndServe listens on the UDP address s.Addr and then calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	return s.Serve(ln)
}

// Serve retrieves incoming OSC packets from the given connection and dispatches
// them until Close is called or reading fails. After Close it returns
// ErrServerClosed. Serve does not close c unless Close is called.
func (s *Server) Serve(c net.PacketConn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.conn = c
	s.done = make(chan struct{})
	s.out = make(chan outbound, s.sendQueue())
	s.log = newLogger(s.LoggerFactory, "osc-server")
	if s.Dispatcher == nil {
		s.Dispatcher = NewAddressSpace()
	}
	if s.Clock == nil {
		s.Clock = SystemClock{}
	}
	s.mu.Unlock()

	s.log.Infof("serving OSC on %s", c.LocalAddr())

	in := make(chan datagram, inboundQueue)
	s.wg.Add(2)
	go s.dispatchLoop(in)
	go s.writeLoop()

	err := s.readLoop(c, in)

	s.stop()
	s.wg.Wait()

	if s.isClosed() {
		return ErrServerClosed
	}
	return err
}

// Close stops the server. Scheduled bundles are discarded without being
// dispatched. Close waits for the dispatch goroutine, so it must not be called
// from a Method.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	started := s.started
	conn := s.conn
	s.mu.Unlock()

	if !started {
		return nil
	}

	s.log.Info("closing OSC server")

	s.stop()
	// Unblock a pending read.
	_ = conn.SetReadDeadline(time.Now())
	err := conn.Close()
	s.wg.Wait()
	return err
}

// stop signals the server goroutines to exit. Safe to call more than once.
func (s *Server) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// LocalAddr returns the address the server is reading from, or nil before Serve.
func (s *Server) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Send queues p for delivery to addr. It never blocks: when the outbound
// queue is full the packet is dropped and ErrSendQueueFull is returned.
func (s *Server) Send(p Packet, addr net.Addr) error {
	if addr == nil {
		return fmt.Errorf("osc: send %v: nil address", p)
	}
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if len(data) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	s.mu.Lock()
	closed, out, done := s.closed, s.out, s.done
	s.mu.Unlock()
	if closed {
		return ErrServerClosed
	}
	if out == nil {
		return ErrNotStarted
	}

	select {
	case <-done:
		return ErrServerClosed
	default:
	}

	select {
	case out <- outbound{data: data, to: addr}:
		return nil
	default:
		s.sendDropped.Add(1)
		return ErrSendQueueFull
	}
}

// Pending returns the number of bundles waiting for their time tag.
func (s *Server) Pending() int {
	return int(s.pending.Load())
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	return Stats{
		Received:      s.received.Load(),
		Dropped:       s.dropped.Load(),
		Scheduled:     s.scheduled.Load(),
		Dispatched:    s.dispatched.Load(),
		HandlerErrors: s.handlerErrors.Load(),
		Sent:          s.sent.Load(),
		SendDropped:   s.sendDropped.Load(),
	}
}

func (s *Server) sendQueue() int {
	if s.SendQueue > 0 {
		return s.SendQueue
	}
	return DefaultSendQueue
}

func (s *Server) lateThreshold() time.Duration {
	if s.LateThreshold > 0 {
		return s.LateThreshold
	}
	return DefaultLateThreshold
}

func (s *Server) reportError(err error) {
	if s.ErrorHandler != nil {
		s.ErrorHandler(err)
	}
}

// readLoop copies datagrams off the connection and hands them to the dispatch
// goroutine. It does no parsing.
func (s *Server) readLoop(c net.PacketConn, in chan<- datagram) error {
	buf := make([]byte, MaxPacketSize)
	for {
		if s.ReadTimeout != 0 {
			if err := c.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
				return err
			}
		}

		n, addr, err := c.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.done:
				return ErrServerClosed
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		d := datagram{data: make([]byte, n), from: addr, at: s.Clock.Now()}
		copy(d.data, buf[:n])

		select {
		case in <- d:
		case <-s.done:
			return ErrServerClosed
		}
	}
}

// writeLoop drains the outbound queue.
func (s *Server) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case o := <-s.out:
			_, err := s.conn.WriteTo(o.data, o.to)
			if s.Tap != nil {
				s.Tap.Datagram(DirectionOut, o.to, s.Clock.Now(), o.data, err)
			}
			if err != nil {
				s.log.Warnf("send to %s failed: %v", o.to, err)
				s.reportError(fmt.Errorf("osc: send to %s: %w", o.to, err))
				continue
			}
			s.sent.Add(1)
		}
	}
}

// dispatchLoop is the only goroutine that parses packets, touches the schedule
// and calls methods.
func (s *Server) dispatchLoop(in <-chan datagram) {
	defer s.wg.Done()

	var (
		timer  Timer
		timerC <-chan time.Time
		armed  time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-s.done:
			s.discard()
			return
		default:
		}

		select {
		case <-s.done:
			s.discard()
			return
		case d := <-in:
			s.handleDatagram(d)
		case <-timerC:
			timer, timerC = nil, nil
			s.releaseDue(armed)
		}

		// Keep one timer armed for the earliest deadline.
		if next := s.queue.next(); next == nil {
			stopTimer()
		} else if timer == nil || !next.deadline.Equal(armed) {
			stopTimer()
			armed = next.deadline
			timer = s.Clock.NewTimer(armed.Sub(s.now()))
			timerC = timer.C()
		}
		s.pending.Store(int64(s.queue.len()))
	}
}

func (s *Server) discard() {
	if n := s.queue.drain(); n > 0 {
		s.log.Debugf("discarded %d scheduled bundles", n)
	}
	s.pending.Store(0)
}

// now returns the clock time, never earlier than a time already observed.
func (s *Server) now() time.Time {
	t := s.Clock.Now()
	if t.Before(s.highWater) {
		if !s.behind {
			s.log.Warnf("clock moved backward by %s, releasing bundles due by %s", s.highWater.Sub(t), s.highWater.Format(time.RFC3339Nano))
			s.behind = true
		}
		return s.highWater
	}
	s.behind = false
	s.highWater = t
	return t
}

func (s *Server) handleDatagram(d datagram) {
	s.received.Add(1)

	p, err := ParsePacketDepth(d.data, s.MaxBundleDepth)
	if s.Tap != nil {
		s.Tap.Datagram(DirectionIn, d.from, d.at, d.data, err)
	}
	if err != nil {
		s.dropped.Add(1)
		s.log.Warnf("dropping datagram from %s: %v", d.from, err)
		s.reportError(fmt.Errorf("osc: datagram from %s: %w", d.from, err))
		return
	}

	s.log.Tracef("received %d bytes from %s", len(d.data), d.from)
	s.process(p, d.from, d.at, ImmediateTimetag)
}

// process routes a message or hands a bundle to the scheduler. tag is the time
// tag of the enclosing bundle.
func (s *Server) process(p Packet, from net.Addr, received time.Time, tag Timetag) {
	switch p := p.(type) {
	case *Message:
		s.dispatchMessage(p, &Sender{Addr: from, Received: received, Timetag: tag, server: s})
	case *Bundle:
		s.processBundle(p, from, received)
	}
}

func (s *Server) processBundle(b *Bundle, from net.Addr, received time.Time) {
	if !b.Timetag.IsImmediate() {
		deadline := b.Timetag.Time()
		now := s.now()
		if deadline.After(now) {
			s.queue.push(&queuedBundle{bundle: b, deadline: deadline, from: from, received: received})
			s.scheduled.Add(1)
			s.log.Debugf("scheduled bundle from %s for %s", from, deadline.Format(time.RFC3339Nano))
			return
		}
		if late := now.Sub(deadline); late > s.lateThreshold() {
			s.log.Warnf("bundle from %s is %s late, dispatching now", from, late)
		}
	}
	s.dispatchElements(b, from, received)
}

func (s *Server) dispatchElements(b *Bundle, from net.Addr, received time.Time) {
	for _, e := range b.Elements {
		s.process(e, from, received, b.Timetag)
	}
}

// releaseDue dispatches every scheduled bundle whose deadline has passed, in
// deadline then arrival order. Nested bundles for later times are scheduled again.
// fired is the deadline of the timer that went off; it has passed even when the
// wall clock reads earlier.
func (s *Server) releaseDue(fired time.Time) {
	now := s.now()
	if now.Before(fired) {
		if s.behind {
			s.log.Warnf("clock is behind a timer that fired, releasing bundles due by %s", fired.Format(time.RFC3339Nano))
			s.highWater = fired
		}
		now = fired
	}
	for {
		q := s.queue.popDue(now)
		if q == nil {
			return
		}
		s.dispatchElements(q.bundle, q.from, q.received)
	}
}

func (s *Server) dispatchMessage(msg *Message, from *Sender) {
	methods, err := s.Dispatcher.Match(msg.Address)
	if err != nil {
		s.dropped.Add(1)
		s.log.Warnf("dropping message from %s: %v", from.Addr, err)
		s.reportError(err)
		return
	}
	if len(methods) == 0 {
		s.log.Debugf("no method matches %s", msg.Address)
		return
	}

	s.dispatched.Add(1)
	for _, m := range methods {
		s.invoke(m, msg, from)
	}
}

// invoke calls one method. Errors and panics are reported and go no further.
func (s *Server) invoke(m Method, msg *Message, from *Sender) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				buf = buf[:runtime.Stack(buf, false)]
				err = fmt.Errorf("panic: %v\n%s", r, buf)
			}
		}()
		return m.HandleMessage(msg, from)
	}()
	if err == nil {
		return
	}

	s.handlerErrors.Add(1)
	herr := &HandlerError{Address: msg.Address, From: from.Addr, Err: err}
	s.log.Errorf("%v", herr)
	s.reportError(herr)
}
