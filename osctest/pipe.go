// Package osctest provides an in-memory datagram pipe for testing OSC servers
// and clients without sockets.
package osctest

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess delivers queued datagrams from a background goroutine.
	AutoProcess bool

	// ProcessInterval is how often the background goroutine delivers.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: time.Millisecond,
	}
}

// Pipe connects two datagram endpoints in memory. Endpoint 0 is meant for the
// server, endpoint 1 for the client. It wraps pion's test.Bridge.
type Pipe struct {
	bridge *test.Bridge
	server *Conn
	client *Conn

	mu       sync.Mutex
	closed   bool
	auto     bool
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPipe creates a pipe that delivers datagrams automatically.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	br := test.NewBridge()
	p := &Pipe{
		bridge:   br,
		auto:     config.AutoProcess,
		interval: config.ProcessInterval,
		stopCh:   make(chan struct{}),
	}
	if p.interval == 0 {
		p.interval = time.Millisecond
	}
	p.server = &Conn{conn: br.GetConn0(), local: Addr{ID: 0}, peer: Addr{ID: 1}}
	p.client = &Conn{conn: br.GetConn1(), local: Addr{ID: 1}, peer: Addr{ID: 0}}

	if p.auto {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pipe) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Process()
		}
	}
}

// Server returns endpoint 0.
func (p *Pipe) Server() *Conn { return p.server }

// Client returns endpoint 1.
func (p *Pipe) Client() *Conn { return p.client }

// Process delivers every queued datagram and returns how many were delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.bridge.Tick()
		if n == 0 {
			return count
		}
		count += n
	}
}

// Close stops delivery and closes both endpoints.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.auto {
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.server.Close()
	err1 := p.client.Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// Addr is the address of a pipe endpoint.
type Addr struct {
	ID int
}

// Network returns "pipe".
func (a Addr) Network() string { return "pipe" }

func (a Addr) String() string { return fmt.Sprintf("pipe:%d", a.ID) }

// Conn is one end of a Pipe as a net.PacketConn. Every datagram read comes
// from the other end and every datagram written goes there, whatever the
// address.
type Conn struct {
	conn  net.Conn
	local Addr
	peer  Addr

	closeOnce sync.Once
	closeErr  error
}

// Verify Conn implements net.PacketConn.
var _ net.PacketConn = (*Conn)(nil)

// ReadFrom reads one datagram.
func (c *Conn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peer, err
}

// WriteTo writes one datagram to the other end. addr is ignored.
func (c *Conn) WriteTo(b []byte, _ net.Addr) (int, error) {
	return c.conn.Write(b)
}

// Write writes one datagram, so a Conn can back an osc.Client.
func (c *Conn) Write(b []byte) (int, error) {
	return c.conn.Write(b)
}

// Close closes this end. Closing twice is not an error.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// LocalAddr returns the endpoint address.
func (c *Conn) LocalAddr() net.Addr { return c.local }

// PeerAddr returns the address of the other end.
func (c *Conn) PeerAddr() net.Addr { return c.peer }

// SetDeadline sets the read and write deadlines.
func (c *Conn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
