package osc

import (
	"io"
	"net"
)

// Client enables you to send OSC Packets to a specified server, or to any
// io.Writer that takes one datagram per Write.
type Client struct {
	w   io.Writer
	buf []byte
}

// Dial creates a new OSC Client with a connection to the specified server.
func Dial(addr string) (*Client, error) {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp", nil, a)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient returns a Client writing each packet to w with a single Write.
func NewClient(w io.Writer) *Client {
	return &Client{w: w}
}

// Send sends an OSC Packet to the server. A Client is not safe for concurrent use.
func (c *Client) Send(packet Packet) error {
	data, err := AppendPacket(c.buf[:0], packet)
	if err != nil {
		return err
	}
	c.buf = data
	if len(data) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	_, err = c.w.Write(data)
	return err
}

// Conn returns the underlying connection when the Client writes to a
// net.PacketConn, as a Client from Dial does. Replies can be read from it.
func (c *Client) Conn() (net.PacketConn, bool) {
	pc, ok := c.w.(net.PacketConn)
	return pc, ok
}

// Close closes the underlying writer if it is an io.Closer.
func (c *Client) Close() error {
	if cl, ok := c.w.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
