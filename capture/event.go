// Package capture records the datagrams an OSC server sees to a CBOR stream
// and reads them back.
//
// A Writer implements osc.Tap, so a capture is started by setting it on a
// server:
//
//	w, err := capture.Create("session.osccap")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	server.Tap = w
//
// Each datagram becomes one Event. Events are self-delimiting CBOR items
// appended to the file, so captures from several runs may share a file and
// are told apart by their Session.
package capture

import (
	"time"

	"github.com/chabad360/osckit/osc"
)

// Event is one captured datagram.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp is when the server read or wrote the datagram.
	Timestamp time.Time `cbor:"1,keyasint"`

	// Session identifies the Writer that recorded the event (UUID).
	Session string `cbor:"2,keyasint"`

	// Direction is osc.DirectionIn or osc.DirectionOut.
	Direction osc.Direction `cbor:"3,keyasint"`

	// Peer is the remote address.
	Peer string `cbor:"4,keyasint,omitempty"`

	// Data is the raw datagram.
	Data []byte `cbor:"5,keyasint"`

	// Error is the parse or send error, if any.
	Error string `cbor:"6,keyasint,omitempty"`
}

// Packet decodes the captured datagram.
func (e Event) Packet() (osc.Packet, error) {
	return osc.ParsePacket(e.Data)
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Session   string
	Direction osc.Direction
	Peer      string

	// Since and Until bound Timestamp; Until is exclusive.
	Since time.Time
	Until time.Time
}

func (f *Filter) matches(e Event) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if f.Direction != 0 && e.Direction != f.Direction {
		return false
	}
	if f.Peer != "" && e.Peer != f.Peer {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}
