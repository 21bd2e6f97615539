package osc

import (
	"errors"
	"fmt"
	"net"
)

// Server and address space errors.
var (
	// ErrServerClosed is returned by Serve after Close, and by Close when called twice.
	ErrServerClosed = errors.New("osc: server closed")

	// ErrAlreadyStarted is returned when Serve is called on a server that is already serving.
	ErrAlreadyStarted = errors.New("osc: server already started")

	// ErrNotStarted is returned by Send before Serve was called.
	ErrNotStarted = errors.New("osc: server not started")

	// ErrSendQueueFull is returned by Send when the outbound queue is saturated.
	// The packet is dropped.
	ErrSendQueueFull = errors.New("osc: send queue full")

	// ErrPacketTooLarge is returned when a packet exceeds MaxPacketSize.
	ErrPacketTooLarge = errors.New("osc: packet too large")

	// ErrInvalidAddress is returned for addresses that are empty, relative, or that
	// contain pattern characters where a literal address is required.
	ErrInvalidAddress = errors.New("osc: invalid address")

	// ErrInvalidPattern is returned for address patterns with unbalanced brackets or braces.
	ErrInvalidPattern = errors.New("osc: invalid address pattern")
)

// leadSize is how many bytes of the offending region a ParseError keeps.
const leadSize = 8

// ParseError reports malformed packet bytes. PacketStartError, MessageStartError
// and BundleStartError unwrap to a *ParseError, so errors.As(err, &pe) with
// pe *ParseError matches all of them.
type ParseError struct {
	// Offset is the position in the packet where parsing failed.
	Offset int
	// Lead holds up to 8 bytes starting at Offset.
	Lead []byte
	// Reason describes the failed expectation.
	Reason string
}

func newParseError(data []byte, off int, format string, args ...interface{}) ParseError {
	var lead []byte
	if off >= 0 && off < len(data) {
		end := min(off+leadSize, len(data))
		lead = append(lead, data[off:end]...)
	}
	return ParseError{Offset: off, Lead: lead, Reason: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("osc: parse error at offset %d: %s (lead %q)", e.Offset, e.Reason, e.Lead)
}

// PacketStartError is returned when a packet begins with neither '/' nor "#bundle".
type PacketStartError struct{ ParseError }

func (e *PacketStartError) Error() string {
	return fmt.Sprintf("osc: invalid packet start %q: %s", e.Lead, e.Reason)
}

func (e *PacketStartError) Unwrap() error { return &e.ParseError }

// MessageStartError is returned when a message's address or type tag string is malformed.
type MessageStartError struct{ ParseError }

func (e *MessageStartError) Error() string {
	return fmt.Sprintf("osc: invalid message at offset %d: %s (lead %q)", e.Offset, e.Reason, e.Lead)
}

func (e *MessageStartError) Unwrap() error { return &e.ParseError }

// BundleStartError is returned when a packet starting with '#' lacks the "#bundle\x00" marker.
type BundleStartError struct{ ParseError }

func (e *BundleStartError) Error() string {
	return fmt.Sprintf("osc: invalid bundle marker %q: %s", e.Lead, e.Reason)
}

func (e *BundleStartError) Unwrap() error { return &e.ParseError }

// InvalidArgumentError is returned for an unknown type tag or a truncated or
// malformed argument payload. The whole message is rejected.
type InvalidArgumentError struct {
	Tag TypeTag
	// Index is the argument position within the message.
	Index int
	// Offset is the position in the packet where the argument starts.
	Offset int
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("osc: invalid argument %d (%q) at offset %d: %s", e.Index, rune(e.Tag), e.Offset, e.Reason)
}

// HandlerError reports a Method that returned an error or panicked.
type HandlerError struct {
	Address string
	From    net.Addr
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("osc: handler for %s from %v: %v", e.Address, e.From, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
