package osc

import (
	"encoding"
	"fmt"
)

const (
	// MaxPacketSize is the largest datagram payload the server reads and the
	// client sends (the IPv4 UDP payload limit).
	MaxPacketSize = 65507

	// DefaultMaxBundleDepth bounds bundle-in-bundle nesting when parsing.
	DefaultMaxBundleDepth = 8
)

// Packet is the interface for Message and Bundle. No other type implements it.
type Packet interface {
	encoding.BinaryMarshaler
	AppendBinary(b []byte) ([]byte, error)
	packet()
}

// AppendPacket appends the encoding of p to b.
func AppendPacket(b []byte, p Packet) ([]byte, error) {
	switch p := p.(type) {
	case *Message:
		return p.AppendBinary(b)
	case *Bundle:
		return p.AppendBinary(b)
	default:
		return b, fmt.Errorf("osc: unsupported packet type %T", p)
	}
}

// ParsePacket parses the given data into a Message or a Bundle, allowing up to
// DefaultMaxBundleDepth levels of nested bundles.
func ParsePacket(data []byte) (Packet, error) {
	return parsePacket(data, 1, DefaultMaxBundleDepth)
}

// ParsePacketDepth is ParsePacket with a custom bundle nesting limit.
// A maxDepth below 1 selects DefaultMaxBundleDepth.
func ParsePacketDepth(data []byte, maxDepth int) (Packet, error) {
	if maxDepth < 1 {
		maxDepth = DefaultMaxBundleDepth
	}
	return parsePacket(data, 1, maxDepth)
}

// parsePacket dispatches on the first byte: '/' starts a message, '#' a bundle.
func parsePacket(data []byte, depth, maxDepth int) (Packet, error) {
	if len(data) == 0 {
		return nil, &PacketStartError{newParseError(data, 0, "empty packet")}
	}

	var (
		p   Packet
		err error
	)
	switch data[0] {
	case '/':
		p, err = parseMessage(data)
	case '#':
		p, err = parseBundle(data, depth, maxDepth)
	default:
		return nil, &PacketStartError{newParseError(data, 0, "expected '/' or \"#bundle\"")}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
