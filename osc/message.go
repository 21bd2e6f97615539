package osc

import (
	"bytes"
	"fmt"
	"strings"
)

// Message represents a single OSC message. An OSC message consists of an OSC
// address pattern and zero or more arguments.
type Message struct {
	Address   string
	Arguments []Argument
}

// Verify that Messages implements the Packet interface.
var _ Packet = (*Message)(nil)

func (*Message) packet() {}

// NewMessage returns a new Message. The address parameter is the OSC address.
func NewMessage(addr string, args ...Argument) *Message {
	return &Message{Address: addr, Arguments: args}
}

// Append converts the given values with ToArgument and appends them to the
// arguments list. Nothing is appended if any value is unsupported.
func (m *Message) Append(args ...interface{}) error {
	converted := make([]Argument, 0, len(args))
	for _, a := range args {
		arg, err := ToArgument(a)
		if err != nil {
			return err
		}
		converted = append(converted, arg)
	}
	m.Arguments = append(m.Arguments, converted...)
	return nil
}

// Clear clears the OSC address and all arguments.
func (m *Message) Clear() {
	m.Address = ""
	m.Arguments = m.Arguments[:0]
}

// Equals returns true if the given OSC Message is equal to m: same address,
// same type tags and same argument values.
func (m *Message) Equals(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Address != o.Address || len(m.Arguments) != len(o.Arguments) {
		return false
	}
	for i := range m.Arguments {
		if !argEqual(m.Arguments[i], o.Arguments[i]) {
			return false
		}
	}
	return true
}

// argEqual compares two arguments. Blob is the only non-comparable Argument.
func argEqual(a, b Argument) bool {
	if ab, ok := a.(Blob); ok {
		bb, ok := b.(Blob)
		return ok && bytes.Equal(ab, bb)
	}
	return a == b
}

// Match returns true, if the OSC address pattern of the OSC Message matches the given
// address. The match is case sensitive!
func (m *Message) Match(addr string) bool {
	ok, err := MatchAddress(m.Address, addr)
	return err == nil && ok
}

// TypeTags returns the type tag string, including the leading ','.
func (m *Message) TypeTags() string {
	return GetTypeTag(m.Arguments)
}

// CountArguments returns the number of arguments.
func (m *Message) CountArguments() int {
	return len(m.Arguments)
}

// String implements the fmt.Stringer interface.
func (m *Message) String() string {
	if m == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.Address)
	sb.WriteByte(' ')
	sb.WriteString(m.TypeTags())

	for _, arg := range m.Arguments {
		switch arg := arg.(type) {
		case Timetag:
			fmt.Fprintf(&sb, " %d", arg.TimeTag())
		default:
			fmt.Fprintf(&sb, " %v", arg)
		}
	}

	return sb.String()
}

// MarshalBinary implements the encoding.BinaryMarshaler interface. The byte buffer
// has the following format:
// 1. OSC Address Pattern
// 2. OSC Type Tag String
// 3. OSC Arguments
func (m *Message) MarshalBinary() ([]byte, error) {
	return m.AppendBinary(nil)
}

// AppendBinary appends the encoded message to b.
func (m *Message) AppendBinary(b []byte) ([]byte, error) {
	if err := validAddress(m.Address); err != nil {
		return b, err
	}

	for i, arg := range m.Arguments {
		if arg == nil {
			return b, fmt.Errorf("osc: argument %d of %s is nil, use Nil{}", i, m.Address)
		}
		if s, ok := arg.(String); ok && strings.IndexByte(string(s), 0) >= 0 {
			return b, fmt.Errorf("osc: argument %d of %s contains a NUL byte", i, m.Address)
		}
	}

	b = appendPaddedString(b, m.Address)
	b = appendPaddedString(b, m.TypeTags())
	for _, arg := range m.Arguments {
		b = arg.appendBinary(b)
	}

	return b, nil
}

// NewMessageFromData parses a single message.
func NewMessageFromData(data []byte) (*Message, error) {
	m := &Message{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler. On error m is left untouched.
func (m *Message) UnmarshalBinary(data []byte) error {
	msg, err := parseMessage(data)
	if err != nil {
		return err
	}
	*m = *msg
	return nil
}

// parseMessage decodes the address, the type tag string and then every argument
// in order. Any failure rejects the whole message.
func parseMessage(data []byte) (*Message, error) {
	if len(data) == 0 || data[0] != '/' {
		return nil, &MessageStartError{newParseError(data, 0, "address must start with '/'")}
	}

	addr, off, err := readPaddedString(data, 0)
	if err != nil {
		return nil, &MessageStartError{newParseError(data, 0, "address: %v", err)}
	}

	msg := &Message{Address: addr}

	// Messages from very old implementations may end right after the address.
	if off == len(data) {
		return msg, nil
	}

	if data[off] != ',' {
		return nil, &MessageStartError{newParseError(data, off, "type tag string must start with ','")}
	}
	tags, off, err := readPaddedString(data, off)
	if err != nil {
		return nil, &MessageStartError{newParseError(data, off, "type tag string: %v", err)}
	}

	tags = tags[1:]
	if len(tags) > 0 {
		msg.Arguments = make([]Argument, 0, len(tags))
	}
	for i := 0; i < len(tags); i++ {
		var arg Argument
		arg, off, err = decodeArgument(TypeTag(tags[i]), data, off)
		if err != nil {
			if ae, ok := err.(*InvalidArgumentError); ok {
				ae.Index = i
			}
			return nil, err
		}
		msg.Arguments = append(msg.Arguments, arg)
	}

	if off != len(data) {
		pe := newParseError(data, off, "%d trailing bytes after arguments", len(data)-off)
		return nil, &pe
	}

	return msg, nil
}
