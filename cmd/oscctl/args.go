package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chabad360/osckit/osc"
)

// parseArgument turns a command line literal into an argument.
//
// Typed literals are "<tag>:<value>":
//
//	i:42  h:42  f:2.5  d:2.5  s:text  c:x
//	b:deadbeef            blob, hex encoded
//	r:ff8800ff            rgba, hex encoded
//	m:0,144,60,127        midi port, status, data1, data2
//	t:now  t:+250ms  t:<uint64>
//
// T, F, N and I stand alone. Untyped literals become Int32, Float32 or
// String, whichever parses first.
func parseArgument(s string, now time.Time) (osc.Argument, error) {
	switch s {
	case "T":
		return osc.Bool(true), nil
	case "F":
		return osc.Bool(false), nil
	case "N":
		return osc.Nil{}, nil
	case "I":
		return osc.Infinitum{}, nil
	}

	tag, v, typed := strings.Cut(s, ":")
	if !typed || len(tag) != 1 {
		return untyped(s), nil
	}

	switch osc.TypeTag(tag[0]) {
	case osc.TypeInt32:
		n, err := strconv.ParseInt(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("int32 %q: %w", v, err)
		}
		return osc.Int32(n), nil
	case osc.TypeInt64:
		n, err := strconv.ParseInt(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("int64 %q: %w", v, err)
		}
		return osc.Int64(n), nil
	case osc.TypeFloat32:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("float32 %q: %w", v, err)
		}
		return osc.Float32(f), nil
	case osc.TypeFloat64:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("float64 %q: %w", v, err)
		}
		return osc.Float64(f), nil
	case osc.TypeString:
		return osc.String(v), nil
	case osc.TypeChar:
		if len(v) != 1 {
			return nil, fmt.Errorf("char %q: want exactly one byte", v)
		}
		return osc.Char(v[0]), nil
	case osc.TypeBlob:
		b, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("blob %q: %w", v, err)
		}
		return osc.Blob(b), nil
	case osc.TypeRGBA:
		b, err := hex.DecodeString(v)
		if err != nil || len(b) != 4 {
			return nil, fmt.Errorf("rgba %q: want 8 hex digits", v)
		}
		return osc.RGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
	case osc.TypeMIDI:
		parts := strings.Split(v, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("midi %q: want port,status,data1,data2", v)
		}
		var b [4]uint8
		for i, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 0, 8)
			if err != nil {
				return nil, fmt.Errorf("midi %q: %w", v, err)
			}
			b[i] = uint8(n)
		}
		return osc.MIDI{Port: b[0], Status: b[1], Data1: b[2], Data2: b[3]}, nil
	case osc.TypeTimeTag:
		return parseTimetag(v, now)
	}

	return untyped(s), nil
}

func parseTimetag(v string, now time.Time) (osc.Timetag, error) {
	switch {
	case v == "now":
		return osc.NewTimetagFromTime(now), nil
	case v == "immediate":
		return osc.ImmediateTimetag, nil
	case strings.HasPrefix(v, "+"):
		d, err := time.ParseDuration(v[1:])
		if err != nil {
			return 0, fmt.Errorf("timetag %q: %w", v, err)
		}
		return osc.NewTimetagFromTime(now.Add(d)), nil
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("timetag %q: want now, immediate, +<duration> or a number", v)
	}
	return osc.Timetag(n), nil
}

func untyped(s string) osc.Argument {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return osc.Int32(n)
	}
	if f, err := strconv.ParseFloat(s, 32); err == nil {
		return osc.Float32(f)
	}
	return osc.String(s)
}

// buildPacket makes the message for send, wrapped in a bundle due at now+at
// when at is positive.
func buildPacket(address string, literals []string, at time.Duration, now time.Time) (osc.Packet, error) {
	msg := osc.NewMessage(address)
	for i, l := range literals {
		arg, err := parseArgument(l, now)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		msg.Arguments = append(msg.Arguments, arg)
	}
	if _, err := msg.MarshalBinary(); err != nil {
		return nil, err
	}
	if at > 0 {
		return osc.NewBundleWithTime(now.Add(at), msg), nil
	}
	return msg, nil
}

// writePacket prints p, one line per message, indenting bundle contents.
func writePacket(w io.Writer, p osc.Packet, indent string) {
	switch p := p.(type) {
	case *osc.Message:
		fmt.Fprintf(w, "%s%s\n", indent, p)
	case *osc.Bundle:
		if p.Timetag.IsImmediate() {
			fmt.Fprintf(w, "%s#bundle immediate\n", indent)
		} else {
			fmt.Fprintf(w, "%s#bundle %s\n", indent, p.Timetag.Time().UTC().Format(time.RFC3339Nano))
		}
		for _, e := range p.Elements {
			writePacket(w, e, indent+"  ")
		}
	}
}
