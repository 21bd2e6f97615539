package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chabad360/osckit/osc"
)

var now = time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)

func TestParseArgument(t *testing.T) {
	tests := []struct {
		in   string
		want osc.Argument
	}{
		{"T", osc.Bool(true)},
		{"F", osc.Bool(false)},
		{"N", osc.Nil{}},
		{"I", osc.Infinitum{}},
		{"i:42", osc.Int32(42)},
		{"i:-0x10", osc.Int32(-16)},
		{"h:8589934592", osc.Int64(1 << 33)},
		{"f:2.5", osc.Float32(2.5)},
		{"d:0.125", osc.Float64(0.125)},
		{"s:hello world", osc.String("hello world")},
		{"s:", osc.String("")},
		{"s:a:b", osc.String("a:b")},
		{"c:x", osc.Char('x')},
		{"b:deadbeef", osc.Blob{0xde, 0xad, 0xbe, 0xef}},
		{"b:", osc.Blob{}},
		{"r:ff8800ff", osc.RGBA{R: 0xff, G: 0x88, B: 0x00, A: 0xff}},
		{"m:0,0x90,60,127", osc.MIDI{Port: 0, Status: 0x90, Data1: 60, Data2: 127}},
		{"t:immediate", osc.ImmediateTimetag},
		{"t:now", osc.NewTimetagFromTime(now)},
		{"t:+1s", osc.NewTimetagFromTime(now.Add(time.Second))},
		{"t:42", osc.Timetag(42)},
		{"7", osc.Int32(7)},
		{"-3", osc.Int32(-3)},
		{"1.5", osc.Float32(1.5)},
		{"text", osc.String("text")},
		{"4294967296", osc.Float32(4294967296)},
		{"x:unknown", osc.String("x:unknown")},
		{"http://host", osc.String("http://host")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseArgument(tt.in, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgument_Errors(t *testing.T) {
	for _, in := range []string{
		"i:nope", "i:4294967296", "h:1.5", "f:abc", "d:", "c:", "c:xy",
		"b:zz", "b:abc", "r:ff", "m:1,2,3", "m:1,2,3,256", "t:later", "t:+soon",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := parseArgument(in, now)
			assert.Error(t, err)
		})
	}
}

func TestBuildPacket(t *testing.T) {
	p, err := buildPacket("/synth/freq", []string{"f:440", "T"}, 0, now)
	require.NoError(t, err)
	assert.True(t, osc.NewMessage("/synth/freq", osc.Float32(440), osc.Bool(true)).Equals(p.(*osc.Message)))

	p, err = buildPacket("/synth/gate", nil, 500*time.Millisecond, now)
	require.NoError(t, err)
	b := p.(*osc.Bundle)
	assert.Equal(t, osc.NewTimetagFromTime(now.Add(500*time.Millisecond)), b.Timetag)
	require.Len(t, b.Elements, 1)

	_, err = buildPacket("/a", []string{"i:1", "i:x"}, 0, now)
	assert.ErrorContains(t, err, "argument 2")

	_, err = buildPacket("relative", nil, 0, now)
	assert.Error(t, err)
}

func TestWritePacket(t *testing.T) {
	var buf bytes.Buffer
	p := &osc.Bundle{
		Timetag: osc.NewTimetagFromTime(now),
		Elements: []osc.Packet{
			osc.NewMessage("/a", osc.Int32(1)),
			osc.NewBundle(osc.NewMessage("/b")),
		},
	}
	writePacket(&buf, p, "")
	assert.Equal(t, "#bundle 2030-05-06T07:08:09Z\n"+
		"  /a ,i 1\n"+
		"  #bundle immediate\n"+
		"    /b ,\n", buf.String())
}
