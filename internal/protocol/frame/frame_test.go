package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/wpanctl/internal/testutil/testlog"
)

func collect(c Codec, chunks ...[]byte) []Event {
	var out []Event
	for _, p := range chunks {
		c.Feed(p, func(ev Event) { out = append(out, ev) })
	}
	return out
}

func TestChecksumKermitCheckValue(t *testing.T) {
	testlog.Start(t)
	if got := Checksum([]byte("123456789")); got != 0x2189 {
		t.Fatalf("check value: got=%#04x want=0x2189", got)
	}
}

func TestHDLCRoundTripEscapesReservedBytes(t *testing.T) {
	testlog.Start(t)
	h := NewHDLC(DefaultLimits())
	payload := []byte{0x81, 0x02, FlagByte, EscapeByte, XOnByte, XOffByte, 0x00}
	wire, err := h.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if wire[0] != FlagByte || wire[len(wire)-1] != FlagByte {
		t.Fatalf("missing delimiters: % x", wire)
	}
	for i, b := range wire[1 : len(wire)-1] {
		if b == FlagByte || b == XOnByte || b == XOffByte {
			t.Fatalf("unescaped reserved byte at %d: % x", i+1, wire)
		}
	}
	evs := collect(NewHDLC(DefaultLimits()), wire)
	if len(evs) != 1 || evs[0].Kind != EventFrame {
		t.Fatalf("expected one frame, got %+v", evs)
	}
	if !bytes.Equal(evs[0].Payload, payload) {
		t.Fatalf("payload mismatch: got=% x want=% x", evs[0].Payload, payload)
	}
}

func TestHDLCDecodeAcrossChunkBoundaries(t *testing.T) {
	testlog.Start(t)
	h := NewHDLC(DefaultLimits())
	a, _ := h.Encode([]byte{0x80, 0x06, 0x00, 0x7E})
	b, _ := h.Encode([]byte{0x81, 0x06, 0x00, 0x00})
	wire := append(append([]byte{}, a...), b...)

	var chunks [][]byte
	for _, c := range wire {
		chunks = append(chunks, []byte{c})
	}
	evs := collect(NewHDLC(DefaultLimits()), chunks...)
	if len(evs) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(evs))
	}
	if evs[0].Payload[3] != 0x7E || evs[1].Payload[0] != 0x81 {
		t.Fatalf("unexpected payloads: %+v", evs)
	}
}

func TestHDLCCorruptedFrameResyncs(t *testing.T) {
	testlog.Start(t)
	h := NewHDLC(DefaultLimits())
	bad, _ := h.Encode([]byte{0x80, 0x06, 0x00, 0xF0})
	bad[3] ^= 0xFF
	good, _ := h.Encode([]byte{0x80, 0x06, 0x00, 0x01})

	evs := collect(NewHDLC(DefaultLimits()), bad, good)
	if len(evs) != 2 {
		t.Fatalf("expected garbage + frame, got %+v", evs)
	}
	if evs[0].Kind != EventGarbage {
		t.Fatalf("expected garbage first, got %s", evs[0].Kind)
	}
	if evs[1].Kind != EventFrame || !bytes.Equal(evs[1].Payload, []byte{0x80, 0x06, 0x00, 0x01}) {
		t.Fatalf("expected good frame second, got %+v", evs[1])
	}
}

func TestHDLCTextBetweenDelimitersIsLogText(t *testing.T) {
	testlog.Start(t)
	evs := collect(NewHDLC(DefaultLimits()), []byte("~booting ncp\r\n~"))
	if len(evs) != 1 || evs[0].Kind != EventLogText {
		t.Fatalf("expected log text, got %+v", evs)
	}
	if string(evs[0].Payload) != "booting ncp\r\n" {
		t.Fatalf("log text mismatch: %q", evs[0].Payload)
	}
}

func TestHDLCShortRunsAreSkipped(t *testing.T) {
	testlog.Start(t)
	evs := collect(NewHDLC(DefaultLimits()), []byte{FlagByte, FlagByte, 0x01, 0x02, FlagByte})
	if len(evs) != 0 {
		t.Fatalf("expected nothing, got %+v", evs)
	}
}

func TestHDLCOverflowDropsUntilDelimiter(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxFrameBytes: 4}
	h := NewHDLC(limits)
	long := append([]byte{FlagByte}, bytes.Repeat([]byte{0x41}, 10)...)
	long = append(long, FlagByte)
	good, _ := h.Encode([]byte{1, 2, 3})

	evs := collect(NewHDLC(limits), long, good)
	if len(evs) != 2 || evs[0].Kind != EventOverflow || evs[1].Kind != EventFrame {
		t.Fatalf("expected overflow then frame, got %+v", evs)
	}
}

func TestEncodeRejectsEmptyAndOversized(t *testing.T) {
	testlog.Start(t)
	for _, c := range []Codec{NewHDLC(DefaultLimits()), NewFLEN(DefaultLimits())} {
		if _, err := c.Encode(nil); !errors.Is(err, ErrEmptyFrame) {
			t.Fatalf("%s: expected ErrEmptyFrame, got %v", c.Name(), err)
		}
		if _, err := c.Encode(make([]byte, MaxFrameSize+1)); !errors.Is(err, ErrFrameTooLarge) {
			t.Fatalf("%s: expected ErrFrameTooLarge, got %v", c.Name(), err)
		}
	}
}

func TestFLENRoundTrip(t *testing.T) {
	testlog.Start(t)
	f := NewFLEN(DefaultLimits())
	payload := []byte{0x81, 0x06, 0x00, 0x00, 0x7E}
	wire, err := f.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(wire[:3], []byte{FlagByte, 0x00, 0x05}) {
		t.Fatalf("header mismatch: % x", wire[:3])
	}
	evs := collect(NewFLEN(DefaultLimits()), wire[:2], wire[2:4], wire[4:])
	if len(evs) != 1 || !bytes.Equal(evs[0].Payload, payload) {
		t.Fatalf("expected payload back, got %+v", evs)
	}
}

func TestFLENExtraneousByteFlushesInput(t *testing.T) {
	testlog.Start(t)
	f := NewFLEN(DefaultLimits())
	good, _ := f.Encode([]byte{1, 2})
	evs := collect(f, append([]byte{0x55}, good...))
	if len(evs) != 1 || evs[0].Kind != EventExtraneous {
		t.Fatalf("expected single extraneous event, got %+v", evs)
	}
	evs = collect(f, good)
	if len(evs) != 1 || evs[0].Kind != EventFrame {
		t.Fatalf("expected recovery on next chunk, got %+v", evs)
	}
}

func TestFLENBadLength(t *testing.T) {
	testlog.Start(t)
	evs := collect(NewFLEN(DefaultLimits()), []byte{FlagByte, 0x00, 0x01})
	if len(evs) != 1 || evs[0].Kind != EventBadLength {
		t.Fatalf("expected bad length, got %+v", evs)
	}
}

func TestNewSelectsFraming(t *testing.T) {
	testlog.Start(t)
	c, err := New("FLEN", DefaultLimits())
	if err != nil || c.Name() != "flen" {
		t.Fatalf("flen: codec=%v err=%v", c, err)
	}
	if _, err := New("slip", DefaultLimits()); !errors.Is(err, ErrUnknownFraming) {
		t.Fatalf("expected ErrUnknownFraming, got %v", err)
	}
}

func TestLineBufferFlushesOnNewlineAndLimit(t *testing.T) {
	testlog.Start(t)
	var lb LineBuffer
	var lines []string
	emit := func(s string) { lines = append(lines, s) }
	lb.Write([]byte("hello\x01 world\r\n"), emit)
	if len(lines) != 1 || lines[0] != "hello world" {
		t.Fatalf("lines=%q", lines)
	}
	lb.Write(bytes.Repeat([]byte{'x'}, MaxLogLine+3), emit)
	if len(lines) != 2 || len(lines[1]) != MaxLogLine {
		t.Fatalf("expected a full-length flush, got %d lines", len(lines))
	}
	if lb.Pending() != "xxx" {
		t.Fatalf("pending=%q", lb.Pending())
	}
}
