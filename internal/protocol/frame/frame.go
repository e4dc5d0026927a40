package frame

import (
	"errors"
	"fmt"
	"strings"
)

// Reserved bytes of the delimiter-framed variant.
const (
	FlagByte   byte = 0x7E
	EscapeByte byte = 0x7D
	XOnByte    byte = 0x11
	XOffByte   byte = 0x13
	EscapeXor  byte = 0x20
)

// MaxFrameSize bounds a decoded command buffer.
const MaxFrameSize = 1300

var (
	ErrEmptyFrame     = errors.New("frame: empty command buffer")
	ErrFrameTooLarge  = errors.New("frame: command buffer too large")
	ErrUnknownFraming = errors.New("frame: unknown framing")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: MaxFrameSize}
}

func (l Limits) max() int {
	if l.MaxFrameBytes <= 0 {
		return MaxFrameSize
	}
	return l.MaxFrameBytes
}

// EventKind classifies decoder output.
type EventKind int

const (
	// EventFrame carries a checksum-verified command buffer.
	EventFrame EventKind = iota
	// EventLogText carries a checksum-failed run that looks like console text.
	EventLogText
	// EventGarbage reports a checksum-failed run that was dropped.
	EventGarbage
	// EventOverflow reports a frame longer than the limit; bytes up to the next delimiter are dropped.
	EventOverflow
	// EventExtraneous reports a non-delimiter byte where a length-prefixed frame had to start.
	EventExtraneous
	// EventBadLength reports a length prefix outside 1 < n <= limit.
	EventBadLength
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventLogText:
		return "log_text"
	case EventGarbage:
		return "garbage"
	case EventOverflow:
		return "overflow"
	case EventExtraneous:
		return "extraneous"
	case EventBadLength:
		return "bad_length"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one decoder result. Payload is owned by the receiver.
type Event struct {
	Kind    EventKind
	Payload []byte
	// BadIndex is the first byte that failed the text check (EventGarbage).
	BadIndex int
}

// Codec converts between command buffers and wire bytes.
type Codec interface {
	Name() string
	Encode(buf []byte) ([]byte, error)
	// Feed consumes inbound bytes and calls emit for each completed event.
	Feed(p []byte, emit func(Event))
	// Reset drops any partially decoded frame.
	Reset()
}

// Framing names a wire variant.
type Framing string

const (
	FramingHDLC Framing = "hdlc"
	FramingFLEN Framing = "flen"
)

func New(framing Framing, limits Limits) (Codec, error) {
	switch Framing(strings.ToLower(strings.TrimSpace(string(framing)))) {
	case "", FramingHDLC:
		return NewHDLC(limits), nil
	case FramingFLEN:
		return NewFLEN(limits), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFraming, framing)
	}
}

// LooksLikeText reports whether a checksum-failed run is plausibly console
// output: NUL, BEL..CR and 32..127 are accepted. It returns the index of the
// first rejected byte otherwise.
//
// A corrupted binary frame made only of those bytes is misread as text; the
// decoder keeps this behavior and counts such runs separately.
func LooksLikeText(p []byte) (bool, int) {
	for i, c := range p {
		switch {
		case c == 0:
		case c >= 7 && c <= 13:
		case c >= 32 && c <= 127:
		default:
			return false, i
		}
	}
	return true, len(p)
}

func checkSize(buf []byte, limits Limits) error {
	if len(buf) == 0 {
		return ErrEmptyFrame
	}
	if len(buf) > limits.max() {
		return ErrFrameTooLarge
	}
	return nil
}
