package frame

// HDLC is the byte-stuffed, CRC-checked framing.
type HDLC struct {
	limits   Limits
	buf      []byte
	escaped  bool
	overflow bool
}

func NewHDLC(limits Limits) *HDLC {
	return &HDLC{
		limits: limits,
		buf:    make([]byte, 0, limits.max()+2),
	}
}

func (h *HDLC) Name() string { return string(FramingHDLC) }

func needsEscape(b byte) bool {
	switch b {
	case FlagByte, EscapeByte, XOnByte, XOffByte:
		return true
	default:
		return false
	}
}

func appendEscaped(out []byte, b byte) []byte {
	if needsEscape(b) {
		return append(out, EscapeByte, b^EscapeXor)
	}
	return append(out, b)
}

// Encode returns FLAG, escaped buf, escaped little-endian CRC, FLAG.
func (h *HDLC) Encode(buf []byte) ([]byte, error) {
	if err := checkSize(buf, h.limits); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2*len(buf)+6)
	out = append(out, FlagByte)
	for _, b := range buf {
		out = appendEscaped(out, b)
	}
	crc := Checksum(buf)
	out = appendEscaped(out, byte(crc))
	out = appendEscaped(out, byte(crc>>8))
	out = append(out, FlagByte)
	return out, nil
}

func (h *HDLC) Reset() {
	h.buf = h.buf[:0]
	h.escaped = false
	h.overflow = false
}

func (h *HDLC) Feed(p []byte, emit func(Event)) {
	for _, b := range p {
		if b == FlagByte {
			// An escape followed by the delimiter still terminates the frame.
			h.finish(emit)
			continue
		}
		if h.overflow {
			continue
		}
		if h.escaped {
			h.escaped = false
			b ^= EscapeXor
		} else if b == EscapeByte {
			h.escaped = true
			continue
		}
		if len(h.buf) >= h.limits.max()+2 {
			h.overflow = true
			emit(Event{Kind: EventOverflow})
			continue
		}
		h.buf = append(h.buf, b)
	}
}

func (h *HDLC) finish(emit func(Event)) {
	defer h.Reset()
	if h.overflow {
		return
	}
	n := len(h.buf)
	if n <= 2 {
		return
	}
	body := h.buf[:n-2]
	got := uint16(h.buf[n-2]) | uint16(h.buf[n-1])<<8
	if Checksum(body) == got {
		emit(Event{Kind: EventFrame, Payload: append([]byte(nil), body...)})
		return
	}
	run := append([]byte(nil), h.buf...)
	if ok, idx := LooksLikeText(run); ok {
		emit(Event{Kind: EventLogText, Payload: run})
	} else {
		emit(Event{Kind: EventGarbage, Payload: run, BadIndex: idx})
	}
}
