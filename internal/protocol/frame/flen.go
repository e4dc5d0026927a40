package frame

// FLEN is the delimiter plus 16-bit big-endian length framing used on
// transports that are already reliable.
type FLEN struct {
	limits Limits
	state  flenState
	size   int
	buf    []byte
}

type flenState int

const (
	flenWantFlag flenState = iota
	flenWantLenHi
	flenWantLenLo
	flenBody
)

func NewFLEN(limits Limits) *FLEN {
	return &FLEN{limits: limits}
}

func (f *FLEN) Name() string { return string(FramingFLEN) }

func (f *FLEN) Encode(buf []byte) ([]byte, error) {
	if err := checkSize(buf, f.limits); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(buf)+3)
	out = append(out, FlagByte, byte(len(buf)>>8), byte(len(buf)))
	return append(out, buf...), nil
}

func (f *FLEN) Reset() {
	f.state = flenWantFlag
	f.size = 0
	f.buf = nil
}

// Feed reports EventExtraneous for the first stray byte and discards the rest
// of p, since the stream is no longer trustworthy.
func (f *FLEN) Feed(p []byte, emit func(Event)) {
	for i := 0; i < len(p); i++ {
		b := p[i]
		switch f.state {
		case flenWantFlag:
			if b != FlagByte {
				emit(Event{Kind: EventExtraneous, Payload: []byte{b}})
				f.Reset()
				return
			}
			f.state = flenWantLenHi
		case flenWantLenHi:
			f.size = int(b) << 8
			f.state = flenWantLenLo
		case flenWantLenLo:
			f.size |= int(b)
			if f.size <= 1 || f.size > f.limits.max() {
				emit(Event{Kind: EventBadLength})
				f.Reset()
				continue
			}
			f.buf = make([]byte, 0, f.size)
			f.state = flenBody
		case flenBody:
			take := f.size - len(f.buf)
			if rest := len(p) - i; rest < take {
				take = rest
			}
			f.buf = append(f.buf, p[i:i+take]...)
			i += take - 1
			if len(f.buf) == f.size {
				emit(Event{Kind: EventFrame, Payload: f.buf})
				f.Reset()
			}
		}
	}
}
