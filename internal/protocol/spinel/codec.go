package spinel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrShort        = errors.New("spinel: short buffer")
	ErrPackedUint   = errors.New("spinel: malformed packed uint")
	ErrUnterminated = errors.New("spinel: unterminated string")
	ErrStructLength = errors.New("spinel: struct length exceeds buffer")
)

// MaxPackedUint is the largest value the packed encoding carries (3 groups).
const MaxPackedUint = 1<<21 - 1

// Encoder appends little-endian Spinel datatypes to a buffer.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{buf: make([]byte, 0, 32)} }

func (e *Encoder) Bytes() []byte { return e.buf }
func (e *Encoder) Len() int      { return len(e.buf) }

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

func (e *Encoder) Uint8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) Int8(v int8) *Encoder {
	e.buf = append(e.buf, byte(v))
	return e
}

func (e *Encoder) Uint16(v uint16) *Encoder {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return e
}

func (e *Encoder) Int16(v int16) *Encoder { return e.Uint16(uint16(v)) }

func (e *Encoder) Uint32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

func (e *Encoder) Int32(v int32) *Encoder { return e.Uint32(uint32(v)) }

// PackedUint appends v in 7-bit groups, least significant first.
func (e *Encoder) PackedUint(v uint32) *Encoder {
	e.buf = AppendPackedUint(e.buf, v)
	return e
}

// UTF8 appends s followed by a NUL terminator.
func (e *Encoder) UTF8(s string) *Encoder {
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	return e
}

// Data appends raw bytes; it must be the last field of its container.
func (e *Encoder) Data(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// DataWithLen appends a uint16 length followed by b.
func (e *Encoder) DataWithLen(b []byte) *Encoder {
	e.Uint16(uint16(len(b)))
	e.buf = append(e.buf, b...)
	return e
}

func (e *Encoder) EUI64(v [8]byte) *Encoder {
	e.buf = append(e.buf, v[:]...)
	return e
}

func (e *Encoder) EUI48(v [6]byte) *Encoder {
	e.buf = append(e.buf, v[:]...)
	return e
}

func (e *Encoder) IPv6(a netip.Addr) *Encoder {
	b := a.As16()
	e.buf = append(e.buf, b[:]...)
	return e
}

// Struct appends a uint16-length-prefixed group built by fill.
func (e *Encoder) Struct(fill func(*Encoder)) *Encoder {
	inner := NewEncoder()
	fill(inner)
	return e.DataWithLen(inner.buf)
}

func AppendPackedUint(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// DecodePackedUint returns the value and the number of bytes consumed.
func DecodePackedUint(p []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < len(p) && i < 4; i++ {
		v |= uint32(p[i]&0x7F) << (7 * i)
		if p[i]&0x80 == 0 {
			if v > MaxPackedUint {
				return 0, 0, ErrPackedUint
			}
			return v, i + 1, nil
		}
	}
	if len(p) < 4 {
		return 0, 0, ErrShort
	}
	return 0, 0, ErrPackedUint
}

// Decoder reads Spinel datatypes from a buffer. The first failure sticks;
// later reads return zero values and Err reports it.
type Decoder struct {
	p   []byte
	off int
	err error
}

func NewDecoder(p []byte) *Decoder { return &Decoder{p: p} }

func (d *Decoder) Err() error     { return d.err }
func (d *Decoder) Remaining() int { return len(d.p) - d.off }
func (d *Decoder) Offset() int    { return d.off }

func (d *Decoder) fail(err error, what string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s at offset %d", err, what, d.off)
	}
}

func (d *Decoder) take(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if d.Remaining() < n {
		d.fail(ErrShort, what)
		return nil
	}
	out := d.p[d.off : d.off+n]
	d.off += n
	return out
}

func (d *Decoder) Bool() bool {
	b := d.take(1, "bool")
	return b != nil && b[0] != 0
}

func (d *Decoder) Uint8() uint8 {
	if b := d.take(1, "uint8"); b != nil {
		return b[0]
	}
	return 0
}

func (d *Decoder) Int8() int8 { return int8(d.Uint8()) }

func (d *Decoder) Uint16() uint16 {
	if b := d.take(2, "uint16"); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *Decoder) Int16() int16 { return int16(d.Uint16()) }

func (d *Decoder) Uint32() uint32 {
	if b := d.take(4, "uint32"); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *Decoder) Int32() int32 { return int32(d.Uint32()) }

func (d *Decoder) PackedUint() uint32 {
	if d.err != nil {
		return 0
	}
	v, n, err := DecodePackedUint(d.p[d.off:])
	if err != nil {
		d.fail(err, "packed uint")
		return 0
	}
	d.off += n
	return v
}

func (d *Decoder) UTF8() string {
	if d.err != nil {
		return ""
	}
	for i := d.off; i < len(d.p); i++ {
		if d.p[i] == 0 {
			s := string(d.p[d.off:i])
			d.off = i + 1
			return s
		}
	}
	d.fail(ErrUnterminated, "utf8")
	return ""
}

// Data consumes everything that is left.
func (d *Decoder) Data() []byte {
	if d.err != nil {
		return nil
	}
	out := append([]byte(nil), d.p[d.off:]...)
	d.off = len(d.p)
	return out
}

func (d *Decoder) DataWithLen() []byte {
	n := int(d.Uint16())
	return append([]byte(nil), d.take(n, "data")...)
}

func (d *Decoder) EUI64() [8]byte {
	var out [8]byte
	copy(out[:], d.take(8, "eui64"))
	return out
}

func (d *Decoder) EUI48() [6]byte {
	var out [6]byte
	copy(out[:], d.take(6, "eui48"))
	return out
}

func (d *Decoder) IPv6() netip.Addr {
	b := d.take(16, "ipv6")
	if b == nil {
		return netip.Addr{}
	}
	return netip.AddrFrom16([16]byte(b))
}

// Struct returns a decoder limited to the next length-prefixed group.
func (d *Decoder) Struct() *Decoder {
	n := int(d.Uint16())
	if d.err != nil {
		return &Decoder{err: d.err}
	}
	if n > d.Remaining() {
		d.fail(ErrStructLength, "struct")
		return &Decoder{err: d.err}
	}
	return &Decoder{p: d.take(n, "struct")}
}
