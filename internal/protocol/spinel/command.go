package spinel

import (
	"errors"
	"fmt"
)

var (
	ErrNotResponse  = errors.New("spinel: header lacks response flag")
	ErrWrongIID     = errors.New("spinel: unsupported interface id")
	ErrEmptyCommand = errors.New("spinel: empty command buffer")
)

// Header builds a header byte for interface 0 and the given transaction id.
func Header(tid uint8) byte {
	return HeaderFlag | (tid & HeaderTIDMask)
}

func HeaderTID(h byte) uint8 { return h & HeaderTIDMask }
func HeaderIID(h byte) uint8 { return (h & HeaderIIDMask) >> HeaderIIDShift }

// TIDAllocator hands out transaction ids 1..15. Id 0 is reserved for
// unsolicited notifications.
type TIDAllocator struct {
	last uint8
}

func (a *TIDAllocator) Next() uint8 {
	a.last = a.last%15 + 1
	return a.last
}

// Command is one command unit without its header byte. The header is
// assigned when the command goes on the wire.
type Command struct {
	ID      uint32
	Payload []byte
}

// Prop returns the property id for property commands.
func (c Command) Prop() (uint32, bool) {
	switch c.ID {
	case CmdPropValueGet, CmdPropValueSet, CmdPropInsert, CmdPropRemove,
		CmdPropValueIs, CmdPropInserted, CmdPropRemoved:
		prop, _, err := DecodePackedUint(c.Payload)
		return prop, err == nil
	default:
		return 0, false
	}
}

// Value returns the property payload after the property id.
func (c Command) Value() []byte {
	if _, ok := c.Prop(); !ok {
		return nil
	}
	_, n, _ := DecodePackedUint(c.Payload)
	return c.Payload[n:]
}

func (c Command) String() string {
	if prop, ok := c.Prop(); ok {
		return fmt.Sprintf("CMD_%s(%s)", CommandName(c.ID), PropName(prop))
	}
	return "CMD_" + CommandName(c.ID)
}

// Marshal packs header, command id and payload.
func (c Command) Marshal(header byte) []byte {
	out := make([]byte, 0, len(c.Payload)+4)
	out = append(out, header)
	out = AppendPackedUint(out, c.ID)
	return append(out, c.Payload...)
}

// Frame is one decoded inbound command unit.
type Frame struct {
	Header byte
	Command
}

// ParseFrame splits a verified buffer into header, command id and payload.
// Frames without the response flag or for another interface are rejected.
func ParseFrame(buf []byte) (Frame, error) {
	if len(buf) < 2 {
		return Frame{}, ErrEmptyCommand
	}
	h := buf[0]
	if h&HeaderFlag != HeaderFlag {
		return Frame{}, ErrNotResponse
	}
	if HeaderIID(h) != 0 {
		return Frame{}, ErrWrongIID
	}
	id, n, err := DecodePackedUint(buf[1:])
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Header:  h,
		Command: Command{ID: id, Payload: append([]byte(nil), buf[1+n:]...)},
	}, nil
}

func Noop() Command     { return Command{ID: CmdNoop} }
func Reset() Command    { return Command{ID: CmdReset} }
func NetClear() Command { return Command{ID: CmdNetClear} }

func propCommand(cmd, prop uint32, value []byte) Command {
	payload := AppendPackedUint(make([]byte, 0, len(value)+3), prop)
	return Command{ID: cmd, Payload: append(payload, value...)}
}

func PropGet(prop uint32) Command { return propCommand(CmdPropValueGet, prop, nil) }

func PropSet(prop uint32, value []byte) Command {
	return propCommand(CmdPropValueSet, prop, value)
}

func PropInsert(prop uint32, value []byte) Command {
	return propCommand(CmdPropInsert, prop, value)
}

func PropRemove(prop uint32, value []byte) Command {
	return propCommand(CmdPropRemove, prop, value)
}

// Shorthands for the common scalar SETs.

func SetBool(prop uint32, v bool) Command {
	return PropSet(prop, NewEncoder().Bool(v).Bytes())
}

func SetUint8(prop uint32, v uint8) Command {
	return PropSet(prop, NewEncoder().Uint8(v).Bytes())
}

func SetInt8(prop uint32, v int8) Command {
	return PropSet(prop, NewEncoder().Int8(v).Bytes())
}

func SetUint16(prop uint32, v uint16) Command {
	return PropSet(prop, NewEncoder().Uint16(v).Bytes())
}

func SetUint32(prop uint32, v uint32) Command {
	return PropSet(prop, NewEncoder().Uint32(v).Bytes())
}

func SetPackedUint(prop uint32, v uint32) Command {
	return PropSet(prop, NewEncoder().PackedUint(v).Bytes())
}

func SetUTF8(prop uint32, v string) Command {
	return PropSet(prop, NewEncoder().UTF8(v).Bytes())
}

func SetData(prop uint32, v []byte) Command {
	return PropSet(prop, v)
}
