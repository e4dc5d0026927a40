package spinel

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/wpanctl/internal/protocol"
)

// Beacon is one MAC_SCAN_BEACON result.
type Beacon struct {
	Channel     uint8
	RSSI        int8
	ExtAddr     [8]byte
	ShortAddr   uint16
	PANID       uint16
	LQI         uint8
	Protocol    uint32
	Flags       uint8
	NetworkName string
	XPANID      []byte
}

// Joinable is carried in bit 0 of Flags.
func (b Beacon) Joinable() bool { return b.Flags&0x01 != 0 }

// ParseBeacon decodes "Cct(ESSC)t(iCUd)".
func ParseBeacon(p []byte) (Beacon, error) {
	d := NewDecoder(p)
	var b Beacon
	b.Channel = d.Uint8()
	b.RSSI = d.Int8()
	mac := d.Struct()
	b.ExtAddr = mac.EUI64()
	b.ShortAddr = mac.Uint16()
	b.PANID = mac.Uint16()
	b.LQI = mac.Uint8()
	net := d.Struct()
	b.Protocol = net.PackedUint()
	b.Flags = net.Uint8()
	b.NetworkName = net.UTF8()
	b.XPANID = net.DataWithLen()
	for _, err := range []error{d.Err(), mac.Err(), net.Err()} {
		if err != nil {
			return Beacon{}, err
		}
	}
	if n := len(b.XPANID); n != 0 && n != 8 {
		return Beacon{}, fmt.Errorf("%w: xpanid length %d", ErrShort, n)
	}
	return b, nil
}

func (b Beacon) ValueMap() protocol.Value {
	return protocol.Map(map[string]protocol.Value{
		"Channel":      protocol.Uint(uint64(b.Channel)),
		"RSSI":         protocol.Int(int64(b.RSSI)),
		"ExtAddress":   protocol.Data(b.ExtAddr[:]),
		"ShortAddr":    protocol.Uint(uint64(b.ShortAddr)),
		"PANID":        protocol.Uint(uint64(b.PANID)),
		"LQI":          protocol.Uint(uint64(b.LQI)),
		"Protocol":     protocol.Uint(uint64(b.Protocol)),
		"NetworkName":  protocol.String(b.NetworkName),
		"XPANID":       protocol.Data(b.XPANID),
		"AllowingJoin": protocol.Bool(b.Joinable()),
	})
}

// EnergyResult is one MAC_ENERGY_SCAN_RESULT ("Cc").
type EnergyResult struct {
	Channel uint8
	MaxRSSI int8
}

func ParseEnergyResult(p []byte) (EnergyResult, error) {
	d := NewDecoder(p)
	r := EnergyResult{Channel: d.Uint8(), MaxRSSI: d.Int8()}
	return r, d.Err()
}

func (r EnergyResult) ValueMap() protocol.Value {
	return protocol.Map(map[string]protocol.Value{
		"Channel": protocol.Uint(uint64(r.Channel)),
		"MaxRssi": protocol.Int(int64(r.MaxRSSI)),
	})
}

// TableKind selects the child or neighbor table.
type TableKind int

const (
	ChildTable TableKind = iota
	NeighborTable
)

func (k TableKind) Prop() uint32 {
	if k == ChildTable {
		return PropThreadChildTable
	}
	return PropThreadNeighborTable
}

// TopologyEntry is one child or neighbor table record.
type TopologyEntry struct {
	Kind               TableKind
	ExtAddr            [8]byte
	RLOC16             uint16
	Timeout            uint32
	Age                uint32
	NetworkDataVersion uint8
	LinkQualityIn      uint8
	AverageRSSI        int8
	LastRSSI           int8
	Mode               uint8
	IsChild            bool
	LinkFrameCounter   uint32
	MLEFrameCounter    uint32
}

func (e TopologyEntry) RxOnWhenIdle() bool      { return e.Mode&ModeRxOnWhenIdle != 0 }
func (e TopologyEntry) SecureDataRequest() bool { return e.Mode&ModeSecureDataRequest != 0 }
func (e TopologyEntry) FullFunction() bool      { return e.Mode&ModeFullFunction != 0 }
func (e TopologyEntry) FullNetworkData() bool   { return e.Mode&ModeFullNetworkData != 0 }

// ParseTopology decodes a sequence of "t(ESLLCCcCc)" child records or
// "t(ESLCcCbLLc)" neighbor records.
func ParseTopology(kind TableKind, p []byte) ([]TopologyEntry, error) {
	d := NewDecoder(p)
	var out []TopologyEntry
	for d.Remaining() > 0 {
		s := d.Struct()
		e := TopologyEntry{Kind: kind}
		e.ExtAddr = s.EUI64()
		e.RLOC16 = s.Uint16()
		if kind == ChildTable {
			e.Timeout = s.Uint32()
			e.Age = s.Uint32()
			e.NetworkDataVersion = s.Uint8()
			e.LinkQualityIn = s.Uint8()
			e.AverageRSSI = s.Int8()
			e.Mode = s.Uint8()
			e.LastRSSI = s.Int8()
			e.IsChild = true
		} else {
			e.Age = s.Uint32()
			e.LinkQualityIn = s.Uint8()
			e.AverageRSSI = s.Int8()
			e.Mode = s.Uint8()
			e.IsChild = s.Bool()
			e.LinkFrameCounter = s.Uint32()
			e.MLEFrameCounter = s.Uint32()
			e.LastRSSI = s.Int8()
		}
		if err := s.Err(); err != nil {
			return out, err
		}
		if err := d.Err(); err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, d.Err()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (e TopologyEntry) String() string {
	ext := strings.ToUpper(hex.EncodeToString(e.ExtAddr[:]))
	if e.Kind == ChildTable {
		return fmt.Sprintf(
			"%s, RLOC16:%04x, NetDataVer:%d, LQIn:%d, AveRssi:%d, LastRssi:%d, Timeout:%d, Age:%d, RxOnIdle:%s, FFD:%s, SecDataReq:%s, FullNetData:%s",
			ext, e.RLOC16, e.NetworkDataVersion, e.LinkQualityIn, e.AverageRSSI, e.LastRSSI, e.Timeout, e.Age,
			yesNo(e.RxOnWhenIdle()), yesNo(e.FullFunction()), yesNo(e.SecureDataRequest()), yesNo(e.FullNetworkData()),
		)
	}
	return fmt.Sprintf(
		"%s, RLOC16:%04x, LQIn:%d, AveRssi:%d, LastRssi:%d, Age:%d, LinkFC:%d, MleFC:%d, IsChild:%s, RxOnIdle:%s, FFD:%s, SecDataReq:%s, FullNetData:%s",
		ext, e.RLOC16, e.LinkQualityIn, e.AverageRSSI, e.LastRSSI, e.Age, e.LinkFrameCounter, e.MLEFrameCounter,
		yesNo(e.IsChild), yesNo(e.RxOnWhenIdle()), yesNo(e.FullFunction()), yesNo(e.SecureDataRequest()), yesNo(e.FullNetworkData()),
	)
}

func (e TopologyEntry) ValueMap() protocol.Value {
	m := map[string]protocol.Value{
		"ExtAddress":        protocol.Uint(binary.BigEndian.Uint64(e.ExtAddr[:])),
		"RLOC16":            protocol.Uint(uint64(e.RLOC16)),
		"LinkQualityIn":     protocol.Uint(uint64(e.LinkQualityIn)),
		"AverageRssi":       protocol.Int(int64(e.AverageRSSI)),
		"LastRssi":          protocol.Int(int64(e.LastRSSI)),
		"Age":               protocol.Uint(uint64(e.Age)),
		"RxOnWhenIdle":      protocol.Bool(e.RxOnWhenIdle()),
		"FullFunction":      protocol.Bool(e.FullFunction()),
		"SecureDataRequest": protocol.Bool(e.SecureDataRequest()),
		"FullNetworkData":   protocol.Bool(e.FullNetworkData()),
	}
	if e.Kind == ChildTable {
		m["Timeout"] = protocol.Uint(uint64(e.Timeout))
		m["NetworkDataVersion"] = protocol.Uint(uint64(e.NetworkDataVersion))
	} else {
		m["LinkFrameCounter"] = protocol.Uint(uint64(e.LinkFrameCounter))
		m["MleFrameCounter"] = protocol.Uint(uint64(e.MLEFrameCounter))
		m["IsChild"] = protocol.Bool(e.IsChild)
	}
	return protocol.Map(m)
}

// MsgBufferCounters is the MSG_BUFFER_COUNTERS reply (16 uint16 values).
type MsgBufferCounters [16]uint16

var msgBufferCounterNames = [16]string{
	"TotalBuffers", "FreeBuffers",
	"6loSendMessages", "6loSendBuffers",
	"6loReassemblyMessages", "6loReassemblyBuffers",
	"Ip6Messages", "Ip6Buffers",
	"MplMessages", "MplBuffers",
	"MleMessages", "MleBuffers",
	"ArpMessages", "ArpBuffers",
	"CoapClientMessages", "CoapClientBuffers",
}

func ParseMsgBufferCounters(p []byte) (MsgBufferCounters, error) {
	d := NewDecoder(p)
	var c MsgBufferCounters
	for i := range c {
		c[i] = d.Uint16()
	}
	return c, d.Err()
}

func (c MsgBufferCounters) StringArray() []string {
	out := make([]string, len(c))
	for i, v := range c {
		out[i] = fmt.Sprintf("m%s = %d", msgBufferCounterNames[i], v)
	}
	return out
}

func (c MsgBufferCounters) String() string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = fmt.Sprintf("%s = %-3d", msgBufferCounterNames[i], v)
	}
	return strings.Join(parts, ", ")
}

func (c MsgBufferCounters) ValueMap() protocol.Value {
	m := make(map[string]protocol.Value, len(c))
	for i, v := range c {
		m[msgBufferCounterNames[i]] = protocol.Uint(uint64(v))
	}
	return protocol.Map(m)
}
