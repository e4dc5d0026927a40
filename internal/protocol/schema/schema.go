package schema

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// Type is the wire shape of a property value.
type Type uint8

const (
	TypeVoid Type = iota
	TypeBool
	TypeUint8
	TypeInt8
	TypeUint16
	TypeUint32
	TypeInt32
	TypePackedUint
	TypeUTF8
	TypeData
	TypeEUI64
	TypeIPv6
	TypeUint8List
	TypePackedUintList
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeUint8:
		return "uint8"
	case TypeInt8:
		return "int8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeInt32:
		return "int32"
	case TypePackedUint:
		return "packed_uint"
	case TypeUTF8:
		return "utf8"
	case TypeData:
		return "data"
	case TypeEUI64:
		return "eui64"
	case TypeIPv6:
		return "ipv6"
	case TypeUint8List:
		return "uint8_list"
	case TypePackedUintList:
		return "packed_uint_list"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Kind is the Value kind an operator supplies for a Type.
func (t Type) Kind() protocol.Kind {
	switch t {
	case TypeBool:
		return protocol.KindBool
	case TypeInt8, TypeInt32:
		return protocol.KindInt
	case TypeUint8, TypeUint16, TypeUint32, TypePackedUint:
		return protocol.KindUint
	case TypeUTF8:
		return protocol.KindString
	case TypeData, TypeEUI64:
		return protocol.KindData
	case TypeIPv6:
		return protocol.KindAddr
	case TypeUint8List, TypePackedUintList:
		return protocol.KindList
	default:
		return protocol.KindNone
	}
}

// Access flags.
const (
	Get uint8 = 1 << iota
	Set
)

// Entry binds a string key to a property id and its value shape.
type Entry struct {
	Key    string
	Prop   uint32
	Type   Type
	Access uint8
	// Setting marks values remembered and replayed after reinitialization.
	Setting bool
	// Capability gates the replay; zero means always replay.
	Capability uint32
}

func (e Entry) Gettable() bool { return e.Access&Get != 0 }
func (e Entry) Settable() bool { return e.Access&Set != 0 }

// Property keys.
const (
	KeyNCPVersion                     = "NCP:Version"
	KeyNCPState                       = "NCP:State"
	KeyNCPHardwareAddress             = "NCP:HardwareAddress"
	KeyNCPMACAddress                  = "NCP:MACAddress"
	KeyNCPExtendedAddress             = "NCP:ExtendedAddress"
	KeyNCPChannel                     = "NCP:Channel"
	KeyNCPChannelMask                 = "NCP:ChannelMask"
	KeyNCPFrequency                   = "NCP:Frequency"
	KeyNCPTXPower                     = "NCP:TXPower"
	KeyNCPCCAThreshold                = "NCP:CCAThreshold"
	KeyNCPSleepyPollInterval          = "NCP:SleepyPollInterval"
	KeyNCPRSSI                        = "NCP:RSSI"
	KeyNCPCapabilities                = "NCP:Capabilities"
	KeyNCPVendorID                    = "NCP:VendorID"
	KeyInterfaceUp                    = "Interface:Up"
	KeyNetworkName                    = "Network:Name"
	KeyNetworkXPANID                  = "Network:XPANID"
	KeyNetworkPANID                   = "Network:PANID"
	KeyNetworkNodeType                = "Network:NodeType"
	KeyNetworkKey                     = "Network:Key"
	KeyNetworkKeyIndex                = "Network:KeyIndex"
	KeyNetworkIsCommissioned          = "Network:IsCommissioned"
	KeyNetworkRole                    = "Network:Role"
	KeyNetworkPartitionID             = "Network:PartitionId"
	KeyNetworkPSKc                    = "Network:PSKc"
	KeyIPv6LinkLocalAddress           = "IPv6:LinkLocalAddress"
	KeyIPv6MeshLocalAddress           = "IPv6:MeshLocalAddress"
	KeyIPv6MeshLocalPrefix            = "IPv6:MeshLocalPrefix"
	KeyThreadLeaderAddress            = "Thread:Leader:Address"
	KeyThreadLeaderRouterID           = "Thread:Leader:RouterID"
	KeyThreadLeaderWeight             = "Thread:Leader:Weight"
	KeyThreadLeaderLocalWeight        = "Thread:Leader:LocalWeight"
	KeyThreadNetworkData              = "Thread:NetworkData"
	KeyThreadNetworkDataVersion       = "Thread:NetworkDataVersion"
	KeyThreadStableNetworkData        = "Thread:StableNetworkData"
	KeyThreadStableNetworkDataVersion = "Thread:StableNetworkDataVersion"
	KeyThreadDeviceMode               = "Thread:DeviceMode"
	KeyThreadRouterRoleEnabled        = "Thread:RouterRoleEnabled"
	KeyThreadAssistingPorts           = "Thread:AssistingPorts"
	KeyThreadChildTable               = "Thread:ChildTable"
	KeyThreadChildTableAsValMap       = "Thread:ChildTable:AsValMap"
	KeyThreadNeighborTable            = "Thread:NeighborTable"
	KeyThreadNeighborTableAsValMap    = "Thread:NeighborTable:AsValMap"
	KeyMsgBufferCounters              = "OpenThread:MsgBufferCounters"
	KeyMsgBufferCountersAsString      = "OpenThread:MsgBufferCounters:AsString"
	KeyMsgBufferCountersAsValMap      = "OpenThread:MsgBufferCounters:AsValMap"
	KeyMACWhitelistEnabled            = "MAC:Whitelist:Enabled"
	KeyMACWhitelistEntries            = "MAC:Whitelist:Entries"
	KeyDaemonEnabled                  = "Daemon:Enabled"
	KeyDaemonAutoDeepSleep            = "Daemon:AutoDeepSleep"
	KeyDaemonAutoResume               = "Daemon:AutoAssociateAfterReset"
	KeyDaemonAutoFirmwareUpdate       = "Daemon:AutoFirmwareUpdate"
	KeyDaemonTerminateOnFault         = "Daemon:TerminateOnFault"
	KeyDaemonReadyForHostSleep        = "Daemon:ReadyForHostSleep"
	KeyDaemonFaultReason              = "Daemon:FaultReason"
	KeyDriverName                     = "Config:NCP:DriverName"
)

var entries = []Entry{
	{Key: KeyNCPVersion, Prop: spinel.PropNCPVersion, Type: TypeUTF8, Access: Get},
	{Key: KeyNCPVendorID, Prop: spinel.PropVendorID, Type: TypePackedUint, Access: Get},
	{Key: KeyNCPCapabilities, Prop: spinel.PropCaps, Type: TypePackedUintList, Access: Get},
	{Key: KeyNCPHardwareAddress, Prop: spinel.PropHWAddr, Type: TypeEUI64, Access: Get},
	{Key: KeyNCPMACAddress, Prop: spinel.PropMAC154LAddr, Type: TypeEUI64, Access: Get | Set},
	{Key: KeyNCPChannel, Prop: spinel.PropPHYChan, Type: TypeUint8, Access: Get | Set},
	{Key: KeyNCPFrequency, Prop: spinel.PropPHYFreq, Type: TypeInt32, Access: Get},
	{Key: KeyNCPTXPower, Prop: spinel.PropPHYTXPower, Type: TypeInt8, Access: Get | Set, Setting: true},
	{Key: KeyNCPCCAThreshold, Prop: spinel.PropPHYCCAThreshold, Type: TypeInt8, Access: Get | Set, Setting: true},
	{Key: KeyNCPSleepyPollInterval, Prop: spinel.PropMACDataPollPeriod, Type: TypeUint32, Access: Get | Set, Setting: true, Capability: spinel.CapRoleSleepy},
	{Key: KeyNCPRSSI, Prop: spinel.PropPHYRSSI, Type: TypeInt8, Access: Get},
	{Key: KeyNetworkName, Prop: spinel.PropNetNetworkName, Type: TypeUTF8, Access: Get | Set},
	{Key: KeyNetworkXPANID, Prop: spinel.PropNetXPANID, Type: TypeData, Access: Get | Set},
	{Key: KeyNetworkPANID, Prop: spinel.PropMAC154PANID, Type: TypeUint16, Access: Get | Set},
	{Key: KeyNetworkKey, Prop: spinel.PropNetMasterKey, Type: TypeData, Access: Get | Set},
	{Key: KeyNetworkKeyIndex, Prop: spinel.PropNetKeySequenceCounter, Type: TypeUint32, Access: Get | Set},
	{Key: KeyNetworkIsCommissioned, Prop: spinel.PropNetSaved, Type: TypeBool, Access: Get},
	{Key: KeyNetworkRole, Prop: spinel.PropNetRole, Type: TypeUint8, Access: Get | Set},
	{Key: KeyNetworkPartitionID, Prop: spinel.PropNetPartitionID, Type: TypeUint32, Access: Get},
	{Key: KeyNetworkPSKc, Prop: spinel.PropNetPSKc, Type: TypeData, Access: Get | Set},
	{Key: KeyIPv6LinkLocalAddress, Prop: spinel.PropIPv6LLAddr, Type: TypeIPv6, Access: Get},
	{Key: KeyIPv6MeshLocalAddress, Prop: spinel.PropIPv6MLAddr, Type: TypeIPv6, Access: Get},
	{Key: KeyIPv6MeshLocalPrefix, Prop: spinel.PropIPv6MLPrefix, Type: TypeIPv6, Access: Get},
	{Key: KeyThreadLeaderAddress, Prop: spinel.PropThreadLeaderAddr, Type: TypeIPv6, Access: Get},
	{Key: KeyThreadLeaderRouterID, Prop: spinel.PropThreadLeaderRID, Type: TypeUint8, Access: Get},
	{Key: KeyThreadLeaderWeight, Prop: spinel.PropThreadLeaderWeight, Type: TypeUint8, Access: Get},
	{Key: KeyThreadLeaderLocalWeight, Prop: spinel.PropThreadLocalLeaderWeight, Type: TypeUint8, Access: Get},
	{Key: KeyThreadNetworkData, Prop: spinel.PropThreadNetworkData, Type: TypeData, Access: Get},
	{Key: KeyThreadNetworkDataVersion, Prop: spinel.PropThreadNetworkDataVersion, Type: TypeUint8, Access: Get},
	{Key: KeyThreadStableNetworkData, Prop: spinel.PropThreadStableNetworkData, Type: TypeData, Access: Get},
	{Key: KeyThreadStableNetworkDataVersion, Prop: spinel.PropThreadStableNetworkDataVer, Type: TypeUint8, Access: Get},
	{Key: KeyThreadDeviceMode, Prop: spinel.PropThreadMode, Type: TypeUint8, Access: Get | Set},
	{Key: KeyThreadRouterRoleEnabled, Prop: spinel.PropThreadRouterRoleEnabled, Type: TypeBool, Access: Get | Set, Setting: true, Capability: spinel.CapRoleRouter},
	{Key: KeyThreadAssistingPorts, Prop: spinel.PropThreadAssistingPorts, Type: TypeData, Access: Get},
	{Key: KeyMACWhitelistEnabled, Prop: spinel.PropMACWhitelistEnabled, Type: TypeBool, Access: Get | Set},
	{Key: KeyMACWhitelistEntries, Prop: spinel.PropMACWhitelist, Type: TypeData, Access: Get},
}

var (
	byKey  = map[string]Entry{}
	byProp = map[uint32]Entry{}
)

func init() {
	for _, e := range entries {
		byKey[strings.ToLower(e.Key)] = e
		if _, dup := byProp[e.Prop]; !dup {
			byProp[e.Prop] = e
		}
	}
}

// Lookup resolves a key case-insensitively.
func Lookup(key string) (Entry, bool) {
	e, ok := byKey[strings.ToLower(strings.TrimSpace(key))]
	return e, ok
}

// ByProp resolves the key reported for a property notification.
func ByProp(prop uint32) (Entry, bool) {
	e, ok := byProp[prop]
	return e, ok
}

// Keys lists every table-backed key in sorted order.
func Keys() []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	sort.Strings(out)
	return out
}

// ValidationError reports a value that does not fit a property's shape.
type ValidationError struct {
	Key    string
	Prop   uint32
	Reason string
}

func (e ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("schema: prop=%s: %s", spinel.PropName(e.Prop), e.Reason)
	}
	return fmt.Sprintf("schema: key=%s prop=%s: %s", e.Key, spinel.PropName(e.Prop), e.Reason)
}

// Decode converts a property payload into a Value.
func Decode(t Type, data []byte) (protocol.Value, error) {
	d := spinel.NewDecoder(data)
	var v protocol.Value
	switch t {
	case TypeVoid:
		return protocol.Value{}, nil
	case TypeBool:
		v = protocol.Bool(d.Bool())
	case TypeUint8:
		v = protocol.Uint(uint64(d.Uint8()))
	case TypeInt8:
		v = protocol.Int(int64(d.Int8()))
	case TypeUint16:
		v = protocol.Uint(uint64(d.Uint16()))
	case TypeUint32:
		v = protocol.Uint(uint64(d.Uint32()))
	case TypeInt32:
		v = protocol.Int(int64(d.Int32()))
	case TypePackedUint:
		v = protocol.Uint(uint64(d.PackedUint()))
	case TypeUTF8:
		v = protocol.String(d.UTF8())
	case TypeData:
		v = protocol.Data(d.Data())
	case TypeEUI64:
		eui := d.EUI64()
		v = protocol.Data(eui[:])
	case TypeIPv6:
		v = protocol.Addr(d.IPv6())
	case TypeUint8List:
		var list []uint64
		for d.Remaining() > 0 && d.Err() == nil {
			list = append(list, uint64(d.Uint8()))
		}
		v = protocol.UintList(list)
	case TypePackedUintList:
		var list []uint64
		for d.Remaining() > 0 && d.Err() == nil {
			list = append(list, uint64(d.PackedUint()))
		}
		v = protocol.UintList(list)
	default:
		return protocol.Value{}, fmt.Errorf("%w: %s", protocol.ErrValueType, t)
	}
	if err := d.Err(); err != nil {
		return protocol.Value{}, err
	}
	return v, nil
}

// Encode converts a Value into a property payload.
func Encode(t Type, v protocol.Value) ([]byte, error) {
	e := spinel.NewEncoder()
	switch t {
	case TypeVoid:
	case TypeBool:
		b, err := v.AsBool()
		if err != nil {
			return nil, err
		}
		e.Bool(b)
	case TypeUint8, TypeUint16, TypeUint32, TypePackedUint:
		n, err := v.AsUint()
		if err != nil {
			return nil, err
		}
		if err := checkUnsigned(t, n); err != nil {
			return nil, err
		}
		switch t {
		case TypeUint8:
			e.Uint8(uint8(n))
		case TypeUint16:
			e.Uint16(uint16(n))
		case TypeUint32:
			e.Uint32(uint32(n))
		default:
			e.PackedUint(uint32(n))
		}
	case TypeInt8, TypeInt32:
		n, err := v.AsInt()
		if err != nil {
			return nil, err
		}
		if t == TypeInt8 {
			if n < -128 || n > 127 {
				return nil, fmt.Errorf("%w: %d", protocol.ErrValueRange, n)
			}
			e.Int8(int8(n))
		} else {
			if n < -1<<31 || n > 1<<31-1 {
				return nil, fmt.Errorf("%w: %d", protocol.ErrValueRange, n)
			}
			e.Int32(int32(n))
		}
	case TypeUTF8:
		s, err := v.AsString()
		if err != nil {
			s = v.String()
		}
		e.UTF8(s)
	case TypeData:
		b, err := v.AsData()
		if err != nil {
			return nil, err
		}
		e.Data(b)
	case TypeEUI64:
		b, err := v.AsData()
		if err != nil {
			return nil, err
		}
		if len(b) != 8 {
			return nil, fmt.Errorf("%w: eui64 length %d", protocol.ErrValueRange, len(b))
		}
		e.Data(b)
	case TypeIPv6:
		a, err := v.AsAddr()
		if err != nil {
			return nil, err
		}
		if !a.Is6() {
			return nil, fmt.Errorf("%w: not ipv6: %s", protocol.ErrValueType, a)
		}
		e.IPv6(a)
	case TypeUint8List, TypePackedUintList:
		list, err := v.AsList()
		if err != nil {
			return nil, err
		}
		for _, item := range list {
			n, err := item.AsUint()
			if err != nil {
				return nil, err
			}
			if t == TypeUint8List {
				if n > 0xFF {
					return nil, fmt.Errorf("%w: %d", protocol.ErrValueRange, n)
				}
				e.Uint8(uint8(n))
			} else {
				e.PackedUint(uint32(n))
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrValueType, t)
	}
	return e.Bytes(), nil
}

func checkUnsigned(t Type, n uint64) error {
	var limit uint64
	switch t {
	case TypeUint8:
		limit = 0xFF
	case TypeUint16:
		limit = 0xFFFF
	case TypeUint32:
		limit = 0xFFFFFFFF
	default:
		limit = spinel.MaxPackedUint
	}
	if n > limit {
		return fmt.Errorf("%w: %d > %d", protocol.ErrValueRange, n, limit)
	}
	return nil
}

// ValidateSet checks that key is settable and that v encodes for it.
// It returns the entry and the encoded payload.
func ValidateSet(key string, v protocol.Value) (Entry, []byte, error) {
	logs.Debugf("schema.ValidateSet key=%s kind=%s", key, v.Kind())
	e, ok := Lookup(key)
	if !ok {
		logs.Errf("schema.ValidateSet unknown key=%s", key)
		return Entry{}, nil, ValidationError{Key: key, Reason: "unknown key"}
	}
	if !e.Settable() {
		logs.Errf("schema.ValidateSet read-only key=%s", key)
		return e, nil, ValidationError{Key: e.Key, Prop: e.Prop, Reason: "read-only"}
	}
	payload, err := Encode(e.Type, v)
	if err != nil {
		logs.Errf("schema.ValidateSet encode key=%s type=%s err=%v", e.Key, e.Type, err)
		return e, nil, ValidationError{Key: e.Key, Prop: e.Prop, Reason: err.Error()}
	}
	return e, payload, nil
}

// DecodeProp decodes a notification payload for a known property.
func DecodeProp(prop uint32, data []byte) (Entry, protocol.Value, error) {
	e, ok := ByProp(prop)
	if !ok {
		return Entry{}, protocol.Value{}, ValidationError{Prop: prop, Reason: "unknown property"}
	}
	v, err := Decode(e.Type, data)
	if err != nil {
		return e, protocol.Value{}, ValidationError{Key: e.Key, Prop: prop, Reason: err.Error()}
	}
	return e, v, nil
}

// ParseAddr is a convenience for operator input of addresses and prefixes.
func ParseAddr(s string) (netip.Addr, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Addr(), nil
	}
	return netip.ParseAddr(s)
}
