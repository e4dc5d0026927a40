package ncp

import (
	"net/netip"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

const interfaceTypeThread = 3

// mirror updates the driver's cached view from a PROP_VALUE_IS.
func (i *Instance) mirror(ev Event) {
	if !ev.HasProp {
		return
	}
	d := spinel.NewDecoder(ev.Value)

	switch ev.Prop {
	case spinel.PropLastStatus:
		return

	case spinel.PropStreamDebug:
		i.logLine.Write(ev.Value, i.ncpLog)
		return

	case spinel.PropInterfaceType:
		if t := d.PackedUint(); d.Err() == nil && t != interfaceTypeThread {
			logs.Errf("ncp.Instance.mirror NCP is using unsupported protocol type (%d)", t)
			i.fault("unsupported protocol type")
			return
		}

	case spinel.PropProtocolVersion:
		major, minor := d.PackedUint(), d.PackedUint()
		if d.Err() != nil {
			break
		}
		if major != spinel.ProtocolVersionMajor {
			logs.Errf("ncp.Instance.mirror protocol version mismatch ncp=%d.%d driver=%d.%d",
				major, minor, spinel.ProtocolVersionMajor, spinel.ProtocolVersionMinor)
			i.fault("protocol version mismatch")
			return
		}
		if minor != spinel.ProtocolVersionMinor {
			logs.Warnf("ncp.Instance.mirror protocol minor version differs ncp=%d.%d driver=%d.%d",
				major, minor, spinel.ProtocolVersionMajor, spinel.ProtocolVersionMinor)
		}

	case spinel.PropCaps:
		caps := map[uint32]bool{}
		for d.Remaining() > 0 {
			c := d.PackedUint()
			if d.Err() != nil {
				break
			}
			caps[c] = true
		}
		i.caps = caps

	case spinel.PropNCPVersion:
		i.ncpVersion = d.UTF8()

	case spinel.PropNetRole:
		if role := d.Uint8(); d.Err() == nil {
			i.handleRole(role)
		}

	case spinel.PropNetStackUp:
		up := d.Bool()
		if d.Err() != nil {
			break
		}
		if up {
			if !i.state.JoiningOrJoined() {
				i.changeState(Associating)
			}
		} else if !i.state.Joining() {
			i.changeState(Offline)
		}

	case spinel.PropNetIfUp:
		if up := d.Bool(); d.Err() == nil && !up && i.state.InterfaceUp() {
			i.changeState(Offline)
		}

	case spinel.PropNetMasterKey:
		i.networkKey = append([]byte(nil), ev.Value...)

	case spinel.PropNetKeySequenceCounter:
		if idx := d.Uint32(); d.Err() == nil {
			i.keyIndex = idx
		}

	case spinel.PropNetXPANID:
		i.xpanid = append([]byte(nil), ev.Value...)

	case spinel.PropMAC154PANID:
		if panid := d.Uint16(); d.Err() == nil {
			i.panid = panid
		}

	case spinel.PropPHYChanSupported:
		i.channels = append([]uint8(nil), ev.Value...)

	case spinel.PropIPv6MLPrefix:
		if p, ok := prefixFromBytes(ev.Value); ok {
			i.mlPrefix = p
			i.setProperty(schema.KeyIPv6MeshLocalPrefix, protocol.Addr(p))
		}
		return

	case spinel.PropIPv6MLAddr:
		if p, ok := prefixFromBytes(ev.Value); ok && !i.mlPrefix.IsValid() {
			i.mlPrefix = p
			i.setProperty(schema.KeyIPv6MeshLocalPrefix, protocol.Addr(p))
		}

	case spinel.PropThreadChildTable:
		logs.Debugf("ncp.Instance.mirror child table bytes=%d", len(ev.Value))
	}

	if e, ok := schema.ByProp(ev.Prop); ok {
		v, err := schema.Decode(e.Type, ev.Value)
		if err != nil {
			logs.Debugf("ncp.Instance.mirror decode key=%s err=%v", e.Key, err)
			return
		}
		i.setProperty(e.Key, v)
	}
}

// mirrorTable invalidates cached table values on INSERTED/REMOVED.
func (i *Instance) mirrorTable(ev Event) {
	if !ev.HasProp {
		return
	}
	if e, ok := schema.ByProp(ev.Prop); ok {
		delete(i.props, e.Key)
	}
}

func (i *Instance) handleRole(role uint8) {
	logs.Infof("ncp.Instance [-NCP-] net role %s (%d)", roleName(role), role)
	if i.state.JoiningOrJoined() && role != spinel.RoleDetached {
		i.changeState(Associated)
	}
	switch role {
	case spinel.RoleChild:
		i.setNodeType(NodeEndDevice)
	case spinel.RoleRouter:
		i.setNodeType(NodeRouter)
	case spinel.RoleLeader:
		i.setNodeType(NodeLeader)
	case spinel.RoleDetached:
		if i.state.Associated() {
			i.changeState(Isolated)
		}
	}
}

func roleName(role uint8) string {
	switch role {
	case spinel.RoleDetached:
		return "detached"
	case spinel.RoleChild:
		return "child"
	case spinel.RoleRouter:
		return "router"
	case spinel.RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// prefixFromBytes reads the leading /64 of an address or prefix payload.
func prefixFromBytes(b []byte) (netip.Addr, bool) {
	if len(b) < 8 {
		return netip.Addr{}, false
	}
	var a [16]byte
	copy(a[:8], b[:8])
	nonzero := false
	for _, c := range a[:8] {
		if c != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		return netip.Addr{}, false
	}
	return netip.AddrFrom16(a), true
}
