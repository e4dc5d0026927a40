package ncp

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"

	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

const (
	xpanidLen     = 8
	networkKeyLen = 16
	// defaultChannelMask covers the 2.4 GHz channels 11-26.
	defaultChannelMask uint32 = 0x07FFF800
	panidUnset         uint16 = 0xFFFF
)

// CommissionerPort is the assisting port PermitJoin opens when the caller
// names none.
const CommissionerPort uint16 = 5684

// NetworkOptions parameterize Join and Form. Zero fields are left to the
// NCP (Join) or generated (Form).
type NetworkOptions struct {
	Name            string
	NodeType        NodeType
	Channel         uint8
	ChannelMask     uint32
	PANID           *uint16
	XPANID          []byte
	Key             []byte
	KeyIndex        *uint32
	MeshLocalPrefix netip.Addr
}

// ScanOptions parameterize network and energy scans.
type ScanOptions struct {
	ChannelMask uint32
	// Period is the per-channel dwell in milliseconds.
	Period uint16
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	for {
		if _, err := rand.Read(b); err != nil {
			panic(err)
		}
		for _, c := range b {
			if c != 0 {
				return b
			}
		}
	}
}

// allZero reports whether b is empty or holds only zero bytes. NCPs
// report an unset XPAN id or key that way.
func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func randomPANID() uint16 {
	for {
		p := binary.BigEndian.Uint16(randomBytes(2))
		if p != panidUnset {
			return p
		}
	}
}

func randomIndex(n int) int {
	return int(binary.BigEndian.Uint32(randomBytes(4)) % uint32(n))
}

// meshLocalPrefixFor derives an fd00::/8 ULA prefix from an XPAN id.
func meshLocalPrefixFor(xpanid []byte) netip.Addr {
	var a [16]byte
	a[0] = 0xfd
	copy(a[1:6], xpanid)
	return netip.AddrFrom16(a)
}

// pickChannel chooses a supported channel that mask allows.
func pickChannel(supported []uint8, mask uint32) (uint8, protocol.Status) {
	if mask == 0 {
		mask = defaultChannelMask
	}
	var candidates []uint8
	for _, ch := range supported {
		if ch < 32 && mask&(1<<ch) != 0 {
			candidates = append(candidates, ch)
		}
	}
	if len(supported) == 0 {
		for ch := uint8(0); ch < 32; ch++ {
			if mask&(1<<ch) != 0 {
				candidates = append(candidates, ch)
			}
		}
	}
	if len(candidates) == 0 {
		return 0, protocol.StatusInvalidArgument
	}
	return candidates[randomIndex(len(candidates))], protocol.StatusOk
}

func channelSupported(supported []uint8, ch uint8) bool {
	if len(supported) == 0 {
		return true
	}
	for _, c := range supported {
		if c == ch {
			return true
		}
	}
	return false
}

// nodeTypeSteps configures the Thread role the node will take.
func nodeTypeSteps(i *Instance, t NodeType) ([]step, protocol.Status) {
	routerCap := i.caps[spinel.CapRoleRouter]
	switch t {
	case NodeUnknown:
		return nil, protocol.StatusOk
	case NodeRouter:
		if !routerCap {
			return nil, protocol.StatusInvalidArgument
		}
		return []step{must(spinel.SetBool(spinel.PropThreadRouterRoleEnabled, true))}, protocol.StatusOk
	case NodeEndDevice:
		var steps []step
		if routerCap {
			steps = append(steps, must(spinel.SetBool(spinel.PropThreadRouterRoleEnabled, false)))
		}
		mode := spinel.ModeRxOnWhenIdle | spinel.ModeSecureDataRequest | spinel.ModeFullFunction | spinel.ModeFullNetworkData
		return append(steps, must(spinel.SetUint8(spinel.PropThreadMode, mode))), protocol.StatusOk
	case NodeSleepyEndDevice:
		if !i.caps[spinel.CapRoleSleepy] {
			return nil, protocol.StatusInvalidArgument
		}
		var steps []step
		if routerCap {
			steps = append(steps, must(spinel.SetBool(spinel.PropThreadRouterRoleEnabled, false)))
		}
		mode := spinel.ModeSecureDataRequest | spinel.ModeFullNetworkData
		return append(steps, must(spinel.SetUint8(spinel.PropThreadMode, mode))), protocol.StatusOk
	case NodeLurker:
		return nil, protocol.StatusFeatureNotSupported
	default:
		return nil, protocol.StatusInvalidArgument
	}
}

func setPrefix(prefix netip.Addr) step {
	return must(spinel.PropSet(spinel.PropIPv6MLPrefix,
		spinel.NewEncoder().IPv6(prefix).Uint8(64).Bytes()))
}
