package ncp

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// DriverName is reported through Config:NCP:DriverName.
const DriverName = "spinel"

// setting is a property value replayed after every initialization.
type setting struct {
	capability uint32
	entry      schema.Entry
	value      protocol.Value
}

func (s setting) command() (spinel.Command, error) {
	payload, err := schema.Encode(s.entry.Type, s.value)
	if err != nil {
		return spinel.Command{}, fmt.Errorf("setting %s: %w", s.entry.Key, err)
	}
	return spinel.PropSet(s.entry.Prop, payload), nil
}

// localProperty answers the keys owned by the driver itself.
func (i *Instance) localProperty(key string) (protocol.Value, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case strings.ToLower(schema.KeyNCPState):
		return protocol.String(i.state.String()), true
	case strings.ToLower(schema.KeyDaemonEnabled):
		return protocol.Bool(i.enabled), true
	case strings.ToLower(schema.KeyDaemonAutoDeepSleep):
		return protocol.Bool(i.autoDeepSleep), true
	case strings.ToLower(schema.KeyDaemonAutoResume):
		return protocol.Bool(i.autoResume), true
	case strings.ToLower(schema.KeyDaemonAutoFirmwareUpdate):
		return protocol.Bool(i.autoUpdateFirmware), true
	case strings.ToLower(schema.KeyDaemonTerminateOnFault):
		return protocol.Bool(i.terminateOnFault), true
	case strings.ToLower(schema.KeyDaemonReadyForHostSleep):
		return protocol.Bool(!i.wasBusy), true
	case strings.ToLower(schema.KeyNetworkNodeType):
		return protocol.String(i.nodeType.String()), true
	case strings.ToLower(schema.KeyDriverName):
		return protocol.String(DriverName), true
	case strings.ToLower(schema.KeyNCPCapabilities):
		caps := make([]uint64, 0, len(i.caps))
		for c := range i.caps {
			caps = append(caps, uint64(c))
		}
		slices.Sort(caps)
		return protocol.UintList(caps), true
	case strings.ToLower(schema.KeyNCPChannelMask):
		var mask uint64
		for _, ch := range i.channels {
			if ch < 32 {
				mask |= 1 << ch
			}
		}
		return protocol.Uint(mask), true
	}
	return protocol.Value{}, false
}

// setLocalProperty handles writes to driver-owned keys. handled is false
// for keys that belong to the NCP.
func (i *Instance) setLocalProperty(key string, v protocol.Value) (status protocol.Status, handled bool) {
	var target *bool
	switch strings.ToLower(strings.TrimSpace(key)) {
	case strings.ToLower(schema.KeyDaemonEnabled):
		b, err := v.AsBool()
		if err != nil {
			return protocol.StatusInvalidArgument, true
		}
		i.setEnabled(b)
		return protocol.StatusOk, true
	case strings.ToLower(schema.KeyDaemonAutoDeepSleep):
		target = &i.autoDeepSleep
	case strings.ToLower(schema.KeyDaemonAutoResume):
		target = &i.autoResume
	case strings.ToLower(schema.KeyDaemonAutoFirmwareUpdate):
		target = &i.autoUpdateFirmware
	case strings.ToLower(schema.KeyDaemonTerminateOnFault):
		target = &i.terminateOnFault
	case strings.ToLower(schema.KeyNCPState), strings.ToLower(schema.KeyDaemonReadyForHostSleep),
		strings.ToLower(schema.KeyDriverName), strings.ToLower(schema.KeyNCPCapabilities),
		strings.ToLower(schema.KeyNCPChannelMask):
		return protocol.StatusInvalidArgument, true
	default:
		return protocol.StatusOk, false
	}
	b, err := v.AsBool()
	if err != nil {
		return protocol.StatusInvalidArgument, true
	}
	if *target != b {
		*target = b
		i.gen++
	}
	if e, ok := schema.Lookup(key); ok {
		key = e.Key
	}
	for _, l := range i.listeners {
		if l.PropertyChanged != nil {
			l.PropertyChanged(key, protocol.Bool(b))
		}
	}
	return protocol.StatusOk, true
}

// setEnabled flips the driver-level enable. Enabling a faulted driver
// clears the fault and starts over.
func (i *Instance) setEnabled(on bool) {
	if i.enabled == on {
		return
	}
	logs.Infof("ncp.Instance.setEnabled name=%s enabled=%t state=%s", i.opts.Name, on, i.state)
	i.enabled = on
	i.gen++
	if on && i.state == Fault {
		delete(i.props, schema.KeyDaemonFaultReason)
		i.failureCount = 0
		i.fatal = false
		i.changeState(Uninitialized)
	}
	i.setProperty(schema.KeyDaemonEnabled, protocol.Bool(on))
}

// PropertyGet reads key, from the driver when it owns the key and from
// the NCP otherwise.
func (i *Instance) PropertyGet(key string, cb Callback) {
	if v, ok := i.localProperty(key); ok {
		cb(protocol.StatusOk, v)
		return
	}
	switch strings.ToLower(strings.TrimSpace(key)) {
	case strings.ToLower(schema.KeyThreadChildTable):
		i.StartTask(newTopologyTask(spinel.ChildTable, FormatStringArray, cb))
		return
	case strings.ToLower(schema.KeyThreadChildTableAsValMap):
		i.StartTask(newTopologyTask(spinel.ChildTable, FormatValueMap, cb))
		return
	case strings.ToLower(schema.KeyThreadNeighborTable):
		i.StartTask(newTopologyTask(spinel.NeighborTable, FormatStringArray, cb))
		return
	case strings.ToLower(schema.KeyThreadNeighborTableAsValMap):
		i.StartTask(newTopologyTask(spinel.NeighborTable, FormatValueMap, cb))
		return
	case strings.ToLower(schema.KeyMsgBufferCounters):
		i.StartTask(newMsgBufferCountersTask(FormatStringArray, cb))
		return
	case strings.ToLower(schema.KeyMsgBufferCountersAsString):
		i.StartTask(newMsgBufferCountersTask(FormatString, cb))
		return
	case strings.ToLower(schema.KeyMsgBufferCountersAsValMap):
		i.StartTask(newMsgBufferCountersTask(FormatValueMap, cb))
		return
	case strings.ToLower(schema.KeyDaemonFaultReason):
		v, ok := i.props[schema.KeyDaemonFaultReason]
		if !ok {
			cb(protocol.StatusPropertyEmpty, protocol.Value{})
			return
		}
		cb(protocol.StatusOk, v)
		return
	}
	e, ok := schema.Lookup(key)
	if !ok || !e.Gettable() {
		cb(protocol.StatusPropertyNotFound, protocol.Value{})
		return
	}
	i.StartTask(NewCommand("get "+e.Key).
		Add(spinel.PropGet(e.Prop)).
		Reply(e.Type).
		Callback(cb).
		Task())
}

// PropertySet writes key. Settings are remembered and replayed after the
// NCP is reinitialized.
func (i *Instance) PropertySet(key string, v protocol.Value, cb Callback) {
	if status, handled := i.setLocalProperty(key, v); handled {
		cb(status, protocol.Value{})
		return
	}
	if strings.EqualFold(strings.TrimSpace(key), schema.KeyNetworkNodeType) {
		i.setNodeTypeOnNCP(v, cb)
		return
	}
	if _, ok := schema.Lookup(key); !ok {
		cb(protocol.StatusPropertyNotFound, protocol.Value{})
		return
	}
	e, payload, err := schema.ValidateSet(key, v)
	if err != nil {
		logs.Warnf("ncp.Instance.PropertySet key=%s err=%v", key, err)
		if !e.Settable() {
			cb(protocol.StatusFeatureNotSupported, protocol.Value{})
		} else {
			cb(protocol.StatusInvalidArgument, protocol.Value{})
		}
		return
	}
	if e.Setting {
		i.settings[e.Key] = setting{capability: e.Capability, entry: e, value: v}
		if e.Capability != 0 && !i.caps[e.Capability] {
			logs.Infof("ncp.Instance.PropertySet key=%s saved, NCP lacks capability %d", e.Key, e.Capability)
			cb(protocol.StatusFeatureNotSupported, protocol.Value{})
			return
		}
	}
	i.StartTask(NewCommand("set "+e.Key).
		Add(spinel.PropSet(e.Prop, payload)).
		Callback(cb).
		Task())
}

func (i *Instance) setNodeTypeOnNCP(v protocol.Value, cb Callback) {
	text, err := v.AsString()
	if err != nil {
		text = v.String()
	}
	steps, status := nodeTypeSteps(i, ParseNodeType(text))
	if !status.Ok() || len(steps) == 0 {
		if status.Ok() {
			status = protocol.StatusInvalidArgument
		}
		cb(status, protocol.Value{})
		return
	}
	b := NewCommand("set " + schema.KeyNetworkNodeType).Callback(cb)
	for _, s := range steps {
		b.Add(s.cmd)
	}
	i.StartTask(b.Task())
}

// PropertyInsert adds v to a list-valued property.
func (i *Instance) PropertyInsert(key string, v protocol.Value, cb Callback) {
	cmd, status := i.listCommand(key, v, true)
	if !status.Ok() {
		cb(status, protocol.Value{})
		return
	}
	i.StartTask(NewCommand("insert " + key).Add(cmd).Callback(cb).Task())
}

// PropertyRemove drops v from a list-valued property.
func (i *Instance) PropertyRemove(key string, v protocol.Value, cb Callback) {
	cmd, status := i.listCommand(key, v, false)
	if !status.Ok() {
		cb(status, protocol.Value{})
		return
	}
	i.StartTask(NewCommand("remove " + key).Add(cmd).Callback(cb).Task())
}

func (i *Instance) listCommand(key string, v protocol.Value, insert bool) (spinel.Command, protocol.Status) {
	build := spinel.PropRemove
	if insert {
		build = spinel.PropInsert
	}
	switch strings.ToLower(strings.TrimSpace(key)) {
	case strings.ToLower(schema.KeyMACWhitelistEntries):
		addr, err := v.AsData()
		if err != nil || len(addr) != 8 {
			return spinel.Command{}, protocol.StatusInvalidArgument
		}
		var eui [8]byte
		copy(eui[:], addr)
		e := spinel.NewEncoder().EUI64(eui)
		if insert {
			// 127 asks the NCP not to fix the link RSSI.
			e.Int8(127)
		}
		return build(spinel.PropMACWhitelist, e.Bytes()), protocol.StatusOk
	case strings.ToLower(schema.KeyThreadAssistingPorts):
		port, err := v.AsUint()
		if err != nil || port > 0xFFFF {
			return spinel.Command{}, protocol.StatusInvalidArgument
		}
		return build(spinel.PropThreadAssistingPorts, spinel.NewEncoder().Uint16(uint16(port)).Bytes()), protocol.StatusOk
	default:
		return spinel.Command{}, protocol.StatusPropertyNotFound
	}
}
