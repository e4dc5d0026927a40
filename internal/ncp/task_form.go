package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

const (
	formStart = iota
	formWaitInit
	formRun
	formWait
)

// formTask creates a new network with this node as its first router.
type formTask struct {
	taskBase
	opts NetworkOptions
}

func newFormTask(opts NetworkOptions, cb Callback) *formTask {
	return &formTask{taskBase: taskBase{name: "form", cb: cb}, opts: opts}
}

func (t *formTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	for {
		switch t.pc {
		case formStart:
			if ev.Kind == EventStartingTask {
				if !i.enabled {
					t.finish(protocol.StatusInvalidWhenDisabled, protocol.Value{})
					return false
				}
				if i.state == Upgrading {
					t.finish(protocol.StatusInvalidForCurrentState, protocol.Value{})
					return false
				}
				return true
			}
			t.goTo(formWaitInit)

		case formWaitInit:
			ok, timedOut := i.await(&t.wait, i.cfg.FormTimeout, func() bool { return !i.initializing })
			if timedOut {
				return t.onError(protocol.StatusTimeout)
			}
			if !ok {
				return true
			}
			if i.state.Associated() {
				t.finish(protocol.StatusAlready, protocol.Value{})
				return false
			}
			if !i.caps[spinel.CapRoleRouter] {
				logs.Warnf("ncp.Task.process form requires the router role capability")
				return t.onError(protocol.StatusFeatureNotSupported)
			}
			if status := t.configure(i); !status.Ok() {
				return t.onError(status)
			}
			t.goTo(formRun)

		case formRun:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				return t.onError(status)
			}
			i.changeState(Associating)
			t.goTo(formWait)

		case formWait:
			ok, timedOut := i.await(&t.wait, i.cfg.FormTimeout, func() bool { return i.state.Associated() })
			if timedOut {
				return t.onError(protocol.StatusTimeout)
			}
			if !ok {
				return true
			}
			t.finish(protocol.StatusOk, protocol.Value{})
			return false

		default:
			return t.onError(protocol.StatusFailure)
		}
	}
}

// configure fills in every identity the caller left out and queues the
// full bring-up.
func (t *formTask) configure(i *Instance) protocol.Status {
	o := t.opts
	channel := o.Channel
	if channel != 0 {
		if !channelSupported(i.channels, channel) {
			logs.Warnf("ncp.Task.process form channel %d is not supported", channel)
			return protocol.StatusInvalidArgument
		}
	} else {
		var status protocol.Status
		if channel, status = pickChannel(i.channels, o.ChannelMask); !status.Ok() {
			return status
		}
	}

	panid := randomPANID()
	if o.PANID != nil && *o.PANID != panidUnset {
		panid = *o.PANID
	}
	xpanid := o.XPANID
	if len(xpanid) == 0 {
		xpanid = randomBytes(xpanidLen)
	}
	prefix := o.MeshLocalPrefix
	if !prefix.IsValid() {
		prefix = meshLocalPrefixFor(xpanid)
	}
	key := o.Key
	keyIndex := uint32(0)
	if len(key) == 0 {
		key = randomBytes(networkKeyLen)
		keyIndex = 1
	}
	if o.KeyIndex != nil {
		keyIndex = *o.KeyIndex
	}
	name := o.Name
	if name == "" {
		name = "wpanctl"
	}
	logs.Infof("ncp.Task.process form name=%q channel=%d panid=0x%04X prefix=%s", name, channel, panid, prefix)

	steps, status := nodeTypeSteps(i, o.NodeType)
	if !status.Ok() {
		return status
	}
	steps = append(steps,
		must(spinel.SetUint8(spinel.PropPHYChan, channel)),
		try(spinel.SetUint8(spinel.PropMACPromiscuousMode, spinel.PromiscuousOff)),
		must(spinel.SetUint16(spinel.PropMAC154PANID, panid)),
		must(spinel.SetData(spinel.PropNetXPANID, xpanid)),
		must(spinel.SetUTF8(spinel.PropNetNetworkName, name)),
		must(spinel.SetData(spinel.PropNetMasterKey, key)),
		must(spinel.SetUint32(spinel.PropNetKeySequenceCounter, keyIndex)),
		setPrefix(prefix),
		must(spinel.SetBool(spinel.PropNetIfUp, true), protocol.StatusAlready),
		must(spinel.SetBool(spinel.PropNetStackUp, true)),
	)
	t.plan.reset(steps...)
	i.networkKey = append([]byte(nil), key...)
	i.keyIndex = keyIndex
	return protocol.StatusOk
}

func (t *formTask) onError(status protocol.Status) bool {
	if status.Ok() {
		status = protocol.StatusFailure
	}
	logs.Warnf("ncp.Task.process form failed status=%s", status)
	t.finish(status, protocol.Value{})
	return false
}
