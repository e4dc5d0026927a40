package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

const (
	joinStart = iota
	joinWaitInit
	joinClear
	joinConfigure
	joinWait
)

// joinTask attaches to an existing network.
type joinTask struct {
	taskBase
	opts      NetworkOptions
	inst      *Instance
	lastState NCPState
	changed   bool
}

func newJoinTask(opts NetworkOptions, cb Callback) *joinTask {
	return &joinTask{taskBase: taskBase{name: "join", cb: cb}, opts: opts}
}

// finish puts the NCP back where it was when a join did not stick.
func (t *joinTask) finish(status protocol.Status, value protocol.Value) {
	if t.done {
		return
	}
	if t.changed && t.inst != nil && status != protocol.StatusInProgress && t.inst.state.Joining() {
		logs.Infof("ncp.Task.finish join status=%s, restoring state %s", status, t.lastState)
		t.inst.changeState(t.lastState)
	}
	t.taskBase.finish(status, value)
}

func (t *joinTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	t.inst = i
	for {
		switch t.pc {
		case joinStart:
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
			t.goTo(joinWaitInit)

		case joinWaitInit:
			ok, timedOut := i.await(&t.wait, i.cfg.JoinTimeout, func() bool { return !i.initializing })
			if timedOut {
				t.finish(protocol.StatusTimeout, protocol.Value{})
				return false
			}
			if !ok {
				return true
			}
			if i.state.Associated() {
				t.finish(protocol.StatusAlready, protocol.Value{})
				return false
			}
			t.plan.reset(must(spinel.NetClear()))
			t.goTo(joinClear)

		case joinClear:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				return t.onError(status)
			}
			t.lastState = i.state
			t.changed = true
			i.changeState(Associating)
			if status := t.configure(i); !status.Ok() {
				return t.onError(status)
			}
			t.goTo(joinConfigure)

		case joinConfigure:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				return t.onError(status)
			}
			t.goTo(joinWait)

		case joinWait:
			joinStatus := ev.isLastStatus() && spinel.IsJoinStatus(ev.Status)
			ok, timedOut := i.await(&t.wait, i.cfg.JoinTimeout, func() bool {
				return i.state.Associated() || joinStatus
			})
			if timedOut {
				return t.onError(protocol.StatusTimeout)
			}
			if !ok {
				return true
			}
			if i.state.Associated() {
				t.finish(protocol.StatusOk, protocol.Value{})
				return false
			}
			switch ev.Status {
			case spinel.StatusJoinSuccess:
				// Association follows on NET_ROLE.
				t.goTo(joinWait)
				return true
			case spinel.StatusJoinSecurity, spinel.StatusJoinFailure:
				logs.Infof("ncp.Task.process join needs credentials status=%s", spinel.StatusName(ev.Status))
				i.changeState(CredentialsNeeded)
				t.finish(protocol.StatusInProgress, protocol.Value{})
				return false
			case spinel.StatusJoinIncompatible:
				return t.onError(protocol.StatusJoinFailedAtScan)
			default:
				return t.onError(protocol.StatusJoinFailedUnknown)
			}

		default:
			return t.onError(protocol.StatusFailure)
		}
	}
}

// configure queues the role, identity and bring-up commands.
func (t *joinTask) configure(i *Instance) protocol.Status {
	steps, status := nodeTypeSteps(i, t.opts.NodeType)
	if !status.Ok() {
		return status
	}
	o := t.opts
	steps = append(steps, try(spinel.SetUint8(spinel.PropMACPromiscuousMode, spinel.PromiscuousOff)))
	if o.Channel != 0 {
		steps = append(steps, must(spinel.SetUint8(spinel.PropPHYChan, o.Channel)))
	}
	if o.PANID != nil {
		steps = append(steps, must(spinel.SetUint16(spinel.PropMAC154PANID, *o.PANID)))
	}

	xpanid := o.XPANID
	if len(xpanid) == 0 && !allZero(i.xpanid) {
		xpanid = i.xpanid
	}
	if len(xpanid) == 0 {
		xpanid = randomBytes(xpanidLen)
		logs.Infof("ncp.Task.process join generated random xpanid")
	}
	steps = append(steps, must(spinel.SetData(spinel.PropNetXPANID, xpanid)))

	if o.Name != "" {
		steps = append(steps, must(spinel.SetUTF8(spinel.PropNetNetworkName, o.Name)))
	}

	key := o.Key
	if len(key) == 0 && !allZero(i.networkKey) {
		key = i.networkKey
	}
	if len(key) == 0 {
		key = randomBytes(networkKeyLen)
		logs.Infof("ncp.Task.process join generated random network key")
	}
	steps = append(steps, must(spinel.SetData(spinel.PropNetMasterKey, key)))
	i.networkKey = append([]byte(nil), key...)

	if o.KeyIndex != nil {
		steps = append(steps, must(spinel.SetUint32(spinel.PropNetKeySequenceCounter, *o.KeyIndex)))
	}
	if o.MeshLocalPrefix.IsValid() {
		steps = append(steps, setPrefix(o.MeshLocalPrefix))
	}
	steps = append(steps,
		must(spinel.SetBool(spinel.PropNetIfUp, true), protocol.StatusAlready),
		try(spinel.SetBool(spinel.PropNetRequireJoinExisting, true)),
		must(spinel.SetBool(spinel.PropNetStackUp, true)),
	)
	t.plan.reset(steps...)
	return protocol.StatusOk
}

func (t *joinTask) onError(status protocol.Status) bool {
	if status.Ok() {
		status = protocol.StatusFailure
	}
	logs.Warnf("ncp.Task.process join failed status=%s", status)
	t.finish(status, protocol.Value{})
	return false
}
