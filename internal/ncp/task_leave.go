package ncp

import (
	"net/netip"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

const (
	leaveStart = iota
	leaveRun
	leaveWaitReset
	leaveWaitRestart
	leaveWaitInit
)

// leaveTask forgets the current network and restarts the NCP.
type leaveTask struct {
	taskBase
}

func newLeaveTask(cb Callback) *leaveTask {
	return &leaveTask{taskBase: taskBase{name: "leave", cb: cb}}
}

func (t *leaveTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	for {
		switch t.pc {
		case leaveStart:
			if ev.Kind == EventStartingTask {
				if i.state == Upgrading {
					t.finish(protocol.StatusInvalidForCurrentState, protocol.Value{})
					return false
				}
				return true
			}
			t.plan.reset(
				try(spinel.SetBool(spinel.PropNetStackUp, false)),
				try(spinel.SetBool(spinel.PropNetIfUp, false)),
				must(spinel.NetClear()),
			)
			t.goTo(leaveRun)

		case leaveRun:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				return t.onError(i, status)
			}
			i.networkKey = nil
			i.keyIndex = 0
			i.xpanid = nil
			i.mlPrefix = netip.Addr{}
			t.plan.reset(must(spinel.Reset()))
			t.goTo(leaveWaitReset)

		case leaveWaitReset:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				return t.onError(i, status)
			}
			t.goTo(leaveWaitRestart)

		case leaveWaitRestart:
			ok, timedOut := i.await(&t.wait, i.cfg.ResponseTimeout, func() bool {
				return i.initializing || i.state == Uninitialized
			})
			if timedOut {
				return t.onError(i, protocol.StatusTimeout)
			}
			if !ok {
				return true
			}
			t.goTo(leaveWaitInit)

		case leaveWaitInit:
			ok, timedOut := i.await(&t.wait, i.cfg.ResponseTimeout*4, func() bool {
				return !i.initializing && i.driver == driverNormal && i.state != Uninitialized
			})
			if timedOut {
				return t.onError(i, protocol.StatusTimeout)
			}
			if !ok {
				return true
			}
			t.finish(protocol.StatusOk, protocol.Value{})
			return false

		default:
			return t.onError(i, protocol.StatusFailure)
		}
	}
}

// onError falls back to a full reinitialization.
func (t *leaveTask) onError(i *Instance, status protocol.Status) bool {
	if status.Ok() {
		status = protocol.StatusFailure
	}
	logs.Warnf("ncp.Task.process leave failed status=%s, reinitializing", status)
	t.finish(status, protocol.Value{})
	i.reinitialize()
	return false
}
