package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// changeState is the only mutator of the NCP state. A detached state may
// only move to Uninitialized; other odd transitions are logged and kept.
func (i *Instance) changeState(next NCPState) {
	prev := i.state
	if prev == next {
		return
	}
	if prev.Detached() && next != Uninitialized {
		logs.Warnf("ncp.Instance.changeState BUG: invalid state change %q -> %q", prev, next)
		return
	}
	logs.Infof("ncp.Instance.changeState %q -> %q", prev, next)
	i.state = next
	i.gen++
	observability.RecordNCPState(next.String())
	if !i.initializing || next == Uninitialized || next == Fault || next == Upgrading {
		i.handleStateChange(next, prev)
	}
}

func (i *Instance) handleStateChange(next, prev NCPState) {
	switch {
	case prev.Detached() && !next.Detached():
		// Leaving a detached state needs a fresh link.
		if err := i.setPower(true); err != nil && err != errNoPower {
			logs.Warnf("ncp.Instance.handleStateChange power on err=%v", err)
		}
		if i.opts.Reset != nil {
			i.hardReset()
		}
		if err := i.tr.Reset(); err != nil {
			logs.Errf("ncp.Instance.handleStateChange transport reset err=%v", err)
		}
		i.ctl.restart()

	case !prev.Detached() && next.Detached():
		if err := i.tr.Hibernate(); err != nil {
			logs.Warnf("ncp.Instance.handleStateChange hibernate err=%v", err)
		}
		i.ctl.restart()
		i.codec.Reset()
		i.outbox.Drop(protocol.StatusCanceled)
		i.failureCount = 0
		i.resetTasks(protocol.StatusCanceled)
		if next == Fault {
			if err := i.setPower(false); err != nil && err != errNoPower {
				logs.Warnf("ncp.Instance.handleStateChange power off err=%v", err)
			}
			if i.terminateOnFault {
				i.signalFatal(ErrFault)
			}
		}
		i.notifyState(next)
		return
	}

	if i.updateInterface(next, prev) && next != Uninitialized {
		i.notifyState(next)
	}

	if next.Associated() && !prev.Associated() {
		i.StartTask(NewCommand("refresh-association").
			Add(spinel.PropGet(spinel.PropMAC154LAddr)).
			Add(spinel.PropGet(spinel.PropIPv6MLAddr)).
			Add(spinel.PropGet(spinel.PropNetXPANID)).
			Add(spinel.PropGet(spinel.PropMAC154PANID)).
			Add(spinel.PropGet(spinel.PropPHYChan)).
			Callback(i.checkOperationStatus("refresh after association")).
			Task())
	} else if next.Joining() && !prev.Joining() && !i.mlPrefix.IsValid() {
		i.StartTask(NewCommand("fetch-mesh-local-prefix").
			Add(spinel.PropGet(spinel.PropIPv6MLPrefix)).
			Task())
	}
}

// updateInterface mirrors the interface-up view of a transition. It
// returns false when the transition should not be announced.
func (i *Instance) updateInterface(next, prev NCPState) bool {
	switch {
	case !prev.InterfaceUp() && next.InterfaceUp():
		i.setOnline(true)
	case prev.InterfaceUp() && next == Commissioned && i.autoResume:
		return false
	case prev.Commissioned() && !next.Commissioned() && !next.Sleeping() && next != Uninitialized:
		i.resetInterface()
	case prev == Uninitialized && next == Offline:
		i.resetInterface()
	case prev.InterfaceUp() && !next.InterfaceUp() && next != NetWakeWaking:
		logs.Infof("ncp.Instance taking interface down name=%s", i.opts.Name)
		i.setOnline(false)
	}
	return true
}

func (i *Instance) notifyState(s NCPState) {
	i.setProperty(schema.KeyNCPState, protocol.String(s.String()))
	for _, l := range i.listeners {
		if l.StateChanged != nil {
			l.StateChanged(s)
		}
	}
}

func (i *Instance) setOnline(up bool) {
	i.setProperty(schema.KeyInterfaceUp, protocol.Bool(up))
}

// resetInterface forgets the addresses learned for the old network.
func (i *Instance) resetInterface() {
	if _, ok := i.props[schema.KeyIPv6MeshLocalAddress]; ok {
		logs.Infof("ncp.Instance.resetInterface clearing addresses name=%s", i.opts.Name)
	}
	delete(i.props, schema.KeyIPv6MeshLocalAddress)
	delete(i.props, schema.KeyIPv6LinkLocalAddress)
	i.setOnline(false)
}

func (i *Instance) setInitializing(on bool) {
	if i.initializing == on {
		return
	}
	i.initializing = on
	i.gen++
	if on {
		i.changeState(Uninitialized)
		if err := i.setPower(true); err != nil && err != errNoPower {
			logs.Warnf("ncp.Instance.setInitializing power on err=%v", err)
		}
		return
	}
	if s := i.state; s != Uninitialized && s != Fault && s != Upgrading {
		i.handleStateChange(s, Uninitialized)
	}
}

// reinitialize restarts the lifecycle from Init.
func (i *Instance) reinitialize() {
	logs.Infof("ncp.Instance.reinitialize state=%s", i.state)
	i.ctl.restart()
	i.changeState(Uninitialized)
}

// misbehaving is the recovery path for an unresponsive or inconsistent
// NCP: hard reset, cancel all tasks, start over. Enough of these in a row
// fault the driver.
func (i *Instance) misbehaving() {
	if i.state.Detached() {
		return
	}
	i.failureCount++
	logs.Errf("ncp.Instance NCP is misbehaving failures=%d threshold=%d", i.failureCount, i.cfg.FailureThreshold)
	i.hardReset()
	i.resetTasks(protocol.StatusCanceled)
	i.reinitialize()
	if i.failureCount >= i.cfg.FailureThreshold {
		i.fault("NCP is misbehaving")
	}
}

func (i *Instance) fault(reason string) {
	logs.Errf("ncp.Instance entering fault reason=%q", reason)
	i.setProperty(schema.KeyDaemonFaultReason, protocol.String(reason))
	i.changeState(Fault)
}

// checkOperationStatus is the callback for internal operations nobody
// waits on. A timeout there means the NCP stopped answering.
func (i *Instance) checkOperationStatus(op string) Callback {
	return func(status protocol.Status, _ protocol.Value) {
		if status == protocol.StatusTimeout {
			logs.Errf("ncp.Instance timed out while performing %q, resetting NCP", op)
			i.misbehaving()
		}
	}
}

func (i *Instance) setNodeType(t NodeType) {
	if i.nodeType == t {
		return
	}
	i.nodeType = t
	i.setProperty(schema.KeyNetworkNodeType, protocol.String(t.String()))
}
