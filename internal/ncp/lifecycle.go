package ncp

import (
	"sort"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/runloop"
)

const (
	initRetryPause = 100 * time.Millisecond
	initErrorPause = 500 * time.Millisecond
	// maxLifecycleSteps bounds how far one event may carry the lifecycle.
	maxLifecycleSteps = 64
)

// initFetch is refreshed from the NCP after every initialization.
var initFetch = []uint32{
	spinel.PropNCPVersion,
	spinel.PropInterfaceType,
	spinel.PropVendorID,
	spinel.PropCaps,
	spinel.PropHWAddr,
	spinel.PropPHYChan,
	spinel.PropPHYChanSupported,
	spinel.PropMAC154PANID,
	spinel.PropMAC154LAddr,
	spinel.PropNetMasterKey,
	spinel.PropNetKeySequenceCounter,
	spinel.PropNetNetworkName,
	spinel.PropNetXPANID,
	spinel.PropIPv6LLAddr,
	spinel.PropIPv6MLAddr,
	spinel.PropThreadAssistingPorts,
	spinel.PropNetIfUp,
	spinel.PropNetStackUp,
	spinel.PropNetRole,
}

type ctlPhase int

const (
	ctlInit ctlPhase = iota
	ctlWaitTasks
	ctlResume
	ctlLoop
	ctlDisabled
	ctlAssociated
	ctlOffline
	ctlStopped
)

// Init steps.
const (
	initStart = iota
	initUpgradeWait
	initBegin
	initAwaitExpectedReset
	initBackoff
	initRetry
	initRecover
	initSendReset
	initAwaitReset
	initVersion
	initStack
	initCheck
	initFetchProps
	initSettings
	initDone
	initError
)

// Resume steps.
const (
	resumeSaved = iota
	resumeIfUp
	resumeStackUp
)

// Loop steps.
const (
	loopYield = iota
	loopDispatch
	loopIdle
)

// Disabled steps.
const (
	disabledTop = iota
	disabledWaitIdle
	disabledWaitSleep
	disabledQuiet
	disabledSleeping
	disabledTickle
	disabledWake
)

// Associated steps.
const (
	assocQuiet = iota
	assocWait
	assocTickle
)

// Offline steps.
const (
	offlineWaitAuto = iota
	offlineWaitAwake
	offlineWaitIdle
)

// lifecycle is the driver's control state machine: Init, then the
// supervision loop that dispatches on the NCP state.
type lifecycle struct {
	phase  ctlPhase
	step   int
	idx    int
	wait   runloop.Deadline
	tx     sender
	status protocol.Status
	delay  time.Duration
	keys   []string
	// yielded marks a loop step that already gave up its round.
	yielded bool
}

func (c *lifecycle) restart() {
	*c = lifecycle{}
}

func (c *lifecycle) progress() int {
	return int(c.phase)<<24 | c.step<<16 | c.idx<<4 | int(c.tx.phase)
}

func (c *lifecycle) goTo(phase ctlPhase, step int) {
	c.phase = phase
	c.step = step
	c.wait.Clear()
}

// exit returns control to the supervision loop.
func (c *lifecycle) exit() {
	c.goTo(ctlLoop, loopYield)
}

func (c *lifecycle) run(i *Instance, ev Event) {
	if c.phase == ctlInit && ev.Kind == EventNCPReset {
		switch i.driver {
		case driverInitializing:
			logs.Errf("ncp.lifecycle unexpected reset during NCP initialization")
			i.failureCount++
			c.restart()
		case driverWaitingForReset:
			i.driver = driverInitializing
		}
	}
	for n := 0; n < maxLifecycleSteps; n++ {
		before := c.progress()
		switch c.phase {
		case ctlInit:
			c.runInit(i, ev)
		case ctlWaitTasks:
			if len(i.tasks) > 0 {
				return
			}
			if i.autoResume && i.enabled && i.state == Offline {
				logs.Infof("ncp.lifecycle AutoResume is enabled, trying to resume")
				c.goTo(ctlResume, resumeSaved)
			} else {
				c.goTo(ctlLoop, loopDispatch)
			}
		case ctlResume:
			c.runResume(i, ev)
		case ctlLoop:
			c.runLoop(i)
		case ctlDisabled:
			c.runDisabled(i, ev)
		case ctlAssociated:
			c.runAssociated(i, ev)
		case ctlOffline:
			c.runOffline(i, ev)
		case ctlStopped:
			return
		}
		if c.progress() == before {
			return
		}
	}
}

func (c *lifecycle) runInit(i *Instance, ev Event) {
	threshold := i.cfg.FailureThreshold
	switch c.step {
	case initStart:
		if i.state == Upgrading {
			c.step = initUpgradeWait
			return
		}
		c.step = initBegin

	case initUpgradeWait:
		if i.upgrade == upgradeRunning {
			return
		}
		if i.upgradeErr == nil {
			logs.Infof("ncp.lifecycle firmware update complete")
		} else {
			logs.Errf("ncp.lifecycle firmware update failed err=%v", i.upgradeErr)
			i.failureCount++
			if i.failureCount > threshold {
				i.fault("firmware update failed")
			}
		}
		i.upgrade = upgradeIdle
		i.upgradeErr = nil
		c.step = initBegin

	case initBegin:
		if i.state == Fault {
			c.goTo(ctlStopped, 0)
			return
		}
		logs.Infof("ncp.lifecycle initializing NCP name=%s", i.opts.Name)
		i.setInitializing(true)
		i.changeState(Uninitialized)
		if err := i.setPower(true); err != nil && err != errNoPower {
			logs.Warnf("ncp.lifecycle power on err=%v", err)
		}
		i.ncpVersion = ""
		i.driver = driverWaitingForReset
		if i.resetExpected {
			c.goTo(ctlInit, initAwaitExpectedReset)
		} else {
			c.delay = i.backoff.DelayForUnexpectedReset(i.now)
			c.goTo(ctlInit, initBackoff)
		}

	case initAwaitExpectedReset:
		ok, timedOut := i.await(&c.wait, i.cfg.ResponseTimeout, func() bool { return !i.resetExpected })
		if timedOut {
			logs.Errf("ncp.lifecycle was waiting for a reset, but never got one")
			i.failureCount++
			i.resetExpected = false
		} else if !ok {
			return
		}
		c.goTo(ctlInit, initRetry)

	case initBackoff:
		if !i.sleep(&c.wait, c.delay) {
			return
		}
		c.goTo(ctlInit, initRetry)

	case initRetry:
		if !i.sleep(&c.wait, initRetryPause) {
			return
		}
		if i.failureCount > threshold {
			logs.Errf("ncp.lifecycle repeatedly unable to initialize NCP, entering fault state failures=%d", i.failureCount)
			i.fault("unable to initialize NCP")
			return
		}
		if i.autoUpdateFirmware && i.failureCount > threshold-1 && i.canUpgrade() {
			logs.Warnf("ncp.lifecycle NCP is misbehaving, attempting a firmware update")
			i.startUpgrade()
			c.goTo(ctlInit, initStart)
			return
		}
		if ev.Kind != EventNCPReset && i.failureCount > 0 {
			c.goTo(ctlInit, initRecover)
			return
		}
		c.goTo(ctlInit, initVersion)

	case initRecover:
		logs.Warnf("ncp.lifecycle resetting and trying again retry=%d", i.failureCount)
		i.changeState(Uninitialized)
		i.networkKey = nil
		i.keyIndex = 0
		i.resetTasks(protocol.StatusCanceled)
		i.driver = driverWaitingForReset
		if i.failureCount&1 == 0 {
			i.hardReset()
			c.goTo(ctlInit, initAwaitReset)
		} else {
			c.goTo(ctlInit, initSendReset)
		}

	case initSendReset:
		status, done := c.tx.send(i, ev, spinel.Reset(), i.cfg.ResponseTimeout)
		if !done {
			return
		}
		if !status.Ok() {
			c.fail(status)
			return
		}
		i.driver = driverInitializing
		c.goTo(ctlInit, initVersion)

	case initAwaitReset:
		ok, timedOut := i.await(&c.wait, i.cfg.ResponseTimeout, func() bool { return ev.Kind == EventNCPReset })
		if timedOut {
			c.fail(protocol.StatusTimeout)
			return
		}
		if !ok {
			return
		}
		i.driver = driverInitializing
		c.goTo(ctlInit, initVersion)

	case initVersion:
		status, done := c.tx.send(i, ev, spinel.PropGet(spinel.PropProtocolVersion), 0)
		if !done {
			return
		}
		if !status.Ok() {
			c.fail(status)
			return
		}
		if i.state == Uninitialized {
			c.goTo(ctlInit, initStack)
		} else {
			c.goTo(ctlInit, initCheck)
		}

	case initStack:
		status, done := c.tx.send(i, ev, spinel.PropGet(spinel.PropNetStackUp), 0)
		if !done {
			return
		}
		if status == protocol.StatusTimeout || i.state == Uninitialized {
			c.fail(status)
			return
		}
		c.goTo(ctlInit, initCheck)

	case initCheck:
		// A mid-join NCP is started over through a reset.
		if i.state.Joining() {
			c.fail(protocol.StatusOk)
			return
		}
		i.driver = driverInitializing
		if !i.enabled {
			c.goTo(ctlInit, initDone)
			return
		}
		c.idx = 0
		c.goTo(ctlInit, initFetchProps)

	case initFetchProps:
		for c.idx < len(initFetch) {
			prop := initFetch[c.idx]
			status, done := c.tx.send(i, ev, spinel.PropGet(prop), 0)
			if !done {
				return
			}
			c.idx++
			if status == protocol.StatusTimeout {
				c.fail(status)
				return
			}
			if !status.Ok() {
				logs.Warnf("ncp.lifecycle unsuccessful fetching property %s status=%s", spinel.PropName(prop), status)
			}
		}
		c.keys = c.keys[:0]
		for k := range i.settings {
			c.keys = append(c.keys, k)
		}
		sort.Strings(c.keys)
		c.idx = 0
		c.goTo(ctlInit, initSettings)

	case initSettings:
		for c.idx < len(c.keys) {
			key := c.keys[c.idx]
			s, ok := i.settings[key]
			if !ok || (s.capability != 0 && !i.caps[s.capability]) {
				c.idx++
				continue
			}
			cmd, err := s.command()
			if err != nil {
				logs.Warnf("ncp.lifecycle cannot restore property %s err=%v", key, err)
				c.idx++
				continue
			}
			if c.tx.phase == sendIdle {
				logs.Infof("ncp.lifecycle restoring property %s on NCP", key)
			}
			status, done := c.tx.send(i, ev, cmd, 0)
			if !done {
				return
			}
			c.idx++
			if status == protocol.StatusTimeout {
				c.fail(status)
				return
			}
			if !status.Ok() {
				logs.Warnf("ncp.lifecycle unsuccessful in restoring property %s status=%s", key, status)
			}
		}
		c.goTo(ctlInit, initDone)

	case initDone:
		i.failureCount = 0
		i.resetExpected = false
		i.setInitializing(false)
		i.driver = driverNormal
		logs.Infof("ncp.lifecycle finished initializing NCP name=%s state=%s", i.opts.Name, i.state)
		c.goTo(ctlWaitTasks, 0)

	case initError:
		if !i.sleep(&c.wait, initErrorPause) {
			return
		}
		i.failureCount++
		c.goTo(ctlInit, initRetry)
	}
}

func (c *lifecycle) fail(status protocol.Status) {
	if !status.Ok() {
		logs.Errf("ncp.lifecycle initialization error status=%s", status)
	}
	c.status = status
	c.goTo(ctlInit, initError)
}

func (c *lifecycle) runResume(i *Instance, ev Event) {
	switch c.step {
	case resumeSaved:
		status, done := c.tx.send(i, ev, spinel.PropGet(spinel.PropNetSaved), 0)
		if !done {
			return
		}
		if status == protocol.StatusTimeout {
			c.unresponsive(i)
			return
		}
		saved := false
		if status.Ok() {
			reply := c.tx.reply
			if !reply.HasProp || reply.Prop != spinel.PropNetSaved {
				c.unresponsive(i)
				return
			}
			d := spinel.NewDecoder(reply.Value)
			saved = d.Bool()
			if d.Err() != nil {
				c.unresponsive(i)
				return
			}
		} else {
			logs.Warnf("ncp.lifecycle fetching NET_SAVED status=%s", status)
		}
		if !saved {
			logs.Infof("ncp.lifecycle NCP is NOT commissioned, cannot resume")
			c.exit()
			return
		}
		logs.Infof("ncp.lifecycle NCP is commissioned, resuming")
		c.goTo(ctlResume, resumeIfUp)

	case resumeIfUp:
		status, done := c.tx.send(i, ev, spinel.SetBool(spinel.PropNetIfUp, true), 0)
		if !done {
			return
		}
		if !status.Ok() {
			c.unresponsive(i)
			return
		}
		c.goTo(ctlResume, resumeStackUp)

	case resumeStackUp:
		status, done := c.tx.send(i, ev, spinel.SetBool(spinel.PropNetStackUp, true), 0)
		if !done {
			return
		}
		if !status.Ok() {
			c.unresponsive(i)
			return
		}
		c.exit()
	}
}

func (c *lifecycle) unresponsive(i *Instance) {
	logs.Errf("ncp.lifecycle NCP is misbehaving or unresponsive")
	i.reinitialize()
}

func (c *lifecycle) runLoop(i *Instance) {
	switch c.step {
	case loopYield:
		// Give up one scheduler round between sub-machines.
		if !c.yielded {
			c.yielded = true
			i.horizon.Yield(i.now)
			return
		}
		c.yielded = false
		c.step = loopDispatch
	case loopDispatch:
		switch {
		case i.state.Initializing():
			c.restart()
		case !i.enabled:
			logs.Infof("ncp.lifecycle interface disabled name=%s", i.opts.Name)
			c.goTo(ctlDisabled, disabledTop)
		case i.state.JoiningOrJoined():
			c.goTo(ctlAssociated, assocQuiet)
		case !i.state.InterfaceUp():
			c.goTo(ctlOffline, offlineWaitAuto)
		default:
			logs.Warnf("ncp.lifecycle unexpected NCP state %s", i.state)
			c.step = loopIdle
		}
	case loopIdle:
		// Wait for the next event without a timer.
		if !c.yielded {
			c.yielded = true
			return
		}
		c.yielded = false
		c.step = loopDispatch
	}
}

func (c *lifecycle) runDisabled(i *Instance, ev Event) {
	switch c.step {
	case disabledTop:
		if i.enabled {
			c.goTo(ctlDisabled, disabledWake)
			return
		}
		if i.state == Uninitialized {
			logs.Infof("ncp.lifecycle cannot attempt to sleep until NCP is initialized")
			c.exit()
			return
		}
		c.goTo(ctlDisabled, disabledWaitIdle)

	case disabledWaitIdle:
		ok, _ := i.await(&c.wait, i.cfg.ResponseTimeout, func() bool { return i.enabled || !i.IsBusy() })
		if !ok && c.wait.Armed() {
			return
		}
		if i.enabled {
			c.goTo(ctlDisabled, disabledWake)
			return
		}
		if i.initializing {
			c.exit()
			return
		}
		i.resetTasks(protocol.StatusCanceled)
		i.setOnline(false)
		if i.state != DeepSleep && i.state != Fault {
			i.StartTask(newDeepSleepTask(nil))
			c.goTo(ctlDisabled, disabledWaitSleep)
			return
		}
		c.goTo(ctlDisabled, disabledQuiet)

	case disabledWaitSleep:
		ok, _ := i.await(&c.wait, i.cfg.ResponseTimeout, func() bool { return i.state == DeepSleep || len(i.tasks) == 0 })
		if !ok && c.wait.Armed() {
			return
		}
		if i.state != DeepSleep && i.state != Fault {
			// Sleep was not reached; a reset puts the NCP in a known state.
			if !i.state.Initializing() {
				i.StartTask(NewCommand("reset").Add(spinel.Reset()).Task())
			}
			c.exit()
			return
		}
		c.goTo(ctlDisabled, disabledQuiet)

	case disabledQuiet:
		if ev.FromNCP() {
			return
		}
		c.goTo(ctlDisabled, disabledSleeping)

	case disabledSleeping:
		ok, timedOut := i.await(&c.wait, i.cfg.DeepSleepTickleTimeout, func() bool {
			return i.state != DeepSleep || i.enabled || ev.FromNCP()
		})
		if timedOut {
			logs.Warnf("ncp.lifecycle deep sleep tickle, resetting NCP")
			c.goTo(ctlDisabled, disabledTickle)
			return
		}
		if !ok {
			return
		}
		c.goTo(ctlDisabled, disabledTop)

	case disabledTickle:
		status, done := c.tx.send(i, ev, spinel.Reset(), i.cfg.ResponseTimeout)
		if !done {
			return
		}
		if !status.Ok() {
			c.exit()
			return
		}
		c.goTo(ctlDisabled, disabledTop)

	case disabledWake:
		if err := i.setPower(true); err != nil && err != errNoPower {
			logs.Warnf("ncp.lifecycle power on err=%v", err)
		}
		if i.state.Sleeping() {
			i.StartTask(newWakeTask(nil))
		}
		c.exit()
	}
}

func (c *lifecycle) runAssociated(i *Instance, ev Event) {
	shouldExit := !i.enabled || !i.state.JoiningOrJoined()
	switch c.step {
	case assocQuiet:
		ok, timedOut := i.await(&c.wait, i.cfg.TickleTimeout, func() bool { return shouldExit || !ev.FromNCP() })
		if !ok && !timedOut {
			return
		}
		c.goTo(ctlAssociated, assocWait)

	case assocWait:
		ok, timedOut := i.await(&c.wait, i.cfg.TickleTimeout, func() bool { return shouldExit })
		if ok {
			c.exit()
			return
		}
		if !timedOut {
			return
		}
		logs.Infof("ncp.lifecycle tickle name=%s", i.opts.Name)
		c.goTo(ctlAssociated, assocTickle)

	case assocTickle:
		status, done := c.tx.send(i, ev, spinel.Noop(), 0)
		if !done {
			return
		}
		if status == protocol.StatusTimeout {
			logs.Errf("ncp.lifecycle NCP is misbehaving or unresponsive")
			i.misbehaving()
			return
		}
		i.failureCount = 0
		c.exit()
	}
}

func (c *lifecycle) runOffline(i *Instance, ev Event) {
	shouldExit := i.state.InterfaceUp() || !i.enabled || !i.outbox.Empty()
	timeout := i.cfg.AutoDeepSleepTimeout
	if len(i.networkKey) != 0 || i.keyIndex != 0 {
		timeout += time.Minute
	}
	switch c.step {
	case offlineWaitAuto:
		if !shouldExit && !i.autoDeepSleep {
			return
		}
		c.goTo(ctlOffline, offlineWaitAwake)

	case offlineWaitAwake:
		if !shouldExit && i.autoDeepSleep && i.state.Sleeping() {
			return
		}
		c.goTo(ctlOffline, offlineWaitIdle)

	case offlineWaitIdle:
		ok, timedOut := i.await(&c.wait, timeout, func() bool {
			return shouldExit || !i.autoDeepSleep || len(i.tasks) > 0 || ev.FromNCP() || i.state.Sleeping()
		})
		if !ok && !timedOut {
			return
		}
		if timedOut {
			logs.Infof("ncp.lifecycle offline idle for %s, entering deep sleep", timeout)
			i.StartTask(newDeepSleepTask(nil))
		}
		c.exit()
	}
}
