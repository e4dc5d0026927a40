package ncp

import (
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// sleepQuiet is how long the link must stay quiet before the NCP is
// considered asleep.
const sleepQuiet = 500 * time.Millisecond

const (
	deepSleepStart = iota
	deepSleepRun
	deepSleepQuiet
	deepSleepDone
)

// deepSleepTask puts the NCP into its lowest power state. Power control
// wins over the POWER_STATE capability, which wins over taking the stack,
// interface and radio down by hand.
type deepSleepTask struct {
	taskBase
	inst     *Instance
	powerOff bool
	quiet    bool
}

func newDeepSleepTask(cb Callback) *deepSleepTask {
	return &deepSleepTask{taskBase: taskBase{name: "deep-sleep", cb: cb}}
}

func (t *deepSleepTask) finish(status protocol.Status, value protocol.Value) {
	if t.inst != nil {
		t.inst.resetExpected = false
	}
	t.taskBase.finish(status, value)
}

func (t *deepSleepTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	t.inst = i
	for {
		switch t.pc {
		case deepSleepStart:
			if ev.Kind == EventStartingTask {
				return true
			}
			if i.canSetPower() {
				t.plan.reset(must(spinel.Noop()))
				t.powerOff = true
				t.quiet = true
			} else {
				t.planWithoutPower(i)
			}
			t.goTo(deepSleepRun)

		case deepSleepRun:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				return t.fail(i, status)
			}
			if t.quiet {
				t.goTo(deepSleepQuiet)
			} else {
				t.goTo(deepSleepDone)
			}

		case deepSleepQuiet:
			if ev.FromNCP() {
				t.wait.Clear()
			}
			if !i.sleep(&t.wait, sleepQuiet) {
				return true
			}
			if t.powerOff {
				t.powerOff = false
				if err := i.setPower(false); err != nil {
					logs.Warnf("ncp.Task.process deep sleep power off failed, falling back err=%v", err)
					_ = i.setPower(true)
					t.planWithoutPower(i)
					t.goTo(deepSleepRun)
					continue
				}
			}
			t.goTo(deepSleepDone)

		case deepSleepDone:
			i.changeState(DeepSleep)
			t.finish(protocol.StatusOk, protocol.Value{})
			return false

		default:
			return t.fail(i, protocol.StatusFailure)
		}
	}
}

// planWithoutPower uses POWER_STATE when the NCP supports it. Otherwise it
// takes the stack, interface and radio down, ignoring each step's status.
func (t *deepSleepTask) planWithoutPower(i *Instance) {
	if i.caps[spinel.CapPowerSave] {
		t.plan.reset(must(spinel.SetUint8(spinel.PropPowerState, spinel.PowerStateDeepSleep)))
		t.quiet = false
		return
	}
	t.plan.reset(
		try(spinel.SetBool(spinel.PropNetStackUp, false)),
		try(spinel.SetBool(spinel.PropNetIfUp, false)),
		try(spinel.SetBool(spinel.PropPHYEnabled, false)),
	)
	t.quiet = true
}

func (t *deepSleepTask) fail(i *Instance, status protocol.Status) bool {
	if i.state == DeepSleep {
		t.finish(protocol.StatusOk, protocol.Value{})
		return false
	}
	logs.Warnf("ncp.Task.process NCP DID NOT GO TO SLEEP! status=%s", status)
	t.finish(protocol.StatusFailure, protocol.Value{})
	return false
}

const (
	wakeStart = iota
	wakeRun
)

// wakeTask brings a sleeping NCP back. The scheduler runs one ahead of
// any task about to start while the NCP sleeps.
type wakeTask struct {
	taskBase
}

func newWakeTask(cb Callback) *wakeTask {
	return &wakeTask{taskBase: taskBase{name: "wake", cb: cb}}
}

func (t *wakeTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	for {
		switch t.pc {
		case wakeStart:
			if ev.Kind == EventStartingTask {
				return true
			}
			if err := i.setPower(true); err != nil && err != errNoPower {
				t.finish(protocol.StatusFailure, protocol.Value{})
				return false
			}
			t.plan.reset(must(spinel.Noop()))
			if i.caps[spinel.CapPowerSave] {
				t.plan.add(try(spinel.SetUint8(spinel.PropPowerState, spinel.PowerStateOnline)))
			}
			t.goTo(wakeRun)

		case wakeRun:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				logs.Warnf("ncp.Task.process wake failed status=%s", status)
				t.finish(status, protocol.Value{})
				return false
			}
			switch i.state {
			case DeepSleep:
				i.changeState(Offline)
			case NetWakeAsleep:
				i.changeState(Associated)
			}
			t.finish(protocol.StatusOk, protocol.Value{})
			return false

		default:
			t.finish(protocol.StatusFailure, protocol.Value{})
			return false
		}
	}
}
