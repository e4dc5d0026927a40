package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// ScanKind selects what a scan listens for.
type ScanKind int

const (
	ScanBeacon ScanKind = iota
	ScanEnergy
)

func (k ScanKind) String() string {
	if k == ScanEnergy {
		return "energyscan"
	}
	return "netscan"
}

func (k ScanKind) state() uint8 {
	if k == ScanEnergy {
		return spinel.ScanStateEnergy
	}
	return spinel.ScanStateBeacon
}

const (
	scanStart = iota
	scanWaitInit
	scanSetup
	scanCollect
)

// scanTask runs one beacon or energy scan. Results go to listeners as
// they arrive; beacons are also kept for a later read.
type scanTask struct {
	taskBase
	kind  ScanKind
	opts  ScanOptions
	found int
}

func newScanTask(kind ScanKind, opts ScanOptions, cb Callback) *scanTask {
	return &scanTask{taskBase: taskBase{name: kind.String(), cb: cb}, kind: kind, opts: opts}
}

func (t *scanTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	for {
		switch t.pc {
		case scanStart:
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
			t.goTo(scanWaitInit)

		case scanWaitInit:
			ok, timedOut := i.await(&t.wait, i.cfg.ScanTimeout, func() bool { return !i.initializing })
			if timedOut {
				t.finish(protocol.StatusTimeout, protocol.Value{})
				return false
			}
			if !ok {
				return true
			}
			mask := t.opts.ChannelMask
			if mask == 0 {
				mask = defaultChannelMask
			}
			t.plan.reset(must(spinel.PropSet(spinel.PropMACScanMask, channelList(mask))))
			if t.opts.Period != 0 {
				t.plan.add(try(spinel.SetUint16(spinel.PropMACScanPeriod, t.opts.Period)))
			}
			t.plan.add(must(spinel.SetUint8(spinel.PropMACScanState, t.kind.state())))
			if t.kind == ScanBeacon {
				i.beacons = i.beacons[:0]
			}
			t.goTo(scanSetup)

		case scanSetup:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				logs.Warnf("ncp.Task.process %s setup failed status=%s", t.kind, status)
				t.finish(status, protocol.Value{})
				return false
			}
			t.goTo(scanCollect)

		case scanCollect:
			if t.collect(i, ev) {
				logs.Infof("ncp.Task.process %s complete results=%d", t.kind, t.found)
				t.finish(protocol.StatusOk, protocol.Value{})
				return false
			}
			if i.sleep(&t.wait, i.cfg.ScanTimeout) {
				logs.Warnf("ncp.Task.process %s timed out results=%d", t.kind, t.found)
				t.finish(protocol.StatusTimeout, protocol.Value{})
				return false
			}
			return true

		default:
			t.finish(protocol.StatusFailure, protocol.Value{})
			return false
		}
	}
}

// collect consumes one scan notification and reports whether the scan
// went idle.
func (t *scanTask) collect(i *Instance, ev Event) bool {
	if ev.Kind != EventNCP || !ev.HasProp {
		return false
	}
	if ev.Cmd != spinel.CmdPropValueIs && ev.Cmd != spinel.CmdPropInserted {
		return false
	}
	switch ev.Prop {
	case spinel.PropMACScanBeacon:
		b, err := spinel.ParseBeacon(ev.Value)
		if err != nil {
			logs.Warnf("ncp.Task.collect bad beacon err=%v", err)
			return false
		}
		t.found++
		i.beacons = append(i.beacons, b)
		for _, l := range i.listeners {
			if l.NetScanBeacon != nil {
				l.NetScanBeacon(b)
			}
		}
	case spinel.PropMACEnergyScanResult:
		r, err := spinel.ParseEnergyResult(ev.Value)
		if err != nil {
			logs.Warnf("ncp.Task.collect bad energy result err=%v", err)
			return false
		}
		t.found++
		for _, l := range i.listeners {
			if l.EnergyScanResult != nil {
				l.EnergyScanResult(r)
			}
		}
	case spinel.PropMACScanState:
		d := spinel.NewDecoder(ev.Value)
		return d.Uint8() == spinel.ScanStateIdle && d.Err() == nil
	}
	return false
}

// channelList encodes a channel bitmask as the uint8 array SCAN_MASK
// expects.
func channelList(mask uint32) []byte {
	var out []byte
	for ch := 0; ch < 32; ch++ {
		if mask&(1<<uint(ch)) != 0 {
			out = append(out, byte(ch))
		}
	}
	return out
}

// Beacons returns the results of the last network scan.
func (i *Instance) Beacons() []spinel.Beacon {
	return append([]spinel.Beacon(nil), i.beacons...)
}
