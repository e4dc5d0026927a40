package ncp

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/testutil/fakencp"
	"github.com/danmuck/wpanctl/internal/testutil/testlog"
	"github.com/danmuck/wpanctl/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitReachesOffline(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	require.True(t, h.inst.IsInitializing() || h.inst.State() == Uninitialized)

	h.ready()

	assert.True(t, h.inst.HasCapability(spinel.CapRoleRouter))
	assert.Equal(t, 0, h.inst.FailureCount())
	assert.Contains(t, h.states, Offline)
	assert.True(t, h.inst.ReadyForHostSleep())

	v, ok := h.inst.CachedProperty(schema.KeyNCPVersion)
	require.True(t, ok)
	assert.Equal(t, protocol.String(fakencp.Version), v)

	// Auto-resume looked for a saved network and found none.
	assert.Len(t, h.sent(spinel.CmdPropValueGet, spinel.PropNetSaved), 1)
	assert.Empty(t, h.sent(spinel.CmdPropValueSet, spinel.PropNetStackUp))
}

func TestInitResumesSavedNetwork(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.dev.SetProp(spinel.PropNetSaved, []byte{1})

	h.runFor(time.Second)

	require.Len(t, h.sent(spinel.CmdPropValueSet, spinel.PropNetIfUp), 1)
	require.Len(t, h.sent(spinel.CmdPropValueSet, spinel.PropNetStackUp), 1)
	assert.Equal(t, Associating, h.inst.State())
}

func TestInitSkipsResumeWhenDisabled(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, func(o *Options) { o.AutoResume = false })
	h.dev.SetProp(spinel.PropNetSaved, []byte{1})

	h.ready()

	assert.Empty(t, h.sent(spinel.CmdPropValueGet, spinel.PropNetSaved))
}

func TestProtocolMismatchFaults(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.dev.SetProp(spinel.PropProtocolVersion, spinel.NewEncoder().PackedUint(3).PackedUint(0).Bytes())

	h.runFor(time.Second)

	assert.Equal(t, Fault, h.inst.State())
	v, ok := h.inst.CachedProperty(schema.KeyDaemonFaultReason)
	require.True(t, ok)
	assert.Equal(t, protocol.String("protocol version mismatch"), v)
}

func TestRepeatedInitFailuresFault(t *testing.T) {
	testlog.Start(t)
	var fatal []error
	h := newHarness(t, func(o *Options) {
		o.TerminateOnFault = true
		o.OnFatal = func(err error) { fatal = append(fatal, err) }
	})
	h.dev.Silence(true)
	h.dev.ResetOnReopen(false)

	h.runFor(2 * time.Minute)

	require.Equal(t, Fault, h.inst.State())
	assert.GreaterOrEqual(t, h.dev.Resets(), 1, "even retries pulse a hard reset")
	assert.GreaterOrEqual(t, h.dev.Count(spinel.CmdReset, -1), 1)
	assert.GreaterOrEqual(t, h.dev.Hibernates(), 1)
	require.Len(t, fatal, 1)
	assert.ErrorIs(t, fatal[0], ErrFault)
	assert.False(t, h.inst.IsBusy())

	var r result
	h.inst.StartTask(NewCommand("after-fault").Add(spinel.Noop()).Callback(r.cb()).Task())
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, protocol.StatusInvalidWhenDisabled, r.status)
}

func TestEnableRecoversFromFault(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.dev.Silence(true)
	h.dev.ResetOnReopen(false)
	h.runFor(2 * time.Minute)
	require.Equal(t, Fault, h.inst.State())

	h.dev.Silence(false)
	h.dev.ResetOnReopen(true)
	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	require.Equal(t, protocol.StatusOk, r.status)
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(true), r.cb())
	require.Equal(t, protocol.StatusOk, r.status)

	h.runFor(2 * time.Second)

	assert.Equal(t, Offline, h.inst.State())
	_, ok := h.inst.CachedProperty(schema.KeyDaemonFaultReason)
	assert.False(t, ok)
}

func TestUnexpectedCrashCancelsTasksAndReinitializes(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	// Leave one GET hanging.
	h.dev.Hook(func(req fakencp.Request, w *fakencp.Writer) bool {
		return req.Is(spinel.CmdPropValueGet, spinel.PropPHYRSSI)
	})
	var r result
	h.ctl.PropertyGet(schema.KeyNCPRSSI, r.cb())
	h.pump()
	require.Equal(t, 0, r.calls)

	h.dev.InjectStatus(spinel.StatusResetCrash)
	h.pump()

	assert.Equal(t, 1, r.calls)
	assert.Equal(t, protocol.StatusNCPCrashed, r.status)

	h.runFor(time.Second)
	assert.Equal(t, Offline, h.inst.State())
	assert.Len(t, h.sent(spinel.CmdPropValueGet, spinel.PropProtocolVersion), 2)
	assert.Equal(t, 1, r.calls)
}

func TestUnexpectedSoftResetReportsNCPReset(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.dev.Hook(func(req fakencp.Request, w *fakencp.Writer) bool {
		return req.Is(spinel.CmdPropValueGet, spinel.PropPHYRSSI)
	})
	var r result
	h.ctl.PropertyGet(schema.KeyNCPRSSI, r.cb())
	h.pump()

	h.dev.InjectStatus(spinel.StatusResetSoftware)
	h.pump()

	assert.Equal(t, protocol.StatusNCPReset, r.status)
}

func TestRunawayResetsBackOff(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	// The first initialization and the next two stay inside the threshold.
	for n := 0; n < 2; n++ {
		h.dev.InjectStatus(spinel.StatusResetCrash)
		h.runFor(time.Second)
		require.Equal(t, Offline, h.inst.State(), "crash %d", n+1)
	}

	h.dev.InjectStatus(spinel.StatusResetCrash)
	h.runFor(500 * time.Millisecond)
	assert.True(t, h.inst.IsInitializing(), "fourth initialization in the window waits out the backoff")
	assert.Len(t, h.sent(spinel.CmdPropValueGet, spinel.PropProtocolVersion), 3)

	h.runFor(time.Second)
	assert.Equal(t, Offline, h.inst.State())
	assert.Len(t, h.sent(spinel.CmdPropValueGet, spinel.PropProtocolVersion), 4)
}

func TestDisableSleepsAndEnableWakes(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	require.Equal(t, protocol.StatusOk, r.status)
	h.runFor(2 * time.Second)

	require.Equal(t, DeepSleep, h.inst.State())
	require.Len(t, h.sent(spinel.CmdPropValueSet, spinel.PropPHYEnabled), 1)
	noops := h.dev.Count(spinel.CmdNoop, -1)

	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(true), r.cb())
	h.runFor(time.Second)

	assert.Equal(t, Offline, h.inst.State())
	assert.Greater(t, h.dev.Count(spinel.CmdNoop, -1), noops)
}

func TestDeepSleepIgnoresManualStepFailures(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.dev.Hook(func(req fakencp.Request, w *fakencp.Writer) bool {
		if req.Is(spinel.CmdPropValueSet, spinel.PropPHYEnabled) {
			w.Status(req.Header, spinel.StatusPropNotFound)
			return true
		}
		return false
	})
	resets := h.dev.Resets()

	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	h.runFor(2 * time.Second)

	assert.Equal(t, DeepSleep, h.inst.State())
	assert.Equal(t, resets, h.dev.Resets())
	assert.Len(t, h.sent(spinel.CmdPropValueSet, spinel.PropPHYEnabled), 1)
}

// powerSwitch records power line writes and can refuse to switch off.
type powerSwitch struct {
	writes  []byte
	failOff bool
}

func (p *powerSwitch) Seek(int64, int) (int64, error) { return 0, nil }

func (p *powerSwitch) Write(b []byte) (int, error) {
	if len(b) == 1 && b[0] == '0' && p.failOff {
		return 0, errors.New("gpio: device busy")
	}
	if len(b) == 1 && b[0] != '\n' {
		p.writes = append(p.writes, b[0])
	}
	return len(b), nil
}

func TestDeepSleepFallsBackWhenPowerOffFails(t *testing.T) {
	testlog.Start(t)
	sw := &powerSwitch{failOff: true}
	h := newHarness(t, func(o *Options) {
		o.Power = transport.NewPower(transport.NewSideChannel("power", sw))
	})
	h.ready()
	sw.writes = nil
	h.dev.ClearLog()

	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	h.runFor(2 * time.Second)

	require.Equal(t, DeepSleep, h.inst.State())
	assert.Equal(t, []byte{'1'}, sw.writes, "power is restored after the failed switch off")
	assert.Len(t, h.sent(spinel.CmdPropValueSet, spinel.PropPHYEnabled), 1)
}

func TestTaskQueuedBehindDeepSleepWakesFirst(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.dev.ClearLog()

	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	h.pump()
	require.Contains(t, h.inst.Tasks(), "deep-sleep")

	var get result
	h.ctl.PropertyGet(schema.KeyNCPChannel, get.cb())
	h.runFor(2 * time.Second)

	require.Equal(t, 1, get.calls)
	assert.Equal(t, protocol.StatusOk, get.status)

	var wire []string
	for _, req := range h.dev.Received() {
		switch {
		case req.Is(spinel.CmdPropValueSet, spinel.PropPHYEnabled):
			wire = append(wire, "radio-off")
		case req.ID == spinel.CmdNoop:
			wire = append(wire, "noop")
		case req.Is(spinel.CmdPropValueGet, spinel.PropPHYChan):
			wire = append(wire, "get")
		}
	}
	offAt := slices.Index(wire, "radio-off")
	getAt := slices.Index(wire, "get")
	require.GreaterOrEqual(t, offAt, 0, "wire=%v", wire)
	require.Greater(t, getAt, offAt, "wire=%v", wire)
	assert.Contains(t, wire[offAt:getAt], "noop", "wake goes out between sleep and the GET: wire=%v", wire)
}

func TestTaskWhileAsleepWakesFirst(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	h.runFor(2 * time.Second)
	require.Equal(t, DeepSleep, h.inst.State())
	h.dev.ClearLog()

	var get result
	h.ctl.PropertyGet(schema.KeyNCPChannel, get.cb())
	h.runFor(time.Second)

	require.Equal(t, 1, get.calls)
	assert.Equal(t, protocol.StatusOk, get.status)
	assert.Equal(t, protocol.Uint(11), get.value)

	log := h.dev.Received()
	require.NotEmpty(t, log)
	assert.Equal(t, spinel.CmdNoop, log[0].ID, "wake goes out before the queued GET")
}

func TestAssociatedTickle(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.onSet(spinel.PropNetStackUp, []byte{1}, valueIs(spinel.PropNetRole, []byte{spinel.RoleChild}))

	var r result
	h.ctl.Join(NetworkOptions{}, r.cb())
	h.runFor(time.Second)
	require.Equal(t, protocol.StatusOk, r.status)
	noops := h.dev.Count(spinel.CmdNoop, -1)

	h.runFor(2 * time.Minute)

	assert.Greater(t, h.dev.Count(spinel.CmdNoop, -1), noops)
	assert.Equal(t, Associated, h.inst.State())
	assert.Equal(t, 0, h.inst.FailureCount())
}

func TestRoleDetachedIsolates(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.onSet(spinel.PropNetStackUp, []byte{1}, valueIs(spinel.PropNetRole, []byte{spinel.RoleRouter}))
	var r result
	h.ctl.Join(NetworkOptions{}, r.cb())
	h.runFor(time.Second)
	require.Equal(t, Associated, h.inst.State())
	assert.Equal(t, NodeRouter, h.inst.NodeType())

	h.dev.InjectValue(spinel.PropNetRole, []byte{spinel.RoleDetached})
	h.pump()

	assert.Equal(t, Isolated, h.inst.State())
}

type stubUpgrader struct {
	started int
}

func (u *stubUpgrader) CanUpgrade(string) bool { return true }
func (u *stubUpgrader) Start() error {
	u.started++
	return nil
}

func TestFirmwareUpgradeDetachesAndReinitializes(t *testing.T) {
	testlog.Start(t)
	up := &stubUpgrader{}
	h := newHarness(t, func(o *Options) { o.Upgrader = up })
	h.ready()

	var r result
	h.ctl.UpgradeFirmware(r.cb())
	require.Equal(t, protocol.StatusOk, r.status)
	require.Equal(t, 1, up.started)
	h.pump()
	assert.Equal(t, Upgrading, h.inst.State())
	assert.True(t, h.inst.IsBusy())

	h.ctl.UpgradeFirmware(r.cb())
	assert.Equal(t, protocol.StatusInProgress, r.status)

	h.inst.FinishUpgrade(nil)
	h.runFor(2 * time.Second)

	assert.Equal(t, Offline, h.inst.State())
	assert.GreaterOrEqual(t, h.dev.Hibernates(), 1)
}
