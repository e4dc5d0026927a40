package ncp

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/testutil/fakencp"
	"github.com/danmuck/wpanctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyGetFromNCP(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertyGet(schema.KeyNCPChannel, r.cb())
	h.pump()

	require.Equal(t, 1, r.calls)
	assert.Equal(t, protocol.StatusOk, r.status)
	assert.Equal(t, protocol.Uint(11), r.value)
}

func TestPropertyGetLocalKeys(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.dev.ClearLog()

	var r result
	h.ctl.PropertyGet("ncp:state", r.cb())
	assert.Equal(t, protocol.String("offline"), r.value)
	h.ctl.PropertyGet(schema.KeyDriverName, r.cb())
	assert.Equal(t, protocol.String(DriverName), r.value)
	h.ctl.PropertyGet(schema.KeyDaemonFaultReason, r.cb())
	assert.Equal(t, protocol.StatusPropertyEmpty, r.status)

	assert.Empty(t, h.dev.Received())
}

func TestPropertyGetUnknownKey(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertyGet("No:Such:Key", r.cb())
	assert.Equal(t, protocol.StatusPropertyNotFound, r.status)
}

func TestPropertyGetNotFoundOnNCP(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.dev.DeleteProp(spinel.PropPHYChan)

	var r result
	h.ctl.PropertyGet(schema.KeyNCPChannel, r.cb())
	h.pump()

	assert.Equal(t, protocol.StatusPropertyNotFound, r.status)
}

func TestPropertySetWritesNCP(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertySet(schema.KeyNCPChannel, protocol.Uint(15), r.cb())
	h.pump()

	require.Equal(t, protocol.StatusOk, r.status)
	v, _ := h.dev.Prop(spinel.PropPHYChan)
	assert.Equal(t, []byte{15}, v)
	cached, ok := h.inst.CachedProperty(schema.KeyNCPChannel)
	require.True(t, ok)
	assert.Equal(t, protocol.Uint(15), cached)
}

func TestPropertySetRejects(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertySet("No:Such:Key", protocol.Uint(1), r.cb())
	assert.Equal(t, protocol.StatusPropertyNotFound, r.status)

	h.ctl.PropertySet(schema.KeyNCPVersion, protocol.String("x"), r.cb())
	assert.Equal(t, protocol.StatusFeatureNotSupported, r.status)

	h.ctl.PropertySet(schema.KeyNCPState, protocol.String("associated"), r.cb())
	assert.Equal(t, protocol.StatusInvalidArgument, r.status)

	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.String("maybe"), r.cb())
	assert.Equal(t, protocol.StatusInvalidArgument, r.status)
}

func TestSettingsReplayAfterReset(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertySet(schema.KeyNCPTXPower, protocol.Int(-4), r.cb())
	h.pump()
	require.Equal(t, protocol.StatusOk, r.status)

	h.ctl.PropertySet(schema.KeyNCPSleepyPollInterval, protocol.Uint(500), r.cb())
	assert.Equal(t, protocol.StatusFeatureNotSupported, r.status, "NCP lacks the sleepy role")

	h.dev.InjectStatus(spinel.StatusResetCrash)
	h.runFor(time.Second)
	require.Equal(t, Offline, h.inst.State())

	tx := h.sent(spinel.CmdPropValueSet, spinel.PropPHYTXPower)
	require.Len(t, tx, 2)
	assert.Equal(t, []byte{0xFC}, tx[1].Value())
	assert.Empty(t, h.sent(spinel.CmdPropValueSet, spinel.PropMACDataPollPeriod))
}

func TestDaemonFlagsNotify(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	changed := map[string]protocol.Value{}
	require.NoError(t, h.ctl.AddListener(Listener{PropertyChanged: func(k string, v protocol.Value) { changed[k] = v }}))

	var r result
	h.ctl.PropertySet("daemon:autodeepsleep", protocol.Bool(true), r.cb())
	require.Equal(t, protocol.StatusOk, r.status)

	assert.Equal(t, protocol.Bool(true), changed[schema.KeyDaemonAutoDeepSleep])
	h.ctl.PropertyGet(schema.KeyDaemonAutoDeepSleep, r.cb())
	assert.Equal(t, protocol.Bool(true), r.value)
}

func TestAutoDeepSleepAfterIdle(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t, func(o *Options) { o.AutoDeepSleep = true })
	h.ready()

	h.runFor(h.inst.Config().AutoDeepSleepTimeout + time.Second)

	assert.Equal(t, DeepSleep, h.inst.State())
	assert.True(t, h.inst.ReadyForHostSleep())
}

func TestAssistingPortsInsertAndRemove(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.dev.ClearLog()

	var r result
	h.ctl.PropertyInsert(schema.KeyThreadAssistingPorts, protocol.Uint(1000), r.cb())
	h.pump()
	require.Equal(t, protocol.StatusOk, r.status)
	h.ctl.PropertyRemove(schema.KeyThreadAssistingPorts, protocol.Uint(1000), r.cb())
	h.pump()
	require.Equal(t, protocol.StatusOk, r.status)

	port := spinel.NewEncoder().Uint16(1000).Bytes()
	assert.Equal(t, 1, h.dev.Count(spinel.CmdPropInsert, int64(spinel.PropThreadAssistingPorts)))
	assert.Equal(t, 1, h.dev.Count(spinel.CmdPropRemove, int64(spinel.PropThreadAssistingPorts)))
	assert.Equal(t, port, h.dev.Received()[0].Value())

	h.ctl.PropertyInsert(schema.KeyThreadAssistingPorts, protocol.Uint(70000), r.cb())
	assert.Equal(t, protocol.StatusInvalidArgument, r.status)
	h.ctl.PropertyInsert(schema.KeyNCPChannel, protocol.Uint(1), r.cb())
	assert.Equal(t, protocol.StatusPropertyNotFound, r.status)
}

func TestPermitJoin(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PermitJoin(60, 1000, r.cb())
	h.pump()
	require.Equal(t, protocol.StatusOk, r.status)
	h.ctl.PermitJoin(0, 0, r.cb())
	h.pump()
	require.Equal(t, protocol.StatusOk, r.status)

	h.ctl.PermitJoin(30, 0, r.cb())
	h.pump()
	require.Equal(t, protocol.StatusOk, r.status)

	sets := h.sent(spinel.CmdPropValueSet, spinel.PropThreadAssistingPorts)
	require.Len(t, sets, 3)
	assert.Equal(t, spinel.NewEncoder().Uint16(1000).Bytes(), sets[0].Value())
	assert.Empty(t, sets[1].Value())
	assert.Equal(t, spinel.NewEncoder().Uint16(CommissionerPort).Bytes(), sets[2].Value(), "port 0 opens the commissioner port")
}

func TestPermitJoinWhenDisabled(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.PropertySet(schema.KeyDaemonEnabled, protocol.Bool(false), r.cb())
	require.Equal(t, protocol.StatusOk, r.status)

	var join result
	h.ctl.PermitJoin(60, 1000, join.cb())
	assert.Equal(t, 1, join.calls)
	assert.Equal(t, protocol.StatusInvalidWhenDisabled, join.status)
	assert.Empty(t, h.sent(spinel.CmdPropValueSet, spinel.PropThreadAssistingPorts))
}

func TestMfgPassthrough(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.Mfg("diag start", r.cb())
	h.pump()

	require.Equal(t, protocol.StatusOk, r.status)
	assert.Equal(t, protocol.String("diag start"), r.value)
}

func TestOperationsRejectedForState(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.DataPoll(r.cb())
	assert.Equal(t, protocol.StatusInvalidForCurrentState, r.status)

	h.ctl.UpgradeFirmware(r.cb())
	assert.Equal(t, protocol.StatusFeatureNotSupported, r.status)

	h.ctl.EnergyScanStop(r.cb())
	assert.Equal(t, protocol.StatusFeatureNotImplemented, r.status)

	h.ctl.AddOnMeshPrefix(netip.MustParsePrefix("10.1.0.0/16"), PrefixOnMesh, false, r.cb())
	assert.Equal(t, protocol.StatusInvalidArgument, r.status)
}

func TestAttachAndRefresh(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()
	h.onSet(spinel.PropNetStackUp, []byte{1}, valueIs(spinel.PropNetRole, []byte{spinel.RoleChild}))

	var r result
	h.ctl.Attach(r.cb())
	h.runFor(time.Second)
	require.Equal(t, protocol.StatusOk, r.status)
	assert.Equal(t, Associated, h.inst.State())

	h.ctl.Attach(r.cb())
	assert.Equal(t, protocol.StatusAlready, r.status)

	h.ctl.RefreshState(r.cb())
	h.pump()
	assert.Equal(t, protocol.StatusOk, r.status)
}

func TestResetReinitializes(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	var r result
	h.ctl.Reset(r.cb())
	h.runFor(time.Second)

	require.Equal(t, protocol.StatusOk, r.status)
	assert.Equal(t, Offline, h.inst.State())
	assert.Len(t, h.sent(spinel.CmdPropValueGet, spinel.PropProtocolVersion), 2)
}

type refusing struct{}

func (refusing) Post(func()) error { return errors.New("loop stopped") }

func TestRefusedPostCancels(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	ctl := NewControlInterface(h.inst, refusing{})

	var r result
	ctl.Join(NetworkOptions{}, r.cb())
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, protocol.StatusCanceled, r.status)

	_, ok := ctl.CachedProperty(context.Background(), schema.KeyNCPVersion)
	assert.False(t, ok)
	_, err := ctl.Snapshot(context.Background())
	assert.Error(t, err)
	assert.Error(t, ctl.AddListener(Listener{}))
}

func TestSnapshot(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.ready()

	s, err := h.ctl.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wpan0", s.Name)
	assert.Equal(t, Offline.String(), s.State)
	assert.True(t, s.Enabled)
	assert.Equal(t, fakencp.Version, s.NCPVersion)
	assert.Equal(t, "fakencp", s.Transport)
	assert.Empty(t, s.Tasks)

	v, ok := h.ctl.CachedProperty(context.Background(), schema.KeyNCPVersion)
	require.True(t, ok)
	assert.Equal(t, protocol.String(fakencp.Version), v)
}
