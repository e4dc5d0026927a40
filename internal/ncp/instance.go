package ncp

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/frame"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/session"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/runloop"
	"github.com/danmuck/wpanctl/internal/transport"
)

var (
	ErrNoTransport = errors.New("ncp: transport is required")
	ErrTransport   = errors.New("ncp: transport failure")
	ErrFault       = errors.New("ncp: NCP entered the fault state")
	errNoPower     = errors.New("ncp: no power control")
)

// maxRounds bounds how many scheduler rounds one Step may run.
const maxRounds = 32

// FirmwareUpgrader replaces NCP firmware out of band. Start returns
// immediately; the owner reports the outcome through FinishUpgrade on the
// loop goroutine.
type FirmwareUpgrader interface {
	CanUpgrade(ncpVersion string) bool
	Start() error
}

// Options configures an Instance.
type Options struct {
	Name    string
	Session session.Config
	Framing frame.Framing

	AutoResume         bool
	AutoDeepSleep      bool
	AutoUpdateFirmware bool
	TerminateOnFault   bool

	Power    *transport.Power
	Reset    *transport.ResetLine
	Upgrader FirmwareUpgrader
	Clock    runloop.Clock

	// OnFatal is called when the driver cannot continue: a transport
	// write failed or the NCP faulted with TerminateOnFault set.
	OnFatal func(error)
}

func DefaultOptions() Options {
	return Options{
		Name:       "wpan0",
		Session:    session.DefaultConfig(),
		Framing:    frame.FramingHDLC,
		AutoResume: true,
	}
}

// Listener receives notifications. Any field may be nil.
type Listener struct {
	PropertyChanged  func(key string, value protocol.Value)
	StateChanged     func(state NCPState)
	NetScanBeacon    func(b spinel.Beacon)
	EnergyScanResult func(r spinel.EnergyResult)
}

type upgradeState int

const (
	upgradeIdle upgradeState = iota
	upgradeRunning
	upgradeDone
)

// Instance is the host-side driver for one NCP. All methods must be called
// on the goroutine that calls Step.
type Instance struct {
	opts    Options
	cfg     session.Config
	clock   runloop.Clock
	tr      transport.Transport
	codec   frame.Codec
	outbox  *session.Outbox
	tids    spinel.TIDAllocator
	backoff *session.ResetBackoff
	logLine frame.LineBuffer

	now     time.Time
	horizon runloop.Horizon
	gen     uint64

	state              NCPState
	driver             driverState
	initializing       bool
	enabled            bool
	autoResume         bool
	autoDeepSleep      bool
	autoUpdateFirmware bool
	terminateOnFault   bool
	resetExpected      bool
	failureCount       int
	wasBusy            bool
	fatal              bool

	tasks []Task
	ctl   lifecycle

	// wokeFor is the last task a wake was queued for.
	wokeFor Task

	caps       map[uint32]bool
	props      map[string]protocol.Value
	settings   map[string]setting
	channels   []uint8
	nodeType   NodeType
	networkKey []byte
	keyIndex   uint32
	xpanid     []byte
	panid      uint16
	mlPrefix   netip.Addr
	ncpVersion string
	beacons    []spinel.Beacon

	upgrade    upgradeState
	upgradeErr error

	listeners []Listener
	mfg       MfgCapability
}

func New(tr transport.Transport, opts Options) (*Instance, error) {
	if tr == nil {
		return nil, ErrNoTransport
	}
	codec, err := frame.New(opts.Framing, frame.DefaultLimits())
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = runloop.SystemClock{}
	}
	if opts.Name == "" {
		opts.Name = DefaultOptions().Name
	}
	cfg := opts.Session.Normalize()
	i := &Instance{
		opts:               opts,
		cfg:                cfg,
		clock:              opts.Clock,
		tr:                 tr,
		codec:              codec,
		outbox:             session.NewOutbox(),
		backoff:            session.NewResetBackoff(cfg.ResetBackoff),
		now:                opts.Clock.Now(),
		state:              Uninitialized,
		enabled:            true,
		autoResume:         opts.AutoResume,
		autoDeepSleep:      opts.AutoDeepSleep,
		autoUpdateFirmware: opts.AutoUpdateFirmware,
		terminateOnFault:   opts.TerminateOnFault,
		wasBusy:            true,
		caps:               map[uint32]bool{},
		props:              map[string]protocol.Value{},
		settings:           map[string]setting{},
	}
	i.mfg = mfgPassthrough{i: i}
	logs.Infof("ncp.New name=%s transport=%s framing=%s", opts.Name, tr.Name(), codec.Name())
	return i, nil
}

func (i *Instance) Name() string                   { return i.opts.Name }
func (i *Instance) State() NCPState                { return i.state }
func (i *Instance) Enabled() bool                  { return i.enabled }
func (i *Instance) IsInitializing() bool           { return i.initializing }
func (i *Instance) FailureCount() int              { return i.failureCount }
func (i *Instance) NodeType() NodeType             { return i.nodeType }
func (i *Instance) Config() session.Config         { return i.cfg }
func (i *Instance) Transport() transport.Transport { return i.tr }

// HasCapability reports a capability learned from the NCP.
func (i *Instance) HasCapability(c uint32) bool { return i.caps[c] }

// AddListener registers l for notifications.
func (i *Instance) AddListener(l Listener) {
	i.listeners = append(i.listeners, l)
}

// Mfg returns the manufacturing command passthrough.
func (i *Instance) Mfg() MfgCapability {
	return i.mfg
}

// Step runs the scheduler until it stops making progress and returns the
// earliest time it wants to run again.
func (i *Instance) Step(now time.Time) (time.Time, bool) {
	settled := false
	for round := 0; round < maxRounds; round++ {
		i.now = now
		i.horizon.Reset()
		before := i.mark()
		i.process(Event{Kind: EventIdle})
		i.flush()
		if i.mark() != before {
			continue
		}
		next, ok := i.horizon.Next()
		if !ok || next.After(now) {
			settled = true
			break
		}
	}
	if !settled {
		i.horizon.Yield(now)
	}
	i.updateBusy()
	return i.horizon.Next()
}

// Feed hands bytes read from the transport to the frame decoder.
func (i *Instance) Feed(p []byte) {
	i.now = i.clock.Now()
	if i.state.Detached() {
		logs.Debugf("ncp.Instance.Feed detached, dropping bytes=%d", len(p))
		return
	}
	i.codec.Feed(p, i.handleFrameEvent)
}

type progressMark struct {
	gen     uint64
	state   NCPState
	driver  driverState
	ctl     int
	tasks   int
	head    Task
	headPC  int
	pending bool
}

func (i *Instance) mark() progressMark {
	m := progressMark{
		gen:     i.gen,
		state:   i.state,
		driver:  i.driver,
		ctl:     i.ctl.progress(),
		tasks:   len(i.tasks),
		pending: !i.outbox.Empty(),
	}
	if len(i.tasks) > 0 {
		m.head = i.tasks[0]
		m.headPC = m.head.progress()
	}
	return m
}

func (i *Instance) process(ev Event) {
	if i.state == Fault {
		i.ctl.restart()
		return
	}
	i.runTasks(ev)
	i.ctl.run(i, ev)
}

// flush writes the pending command, if any, and completes the outbox.
func (i *Instance) flush() {
	buf, ok := i.outbox.Pending()
	if !ok {
		return
	}
	if f, err := spinel.ParseFrame(buf); err == nil {
		logs.Infof("[->NCP] %s tid:%d", f, spinel.HeaderTID(f.Header))
	}
	wire, err := i.codec.Encode(buf)
	if err != nil {
		logs.Errf("ncp.Instance.flush encode err=%v", err)
		i.outbox.Complete(protocol.StatusFailure, i.now)
		return
	}
	if _, err := i.tr.Write(wire); err != nil {
		logs.Errf("ncp.Instance.flush write transport=%s err=%v", i.tr.Name(), err)
		i.outbox.Complete(protocol.StatusFailure, i.now)
		i.signalFatal(fmt.Errorf("%w: %v", ErrTransport, err))
		return
	}
	observability.RecordFrame("out")
	waited := i.outbox.Complete(protocol.StatusOk, i.now)
	logs.Tracef("ncp.Instance.flush bytes=%d queued=%s", len(wire), waited)
}

func (i *Instance) signalFatal(err error) {
	if i.fatal {
		return
	}
	i.fatal = true
	logs.Errf("ncp.Instance fatal err=%v", err)
	if i.opts.OnFatal != nil {
		i.opts.OnFatal(err)
	}
}

// await is the bounded wait used at every suspension point. It arms d on
// first use and watches it until cond holds or d expires.
func (i *Instance) await(d *runloop.Deadline, timeout time.Duration, cond func() bool) (ok, timedOut bool) {
	if cond() {
		d.Clear()
		return true, false
	}
	if !d.Armed() {
		d.Arm(i.now, timeout)
	}
	if d.Expired(i.now) {
		d.Clear()
		return false, true
	}
	i.horizon.Watch(d)
	return false, false
}

// sleep reports whether dur has elapsed since d was first consulted.
func (i *Instance) sleep(d *runloop.Deadline, dur time.Duration) bool {
	if !d.Armed() {
		d.Arm(i.now, dur)
	}
	if d.Expired(i.now) {
		d.Clear()
		return true
	}
	i.horizon.Watch(d)
	return false
}

func (i *Instance) setProperty(key string, v protocol.Value) {
	if old, ok := i.props[key]; ok && old.Equal(v) {
		return
	}
	i.props[key] = v
	i.gen++
	logs.Debugf("ncp.Instance property key=%s value=%s", key, v)
	for _, l := range i.listeners {
		if l.PropertyChanged != nil {
			l.PropertyChanged(key, v)
		}
	}
}

// CachedProperty is the synchronous best-effort read. It never talks to
// the NCP and reports false when nothing is cached.
func (i *Instance) CachedProperty(key string) (protocol.Value, bool) {
	if v, ok := i.localProperty(key); ok {
		return v, true
	}
	if e, ok := schema.Lookup(key); ok {
		key = e.Key
	}
	v, ok := i.props[key]
	return v, ok
}

func (i *Instance) canSetPower() bool {
	return i.opts.Power != nil
}

func (i *Instance) setPower(on bool) error {
	if i.opts.Power == nil {
		return errNoPower
	}
	if err := i.opts.Power.Set(on); err != nil {
		logs.Errf("ncp.Instance.setPower on=%t err=%v", on, err)
		return err
	}
	return nil
}

// hardReset pulses the reset line, or resets the transport when there is
// none. Decoder state, the outbox and learned capabilities are dropped.
func (i *Instance) hardReset() {
	logs.Warnf("ncp.Instance.hardReset name=%s", i.opts.Name)
	i.codec.Reset()
	i.outbox.Drop(protocol.StatusCanceled)
	i.caps = map[uint32]bool{}
	i.resetExpected = true
	var err error
	if i.opts.Reset != nil {
		err = i.opts.Reset.Pulse()
	} else {
		err = i.tr.Reset()
	}
	if err != nil {
		logs.Errf("ncp.Instance.hardReset err=%v", err)
	}
}

// IsBusy reports whether the driver has work that keeps the host awake.
func (i *Instance) IsBusy() bool {
	if i.state == Fault {
		return false
	}
	if i.initializing {
		return true
	}
	if i.upgrade == upgradeRunning {
		return true
	}
	return i.state.busy() || len(i.tasks) > 0
}

// ReadyForHostSleep is the inverse of IsBusy as last published.
func (i *Instance) ReadyForHostSleep() bool {
	return !i.wasBusy
}

func (i *Instance) updateBusy() {
	busy := i.IsBusy()
	if busy == i.wasBusy {
		return
	}
	i.wasBusy = busy
	if busy {
		logs.Infof("ncp.Instance NCP is now BUSY")
	} else {
		logs.Infof("ncp.Instance NCP is no longer busy, host sleep is permitted")
	}
	i.setProperty(schema.KeyDaemonReadyForHostSleep, protocol.Bool(!busy))
}

// FinishUpgrade records the outcome of a firmware upgrade started
// through the FirmwareUpgrader.
func (i *Instance) FinishUpgrade(err error) {
	if i.upgrade != upgradeRunning {
		return
	}
	i.upgrade = upgradeDone
	i.upgradeErr = err
	i.gen++
}
