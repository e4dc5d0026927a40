package ncp

import (
	"context"
	"net/netip"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// Executor runs fn on the goroutine that owns the Instance.
type Executor interface {
	Post(fn func()) error
}

// Inline runs posted work on the calling goroutine. Tests that drive the
// Instance directly use it.
type Inline struct{}

func (Inline) Post(fn func()) error {
	fn()
	return nil
}

// ControlInterface is the operation surface exposed to collaborators.
// Every operation completes through its callback exactly once, on the
// Instance's goroutine, unless the executor refused the work, in which
// case the callback runs on the caller's goroutine with Canceled.
type ControlInterface struct {
	i    *Instance
	exec Executor
}

func NewControlInterface(i *Instance, exec Executor) *ControlInterface {
	if exec == nil {
		exec = Inline{}
	}
	return &ControlInterface{i: i, exec: exec}
}

func (c *ControlInterface) post(op string, cb Callback, fn func(cb Callback)) {
	if cb == nil {
		cb = func(protocol.Status, protocol.Value) {}
	}
	if err := c.exec.Post(func() { fn(cb) }); err != nil {
		logs.Warnf("ncp.ControlInterface.%s post err=%v", op, err)
		cb(protocol.StatusCanceled, protocol.Value{})
	}
}

func (c *ControlInterface) Join(opts NetworkOptions, cb Callback) {
	c.post("Join", cb, func(cb Callback) { c.i.StartTask(newJoinTask(opts, cb)) })
}

func (c *ControlInterface) Form(opts NetworkOptions, cb Callback) {
	c.post("Form", cb, func(cb Callback) { c.i.StartTask(newFormTask(opts, cb)) })
}

func (c *ControlInterface) Leave(cb Callback) {
	c.post("Leave", cb, func(cb Callback) { c.i.StartTask(newLeaveTask(cb)) })
}

// Attach resumes a commissioned network without a full join.
func (c *ControlInterface) Attach(cb Callback) {
	c.post("Attach", cb, func(cb Callback) {
		i := c.i
		if !i.enabled {
			cb(protocol.StatusInvalidWhenDisabled, protocol.Value{})
			return
		}
		if i.state.Associated() {
			cb(protocol.StatusAlready, protocol.Value{})
			return
		}
		i.StartTask(NewCommand("attach").
			Add(spinel.SetBool(spinel.PropNetIfUp, true)).
			Add(spinel.SetBool(spinel.PropNetStackUp, true)).
			Callback(cb).
			Task())
	})
}

// Reset restarts the NCP; reinitialization follows the reset notification.
func (c *ControlInterface) Reset(cb Callback) {
	c.post("Reset", cb, func(cb Callback) {
		c.i.StartTask(NewCommand("reset").Add(spinel.Reset()).Callback(cb).Task())
	})
}

// RefreshState checks that the NCP still answers.
func (c *ControlInterface) RefreshState(cb Callback) {
	c.post("RefreshState", cb, func(cb Callback) {
		c.i.StartTask(NewCommand("refresh-state").
			Add(spinel.Noop()).
			Add(spinel.PropGet(spinel.PropNetRole)).
			Callback(cb).
			Task())
	})
}

// DataPoll makes a sleepy end device poll its parent now.
func (c *ControlInterface) DataPoll(cb Callback) {
	c.post("DataPoll", cb, func(cb Callback) {
		if c.i.nodeType != NodeSleepyEndDevice {
			cb(protocol.StatusInvalidForCurrentState, protocol.Value{})
			return
		}
		c.i.StartTask(NewCommand("data-poll").Add(spinel.Noop()).Callback(cb).Task())
	})
}

// PermitJoin opens the network to joiners on port for seconds. Zero
// seconds closes it; port 0 means the commissioner port.
func (c *ControlInterface) PermitJoin(seconds int, port uint16, cb Callback) {
	c.post("PermitJoin", cb, func(cb Callback) {
		if !c.i.enabled {
			cb(protocol.StatusInvalidWhenDisabled, protocol.Value{})
			return
		}
		if port == 0 {
			port = CommissionerPort
		}
		e := spinel.NewEncoder()
		if seconds > 0 {
			e.Uint16(port)
		}
		logs.Infof("ncp.ControlInterface.PermitJoin seconds=%d port=%d", seconds, port)
		c.i.StartTask(NewCommand("permit-join").
			Add(spinel.PropSet(spinel.PropThreadAssistingPorts, e.Bytes())).
			Callback(cb).
			Task())
	})
}

func (c *ControlInterface) NetScanStart(opts ScanOptions, cb Callback) {
	c.post("NetScanStart", cb, func(cb Callback) { c.i.StartTask(newScanTask(ScanBeacon, opts, cb)) })
}

func (c *ControlInterface) NetScanStop(cb Callback) {
	c.post("NetScanStop", cb, func(cb Callback) { cb(protocol.StatusFeatureNotImplemented, protocol.Value{}) })
}

func (c *ControlInterface) EnergyScanStart(opts ScanOptions, cb Callback) {
	c.post("EnergyScanStart", cb, func(cb Callback) { c.i.StartTask(newScanTask(ScanEnergy, opts, cb)) })
}

func (c *ControlInterface) EnergyScanStop(cb Callback) {
	c.post("EnergyScanStop", cb, func(cb Callback) { cb(protocol.StatusFeatureNotImplemented, protocol.Value{}) })
}

func (c *ControlInterface) PropertyGet(key string, cb Callback) {
	c.post("PropertyGet", cb, func(cb Callback) { c.i.PropertyGet(key, cb) })
}

func (c *ControlInterface) PropertySet(key string, v protocol.Value, cb Callback) {
	c.post("PropertySet", cb, func(cb Callback) { c.i.PropertySet(key, v, cb) })
}

func (c *ControlInterface) PropertyInsert(key string, v protocol.Value, cb Callback) {
	c.post("PropertyInsert", cb, func(cb Callback) { c.i.PropertyInsert(key, v, cb) })
}

func (c *ControlInterface) PropertyRemove(key string, v protocol.Value, cb Callback) {
	c.post("PropertyRemove", cb, func(cb Callback) { c.i.PropertyRemove(key, v, cb) })
}

// On-mesh prefix flags carried in THREAD_ON_MESH_NETS.
const (
	PrefixPreferred    uint8 = 1 << 5
	PrefixSLAAC        uint8 = 1 << 4
	PrefixDHCP         uint8 = 1 << 3
	PrefixConfigure    uint8 = 1 << 2
	PrefixDefaultRoute uint8 = 1 << 1
	PrefixOnMesh       uint8 = 1 << 0
)

func prefixPayload(prefix netip.Prefix) *spinel.Encoder {
	return spinel.NewEncoder().IPv6(prefix.Masked().Addr()).Uint8(uint8(prefix.Bits()))
}

// AddOnMeshPrefix publishes prefix in the local network data.
func (c *ControlInterface) AddOnMeshPrefix(prefix netip.Prefix, flags uint8, stable bool, cb Callback) {
	c.post("AddOnMeshPrefix", cb, func(cb Callback) {
		if !prefix.Addr().Is6() {
			cb(protocol.StatusInvalidArgument, protocol.Value{})
			return
		}
		payload := prefixPayload(prefix).Bool(stable).Uint8(flags).Bytes()
		c.i.StartTask(NewCommand("add-on-mesh-prefix").
			Lock(spinel.PropThreadAllowLocalNetDataChange).
			Add(spinel.PropInsert(spinel.PropThreadOnMeshNets, payload)).
			Callback(cb).
			Task())
	})
}

func (c *ControlInterface) RemoveOnMeshPrefix(prefix netip.Prefix, cb Callback) {
	c.post("RemoveOnMeshPrefix", cb, func(cb Callback) {
		if !prefix.Addr().Is6() {
			cb(protocol.StatusInvalidArgument, protocol.Value{})
			return
		}
		c.i.StartTask(NewCommand("remove-on-mesh-prefix").
			Lock(spinel.PropThreadAllowLocalNetDataChange).
			Add(spinel.PropRemove(spinel.PropThreadOnMeshNets, prefixPayload(prefix).Bytes())).
			Callback(cb).
			Task())
	})
}

// AddRoute publishes an external route. priority is -1 (low), 0 or 1 (high).
func (c *ControlInterface) AddRoute(prefix netip.Prefix, priority int, stable bool, cb Callback) {
	c.post("AddRoute", cb, func(cb Callback) {
		if !prefix.Addr().Is6() || priority < -1 || priority > 1 {
			cb(protocol.StatusInvalidArgument, protocol.Value{})
			return
		}
		flags := uint8(priority&0x3) << 6
		payload := prefixPayload(prefix).Bool(stable).Uint8(flags).Bytes()
		c.i.StartTask(NewCommand("add-route").
			Lock(spinel.PropThreadAllowLocalNetDataChange).
			Add(spinel.PropInsert(spinel.PropThreadOffMeshRoutes, payload)).
			Callback(cb).
			Task())
	})
}

func (c *ControlInterface) RemoveRoute(prefix netip.Prefix, cb Callback) {
	c.post("RemoveRoute", cb, func(cb Callback) {
		if !prefix.Addr().Is6() {
			cb(protocol.StatusInvalidArgument, protocol.Value{})
			return
		}
		c.i.StartTask(NewCommand("remove-route").
			Lock(spinel.PropThreadAllowLocalNetDataChange).
			Add(spinel.PropRemove(spinel.PropThreadOffMeshRoutes, prefixPayload(prefix).Bytes())).
			Callback(cb).
			Task())
	})
}

// Mfg runs a manufacturing command.
func (c *ControlInterface) Mfg(cmd string, cb Callback) {
	c.post("Mfg", cb, func(cb Callback) {
		m := c.i.Mfg()
		if m == nil {
			cb(protocol.StatusFeatureNotSupported, protocol.Value{})
			return
		}
		m.MfgCommand(cmd, cb)
	})
}

func (c *ControlInterface) UpgradeFirmware(cb Callback) {
	c.post("UpgradeFirmware", cb, func(cb Callback) { c.i.UpgradeFirmware(cb) })
}

// AddListener registers l on the Instance's goroutine.
func (c *ControlInterface) AddListener(l Listener) error {
	return c.exec.Post(func() { c.i.AddListener(l) })
}

// CachedProperty is the synchronous best-effort read. It reports false
// when nothing is cached or ctx ends first.
func (c *ControlInterface) CachedProperty(ctx context.Context, key string) (protocol.Value, bool) {
	type result struct {
		v  protocol.Value
		ok bool
	}
	ch := make(chan result, 1)
	if err := c.exec.Post(func() {
		v, ok := c.i.CachedProperty(key)
		ch <- result{v, ok}
	}); err != nil {
		return protocol.Value{}, false
	}
	select {
	case r := <-ch:
		return r.v, r.ok
	case <-ctx.Done():
		return protocol.Value{}, false
	}
}

// Snapshot is a point-in-time view of the driver.
type Snapshot struct {
	Name              string   `json:"name"`
	State             string   `json:"state"`
	Enabled           bool     `json:"enabled"`
	Initializing      bool     `json:"initializing"`
	NodeType          string   `json:"node_type"`
	FailureCount      int      `json:"failure_count"`
	Tasks             []string `json:"tasks"`
	ReadyForHostSleep bool     `json:"ready_for_host_sleep"`
	NCPVersion        string   `json:"ncp_version,omitempty"`
	Transport         string   `json:"transport"`
}

func (i *Instance) Snapshot() Snapshot {
	return Snapshot{
		Name:              i.opts.Name,
		State:             i.state.String(),
		Enabled:           i.enabled,
		Initializing:      i.initializing,
		NodeType:          i.nodeType.String(),
		FailureCount:      i.failureCount,
		Tasks:             i.Tasks(),
		ReadyForHostSleep: !i.wasBusy,
		NCPVersion:        i.ncpVersion,
		Transport:         i.tr.Name(),
	}
}

// Snapshot reads the driver state through the executor.
func (c *ControlInterface) Snapshot(ctx context.Context) (Snapshot, error) {
	ch := make(chan Snapshot, 1)
	if err := c.exec.Post(func() { ch <- c.i.Snapshot() }); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
