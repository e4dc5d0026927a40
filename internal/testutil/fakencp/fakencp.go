// Package fakencp is a scripted NCP for driver tests. It speaks HDLC
// framed Spinel on the device side of a transport.Transport and answers
// every host command synchronously from a property table.
package fakencp

import (
	"sync"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol/frame"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/transport"
)

var _ transport.Transport = (*NCP)(nil)

// Version is the NCP_VERSION string the fake reports.
const Version = "OPENTHREAD/fakencp; wpanctl-test"

// Request is one decoded host command.
type Request struct {
	Header byte
	spinel.Command
}

// Is reports whether the request is cmd on prop.
func (r Request) Is(cmd, prop uint32) bool {
	p, ok := r.Prop()
	return r.ID == cmd && ok && p == prop
}

// Hook may answer a request before the default behavior. Returning true
// marks the request handled.
type Hook func(req Request, w *Writer) bool

// Writer queues device-to-host frames from inside a Hook.
type Writer struct {
	n *NCP
}

// Send queues cmd with header.
func (w *Writer) Send(header byte, cmd spinel.Command) {
	w.n.emitLocked(header, cmd)
}

// Status queues a LAST_STATUS.
func (w *Writer) Status(header byte, status uint32) {
	w.n.emitLocked(header, statusCommand(status))
}

// Value queues a PROP_VALUE_IS.
func (w *Writer) Value(header byte, prop uint32, value []byte) {
	w.n.emitLocked(header, valueIs(prop, value))
}

// SetProp updates the property table.
func (w *Writer) SetProp(prop uint32, value []byte) {
	w.n.props[prop] = append([]byte(nil), value...)
}

// NCP implements transport.Transport.
type NCP struct {
	mu     sync.Mutex
	cond   *sync.Cond
	codec  frame.Codec
	props  map[uint32][]byte
	hooks  []Hook
	out    []byte
	log    []Request
	silent bool
	closed bool

	resetOnReopen bool
	resets        int
	hibernates    int
}

// New returns a fake NCP with a Thread-capable default property table.
func New() *NCP {
	codec, err := frame.New(frame.FramingHDLC, frame.DefaultLimits())
	if err != nil {
		panic(err)
	}
	n := &NCP{codec: codec, props: DefaultProps(), resetOnReopen: true}
	n.cond = sync.NewCond(&n.mu)
	return n
}

// DefaultProps is the table a freshly booted fake answers from.
func DefaultProps() map[uint32][]byte {
	enc := func(fill func(e *spinel.Encoder)) []byte {
		e := spinel.NewEncoder()
		fill(e)
		return e.Bytes()
	}
	channels := make([]byte, 0, 16)
	for ch := byte(11); ch <= 26; ch++ {
		channels = append(channels, ch)
	}
	return map[uint32][]byte{
		spinel.PropProtocolVersion: enc(func(e *spinel.Encoder) {
			e.PackedUint(spinel.ProtocolVersionMajor).PackedUint(spinel.ProtocolVersionMinor)
		}),
		spinel.PropNCPVersion:    enc(func(e *spinel.Encoder) { e.UTF8(Version) }),
		spinel.PropInterfaceType: enc(func(e *spinel.Encoder) { e.PackedUint(3) }),
		spinel.PropVendorID:      enc(func(e *spinel.Encoder) { e.PackedUint(0) }),
		spinel.PropCaps: enc(func(e *spinel.Encoder) {
			e.PackedUint(spinel.CapNetSave).PackedUint(spinel.CapCounters).PackedUint(spinel.CapRoleRouter)
		}),
		spinel.PropHWAddr:                {0x18, 0xb4, 0x30, 0x00, 0x00, 0x00, 0x00, 0x01},
		spinel.PropPHYChan:               {11},
		spinel.PropPHYChanSupported:      channels,
		spinel.PropMAC154PANID:           enc(func(e *spinel.Encoder) { e.Uint16(0xFFFF) }),
		spinel.PropMAC154LAddr:           {0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x70, 0x81},
		spinel.PropNetKeySequenceCounter: enc(func(e *spinel.Encoder) { e.Uint32(0) }),
		spinel.PropNetNetworkName:        enc(func(e *spinel.Encoder) { e.UTF8("") }),
		spinel.PropThreadAssistingPorts:  {},
		spinel.PropNetIfUp:               {0},
		spinel.PropNetStackUp:            {0},
		spinel.PropNetRole:               {spinel.RoleDetached},
		spinel.PropNetSaved:              {0},
	}
}

// Hook registers h ahead of hooks registered earlier.
func (n *NCP) Hook(h Hook) {
	n.mu.Lock()
	n.hooks = append([]Hook{h}, n.hooks...)
	n.mu.Unlock()
}

// Silence drops every command without an answer while on is set.
func (n *NCP) Silence(on bool) {
	n.mu.Lock()
	n.silent = on
	n.mu.Unlock()
}

// ResetOnReopen controls whether Reset announces a power-on reset.
func (n *NCP) ResetOnReopen(on bool) {
	n.mu.Lock()
	n.resetOnReopen = on
	n.mu.Unlock()
}

func (n *NCP) SetProp(prop uint32, value []byte) {
	n.mu.Lock()
	n.props[prop] = append([]byte(nil), value...)
	n.mu.Unlock()
}

func (n *NCP) Prop(prop uint32) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.props[prop]
	return append([]byte(nil), v...), ok
}

func (n *NCP) DeleteProp(prop uint32) {
	n.mu.Lock()
	delete(n.props, prop)
	n.mu.Unlock()
}

// Inject queues an unsolicited frame with transaction id 0.
func (n *NCP) Inject(cmd spinel.Command) {
	n.mu.Lock()
	n.emitLocked(spinel.Header(0), cmd)
	n.mu.Unlock()
}

// InjectStatus queues an unsolicited LAST_STATUS.
func (n *NCP) InjectStatus(status uint32) {
	n.Inject(statusCommand(status))
}

// InjectValue queues an unsolicited PROP_VALUE_IS.
func (n *NCP) InjectValue(prop uint32, value []byte) {
	n.Inject(valueIs(prop, value))
}

// InjectRaw queues wire bytes as-is.
func (n *NCP) InjectRaw(p []byte) {
	n.mu.Lock()
	n.out = append(n.out, p...)
	n.cond.Broadcast()
	n.mu.Unlock()
}

// Drain removes and returns everything queued for the host.
func (n *NCP) Drain() []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.out
	n.out = nil
	return out
}

// Received returns the host commands seen so far.
func (n *NCP) Received() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Request(nil), n.log...)
}

// Count reports how many times cmd on prop was received. Pass
// prop < 0 for commands without a property.
func (n *NCP) Count(cmd uint32, prop int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, r := range n.log {
		if r.ID != cmd {
			continue
		}
		if prop < 0 {
			count++
			continue
		}
		if p, ok := r.Prop(); ok && int64(p) == prop {
			count++
		}
	}
	return count
}

// ClearLog forgets the received commands.
func (n *NCP) ClearLog() {
	n.mu.Lock()
	n.log = nil
	n.mu.Unlock()
}

func (n *NCP) Resets() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets
}

func (n *NCP) Hibernates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hibernates
}

func (n *NCP) Name() string { return "fakencp" }

// Read blocks until device frames are queued or the fake is closed.
func (n *NCP) Read(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.out) == 0 && !n.closed {
		n.cond.Wait()
	}
	if n.closed {
		return 0, transport.ErrClosed
	}
	c := copy(p, n.out)
	n.out = n.out[c:]
	return c, nil
}

// Write decodes host frames and answers each one.
func (n *NCP) Write(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return 0, transport.ErrClosed
	}
	n.codec.Feed(p, func(ev frame.Event) {
		if ev.Kind != frame.EventFrame {
			logs.Warnf("fakencp.Write dropped %s bytes=%d", ev.Kind, len(ev.Payload))
			return
		}
		f, err := spinel.ParseFrame(ev.Payload)
		if err != nil {
			logs.Warnf("fakencp.Write parse err=%v", err)
			return
		}
		n.handleLocked(Request{Header: f.Header, Command: f.Command})
	})
	return len(p), nil
}

func (n *NCP) Close() error {
	n.mu.Lock()
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()
	return nil
}

// Reset drops queued output and, unless disabled, announces a power-on
// reset as a reopened device would.
func (n *NCP) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets++
	n.out = nil
	n.codec.Reset()
	if n.resetOnReopen {
		n.emitLocked(spinel.Header(0), statusCommand(spinel.StatusResetPowerOn))
	}
	return nil
}

func (n *NCP) Hibernate() error {
	n.mu.Lock()
	n.hibernates++
	n.mu.Unlock()
	return nil
}

func (n *NCP) handleLocked(req Request) {
	n.log = append(n.log, req)
	logs.Debugf("fakencp [->NCP] %s tid:%d", req.Command, spinel.HeaderTID(req.Header))
	if n.silent {
		return
	}
	w := &Writer{n: n}
	for _, h := range n.hooks {
		if h(req, w) {
			return
		}
	}
	n.defaultLocked(req, w)
}

func (n *NCP) defaultLocked(req Request, w *Writer) {
	prop, hasProp := req.Prop()
	switch req.ID {
	case spinel.CmdNoop, spinel.CmdNetClear, spinel.CmdNetSave:
		w.Status(req.Header, spinel.StatusOK)
	case spinel.CmdReset:
		n.out = nil
		w.Status(spinel.Header(0), spinel.StatusResetSoftware)
	case spinel.CmdPropValueGet:
		if v, ok := n.props[prop]; hasProp && ok {
			w.Value(req.Header, prop, v)
			return
		}
		w.Status(req.Header, spinel.StatusPropNotFound)
	case spinel.CmdPropValueSet:
		if !hasProp {
			w.Status(req.Header, spinel.StatusParseError)
			return
		}
		w.SetProp(prop, req.Value())
		w.Value(req.Header, prop, req.Value())
	case spinel.CmdPropInsert:
		if !hasProp {
			w.Status(req.Header, spinel.StatusParseError)
			return
		}
		w.Send(req.Header, spinel.Command{ID: spinel.CmdPropInserted, Payload: req.Payload})
	case spinel.CmdPropRemove:
		if !hasProp {
			w.Status(req.Header, spinel.StatusParseError)
			return
		}
		w.Send(req.Header, spinel.Command{ID: spinel.CmdPropRemoved, Payload: req.Payload})
	default:
		w.Status(req.Header, spinel.StatusInvalidCommand)
	}
}

func (n *NCP) emitLocked(header byte, cmd spinel.Command) {
	wire, err := n.codec.Encode(cmd.Marshal(header))
	if err != nil {
		logs.Errf("fakencp.emit cmd=%s err=%v", cmd, err)
		return
	}
	n.out = append(n.out, wire...)
	n.cond.Broadcast()
}

func statusCommand(status uint32) spinel.Command {
	return valueIs(spinel.PropLastStatus, spinel.NewEncoder().PackedUint(status).Bytes())
}

func valueIs(prop uint32, value []byte) spinel.Command {
	c := spinel.PropSet(prop, value)
	c.ID = spinel.CmdPropValueIs
	return c
}
