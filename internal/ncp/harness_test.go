package ncp

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/runloop"
	"github.com/danmuck/wpanctl/internal/testutil/fakencp"
	"github.com/stretchr/testify/require"
)

// harness drives an Instance against the fake NCP on a manual clock. All
// work happens on the test goroutine.
type harness struct {
	t      *testing.T
	clock  *runloop.ManualClock
	dev    *fakencp.NCP
	inst   *Instance
	ctl    *ControlInterface
	states []NCPState
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	clock := runloop.NewManualClock(time.Unix(1700000000, 0))
	dev := fakencp.New()
	opts := DefaultOptions()
	opts.Clock = clock
	for _, m := range mutate {
		m(&opts)
	}
	inst, err := New(dev, opts)
	require.NoError(t, err)
	h := &harness{t: t, clock: clock, dev: dev, inst: inst}
	h.ctl = NewControlInterface(inst, Inline{})
	inst.AddListener(Listener{StateChanged: func(s NCPState) { h.states = append(h.states, s) }})
	return h
}

// pump steps the instance and shuttles device output until nothing moves
// at the current time.
func (h *harness) pump() {
	for n := 0; n < 512; n++ {
		next, ok := h.inst.Step(h.clock.Now())
		if in := h.dev.Drain(); len(in) > 0 {
			h.inst.Feed(in)
			continue
		}
		if ok && !next.After(h.clock.Now()) {
			continue
		}
		return
	}
}

// runFor advances the clock through every deadline inside d.
func (h *harness) runFor(d time.Duration) {
	end := h.clock.Now().Add(d)
	h.pump()
	for n := 0; n < 10000; n++ {
		next, ok := h.inst.Step(h.clock.Now())
		if !ok || next.After(end) {
			break
		}
		if next.After(h.clock.Now()) {
			h.clock.Set(next)
		}
		h.pump()
	}
	h.clock.Set(end)
	h.pump()
}

// ready runs initialization to completion.
func (h *harness) ready() {
	h.t.Helper()
	h.runFor(time.Second)
	require.False(h.t, h.inst.IsInitializing())
	require.Equal(h.t, Offline, h.inst.State())
}

// sent returns the host commands matching cmd on prop, oldest first.
func (h *harness) sent(cmd, prop uint32) []fakencp.Request {
	var out []fakencp.Request
	for _, r := range h.dev.Received() {
		if r.Is(cmd, prop) {
			out = append(out, r)
		}
	}
	return out
}

// onSet answers a SET of prop whose value equals value with the default
// echo followed by extra unsolicited frames.
func (h *harness) onSet(prop uint32, value []byte, extra ...spinel.Command) {
	h.dev.Hook(func(req fakencp.Request, w *fakencp.Writer) bool {
		if !req.Is(spinel.CmdPropValueSet, prop) || !bytes.Equal(req.Value(), value) {
			return false
		}
		w.SetProp(prop, req.Value())
		w.Value(req.Header, prop, req.Value())
		for _, c := range extra {
			w.Send(spinel.Header(0), c)
		}
		return true
	})
}

type result struct {
	calls  int
	status protocol.Status
	value  protocol.Value
}

func (r *result) cb() Callback {
	return func(status protocol.Status, value protocol.Value) {
		r.calls++
		r.status = status
		r.value = value
	}
}

func valueIs(prop uint32, value []byte) spinel.Command {
	c := spinel.PropSet(prop, value)
	c.ID = spinel.CmdPropValueIs
	return c
}

func lastStatus(status uint32) spinel.Command {
	return valueIs(spinel.PropLastStatus, spinel.NewEncoder().PackedUint(status).Bytes())
}
