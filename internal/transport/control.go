package transport

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
)

// SideChannel writes single control bytes to a file such as a GPIO value
// node. Each write seeks to the start and is followed by a newline.
type SideChannel struct {
	path string
	w    io.WriteSeeker
}

func OpenSideChannel(path string) (*SideChannel, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: side channel %s: %w", path, err)
	}
	return &SideChannel{path: path, w: f}, nil
}

// NewSideChannel wraps an existing writer, mostly for tests.
func NewSideChannel(name string, w io.WriteSeeker) *SideChannel {
	return &SideChannel{path: name, w: w}
}

func (c *SideChannel) Write(b byte) error {
	if _, err := c.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := c.w.Write([]byte{b}); err != nil {
		return fmt.Errorf("transport: write %s: %w", c.path, err)
	}
	// GPIO nodes may reject the newline.
	_, _ = c.w.Write([]byte{'\n'})
	return nil
}

func (c *SideChannel) Close() error {
	if cl, ok := c.w.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Power drives the NCP supply line.
type Power struct {
	ch      *SideChannel
	On, Off byte
}

func NewPower(ch *SideChannel) *Power {
	return &Power{ch: ch, On: '1', Off: '0'}
}

func (p *Power) Set(on bool) error {
	if p == nil || p.ch == nil {
		return nil
	}
	v := p.Off
	if on {
		v = p.On
	}
	logs.Debugf("transport.Power.Set on=%v", on)
	return p.ch.Write(v)
}

// ResetLine pulses the NCP reset pin.
type ResetLine struct {
	ch         *SideChannel
	Begin, End byte
	Hold       time.Duration
	sleep      func(time.Duration)
}

func NewResetLine(ch *SideChannel) *ResetLine {
	return &ResetLine{ch: ch, Begin: '0', End: '1', Hold: 20 * time.Millisecond, sleep: time.Sleep}
}

// Pulse holds reset for Hold. This blocks the caller briefly.
func (r *ResetLine) Pulse() error {
	if r == nil || r.ch == nil {
		return nil
	}
	logs.Infof("transport.ResetLine.Pulse hold=%s", r.Hold)
	if err := r.ch.Write(r.Begin); err != nil {
		return err
	}
	if r.sleep != nil {
		r.sleep(r.Hold)
	}
	return r.ch.Write(r.End)
}
