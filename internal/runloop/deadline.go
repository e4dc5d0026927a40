package runloop

import "time"

// Deadline is the bound on one suspension point.
type Deadline struct {
	at    time.Time
	armed bool
}

func (d *Deadline) Arm(now time.Time, timeout time.Duration) {
	d.at = now.Add(timeout)
	d.armed = true
}

func (d *Deadline) Clear() {
	d.armed = false
}

func (d *Deadline) Armed() bool {
	return d.armed
}

func (d *Deadline) At() time.Time {
	return d.at
}

func (d *Deadline) Expired(now time.Time) bool {
	return d.armed && !now.Before(d.at)
}

// Horizon collects the earliest wakeup requested during one step.
type Horizon struct {
	at  time.Time
	set bool
}

func (h *Horizon) Reset() {
	h.set = false
	h.at = time.Time{}
}

func (h *Horizon) Until(t time.Time) {
	if !h.set || t.Before(h.at) {
		h.at = t
		h.set = true
	}
}

func (h *Horizon) Watch(d *Deadline) {
	if d != nil && d.armed {
		h.Until(d.at)
	}
}

// Yield asks for another step as soon as possible.
func (h *Horizon) Yield(now time.Time) {
	h.Until(now)
}

func (h *Horizon) Next() (time.Time, bool) {
	return h.at, h.set
}
