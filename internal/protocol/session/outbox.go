package session

import (
	"errors"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
)

var ErrOutboxBusy = errors.New("session: outbox holds an unsent command")

// Outbox is the single outbound command slot. At most one command buffer
// is pending at a time, and its completion callback fires exactly once.
type Outbox struct {
	buf      []byte
	done     func(protocol.Status)
	queuedAt time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Ready reports whether a new command may be placed: the buffer is empty
// and the previous completion callback has fired.
func (o *Outbox) Ready() bool {
	return len(o.buf) == 0 && o.done == nil
}

func (o *Outbox) Empty() bool {
	return len(o.buf) == 0
}

// Put copies buf into the slot. A stale callback still registered from an
// earlier send is invoked with StatusCanceled before being replaced.
func (o *Outbox) Put(buf []byte, at time.Time, done func(protocol.Status)) error {
	if len(o.buf) != 0 {
		return ErrOutboxBusy
	}
	o.cancelStale()
	o.buf = append(o.buf[:0], buf...)
	o.done = done
	o.queuedAt = at
	return nil
}

// Pending returns the buffered command, if any.
func (o *Outbox) Pending() ([]byte, bool) {
	if len(o.buf) == 0 {
		return nil, false
	}
	return o.buf, true
}

// Complete empties the slot and fires the callback with status. It returns
// how long the command waited in the slot.
func (o *Outbox) Complete(status protocol.Status, now time.Time) time.Duration {
	waited := now.Sub(o.queuedAt)
	o.buf = o.buf[:0]
	done := o.done
	o.done = nil
	if done != nil {
		done(status)
	}
	return waited
}

// Drop discards a pending command without sending it.
func (o *Outbox) Drop(status protocol.Status) {
	if len(o.buf) != 0 {
		logs.Debugf("session.Outbox.Drop bytes=%d status=%s", len(o.buf), status)
	}
	o.buf = o.buf[:0]
	done := o.done
	o.done = nil
	if done != nil {
		done(status)
	}
}

func (o *Outbox) cancelStale() {
	if o.done == nil {
		return
	}
	logs.Debugf("session.Outbox canceling stale send callback")
	done := o.done
	o.done = nil
	done(protocol.StatusCanceled)
}
