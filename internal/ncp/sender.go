package ncp

import (
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
	"github.com/danmuck/wpanctl/internal/runloop"
)

type sendPhase uint8

const (
	sendIdle sendPhase = iota
	sendPrep
	sendFlush
	sendResponse
)

// sender runs the per-command dispatch: wait for the outbox, stamp a
// fresh TID, wait for the flush, then wait for the matching reply.
type sender struct {
	phase   sendPhase
	cmd     spinel.Command
	header  byte
	timeout time.Duration
	wait    runloop.Deadline
	flushed bool
	flushOK bool
	started time.Time
	// reply is the event that completed the last command.
	reply Event
}

// send advances cmd by one event. done is false while the command is
// still waiting on the outbox or the NCP.
func (s *sender) send(i *Instance, ev Event, cmd spinel.Command, timeout time.Duration) (status protocol.Status, done bool) {
	if s.phase == sendIdle {
		if timeout <= 0 {
			timeout = i.cfg.ResponseTimeout
		}
		s.phase = sendPrep
		s.cmd = cmd
		s.timeout = timeout
		s.reply = Event{}
		s.wait.Clear()
	}

	for {
		switch s.phase {
		case sendPrep:
			ok, timedOut := i.await(&s.wait, i.cfg.SendTimeout, i.outbox.Ready)
			if timedOut {
				return s.fail(i, "empty outbound buffer")
			}
			if !ok {
				return protocol.StatusOk, false
			}
			s.header = spinel.Header(i.tids.Next())
			s.flushed = false
			s.flushOK = false
			if err := i.outbox.Put(s.cmd.Marshal(s.header), i.now, s.onFlush); err != nil {
				logs.Errf("ncp.sender.send put cmd=%s err=%v", s.cmd, err)
				return s.fail(i, "outbound buffer")
			}
			s.started = i.now
			s.phase = sendFlush

		case sendFlush:
			ok, timedOut := i.await(&s.wait, i.cfg.SendTimeout, func() bool { return s.flushed })
			if timedOut {
				return s.fail(i, "outbound buffer flush")
			}
			if !ok {
				return protocol.StatusOk, false
			}
			if !s.flushOK {
				return s.fail(i, "outbound buffer flush")
			}
			if s.cmd.ID == spinel.CmdReset {
				i.resetExpected = true
			}
			s.phase = sendResponse

		case sendResponse:
			ok, timedOut := i.await(&s.wait, s.timeout, func() bool { return s.matches(ev) })
			if timedOut {
				return s.fail(i, "command response")
			}
			if !ok {
				return protocol.StatusOk, false
			}
			s.reply = ev
			status = protocol.StatusOk
			if s.cmd.ID != spinel.CmdReset {
				status = spinel.ToStatus(ev.callbackStatus())
			}
			return s.complete(i, status)

		default:
			s.phase = sendIdle
			return protocol.StatusFailure, true
		}
	}
}

func (s *sender) matches(ev Event) bool {
	if !ev.FromNCP() {
		return false
	}
	if ev.Header == s.header {
		return true
	}
	return s.cmd.ID == spinel.CmdReset && ev.Kind == EventNCPReset
}

func (s *sender) onFlush(status protocol.Status) {
	s.flushed = true
	s.flushOK = status.Ok()
}

func (s *sender) fail(i *Instance, what string) (protocol.Status, bool) {
	logs.Warnf("ncp.sender.send timed out waiting for %s cmd=%s tid=%d", what, s.cmd, spinel.HeaderTID(s.header))
	return s.complete(i, protocol.StatusTimeout)
}

func (s *sender) complete(i *Instance, status protocol.Status) (protocol.Status, bool) {
	if !s.started.IsZero() {
		observability.RecordCommand(spinel.CommandName(s.cmd.ID), status.String(), i.now.Sub(s.started))
	}
	s.phase = sendIdle
	s.started = time.Time{}
	s.wait.Clear()
	return status, true
}

// step is one command of a plan.
type step struct {
	cmd     spinel.Command
	timeout time.Duration
	// accept lists non-Ok statuses that still count as success.
	accept []protocol.Status
	// optional steps log their failure and continue.
	optional bool
}

func (s step) ok(status protocol.Status) bool {
	if status.Ok() {
		return true
	}
	for _, a := range s.accept {
		if status == a {
			return true
		}
	}
	return false
}

// plan runs an ordered command list, stopping at the first failure.
type plan struct {
	steps []step
	idx   int
	last  Event
}

func (p *plan) reset(steps ...step) {
	p.steps = steps
	p.idx = 0
	p.last = Event{}
}

func (p *plan) add(steps ...step) {
	p.steps = append(p.steps, steps...)
}

func (p *plan) run(i *Instance, ev Event, tx *sender) (protocol.Status, bool) {
	for p.idx < len(p.steps) {
		s := p.steps[p.idx]
		status, done := tx.send(i, ev, s.cmd, s.timeout)
		if !done {
			return protocol.StatusOk, false
		}
		p.last = tx.reply
		p.idx++
		if s.ok(status) {
			continue
		}
		if s.optional {
			logs.Warnf("ncp.plan.run unsuccessful cmd=%s status=%s", s.cmd, status)
			continue
		}
		return status, true
	}
	return protocol.StatusOk, true
}

func must(cmd spinel.Command, accept ...protocol.Status) step {
	return step{cmd: cmd, accept: accept}
}

func try(cmd spinel.Command) step {
	return step{cmd: cmd, optional: true}
}
