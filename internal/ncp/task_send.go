package ncp

import (
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/schema"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// CommandBuilder assembles a SendCommand task.
//
//	i.StartTask(ncp.NewCommand("set-channel").
//		Add(spinel.SetUint8(spinel.PropPHYChan, 15)).
//		Callback(cb).
//		Task())
type CommandBuilder struct {
	name     string
	cmds     []spinel.Command
	lock     uint32
	hasLock  bool
	reply    schema.Type
	hasReply bool
	timeout  time.Duration
	cb       Callback
}

func NewCommand(name string) *CommandBuilder {
	return &CommandBuilder{name: name}
}

// Add appends a command. Commands run in order and stop at the first
// failure.
func (b *CommandBuilder) Add(cmd spinel.Command) *CommandBuilder {
	b.cmds = append(b.cmds, cmd)
	return b
}

// Lock brackets the command list with SET(prop, true) and SET(prop, false).
func (b *CommandBuilder) Lock(prop uint32) *CommandBuilder {
	b.lock = prop
	b.hasLock = true
	return b
}

// Reply decodes the last PROP_VALUE_IS as t and hands it to the callback.
func (b *CommandBuilder) Reply(t schema.Type) *CommandBuilder {
	b.reply = t
	b.hasReply = true
	return b
}

func (b *CommandBuilder) Timeout(d time.Duration) *CommandBuilder {
	b.timeout = d
	return b
}

func (b *CommandBuilder) Callback(cb Callback) *CommandBuilder {
	b.cb = cb
	return b
}

func (b *CommandBuilder) Task() Task {
	t := &sendCommandTask{
		taskBase: taskBase{name: b.name, cb: b.cb},
		lock:     b.lock,
		hasLock:  b.hasLock,
		reply:    b.reply,
		hasReply: b.hasReply,
		timeout:  b.timeout,
	}
	steps := make([]step, 0, len(b.cmds))
	for _, cmd := range b.cmds {
		steps = append(steps, step{cmd: cmd, timeout: b.timeout})
	}
	t.plan.reset(steps...)
	return t
}

const (
	sendCmdStart = iota
	sendCmdLock
	sendCmdRun
	sendCmdUnlock
)

type sendCommandTask struct {
	taskBase
	lock     uint32
	hasLock  bool
	reply    schema.Type
	hasReply bool
	timeout  time.Duration

	status protocol.Status
	value  protocol.Value
}

func (t *sendCommandTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	for {
		switch t.pc {
		case sendCmdStart:
			if ev.Kind == EventStartingTask {
				return true
			}
			if t.hasLock {
				t.goTo(sendCmdLock)
			} else {
				t.goTo(sendCmdRun)
			}

		case sendCmdLock:
			status, done := t.tx.send(i, ev, spinel.SetBool(t.lock, true), t.timeout)
			if !done {
				return true
			}
			// Busy means the lock was already held.
			if !status.Ok() && status != protocol.StatusBusy {
				logs.Warnf("ncp.Task.process lock task=%s prop=%s status=%s", t.name, spinel.PropName(t.lock), status)
				t.status = status
				t.goTo(sendCmdUnlock)
				continue
			}
			t.goTo(sendCmdRun)

		case sendCmdRun:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			t.status = status
			if status.Ok() && t.hasReply {
				t.value, t.status = t.decodeReply()
			}
			if !t.hasLock {
				t.finish(t.status, t.value)
				return false
			}
			t.goTo(sendCmdUnlock)

		case sendCmdUnlock:
			status, done := t.tx.send(i, ev, spinel.SetBool(t.lock, false), t.timeout)
			if !done {
				return true
			}
			if !status.Ok() {
				logs.Warnf("ncp.Task.process unlock task=%s prop=%s status=%s", t.name, spinel.PropName(t.lock), status)
				if t.status.Ok() {
					t.status = status
				}
			}
			t.finish(t.status, t.value)
			return false

		default:
			t.finish(protocol.StatusFailure, protocol.Value{})
			return false
		}
	}
}

func (t *sendCommandTask) decodeReply() (protocol.Value, protocol.Status) {
	last := t.plan.last
	if !last.IsPropValue() || !last.HasProp || last.isLastStatus() {
		return protocol.Value{}, protocol.StatusOk
	}
	v, err := schema.Decode(t.reply, last.Value)
	if err != nil {
		logs.Warnf("ncp.Task.decodeReply task=%s prop=%s type=%s err=%v", t.name, spinel.PropName(last.Prop), t.reply, err)
		return protocol.Value{}, protocol.StatusFailure
	}
	return v, protocol.StatusOk
}
