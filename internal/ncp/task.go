package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/runloop"
)

// Callback receives the outcome of an asynchronous operation exactly once.
type Callback func(status protocol.Status, value protocol.Value)

// Task is one queued operation. Only the head of the queue drives the
// command channel.
type Task interface {
	Name() string
	// process consumes one event and reports whether the task is still
	// running. A task that returns false has already called finish.
	process(i *Instance, ev Event) bool
	// finish completes the task. Calls after the first are ignored.
	finish(status protocol.Status, value protocol.Value)
	progress() int
}

type taskBase struct {
	name string
	cb   Callback
	done bool
	pc   int
	wait runloop.Deadline
	tx   sender
	plan plan
}

func (t *taskBase) Name() string { return t.name }

func (t *taskBase) progress() int {
	return t.pc<<16 | t.plan.idx<<4 | int(t.tx.phase)
}

func (t *taskBase) finish(status protocol.Status, value protocol.Value) {
	if t.done {
		return
	}
	t.done = true
	observability.RecordTask(t.name, status.String())
	logs.Debugf("ncp.Task.finish task=%s status=%s", t.name, status)
	if t.cb != nil {
		t.cb(status, value)
	}
}

// goTo moves to pc and drops any wait armed for the old one.
func (t *taskBase) goTo(pc int) {
	t.pc = pc
	t.wait.Clear()
}

// StartTask queues t behind the running tasks. A detached NCP fails it
// with InvalidWhenDisabled.
func (i *Instance) StartTask(t Task) {
	if i.state.Detached() {
		logs.Debugf("ncp.Instance.StartTask detached task=%s state=%s", t.Name(), i.state)
		t.finish(protocol.StatusInvalidWhenDisabled, protocol.Value{})
		return
	}
	if !t.process(i, Event{Kind: EventStartingTask}) {
		return
	}
	logs.Debugf("ncp.Instance.StartTask task=%s queued=%d", t.Name(), len(i.tasks))
	i.tasks = append(i.tasks, t)
}

// runTasks feeds ev to the head task, popping finished tasks and handing
// the same event to the next one. A head that has not started yet gets a
// wake task in front of it while the NCP sleeps.
func (i *Instance) runTasks(ev Event) {
	for len(i.tasks) > 0 {
		head := i.tasks[0]
		if i.needsWake(head) {
			i.wokeFor = head
			wake := newWakeTask(nil)
			if wake.process(i, Event{Kind: EventStartingTask}) {
				logs.Debugf("ncp.Instance.runTasks waking NCP for task=%s state=%s", head.Name(), i.state)
				i.tasks = append([]Task{wake}, i.tasks...)
				continue
			}
		}
		if head.process(i, ev) {
			return
		}
		// finish may have reset the queue underneath us.
		if len(i.tasks) > 0 && i.tasks[0] == head {
			i.tasks[0] = nil
			i.tasks = i.tasks[1:]
		}
	}
}

// needsWake reports whether t is about to run against a sleeping NCP. Each
// task gets at most one wake attempt.
func (i *Instance) needsWake(t Task) bool {
	if !i.state.Sleeping() || t.progress() != 0 || i.wokeFor == t {
		return false
	}
	_, wake := t.(*wakeTask)
	return !wake
}

// resetTasks finishes every queued task with status.
func (i *Instance) resetTasks(status protocol.Status) {
	if len(i.tasks) == 0 {
		return
	}
	logs.Infof("ncp.Instance.resetTasks count=%d status=%s", len(i.tasks), status)
	tasks := i.tasks
	i.tasks = nil
	i.wokeFor = nil
	for _, t := range tasks {
		t.finish(status, protocol.Value{})
	}
}

// Tasks reports the names of the queued tasks, head first.
func (i *Instance) Tasks() []string {
	out := make([]string, 0, len(i.tasks))
	for _, t := range i.tasks {
		out = append(out, t.Name())
	}
	return out
}
