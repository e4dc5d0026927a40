package ncp

import (
	"strings"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// ResultFormat selects how a structured fetch is rendered.
type ResultFormat int

const (
	FormatStringArray ResultFormat = iota
	FormatString
	FormatValueMap
)

const (
	fetchStart = iota
	fetchRun
)

// fetchTask issues one GET and renders the reply with decode.
type fetchTask struct {
	taskBase
	prop   uint32
	decode func(payload []byte) (protocol.Value, error)
}

func (t *fetchTask) process(i *Instance, ev Event) bool {
	if t.done {
		return false
	}
	for {
		switch t.pc {
		case fetchStart:
			if ev.Kind == EventStartingTask {
				return true
			}
			t.plan.reset(must(spinel.PropGet(t.prop)))
			t.goTo(fetchRun)

		case fetchRun:
			status, done := t.plan.run(i, ev, &t.tx)
			if !done {
				return true
			}
			if !status.Ok() {
				t.finish(status, protocol.Value{})
				return false
			}
			last := t.plan.last
			if !last.IsPropValue() || last.Prop != t.prop {
				t.finish(protocol.StatusFailure, protocol.Value{})
				return false
			}
			v, err := t.decode(last.Value)
			if err != nil {
				logs.Warnf("ncp.Task.process %s decode err=%v", t.name, err)
				t.finish(protocol.StatusFailure, protocol.Value{})
				return false
			}
			t.finish(protocol.StatusOk, v)
			return false

		default:
			t.finish(protocol.StatusFailure, protocol.Value{})
			return false
		}
	}
}

func newTopologyTask(kind spinel.TableKind, format ResultFormat, cb Callback) *fetchTask {
	name := "child-table"
	if kind == spinel.NeighborTable {
		name = "neighbor-table"
	}
	return &fetchTask{
		taskBase: taskBase{name: name, cb: cb},
		prop:     kind.Prop(),
		decode: func(p []byte) (protocol.Value, error) {
			entries, err := spinel.ParseTopology(kind, p)
			if err != nil {
				return protocol.Value{}, err
			}
			switch format {
			case FormatValueMap:
				maps := make([]protocol.Value, len(entries))
				for n, e := range entries {
					maps[n] = e.ValueMap()
				}
				return protocol.List(maps...), nil
			case FormatString:
				lines := make([]string, len(entries))
				for n, e := range entries {
					lines[n] = e.String()
				}
				return protocol.String(strings.Join(lines, "\n")), nil
			default:
				lines := make([]string, len(entries))
				for n, e := range entries {
					lines[n] = e.String()
				}
				return protocol.StringList(lines), nil
			}
		},
	}
}

func newMsgBufferCountersTask(format ResultFormat, cb Callback) *fetchTask {
	return &fetchTask{
		taskBase: taskBase{name: "msg-buffer-counters", cb: cb},
		prop:     spinel.PropMsgBufferCounters,
		decode: func(p []byte) (protocol.Value, error) {
			c, err := spinel.ParseMsgBufferCounters(p)
			if err != nil {
				return protocol.Value{}, err
			}
			switch format {
			case FormatValueMap:
				return c.ValueMap(), nil
			case FormatString:
				return protocol.String(c.String()), nil
			default:
				return protocol.StringList(c.StringArray()), nil
			}
		},
	}
}
