package ncp

import (
	"fmt"

	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

// EventKind classifies what a state machine is being fed.
type EventKind int

const (
	// EventIdle is a scheduler tick with no input.
	EventIdle EventKind = iota
	// EventStartingTask is delivered once to a task when it is queued.
	EventStartingTask
	// EventNCP carries any inbound command from the NCP.
	EventNCP
	// EventNCPReset replaces the event of a reset-class LAST_STATUS.
	EventNCPReset
)

func (k EventKind) String() string {
	switch k {
	case EventIdle:
		return "idle"
	case EventStartingTask:
		return "starting-task"
	case EventNCP:
		return "ncp"
	case EventNCPReset:
		return "ncp-reset"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input to the lifecycle and to the head task.
type Event struct {
	Kind    EventKind
	Header  byte
	Cmd     uint32
	HasProp bool
	Prop    uint32
	Value   []byte
	// Status is set for LAST_STATUS notifications.
	Status uint32
}

func frameEvent(f spinel.Frame) Event {
	ev := Event{Kind: EventNCP, Header: f.Header, Cmd: f.ID}
	if prop, ok := f.Prop(); ok {
		ev.HasProp = true
		ev.Prop = prop
		ev.Value = f.Value()
		if prop == spinel.PropLastStatus && f.ID == spinel.CmdPropValueIs {
			ev.Status = spinel.NewDecoder(ev.Value).PackedUint()
		}
	}
	return ev
}

// FromNCP reports whether the event originated on the wire.
func (e Event) FromNCP() bool {
	return e.Kind == EventNCP || e.Kind == EventNCPReset
}

// IsPropValue reports a PROP_VALUE_IS.
func (e Event) IsPropValue() bool {
	return e.Kind == EventNCP && e.Cmd == spinel.CmdPropValueIs
}

func (e Event) isLastStatus() bool {
	return e.IsPropValue() && e.HasProp && e.Prop == spinel.PropLastStatus
}

// callbackStatus is the raw NCP status an event carries. Anything other
// than a LAST_STATUS counts as success.
func (e Event) callbackStatus() uint32 {
	if e.Kind == EventNCPReset || e.isLastStatus() {
		return e.Status
	}
	return 0
}

func (e Event) String() string {
	if e.FromNCP() && e.HasProp {
		return fmt.Sprintf("%s CMD_%s(%s) tid:%d", e.Kind, spinel.CommandName(e.Cmd), spinel.PropName(e.Prop), spinel.HeaderTID(e.Header))
	}
	if e.FromNCP() {
		return fmt.Sprintf("%s CMD_%s tid:%d", e.Kind, spinel.CommandName(e.Cmd), spinel.HeaderTID(e.Header))
	}
	return e.Kind.String()
}
