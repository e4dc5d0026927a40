package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/observability"
	"github.com/danmuck/wpanctl/internal/protocol"
	"github.com/danmuck/wpanctl/internal/protocol/frame"
	"github.com/danmuck/wpanctl/internal/protocol/spinel"
)

func (i *Instance) handleFrameEvent(ev frame.Event) {
	switch ev.Kind {
	case frame.EventFrame:
		observability.RecordFrame("in")
		i.handleFrame(ev.Payload)
	case frame.EventLogText:
		observability.RecordCRCText()
		i.logLine.Write(ev.Payload, i.ncpLog)
	case frame.EventGarbage:
		logs.Warnf("ncp.Instance.pump [NCP->] CRC mismatch, dropped bytes=%d bad_index=%d", len(ev.Payload), ev.BadIndex)
		observability.RecordFramingError("garbage", len(ev.Payload))
	case frame.EventOverflow, frame.EventBadLength:
		logs.Warnf("ncp.Instance.pump [NCP->] %s, dropped bytes=%d", ev.Kind, len(ev.Payload))
		observability.RecordFramingError(ev.Kind.String(), len(ev.Payload))
	case frame.EventExtraneous:
		logs.Errf("ncp.Instance.pump [NCP->] extraneous byte outside a frame")
		observability.RecordFramingError(ev.Kind.String(), len(ev.Payload))
		i.misbehaving()
	}
}

func (i *Instance) ncpLog(line string) {
	logs.Infof("NCP => %s", line)
}

func (i *Instance) handleFrame(buf []byte) {
	f, err := spinel.ParseFrame(buf)
	if err != nil {
		logs.Debugf("ncp.Instance.handleFrame dropped bytes=%d err=%v", len(buf), err)
		return
	}
	ev := frameEvent(f)
	tid := spinel.HeaderTID(f.Header)

	switch f.ID {
	case spinel.CmdPropValueIs:
		if ev.Prop != spinel.PropStreamDebug {
			logs.Infof("[NCP->] %s tid:%d", f, tid)
		}
		if ev.isLastStatus() {
			if spinel.IsResetStatus(ev.Status) {
				i.handleReset(ev)
				return
			}
			if ev.Status != spinel.StatusOK {
				logs.Infof("ncp.Instance [-NCP-] last status %s (%d) tid:%d", spinel.StatusName(ev.Status), ev.Status, tid)
			}
		}
		i.mirror(ev)
	case spinel.CmdPropInserted, spinel.CmdPropRemoved:
		logs.Infof("[NCP->] %s tid:%d", f, tid)
		i.mirrorTable(ev)
	default:
		logs.Infof("[NCP->] %s tid:%d", f, tid)
	}
	i.process(ev)
}

// handleReset turns a reset-class LAST_STATUS into an EventNCPReset. An
// unexpected reset during normal operation cancels the queue and
// restarts initialization.
func (i *Instance) handleReset(ev Event) {
	status := ev.Status
	reason := spinel.StatusName(status)
	logs.Infof("ncp.Instance [-NCP-] NCP was reset (%s, %d) expected=%t", reason, status, i.resetExpected)
	observability.RecordNCPReset(reason, i.resetExpected)

	ev.Kind = EventNCPReset
	i.process(ev)

	if !i.resetExpected && i.driver == driverNormal {
		result := protocol.StatusNCPReset
		if spinel.IsCrashReset(status) {
			result = protocol.StatusNCPCrashed
		}
		i.resetTasks(result)
	}
	if i.driver == driverNormal {
		i.reinitialize()
	}
	i.resetExpected = false
}
