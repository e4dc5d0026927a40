package spinel

import (
	"fmt"

	"github.com/danmuck/wpanctl/internal/protocol"
)

func CommandName(cmd uint32) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("CMD_%d", cmd)
}

func PropName(prop uint32) string {
	if name, ok := propNames[prop]; ok {
		return name
	}
	return fmt.Sprintf("PROP_%d", prop)
}

func StatusName(status uint32) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", status)
}

func IsResetStatus(status uint32) bool {
	return status >= StatusResetBegin && status < StatusResetEnd
}

func IsJoinStatus(status uint32) bool {
	return status >= StatusJoinBegin && status < StatusJoinEnd
}

// IsCrashReset reports whether a reset reason means the NCP faulted rather
// than being reset on purpose.
func IsCrashReset(status uint32) bool {
	switch status {
	case StatusResetCrash, StatusResetFault, StatusResetAssert, StatusResetWatchdog, StatusResetOther:
		return true
	default:
		return false
	}
}

// ToStatus translates an NCP status code into the driver taxonomy.
func ToStatus(status uint32) protocol.Status {
	switch status {
	case StatusOK:
		return protocol.StatusOk
	case StatusAlready:
		return protocol.StatusAlready
	case StatusBusy:
		return protocol.StatusBusy
	case StatusInProgress:
		return protocol.StatusInProgress
	case StatusJoinFailure:
		return protocol.StatusJoinFailedUnknown
	case StatusJoinIncompatible:
		return protocol.StatusJoinFailedAtScan
	case StatusJoinSecurity:
		return protocol.StatusJoinFailedAtAuthenticate
	case StatusPropNotFound:
		return protocol.StatusPropertyNotFound
	case StatusInvalidArgument:
		return protocol.StatusNCPInvalidArgument
	case StatusInvalidState:
		return protocol.StatusInvalidForCurrentState
	default:
		return protocol.NCPError(status)
	}
}
