package protocol

import (
	"errors"
	"fmt"
)

// Status is the driver's outcome taxonomy. Every asynchronous operation
// completes with exactly one Status. A non-Ok Status is usable as an error.
type Status int

const (
	StatusOk Status = iota
	StatusFailure
	StatusInvalidArgument
	StatusInvalidWhenDisabled
	StatusInvalidForCurrentState
	StatusInvalidType
	StatusInvalidRange
	StatusTimeout
	StatusSocketReset
	StatusBusy
	StatusAlready
	StatusCanceled
	StatusInProgress
	StatusTryAgainLater
	StatusFeatureNotSupported
	StatusFeatureNotImplemented
	StatusPropertyNotFound
	StatusPropertyEmpty
	StatusJoinFailedUnknown
	StatusJoinFailedAtScan
	StatusJoinFailedAtAuthenticate
	StatusFormFailedAtScan
	StatusNCPCrashed
	StatusNCPFatal
	StatusNCPInvalidArgument
	StatusNCPInvalidRange
	StatusMissingXPANID
	StatusNCPReset
	StatusInterfaceNotFound
)

// NCPErrorBase offsets untranslated NCP status codes into the taxonomy.
const NCPErrorBase Status = 0xEA0000

var statusNames = map[Status]string{
	StatusOk:                       "Ok",
	StatusFailure:                  "Failure",
	StatusInvalidArgument:          "InvalidArgument",
	StatusInvalidWhenDisabled:      "InvalidWhenDisabled",
	StatusInvalidForCurrentState:   "InvalidForCurrentState",
	StatusInvalidType:              "InvalidType",
	StatusInvalidRange:             "InvalidRange",
	StatusTimeout:                  "Timeout",
	StatusSocketReset:              "SocketReset",
	StatusBusy:                     "Busy",
	StatusAlready:                  "Already",
	StatusCanceled:                 "Canceled",
	StatusInProgress:               "InProgress",
	StatusTryAgainLater:            "TryAgainLater",
	StatusFeatureNotSupported:      "FeatureNotSupported",
	StatusFeatureNotImplemented:    "FeatureNotImplemented",
	StatusPropertyNotFound:         "PropertyNotFound",
	StatusPropertyEmpty:            "PropertyEmpty",
	StatusJoinFailedUnknown:        "JoinFailedUnknown",
	StatusJoinFailedAtScan:         "JoinFailedAtScan",
	StatusJoinFailedAtAuthenticate: "JoinFailedAtAuthenticate",
	StatusFormFailedAtScan:         "FormFailedAtScan",
	StatusNCPCrashed:               "NCP_Crashed",
	StatusNCPFatal:                 "NCP_Fatal",
	StatusNCPInvalidArgument:       "NCP_InvalidArgument",
	StatusNCPInvalidRange:          "NCP_InvalidRange",
	StatusMissingXPANID:            "MissingXPANID",
	StatusNCPReset:                 "NCP_Reset",
	StatusInterfaceNotFound:        "InterfaceNotFound",
}

// NCPError wraps a raw NCP status code that has no dedicated translation.
func NCPError(code uint32) Status {
	return NCPErrorBase + Status(code)
}

// IsNCPError reports whether s carries an untranslated NCP code, and returns it.
func (s Status) IsNCPError() (uint32, bool) {
	if s >= NCPErrorBase && s < NCPErrorBase+0x10000 {
		return uint32(s - NCPErrorBase), true
	}
	return 0, false
}

func (s Status) Ok() bool { return s == StatusOk }

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	if code, ok := s.IsNCPError(); ok {
		return fmt.Sprintf("NCPError(%d)", code)
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) Error() string {
	return "status: " + s.String()
}

// Err returns nil for StatusOk and s otherwise.
func (s Status) Err() error {
	if s == StatusOk {
		return nil
	}
	return s
}

// StatusOf recovers the Status carried by err. Errors that carry none map
// to StatusFailure.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOk
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusFailure
}
