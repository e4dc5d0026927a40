package ncp

import (
	"fmt"
	"strings"
)

// NCPState is the driver's view of the NCP.
type NCPState int

const (
	Uninitialized NCPState = iota
	Fault
	Upgrading
	DeepSleep
	Offline
	Commissioned
	Associating
	CredentialsNeeded
	Associated
	Isolated
	NetWakeWaking
	NetWakeAsleep
)

var stateNames = map[NCPState]string{
	Uninitialized:     "uninitialized",
	Fault:             "uninitialized:fault",
	Upgrading:         "uninitialized:upgrading",
	DeepSleep:         "offline:deep-sleep",
	Offline:           "offline",
	Commissioned:      "offline:commissioned",
	Associating:       "associating",
	CredentialsNeeded: "associating:credentials-needed",
	Associated:        "associated",
	Isolated:          "associated:no-parent",
	NetWakeWaking:     "associated:netwake-waking",
	NetWakeAsleep:     "associated:netwake-asleep",
}

func (s NCPState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseNCPState accepts the names produced by String.
func ParseNCPState(text string) (NCPState, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	for s, name := range stateNames {
		if name == text {
			return s, true
		}
	}
	return Uninitialized, false
}

func (s NCPState) Sleeping() bool {
	return s == DeepSleep || s == NetWakeAsleep
}

func (s NCPState) Joining() bool {
	return s == Associating || s == CredentialsNeeded
}

func (s NCPState) InterfaceUp() bool {
	switch s {
	case CredentialsNeeded, Associated, NetWakeAsleep:
		return true
	default:
		return false
	}
}

func (s NCPState) Commissioned() bool {
	switch s {
	case Commissioned, Associated, NetWakeAsleep, Isolated, NetWakeWaking:
		return true
	default:
		return false
	}
}

func (s NCPState) Initializing() bool {
	return s == Uninitialized || s == Upgrading
}

func (s NCPState) JoiningOrJoined() bool {
	switch s {
	case CredentialsNeeded, Associating, Associated, Isolated, NetWakeWaking, NetWakeAsleep:
		return true
	default:
		return false
	}
}

func (s NCPState) Associated() bool {
	switch s {
	case Associated, Isolated, NetWakeWaking, NetWakeAsleep:
		return true
	default:
		return false
	}
}

// Detached states have released the NCP; only Uninitialized may follow.
func (s NCPState) Detached() bool {
	return s == Fault || s == Upgrading
}

// busy reports whether the state alone keeps the host awake.
func (s NCPState) busy() bool {
	switch s {
	case DeepSleep, Offline, NetWakeAsleep, Isolated, Associated, Fault:
		return false
	default:
		return true
	}
}

// NodeType is the Thread role of this node.
type NodeType int

const (
	NodeUnknown NodeType = iota
	NodeRouter
	NodeEndDevice
	NodeSleepyEndDevice
	NodeLurker
	NodeLeader
	NodeCommissioner
)

func (t NodeType) String() string {
	switch t {
	case NodeRouter:
		return "router"
	case NodeEndDevice:
		return "end-device"
	case NodeSleepyEndDevice:
		return "sleepy-end-device"
	case NodeLurker:
		return "nl-lurker"
	case NodeLeader:
		return "leader"
	case NodeCommissioner:
		return "commissioner"
	default:
		return "unknown"
	}
}

func ParseNodeType(text string) NodeType {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "router", "r", "2":
		return NodeRouter
	case "end-device", "end", "e", "3":
		return NodeEndDevice
	case "sleepy-end-device", "sleepy", "sed", "s", "4":
		return NodeSleepyEndDevice
	case "nl-lurker", "lurker", "6":
		return NodeLurker
	case "leader":
		return NodeLeader
	case "commissioner":
		return NodeCommissioner
	default:
		return NodeUnknown
	}
}

// driverState tracks where initialization stands.
type driverState int

const (
	driverInitializing driverState = iota
	driverWaitingForReset
	driverNormal
)

func (d driverState) String() string {
	switch d {
	case driverInitializing:
		return "initializing"
	case driverWaitingForReset:
		return "waiting-for-reset"
	default:
		return "normal"
	}
}
