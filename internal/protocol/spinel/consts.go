package spinel

// Command ids.
const (
	CmdNoop          uint32 = 0
	CmdReset         uint32 = 1
	CmdPropValueGet  uint32 = 2
	CmdPropValueSet  uint32 = 3
	CmdPropInsert    uint32 = 4
	CmdPropRemove    uint32 = 5
	CmdPropValueIs   uint32 = 6
	CmdPropInserted  uint32 = 7
	CmdPropRemoved   uint32 = 8
	CmdNetSave       uint32 = 9
	CmdNetClear      uint32 = 10
	CmdNetRecall     uint32 = 11
	CmdHBOOffload    uint32 = 12
	CmdHBOReclaim    uint32 = 13
	CmdHBODrop       uint32 = 14
	CmdHBOOffloaded  uint32 = 15
	CmdHBOReclaimed  uint32 = 16
	CmdHBODropped    uint32 = 17
	CmdPeekCmd       uint32 = 18
	CmdPeekRet       uint32 = 19
	CmdPokeCmd       uint32 = 20
	CmdPropValueMult uint32 = 21
)

var commandNames = map[uint32]string{
	CmdNoop:         "NOOP",
	CmdReset:        "RESET",
	CmdPropValueGet: "PROP_VALUE_GET",
	CmdPropValueSet: "PROP_VALUE_SET",
	CmdPropInsert:   "PROP_VALUE_INSERT",
	CmdPropRemove:   "PROP_VALUE_REMOVE",
	CmdPropValueIs:  "PROP_VALUE_IS",
	CmdPropInserted: "PROP_VALUE_INSERTED",
	CmdPropRemoved:  "PROP_VALUE_REMOVED",
	CmdNetSave:      "NET_SAVE",
	CmdNetClear:     "NET_CLEAR",
	CmdNetRecall:    "NET_RECALL",
}

// Status codes reported through PropLastStatus.
const (
	StatusOK              uint32 = 0
	StatusFailure         uint32 = 1
	StatusUnimplemented   uint32 = 2
	StatusInvalidArgument uint32 = 3
	StatusInvalidState    uint32 = 4
	StatusInvalidCommand  uint32 = 5
	StatusInvalidIface    uint32 = 6
	StatusInternalError   uint32 = 7
	StatusSecurityError   uint32 = 8
	StatusParseError      uint32 = 9
	StatusInProgress      uint32 = 10
	StatusNoMem           uint32 = 11
	StatusBusy            uint32 = 12
	StatusPropNotFound    uint32 = 13
	StatusDropped         uint32 = 14
	StatusEmpty           uint32 = 15
	StatusCmdTooBig       uint32 = 16
	StatusNoAck           uint32 = 17
	StatusCCAFailure      uint32 = 18
	StatusAlready         uint32 = 19
	StatusItemNotFound    uint32 = 20

	StatusJoinBegin        uint32 = 104
	StatusJoinFailure      uint32 = 104
	StatusJoinSecurity     uint32 = 105
	StatusJoinNoPeers      uint32 = 106
	StatusJoinIncompatible uint32 = 107
	StatusJoinRspTimeout   uint32 = 108
	StatusJoinSuccess      uint32 = 109
	StatusJoinEnd          uint32 = 112

	StatusResetBegin    uint32 = 112
	StatusResetPowerOn  uint32 = 112
	StatusResetExternal uint32 = 113
	StatusResetSoftware uint32 = 114
	StatusResetFault    uint32 = 115
	StatusResetCrash    uint32 = 116
	StatusResetAssert   uint32 = 117
	StatusResetOther    uint32 = 118
	StatusResetUnknown  uint32 = 119
	StatusResetWatchdog uint32 = 120
	StatusResetEnd      uint32 = 128
)

var statusNames = map[uint32]string{
	StatusOK:               "OK",
	StatusFailure:          "FAILURE",
	StatusUnimplemented:    "UNIMPLEMENTED",
	StatusInvalidArgument:  "INVALID_ARGUMENT",
	StatusInvalidState:     "INVALID_STATE",
	StatusInvalidCommand:   "INVALID_COMMAND",
	StatusInvalidIface:     "INVALID_INTERFACE",
	StatusInternalError:    "INTERNAL_ERROR",
	StatusSecurityError:    "SECURITY_ERROR",
	StatusParseError:       "PARSE_ERROR",
	StatusInProgress:       "IN_PROGRESS",
	StatusNoMem:            "NOMEM",
	StatusBusy:             "BUSY",
	StatusPropNotFound:     "PROP_NOT_FOUND",
	StatusDropped:          "DROPPED",
	StatusEmpty:            "EMPTY",
	StatusCmdTooBig:        "CMD_TOO_BIG",
	StatusNoAck:            "NO_ACK",
	StatusCCAFailure:       "CCA_FAILURE",
	StatusAlready:          "ALREADY",
	StatusItemNotFound:     "ITEM_NOT_FOUND",
	StatusJoinFailure:      "JOIN_FAILURE",
	StatusJoinSecurity:     "JOIN_SECURITY",
	StatusJoinNoPeers:      "JOIN_NO_PEERS",
	StatusJoinIncompatible: "JOIN_INCOMPATIBLE",
	StatusJoinRspTimeout:   "JOIN_RSP_TIMEOUT",
	StatusJoinSuccess:      "JOIN_SUCCESS",
	StatusResetPowerOn:     "RESET_POWER_ON",
	StatusResetExternal:    "RESET_EXTERNAL",
	StatusResetSoftware:    "RESET_SOFTWARE",
	StatusResetFault:       "RESET_FAULT",
	StatusResetCrash:       "RESET_CRASH",
	StatusResetAssert:      "RESET_ASSERT",
	StatusResetOther:       "RESET_OTHER",
	StatusResetUnknown:     "RESET_UNKNOWN",
	StatusResetWatchdog:    "RESET_WATCHDOG",
}

// Property ids.
const (
	PropLastStatus      uint32 = 0
	PropProtocolVersion uint32 = 1
	PropNCPVersion      uint32 = 2
	PropInterfaceType   uint32 = 3
	PropVendorID        uint32 = 4
	PropCaps            uint32 = 5
	PropInterfaceCount  uint32 = 6
	PropPowerState      uint32 = 7
	PropHWAddr          uint32 = 8
	PropLock            uint32 = 9
	PropHBOMemMax       uint32 = 10
	PropHBOBlockMax     uint32 = 11

	PropPHYEnabled       uint32 = 0x20
	PropPHYChan          uint32 = 0x21
	PropPHYChanSupported uint32 = 0x22
	PropPHYFreq          uint32 = 0x23
	PropPHYCCAThreshold  uint32 = 0x24
	PropPHYTXPower       uint32 = 0x25
	PropPHYRSSI          uint32 = 0x26

	PropMACScanState        uint32 = 0x30
	PropMACScanMask         uint32 = 0x31
	PropMACScanPeriod       uint32 = 0x32
	PropMACScanBeacon       uint32 = 0x33
	PropMAC154LAddr         uint32 = 0x34
	PropMAC154SAddr         uint32 = 0x35
	PropMAC154PANID         uint32 = 0x36
	PropMACRawStreamEnabled uint32 = 0x37
	PropMACPromiscuousMode  uint32 = 0x38
	PropMACEnergyScanResult uint32 = 0x39
	PropMACDataPollPeriod   uint32 = 0x3A

	PropNetSaved               uint32 = 0x40
	PropNetIfUp                uint32 = 0x41
	PropNetStackUp             uint32 = 0x42
	PropNetRole                uint32 = 0x43
	PropNetNetworkName         uint32 = 0x44
	PropNetXPANID              uint32 = 0x45
	PropNetMasterKey           uint32 = 0x46
	PropNetKeySequenceCounter  uint32 = 0x47
	PropNetPartitionID         uint32 = 0x48
	PropNetRequireJoinExisting uint32 = 0x49
	PropNetKeySwitchGuardtime  uint32 = 0x4A
	PropNetPSKc                uint32 = 0x4B

	PropThreadLeaderAddr              uint32 = 0x50
	PropThreadParent                  uint32 = 0x51
	PropThreadChildTable              uint32 = 0x52
	PropThreadLeaderRID               uint32 = 0x53
	PropThreadLeaderWeight            uint32 = 0x54
	PropThreadLocalLeaderWeight       uint32 = 0x55
	PropThreadNetworkData             uint32 = 0x56
	PropThreadNetworkDataVersion      uint32 = 0x57
	PropThreadStableNetworkData       uint32 = 0x58
	PropThreadStableNetworkDataVer    uint32 = 0x59
	PropThreadOnMeshNets              uint32 = 0x5A
	PropThreadOffMeshRoutes           uint32 = 0x5B
	PropThreadAssistingPorts          uint32 = 0x5C
	PropThreadAllowLocalNetDataChange uint32 = 0x5D
	PropThreadMode                    uint32 = 0x5E

	PropIPv6LLAddr       uint32 = 0x60
	PropIPv6MLAddr       uint32 = 0x61
	PropIPv6MLPrefix     uint32 = 0x62
	PropIPv6AddressTable uint32 = 0x63

	PropStreamDebug       uint32 = 0x70
	PropStreamRaw         uint32 = 0x71
	PropStreamNet         uint32 = 0x72
	PropStreamNetInsecure uint32 = 0x73

	PropMACWhitelist        uint32 = 0x1300
	PropMACWhitelistEnabled uint32 = 0x1301

	PropThreadRouterRoleEnabled uint32 = 0x1507
	PropThreadNeighborTable     uint32 = 0x150B
	PropThreadLocalRoutes       uint32 = 0x1513

	PropMsgBufferCounters uint32 = 1680

	PropNestStreamMfg uint32 = 15296
)

var propNames = map[uint32]string{
	PropLastStatus:                    "LAST_STATUS",
	PropProtocolVersion:               "PROTOCOL_VERSION",
	PropNCPVersion:                    "NCP_VERSION",
	PropInterfaceType:                 "INTERFACE_TYPE",
	PropVendorID:                      "VENDOR_ID",
	PropCaps:                          "CAPS",
	PropInterfaceCount:                "INTERFACE_COUNT",
	PropPowerState:                    "POWER_STATE",
	PropHWAddr:                        "HWADDR",
	PropLock:                          "LOCK",
	PropPHYEnabled:                    "PHY_ENABLED",
	PropPHYChan:                       "PHY_CHAN",
	PropPHYChanSupported:              "PHY_CHAN_SUPPORTED",
	PropPHYFreq:                       "PHY_FREQ",
	PropPHYCCAThreshold:               "PHY_CCA_THRESHOLD",
	PropPHYTXPower:                    "PHY_TX_POWER",
	PropPHYRSSI:                       "PHY_RSSI",
	PropMACScanState:                  "MAC_SCAN_STATE",
	PropMACScanMask:                   "MAC_SCAN_MASK",
	PropMACScanPeriod:                 "MAC_SCAN_PERIOD",
	PropMACScanBeacon:                 "MAC_SCAN_BEACON",
	PropMAC154LAddr:                   "MAC_15_4_LADDR",
	PropMAC154SAddr:                   "MAC_15_4_SADDR",
	PropMAC154PANID:                   "MAC_15_4_PANID",
	PropMACRawStreamEnabled:           "MAC_RAW_STREAM_ENABLED",
	PropMACPromiscuousMode:            "MAC_PROMISCUOUS_MODE",
	PropMACEnergyScanResult:           "MAC_ENERGY_SCAN_RESULT",
	PropMACDataPollPeriod:             "MAC_DATA_POLL_PERIOD",
	PropNetSaved:                      "NET_SAVED",
	PropNetIfUp:                       "NET_IF_UP",
	PropNetStackUp:                    "NET_STACK_UP",
	PropNetRole:                       "NET_ROLE",
	PropNetNetworkName:                "NET_NETWORK_NAME",
	PropNetXPANID:                     "NET_XPANID",
	PropNetMasterKey:                  "NET_MASTER_KEY",
	PropNetKeySequenceCounter:         "NET_KEY_SEQUENCE_COUNTER",
	PropNetPartitionID:                "NET_PARTITION_ID",
	PropNetRequireJoinExisting:        "NET_REQUIRE_JOIN_EXISTING",
	PropNetKeySwitchGuardtime:         "NET_KEY_SWITCH_GUARDTIME",
	PropNetPSKc:                       "NET_PSKC",
	PropThreadLeaderAddr:              "THREAD_LEADER_ADDR",
	PropThreadParent:                  "THREAD_PARENT",
	PropThreadChildTable:              "THREAD_CHILD_TABLE",
	PropThreadLeaderRID:               "THREAD_LEADER_RID",
	PropThreadLeaderWeight:            "THREAD_LEADER_WEIGHT",
	PropThreadLocalLeaderWeight:       "THREAD_LOCAL_LEADER_WEIGHT",
	PropThreadNetworkData:             "THREAD_NETWORK_DATA",
	PropThreadNetworkDataVersion:      "THREAD_NETWORK_DATA_VERSION",
	PropThreadStableNetworkData:       "THREAD_STABLE_NETWORK_DATA",
	PropThreadStableNetworkDataVer:    "THREAD_STABLE_NETWORK_DATA_VERSION",
	PropThreadOnMeshNets:              "THREAD_ON_MESH_NETS",
	PropThreadOffMeshRoutes:           "THREAD_OFF_MESH_ROUTES",
	PropThreadAssistingPorts:          "THREAD_ASSISTING_PORTS",
	PropThreadAllowLocalNetDataChange: "THREAD_ALLOW_LOCAL_NET_DATA_CHANGE",
	PropThreadMode:                    "THREAD_MODE",
	PropIPv6LLAddr:                    "IPV6_LL_ADDR",
	PropIPv6MLAddr:                    "IPV6_ML_ADDR",
	PropIPv6MLPrefix:                  "IPV6_ML_PREFIX",
	PropIPv6AddressTable:              "IPV6_ADDRESS_TABLE",
	PropStreamDebug:                   "STREAM_DEBUG",
	PropStreamRaw:                     "STREAM_RAW",
	PropStreamNet:                     "STREAM_NET",
	PropStreamNetInsecure:             "STREAM_NET_INSECURE",
	PropMACWhitelist:                  "MAC_WHITELIST",
	PropMACWhitelistEnabled:           "MAC_WHITELIST_ENABLED",
	PropThreadRouterRoleEnabled:       "THREAD_ROUTER_ROLE_ENABLED",
	PropThreadNeighborTable:           "THREAD_NEIGHBOR_TABLE",
	PropThreadLocalRoutes:             "THREAD_LOCAL_ROUTES",
	PropMsgBufferCounters:             "MSG_BUFFER_COUNTERS",
	PropNestStreamMfg:                 "NEST_STREAM_MFG",
}

// Capabilities advertised through PropCaps.
const (
	CapLock                uint32 = 1
	CapNetSave             uint32 = 2
	CapHBO                 uint32 = 3
	CapPowerSave           uint32 = 4
	CapCounters            uint32 = 5
	CapJamDetect           uint32 = 6
	CapPeekPoke            uint32 = 7
	CapWritableRawStream   uint32 = 8
	CapGPIO                uint32 = 9
	CapTRNG                uint32 = 10
	CapCmdMulti            uint32 = 11
	CapMAC154              uint32 = 16
	CapMACRaw              uint32 = 20
	CapRoleRouter          uint32 = 48
	CapRoleSleepy          uint32 = 49
	CapNetThread10         uint32 = 52
	CapNestLegacyInterface uint32 = 15296
	CapNestLegacyNetWake   uint32 = 15297
	CapNestTransmitHook    uint32 = 15298
)

// Role values of PropNetRole.
const (
	RoleDetached uint8 = 0
	RoleChild    uint8 = 1
	RoleRouter   uint8 = 2
	RoleLeader   uint8 = 3
)

// Scan states of PropMACScanState.
const (
	ScanStateIdle   uint8 = 0
	ScanStateBeacon uint8 = 1
	ScanStateEnergy uint8 = 2
)

// Power states of PropPowerState.
const (
	PowerStateOffline   uint8 = 0
	PowerStateDeepSleep uint8 = 1
	PowerStateStandby   uint8 = 2
	PowerStateLowPower  uint8 = 3
	PowerStateOnline    uint8 = 4
)

// Promiscuous modes of PropMACPromiscuousMode.
const (
	PromiscuousOff     uint8 = 0
	PromiscuousNetwork uint8 = 1
	PromiscuousFull    uint8 = 2
)

// Thread mode flags of PropThreadMode and child/neighbor records.
const (
	ModeFullNetworkData   uint8 = 1 << 0
	ModeFullFunction      uint8 = 1 << 1
	ModeSecureDataRequest uint8 = 1 << 2
	ModeRxOnWhenIdle      uint8 = 1 << 3
)

const (
	ProtocolTypeThread   uint32 = 3
	ProtocolVersionMajor uint32 = 4
	ProtocolVersionMinor uint32 = 3
)

// MaxFrameSize bounds a command buffer.
const MaxFrameSize = 1300

// Header layout.
const (
	HeaderFlag     byte = 0x80
	HeaderIIDMask  byte = 0x30
	HeaderIIDShift      = 4
	HeaderTIDMask  byte = 0x0F
)
