package ncp

import (
	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/danmuck/wpanctl/internal/protocol"
)

func (i *Instance) canUpgrade() bool {
	return i.opts.Upgrader != nil && i.opts.Upgrader.CanUpgrade(i.ncpVersion)
}

// startUpgrade hands the NCP to the firmware upgrader. The lifecycle
// waits in Init until FinishUpgrade reports back.
func (i *Instance) startUpgrade() {
	if i.upgrade == upgradeRunning {
		return
	}
	logs.Warnf("ncp.Instance.startUpgrade name=%s version=%q", i.opts.Name, i.ncpVersion)
	i.upgrade = upgradeRunning
	i.upgradeErr = nil
	i.changeState(Upgrading)
	if err := i.opts.Upgrader.Start(); err != nil {
		logs.Errf("ncp.Instance.startUpgrade err=%v", err)
		i.FinishUpgrade(err)
	}
}

// UpgradeFirmware starts an operator-requested firmware update.
func (i *Instance) UpgradeFirmware(cb Callback) {
	if i.opts.Upgrader == nil {
		cb(protocol.StatusFeatureNotSupported, protocol.Value{})
		return
	}
	if i.upgrade == upgradeRunning {
		cb(protocol.StatusInProgress, protocol.Value{})
		return
	}
	i.startUpgrade()
	cb(protocol.StatusOk, protocol.Value{})
}
