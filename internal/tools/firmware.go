package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/wpanctl/internal/logs"
)

var (
	ErrNoUpgradeCommand = errors.New("tools: no firmware upgrade command")
	ErrUpgradeRunning   = errors.New("tools: firmware upgrade already running")
	ErrBadVersion       = errors.New("tools: control character in ncp version")
)

const (
	DefaultCheckTimeout   = 10 * time.Second
	DefaultUpgradeTimeout = 10 * time.Minute
)

// Firmware runs operator-supplied commands to decide on and perform NCP
// firmware upgrades.
//
// The check command is run with the NCP version string appended as its
// last argument; exit status 0 means an upgrade is required. The upgrade
// command runs in the background and its outcome is handed to Finish
// through Post.
type Firmware struct {
	Check   []string
	Upgrade []string
	Runner  CommandRunner

	// Post queues fn on the goroutine that owns the driver.
	Post func(fn func()) error
	// Finish receives the upgrade result on that goroutine.
	Finish func(err error)

	CheckTimeout   time.Duration
	UpgradeTimeout time.Duration

	mu      sync.Mutex
	running bool
}

// NewFirmware splits the command lines on whitespace. Either may be empty.
func NewFirmware(check, upgrade string) *Firmware {
	return &Firmware{
		Check:          strings.Fields(check),
		Upgrade:        strings.Fields(upgrade),
		Runner:         ExecRunner{},
		CheckTimeout:   DefaultCheckTimeout,
		UpgradeTimeout: DefaultUpgradeTimeout,
	}
}

// CanUpgrade runs the check command synchronously.
func (f *Firmware) CanUpgrade(ncpVersion string) bool {
	if len(f.Check) == 0 || len(f.Upgrade) == 0 || ncpVersion == "" {
		return false
	}
	if strings.IndexFunc(ncpVersion, isControl) >= 0 {
		logs.Errf("tools.Firmware.CanUpgrade err=%v", ErrBadVersion)
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), orDefault(f.CheckTimeout, DefaultCheckTimeout))
	defer cancel()

	args := append(append([]string(nil), f.Check[1:]...), ncpVersion)
	_, stderr, code, err := f.runner().Run(ctx, f.Check[0], args...)
	if err != nil && (code < 0 || code == 127) {
		logs.Warnf("tools.Firmware.CanUpgrade cmd=%s code=%d err=%v stderr=%q", f.Check[0], code, err, strings.TrimSpace(string(stderr)))
	}
	logs.Infof("tools.Firmware.CanUpgrade version=%q required=%t", ncpVersion, code == 0 && err == nil)
	return code == 0 && err == nil
}

// Start launches the upgrade command and returns immediately.
func (f *Firmware) Start() error {
	if len(f.Upgrade) == 0 {
		return ErrNoUpgradeCommand
	}
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return ErrUpgradeRunning
	}
	f.running = true
	f.mu.Unlock()

	go f.run()
	return nil
}

// Running reports whether an upgrade command is in flight.
func (f *Firmware) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Firmware) run() {
	ctx, cancel := context.WithTimeout(context.Background(), orDefault(f.UpgradeTimeout, DefaultUpgradeTimeout))
	defer cancel()

	logs.Warnf("tools.Firmware.run cmd=%q", strings.Join(f.Upgrade, " "))
	_, stderr, code, err := f.runner().Run(ctx, f.Upgrade[0], f.Upgrade[1:]...)
	if err != nil {
		err = fmt.Errorf("firmware upgrade exit=%d: %w (%s)", code, err, strings.TrimSpace(string(stderr)))
	}

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	if f.Finish == nil {
		return
	}
	report := func() { f.Finish(err) }
	if f.Post == nil {
		report()
		return
	}
	if perr := f.Post(report); perr != nil {
		logs.Warnf("tools.Firmware.run result dropped err=%v", perr)
	}
}

func (f *Firmware) runner() CommandRunner {
	if f.Runner == nil {
		return ExecRunner{}
	}
	return f.Runner
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func isControl(r rune) bool {
	return r < 32 && r != '\t'
}
