// Package logging picks the process log profile once at startup.
//
// Precedence, lowest first: profile defaults, the config file level, the
// WPANCTL_LOG_* environment.
package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/wpanctl/internal/logs"
)

const (
	EnvLogLevel     = "WPANCTL_LOG_LEVEL"
	EnvLogTimestamp = "WPANCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "WPANCTL_LOG_NOCOLOR"
	EnvLogBypass    = "WPANCTL_LOG_BYPASS"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var configureOnce sync.Once

// ConfigureRuntime applies the daemon profile. level is the config file's
// log_level and may be empty.
func ConfigureRuntime(level string) {
	Configure(ProfileRuntime, level)
}

func ConfigureTests() {
	Configure(ProfileTest, "")
}

// Configure takes effect on the first call only.
func Configure(profile Profile, level string) {
	configureOnce.Do(func() {
		logs.Configure(Resolve(profile, level, os.Getenv))
	})
}

// Resolve computes the logs.Config for profile without installing it.
func Resolve(profile Profile, level string, getenv func(string) string) logs.Config {
	cfg := logs.DefaultConfig()
	switch profile {
	case ProfileTest:
		cfg.Level = logs.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = logs.InfoLevel
		cfg.Timestamp = true
	}
	if lvl, ok := ParseLevel(level); ok {
		cfg.Level = lvl
	}

	if lvl, ok := ParseLevel(getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(getenv(EnvLogBypass)); ok {
		cfg.Bypass = v
	}
	return cfg
}

// ParseLevel maps a config or env level name onto a logs.Level.
func ParseLevel(raw string) (logs.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return logs.InfoLevel, false
	case "trace", "diagnostics":
		return logs.TraceLevel, true
	case "debug":
		return logs.DebugLevel, true
	case "info":
		return logs.InfoLevel, true
	case "warn", "warning":
		return logs.WarnLevel, true
	case "error":
		return logs.ErrorLevel, true
	case "disabled", "off", "none":
		return logs.Disabled, true
	default:
		return logs.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
