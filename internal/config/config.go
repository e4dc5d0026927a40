// Package config maps wpanctl TOML files onto daemon.ServiceConfig.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/wpanctl/internal/daemon"
	"github.com/danmuck/wpanctl/internal/protocol/frame"
)

var ErrControlByte = errors.New("config: control value must be a single byte")

// File is the on-disk shape. Every duration also accepts an integer
// millisecond alternate under the same key with an _ms suffix.
type File struct {
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	Socket   string `toml:"socket"`
	Baud     int    `toml:"baud"`
	Framing  string `toml:"framing"`

	PowerPath  string `toml:"power_path"`
	ResetPath  string `toml:"reset_path"`
	PowerOn    string `toml:"power_on"`
	PowerOff   string `toml:"power_off"`
	ResetBegin string `toml:"reset_begin"`
	ResetEnd   string `toml:"reset_end"`

	AutoResume         bool `toml:"auto_resume"`
	AutoDeepSleep      bool `toml:"auto_deep_sleep"`
	AutoUpdateFirmware bool `toml:"auto_update_firmware"`
	TerminateOnFault   bool `toml:"terminate_on_fault"`
	FailureThreshold   int  `toml:"failure_threshold"`

	AutoDeepSleepTimeout     string `toml:"auto_deep_sleep_timeout"`
	AutoDeepSleepTimeoutMS   int64  `toml:"auto_deep_sleep_timeout_ms,omitempty"`
	SendTimeout              string `toml:"send_timeout"`
	SendTimeoutMS            int64  `toml:"send_timeout_ms,omitempty"`
	ResponseTimeout          string `toml:"response_timeout"`
	ResponseTimeoutMS        int64  `toml:"response_timeout_ms,omitempty"`
	TickleTimeout            string `toml:"tickle_timeout"`
	TickleTimeoutMS          int64  `toml:"tickle_timeout_ms,omitempty"`
	DeepSleepTickleTimeout   string `toml:"deep_sleep_tickle_timeout"`
	DeepSleepTickleTimeoutMS int64  `toml:"deep_sleep_tickle_timeout_ms,omitempty"`
	JoinTimeout              string `toml:"join_timeout"`
	JoinTimeoutMS            int64  `toml:"join_timeout_ms,omitempty"`
	FormTimeout              string `toml:"form_timeout"`
	FormTimeoutMS            int64  `toml:"form_timeout_ms,omitempty"`
	ScanTimeout              string `toml:"scan_timeout"`
	ScanTimeoutMS            int64  `toml:"scan_timeout_ms,omitempty"`

	FirmwareCheckCommand   string `toml:"firmware_check_command"`
	FirmwareUpgradeCommand string `toml:"firmware_upgrade_command"`

	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
	APIToken    string   `toml:"api_token"`
	TLS         TLSFile  `toml:"tls"`
}

type TLSFile struct {
	Enabled  bool   `toml:"enabled"`
	Mutual   bool   `toml:"mutual"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	CAFile   string `toml:"ca_file"`
}

// Load decodes path and overlays every key it defines onto
// daemon.DefaultServiceConfig. The result is not validated.
func Load(path string) (daemon.ServiceConfig, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("load wpanctl config: %w", err)
	}
	return overlay(raw, meta)
}

// Decode is Load for in-memory TOML.
func Decode(data string) (daemon.ServiceConfig, error) {
	var raw File
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return daemon.ServiceConfig{}, fmt.Errorf("decode wpanctl config: %w", err)
	}
	return overlay(raw, meta)
}

func overlay(raw File, meta toml.MetaData) (daemon.ServiceConfig, error) {
	cfg := daemon.DefaultServiceConfig()

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("socket") {
		cfg.Socket = strings.TrimSpace(raw.Socket)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("framing") {
		cfg.Framing = frame.Framing(strings.ToLower(strings.TrimSpace(raw.Framing)))
	}
	if meta.IsDefined("power_path") {
		cfg.PowerPath = strings.TrimSpace(raw.PowerPath)
	}
	if meta.IsDefined("reset_path") {
		cfg.ResetPath = strings.TrimSpace(raw.ResetPath)
	}

	controls := []struct {
		key string
		raw string
		dst *byte
	}{
		{"power_on", raw.PowerOn, &cfg.PowerOn},
		{"power_off", raw.PowerOff, &cfg.PowerOff},
		{"reset_begin", raw.ResetBegin, &cfg.ResetBegin},
		{"reset_end", raw.ResetEnd, &cfg.ResetEnd},
	}
	for _, c := range controls {
		if !meta.IsDefined(c.key) {
			continue
		}
		if len(c.raw) != 1 {
			return daemon.ServiceConfig{}, fmt.Errorf("parse %s: %w: %q", c.key, ErrControlByte, c.raw)
		}
		*c.dst = c.raw[0]
	}

	if meta.IsDefined("auto_resume") {
		cfg.AutoResume = raw.AutoResume
	}
	if meta.IsDefined("auto_deep_sleep") {
		cfg.AutoDeepSleep = raw.AutoDeepSleep
	}
	if meta.IsDefined("auto_update_firmware") {
		cfg.AutoUpdateFirmware = raw.AutoUpdateFirmware
	}
	if meta.IsDefined("terminate_on_fault") {
		cfg.TerminateOnFault = raw.TerminateOnFault
	}
	if meta.IsDefined("failure_threshold") {
		cfg.Session.FailureThreshold = raw.FailureThreshold
	}

	durations := []struct {
		key string
		raw string
		ms  int64
		dst *time.Duration
	}{
		{"auto_deep_sleep_timeout", raw.AutoDeepSleepTimeout, raw.AutoDeepSleepTimeoutMS, &cfg.Session.AutoDeepSleepTimeout},
		{"send_timeout", raw.SendTimeout, raw.SendTimeoutMS, &cfg.Session.SendTimeout},
		{"response_timeout", raw.ResponseTimeout, raw.ResponseTimeoutMS, &cfg.Session.ResponseTimeout},
		{"tickle_timeout", raw.TickleTimeout, raw.TickleTimeoutMS, &cfg.Session.TickleTimeout},
		{"deep_sleep_tickle_timeout", raw.DeepSleepTickleTimeout, raw.DeepSleepTickleTimeoutMS, &cfg.Session.DeepSleepTickleTimeout},
		{"join_timeout", raw.JoinTimeout, raw.JoinTimeoutMS, &cfg.Session.JoinTimeout},
		{"form_timeout", raw.FormTimeout, raw.FormTimeoutMS, &cfg.Session.FormTimeout},
		{"scan_timeout", raw.ScanTimeout, raw.ScanTimeoutMS, &cfg.Session.ScanTimeout},
	}
	for _, d := range durations {
		if meta.IsDefined(d.key) {
			v, err := time.ParseDuration(strings.TrimSpace(d.raw))
			if err != nil {
				return daemon.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
			}
			*d.dst = v
		}
		// The millisecond form wins when both are present.
		if meta.IsDefined(d.key + "_ms") {
			*d.dst = time.Duration(d.ms) * time.Millisecond
		}
	}

	if meta.IsDefined("firmware_check_command") {
		cfg.FirmwareCheckCommand = strings.TrimSpace(raw.FirmwareCheckCommand)
	}
	if meta.IsDefined("firmware_upgrade_command") {
		cfg.FirmwareUpgradeCommand = strings.TrimSpace(raw.FirmwareUpgradeCommand)
	}

	if meta.IsDefined("listen") {
		cfg.ListenAddr = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}
	if meta.IsDefined("api_token") {
		cfg.APIToken = strings.TrimSpace(raw.APIToken)
	}
	if meta.IsDefined("tls") {
		cfg.TLS = daemon.TLSConfig{
			Enabled:  raw.TLS.Enabled,
			Mutual:   raw.TLS.Mutual,
			CertFile: strings.TrimSpace(raw.TLS.CertFile),
			KeyFile:  strings.TrimSpace(raw.TLS.KeyFile),
			CAFile:   strings.TrimSpace(raw.TLS.CAFile),
		}
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	return out
}
