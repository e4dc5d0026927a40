package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/wpanctl/internal/daemon"
	"github.com/danmuck/wpanctl/internal/protocol/frame"
	"github.com/danmuck/wpanctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(filepath.Join("testdata", "wpanctl.toml"))
	require.NoError(t, err)

	assert.Equal(t, "wpan1", cfg.Name)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/dev/ttyACM0", cfg.Socket)
	assert.Equal(t, 460800, cfg.Baud)
	assert.Equal(t, frame.FramingFLEN, cfg.Framing)
	assert.Equal(t, "/sys/class/gpio/gpio17/value", cfg.PowerPath)
	assert.Equal(t, byte('1'), cfg.PowerOn)
	assert.Equal(t, byte('0'), cfg.PowerOff)
	assert.False(t, cfg.AutoResume)
	assert.True(t, cfg.AutoDeepSleep)
	assert.Equal(t, 5, cfg.Session.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Session.AutoDeepSleepTimeout)
	assert.Equal(t, time.Second, cfg.Session.SendTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Session.ResponseTimeout)
	assert.Equal(t, 40*time.Second, cfg.Session.JoinTimeout)
	assert.Equal(t, "0.0.0.0:9470", cfg.ListenAddr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.APIToken)
	assert.Equal(t, "/usr/local/bin/ncp-fw-check", cfg.FirmwareCheckCommand)
	assert.Equal(t, "/usr/local/bin/ncp-fw-flash --port /dev/ttyACM0", cfg.FirmwareUpgradeCommand)
	assert.True(t, cfg.TLS.Enabled)
	assert.Equal(t, "certs/wpanctl.crt", cfg.TLS.CertFile)

	// Untouched keys keep their defaults.
	def := daemon.DefaultServiceConfig()
	assert.Equal(t, def.Session.FormTimeout, cfg.Session.FormTimeout)
	assert.Equal(t, def.Session.ScanTimeout, cfg.Session.ScanTimeout)
	assert.Equal(t, def.ResetBegin, cfg.ResetBegin)
	assert.Empty(t, cfg.ResetPath)
}

func TestDecodeErrors(t *testing.T) {
	testlog.Start(t)

	_, err := Decode(`send_timeout = "soon"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send_timeout")

	_, err = Decode(`power_on = "on"`)
	require.ErrorIs(t, err, ErrControlByte)

	_, err = Decode(`baud = "fast"`)
	require.Error(t, err)

	_, err = Load(filepath.Join("testdata", "missing.toml"))
	require.Error(t, err)
}

func TestValidateRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	_, err := Validate(filepath.Join("testdata", "unknown_key.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sokcet")

	cfg, err := Validate(filepath.Join("testdata", "wpanctl.toml"))
	require.NoError(t, err)
	assert.Equal(t, "wpan1", cfg.Name)
}

func TestValidateChecksSettings(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("baud = 0\n"), 0o600))
	_, err := Validate(path)
	require.ErrorIs(t, err, daemon.ErrInvalidBaud)
}

func TestTemplateRoundTripsDefaults(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, WriteTemplate(path, false))
	require.ErrorIs(t, WriteTemplate(path, false), ErrExists)
	require.NoError(t, WriteTemplate(path, true))

	cfg, err := Validate(path)
	require.NoError(t, err)
	assert.Equal(t, daemon.DefaultServiceConfig(), cfg)
}

func TestShippedExampleMatchesDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Validate(filepath.Join("..", "..", "cmd", "wpanctl", "ex.config.toml"))
	require.NoError(t, err)

	want := daemon.DefaultServiceConfig()
	want.LogLevel = "info"
	assert.Equal(t, want, cfg)
}
