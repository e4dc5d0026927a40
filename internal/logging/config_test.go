package logging

import (
	"testing"

	"github.com/danmuck/wpanctl/internal/logs"
	"github.com/stretchr/testify/assert"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestResolvePrecedence(t *testing.T) {
	cfg := Resolve(ProfileRuntime, "", env(nil))
	assert.Equal(t, logs.InfoLevel, cfg.Level)
	assert.True(t, cfg.Timestamp)

	cfg = Resolve(ProfileRuntime, "debug", env(nil))
	assert.Equal(t, logs.DebugLevel, cfg.Level)

	cfg = Resolve(ProfileRuntime, "debug", env(map[string]string{
		EnvLogLevel:     "error",
		EnvLogTimestamp: "false",
		EnvLogNoColor:   "1",
		EnvLogBypass:    "maybe",
	}))
	assert.Equal(t, logs.ErrorLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)
	assert.True(t, cfg.NoColor)
	assert.False(t, cfg.Bypass)

	cfg = Resolve(ProfileTest, "bogus", env(nil))
	assert.Equal(t, logs.DebugLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)
}

func TestParseLevel(t *testing.T) {
	for raw, want := range map[string]logs.Level{
		"diagnostics": logs.TraceLevel,
		" INFO ":      logs.InfoLevel,
		"warning":     logs.WarnLevel,
		"off":         logs.Disabled,
	} {
		got, ok := ParseLevel(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
}
