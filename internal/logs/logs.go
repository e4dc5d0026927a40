// Package logs is the process-wide printf logger.
//
// Call sites format a single line in the "pkg.Type.method key=value" shape;
// the backend is a zerolog console writer configured once per process.
package logs

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int8

const (
	TraceLevel Level = iota - 1
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	Disabled Level = 7
)

// Config selects level and console formatting.
type Config struct {
	Level     Level
	Timestamp bool
	NoColor   bool
	// Bypass skips the console formatter and writes raw JSON lines.
	Bypass bool
	Out    io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:     InfoLevel,
		Timestamp: true,
		Out:       os.Stderr,
	}
}

var (
	mu     sync.RWMutex
	logger = build(DefaultConfig())
)

func Configure(cfg Config) {
	l := build(cfg)
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Logger returns the configured backend for callers that want structured events.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if !cfg.Bypass {
		cw := zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}
	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger().Level(toZerolog(cfg.Level))
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

func Tracef(format string, args ...any) { emit(zerolog.TraceLevel, format, args...) }
func Debugf(format string, args ...any) { emit(zerolog.DebugLevel, format, args...) }
func Infof(format string, args ...any)  { emit(zerolog.InfoLevel, format, args...) }
func Warnf(format string, args ...any)  { emit(zerolog.WarnLevel, format, args...) }
func Errf(format string, args ...any)   { emit(zerolog.ErrorLevel, format, args...) }

// Logf writes at info level without a level gate on the caller side.
func Logf(format string, args ...any) { emit(zerolog.InfoLevel, format, args...) }

func Debug(msg string) { emit(zerolog.DebugLevel, "%s", msg) }
func Log(msg string)   { emit(zerolog.InfoLevel, "%s", msg) }

func emit(level zerolog.Level, format string, args ...any) {
	l := Logger()
	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	ev.Msg(fmt.Sprintf(format, args...))
}
