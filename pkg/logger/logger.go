// Package logger builds the zap loggers used by the compiler, the unit
// repository and the CLI.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LevelNone disables logging entirely.
const LevelNone = "none"

// ParseLevel maps a level name to a zap level. LevelNone is not a zap level
// and is handled by New.
func ParseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zap.DebugLevel, nil
	case "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("logger: unknown log level %q", level)
	}
}

// ValidFormat reports whether format names a supported encoding.
func ValidFormat(format string) bool {
	return format == FormatJSON || format == FormatText
}

// New builds a production logger writing to stderr. A LevelNone level yields
// a no-op logger regardless of format.
func New(format, level string) (*zap.Logger, error) {
	if level == LevelNone {
		return zap.NewNop(), nil
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if !ValidFormat(format) {
		return nil, fmt.Errorf("logger: unknown log format %q", format)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.CallerKey = ""
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	if format == FormatText {
		cfg.Encoding = "console"
		cfg.DisableCaller = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: build: %w", err)
	}
	return log, nil
}

// MustNew is New that panics on error.
func MustNew(format, level string) *zap.Logger {
	log, err := New(format, level)
	if err != nil {
		panic(err)
	}
	return log
}

// NewObserved returns a logger recording entries at or above level, for
// tests that assert on log output. Unknown levels record everything.
func NewObserved(level string) (*zap.Logger, *observer.ObservedLogs) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zap.DebugLevel
	}
	core, logs := observer.New(lvl)
	return zap.New(core), logs
}
