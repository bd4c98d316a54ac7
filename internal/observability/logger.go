// Package observability builds the zap loggers shared by the CLI, the sandbox
// server and the SDK bootstrap.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a logger writing to stderr at the given level. format is
// "console" (human readable) or "json".
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console", "text":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.DisableStacktrace = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("observability: unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// MustLogger is NewLogger for callers that cannot recover, falling back to a
// no-op logger.
func MustLogger(level, format string) *zap.Logger {
	logger, err := NewLogger(level, format)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// ParseLevel converts a textual level into a zap level. Unknown values are an
// error; the empty string means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "silent", "off":
		return zapcore.FatalLevel + 1, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("observability: unknown log level %q", level)
	}
}
