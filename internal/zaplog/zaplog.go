// Package zaplog adapts go.uber.org/zap to syncbox.Logger.
package zaplog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/velmie/syncbox"
)

const callerSkipFrames = 1

// Config controls how Build constructs the logger.
type Config struct {
	// Level is a zap level name such as "debug" or "warn". Empty means info.
	Level string
	// JSON selects the JSON encoder instead of the console one.
	JSON bool
}

// Logger implements syncbox.Logger on a sugared zap logger. Args are
// alternating keys and values.
type Logger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

var _ syncbox.Logger = (*Logger)(nil)

// New wraps an existing zap logger. A nil logger discards everything.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Logger{logger: logger, sugar: logger.Sugar()}
}

// Build creates a production-profile logger with the configured level and
// encoding, and returns it with its runtime-adjustable level.
func Build(cfg Config) (*Logger, zap.AtomicLevel, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	base := zap.NewProductionConfig()
	base.Level = zap.NewAtomicLevelAt(level)
	base.DisableStacktrace = true
	base.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.JSON {
		base.Encoding = "json"
	} else {
		base.Encoding = "console"
		base.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := base.Build(zap.AddCallerSkip(callerSkipFrames))
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger failed: %w", err)
	}

	return New(built), base.Level, nil
}

// ParseLevel parses a level name. Empty input yields info.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.Set(s); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return level, nil
}

// Debug implements syncbox.Logger.
func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

// Info implements syncbox.Logger.
func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

// Warn implements syncbox.Logger.
func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

// Error implements syncbox.Logger.
func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(args ...any) *Logger {
	sugar := l.sugar.With(args...)

	return &Logger{logger: sugar.Desugar(), sugar: sugar}
}

// Raw returns the underlying zap logger.
func (l *Logger) Raw() *zap.Logger {
	return l.logger
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}
