package zaplog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)
	return New(zap.New(core)), observed
}

func TestLoggerLevels(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.Debug("debug msg", "id", 1)
	logger.Info("info msg", "count", 2)
	logger.Warn("warn msg", "op_id", "op-1")
	logger.Error("error msg", "err", errors.New("boom"))

	entries := observed.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)

	assert.Equal(t, int64(1), entries[0].ContextMap()["id"])
	assert.Equal(t, "op-1", entries[2].ContextMap()["op_id"])
	assert.Equal(t, "boom", entries[3].ContextMap()["err"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "shown", observed.All()[0].Message)
}

func TestLoggerWith(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.InfoLevel)

	logger.With("device_id", "dev-1").Info("drain finished", "delivered", 3)

	entries := observed.FilterMessage("drain finished").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "dev-1", fields["device_id"])
	assert.Equal(t, int64(3), fields["delivered"])
}

func TestNewNilLogger(t *testing.T) {
	logger := New(nil)
	assert.NotPanics(t, func() {
		logger.Info("discarded")
	})
	assert.NotNil(t, logger.Raw())
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	level, err = ParseLevel(" debug ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	logger, level, err := Build(Config{Level: "warn", JSON: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.False(t, logger.Raw().Core().Enabled(zapcore.InfoLevel))

	_, _, err = Build(Config{Level: "nope"})
	require.Error(t, err)
}
