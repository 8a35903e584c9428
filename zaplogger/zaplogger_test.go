package zaplogger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bjaus/cqrs/logger"
	"github.com/bjaus/cqrs/zaplogger"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.Wrap(zap.New(core))

	l.Debug("discovered", logger.With("count", 2))
	l.Info("published")
	l.Warn("strategy skipped", logger.With("strategy", "InterfaceDiscovery"))
	l.Error("handler failed", logger.With("error", errors.New("boom")))

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(2), entries[0].ContextMap()["count"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "published", entries[1].Message)

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "InterfaceDiscovery", entries[2].ContextMap()["strategy"])

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestWrapNil(t *testing.T) {
	l := zaplogger.Wrap(nil)
	require.NotNil(t, l)

	assert.NotPanics(t, func() {
		l.Debug("discovered")
		l.Info("published")
		l.Warn("strategy skipped")
		logger.Error(l, "handler failed", logger.With("error", errors.New("boom")))
	})
}
