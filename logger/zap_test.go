package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Info("payment finalized", map[string]any{"blockNumber": uint64(42), "asset": "USDT"})
	l.Debug("status", nil)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "payment finalized", entries[0].Message)
	assert.Equal(t, map[string]any{"blockNumber": uint64(42), "asset": "USDT"}, entries[0].ContextMap())
	assert.Equal(t, "asset", entries[0].Context[0].Key, "keys are sorted")
	assert.Empty(t, entries[1].Context)
}

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := NewFromZap(zap.New(core))

	l.Debug("d", nil)
	l.Info("i", nil)
	l.Warn("w", nil)
	l.Error("e", nil)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	assert.NotPanics(t, func() {
		l.Error("ignored", map[string]any{"k": "v"})
	})
}
