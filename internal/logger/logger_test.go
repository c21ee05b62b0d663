package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	lg, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, lg.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, lg.Core().Enabled(zapcore.WarnLevel))

	lg, err = New("development", "")
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zapcore.DebugLevel))

	_, err = New("production", "loud")
	assert.Error(t, err)
}

func TestNewProductionIgnoresCase(t *testing.T) {
	for _, env := range []string{"Production", "PRODUCTION"} {
		lg, err := New(env, "")
		require.NoError(t, err)
		assert.False(t, lg.Core().Enabled(zapcore.DebugLevel), env)
	}
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lg := zap.New(core)

	ctx := WithRequestID(context.Background(), "req-1")
	WithContext(ctx, lg).Info("hello")
	WithContext(context.Background(), lg).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "joh***@example.com", MaskEmail("john.doe@example.com"))
	assert.Equal(t, "***", MaskEmail("nope"))
	assert.Equal(t, "", MaskEmail(""))

	assert.Equal(t, "192.168.*.*", MaskIP("192.168.1.100"))
	assert.Equal(t, "2001:0db8:85a3:0000:*:*:*:*", MaskIP("2001:0db8:85a3:0000:0000:8a2e:0370:7334"))
	assert.Equal(t, "***", MaskIP("localhost"))
}
