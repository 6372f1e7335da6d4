package log

import (
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedAdapter(t *testing.T) (log.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, observed := observer.New(zap.DebugLevel)
	return NewKratosAdapter(zap.New(core)), observed
}

func TestKratosAdapter_Levels(t *testing.T) {
	adapter, observed := newObservedAdapter(t)

	require.NoError(t, adapter.Log(log.LevelInfo, "msg", "hello"))
	require.NoError(t, adapter.Log(log.LevelWarn, "msg", "careful"))
	require.NoError(t, adapter.Log(log.LevelError, "msg", "broken"))

	entries := observed.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
}

func TestKratosAdapter_FieldsPreserved(t *testing.T) {
	adapter, observed := newObservedAdapter(t)

	require.NoError(t, adapter.Log(log.LevelInfo,
		"msg", "key selected",
		"key_id", "key-01-a1b2c3",
		"window_used", 7,
	))

	entries := observed.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "key selected", fields["msg"])
	assert.Equal(t, "key-01-a1b2c3", fields["key_id"])
	assert.EqualValues(t, 7, fields["window_used"])
}

func TestKratosAdapter_SanitizesSecrets(t *testing.T) {
	adapter, observed := newObservedAdapter(t)

	secret := "AIzaSyD-verylongsecretvalue-9876"
	require.NoError(t, adapter.Log(log.LevelInfo, "api_key", secret))

	entries := observed.All()
	require.Len(t, entries, 1)
	got, ok := entries[0].ContextMap()["api_key"].(string)
	require.True(t, ok)
	assert.NotEqual(t, secret, got)
	assert.NotContains(t, got, "verylongsecretvalue")
}

func TestKratosAdapter_EmptyKeyvals(t *testing.T) {
	adapter, observed := newObservedAdapter(t)

	require.NoError(t, adapter.Log(log.LevelInfo))
	assert.Zero(t, observed.Len())
}
