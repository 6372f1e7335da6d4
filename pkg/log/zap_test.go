package log

import (
	"path/filepath"
	"testing"

	"RelayGate/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewZapLogger_JSON(t *testing.T) {
	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("startup check")
	_ = logger.Sync()
}

func TestNewZapLogger_Console(t *testing.T) {
	logger, err := NewZapLogger(&conf.Log{Level: "debug", Format: "console", Env: "development"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewZapLogger_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relaygate.log")
	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)

	logger.Info("to file")
	_ = logger.Sync()

	assert.FileExists(t, path)
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	_, err := NewZapLogger(&conf.Log{Level: "shout", Format: "json"})
	require.Error(t, err)
}

func TestNewZapLogger_NilConfig(t *testing.T) {
	_, err := NewZapLogger(nil)
	require.Error(t, err)
}
