package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test NewBootstrap - keys from the environment plus defaults everywhere else
func TestNewBootstrap_EnvKeysAndDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "secret-a,secret-b,secret-c")

	bc, err := NewBootstrap("")
	require.NoError(t, err)

	assert.Equal(t, []string{"secret-a", "secret-b", "secret-c"}, bc.Gateway.Keys)

	// Gateway defaults
	assert.Equal(t, int32(30), bc.Gateway.MaxRequestsPerWindow)
	assert.Equal(t, 60*time.Second, bc.Gateway.Window.AsDuration())
	assert.Equal(t, int32(5), bc.Gateway.FailureThreshold)
	assert.Equal(t, 60*time.Second, bc.Gateway.RecoveryTimeout.AsDuration())
	assert.Equal(t, 2*time.Second, bc.Gateway.BackoffBase.AsDuration())
	assert.Equal(t, 60*time.Second, bc.Gateway.BackoffMax.AsDuration())
	assert.Equal(t, int32(3), bc.Gateway.MaxAttempts)
	assert.Equal(t, 30*time.Second, bc.Gateway.AttemptTimeout.AsDuration())
	assert.Equal(t, "https://generativelanguage.googleapis.com", bc.Gateway.BaseURL)
	assert.Equal(t, "gemini-pro", bc.Gateway.TextModel)
	assert.Equal(t, "gemini-pro-vision", bc.Gateway.VisionModel)

	// Server and log defaults
	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)

	// Optional backends default to off.
	assert.Empty(t, bc.Data.Redis.Addr)
	assert.Empty(t, bc.Data.Database.Source)
}

// Test NewBootstrap - an empty key pool is a fatal configuration error
func TestNewBootstrap_MissingKeysFails(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "")

	_, err := NewBootstrap("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.keys")
}

// Test NewBootstrap - YAML config file overrides defaults
func TestNewBootstrap_ConfigFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "secret-a")

	content := `
server:
  http:
    addr: ":9090"
gateway:
  max_requests_per_window: 10
  window: 30s
  failure_threshold: 2
  text_model: gemini-1.5-pro
data:
  redis:
    addr: "localhost:6379"
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", bc.Server.Http.Addr)
	assert.Equal(t, int32(10), bc.Gateway.MaxRequestsPerWindow)
	assert.Equal(t, 30*time.Second, bc.Gateway.Window.AsDuration())
	assert.Equal(t, int32(2), bc.Gateway.FailureThreshold)
	assert.Equal(t, "gemini-1.5-pro", bc.Gateway.TextModel)
	assert.Equal(t, "localhost:6379", bc.Data.Redis.Addr)
	assert.Equal(t, "debug", bc.Log.Level)

	// Untouched settings keep their defaults.
	assert.Equal(t, 60*time.Second, bc.Gateway.RecoveryTimeout.AsDuration())
}

// Test NewBootstrap - a named but unreadable config file is an error
func TestNewBootstrap_MissingConfigFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEYS", "secret-a")

	_, err := NewBootstrap(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

// Test parseKeys - comma splitting with whitespace and empty entries
func TestParseKeys(t *testing.T) {
	assert.Nil(t, parseKeys(""))
	assert.Equal(t, []string{"a"}, parseKeys("a"))
	assert.Equal(t, []string{"a", "b"}, parseKeys("a,b"))
	assert.Equal(t, []string{"a", "b"}, parseKeys(" a , b "))
	assert.Equal(t, []string{"a", "b"}, parseKeys("a,,b,"))
}

// Test Validate - only the key pool is required
func TestValidate(t *testing.T) {
	assert.Error(t, Validate(&Bootstrap{}))
	assert.Error(t, Validate(&Bootstrap{Gateway: &Gateway{}}))
	assert.NoError(t, Validate(&Bootstrap{Gateway: &Gateway{Keys: []string{"k"}}}))
}
