package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with RELAYGATE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required configuration:
//   - GEMINI_API_KEYS or RELAYGATE_GATEWAY_KEYS: comma-separated provider
//     credentials. An empty pool is a fatal startup error.
//
// Parameters:
//   - configPath: Path to the configuration file (optional, may be empty)
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with RELAYGATE_ prefix
	v.SetEnvPrefix("RELAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without RELAYGATE_ prefix) for compatibility
	_ = v.BindEnv("gateway.keys", "GEMINI_API_KEYS", "RELAYGATE_GATEWAY_KEYS")
	_ = v.BindEnv("gateway.proxy_url", "RELAYGATE_GATEWAY_PROXY_URL")
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "RELAYGATE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "RELAYGATE_DATA_REDIS_ADDR")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Gateway: &Gateway{
			Keys:                 parseKeys(v.GetString("gateway.keys")),
			MaxRequestsPerWindow: v.GetInt32("gateway.max_requests_per_window"),
			Window:               durationpb.New(v.GetDuration("gateway.window")),
			FailureThreshold:     v.GetInt32("gateway.failure_threshold"),
			RecoveryTimeout:      durationpb.New(v.GetDuration("gateway.recovery_timeout")),
			BackoffBase:          durationpb.New(v.GetDuration("gateway.backoff_base")),
			BackoffMax:           durationpb.New(v.GetDuration("gateway.backoff_max")),
			MaxAttempts:          v.GetInt32("gateway.max_attempts"),
			AttemptTimeout:       durationpb.New(v.GetDuration("gateway.attempt_timeout")),
			BaseURL:              v.GetString("gateway.base_url"),
			ProxyURL:             v.GetString("gateway.proxy_url"),
			TextModel:            v.GetString("gateway.text_model"),
			VisionModel:          v.GetString("gateway.vision_model"),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// parseKeys splits a comma-separated credential list, dropping empty entries.
// Order is preserved: it determines the stable per-key identifiers.
func parseKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 2*time.Minute)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is optional; audit is log-only without it

	v.SetDefault("data.redis.network", "tcp")
	// Note: data.redis.addr is optional; rate-limit window is in-memory without it
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Gateway defaults
	// Note: gateway.keys (GEMINI_API_KEYS) is required from environment
	v.SetDefault("gateway.max_requests_per_window", 30)
	v.SetDefault("gateway.window", 60*time.Second)
	v.SetDefault("gateway.failure_threshold", 5)
	v.SetDefault("gateway.recovery_timeout", 60*time.Second)
	v.SetDefault("gateway.backoff_base", 2*time.Second)
	v.SetDefault("gateway.backoff_max", 60*time.Second)
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.attempt_timeout", 30*time.Second)
	v.SetDefault("gateway.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gateway.text_model", "gemini-pro")
	v.SetDefault("gateway.vision_model", "gemini-pro-vision")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// The credential pool is the only hard requirement: an empty pool makes
	// the gateway unable to serve anything but degraded answers, so refuse
	// to start.
	if bc.Gateway == nil || len(bc.Gateway.Keys) == 0 {
		missingFields = append(missingFields, "gateway.keys (GEMINI_API_KEYS)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
