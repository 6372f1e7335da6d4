// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration structure.
type Bootstrap struct {
	Server  *Server
	Data    *Data
	Gateway *Gateway
	Log     *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP holds HTTP server configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration. Both Redis and the audit database
// are optional: without Redis the sliding window is kept in process memory,
// without a database DSN audit events are log-only.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database holds the audit database configuration.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis holds Redis configuration for the distributed rate-limit window.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Gateway holds the LLM gateway configuration: the credential pool and the
// availability parameters (rate limiting, circuit breaking, backoff, retry).
type Gateway struct {
	// Keys is the ordered list of provider credentials. An empty list is a
	// fatal startup error.
	Keys []string

	// Sliding-window rate limit per key.
	MaxRequestsPerWindow int32
	Window               *durationpb.Duration

	// Circuit breaker.
	FailureThreshold int32
	RecoveryTimeout  *durationpb.Duration

	// Exponential backoff.
	BackoffBase *durationpb.Duration
	BackoffMax  *durationpb.Duration

	// Retry loop.
	MaxAttempts    int32
	AttemptTimeout *durationpb.Duration

	// Outbound provider settings.
	BaseURL     string
	ProxyURL    string
	TextModel   string
	VisionModel string
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
