// Package biz contains business logic layer implementations.
// This layer holds the gateway's availability machinery: key selection,
// rate limiting, circuit breaking, backoff, and fallback synthesis.
package biz

import (
	"context"
	"errors"
	"net"

	"RelayGate/pkg/gemini"
)

// ErrorKind classifies a failed provider attempt. The rest of the gateway
// routes on this taxonomy and never inspects raw error text.
type ErrorKind int

const (
	// KindTransient covers 5xx responses, timeouts and connection resets.
	// Retryable; counts toward the circuit failure threshold.
	KindTransient ErrorKind = iota
	// KindRateLimited means window admission was denied locally. Retryable
	// by trying another key or waiting the returned delay.
	KindRateLimited
	// KindQuotaExceeded covers 429 and explicit quota signals. Retryable,
	// but a stronger failure signal: backoff grows aggressively.
	KindQuotaExceeded
	// KindAuth covers 401/403 and revoked credentials. Non-retryable; the
	// key is disabled permanently.
	KindAuth
)

// String returns the log-friendly name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindAuth:
		return "auth_error"
	default:
		return "transient"
	}
}

// Retryable reports whether another key may succeed where this one failed.
func (k ErrorKind) Retryable() bool {
	return k != KindAuth
}

// Classify maps a provider attempt error onto the ErrorKind taxonomy.
// Unknown errors default to transient: retrying a genuinely broken key is
// bounded by its circuit breaker, while misclassifying a recoverable blip
// as terminal would disable a healthy key.
func Classify(err error) ErrorKind {
	var statusErr *gemini.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == 401 || statusErr.StatusCode == 403:
			return KindAuth
		case statusErr.StatusCode == 429:
			return KindQuotaExceeded
		case statusErr.StatusCode >= 500:
			return KindTransient
		}
		return KindTransient
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindTransient
}
