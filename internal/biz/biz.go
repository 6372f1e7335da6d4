// Package biz contains business logic layer implementations.
package biz

import (
	"RelayGate/internal/data"
	"RelayGate/pkg/gemini"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBackoffPolicy,
	NewWindowRepo,
	NewRateLimiterUseCase,
	NewCircuitBreakerUsecase,
	NewKeySelector,
	NewFallbackResponder,
	NewStatusUsecase,
	NewGatewayUsecase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	wire.Bind(new(ProviderClient), new(*gemini.Client)),
)
