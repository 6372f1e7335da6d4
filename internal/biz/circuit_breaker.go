package biz

import (
	"context"
	"time"

	"RelayGate/internal/conf"
	"RelayGate/internal/data"
	"RelayGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreakerUsecase drives the per-key failure state machine:
// Closed -> Open after failureThreshold consecutive failures, Open ->
// HalfOpen once the recovery timeout elapses, HalfOpen -> Closed on a
// successful probe or back to Open on a failed one.
//
// All state lives on data.KeyRecord and is only touched under the record's
// own lock; the usecase itself is stateless apart from configuration.
type CircuitBreakerUsecase struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	backoff          *BackoffPolicy
	audit            AuditLogger
	now              func() time.Time
	logger           *log.Helper
}

// NewCircuitBreakerUsecase creates a circuit breaker use case
// (defaults: threshold 5, recovery timeout 60s).
func NewCircuitBreakerUsecase(c *conf.Gateway, backoff *BackoffPolicy, audit AuditLogger, logger log.Logger) *CircuitBreakerUsecase {
	threshold := 5
	recovery := 60 * time.Second
	if c != nil {
		if c.FailureThreshold > 0 {
			threshold = int(c.FailureThreshold)
		}
		if d := c.RecoveryTimeout.AsDuration(); d > 0 {
			recovery = d
		}
	}
	return &CircuitBreakerUsecase{
		failureThreshold: threshold,
		recoveryTimeout:  recovery,
		backoff:          backoff,
		audit:            audit,
		now:              time.Now,
		logger:           log.NewHelper(logger),
	}
}

// Admissible reports whether the key may take traffic right now, and whether
// the caller holds the half-open probe slot. When an Open circuit's recovery
// timeout has elapsed the record transitions to HalfOpen here and the caller
// becomes the probe. A caller granted the probe slot must follow up with
// OnSuccess or OnFailure to release it.
func (uc *CircuitBreakerUsecase) Admissible(ctx context.Context, rec *data.KeyRecord) (ok bool, probe bool) {
	now := uc.now()

	rec.Lock()
	defer rec.Unlock()

	if rec.Disabled {
		return false, false
	}

	switch rec.State {
	case model.CircuitClosed:
		return true, false

	case model.CircuitOpen:
		if rec.OpenedAt == nil || now.Sub(*rec.OpenedAt) < uc.recoveryTimeout {
			return false, false
		}
		// Recovery timeout elapsed: start probing. The probe flag, not the
		// state enum, is what keeps concurrent callers out.
		rec.State = model.CircuitHalfOpen
		rec.ProbeInFlight = true
		uc.logger.Infow("msg", "circuit half-open, probing",
			"key_id", rec.ID,
			"open_for", now.Sub(*rec.OpenedAt))
		uc.audit.Record(ctx, rec.ID, data.AuditEventCircuitHalfOpen.String(),
			model.CircuitOpen.String(), model.CircuitHalfOpen.String(), nil)
		return true, true

	case model.CircuitHalfOpen:
		if rec.ProbeInFlight {
			return false, false
		}
		// Previous probe resolved without closing the circuit (should not
		// happen, but claim the slot rather than deadlock the key).
		rec.ProbeInFlight = true
		return true, true
	}

	return false, false
}

// OnSuccess records a successful attempt: failures and backoff reset, the
// circuit closes whatever state it was in, and the probe slot is released.
func (uc *CircuitBreakerUsecase) OnSuccess(ctx context.Context, rec *data.KeyRecord) {
	rec.Lock()
	prev := rec.State
	var downtime time.Duration
	if rec.OpenedAt != nil {
		downtime = uc.now().Sub(*rec.OpenedAt)
	}
	rec.State = model.CircuitClosed
	rec.ConsecutiveFailures = 0
	rec.BackoffMultiplier = 1.0
	rec.OpenedAt = nil
	rec.ProbeInFlight = false
	rec.HoldUntil = time.Time{}
	rec.Unlock()

	if prev != model.CircuitClosed {
		uc.logger.Infow("msg", "circuit closed",
			"key_id", rec.ID,
			"prev_state", prev,
			"downtime", downtime)
		uc.audit.Record(ctx, rec.ID, data.AuditEventCircuitClosed.String(),
			prev.String(), model.CircuitClosed.String(),
			map[string]interface{}{"downtime_ms": downtime.Milliseconds()})
	}
}

// OnFailure records a retryable failure of the given kind: the failure
// counter and backoff multiplier grow, an advisory hold is placed, and the
// circuit opens when the threshold is reached or a half-open probe failed.
// Returns the advisory delay before the key should be tried again.
func (uc *CircuitBreakerUsecase) OnFailure(ctx context.Context, rec *data.KeyRecord, kind ErrorKind) time.Duration {
	now := uc.now()

	rec.Lock()

	prev := rec.State
	rec.ConsecutiveFailures++
	rec.BackoffMultiplier = uc.backoff.Grow(rec.BackoffMultiplier, kind)
	delay := uc.backoff.NextDelay(rec.BackoffMultiplier)
	rec.HoldUntil = now.Add(delay)

	probeFailed := prev == model.CircuitHalfOpen
	rec.ProbeInFlight = false

	opened := false
	if probeFailed || rec.ConsecutiveFailures >= uc.failureThreshold {
		// A failed probe re-opens with a fresh openedAt; another concurrent
		// failure may already have opened the circuit, which is fine.
		rec.State = model.CircuitOpen
		rec.OpenedAt = &now
		opened = prev != model.CircuitOpen
	}
	failures := rec.ConsecutiveFailures
	rec.Unlock()

	uc.logger.Warnw("msg", "key attempt failed",
		"key_id", rec.ID,
		"kind", kind.String(),
		"consecutive_failures", failures,
		"hold", delay)

	if opened {
		uc.logger.Warnw("msg", "circuit opened",
			"key_id", rec.ID,
			"prev_state", prev,
			"consecutive_failures", failures)
		uc.audit.Record(ctx, rec.ID, data.AuditEventCircuitOpened.String(),
			prev.String(), model.CircuitOpen.String(),
			map[string]interface{}{"consecutive_failures": failures, "kind": kind.String()})
	}

	return delay
}

// Disable permanently removes the key from rotation after a non-retryable
// error. Only a configuration reload brings it back; ResetAll does not.
func (uc *CircuitBreakerUsecase) Disable(ctx context.Context, rec *data.KeyRecord, reason string) {
	rec.Lock()
	already := rec.Disabled
	prev := rec.State
	rec.Disabled = true
	rec.DisabledReason = reason
	rec.ProbeInFlight = false
	rec.Unlock()

	if already {
		return
	}

	uc.logger.Errorw("msg", "key disabled",
		"key_id", rec.ID,
		"reason", reason)
	uc.audit.Record(ctx, rec.ID, data.AuditEventKeyDisabled.String(),
		prev.String(), prev.String(),
		map[string]interface{}{"reason": reason})
}

// ReleaseProbe gives the half-open probe slot back without resolving it.
// Used when a claimed probe key turns out not to be admissible after all
// (its window denied the admission); the next selector pass may claim it.
func (uc *CircuitBreakerUsecase) ReleaseProbe(rec *data.KeyRecord) {
	rec.Lock()
	rec.ProbeInFlight = false
	rec.Unlock()
}

// RecoveryTimeout returns the configured Open->HalfOpen timeout.
func (uc *CircuitBreakerUsecase) RecoveryTimeout() time.Duration {
	return uc.recoveryTimeout
}

// FailureThreshold returns the configured Closed->Open threshold.
func (uc *CircuitBreakerUsecase) FailureThreshold() int {
	return uc.failureThreshold
}
