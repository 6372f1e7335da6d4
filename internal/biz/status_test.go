package biz

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"RelayGate/internal/data"
	"RelayGate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusFixture struct {
	pool    *data.Pool
	limiter *RateLimiterUseCase
	breaker *CircuitBreakerUsecase
	audit   *stubAudit
	status  *StatusUsecase
}

func newStatusFixture(t *testing.T, secrets ...string) *statusFixture {
	t.Helper()

	c := testGatewayConf(secrets...)
	pool, err := data.NewPool(c, testLogger())
	require.NoError(t, err)

	audit := &stubAudit{}
	limiter := NewRateLimiterUseCase(c, data.NewMemoryWindowRepo(testLogger()), audit, testLogger())
	backoff := NewBackoffPolicy(c)
	fixedJitter(backoff, 1.0)
	breaker := NewCircuitBreakerUsecase(c, backoff, audit, testLogger())

	return &statusFixture{
		pool:    pool,
		limiter: limiter,
		breaker: breaker,
		audit:   audit,
		status:  NewStatusUsecase(pool, limiter, audit, testLogger()),
	}
}

// Test Status - snapshot reflects per-key health
func TestStatus_Snapshot(t *testing.T) {
	f := newStatusFixture(t, "secret-a", "secret-b")
	ctx := context.Background()

	f.limiter.Admit(ctx, f.pool.Records()[0].ID)
	f.breaker.OnFailure(ctx, f.pool.Records()[1], KindTransient)

	statuses := f.status.Status(ctx)
	require.Len(t, statuses, 2)

	assert.Equal(t, f.pool.Records()[0].ID, statuses[0].ID)
	assert.Equal(t, "closed", statuses[0].State)
	assert.Equal(t, 1, statuses[0].WindowUsed)
	assert.Equal(t, 30, statuses[0].WindowLimit)
	assert.Equal(t, 0, statuses[0].ConsecutiveFailures)

	assert.Equal(t, 1, statuses[1].ConsecutiveFailures)
	assert.Equal(t, 2.0, statuses[1].BackoffMultiplier)
}

// Test Status - an open circuit exposes its opened_at timestamp
func TestStatus_OpenCircuitFields(t *testing.T) {
	f := newStatusFixture(t, "secret-a")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.breaker.OnFailure(ctx, f.pool.Records()[0], KindTransient)
	}

	statuses := f.status.Status(ctx)
	require.Len(t, statuses, 1)
	assert.Equal(t, "open", statuses[0].State)
	require.NotNil(t, statuses[0].OpenedAt)
}

// Test Status - the serialized snapshot never contains a secret
func TestStatus_NeverExposesSecret(t *testing.T) {
	f := newStatusFixture(t, "sk-live-supersecret-value")
	ctx := context.Background()

	payload, err := json.Marshal(f.status.Status(ctx))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(payload), "supersecret"))
	// The ID carries only a short fingerprint, never the raw credential.
	assert.Contains(t, string(payload), "key-01-")
}

// Test ResetAll - circuits close, counters clear, windows reset
func TestResetAll(t *testing.T) {
	f := newStatusFixture(t, "secret-a", "secret-b")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.breaker.OnFailure(ctx, f.pool.Records()[0], KindTransient)
	}
	f.limiter.Admit(ctx, f.pool.Records()[1].ID)

	reset := f.status.ResetAll(ctx)
	assert.Equal(t, 2, reset)

	for _, rec := range f.pool.Records() {
		assert.Equal(t, model.CircuitClosed, rec.State)
		assert.Equal(t, 0, rec.ConsecutiveFailures)
		assert.Equal(t, 1.0, rec.BackoffMultiplier)
		assert.Nil(t, rec.OpenedAt)
		assert.True(t, rec.HoldUntil.IsZero())
		assert.Equal(t, 0, f.limiter.Used(ctx, rec.ID))
	}

	assert.Len(t, f.audit.eventsOfType(data.AuditEventPoolReset.String()), 1)
}

// Test ResetAll - permanently disabled keys stay disabled
func TestResetAll_SkipsDisabled(t *testing.T) {
	f := newStatusFixture(t, "secret-a", "secret-b")
	ctx := context.Background()

	f.breaker.Disable(ctx, f.pool.Records()[0], "revoked")

	reset := f.status.ResetAll(ctx)
	assert.Equal(t, 1, reset)
	assert.True(t, f.pool.Records()[0].Disabled)
	assert.Equal(t, "revoked", f.pool.Records()[0].DisabledReason)
}

// Test Status - snapshot is a copy, not a live view
func TestStatus_SnapshotIsCopy(t *testing.T) {
	f := newStatusFixture(t, "secret-a")
	ctx := context.Background()

	before := f.status.Status(ctx)
	f.breaker.OnFailure(ctx, f.pool.Records()[0], KindTransient)

	assert.Equal(t, 0, before[0].ConsecutiveFailures)
	assert.Equal(t, 1, f.status.Status(ctx)[0].ConsecutiveFailures)
}
