package biz

import (
	"context"
	"testing"
	"time"

	"RelayGate/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selectorFixture wires a pool, limiter, breaker and selector sharing one
// movable clock.
type selectorFixture struct {
	pool     *data.Pool
	limiter  *RateLimiterUseCase
	breaker  *CircuitBreakerUsecase
	selector *KeySelector
	clock    time.Time
}

func newSelectorFixture(t *testing.T, limit int32, secrets ...string) *selectorFixture {
	t.Helper()

	c := testGatewayConf(secrets...)
	c.MaxRequestsPerWindow = limit

	pool, err := data.NewPool(c, testLogger())
	require.NoError(t, err)

	audit := &stubAudit{}
	limiter := NewRateLimiterUseCase(c, data.NewMemoryWindowRepo(testLogger()), audit, testLogger())
	backoff := NewBackoffPolicy(c)
	fixedJitter(backoff, 1.0)
	breaker := NewCircuitBreakerUsecase(c, backoff, audit, testLogger())
	selector := NewKeySelector(pool, limiter, breaker, testLogger())

	f := &selectorFixture{
		pool:     pool,
		limiter:  limiter,
		breaker:  breaker,
		selector: selector,
		clock:    time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	limiter.now = now
	breaker.now = now
	selector.now = now
	return f
}

// Test SelectKey - healthy pool selects in configuration order
func TestSelectKey_HealthyPoolFirstKey(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b", "secret-c")

	sel, ok := f.selector.SelectKey(context.Background(), nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[0], sel.Record)
	assert.False(t, sel.Probe)
}

// Test SelectKey - lowest backoff multiplier wins
func TestSelectKey_PrefersLowestMultiplier(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	// One failure on the first key raises its multiplier past the second's.
	first := f.pool.Records()[0]
	f.breaker.OnFailure(ctx, first, KindTransient)
	// Clear the advisory hold so only the multiplier differs.
	first.Lock()
	first.HoldUntil = time.Time{}
	first.Unlock()

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)
}

// Test SelectKey - window usage breaks multiplier ties
func TestSelectKey_TieBreakByWindowUsage(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	// Two admissions on the first key; multipliers stay equal at 1.0.
	f.limiter.Admit(ctx, f.pool.Records()[0].ID)
	f.limiter.Admit(ctx, f.pool.Records()[0].ID)

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)
}

// Test SelectKey - disabled keys are never selected
func TestSelectKey_SkipsDisabled(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	f.breaker.Disable(ctx, f.pool.Records()[0], "revoked")

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)
}

// Test SelectKey - open circuits are skipped until recovery elapses
func TestSelectKey_SkipsOpenCircuit(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	first := f.pool.Records()[0]
	for i := 0; i < 5; i++ {
		f.breaker.OnFailure(ctx, first, KindTransient)
	}

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)
}

// Test SelectKey - a recovered open circuit is selected as a probe
func TestSelectKey_ProbesRecoveredKey(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a")
	ctx := context.Background()

	rec := f.pool.Records()[0]
	for i := 0; i < 5; i++ {
		f.breaker.OnFailure(ctx, rec, KindTransient)
	}

	_, ok := f.selector.SelectKey(ctx, nil)
	assert.False(t, ok, "open circuit inside recovery window must not be selected")

	f.clock = f.clock.Add(61 * time.Second)
	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, rec, sel.Record)
	assert.True(t, sel.Probe)

	// The probe slot is taken; a concurrent selection finds nothing.
	_, ok = f.selector.SelectKey(ctx, nil)
	assert.False(t, ok)
}

// Test SelectKey - keys inside their backoff hold are skipped
func TestSelectKey_SkipsHeldKey(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	first := f.pool.Records()[0]
	f.breaker.OnFailure(ctx, first, KindTransient) // places a 4s hold

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)

	// Once the hold expires the first key competes again and wins on usage.
	f.clock = f.clock.Add(5 * time.Second)
	first.Lock()
	first.BackoffMultiplier = 1.0
	first.Unlock()
	sel, ok = f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, first, sel.Record)
}

// Test SelectKey - rate-limited keys are skipped without consuming quota
func TestSelectKey_SkipsExhaustedWindow(t *testing.T) {
	f := newSelectorFixture(t, 1, "secret-a", "secret-b")
	ctx := context.Background()

	first := f.pool.Records()[0]
	f.limiter.Admit(ctx, first.ID)

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)
	assert.Equal(t, 1, f.limiter.Used(ctx, first.ID), "skipping must not consume the exhausted key's quota")
}

// Test SelectKey - selection claims exactly one window slot for the winner
func TestSelectKey_ClaimConsumesSlot(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	sel, ok := f.selector.SelectKey(ctx, nil)
	require.True(t, ok)

	assert.Equal(t, 1, f.limiter.Used(ctx, sel.Record.ID))
	assert.Equal(t, 0, f.limiter.Used(ctx, f.pool.Records()[1].ID))
}

// Test SelectKey - excluded keys are not reconsidered
func TestSelectKey_RespectsExcluding(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	excluding := map[string]struct{}{f.pool.Records()[0].ID: {}}
	sel, ok := f.selector.SelectKey(ctx, excluding)
	require.True(t, ok)
	assert.Same(t, f.pool.Records()[1], sel.Record)

	excluding[f.pool.Records()[1].ID] = struct{}{}
	_, ok = f.selector.SelectKey(ctx, excluding)
	assert.False(t, ok)
}

// Test SelectKey - empty result when every key is unusable
func TestSelectKey_NoUsableKey(t *testing.T) {
	f := newSelectorFixture(t, 30, "secret-a", "secret-b")
	ctx := context.Background()

	f.breaker.Disable(ctx, f.pool.Records()[0], "revoked")
	for i := 0; i < 5; i++ {
		f.breaker.OnFailure(ctx, f.pool.Records()[1], KindTransient)
	}

	_, ok := f.selector.SelectKey(ctx, nil)
	assert.False(t, ok)
}
