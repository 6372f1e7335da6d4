package biz

import (
	"math/rand"
	"sync"
	"time"

	"RelayGate/internal/conf"
)

const (
	jitterLow  = 0.8
	jitterHigh = 1.2

	// growthFactor doubles the multiplier per consecutive failure.
	growthFactor = 2.0
	// aggressiveGrowthFactor is applied for quota-exhaustion failures,
	// which signal a harder limit than a generic transient error.
	aggressiveGrowthFactor = 4.0
)

// BackoffPolicy computes exponential-with-jitter delays from a key's
// backoff multiplier. Delay and multiplier growth are computed as data, not
// executed as sleeps, so callers decide whether to wait and tests run
// without real time passing.
type BackoffPolicy struct {
	base time.Duration
	max  time.Duration

	mu     sync.Mutex
	jitter func() float64 // uniform draw from [jitterLow, jitterHigh]
}

// NewBackoffPolicy creates a backoff policy from configuration
// (defaults: base 2s, max 60s).
func NewBackoffPolicy(c *conf.Gateway) *BackoffPolicy {
	base := 2 * time.Second
	max := 60 * time.Second
	if c != nil {
		if d := c.BackoffBase.AsDuration(); d > 0 {
			base = d
		}
		if d := c.BackoffMax.AsDuration(); d > 0 {
			max = d
		}
	}
	return &BackoffPolicy{
		base: base,
		max:  max,
		jitter: func() float64 {
			return jitterLow + rand.Float64()*(jitterHigh-jitterLow)
		},
	}
}

// NextDelay returns base * multiplier * jitter, capped at the configured
// ceiling. The result is advisory: it feeds the caller-facing retryAfter and
// the selector's hold on a rate-limited but unbroken key.
func (p *BackoffPolicy) NextDelay(multiplier float64) time.Duration {
	if multiplier < 1.0 {
		multiplier = 1.0
	}

	p.mu.Lock()
	j := p.jitter()
	p.mu.Unlock()

	d := time.Duration(float64(p.base) * multiplier * j)
	if d > p.max {
		d = p.max
	}
	return d
}

// Grow returns the multiplier after one more consecutive failure: doubled,
// or quadrupled for quota exhaustion, capped so base*multiplier never
// exceeds the ceiling. Never decreases.
func (p *BackoffPolicy) Grow(multiplier float64, kind ErrorKind) float64 {
	if multiplier < 1.0 {
		multiplier = 1.0
	}

	factor := growthFactor
	if kind == KindQuotaExceeded {
		factor = aggressiveGrowthFactor
	}

	next := multiplier * factor
	if cap := float64(p.max) / float64(p.base); next > cap {
		next = cap
	}
	if next < multiplier {
		next = multiplier
	}
	return next
}
