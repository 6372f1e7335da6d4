package biz

import (
	"context"
	"sort"
	"time"

	"RelayGate/internal/data"
	"RelayGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// KeySelector picks the best admissible key for one attempt. The policy is
// deterministic given pool state: non-disabled keys outside their backoff
// hold whose circuit and window both admit, ranked by lowest backoff
// multiplier with window usage as the tie-break.
//
// Selection is a sequence of point reads per key, never a pool-wide lock; a
// small staleness window is accepted and the winner is re-validated when it
// is claimed.
type KeySelector struct {
	pool    *data.Pool
	limiter *RateLimiterUseCase
	breaker *CircuitBreakerUsecase
	now     func() time.Time
	logger  *log.Helper
}

// Selection is one claimed key: the record plus whether the caller holds the
// half-open probe slot for it.
type Selection struct {
	Record *data.KeyRecord
	Probe  bool
}

// NewKeySelector creates a key selector over the pool.
func NewKeySelector(pool *data.Pool, limiter *RateLimiterUseCase, breaker *CircuitBreakerUsecase, logger log.Logger) *KeySelector {
	return &KeySelector{
		pool:    pool,
		limiter: limiter,
		breaker: breaker,
		now:     time.Now,
		logger:  log.NewHelper(logger),
	}
}

type candidate struct {
	rec        *data.KeyRecord
	multiplier float64
	used       int
	order      int
}

// SelectKey returns the best admissible key not in excluding, claiming its
// window slot (and probe slot, for a recovering key) before returning.
// Returns false when no key qualifies.
func (s *KeySelector) SelectKey(ctx context.Context, excluding map[string]struct{}) (*Selection, bool) {
	now := s.now()

	var candidates []candidate
	for i, rec := range s.pool.Records() {
		if _, tried := excluding[rec.ID]; tried {
			continue
		}

		rec.Lock()
		skip := rec.Disabled ||
			rec.HoldUntil.After(now) ||
			(rec.State == model.CircuitOpen && (rec.OpenedAt == nil || now.Sub(*rec.OpenedAt) < s.breaker.RecoveryTimeout())) ||
			(rec.State == model.CircuitHalfOpen && rec.ProbeInFlight)
		multiplier := rec.BackoffMultiplier
		rec.Unlock()

		if skip {
			continue
		}

		// Peek only: quota is consumed when the winner is claimed.
		if allowed, _ := s.limiter.Allow(ctx, rec.ID); !allowed {
			continue
		}

		candidates = append(candidates, candidate{
			rec:        rec,
			multiplier: multiplier,
			used:       s.limiter.Used(ctx, rec.ID),
			order:      i,
		})
	}

	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].multiplier != candidates[b].multiplier {
			return candidates[a].multiplier < candidates[b].multiplier
		}
		if candidates[a].used != candidates[b].used {
			return candidates[a].used < candidates[b].used
		}
		return candidates[a].order < candidates[b].order
	})

	// Claim the winner, re-validating under the record lock: another caller
	// may have opened the circuit or taken the probe slot since the scan.
	for _, c := range candidates {
		ok, probe := s.breaker.Admissible(ctx, c.rec)
		if !ok {
			continue
		}

		if admitted, _ := s.limiter.Admit(ctx, c.rec.ID); !admitted {
			if probe {
				s.breaker.ReleaseProbe(c.rec)
			}
			continue
		}

		s.logger.Debugw("msg", "key selected",
			"key_id", c.rec.ID,
			"backoff_multiplier", c.multiplier,
			"window_used", c.used,
			"probe", probe)

		return &Selection{Record: c.rec, Probe: probe}, true
	}

	return nil, false
}
