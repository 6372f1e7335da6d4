// Package data provides data access layer implementations.
// It holds the in-process key pool and the persistence-backed repositories.
package data

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"RelayGate/internal/conf"
	"RelayGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// KeyRecord holds the mutable health state of one provider credential.
// All fields except ID and Secret are guarded by the embedded mutex; ID and
// Secret are immutable after construction. The secret never appears in logs,
// only the ID does.
type KeyRecord struct {
	sync.Mutex

	// ID is an opaque identifier derived from the key's position and a
	// fingerprint of the secret. Safe for logging.
	ID string
	// Secret is the raw credential used for outbound calls.
	Secret string

	// State is the circuit breaker state.
	State model.CircuitState
	// ConsecutiveFailures counts failures since the last success.
	ConsecutiveFailures int
	// OpenedAt is the time of the last Closed->Open transition, nil while
	// the circuit is not open.
	OpenedAt *time.Time
	// BackoffMultiplier grows on failure and resets to 1.0 on success.
	// Always >= 1.0.
	BackoffMultiplier float64
	// Disabled is set permanently true on non-retryable errors. ResetAll
	// never clears it.
	Disabled bool
	// DisabledReason records why the key was disabled, for the status view.
	DisabledReason string
	// ProbeInFlight marks the single allowed half-open probe. Kept separate
	// from State so concurrent selectors cannot race a second probe through.
	ProbeInFlight bool
	// HoldUntil is an advisory backoff hold: the selector skips the key
	// until this time even while the circuit is Closed.
	HoldUntil time.Time
}

// Pool is the fixed set of key records, created once at startup from the
// configured credential list and never recreated during the process lifetime.
type Pool struct {
	records []*KeyRecord
	byID    map[string]*KeyRecord
}

// NewPool builds the key pool from configuration. An empty credential list
// is a configuration error: the gateway refuses to start rather than serve
// nothing but degraded answers.
func NewPool(c *conf.Gateway, logger log.Logger) (*Pool, error) {
	helper := log.NewHelper(logger)

	if c == nil || len(c.Keys) == 0 {
		return nil, fmt.Errorf("key pool is empty: at least one provider credential is required")
	}

	p := &Pool{
		records: make([]*KeyRecord, 0, len(c.Keys)),
		byID:    make(map[string]*KeyRecord, len(c.Keys)),
	}

	for i, secret := range c.Keys {
		rec := &KeyRecord{
			ID:                keyID(i, secret),
			Secret:            secret,
			State:             model.CircuitClosed,
			BackoffMultiplier: 1.0,
		}
		p.records = append(p.records, rec)
		p.byID[rec.ID] = rec
	}

	helper.Infow("msg", "key pool initialized", "pool_size", len(p.records))

	return p, nil
}

// Records returns the pool's records in configuration order. The slice is
// shared; callers must lock individual records before touching their state.
func (p *Pool) Records() []*KeyRecord {
	return p.records
}

// Get returns the record with the given ID, or nil.
func (p *Pool) Get(id string) *KeyRecord {
	return p.byID[id]
}

// Size returns the number of configured keys.
func (p *Pool) Size() int {
	return len(p.records)
}

// keyID derives a stable, log-safe identifier for a credential: its position
// in the configured list plus a short fingerprint of the secret.
func keyID(index int, secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("key-%02d-%s", index+1, hex.EncodeToString(sum[:3]))
}
