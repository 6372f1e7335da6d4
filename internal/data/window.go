package data

import (
	"context"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// MemoryWindowRepo implements biz.WindowRepo with in-process state.
// It is the default admission store when Redis is not configured.
//
// Each key gets its own timestamp list guarded by its own mutex, so
// admission checks for different keys never contend. Only the map itself is
// guarded by a short-lived read/write lock for entry lookup.
type MemoryWindowRepo struct {
	mu      sync.RWMutex
	entries map[string]*windowEntry
	logger  *log.Helper
}

type windowEntry struct {
	mu sync.Mutex
	// stamps holds admission times in ascending order, pruned to the
	// current window on every operation.
	stamps []time.Time
}

// NewMemoryWindowRepo creates an in-memory sliding window repository.
func NewMemoryWindowRepo(logger log.Logger) *MemoryWindowRepo {
	return &MemoryWindowRepo{
		entries: make(map[string]*windowEntry),
		logger:  log.NewHelper(logger),
	}
}

func (r *MemoryWindowRepo) entry(keyID string) *windowEntry {
	r.mu.RLock()
	e := r.entries[keyID]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.entries[keyID]; e == nil {
		e = &windowEntry{}
		r.entries[keyID] = e
	}
	return e
}

// Admit checks the sliding window for keyID and records the admission when
// allowed. On denial nothing is recorded and the returned duration is the
// wait until the oldest admission leaves the window.
func (r *MemoryWindowRepo) Admit(_ context.Context, keyID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	e := r.entry(keyID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune(now.Add(-window))
	if len(e.stamps) < limit {
		e.stamps = append(e.stamps, now)
		return true, 0, nil
	}
	return false, retryAfter(e.stamps[0], window, now), nil
}

// Allow reports whether an admission would currently succeed, without
// recording anything. Used by the key selector to filter candidates without
// consuming quota on keys it does not pick.
func (r *MemoryWindowRepo) Allow(_ context.Context, keyID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	e := r.entry(keyID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune(now.Add(-window))
	if len(e.stamps) < limit {
		return true, 0, nil
	}
	return false, retryAfter(e.stamps[0], window, now), nil
}

// Used returns the number of admissions for keyID inside the current window.
func (r *MemoryWindowRepo) Used(_ context.Context, keyID string, window time.Duration, now time.Time) (int, error) {
	e := r.entry(keyID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune(now.Add(-window))
	return len(e.stamps), nil
}

// Clear drops all recorded admissions for keyID.
func (r *MemoryWindowRepo) Clear(_ context.Context, keyID string) error {
	e := r.entry(keyID)
	e.mu.Lock()
	e.stamps = nil
	e.mu.Unlock()
	return nil
}

// PruneIdle drops window state older than the window for every key and
// returns the number of timestamps removed. Called periodically by the
// maintenance cron so idle keys do not pin stale slices.
func (r *MemoryWindowRepo) PruneIdle(_ context.Context, window time.Duration, now time.Time) (int, error) {
	r.mu.RLock()
	entries := make([]*windowEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	removed := 0
	cutoff := now.Add(-window)
	for _, e := range entries {
		e.mu.Lock()
		before := len(e.stamps)
		e.prune(cutoff)
		removed += before - len(e.stamps)
		e.mu.Unlock()
	}
	return removed, nil
}

// prune drops timestamps at or before cutoff. Caller holds e.mu.
func (e *windowEntry) prune(cutoff time.Time) {
	i := 0
	for i < len(e.stamps) && !e.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.stamps = append(e.stamps[:0], e.stamps[i:]...)
	}
}

// retryAfter computes the wait until oldest exits the window, never negative.
func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	wait := oldest.Add(window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}
