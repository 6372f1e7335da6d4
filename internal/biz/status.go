package biz

import (
	"context"
	"time"

	"RelayGate/internal/data"
	"RelayGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// KeyStatus is the read-only health view of one key for the operator
// endpoint. It carries the key ID, never the secret.
type KeyStatus struct {
	ID                  string     `json:"id"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	BackoffMultiplier   float64    `json:"backoff_multiplier"`
	WindowUsed          int        `json:"window_used"`
	WindowLimit         int        `json:"window_limit"`
	Disabled            bool       `json:"disabled"`
	DisabledReason      string     `json:"disabled_reason,omitempty"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// StatusUsecase provides the health snapshot and the administrative reset.
type StatusUsecase struct {
	pool    *data.Pool
	limiter *RateLimiterUseCase
	audit   AuditLogger
	logger  *log.Helper
}

// NewStatusUsecase creates a status use case.
func NewStatusUsecase(pool *data.Pool, limiter *RateLimiterUseCase, audit AuditLogger, logger log.Logger) *StatusUsecase {
	return &StatusUsecase{
		pool:    pool,
		limiter: limiter,
		audit:   audit,
		logger:  log.NewHelper(logger),
	}
}

// Status returns a point-in-time snapshot of every key. Each record is read
// under its own lock only; the snapshot is copied out before any formatting
// so the read path never blocks request handling.
func (uc *StatusUsecase) Status(ctx context.Context) []KeyStatus {
	records := uc.pool.Records()
	statuses := make([]KeyStatus, 0, len(records))

	for _, rec := range records {
		rec.Lock()
		st := KeyStatus{
			ID:                  rec.ID,
			State:               rec.State.String(),
			ConsecutiveFailures: rec.ConsecutiveFailures,
			BackoffMultiplier:   rec.BackoffMultiplier,
			Disabled:            rec.Disabled,
			DisabledReason:      rec.DisabledReason,
		}
		if rec.OpenedAt != nil {
			openedAt := *rec.OpenedAt
			st.OpenedAt = &openedAt
		}
		rec.Unlock()

		// Window usage is read outside the record lock; it has its own.
		st.WindowUsed = uc.limiter.Used(ctx, rec.ID)
		st.WindowLimit = uc.limiter.Limit()

		statuses = append(statuses, st)
	}

	return statuses
}

// ResetAll forces every circuit to Closed and clears failure counters,
// backoff state and window usage. Keys disabled by an auth error stay
// disabled: bringing those back requires a configuration reload, not an
// administrative reset. Returns the number of keys reset.
func (uc *StatusUsecase) ResetAll(ctx context.Context) int {
	reset := 0

	for _, rec := range uc.pool.Records() {
		rec.Lock()
		if rec.Disabled {
			rec.Unlock()
			continue
		}
		rec.State = model.CircuitClosed
		rec.ConsecutiveFailures = 0
		rec.BackoffMultiplier = 1.0
		rec.OpenedAt = nil
		rec.ProbeInFlight = false
		rec.HoldUntil = time.Time{}
		rec.Unlock()

		uc.limiter.Reset(ctx, rec.ID)
		reset++
	}

	uc.logger.Infow("msg", "administrative reset", "keys_reset", reset)
	uc.audit.Record(ctx, "", data.AuditEventPoolReset.String(), "", model.CircuitClosed.String(),
		map[string]interface{}{"keys_reset": reset})

	return reset
}
