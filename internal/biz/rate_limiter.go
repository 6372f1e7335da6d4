package biz

import (
	"context"
	"time"

	"RelayGate/internal/conf"
	"RelayGate/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// WindowRepo is the storage contract for the sliding admission window.
// Implementations: data.MemoryWindowRepo (default) and data.RedisWindowRepo
// (multi-instance deployments). Per-key state only; implementations must
// never serialize operations on different keys behind one lock.
type WindowRepo interface {
	// Admit checks the window and records the admission when allowed.
	// On denial nothing is recorded and the duration is the wait until the
	// oldest admission leaves the window.
	Admit(ctx context.Context, keyID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error)
	// Allow is Admit without the recording side effect.
	Allow(ctx context.Context, keyID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error)
	// Used returns the number of admissions inside the current window.
	Used(ctx context.Context, keyID string, window time.Duration, now time.Time) (int, error)
	// Clear drops all recorded admissions for the key.
	Clear(ctx context.Context, keyID string) error
	// PruneIdle drops expired admissions across all keys.
	PruneIdle(ctx context.Context, window time.Duration, now time.Time) (int, error)
}

// NewWindowRepo selects the window storage backend: Redis when configured
// and reachable, in-process memory otherwise.
func NewWindowRepo(c *conf.Data, rdb *redis.Client, mem *data.MemoryWindowRepo, rds *data.RedisWindowRepo, logger log.Logger) WindowRepo {
	helper := log.NewHelper(logger)
	if c != nil && c.Redis != nil && c.Redis.Addr != "" && rdb != nil {
		helper.Info("using Redis-backed rate-limit window")
		return rds
	}
	helper.Info("using in-memory rate-limit window")
	return mem
}

// RateLimiterUseCase implements per-key sliding-window admission control
// (default 30 requests per 60 seconds).
type RateLimiterUseCase struct {
	repo   WindowRepo
	audit  AuditLogger
	limit  int
	window time.Duration
	now    func() time.Time
	logger *log.Helper
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(c *conf.Gateway, repo WindowRepo, audit AuditLogger, logger log.Logger) *RateLimiterUseCase {
	limit := 30
	window := 60 * time.Second
	if c != nil {
		if c.MaxRequestsPerWindow > 0 {
			limit = int(c.MaxRequestsPerWindow)
		}
		if d := c.Window.AsDuration(); d > 0 {
			window = d
		}
	}
	return &RateLimiterUseCase{
		repo:   repo,
		audit:  audit,
		limit:  limit,
		window: window,
		now:    time.Now,
		logger: log.NewHelper(logger),
	}
}

// Admit checks the window for keyID and records the admission when allowed.
// On denial the returned duration is the wait until a slot frees up; nothing
// is recorded. Storage failures degrade to allowing the request: losing a
// little fairness beats dropping traffic when the window store is down.
func (uc *RateLimiterUseCase) Admit(ctx context.Context, keyID string) (bool, time.Duration) {
	now := uc.now()

	allowed, wait, err := uc.repo.Admit(ctx, keyID, uc.limit, uc.window, now)
	if err != nil {
		uc.logger.Warnf("window admit failed for key %s: %v (request allowed)", keyID, err)
		return true, 0
	}

	if !allowed {
		used, _ := uc.repo.Used(ctx, keyID, uc.window, now)
		uc.logger.Warnw("msg", "rate limit denied",
			"key_id", keyID,
			"used", used,
			"limit", uc.limit,
			"retry_after", wait)
		uc.audit.Record(ctx, keyID, data.AuditEventRateLimitDenied.String(), "", "",
			map[string]interface{}{"used": used, "limit": uc.limit, "retry_after_ms": wait.Milliseconds()})
	}

	return allowed, wait
}

// Allow reports whether an admission would currently succeed without
// recording one. The selector uses it to filter candidates so skipped keys
// keep their quota.
func (uc *RateLimiterUseCase) Allow(ctx context.Context, keyID string) (bool, time.Duration) {
	allowed, wait, err := uc.repo.Allow(ctx, keyID, uc.limit, uc.window, uc.now())
	if err != nil {
		uc.logger.Warnf("window check failed for key %s: %v (treated as allowed)", keyID, err)
		return true, 0
	}
	return allowed, wait
}

// Used returns the number of admissions for keyID in the current window.
// Returns 0 on storage failure.
func (uc *RateLimiterUseCase) Used(ctx context.Context, keyID string) int {
	used, err := uc.repo.Used(ctx, keyID, uc.window, uc.now())
	if err != nil {
		uc.logger.Warnf("window usage read failed for key %s: %v", keyID, err)
		return 0
	}
	return used
}

// Reset clears the recorded window for keyID. Used by the administrative
// reset path.
func (uc *RateLimiterUseCase) Reset(ctx context.Context, keyID string) {
	if err := uc.repo.Clear(ctx, keyID); err != nil {
		uc.logger.Warnf("window clear failed for key %s: %v", keyID, err)
	}
}

// Window returns the configured window length.
func (uc *RateLimiterUseCase) Window() time.Duration {
	return uc.window
}

// Limit returns the configured per-window admission limit.
func (uc *RateLimiterUseCase) Limit() int {
	return uc.limit
}

// PruneIdle drops expired window state across all keys. Called by the
// maintenance cron.
func (uc *RateLimiterUseCase) PruneIdle(ctx context.Context) (int, error) {
	return uc.repo.PruneIdle(ctx, uc.window, uc.now())
}
