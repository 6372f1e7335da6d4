package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindowRepo implements biz.WindowRepo on a Redis sorted set, for
// deployments running more than one gateway instance against the same key
// pool. Each admission is a set member scored by its Unix-nano timestamp;
// pruning is ZREMRANGEBYSCORE, counting is ZCARD.
type RedisWindowRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRedisWindowRepo creates a Redis-backed sliding window repository.
func NewRedisWindowRepo(rdb *redis.Client, logger log.Logger) *RedisWindowRepo {
	return &RedisWindowRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Admit checks the window for keyID and records the admission when allowed.
func (r *RedisWindowRepo) Admit(ctx context.Context, keyID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	if r.rdb == nil {
		return false, 0, fmt.Errorf("redis client is nil")
	}

	key := getWindowKey(keyID)
	cutoff := now.Add(-window).UnixNano()

	// Prune expired admissions first
	if err := r.rdb.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to prune window: %w", err)
	}

	count, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to count window: %w", err)
	}

	if count >= int64(limit) {
		wait, err := r.oldestWait(ctx, key, window, now)
		if err != nil {
			return false, 0, err
		}
		return false, wait, nil
	}

	// Record admission (member must be unique; two admissions can share a
	// timestamp under concurrent load)
	if err := r.rdb.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	}).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to record admission: %w", err)
	}

	// Keep the set from outliving an idle key
	if err := r.rdb.Expire(ctx, key, window+time.Minute).Err(); err != nil {
		r.logger.Warnf("Failed to set window expiration for key %s: %v", keyID, err)
	}

	return true, 0, nil
}

// Allow reports whether an admission would currently succeed, without
// recording anything.
func (r *RedisWindowRepo) Allow(ctx context.Context, keyID string, limit int, window time.Duration, now time.Time) (bool, time.Duration, error) {
	if r.rdb == nil {
		return false, 0, fmt.Errorf("redis client is nil")
	}

	key := getWindowKey(keyID)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	count, err := r.rdb.ZCount(ctx, key, cutoff, "+inf").Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to count window: %w", err)
	}

	if count < int64(limit) {
		return true, 0, nil
	}

	wait, err := r.oldestWait(ctx, key, window, now)
	if err != nil {
		return false, 0, err
	}
	return false, wait, nil
}

// Used returns the number of admissions inside the current window.
func (r *RedisWindowRepo) Used(ctx context.Context, keyID string, window time.Duration, now time.Time) (int, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	key := getWindowKey(keyID)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	count, err := r.rdb.ZCount(ctx, key, cutoff, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count window: %w", err)
	}

	// Prevent overflow when converting int64 to int on 32-bit platforms
	if count > 2147483647 {
		count = 2147483647
	}

	return int(count), nil
}

// Clear drops all recorded admissions for keyID.
func (r *RedisWindowRepo) Clear(ctx context.Context, keyID string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.rdb.Del(ctx, getWindowKey(keyID)).Err(); err != nil {
		return fmt.Errorf("failed to clear window: %w", err)
	}
	return nil
}

// PruneIdle removes expired admissions across all window keys. Redis TTLs
// already bound idle growth; this keeps long-lived busy keys tight.
func (r *RedisWindowRepo) PruneIdle(ctx context.Context, window time.Duration, now time.Time) (int, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	removed := 0

	iter := r.rdb.Scan(ctx, 0, getWindowKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.rdb.ZRemRangeByScore(ctx, iter.Val(), "0", cutoff).Result()
		if err != nil {
			r.logger.Warnf("Failed to prune window %s: %v", iter.Val(), err)
			continue
		}
		removed += int(n)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan window keys: %w", err)
	}

	return removed, nil
}

// oldestWait computes the wait until the oldest admission exits the window.
func (r *RedisWindowRepo) oldestWait(ctx context.Context, key string, window time.Duration, now time.Time) (time.Duration, error) {
	oldest, err := r.rdb.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read oldest admission: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}
	return retryAfter(time.Unix(0, int64(oldest[0].Score)), window, now), nil
}

// getWindowKey generates a Redis key for the admission window.
// Format: window:{key_id}
func getWindowKey(keyID string) string {
	return fmt.Sprintf("window:%s", keyID)
}
