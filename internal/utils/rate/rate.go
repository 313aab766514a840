package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Rule bounds one operation to Limit occurrences per rolling Window.
type Rule struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

// Limiter is a redis-backed counter-with-TTL rate limiter. Redis failures
// fail open: a broken limiter must not lock users out of login.
type Limiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewLimiter creates a new rate limiter.
func NewLimiter(client *redis.Client, logger *zap.Logger) *Limiter {
	return &Limiter{client: client, logger: logger}
}

// Allow reports whether one more occurrence of the keyed operation fits
// inside the rule's window.
func (l *Limiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	if !rule.Enabled {
		return true, nil
	}
	redisKey := fmt.Sprintf("mfa:rate:%s", key)

	count, err := l.client.Get(ctx, redisKey).Int()
	if err != nil && err != redis.Nil {
		l.logger.Error("failed to read rate limit counter", zap.Error(err), zap.String("key", key))
		return true, err
	}

	if err == redis.Nil {
		if err := l.client.Set(ctx, redisKey, 1, rule.Window).Err(); err != nil {
			l.logger.Error("failed to initialize rate limit counter", zap.Error(err), zap.String("key", key))
			return true, err
		}
		return true, nil
	}

	if count >= rule.Limit {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key), zap.Int("count", count), zap.Int("limit", rule.Limit))
		return false, nil
	}

	if _, err := l.client.Incr(ctx, redisKey).Result(); err != nil {
		l.logger.Error("failed to increment rate limit counter", zap.Error(err), zap.String("key", key))
		return true, err
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil {
		l.logger.Error("failed to read rate limit TTL", zap.Error(err), zap.String("key", key))
		return true, nil
	}
	if ttl < 0 {
		if err := l.client.Expire(ctx, redisKey, rule.Window).Err(); err != nil {
			l.logger.Error("failed to set rate limit expiry", zap.Error(err), zap.String("key", key))
		}
	}
	return true, nil
}

// RetryAfter returns how long the caller must wait before the keyed
// operation is allowed again.
func (l *Limiter) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.client.TTL(ctx, fmt.Sprintf("mfa:rate:%s", key)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Reset clears the counter for a key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("mfa:rate:%s", key)).Err()
}
