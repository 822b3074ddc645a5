package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning. A zero max disables that limit.
type Config struct {
	Prefix             string
	MaxRefreshAttempts int
	RefreshWindow      time.Duration
	MaxCreatesPerUser  int
	CreateWindow       time.Duration
}

// Limiter enforces fixed-window budgets on session refresh and creation
// using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "st"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts a refresh attempt against handle and fails with
// [ErrRateLimited] once the window budget is spent.
func (l *Limiter) CheckRefresh(ctx context.Context, handle string) error {
	if l == nil || l.config.MaxRefreshAttempts <= 0 {
		return nil
	}
	return l.consume(ctx, l.refreshKey(handle), l.config.MaxRefreshAttempts, l.config.RefreshWindow)
}

// CheckCreate counts a session creation for the user.
func (l *Limiter) CheckCreate(ctx context.Context, tenantID, userID string) error {
	if l == nil || l.config.MaxCreatesPerUser <= 0 {
		return nil
	}
	return l.consume(ctx, l.createKey(tenantID, userID), l.config.MaxCreatesPerUser, l.config.CreateWindow)
}

// ResetRefresh clears the refresh counter, used when a session is revoked.
func (l *Limiter) ResetRefresh(ctx context.Context, handle string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.refreshKey(handle)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) consume(ctx context.Context, key string, max int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) refreshKey(handle string) string {
	return l.config.Prefix + ":rr:" + handle
}

func (l *Limiter) createKey(tenantID, userID string) string {
	return l.config.Prefix + ":rc:" + tenantID + ":" + userID
}
