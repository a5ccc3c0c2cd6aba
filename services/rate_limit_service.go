package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiterInterface defines the contract for rate limiting operations.
type RateLimiterInterface interface {
	CheckLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, time.Duration, error)
}

// RateLimitService provides fixed-window rate limiting using Redis.
// It implements the RateLimiterInterface.
type RateLimitService struct {
	redis     *redis.Client
	keyPrefix string
}

func NewRateLimitService(redis *redis.Client) *RateLimitService {
	return &RateLimitService{
		redis:     redis,
		keyPrefix: "rate_limit:",
	}
}

func (s *RateLimitService) GetRedisClient() *redis.Client {
	return s.redis
}

// CheckLimit counts one attempt against key. It returns false and the time
// left in the window once more than limit attempts were made.
func (s *RateLimitService) CheckLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, time.Duration, error) {
	rKey := s.keyPrefix + key

	pipe := s.redis.TxPipeline()
	incr := pipe.Incr(ctx, rKey)
	pipe.ExpireNX(ctx, rKey, duration)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	count := incr.Val()
	if count > int64(limit) {
		ttl, err := s.redis.TTL(ctx, rKey).Result()
		if err != nil {
			return false, 0, err
		}
		if ttl < 0 {
			ttl = duration
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

type localWindow struct {
	count   int
	resetAt time.Time
}

// LocalRateLimiter is the in-process limiter used when Redis is disabled.
// Limits are per instance.
type LocalRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*localWindow
	now     func() time.Time
}

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		windows: make(map[string]*localWindow),
		now:     time.Now,
	}
}

func (l *LocalRateLimiter) CheckLimit(_ context.Context, key string, limit int, duration time.Duration) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &localWindow{resetAt: now.Add(duration)}
		l.windows[key] = w
	}
	w.count++

	if w.count > limit {
		return false, w.resetAt.Sub(now), nil
	}

	// Drop expired windows so the map stays bounded by active keys.
	for k, other := range l.windows {
		if !now.Before(other.resetAt) {
			delete(l.windows, k)
		}
	}

	return true, 0, nil
}
