package verification

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "verification:code:"

// RedisStore keeps codes in Redis with a native expiry.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(email string) string {
	return redisKeyPrefix + normalizeEmail(email)
}

func (s *RedisStore) Put(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, redisKey(email), code, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, email string) (string, error) {
	code, err := s.rdb.Get(ctx, redisKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeNotFound
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

func (s *RedisStore) Delete(ctx context.Context, email string) (bool, error) {
	n, err := s.rdb.Del(ctx, redisKey(email)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
