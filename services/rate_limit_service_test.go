package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitService_CheckLimit(t *testing.T) {
	ctx := context.Background()
	window := 10 * time.Minute

	t.Run("under limit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		svc := NewRateLimitService(db)

		mock.ExpectTxPipeline()
		mock.ExpectIncr("rate_limit:code:kenji@dojo.ph").SetVal(1)
		mock.ExpectExpireNX("rate_limit:code:kenji@dojo.ph", window).SetVal(true)
		mock.ExpectTxPipelineExec()

		allowed, retry, err := svc.CheckLimit(ctx, "code:kenji@dojo.ph", 5, window)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("over limit returns ttl", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		svc := NewRateLimitService(db)

		mock.ExpectTxPipeline()
		mock.ExpectIncr("rate_limit:code:kenji@dojo.ph").SetVal(6)
		mock.ExpectExpireNX("rate_limit:code:kenji@dojo.ph", window).SetVal(false)
		mock.ExpectTxPipelineExec()
		mock.ExpectTTL("rate_limit:code:kenji@dojo.ph").SetVal(90 * time.Second)

		allowed, retry, err := svc.CheckLimit(ctx, "code:kenji@dojo.ph", 5, window)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 90*time.Second, retry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		svc := NewRateLimitService(db)

		mock.ExpectTxPipeline()
		mock.ExpectIncr("rate_limit:k").SetErr(errors.New("connection refused"))

		allowed, _, err := svc.CheckLimit(ctx, "k", 5, window)
		assert.Error(t, err)
		assert.False(t, allowed)
	})
}

func TestLocalRateLimiter(t *testing.T) {
	ctx := context.Background()
	limiter := NewLocalRateLimiter()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.CheckLimit(ctx, "code:a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i+1)
	}

	allowed, retry, err := limiter.CheckLimit(ctx, "code:a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, retry)

	// Other keys are independent.
	allowed, _, _ = limiter.CheckLimit(ctx, "code:b", 3, time.Minute)
	assert.True(t, allowed)

	now = now.Add(time.Minute)
	allowed, _, _ = limiter.CheckLimit(ctx, "code:a", 3, time.Minute)
	assert.True(t, allowed, "window resets after expiry")
}
