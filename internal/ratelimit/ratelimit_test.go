package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewPaymentLimiter(nil, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, limiter)

	ctx := context.Background()
	res, err := limiter.AllowOrder(ctx, "role:patient:1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowCallback(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	token, ok, err := limiter.TryLockCallback(ctx, "pay_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, limiter.ReleaseCallback(ctx, "pay_1", token))
}

func TestEnabledLimiterValidatesConfig(t *testing.T) {
	_, err := NewPaymentLimiter(nil, config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewPaymentLimiter(nil, config.Config{
		RedisAddr: "localhost:6379",
		RateLimit: config.RateLimitConfig{Enabled: true, OrderRate: 1, OrderBurst: 1},
	}, zap.NewNop())
	assert.Error(t, err)
}

func TestBucketResult(t *testing.T) {
	res := bucketResult(false, 0.5, 0.25, 5)
	assert.False(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
	assert.Equal(t, 2*time.Second, res.RetryAfter)

	res = bucketResult(true, 3.7, 1, 5)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(7), castToInt("7"))
	assert.InDelta(t, 2.5, castToFloat("2.5"), 1e-9)
	assert.InDelta(t, 3.0, castToFloat(int64(3)), 1e-9)
	assert.Zero(t, castToFloat(nil))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 40*time.Second, defaultBucketTTL(0.25, 5))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))
}

func TestNilLockerRejectsLock(t *testing.T) {
	var l *Locker
	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errLockNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "k", "token"))
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewTokenBucket(nil))
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	var nilBucket *TokenBucket
	res, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, errBucketNotConfigured)
	assert.False(t, res.Allowed)

	bucket := NewTokenBucket(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	_, err = bucket.Allow(context.Background(), "", 1, 1)
	assert.ErrorIs(t, err, errBucketKeyEmpty)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, errBucketParams)
	_, err = bucket.Allow(context.Background(), "k", 1, 0)
	assert.ErrorIs(t, err, errBucketParams)
}
