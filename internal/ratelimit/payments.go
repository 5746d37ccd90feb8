package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyPaymentOrder    = "carebill:ratelimit:order:%s"
	keyPaymentCallback = "carebill:ratelimit:callback:%s"
	keyCallbackLock    = "carebill:lock:callback:%s"
)

// PaymentLimiter throttles order creation per caller and gateway callbacks
// per client address. A nil limiter allows everything.
type PaymentLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	orderRate     float64
	orderBurst    int
	callbackRate  float64
	callbackBurst int
	lockTTL       time.Duration
}

func NewPaymentLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*PaymentLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.OrderRate <= 0 || limitCfg.OrderBurst <= 0 {
		return nil, errors.New("payment order rate limit must be positive")
	}
	if limitCfg.CallbackRate <= 0 || limitCfg.CallbackBurst <= 0 {
		return nil, errors.New("payment callback rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}
	log.Info("payment rate limits enabled",
		zap.Float64("order_rate", limitCfg.OrderRate),
		zap.Int("order_burst", limitCfg.OrderBurst),
		zap.Float64("callback_rate", limitCfg.CallbackRate),
		zap.Int("callback_burst", limitCfg.CallbackBurst),
	)

	return &PaymentLimiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		locker:        NewLocker(client),
		orderRate:     limitCfg.OrderRate,
		orderBurst:    limitCfg.OrderBurst,
		callbackRate:  limitCfg.CallbackRate,
		callbackBurst: limitCfg.CallbackBurst,
		lockTTL:       limitCfg.CallbackLockTTL,
	}, nil
}

func (l *PaymentLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowOrder spends a token from the caller's order bucket.
func (l *PaymentLimiter) AllowOrder(ctx context.Context, subject string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPaymentOrder, strings.TrimSpace(subject)), l.orderRate, l.orderBurst)
}

// AllowCallback spends a token from the client address's callback bucket.
func (l *PaymentLimiter) AllowCallback(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyPaymentCallback, strings.TrimSpace(clientIP)), l.callbackRate, l.callbackBurst)
}

// TryLockCallback holds a short lock on a gateway payment id while its
// callback is being recorded.
func (l *PaymentLimiter) TryLockCallback(ctx context.Context, gatewayPaymentID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyCallbackLock, strings.TrimSpace(gatewayPaymentID)), l.lockTTL)
}

func (l *PaymentLimiter) ReleaseCallback(ctx context.Context, gatewayPaymentID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyCallbackLock, strings.TrimSpace(gatewayPaymentID)), token)
}
