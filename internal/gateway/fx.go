package gateway

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/gateway/domain"
	"github.com/smallbiznis/carebill/internal/gateway/razorpay"
	"github.com/smallbiznis/carebill/internal/gateway/service"
	"github.com/smallbiznis/carebill/internal/gateway/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway.service",
	fx.Provide(razorpay.New),
	fx.Provide(NewOrderStore),
	fx.Provide(service.NewService),
)

// NewOrderStore uses redis when REDIS_ADDR is set and falls back to a
// process-local store otherwise.
func NewOrderStore(lc fx.Lifecycle, cfg config.Config, c clock.Clock, log *zap.Logger) domain.OrderStore {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Warn("redis not configured, pending orders kept in memory")
		return store.NewMemoryStore(c)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return store.NewRedisStore(client)
}
