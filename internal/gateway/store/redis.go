package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/gateway/domain"
)

const keyPendingOrder = "carebill:gateway:order:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, order domain.PendingOrder, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return errors.New("order store not configured")
	}
	id := strings.TrimSpace(order.OrderID)
	if id == "" {
		return errors.New("order id is empty")
	}
	if ttl <= 0 {
		return errors.New("order ttl must be positive")
	}

	order.OrderID = id
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, orderKey(id), payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, orderID string) (*domain.PendingOrder, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("order store not configured")
	}
	payload, err := s.client.Get(ctx, orderKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order domain.PendingOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *RedisStore) Delete(ctx context.Context, orderID string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, orderKey(orderID)).Err()
}

func orderKey(orderID string) string {
	return keyPendingOrder + strings.TrimSpace(orderID)
}
