package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/gateway/domain"
)

// MemoryStore is a process-local OrderStore used when redis is not
// configured. Orders do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	orders map[string]memoryEntry
}

type memoryEntry struct {
	order     domain.PendingOrder
	expiresAt time.Time
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:  c,
		orders: map[string]memoryEntry{},
	}
}

func (s *MemoryStore) Save(ctx context.Context, order domain.PendingOrder, ttl time.Duration) error {
	id := strings.TrimSpace(order.OrderID)
	if id == "" {
		return errors.New("order id is empty")
	}
	if ttl <= 0 {
		return errors.New("order ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.evictLocked(now)
	order.OrderID = id
	s.orders[id] = memoryEntry{order: order, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, orderID string) (*domain.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(orderID)
	entry, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	if !s.clock.Now().Before(entry.expiresAt) {
		delete(s.orders, id)
		return nil, nil
	}
	order := entry.order
	return &order, nil
}

func (s *MemoryStore) Delete(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, strings.TrimSpace(orderID))
	return nil
}

func (s *MemoryStore) evictLocked(now time.Time) {
	for id, entry := range s.orders {
		if !now.Before(entry.expiresAt) {
			delete(s.orders, id)
		}
	}
}
