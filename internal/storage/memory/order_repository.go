package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/outbox"
)

// Save сохраняет агрегаты и их события одной операцией. При любой ошибке
// ничего не записывается, буферы событий остаются нетронутыми.
func (s *Store) Save(ctx context.Context, orders ...*domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claimedKeys := make(map[domain.IdempotencyScope]string)
	for _, order := range orders {
		if order == nil {
			return fmt.Errorf("save order: nil aggregate")
		}
		current, exists := s.orders[order.ID()]
		switch {
		case order.IsNew() && exists:
			return fmt.Errorf("insert order %s: %w", order.ID(), domain.ErrOrderVersionConflict)
		case !order.IsNew() && !exists:
			return fmt.Errorf("update order %s: %w", order.ID(), domain.ErrOrderNotFound)
		case !order.IsNew() && current.Version != order.Version():
			return fmt.Errorf("update order %s (version %d): %w", order.ID(), order.Version(), domain.ErrOrderVersionConflict)
		}

		scope, ok := domain.NewIdempotencyScope(order.UserID(), order.IdempotencyKey())
		if !ok {
			continue
		}
		if owner, taken := s.keys[scope]; taken && owner != order.ID() {
			return fmt.Errorf("save order %s: %w", order.ID(), domain.ErrDuplicateIdempotencyKey)
		}
		if owner, taken := claimedKeys[scope]; taken && owner != order.ID() {
			return fmt.Errorf("save order %s: %w", order.ID(), domain.ErrDuplicateIdempotencyKey)
		}
		claimedKeys[scope] = order.ID()
	}

	sources := make([]domain.EventSource, 0, len(orders))
	for _, order := range orders {
		sources = append(sources, order)
	}
	messages, err := outbox.Capture(sources...)
	if err != nil {
		return err
	}

	versions := make([]int64, len(orders))
	for i, order := range orders {
		snapshot := order.Snapshot()
		snapshot.Version = order.Version() + 1
		s.orders[order.ID()] = snapshot
		versions[i] = snapshot.Version
	}
	for scope, id := range claimedKeys {
		s.keys[scope] = id
	}
	for _, msg := range messages {
		s.nextSeq++
		s.outbox[msg.ID] = &outboxRecord{msg: msg, seq: s.nextSeq}
	}

	for i, order := range orders {
		order.MarkCommitted(versions[i])
	}
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (s *Store) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snapshot, ok := s.orders[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return domain.RestoreOrder(snapshot)
}

// FindByIdempotencyKey ищет заказ пользователя по ключу идемпотентности.
func (s *Store) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	scope, ok := domain.NewIdempotencyScope(userID, key)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}

	s.mu.RLock()
	id, found := s.keys[scope]
	s.mu.RUnlock()
	if !found {
		return nil, domain.ErrOrderNotFound
	}
	return s.Get(ctx, id)
}

// List возвращает страницу заказов, новые первыми.
func (s *Store) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matched := make([]domain.OrderSnapshot, 0, len(s.orders))
	for _, snapshot := range s.orders {
		if filter.UserID != "" && snapshot.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && snapshot.Status != filter.Status {
			continue
		}
		matched = append(matched, snapshot)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < total {
		end = offset + filter.Limit
	}

	result := make([]*domain.Order, 0, end-offset)
	for _, snapshot := range matched[offset:end] {
		order, err := domain.RestoreOrder(snapshot)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, order)
	}
	return result, total, nil
}
