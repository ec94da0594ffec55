package domain

import "context"

// OrderFilter задаёт выборку списка заказов.
type OrderFilter struct {
	// Пустой UserID означает всех пользователей (только для admin).
	UserID string
	// Пустой Status означает любой статус.
	Status OrderStatus
	Offset int
	Limit  int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Save атомарно сохраняет новые и изменённые агрегаты вместе с их
	// доменными событиями в outbox. После коммита у каждого агрегата
	// вызывается MarkCommitted. Устаревшая версия → ErrOrderVersionConflict,
	// повтор (idempotency_key, user_id) → ErrDuplicateIdempotencyKey.
	Save(ctx context.Context, orders ...*Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (*Order, error)
	// FindByIdempotencyKey ищет заказ по паре (key, user); ErrOrderNotFound, если нет.
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	// List возвращает страницу заказов (новые первыми) и общее число совпадений.
	List(ctx context.Context, filter OrderFilter) ([]*Order, int, error)
}
