package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OutboxMessage — строка transactional outbox. Создаётся в транзакции агрегата,
// дальше меняется только relay.
type OutboxMessage struct {
	ID          string
	AggregateID string
	Type        EventType
	Content     []byte
	OccurredAt  time.Time
	ProcessedAt *time.Time
	RetryCount  int
	Error       string
}

// OutboxClaim — параметры захвата батча relay-инстансом.
type OutboxClaim struct {
	Owner      string
	Limit      int
	MaxRetries int
	Lease      time.Duration
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
	PoisonCount     int
}

// OutboxRepository — сторона outbox, которой пользуется relay и операторские утилиты.
type OutboxRepository interface {
	// Claim захватывает до Limit необработанных строк с retry_count < MaxRetries,
	// пропуская строки под чужой арендой, в порядке occurred_at.
	Claim(ctx context.Context, claim OutboxClaim) ([]OutboxMessage, error)
	// Complete одной записью сохраняет итоги батча и снимает аренду owner.
	// Итог строки, которую owner уже не арендует, пропускается; возвращаются
	// ID строк, итог которых записан.
	Complete(ctx context.Context, owner string, results []OutboxMessage) ([]string, error)
	// Stats считает backlog; строки с retry_count >= maxRetries идут в PoisonCount.
	Stats(ctx context.Context, maxRetries int) (OutboxStats, error)
	// DeadLetters возвращает poison-сообщения.
	DeadLetters(ctx context.Context, maxRetries, limit int) ([]OutboxMessage, error)
	// Requeue обнуляет retry_count и ошибку у необработанных строк.
	Requeue(ctx context.Context, ids []string) (int, error)
}

// CartItem описывает позицию корзины.
type CartItem struct {
	ProductID   string
	ProductName string
	ImageURL    string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Cart — корзина пользователя во внешнем сервисе.
type Cart struct {
	UserID   string
	Items    []CartItem
	Currency string
}

// Product описывает карточку товара во внешнем каталоге.
type Product struct {
	ID       string
	Name     string
	ImageURL string
	Price    decimal.Decimal
	Currency string
	Stock    int
}

// CartService обращается к внешней корзине. Отсутствующая корзина даёт (nil, nil).
type CartService interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CatalogService обращается к внешнему каталогу. Отсутствующий товар даёт (nil, nil).
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	GetProducts(ctx context.Context, productIDs []string) ([]Product, error)
	CheckStock(ctx context.Context, productID string, quantity int) (bool, error)
}
