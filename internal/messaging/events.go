package messaging

import (
	"context"
	"encoding/json"
	"time"
)

// Имена интеграционных событий; транспорты строят из них topic/channel.
const (
	TopicOrderCreated   = "order-created"
	TopicOrderCancelled = "order-cancelled"
)

// IntegrationEvent — внешнее представление доменного события.
type IntegrationEvent interface {
	// Topic возвращает имя события для маршрутизации.
	Topic() string
	// Key возвращает ключ партиционирования (идентификатор заказа).
	Key() string
}

// Publisher — внешний приёмник интеграционных событий.
// Реализации не делают собственных повторов: retry-политикой владеет relay.
type Publisher interface {
	Publish(ctx context.Context, event IntegrationEvent) error
}

// OrderCreatedItem описывает позицию в событии order-created.
type OrderCreatedItem struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Quantity    int         `json:"quantity"`
	UnitPrice   json.Number `json:"unit_price"`
}

// OrderCreated публикуется после подтверждения заказа.
type OrderCreated struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	TotalAmount json.Number        `json:"total_amount"`
	Currency    string             `json:"currency"`
	ItemCount   int                `json:"item_count"`
	OccurredAt  time.Time          `json:"occurred_at"`
	Items       []OrderCreatedItem `json:"items"`
}

func (e OrderCreated) Topic() string { return TopicOrderCreated }
func (e OrderCreated) Key() string   { return e.OrderID }

// OrderCancelled публикуется после отмены заказа.
type OrderCancelled struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Reason     *string   `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e OrderCancelled) Topic() string { return TopicOrderCancelled }
func (e OrderCancelled) Key() string   { return e.OrderID }
