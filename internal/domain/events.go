package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType — дискриминатор доменного события; пишется в outbox.type.
type EventType string

const (
	EventTypeOrderCreated   EventType = "OrderCreated"
	EventTypeOrderCancelled EventType = "OrderCancelled"
)

// Event — закрытое множество доменных событий: OrderCreated | OrderCancelled.
type Event interface {
	EventID() string
	OccurredAt() time.Time
	EventType() EventType
	AggregateID() string
	isDomainEvent()
}

// OrderCreatedItem — снимок позиции в событии OrderCreated.
type OrderCreatedItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// OrderCreated фиксирует подтверждение заказа.
type OrderCreated struct {
	ID          string             `json:"event_id"`
	OccurredOn  time.Time          `json:"occurred_at"`
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Currency    string             `json:"currency"`
	ItemCount   int                `json:"item_count"`
	Items       []OrderCreatedItem `json:"items"`
}

func (e OrderCreated) EventID() string       { return e.ID }
func (e OrderCreated) OccurredAt() time.Time { return e.OccurredOn }
func (e OrderCreated) EventType() EventType  { return EventTypeOrderCreated }
func (e OrderCreated) AggregateID() string   { return e.OrderID }
func (OrderCreated) isDomainEvent()          {}

// OrderCancelled фиксирует отмену заказа.
type OrderCancelled struct {
	ID         string    `json:"event_id"`
	OccurredOn time.Time `json:"occurred_at"`
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason,omitempty"`
}

func (e OrderCancelled) EventID() string       { return e.ID }
func (e OrderCancelled) OccurredAt() time.Time { return e.OccurredOn }
func (e OrderCancelled) EventType() EventType  { return EventTypeOrderCancelled }
func (e OrderCancelled) AggregateID() string   { return e.OrderID }
func (OrderCancelled) isDomainEvent()          {}

func newEventMeta(now time.Time) (string, time.Time) {
	return uuid.NewString(), now.UTC()
}

// MarshalEvent сериализует событие для outbox.
func MarshalEvent(e Event) (EventType, []byte, error) {
	var (
		payload []byte
		err     error
	)
	switch ev := e.(type) {
	case OrderCreated:
		payload, err = json.Marshal(ev)
	case OrderCancelled:
		payload, err = json.Marshal(ev)
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnknownEventType, e)
	}
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", e.EventType(), err)
	}
	return e.EventType(), payload, nil
}

// UnmarshalEvent восстанавливает событие из строки outbox.
func UnmarshalEvent(eventType EventType, content []byte) (Event, error) {
	switch eventType {
	case EventTypeOrderCreated:
		var ev OrderCreated
		if err := json.Unmarshal(content, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEventCorrupted, eventType, err)
		}
		return ev, nil
	case EventTypeOrderCancelled:
		var ev OrderCancelled
		if err := json.Unmarshal(content, &ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEventCorrupted, eventType, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
}
