package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ собирается, позиции можно менять.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusConfirmed — заказ подтверждён, опубликовано OrderCreated.
	OrderStatusConfirmed OrderStatus = "Confirmed"
	// Заказ комплектуется.
	OrderStatusProcessing OrderStatus = "Processing"
	// Передан в доставку, есть трек-номер.
	OrderStatusShipped OrderStatus = "Shipped"
	// Доставлен (терминальный).
	OrderStatusDelivered OrderStatus = "Delivered"
	// Отменён (терминальный).
	OrderStatusCancelled OrderStatus = "Cancelled"
	// Оплата не прошла (терминальный).
	OrderStatusFailed OrderStatus = "Failed"
)

// AllOrderStatuses перечисляет статусы в порядке жизненного цикла.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusFailed,
}

// IsTerminal сообщает, что из статуса нет переходов (кроме MarkPaymentFailed).
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusFailed
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	for _, known := range AllOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

const cancellationReasonPrefix = "\nCancellation reason: "

var nowFunc = func() time.Time { return time.Now().UTC() }

// Order — корень агрегата заказа. Все изменения идут через методы,
// которые держат инварианты сумм и таблицу переходов.
type Order struct {
	EventBuffer

	id              string
	userID          string
	idempotencyKey  string
	status          OrderStatus
	paymentStatus   PaymentStatus
	shippingAddress Address
	billingAddress  *Address
	items           []*OrderItem
	currency        string
	subTotal        Money
	shippingCost    Money
	totalAmount     Money
	notes           string
	trackingNumber  string
	createdAt       time.Time
	updatedAt       *time.Time
	shippedAt       *time.Time
	deliveredAt     *time.Time
	cancelledAt     *time.Time
	version         int64
	persisted       bool
}

// NewOrder создаёт заказ в статусе Pending с нулевыми суммами.
func NewOrder(userID string, shipping Address, billing *Address, notes, idempotencyKey, currency string) (*Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, NewValidationError("user_id", "is required")
	}

	currency = normalizeCurrency(currency)
	if !ValidCurrency(currency) {
		return nil, NewValidationError("currency", currencyMessage)
	}
	o := &Order{
		id:              uuid.NewString(),
		userID:          userID,
		idempotencyKey:  strings.TrimSpace(idempotencyKey),
		status:          OrderStatusPending,
		paymentStatus:   PaymentStatusPending,
		shippingAddress: shipping,
		currency:        currency,
		subTotal:        ZeroMoney(currency),
		shippingCost:    ZeroMoney(currency),
		totalAmount:     ZeroMoney(currency),
		notes:           strings.TrimSpace(notes),
		createdAt:       nowFunc(),
	}
	if billing != nil {
		b := *billing
		o.billingAddress = &b
	}
	return o, nil
}

// AddItem добавляет позицию; повторный товар увеличивает количество.
func (o *Order) AddItem(productID, name, imageURL string, quantity int, unitPrice Money) error {
	if err := o.require("add item", o.status, OrderStatusPending); err != nil {
		return err
	}
	if unitPrice.Currency() != o.currency {
		return fmt.Errorf("add item %s priced in %s: %w", productID, unitPrice.Currency(), ErrCurrencyMismatch)
	}
	if quantity <= 0 {
		return NewValidationError("quantity", "must be greater than zero")
	}

	productID = strings.TrimSpace(productID)
	if existing := o.findItem(productID); existing != nil {
		if err := existing.UpdateQuantity(existing.quantity + quantity); err != nil {
			return err
		}
	} else {
		item, err := newOrderItem(o.id, productID, name, imageURL, quantity, unitPrice)
		if err != nil {
			return err
		}
		o.items = append(o.items, item)
	}

	o.recalculate()
	o.touch()
	return nil
}

// RemoveItem удаляет позицию; для отсутствующего товара ничего не делает.
func (o *Order) RemoveItem(productID string) error {
	if err := o.require("remove item", o.status, OrderStatusPending); err != nil {
		return err
	}

	productID = strings.TrimSpace(productID)
	kept := o.items[:0]
	removed := false
	for _, item := range o.items {
		if item.productID == productID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	o.items = kept
	if !removed {
		return nil
	}

	o.recalculate()
	o.touch()
	return nil
}

// SetShippingCost задаёт стоимость доставки и пересчитывает итог.
func (o *Order) SetShippingCost(cost Money) error {
	if cost.Currency() != o.currency {
		return fmt.Errorf("shipping cost in %s: %w", cost.Currency(), ErrCurrencyMismatch)
	}
	o.shippingCost = cost
	o.recalculate()
	o.touch()
	return nil
}

// Confirm переводит Pending → Confirmed и порождает OrderCreated.
func (o *Order) Confirm() error {
	if err := o.require("confirm", OrderStatusConfirmed, OrderStatusPending); err != nil {
		return err
	}
	if len(o.items) == 0 {
		return fmt.Errorf("confirm order %s: %w", o.id, ErrOrderHasNoItems)
	}

	o.status = OrderStatusConfirmed
	o.touch()

	items := make([]OrderCreatedItem, 0, len(o.items))
	for _, item := range o.items {
		items = append(items, OrderCreatedItem{
			ProductID:   item.productID,
			ProductName: item.productName,
			Quantity:    item.quantity,
			UnitPrice:   item.unitPrice.Amount(),
		})
	}
	eventID, at := newEventMeta(nowFunc())
	o.record(OrderCreated{
		ID:          eventID,
		OccurredOn:  at,
		OrderID:     o.id,
		UserID:      o.userID,
		TotalAmount: o.totalAmount.Amount(),
		Currency:    o.currency,
		ItemCount:   len(o.items),
		Items:       items,
	})
	return nil
}

// MarkAsProcessing переводит Confirmed → Processing.
func (o *Order) MarkAsProcessing() error {
	if err := o.require("mark as processing", OrderStatusProcessing, OrderStatusConfirmed); err != nil {
		return err
	}
	o.status = OrderStatusProcessing
	o.touch()
	return nil
}

// Ship переводит Processing → Shipped с обязательным трек-номером.
func (o *Order) Ship(trackingNumber string) error {
	if err := o.require("ship", OrderStatusShipped, OrderStatusProcessing); err != nil {
		return err
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return NewValidationError("tracking_number", "is required")
	}

	now := nowFunc()
	o.status = OrderStatusShipped
	o.trackingNumber = trackingNumber
	o.shippedAt = &now
	o.updatedAt = &now
	return nil
}

// MarkAsDelivered переводит Shipped → Delivered.
func (o *Order) MarkAsDelivered() error {
	if err := o.require("mark as delivered", OrderStatusDelivered, OrderStatusShipped); err != nil {
		return err
	}
	now := nowFunc()
	o.status = OrderStatusDelivered
	o.deliveredAt = &now
	o.updatedAt = &now
	return nil
}

// Cancel отменяет заказ до отгрузки и порождает OrderCancelled.
func (o *Order) Cancel(reason string) error {
	if err := o.require("cancel", OrderStatusCancelled,
		OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	if reason != "" {
		o.notes = strings.TrimSpace(o.notes + cancellationReasonPrefix + reason)
	}

	now := nowFunc()
	o.status = OrderStatusCancelled
	o.cancelledAt = &now
	o.updatedAt = &now

	eventID, at := newEventMeta(now)
	o.record(OrderCancelled{
		ID:         eventID,
		OccurredOn: at,
		OrderID:    o.id,
		UserID:     o.userID,
		Reason:     reason,
	})
	return nil
}

// IsOwnedBy проверяет владельца заказа.
func (o *Order) IsOwnedBy(userID string) bool {
	return o.userID == strings.TrimSpace(userID)
}

func (o *Order) require(operation string, attempted OrderStatus, allowed ...OrderStatus) error {
	for _, s := range allowed {
		if o.status == s {
			return nil
		}
	}
	return &InvariantViolation{Operation: operation, Current: o.status, Attempted: attempted}
}

func (o *Order) findItem(productID string) *OrderItem {
	for _, item := range o.items {
		if item.productID == productID {
			return item
		}
	}
	return nil
}

// recalculate держит SubTotal = Σ позиций и TotalAmount = SubTotal + ShippingCost.
// Валюта позиций и доставки совпадает с валютой заказа (проверяется на входе).
func (o *Order) recalculate() {
	sum := decimal.Zero
	for _, item := range o.items {
		sum = sum.Add(item.totalPrice.Amount())
	}
	o.subTotal = Money{amount: sum, currency: o.currency}
	o.totalAmount = Money{amount: sum.Add(o.shippingCost.Amount()), currency: o.currency}
}

func (o *Order) touch() {
	now := nowFunc()
	o.updatedAt = &now
}

func (o *Order) ID() string                   { return o.id }
func (o *Order) AggregateID() string          { return o.id }
func (o *Order) UserID() string               { return o.userID }
func (o *Order) IdempotencyKey() string       { return o.idempotencyKey }
func (o *Order) Status() OrderStatus          { return o.status }
func (o *Order) PaymentStatus() PaymentStatus { return o.paymentStatus }
func (o *Order) ShippingAddress() Address     { return o.shippingAddress }
func (o *Order) Currency() string             { return o.currency }
func (o *Order) SubTotal() Money              { return o.subTotal }
func (o *Order) ShippingCost() Money          { return o.shippingCost }
func (o *Order) TotalAmount() Money           { return o.totalAmount }
func (o *Order) Notes() string                { return o.notes }
func (o *Order) TrackingNumber() string       { return o.trackingNumber }
func (o *Order) CreatedAt() time.Time         { return o.createdAt }
func (o *Order) UpdatedAt() *time.Time        { return copyTime(o.updatedAt) }
func (o *Order) ShippedAt() *time.Time        { return copyTime(o.shippedAt) }
func (o *Order) DeliveredAt() *time.Time      { return copyTime(o.deliveredAt) }
func (o *Order) CancelledAt() *time.Time      { return copyTime(o.cancelledAt) }
func (o *Order) Version() int64               { return o.version }

// IsNew сообщает, что заказ ещё ни разу не сохранялся.
func (o *Order) IsNew() bool { return !o.persisted }

// BillingAddress возвращает копию адреса плательщика или nil.
func (o *Order) BillingAddress() *Address {
	if o.billingAddress == nil {
		return nil
	}
	b := *o.billingAddress
	return &b
}

// Items возвращает копии позиций.
func (o *Order) Items() []OrderItem {
	out := make([]OrderItem, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, *item)
	}
	return out
}

// MarkCommitted вызывается хранилищем после коммита: буфер событий
// очищается, версия берётся из базы.
func (o *Order) MarkCommitted(version int64) {
	o.version = version
	o.persisted = true
	o.ClearEvents()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
