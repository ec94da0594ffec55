package domain

import (
	"fmt"
	"time"
)

// OrderSnapshot — плоское состояние агрегата для хранилищ.
type OrderSnapshot struct {
	ID              string
	UserID          string
	IdempotencyKey  string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	ShippingAddress Address
	BillingAddress  *Address
	Currency        string
	SubTotal        Money
	ShippingCost    Money
	TotalAmount     Money
	Items           []OrderItemSnapshot
	Notes           string
	TrackingNumber  string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	Version         int64
}

// Snapshot снимает состояние агрегата. Буфер событий в снимок не входит.
func (o *Order) Snapshot() OrderSnapshot {
	items := make([]OrderItemSnapshot, 0, len(o.items))
	for _, item := range o.items {
		items = append(items, item.snapshot())
	}
	return OrderSnapshot{
		ID:              o.id,
		UserID:          o.userID,
		IdempotencyKey:  o.idempotencyKey,
		Status:          o.status,
		PaymentStatus:   o.paymentStatus,
		ShippingAddress: o.shippingAddress,
		BillingAddress:  o.BillingAddress(),
		Currency:        o.currency,
		SubTotal:        o.subTotal,
		ShippingCost:    o.shippingCost,
		TotalAmount:     o.totalAmount,
		Items:           items,
		Notes:           o.notes,
		TrackingNumber:  o.trackingNumber,
		CreatedAt:       o.createdAt,
		UpdatedAt:       copyTime(o.updatedAt),
		ShippedAt:       copyTime(o.shippedAt),
		DeliveredAt:     copyTime(o.deliveredAt),
		CancelledAt:     copyTime(o.cancelledAt),
		Version:         o.version,
	}
}

// RestoreOrder восстанавливает сохранённый агрегат. Суммы пересчитываются
// из позиций, поэтому SubTotal/TotalAmount снимка служат только для проверки.
func RestoreOrder(s OrderSnapshot) (*Order, error) {
	if s.ID == "" || s.UserID == "" {
		return nil, fmt.Errorf("restore order: id and user_id are required")
	}
	if !s.Status.Valid() {
		return nil, fmt.Errorf("restore order %s: unknown status %q", s.ID, s.Status)
	}
	if !s.PaymentStatus.Valid() {
		return nil, fmt.Errorf("restore order %s: unknown payment status %q", s.ID, s.PaymentStatus)
	}

	currency := normalizeCurrency(s.Currency)
	o := &Order{
		id:              s.ID,
		userID:          s.UserID,
		idempotencyKey:  s.IdempotencyKey,
		status:          s.Status,
		paymentStatus:   s.PaymentStatus,
		shippingAddress: s.ShippingAddress,
		currency:        currency,
		shippingCost:    Money{amount: s.ShippingCost.Amount(), currency: currency},
		notes:           s.Notes,
		trackingNumber:  s.TrackingNumber,
		createdAt:       s.CreatedAt,
		updatedAt:       copyTime(s.UpdatedAt),
		shippedAt:       copyTime(s.ShippedAt),
		deliveredAt:     copyTime(s.DeliveredAt),
		cancelledAt:     copyTime(s.CancelledAt),
		version:         s.Version,
		persisted:       true,
	}
	if s.BillingAddress != nil {
		b := *s.BillingAddress
		o.billingAddress = &b
	}
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("restore order %s: item %s has quantity %d", s.ID, it.ProductID, it.Quantity)
		}
		unit := Money{amount: it.UnitPrice.Amount(), currency: currency}
		o.items = append(o.items, &OrderItem{
			id:              it.ID,
			orderID:         s.ID,
			productID:       it.ProductID,
			productName:     it.ProductName,
			productImageURL: it.ProductImageURL,
			quantity:        it.Quantity,
			unitPrice:       unit,
			totalPrice:      unit.Multiply(it.Quantity),
		})
	}
	o.recalculate()
	return o, nil
}
