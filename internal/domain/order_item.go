package domain

import (
	"strings"

	"github.com/google/uuid"
)

// OrderItem — позиция заказа со снимком данных товара на момент добавления.
type OrderItem struct {
	id              string
	orderID         string
	productID       string
	productName     string
	productImageURL string
	quantity        int
	unitPrice       Money
	totalPrice      Money
}

func newOrderItem(orderID, productID, name, imageURL string, quantity int, unitPrice Money) (*OrderItem, error) {
	verr := &ValidationError{}
	if strings.TrimSpace(productID) == "" {
		verr.Add("product_id", "is required")
	}
	if strings.TrimSpace(name) == "" {
		verr.Add("product_name", "is required")
	}
	if quantity <= 0 {
		verr.Add("quantity", "must be greater than zero")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return &OrderItem{
		id:              uuid.NewString(),
		orderID:         orderID,
		productID:       strings.TrimSpace(productID),
		productName:     strings.TrimSpace(name),
		productImageURL: strings.TrimSpace(imageURL),
		quantity:        quantity,
		unitPrice:       unitPrice,
		totalPrice:      unitPrice.Multiply(quantity),
	}, nil
}

// UpdateQuantity меняет количество и пересчитывает сумму позиции.
func (i *OrderItem) UpdateQuantity(quantity int) error {
	if quantity <= 0 {
		return NewValidationError("quantity", "must be greater than zero")
	}
	i.quantity = quantity
	i.totalPrice = i.unitPrice.Multiply(quantity)
	return nil
}

func (i *OrderItem) ID() string              { return i.id }
func (i *OrderItem) OrderID() string         { return i.orderID }
func (i *OrderItem) ProductID() string       { return i.productID }
func (i *OrderItem) ProductName() string     { return i.productName }
func (i *OrderItem) ProductImageURL() string { return i.productImageURL }
func (i *OrderItem) Quantity() int           { return i.quantity }
func (i *OrderItem) UnitPrice() Money        { return i.unitPrice }
func (i *OrderItem) TotalPrice() Money       { return i.totalPrice }

// OrderItemSnapshot — плоское представление позиции для хранилища.
type OrderItemSnapshot struct {
	ID              string
	ProductID       string
	ProductName     string
	ProductImageURL string
	Quantity        int
	UnitPrice       Money
}

func (i *OrderItem) snapshot() OrderItemSnapshot {
	return OrderItemSnapshot{
		ID:              i.id,
		ProductID:       i.productID,
		ProductName:     i.productName,
		ProductImageURL: i.productImageURL,
		Quantity:        i.quantity,
		UnitPrice:       i.unitPrice,
	}
}
