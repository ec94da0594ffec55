package orders

import (
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// AddressView содержит адрес как плоские данные.
type AddressView struct {
	Street          string
	City            string
	District        string
	PostalCode      string
	Country         string
	BuildingNumber  string
	ApartmentNumber string
	FullAddress     string
}

// OrderItemView — позиция заказа. Деньги строками с двумя знаками.
type OrderItemView struct {
	ID              string
	ProductID       string
	ProductName     string
	ProductImageURL string
	Quantity        int
	UnitPrice       string
	TotalPrice      string
}

// OrderView — полное представление заказа.
type OrderView struct {
	ID              string
	UserID          string
	IdempotencyKey  string
	Status          domain.OrderStatus
	PaymentStatus   domain.PaymentStatus
	ShippingAddress AddressView
	BillingAddress  *AddressView
	Items           []OrderItemView
	SubTotal        string
	ShippingCost    string
	TotalAmount     string
	Currency        string
	Notes           string
	TrackingNumber  string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	Version         int64
}

// OrderSummary описывает строку списка заказов.
type OrderSummary struct {
	ID          string
	Status      domain.OrderStatus
	ItemCount   int
	TotalAmount string
	Currency    string
	CreatedAt   time.Time
}

// Page содержит страницу результатов и данные навигации.
type Page[T any] struct {
	Items       []T
	Page        int
	PageSize    int
	TotalCount  int
	TotalPages  int
	HasPrevious bool
	HasNext     bool
}

func newPage[T any](items []T, page, pageSize, total int) Page[T] {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Page[T]{
		Items:       items,
		Page:        page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasPrevious: page > 1,
		HasNext:     page < totalPages,
	}
}

func normalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func money(m domain.Money) string {
	return m.Amount().StringFixed(2)
}

func toAddressView(a domain.Address) AddressView {
	return AddressView{
		Street:          a.Street,
		City:            a.City,
		District:        a.District,
		PostalCode:      a.PostalCode,
		Country:         a.Country,
		BuildingNumber:  a.BuildingNumber,
		ApartmentNumber: a.ApartmentNumber,
		FullAddress:     a.FullAddress(),
	}
}

// NewOrderView строит представление агрегата.
func NewOrderView(o *domain.Order) OrderView {
	view := OrderView{
		ID:              o.ID(),
		UserID:          o.UserID(),
		IdempotencyKey:  o.IdempotencyKey(),
		Status:          o.Status(),
		PaymentStatus:   o.PaymentStatus(),
		ShippingAddress: toAddressView(o.ShippingAddress()),
		SubTotal:        money(o.SubTotal()),
		ShippingCost:    money(o.ShippingCost()),
		TotalAmount:     money(o.TotalAmount()),
		Currency:        o.Currency(),
		Notes:           o.Notes(),
		TrackingNumber:  o.TrackingNumber(),
		CreatedAt:       o.CreatedAt(),
		UpdatedAt:       o.UpdatedAt(),
		ShippedAt:       o.ShippedAt(),
		DeliveredAt:     o.DeliveredAt(),
		CancelledAt:     o.CancelledAt(),
		Version:         o.Version(),
	}
	if billing := o.BillingAddress(); billing != nil {
		b := toAddressView(*billing)
		view.BillingAddress = &b
	}

	items := o.Items()
	view.Items = make([]OrderItemView, 0, len(items))
	for _, it := range items {
		view.Items = append(view.Items, OrderItemView{
			ID:              it.ID(),
			ProductID:       it.ProductID(),
			ProductName:     it.ProductName(),
			ProductImageURL: it.ProductImageURL(),
			Quantity:        it.Quantity(),
			UnitPrice:       money(it.UnitPrice()),
			TotalPrice:      money(it.TotalPrice()),
		})
	}
	return view
}

func newOrderSummary(o *domain.Order) OrderSummary {
	return OrderSummary{
		ID:          o.ID(),
		Status:      o.Status(),
		ItemCount:   len(o.Items()),
		TotalAmount: money(o.TotalAmount()),
		Currency:    o.Currency(),
		CreatedAt:   o.CreatedAt(),
	}
}
