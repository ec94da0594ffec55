package orders

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// RoleAdmin открывает доступ к чужим заказам и операциям исполнения.
const RoleAdmin = "admin"

// Actor — аутентифицированный вызывающий. Аутентификация вне этого пакета.
type Actor struct {
	UserID string
	Roles  []string
}

// IsAdmin проверяет роль admin без учёта регистра.
func (a Actor) IsAdmin() bool {
	for _, r := range a.Roles {
		if strings.EqualFold(strings.TrimSpace(r), RoleAdmin) {
			return true
		}
	}
	return false
}

func (a Actor) canAccess(order *domain.Order) bool {
	if a.IsAdmin() {
		return true
	}
	return strings.TrimSpace(a.UserID) != "" && order.IsOwnedBy(a.UserID)
}

// AddressInput описывает адрес в команде.
type AddressInput struct {
	Street          string
	City            string
	District        string
	PostalCode      string
	Country         string
	BuildingNumber  string
	ApartmentNumber string
}

// ItemInput описывает позицию в команде создания.
type ItemInput struct {
	ProductID       string
	ProductName     string
	ProductImageURL string
	Quantity        int
	UnitPrice       decimal.Decimal
}

// CreateOrderCommand создаёт и сразу подтверждает заказ.
type CreateOrderCommand struct {
	IdempotencyKey  string
	ShippingAddress AddressInput
	BillingAddress  *AddressInput
	Items           []ItemInput
	ShippingCost    decimal.Decimal
	Currency        string
	Notes           string
}

// CreateOrderResult — итог создания. Replayed означает, что заказ уже был
// создан ранее с тем же ключом идемпотентности.
type CreateOrderResult struct {
	Order    OrderView
	Replayed bool
}

// CancelOrderCommand отменяет заказ.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
}

// ListQuery задаёт фильтр и страницу списка заказов.
type ListQuery struct {
	UserID   string
	Status   domain.OrderStatus
	Page     int
	PageSize int
}

// Commands — командная поверхность заказов.
type Commands interface {
	CreateOrder(ctx context.Context, actor Actor, cmd CreateOrderCommand) (CreateOrderResult, error)
	CancelOrder(ctx context.Context, actor Actor, cmd CancelOrderCommand) (OrderView, error)
	MarkProcessing(ctx context.Context, actor Actor, orderID string) (OrderView, error)
	CompletePayment(ctx context.Context, actor Actor, orderID string) (OrderView, error)
	FailPayment(ctx context.Context, actor Actor, orderID string) (OrderView, error)
	Ship(ctx context.Context, actor Actor, orderID, trackingNumber string) (OrderView, error)
	Deliver(ctx context.Context, actor Actor, orderID string) (OrderView, error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (OrderView, error)
	ListOrders(ctx context.Context, actor Actor, query ListQuery) (Page[OrderSummary], error)
}
