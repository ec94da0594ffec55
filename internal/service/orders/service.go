package orders

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/idempotency"
)

// ServiceOptions задаёт необязательные зависимости сервиса.
type ServiceOptions struct {
	Logger   *log.Entry
	Catalog  domain.CatalogService
	Cart     domain.CartService
	Guard    GuardConfig
	Recorder upstreamRecorder
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithCatalog подключает каталог для проверки остатков и картинок.
func WithCatalog(catalog domain.CatalogService) Option {
	return func(opts *ServiceOptions) {
		opts.Catalog = catalog
	}
}

// WithCart подключает корзину, которая очищается после создания заказа.
func WithCart(cart domain.CartService) Option {
	return func(opts *ServiceOptions) {
		opts.Cart = cart
	}
}

// WithGuardConfig задаёт политику вызовов корзины и каталога.
func WithGuardConfig(cfg GuardConfig) Option {
	return func(opts *ServiceOptions) {
		opts.Guard = cfg
	}
}

// WithUpstreamRecorder подключает учёт вызовов с неизвестным результатом.
func WithUpstreamRecorder(recorder upstreamRecorder) Option {
	return func(opts *ServiceOptions) {
		opts.Recorder = recorder
	}
}

// Service реализует Commands поверх агрегата и хранилища.
type Service struct {
	orders   domain.OrderRepository
	resolver *idempotency.Resolver
	catalog  domain.CatalogService
	cart     domain.CartService
	catalogG *guard
	cartG    *guard
	logger   *log.Entry
}

// NewService создаёт командный сервис.
func NewService(repo domain.OrderRepository, options ...Option) *Service {
	opts := ServiceOptions{Guard: DefaultGuardConfig()}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-commands")
	}

	return &Service{
		orders:   repo,
		resolver: idempotency.NewResolver(repo, logger),
		catalog:  opts.Catalog,
		cart:     opts.Cart,
		catalogG: newGuard("catalog", opts.Guard, logger, opts.Recorder),
		cartG:    newGuard("cart", opts.Guard, logger, opts.Recorder),
		logger:   logger,
	}
}

// CreateOrder валидирует команду, отвечает повтором по ключу идемпотентности
// или создаёт и подтверждает новый заказ.
func (s *Service) CreateOrder(ctx context.Context, actor Actor, cmd CreateOrderCommand) (CreateOrderResult, error) {
	userID := strings.TrimSpace(actor.UserID)
	if err := validateCreate(userID, cmd); err != nil {
		return CreateOrderResult{}, err
	}

	existing, err := s.resolver.Resolve(ctx, userID, cmd.IdempotencyKey)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if existing != nil {
		return CreateOrderResult{Order: NewOrderView(existing), Replayed: true}, nil
	}

	if err := s.checkStock(ctx, cmd.Items); err != nil {
		return CreateOrderResult{}, err
	}
	items := s.fillImages(ctx, cmd.Items)

	order, err := buildOrder(userID, cmd, items)
	if err != nil {
		return CreateOrderResult{}, err
	}

	if err := s.orders.Save(ctx, order); err != nil {
		winner, recoverErr := s.resolver.Recover(ctx, userID, cmd.IdempotencyKey, err)
		if recoverErr != nil {
			return CreateOrderResult{}, recoverErr
		}
		return CreateOrderResult{Order: NewOrderView(winner), Replayed: true}, nil
	}

	s.clearCart(ctx, userID)
	return CreateOrderResult{Order: NewOrderView(order)}, nil
}

func buildOrder(userID string, cmd CreateOrderCommand, items []ItemInput) (*domain.Order, error) {
	shipping, err := toAddress(cmd.ShippingAddress)
	if err != nil {
		return nil, prefixed("shipping_address", err)
	}
	var billing *domain.Address
	if cmd.BillingAddress != nil {
		b, err := toAddress(*cmd.BillingAddress)
		if err != nil {
			return nil, prefixed("billing_address", err)
		}
		billing = &b
	}

	order, err := domain.NewOrder(userID, shipping, billing, cmd.Notes, cmd.IdempotencyKey, cmd.Currency)
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		price, err := domain.NewMoney(item.UnitPrice, order.Currency())
		if err != nil {
			return nil, prefixed(fmt.Sprintf("items[%d]", i), err)
		}
		if err := order.AddItem(item.ProductID, item.ProductName, item.ProductImageURL, item.Quantity, price); err != nil {
			return nil, prefixed(fmt.Sprintf("items[%d]", i), err)
		}
	}
	shippingCost, err := domain.NewMoney(cmd.ShippingCost, order.Currency())
	if err != nil {
		return nil, prefixed("shipping_cost", err)
	}
	if err := order.SetShippingCost(shippingCost); err != nil {
		return nil, err
	}
	if err := order.Confirm(); err != nil {
		return nil, err
	}
	return order, nil
}

func toAddress(a AddressInput) (domain.Address, error) {
	return domain.NewAddress(a.Street, a.City, a.District, a.PostalCode, a.Country, a.BuildingNumber, a.ApartmentNumber)
}

func prefixed(prefix string, err error) error {
	verr, ok := err.(*domain.ValidationError)
	if !ok {
		return err
	}
	out := &domain.ValidationError{}
	out.Merge(prefix, verr)
	return out
}

// checkStock отклоняет команду только на определённое «нет на складе».
func (s *Service) checkStock(ctx context.Context, items []ItemInput) error {
	if s.catalog == nil {
		return nil
	}

	verr := &domain.ValidationError{}
	for i, item := range items {
		var inStock bool
		err := s.catalogG.do(ctx, "check_stock", func(ctx context.Context) error {
			var err error
			inStock, err = s.catalog.CheckStock(ctx, item.ProductID, item.Quantity)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if !inStock {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), "insufficient stock")
		}
	}
	return verr.OrNil()
}

// fillImages подставляет картинку из каталога, если команда её не несёт.
func (s *Service) fillImages(ctx context.Context, items []ItemInput) []ItemInput {
	out := append([]ItemInput(nil), items...)
	if s.catalog == nil {
		return out
	}

	var missing []string
	for _, item := range out {
		if blank(item.ProductImageURL) {
			missing = append(missing, strings.TrimSpace(item.ProductID))
		}
	}
	if len(missing) == 0 {
		return out
	}

	var products []domain.Product
	if err := s.catalogG.do(ctx, "get_products", func(ctx context.Context) error {
		var err error
		products, err = s.catalog.GetProducts(ctx, missing)
		return err
	}); err != nil {
		return out
	}

	images := make(map[string]string, len(products))
	for _, p := range products {
		images[p.ID] = p.ImageURL
	}
	for i := range out {
		if blank(out[i].ProductImageURL) {
			out[i].ProductImageURL = images[strings.TrimSpace(out[i].ProductID)]
		}
	}
	return out
}

func (s *Service) clearCart(ctx context.Context, userID string) {
	if s.cart == nil {
		return
	}
	if err := s.cartG.do(ctx, "clear_cart", func(ctx context.Context) error {
		return s.cart.ClearCart(ctx, userID)
	}); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("cart was not cleared after order creation")
	}
}

// CancelOrder отменяет заказ владельца или любой заказ для admin.
func (s *Service) CancelOrder(ctx context.Context, actor Actor, cmd CancelOrderCommand) (OrderView, error) {
	if err := validateCancel(cmd); err != nil {
		return OrderView{}, err
	}
	return s.mutate(ctx, actor, cmd.OrderID, false, func(o *domain.Order) error {
		return o.Cancel(cmd.Reason)
	})
}

// MarkProcessing переводит подтверждённый заказ в комплектацию. Только admin.
func (s *Service) MarkProcessing(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	return s.mutate(ctx, actor, orderID, true, func(o *domain.Order) error {
		return o.MarkAsProcessing()
	})
}

// CompletePayment отмечает успешную оплату. Только admin.
func (s *Service) CompletePayment(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	return s.mutate(ctx, actor, orderID, true, func(o *domain.Order) error {
		o.MarkPaymentCompleted()
		return nil
	})
}

// FailPayment отмечает неуспешную оплату; заказ становится Failed. Только admin.
func (s *Service) FailPayment(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	return s.mutate(ctx, actor, orderID, true, func(o *domain.Order) error {
		o.MarkPaymentFailed()
		return nil
	})
}

// Ship передаёт заказ в доставку. Только admin.
func (s *Service) Ship(ctx context.Context, actor Actor, orderID, trackingNumber string) (OrderView, error) {
	return s.mutate(ctx, actor, orderID, true, func(o *domain.Order) error {
		return o.Ship(trackingNumber)
	})
}

// Deliver отмечает доставку. Только admin.
func (s *Service) Deliver(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	return s.mutate(ctx, actor, orderID, true, func(o *domain.Order) error {
		return o.MarkAsDelivered()
	})
}

func (s *Service) mutate(ctx context.Context, actor Actor, orderID string, adminOnly bool, apply func(*domain.Order) error) (OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, domain.NewValidationError("order_id", "is required")
	}

	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return OrderView{}, err
	}
	if adminOnly && !actor.IsAdmin() {
		return OrderView{}, fmt.Errorf("order %s: %w", orderID, domain.ErrForbidden)
	}

	if err := apply(order); err != nil {
		return OrderView{}, err
	}
	if err := s.orders.Save(ctx, order); err != nil {
		return OrderView{}, err
	}
	return NewOrderView(order), nil
}

func (s *Service) load(ctx context.Context, actor Actor, orderID string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.canAccess(order) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrForbidden)
	}
	return order, nil
}

// GetOrder возвращает заказ владельцу или admin.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, domain.NewValidationError("order_id", "is required")
	}
	order, err := s.load(ctx, actor, orderID)
	if err != nil {
		return OrderView{}, err
	}
	return NewOrderView(order), nil
}

// ListOrders возвращает страницу заказов. Не-admin видит только свои.
func (s *Service) ListOrders(ctx context.Context, actor Actor, query ListQuery) (Page[OrderSummary], error) {
	if err := validateListQuery(query); err != nil {
		return Page[OrderSummary]{}, err
	}

	userID := strings.TrimSpace(query.UserID)
	if !actor.IsAdmin() {
		self := strings.TrimSpace(actor.UserID)
		if self == "" || (userID != "" && userID != self) {
			return Page[OrderSummary]{}, domain.ErrForbidden
		}
		userID = self
	}

	page, pageSize := normalizePaging(query.Page, query.PageSize)
	found, total, err := s.orders.List(ctx, domain.OrderFilter{
		UserID: userID,
		Status: query.Status,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return Page[OrderSummary]{}, err
	}

	items := make([]OrderSummary, 0, len(found))
	for _, o := range found {
		items = append(items, newOrderSummary(o))
	}
	return newPage(items, page, pageSize, total), nil
}

var _ Commands = (*Service)(nil)
