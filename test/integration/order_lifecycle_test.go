package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/messaging"
	"github.com/vladislavdragonenkov/orderflow/internal/service/orders"
	"github.com/vladislavdragonenkov/orderflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
)

var (
	customer = orders.Actor{UserID: "customer-1"}
	operator = orders.Actor{UserID: "ops", Roles: []string{orders.RoleAdmin}}
)

// OrderLifecycleTestSuite прогоняет заказ от команды до публикации события.
type OrderLifecycleTestSuite struct {
	suite.Suite
	store     *memory.Store
	service   orders.Commands
	publisher *recordingPublisher
	relay     *outbox.Relay
}

func (suite *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	suite.store = memory.NewStore()
	suite.service = orders.NewService(suite.store, orders.WithLogger(logger))
	suite.publisher = &recordingPublisher{failFor: map[string]bool{}}
	suite.relay = outbox.NewRelay(suite.store, suite.publisher,
		outbox.WithLogger(logger),
		outbox.WithOwner("integration"),
		outbox.WithBatchSize(10),
		outbox.WithPublishTimeout(time.Second),
	)
}

func (suite *OrderLifecycleTestSuite) createOrder(key string) orders.OrderView {
	res, err := suite.service.CreateOrder(context.Background(), customer, orders.CreateOrderCommand{
		IdempotencyKey: key,
		ShippingAddress: orders.AddressInput{
			Street:     "İstiklal Cd. 12",
			City:       "Istanbul",
			District:   "Beyoğlu",
			PostalCode: "34430",
			Country:    "Türkiye",
		},
		Items: []orders.ItemInput{
			{ProductID: "p-1", ProductName: "Tea glass", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductID: "p-2", ProductName: "Saucer", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
		},
		ShippingCost: decimal.RequireFromString("3.00"),
		Currency:     "TRY",
	})
	suite.Require().NoError(err)
	return res.Order
}

func (suite *OrderLifecycleTestSuite) rows(orderID string) []domain.OutboxMessage {
	var result []domain.OutboxMessage
	for _, msg := range suite.store.OutboxMessages() {
		if msg.AggregateID == orderID {
			result = append(result, msg)
		}
	}
	return result
}

func (suite *OrderLifecycleTestSuite) TestCreatedOrderIsPublished() {
	view := suite.createOrder("lifecycle-a")

	suite.Equal(domain.OrderStatusConfirmed, view.Status)
	suite.Equal("25.00", view.SubTotal)
	suite.Equal("28.00", view.TotalAmount)

	rows := suite.rows(view.ID)
	suite.Require().Len(rows, 1)
	suite.Equal(domain.EventTypeOrderCreated, rows[0].Type)
	suite.Nil(rows[0].ProcessedAt)

	suite.Equal(1, suite.relay.ProcessOnce(context.Background()))

	rows = suite.rows(view.ID)
	suite.NotNil(rows[0].ProcessedAt)
	events := suite.publisher.published()
	suite.Require().Len(events, 1)
	created, ok := events[0].(messaging.OrderCreated)
	suite.Require().True(ok)
	suite.Equal(view.ID, created.OrderID)
	suite.Equal(customer.UserID, created.UserID)

	replay, err := suite.service.CreateOrder(context.Background(), customer, orders.CreateOrderCommand{
		IdempotencyKey: "lifecycle-a",
		ShippingAddress: orders.AddressInput{
			Street: "x", City: "x", District: "x", PostalCode: "x", Country: "x",
		},
		Items:    []orders.ItemInput{{ProductID: "p-9", ProductName: "Other", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
		Currency: "TRY",
	})
	suite.Require().NoError(err)
	suite.True(replay.Replayed)
	suite.Equal(view.ID, replay.Order.ID)
	suite.Len(suite.rows(view.ID), 1)
}

func (suite *OrderLifecycleTestSuite) TestCancelledOrderCannotShip() {
	ctx := context.Background()
	view := suite.createOrder("lifecycle-b")

	cancelled, err := suite.service.CancelOrder(ctx, customer, orders.CancelOrderCommand{OrderID: view.ID, Reason: "changed mind"})
	suite.Require().NoError(err)
	suite.Equal(domain.OrderStatusCancelled, cancelled.Status)
	suite.Contains(cancelled.Notes, "changed mind")

	_, err = suite.service.Ship(ctx, operator, view.ID, "TRK-1")
	suite.Require().Error(err)
	suite.True(domain.IsInvariantViolation(err))

	suite.Equal(2, suite.relay.ProcessOnce(ctx))
	var topics []string
	for _, e := range suite.publisher.published() {
		topics = append(topics, e.Topic())
	}
	suite.Equal([]string{messaging.TopicOrderCreated, messaging.TopicOrderCancelled}, topics)
}

func (suite *OrderLifecycleTestSuite) TestFailedPublishIsRetriedOnNextPass() {
	ctx := context.Background()
	first := suite.createOrder("lifecycle-c1")
	second := suite.createOrder("lifecycle-c2")
	third := suite.createOrder("lifecycle-c3")
	suite.publisher.fail(second.ID)

	suite.Equal(3, suite.relay.ProcessOnce(ctx))

	suite.NotNil(suite.rows(first.ID)[0].ProcessedAt)
	suite.NotNil(suite.rows(third.ID)[0].ProcessedAt)
	failed := suite.rows(second.ID)[0]
	suite.Nil(failed.ProcessedAt)
	suite.Equal(1, failed.RetryCount)
	suite.NotEmpty(failed.Error)

	suite.publisher.recover(second.ID)
	suite.Equal(1, suite.relay.ProcessOnce(ctx))
	suite.NotNil(suite.rows(second.ID)[0].ProcessedAt)

	stats, err := suite.store.Stats(ctx, suite.relay.MaxRetries())
	suite.Require().NoError(err)
	suite.Zero(stats.PendingCount)
	suite.Zero(stats.PoisonCount)
}

func (suite *OrderLifecycleTestSuite) TestFulfilmentHappyPath() {
	ctx := context.Background()
	view := suite.createOrder("lifecycle-d")

	steps := []func() (orders.OrderView, error){
		func() (orders.OrderView, error) { return suite.service.CompletePayment(ctx, operator, view.ID) },
		func() (orders.OrderView, error) { return suite.service.MarkProcessing(ctx, operator, view.ID) },
		func() (orders.OrderView, error) { return suite.service.Ship(ctx, operator, view.ID, "TRK-42") },
		func() (orders.OrderView, error) { return suite.service.Deliver(ctx, operator, view.ID) },
	}
	var last orders.OrderView
	for _, step := range steps {
		var err error
		last, err = step()
		suite.Require().NoError(err)
	}

	suite.Equal(domain.OrderStatusDelivered, last.Status)
	suite.Equal(domain.PaymentStatusCompleted, last.PaymentStatus)
	suite.Equal("TRK-42", last.TrackingNumber)
	suite.NotNil(last.DeliveredAt)

	_, err := suite.service.CancelOrder(ctx, customer, orders.CancelOrderCommand{OrderID: view.ID, Reason: "late"})
	suite.True(domain.IsInvariantViolation(err))
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func TestRelay_SurvivesConcurrentInstances(t *testing.T) {
	store := memory.NewStore()
	service := orders.NewService(store)
	for i := 0; i < 20; i++ {
		_, err := service.CreateOrder(context.Background(), customer, orders.CreateOrderCommand{
			ShippingAddress: orders.AddressInput{Street: "s", City: "c", District: "d", PostalCode: "p", Country: "TR"},
			Items:           []orders.ItemInput{{ProductID: "p", ProductName: "n", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
			Currency:        "TRY",
		})
		require.NoError(t, err)
	}

	publisher := &recordingPublisher{failFor: map[string]bool{}}
	relays := []*outbox.Relay{
		outbox.NewRelay(store, publisher, outbox.WithOwner("relay-a"), outbox.WithBatchSize(3)),
		outbox.NewRelay(store, publisher, outbox.WithOwner("relay-b"), outbox.WithBatchSize(3)),
	}

	var wg sync.WaitGroup
	for _, relay := range relays {
		wg.Add(1)
		go func(relay *outbox.Relay) {
			defer wg.Done()
			for {
				if relay.ProcessOnce(context.Background()) == 0 {
					return
				}
			}
		}(relay)
	}
	wg.Wait()

	seen := map[string]int{}
	for _, e := range publisher.published() {
		seen[e.Key()]++
	}
	require.Len(t, seen, 20)
	for key, n := range seen {
		require.Equalf(t, 1, n, "order %s published %d times", key, n)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	failFor map[string]bool
	events  []messaging.IntegrationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.IntegrationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[event.Key()] {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) fail(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFor[key] = true
}

func (p *recordingPublisher) recover(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failFor, key)
}

func (p *recordingPublisher) published() []messaging.IntegrationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.IntegrationEvent(nil), p.events...)
}
