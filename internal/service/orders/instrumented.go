package orders

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/orderflow/internal/metrics"
)

type instrumentedCommands struct {
	next    Commands
	metrics *metrics.OrderMetrics
}

// NewInstrumentedCommands считает команды, повторы и длительность в prometheus.
func NewInstrumentedCommands(next Commands, m *metrics.OrderMetrics) Commands {
	if m == nil {
		return next
	}
	return &instrumentedCommands{next: next, metrics: m}
}

func (i *instrumentedCommands) CreateOrder(ctx context.Context, actor Actor, cmd CreateOrderCommand) (CreateOrderResult, error) {
	started := time.Now()
	res, err := i.next.CreateOrder(ctx, actor, cmd)
	i.metrics.RecordCommand("create_order", err, time.Since(started))
	if err == nil {
		if res.Replayed {
			i.metrics.RecordReplay()
		} else {
			i.metrics.RecordOrderCreated()
		}
	}
	return res, err
}

func (i *instrumentedCommands) CancelOrder(ctx context.Context, actor Actor, cmd CancelOrderCommand) (OrderView, error) {
	started := time.Now()
	view, err := i.next.CancelOrder(ctx, actor, cmd)
	i.metrics.RecordCommand("cancel_order", err, time.Since(started))
	if err == nil {
		i.metrics.RecordOrderCancelled()
	}
	return view, err
}

func (i *instrumentedCommands) MarkProcessing(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := i.next.MarkProcessing(ctx, actor, orderID)
	i.metrics.RecordCommand("mark_processing", err, time.Since(started))
	return view, err
}

func (i *instrumentedCommands) CompletePayment(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := i.next.CompletePayment(ctx, actor, orderID)
	i.metrics.RecordCommand("complete_payment", err, time.Since(started))
	return view, err
}

func (i *instrumentedCommands) FailPayment(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := i.next.FailPayment(ctx, actor, orderID)
	i.metrics.RecordCommand("fail_payment", err, time.Since(started))
	return view, err
}

func (i *instrumentedCommands) Ship(ctx context.Context, actor Actor, orderID, trackingNumber string) (OrderView, error) {
	started := time.Now()
	view, err := i.next.Ship(ctx, actor, orderID, trackingNumber)
	i.metrics.RecordCommand("ship", err, time.Since(started))
	return view, err
}

func (i *instrumentedCommands) Deliver(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := i.next.Deliver(ctx, actor, orderID)
	i.metrics.RecordCommand("deliver", err, time.Since(started))
	return view, err
}

func (i *instrumentedCommands) GetOrder(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := i.next.GetOrder(ctx, actor, orderID)
	i.metrics.RecordCommand("get_order", err, time.Since(started))
	return view, err
}

func (i *instrumentedCommands) ListOrders(ctx context.Context, actor Actor, query ListQuery) (Page[OrderSummary], error) {
	started := time.Now()
	page, err := i.next.ListOrders(ctx, actor, query)
	i.metrics.RecordCommand("list_orders", err, time.Since(started))
	return page, err
}
