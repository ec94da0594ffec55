package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

type loggingCommands struct {
	next   Commands
	logger *log.Entry
}

// NewLoggingCommands логирует каждую команду с длительностью и видом ошибки.
func NewLoggingCommands(next Commands, logger *log.Entry) Commands {
	if logger == nil {
		logger = log.WithField("component", "order-commands")
	}
	return &loggingCommands{next: next, logger: logger}
}

func (l *loggingCommands) done(command string, started time.Time, fields log.Fields, err error) {
	entry := l.logger.WithFields(fields).WithFields(log.Fields{
		"command":     command,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if err == nil {
		entry.Info("order command completed")
		return
	}

	kind := domain.KindOf(err)
	entry = entry.WithError(err).WithField("kind", kind)
	switch kind {
	case domain.KindTransient, domain.KindInternal:
		entry.Error("order command failed")
	default:
		entry.Warn("order command rejected")
	}
}

func (l *loggingCommands) CreateOrder(ctx context.Context, actor Actor, cmd CreateOrderCommand) (CreateOrderResult, error) {
	started := time.Now()
	res, err := l.next.CreateOrder(ctx, actor, cmd)
	fields := log.Fields{"user_id": actor.UserID, "items": len(cmd.Items)}
	if err == nil {
		fields["order_id"] = res.Order.ID
		fields["replayed"] = res.Replayed
	}
	l.done("create_order", started, fields, err)
	return res, err
}

func (l *loggingCommands) CancelOrder(ctx context.Context, actor Actor, cmd CancelOrderCommand) (OrderView, error) {
	started := time.Now()
	view, err := l.next.CancelOrder(ctx, actor, cmd)
	l.done("cancel_order", started, log.Fields{"user_id": actor.UserID, "order_id": cmd.OrderID}, err)
	return view, err
}

func (l *loggingCommands) MarkProcessing(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := l.next.MarkProcessing(ctx, actor, orderID)
	l.done("mark_processing", started, log.Fields{"user_id": actor.UserID, "order_id": orderID}, err)
	return view, err
}

func (l *loggingCommands) CompletePayment(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := l.next.CompletePayment(ctx, actor, orderID)
	l.done("complete_payment", started, log.Fields{"user_id": actor.UserID, "order_id": orderID}, err)
	return view, err
}

func (l *loggingCommands) FailPayment(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := l.next.FailPayment(ctx, actor, orderID)
	l.done("fail_payment", started, log.Fields{"user_id": actor.UserID, "order_id": orderID}, err)
	return view, err
}

func (l *loggingCommands) Ship(ctx context.Context, actor Actor, orderID, trackingNumber string) (OrderView, error) {
	started := time.Now()
	view, err := l.next.Ship(ctx, actor, orderID, trackingNumber)
	l.done("ship", started, log.Fields{"user_id": actor.UserID, "order_id": orderID, "tracking_number": trackingNumber}, err)
	return view, err
}

func (l *loggingCommands) Deliver(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	started := time.Now()
	view, err := l.next.Deliver(ctx, actor, orderID)
	l.done("deliver", started, log.Fields{"user_id": actor.UserID, "order_id": orderID}, err)
	return view, err
}

// Запросы логируются только на debug.
func (l *loggingCommands) GetOrder(ctx context.Context, actor Actor, orderID string) (OrderView, error) {
	view, err := l.next.GetOrder(ctx, actor, orderID)
	if err != nil {
		l.logger.WithError(err).WithFields(log.Fields{"user_id": actor.UserID, "order_id": orderID}).Debug("get order failed")
	}
	return view, err
}

func (l *loggingCommands) ListOrders(ctx context.Context, actor Actor, query ListQuery) (Page[OrderSummary], error) {
	page, err := l.next.ListOrders(ctx, actor, query)
	if err != nil {
		l.logger.WithError(err).WithField("user_id", actor.UserID).Debug("list orders failed")
	}
	return page, err
}
