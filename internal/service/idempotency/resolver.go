package idempotency

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
)

// OrderFinder покрывает часть хранилища заказов, нужную резолверу.
type OrderFinder interface {
	FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error)
}

// Resolver отвечает на вопрос «этот запрос уже выполнялся?». Ключ действует
// в пределах пользователя, срока жизни у него нет.
type Resolver struct {
	orders OrderFinder
	logger *log.Entry
}

// NewResolver создаёт резолвер поверх хранилища заказов.
func NewResolver(orders OrderFinder, logger *log.Entry) *Resolver {
	if logger == nil {
		logger = log.WithField("component", "idempotency-resolver")
	}
	return &Resolver{orders: orders, logger: logger}
}

// Resolve возвращает ранее созданный заказ для (userID, key). Пустой ключ
// и отсутствие заказа дают (nil, nil).
func (r *Resolver) Resolve(ctx context.Context, userID, key string) (*domain.Order, error) {
	scope, ok := domain.NewIdempotencyScope(userID, key)
	if !ok {
		return nil, nil
	}

	order, err := r.orders.FindByIdempotencyKey(ctx, scope.UserID, scope.Key)
	switch {
	case err == nil:
		r.logger.WithFields(log.Fields{
			"user_id":  scope.UserID,
			"order_id": order.ID(),
		}).Debug("idempotency key resolved to existing order")
		return order, nil
	case errors.Is(err, domain.ErrOrderNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("resolve idempotency key: %w", err)
	}
}

// Recover обрабатывает ошибку сохранения. Если проиграна гонка за уникальный
// ключ, возвращается заказ победителя; иначе исходная ошибка без изменений.
func (r *Resolver) Recover(ctx context.Context, userID, key string, saveErr error) (*domain.Order, error) {
	if !domain.IsDuplicateIdempotencyKey(saveErr) {
		return nil, saveErr
	}

	winner, err := r.Resolve(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("duplicate idempotency key without stored order: %w", saveErr)
	}

	r.logger.WithFields(log.Fields{
		"user_id":  userID,
		"order_id": winner.ID(),
	}).Info("concurrent create replayed from idempotency key")
	return winner, nil
}
