package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/service/outbox"
)

const (
	uniqueViolationCode       = "23505"
	idempotencyConstraintName = "orders_idempotency_key_user_id_uidx"
)

// OrderRepository — PostgreSQL-реализация domain.OrderRepository.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository создаёт репозиторий заказов.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{db: store.db}
}

// Save пишет агрегаты, их позиции и строки outbox в одной транзакции.
func (r *OrderRepository) Save(ctx context.Context, orders ...*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	sources := make([]domain.EventSource, 0, len(orders))
	for _, order := range orders {
		if order == nil {
			return fmt.Errorf("save order: nil aggregate")
		}
		sources = append(sources, order)
	}
	messages, err := outbox.Capture(sources...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	versions := make([]int64, len(orders))
	for i, order := range orders {
		if versions[i], err = r.writeOrder(ctx, tx, order); err != nil {
			return err
		}
	}
	for _, msg := range messages {
		if err := insertOutboxMessage(ctx, tx, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save orders: %w", err)
	}

	for i, order := range orders {
		order.MarkCommitted(versions[i])
	}
	return nil
}

func (r *OrderRepository) writeOrder(ctx context.Context, tx *sqlx.Tx, order *domain.Order) (int64, error) {
	row := toOrderRow(order.Snapshot())

	if order.IsNew() {
		row.Version = 1
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (
			:id, :user_id, :idempotency_key, :status, :payment_status,
			:shipping_street, :shipping_city, :shipping_district, :shipping_postal_code, :shipping_country,
			:shipping_building_number, :shipping_apartment_number,
			:billing_street, :billing_city, :billing_district, :billing_postal_code, :billing_country,
			:billing_building_number, :billing_apartment_number,
			:subtotal, :shipping_cost, :total_amount, :currency, :notes, :tracking_number,
			:created_at, :updated_at, :shipped_at, :delivered_at, :cancelled_at, :version
		)`, row); err != nil {
			return 0, mapWriteError(order.ID(), err)
		}
	} else {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE orders SET
				status = :status,
				payment_status = :payment_status,
				billing_street = :billing_street,
				billing_city = :billing_city,
				billing_district = :billing_district,
				billing_postal_code = :billing_postal_code,
				billing_country = :billing_country,
				billing_building_number = :billing_building_number,
				billing_apartment_number = :billing_apartment_number,
				subtotal = :subtotal,
				shipping_cost = :shipping_cost,
				total_amount = :total_amount,
				notes = :notes,
				tracking_number = :tracking_number,
				updated_at = :updated_at,
				shipped_at = :shipped_at,
				delivered_at = :delivered_at,
				cancelled_at = :cancelled_at,
				version = version + 1
			WHERE id = :id AND version = :version`, row)
		if err != nil {
			return 0, mapWriteError(order.ID(), err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID()); err != nil {
				return 0, fmt.Errorf("check order exists: %w", err)
			}
			if !exists {
				return 0, fmt.Errorf("update order %s: %w", order.ID(), domain.ErrOrderNotFound)
			}
			return 0, fmt.Errorf("update order %s (version %d): %w", order.ID(), order.Version(), domain.ErrOrderVersionConflict)
		}
		row.Version++

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID()); err != nil {
			return 0, fmt.Errorf("delete order items: %w", err)
		}
	}

	items := toItemRows(order.Snapshot())
	if len(items) > 0 {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, product_name, product_image_url,
				quantity, unit_price, total_price, currency, position
			) VALUES (
				:id, :order_id, :product_id, :product_name, :product_image_url,
				:quantity, :unit_price, :total_price, :currency, :position
			)`, items); err != nil {
			return 0, fmt.Errorf("insert order items: %w", err)
		}
	}
	return row.Version, nil
}

// Get возвращает заказ или ErrOrderNotFound.
func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row orderRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id::text = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	orders, err := r.hydrate(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

// FindByIdempotencyKey ищет заказ пользователя по ключу идемпотентности.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	scope, ok := domain.NewIdempotencyScope(userID, key)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row orderRow
	if err := r.db.GetContext(ctx, &row, `
		SELECT `+orderColumns+` FROM orders
		WHERE idempotency_key = $1 AND user_id = $2`, scope.Key, scope.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order by idempotency key: %w", err)
	}

	orders, err := r.hydrate(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return orders[0], nil
}

// List возвращает страницу заказов, новые первыми, и общее число совпадений.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC`
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	if len(rows) == 0 {
		return []*domain.Order{}, total, nil
	}

	orders, err := r.hydrate(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// hydrate загружает позиции одним запросом и восстанавливает агрегаты.
func (r *OrderRepository) hydrate(ctx context.Context, rows []orderRow) ([]*domain.Order, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	query, args, err := sqlx.In(`
		SELECT id, order_id, product_id, product_name, product_image_url,
		       quantity, unit_price, total_price, currency, position
		FROM order_items
		WHERE order_id::text IN (?)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("build order items query: %w", err)
	}

	var items []orderItemRow
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	byOrder := make(map[string][]orderItemRow, len(rows))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		snapshot, err := row.snapshot(byOrder[row.ID])
		if err != nil {
			return nil, fmt.Errorf("decode order %s: %w", row.ID, err)
		}
		order, err := domain.RestoreOrder(snapshot)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func mapWriteError(orderID string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		if pgErr.ConstraintName == idempotencyConstraintName {
			return fmt.Errorf("save order %s: %w", orderID, domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("insert order %s: %w", orderID, domain.ErrOrderVersionConflict)
	}
	return fmt.Errorf("write order %s: %w", orderID, err)
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
