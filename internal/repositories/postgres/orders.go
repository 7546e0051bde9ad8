package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
	"github.com/feast-field/api/internal/repositories"
)

// OrderRepository persists order aggregates and their lines.
type OrderRepository struct {
	pool *pgxpool.Pool
}

const orderColumns = `o.id, o.customer_id, o.merchant_id, o.shipper_id, o.status, o.payment_status,
	o.delivery_address, o.note, o.total_amount::text, o.created_at, o.updated_at,
	m.name, u.username`

const orderFrom = ` FROM orders o
	JOIN merchants m ON m.id = o.merchant_id
	LEFT JOIN users u ON u.id = o.shipper_id`

func scanOrder(row interface{ Scan(dest ...any) error }) (*domain.Order, error) {
	var (
		order domain.Order
		total string
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.MerchantID, &order.ShipperID,
		&order.Status, &order.PaymentStatus, &order.DeliveryAddress, &order.Note,
		&total, &order.CreatedAt, &order.UpdatedAt,
		&order.MerchantName, &order.ShipperUsername,
	)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	order.TotalAmount, err = parseAmount(total)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	q := querier(ctx, r.pool)

	const insertOrder = `
		INSERT INTO orders (customer_id, merchant_id, status, payment_status,
			delivery_address, note, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
		RETURNING id`

	err := q.QueryRow(ctx, insertOrder,
		order.CustomerID, order.MerchantID, order.Status, order.PaymentStatus,
		order.DeliveryAddress, order.Note, order.TotalAmount.StringFixed(2),
		order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return pgplatform.MapError(err)
	}

	const insertLine = `
		INSERT INTO order_lines (order_id, menu_item_id, name_snapshot, price_snapshot, quantity, line_total)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric)
		RETURNING id`

	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		err := q.QueryRow(ctx, insertLine,
			line.OrderID, line.MenuItemID, line.NameSnapshot,
			line.PriceSnapshot.StringFixed(2), line.Quantity, line.LineTotal.StringFixed(2),
		).Scan(&line.ID)
		if err != nil {
			return pgplatform.MapError(err)
		}
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	const q = `
		UPDATE orders
		SET shipper_id = $2, status = $3, payment_status = $4,
			total_amount = $5::numeric, updated_at = $6
		WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, q,
		order.ID, order.ShipperID, order.Status, order.PaymentStatus,
		order.TotalAmount.StringFixed(2), order.UpdatedAt,
	)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgplatform.NotFound("order", order.ID)
	}
	return nil
}

func (r *OrderRepository) UpdateLine(ctx context.Context, line *domain.OrderLine) error {
	const q = `
		UPDATE order_lines
		SET menu_item_id = $2, name_snapshot = $3, price_snapshot = $4::numeric,
			quantity = $5, line_total = $6::numeric
		WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, q,
		line.ID, line.MenuItemID, line.NameSnapshot,
		line.PriceSnapshot.StringFixed(2), line.Quantity, line.LineTotal.StringFixed(2),
	)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgplatform.NotFound("order line", line.ID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	const q = `SELECT ` + orderColumns + orderFrom + ` WHERE o.id = $1`

	order, err := scanOrder(querier(ctx, r.pool).QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64, filter repositories.OrderFilter) ([]*domain.Order, error) {
	return r.list(ctx, `o.customer_id = $1`, []any{customerID}, filter)
}

func (r *OrderRepository) ListByMerchant(ctx context.Context, merchantID int64, filter repositories.OrderFilter) ([]*domain.Order, error) {
	return r.list(ctx, `o.merchant_id = $1`, []any{merchantID}, filter)
}

func (r *OrderRepository) ListByShipper(ctx context.Context, shipperID int64, filter repositories.OrderFilter) ([]*domain.Order, error) {
	return r.list(ctx, `o.shipper_id = $1`, []any{shipperID}, filter)
}

func (r *OrderRepository) ListReadyForPickup(ctx context.Context, opts repositories.ListOptions) ([]*domain.Order, error) {
	filter := repositories.OrderFilter{
		Statuses: []domain.OrderStatus{domain.OrderStatusReadyForPickup},
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	return r.list(ctx, `o.shipper_id IS NULL`, nil, filter)
}

func (r *OrderRepository) list(ctx context.Context, where string, args []any, filter repositories.OrderFilter) ([]*domain.Order, error) {
	conditions := []string{where}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			args = append(args, status)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("o.status IN (%s)", strings.Join(placeholders, ", ")))
	}

	q := `SELECT ` + orderColumns + orderFrom + ` WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY o.created_at DESC, o.id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	q += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := querier(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, pgplatform.MapError(err)
	}

	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, order := range orders {
		order.Lines = nil
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	const q = `
		SELECT id, order_id, menu_item_id, name_snapshot, price_snapshot::text, quantity, line_total::text
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`

	rows, err := querier(ctx, r.pool).Query(ctx, q, ids)
	if err != nil {
		return pgplatform.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line         domain.OrderLine
			price, total string
		)
		err := rows.Scan(&line.ID, &line.OrderID, &line.MenuItemID, &line.NameSnapshot, &price, &line.Quantity, &total)
		if err != nil {
			return pgplatform.MapError(err)
		}
		if line.PriceSnapshot, err = parseAmount(price); err != nil {
			return err
		}
		if line.LineTotal, err = parseAmount(total); err != nil {
			return err
		}
		if order, ok := byID[line.OrderID]; ok {
			order.Lines = append(order.Lines, line)
		}
	}
	return pgplatform.MapError(rows.Err())
}

func (r *OrderRepository) MerchantStats(ctx context.Context, merchantID int64, since time.Time) (*repositories.MerchantStats, error) {
	q := querier(ctx, r.pool)
	stats := &repositories.MerchantStats{
		OrdersByStatus: make(map[domain.OrderStatus]int),
		DeliveredTotal: decimal.Zero,
	}

	const countQ = `
		SELECT status, count(*)
		FROM orders
		WHERE merchant_id = $1 AND created_at >= $2
		GROUP BY status`

	rows, err := q.Query(ctx, countQ, merchantID, since)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status domain.OrderStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, pgplatform.MapError(err)
		}
		stats.OrdersByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, pgplatform.MapError(err)
	}

	const revenueQ = `
		SELECT COALESCE(sum(total_amount), 0)::text
		FROM orders
		WHERE merchant_id = $1 AND created_at >= $2 AND status = $3`

	var revenue string
	err = q.QueryRow(ctx, revenueQ, merchantID, since, domain.OrderStatusDelivered).Scan(&revenue)
	if err != nil && err != pgx.ErrNoRows {
		return nil, pgplatform.MapError(err)
	}
	if revenue != "" {
		if stats.DeliveredTotal, err = parseAmount(revenue); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
