package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
	"github.com/feast-field/api/internal/repositories"
)

// MenuItemRepository manages catalog entries and the stock ledger.
type MenuItemRepository struct {
	pool *pgxpool.Pool
}

const menuItemColumns = `id, merchant_id, name, price::text, stock, is_available, created_at, updated_at`

func scanMenuItem(row interface{ Scan(dest ...any) error }) (*domain.MenuItem, error) {
	var (
		item  domain.MenuItem
		price string
	)
	err := row.Scan(&item.ID, &item.MerchantID, &item.Name, &price, &item.Stock, &item.IsAvailable, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	item.Price, err = parseAmount(price)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *MenuItemRepository) FindByID(ctx context.Context, id int64) (*domain.MenuItem, error) {
	const q = `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1`
	return scanMenuItem(querier(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *MenuItemRepository) ListByMerchant(ctx context.Context, merchantID int64, includeUnavailable bool) ([]*domain.MenuItem, error) {
	q := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE merchant_id = $1`
	if !includeUnavailable {
		q += ` AND is_available`
	}
	q += ` ORDER BY name, id`

	rows, err := querier(ctx, r.pool).Query(ctx, q, merchantID)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	var items []*domain.MenuItem
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, pgplatform.MapError(err)
	}
	return items, nil
}

func (r *MenuItemRepository) Insert(ctx context.Context, item *domain.MenuItem) error {
	const q = `
		INSERT INTO menu_items (merchant_id, name, price, stock, is_available, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING id`

	err := querier(ctx, r.pool).QueryRow(ctx, q,
		item.MerchantID, item.Name, item.Price.StringFixed(2), item.Stock, item.IsAvailable,
		item.CreatedAt, item.UpdatedAt,
	).Scan(&item.ID)
	return pgplatform.MapError(err)
}

func (r *MenuItemRepository) Update(ctx context.Context, item *domain.MenuItem) error {
	const q = `
		UPDATE menu_items
		SET name = $2, price = $3::numeric, is_available = $4, updated_at = $5
		WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, q,
		item.ID, item.Name, item.Price.StringFixed(2), item.IsAvailable, item.UpdatedAt,
	)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgplatform.NotFound("menu item", item.ID)
	}
	return nil
}

// DebitStock locks the item row, checks the balance, and decrements it. The
// caller is expected to run it inside a transaction so the row lock covers
// the whole order confirmation.
func (r *MenuItemRepository) DebitStock(ctx context.Context, id int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("debit quantity must be positive, got %d", quantity)
	}
	q := querier(ctx, r.pool)

	var available int
	err := q.QueryRow(ctx, `SELECT stock FROM menu_items WHERE id = $1 FOR UPDATE`, id).Scan(&available)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if available < quantity {
		return &repositories.InsufficientStockError{MenuItemID: id, Requested: quantity, Available: available}
	}

	_, err = q.Exec(ctx, `UPDATE menu_items SET stock = stock - $2, updated_at = now() WHERE id = $1`, id, quantity)
	return pgplatform.MapError(err)
}

func (r *MenuItemRepository) CreditStock(ctx context.Context, id int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("credit quantity must be positive, got %d", quantity)
	}

	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE menu_items SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, quantity)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgplatform.NotFound("menu item", id)
	}
	return nil
}

func (r *MenuItemRepository) SetStock(ctx context.Context, id int64, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("stock level must be non-negative, got %d", quantity)
	}

	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE menu_items SET stock = $2, updated_at = now() WHERE id = $1`, id, quantity)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgplatform.NotFound("menu item", id)
	}
	return nil
}

func (r *MenuItemRepository) CountSoldOut(ctx context.Context, merchantID int64) (int, error) {
	const q = `SELECT count(*) FROM menu_items WHERE merchant_id = $1 AND is_available AND stock = 0`

	var n int
	if err := querier(ctx, r.pool).QueryRow(ctx, q, merchantID).Scan(&n); err != nil {
		return 0, pgplatform.MapError(err)
	}
	return n, nil
}
