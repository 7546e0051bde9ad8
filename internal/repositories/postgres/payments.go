package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
)

// PaymentRepository records the append-only payment transaction log.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func (r *PaymentRepository) InsertTransaction(ctx context.Context, tx *domain.PaymentTransaction) error {
	const q = `
		INSERT INTO payment_transactions (id, order_id, method, status, amount, external_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)`

	_, err := querier(ctx, r.pool).Exec(ctx, q,
		tx.ID, tx.OrderID, tx.Method, tx.Status, tx.Amount.StringFixed(2),
		tx.ExternalRef, tx.CreatedAt, tx.UpdatedAt,
	)
	return pgplatform.MapError(err)
}

func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID int64) ([]*domain.PaymentTransaction, error) {
	const q = `
		SELECT id, order_id, method, status, amount::text, external_ref, created_at, updated_at
		FROM payment_transactions
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := querier(ctx, r.pool).Query(ctx, q, orderID)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	var txs []*domain.PaymentTransaction
	for rows.Next() {
		var (
			tx     domain.PaymentTransaction
			amount string
		)
		err := rows.Scan(&tx.ID, &tx.OrderID, &tx.Method, &tx.Status, &amount, &tx.ExternalRef, &tx.CreatedAt, &tx.UpdatedAt)
		if err != nil {
			return nil, pgplatform.MapError(err)
		}
		if tx.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, pgplatform.MapError(err)
	}
	return txs, nil
}
