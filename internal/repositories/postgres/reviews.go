package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
	"github.com/feast-field/api/internal/repositories"
)

// ReviewRepository persists post-delivery reviews. The reviews table carries
// a unique constraint on (order_id, customer_id), so duplicate submissions
// surface as conflicts even under concurrent writes.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

const reviewColumns = `id, order_id, customer_id, merchant_id, shipper_id,
	order_rating, merchant_rating, shipper_rating, comment, created_at`

func scanReview(row interface{ Scan(dest ...any) error }) (*domain.Review, error) {
	var review domain.Review
	err := row.Scan(
		&review.ID, &review.OrderID, &review.CustomerID, &review.MerchantID, &review.ShipperID,
		&review.OrderRating, &review.MerchantRating, &review.ShipperRating, &review.Comment, &review.CreatedAt,
	)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	return &review, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review *domain.Review) error {
	q := querier(ctx, r.pool)

	const insertReview = `
		INSERT INTO reviews (id, order_id, customer_id, merchant_id, shipper_id,
			order_rating, merchant_rating, shipper_rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := q.Exec(ctx, insertReview,
		review.ID, review.OrderID, review.CustomerID, review.MerchantID, review.ShipperID,
		review.OrderRating, review.MerchantRating, review.ShipperRating, review.Comment, review.CreatedAt,
	)
	if err != nil {
		return pgplatform.MapError(err)
	}

	const insertItem = `
		INSERT INTO menu_item_reviews (id, review_id, order_line_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)`

	for i := range review.Items {
		item := &review.Items[i]
		item.ReviewID = review.ID
		_, err := q.Exec(ctx, insertItem, item.ID, item.ReviewID, item.OrderLineID, item.Rating, item.Comment)
		if err != nil {
			return pgplatform.MapError(err)
		}
	}
	return nil
}

func (r *ReviewRepository) ExistsForOrder(ctx context.Context, orderID, customerID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM reviews WHERE order_id = $1 AND customer_id = $2)`

	var ok bool
	if err := querier(ctx, r.pool).QueryRow(ctx, q, orderID, customerID).Scan(&ok); err != nil {
		return false, pgplatform.MapError(err)
	}
	return ok, nil
}

func (r *ReviewRepository) GetByOrder(ctx context.Context, orderID int64) (*domain.Review, error) {
	const q = `SELECT ` + reviewColumns + ` FROM reviews WHERE order_id = $1`

	review, err := scanReview(querier(ctx, r.pool).QueryRow(ctx, q, orderID))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

func (r *ReviewRepository) ListByMerchant(ctx context.Context, merchantID int64, opts repositories.ListOptions) ([]*domain.Review, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE merchant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := querier(ctx, r.pool).Query(ctx, q, merchantID, limit, opts.Offset)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	var reviews []*domain.Review
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, pgplatform.MapError(err)
	}

	for _, review := range reviews {
		if err := r.loadItems(ctx, review); err != nil {
			return nil, err
		}
	}
	return reviews, nil
}

func (r *ReviewRepository) loadItems(ctx context.Context, review *domain.Review) error {
	const q = `
		SELECT id, review_id, order_line_id, rating, comment
		FROM menu_item_reviews
		WHERE review_id = $1
		ORDER BY id`

	rows, err := querier(ctx, r.pool).Query(ctx, q, review.ID)
	if err != nil {
		return pgplatform.MapError(err)
	}
	defer rows.Close()

	review.Items = nil
	for rows.Next() {
		var item domain.MenuItemReview
		if err := rows.Scan(&item.ID, &item.ReviewID, &item.OrderLineID, &item.Rating, &item.Comment); err != nil {
			return pgplatform.MapError(err)
		}
		review.Items = append(review.Items, item)
	}
	return pgplatform.MapError(rows.Err())
}
