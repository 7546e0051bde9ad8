package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
)

// MerchantRepository reads store records and staff membership.
type MerchantRepository struct {
	pool *pgxpool.Pool
}

const merchantColumns = `id, owner_id, name, address, phone, is_active, created_at`

func scanMerchant(row interface{ Scan(dest ...any) error }) (*domain.Merchant, error) {
	var m domain.Merchant
	err := row.Scan(&m.ID, &m.OwnerID, &m.Name, &m.Address, &m.Phone, &m.IsActive, &m.CreatedAt)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	return &m, nil
}

func (r *MerchantRepository) FindByID(ctx context.Context, id int64) (*domain.Merchant, error) {
	const q = `SELECT ` + merchantColumns + ` FROM merchants WHERE id = $1`
	return scanMerchant(querier(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *MerchantRepository) FindByStaff(ctx context.Context, userID int64) (*domain.Merchant, error) {
	const q = `
		SELECT ` + merchantColumns + `
		FROM merchants m
		WHERE m.owner_id = $1
		   OR EXISTS (
			SELECT 1 FROM merchant_members mm
			WHERE mm.merchant_id = m.id AND mm.user_id = $1
		   )
		ORDER BY m.id
		LIMIT 1`
	return scanMerchant(querier(ctx, r.pool).QueryRow(ctx, q, userID))
}

func (r *MerchantRepository) HasStaff(ctx context.Context, merchantID, userID int64) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM merchants WHERE id = $1 AND owner_id = $2
		) OR EXISTS (
			SELECT 1 FROM merchant_members WHERE merchant_id = $1 AND user_id = $2
		)`

	var ok bool
	if err := querier(ctx, r.pool).QueryRow(ctx, q, merchantID, userID).Scan(&ok); err != nil {
		return false, pgplatform.MapError(err)
	}
	return ok, nil
}
