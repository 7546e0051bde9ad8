package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
)

// UserRepository reads platform accounts.
type UserRepository struct {
	pool *pgxpool.Pool
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `
		SELECT id, username, role, is_active
		FROM users
		WHERE id = $1`

	var user domain.User
	err := querier(ctx, r.pool).QueryRow(ctx, q, id).Scan(&user.ID, &user.Username, &user.Role, &user.Active)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	return &user, nil
}
