// Package postgres implements the repository contracts on PostgreSQL using
// pgx. All repositories pick up an in-flight transaction from the context
// when the caller runs them under the unit of work.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	pgplatform "github.com/feast-field/api/internal/platform/postgres"
)

// Repositories bundles every repository implementation over one pool.
type Repositories struct {
	Users      *UserRepository
	Merchants  *MerchantRepository
	MenuItems  *MenuItemRepository
	Orders     *OrderRepository
	Reviews    *ReviewRepository
	Complaints *ComplaintRepository
	Payments   *PaymentRepository
	UnitOfWork *pgplatform.Runner
}

// New wires all repositories to the shared connection pool.
func New(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:      &UserRepository{pool: pool},
		Merchants:  &MerchantRepository{pool: pool},
		MenuItems:  &MenuItemRepository{pool: pool},
		Orders:     &OrderRepository{pool: pool},
		Reviews:    &ReviewRepository{pool: pool},
		Complaints: &ComplaintRepository{pool: pool},
		Payments:   &PaymentRepository{pool: pool},
		UnitOfWork: pgplatform.NewRunner(pool),
	}
}

func querier(ctx context.Context, pool *pgxpool.Pool) pgplatform.Querier {
	return pgplatform.QuerierFor(ctx, pool)
}

// parseAmount converts a NUMERIC column scanned as text into a decimal.
func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return amount, nil
}
