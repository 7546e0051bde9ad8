package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feast-field/api/internal/domain"
	pgplatform "github.com/feast-field/api/internal/platform/postgres"
	"github.com/feast-field/api/internal/repositories"
)

// ComplaintRepository persists complaints and their resolutions.
type ComplaintRepository struct {
	pool *pgxpool.Pool
}

const complaintColumns = `id, order_id, customer_id, type, title, description,
	status, response, handled_by, resolved_at, created_at, updated_at`

func scanComplaint(row interface{ Scan(dest ...any) error }) (*domain.Complaint, error) {
	var c domain.Complaint
	err := row.Scan(
		&c.ID, &c.OrderID, &c.CustomerID, &c.Type, &c.Title, &c.Description,
		&c.Status, &c.Response, &c.HandledBy, &c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	return &c, nil
}

func (r *ComplaintRepository) Insert(ctx context.Context, complaint *domain.Complaint) error {
	const q = `
		INSERT INTO complaints (id, order_id, customer_id, type, title, description,
			status, response, handled_by, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := querier(ctx, r.pool).Exec(ctx, q,
		complaint.ID, complaint.OrderID, complaint.CustomerID, complaint.Type,
		complaint.Title, complaint.Description, complaint.Status, complaint.Response,
		complaint.HandledBy, complaint.ResolvedAt, complaint.CreatedAt, complaint.UpdatedAt,
	)
	return pgplatform.MapError(err)
}

func (r *ComplaintRepository) FindByID(ctx context.Context, id string) (*domain.Complaint, error) {
	const q = `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	return scanComplaint(querier(ctx, r.pool).QueryRow(ctx, q, id))
}

func (r *ComplaintRepository) Update(ctx context.Context, complaint *domain.Complaint) error {
	const q = `
		UPDATE complaints
		SET status = $2, response = $3, handled_by = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1`

	tag, err := querier(ctx, r.pool).Exec(ctx, q,
		complaint.ID, complaint.Status, complaint.Response,
		complaint.HandledBy, complaint.ResolvedAt, complaint.UpdatedAt,
	)
	if err != nil {
		return pgplatform.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return pgplatform.NotFound("complaint", complaint.ID)
	}
	return nil
}

func (r *ComplaintRepository) ListByOrder(ctx context.Context, orderID int64) ([]*domain.Complaint, error) {
	const q = `SELECT ` + complaintColumns + ` FROM complaints WHERE order_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := querier(ctx, r.pool).Query(ctx, q, orderID)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	return collectComplaints(rows)
}

func (r *ComplaintRepository) ListOpen(ctx context.Context, opts repositories.ListOptions) ([]*domain.Complaint, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT ` + complaintColumns + `
		FROM complaints
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`

	rows, err := querier(ctx, r.pool).Query(ctx, q, domain.ComplaintStatusOpen, limit, opts.Offset)
	if err != nil {
		return nil, pgplatform.MapError(err)
	}
	defer rows.Close()

	return collectComplaints(rows)
}

func collectComplaints(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*domain.Complaint, error) {
	var complaints []*domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pgplatform.MapError(err)
	}
	return complaints, nil
}
