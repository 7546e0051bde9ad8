package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
)

// UnitOfWork runs a function inside a single storage transaction. Writes made
// through repositories on the returned context become visible together or not
// at all.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ListOptions bounds paginated listings.
type ListOptions struct {
	Limit  int
	Offset int
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Statuses []domain.OrderStatus
	Limit    int
	Offset   int
}

// MerchantStats aggregates a merchant's recent order activity for the
// dashboard endpoint.
type MerchantStats struct {
	OrdersByStatus map[domain.OrderStatus]int
	DeliveredTotal decimal.Decimal
	SoldOutItems   int
}

// UserRepository reads platform accounts.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
}

// MerchantRepository reads store records and membership.
type MerchantRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Merchant, error)
	// FindByStaff resolves the store a merchant-role user works for, whether
	// as owner or as a registered member.
	FindByStaff(ctx context.Context, userID int64) (*domain.Merchant, error)
	// HasStaff reports whether userID owns or is a member of merchantID.
	HasStaff(ctx context.Context, merchantID, userID int64) (bool, error)
}

// MenuItemRepository manages catalog entries and their stock ledger. Stock
// mutations are expected to run inside a unit of work together with the order
// mutation that caused them.
type MenuItemRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.MenuItem, error)
	ListByMerchant(ctx context.Context, merchantID int64, includeUnavailable bool) ([]*domain.MenuItem, error)
	Insert(ctx context.Context, item *domain.MenuItem) error
	Update(ctx context.Context, item *domain.MenuItem) error
	// DebitStock atomically decrements stock by quantity. It returns an
	// *InsufficientStockError when the item holds fewer units than requested
	// and a not-found repository error when the item does not exist.
	DebitStock(ctx context.Context, id int64, quantity int) error
	// CreditStock atomically increments stock by quantity.
	CreditStock(ctx context.Context, id int64, quantity int) error
	// SetStock overwrites the absolute stock level.
	SetStock(ctx context.Context, id int64, quantity int) error
	CountSoldOut(ctx context.Context, merchantID int64) (int, error)
}

// OrderRepository persists order aggregates. FindByID always hydrates lines.
type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, order *domain.Order) error
	UpdateLine(ctx context.Context, line *domain.OrderLine) error
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID int64, filter OrderFilter) ([]*domain.Order, error)
	ListByMerchant(ctx context.Context, merchantID int64, filter OrderFilter) ([]*domain.Order, error)
	ListByShipper(ctx context.Context, shipperID int64, filter OrderFilter) ([]*domain.Order, error)
	// ListReadyForPickup returns unassigned orders waiting for a shipper.
	ListReadyForPickup(ctx context.Context, opts ListOptions) ([]*domain.Order, error)
	MerchantStats(ctx context.Context, merchantID int64, since time.Time) (*MerchantStats, error)
}

// ReviewRepository persists post-delivery reviews. Insert must fail with a
// conflict when the order already carries a review by the same customer.
type ReviewRepository interface {
	Insert(ctx context.Context, review *domain.Review) error
	ExistsForOrder(ctx context.Context, orderID, customerID int64) (bool, error)
	GetByOrder(ctx context.Context, orderID int64) (*domain.Review, error)
	ListByMerchant(ctx context.Context, merchantID int64, opts ListOptions) ([]*domain.Review, error)
}

// ComplaintRepository persists complaints and their resolutions.
type ComplaintRepository interface {
	Insert(ctx context.Context, complaint *domain.Complaint) error
	FindByID(ctx context.Context, id string) (*domain.Complaint, error)
	Update(ctx context.Context, complaint *domain.Complaint) error
	ListByOrder(ctx context.Context, orderID int64) ([]*domain.Complaint, error)
	ListOpen(ctx context.Context, opts ListOptions) ([]*domain.Complaint, error)
}

// PaymentRepository records the append-only payment transaction log.
type PaymentRepository interface {
	InsertTransaction(ctx context.Context, tx *domain.PaymentTransaction) error
	ListByOrder(ctx context.Context, orderID int64) ([]*domain.PaymentTransaction, error)
}
