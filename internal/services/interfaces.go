package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
)

// Actor identifies the authenticated caller of a service operation. Services
// enforce ownership and role guards with it rather than trusting handlers.
type Actor struct {
	UserID int64
	Role   domain.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// InventoryService is the stock ledger. All mutations run against the
// transaction bound to the context, so a caller can pair them with an order
// transition atomically.
type InventoryService interface {
	Debit(ctx context.Context, itemID int64, quantity int) error
	Credit(ctx context.Context, itemID int64, quantity int) error
	Set(ctx context.Context, itemID int64, quantity int) error
	ListMenu(ctx context.Context, merchantID int64, includeUnavailable bool) ([]*domain.MenuItem, error)
	// MerchantMenu lists the acting staff member's own store, including
	// unavailable items.
	MerchantMenu(ctx context.Context, actor Actor) ([]*domain.MenuItem, error)
	UpdateStock(ctx context.Context, cmd UpdateStockCommand) (*domain.MenuItem, error)
}

// OrderService covers the order lifecycle from checkout to terminal state,
// including shortage resolution and the merchant dashboard aggregation.
type OrderService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID int64, actor Actor) (*domain.Order, error)
	ListCustomerOrders(ctx context.Context, actor Actor, opts ListOrdersOptions) ([]*domain.Order, error)
	ListMerchantOrders(ctx context.Context, actor Actor, opts ListOrdersOptions) ([]*domain.Order, error)
	ListShipperOrders(ctx context.Context, actor Actor, opts ListOrdersOptions) ([]*domain.Order, error)
	Confirm(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error)
	MarkReady(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error)
	Pickup(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error)
	Deliver(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error)
	OverrideStatus(ctx context.Context, cmd OverrideStatusCommand) (*domain.Order, error)
	ResolveShortage(ctx context.Context, cmd ShortageCommand) (*ShortageResult, error)
	MerchantDashboard(ctx context.Context, actor Actor) (*MerchantDashboard, error)
}

// PaymentService tracks settlement state for orders.
type PaymentService interface {
	MarkPaid(ctx context.Context, cmd MarkPaidCommand) (*domain.PaymentTransaction, error)
	Refund(ctx context.Context, cmd RefundCommand) (*domain.PaymentTransaction, error)
	ListTransactions(ctx context.Context, orderID int64, actor Actor) ([]*domain.PaymentTransaction, error)
}

// ReviewService handles post-delivery reviews.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (*domain.Review, error)
	GetByOrder(ctx context.Context, orderID int64, actor Actor) (*domain.Review, error)
	// ListForMerchant returns the reviews left on the acting staff member's
	// store, newest first.
	ListForMerchant(ctx context.Context, actor Actor, opts ListOptions) ([]*domain.Review, error)
}

// ComplaintService handles complaints and merchant/admin resolutions.
type ComplaintService interface {
	Create(ctx context.Context, cmd CreateComplaintCommand) (*domain.Complaint, error)
	Respond(ctx context.Context, cmd RespondComplaintCommand) (*domain.Complaint, error)
	ListByOrder(ctx context.Context, orderID int64, actor Actor) ([]*domain.Complaint, error)
	// ListOpen returns the unresolved complaint queue. Admin only.
	ListOpen(ctx context.Context, actor Actor, opts ListOptions) ([]*domain.Complaint, error)
}

// ListOptions pages a plain listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// CheckoutItem is one requested product line at checkout.
type CheckoutItem struct {
	MenuItemID int64
	Quantity   int
}

// CheckoutCommand creates a PENDING order for the acting customer.
type CheckoutCommand struct {
	Actor           Actor
	MerchantID      int64
	DeliveryAddress string
	Note            string
	Items           []CheckoutItem
}

// ListOrdersOptions narrows order listings.
type ListOrdersOptions struct {
	Statuses []domain.OrderStatus
	Limit    int
	Offset   int
}

// OrderActionCommand drives a guarded status transition.
type OrderActionCommand struct {
	OrderID int64
	Actor   Actor
}

// CancelOrderCommand cancels an order from PENDING or CONFIRMED.
type CancelOrderCommand struct {
	OrderID int64
	Actor   Actor
	Reason  string
}

// OverrideStatusCommand is the admin escape hatch that bypasses the
// transition table.
type OverrideStatusCommand struct {
	OrderID int64
	Actor   Actor
	Status  domain.OrderStatus
	Reason  string
}

// ShortageAction selects a shortage resolution strategy.
type ShortageAction string

const (
	ShortageActionSubstitute ShortageAction = "SUBSTITUTE"
	ShortageActionReduce     ShortageAction = "REDUCE"
	ShortageActionCancel     ShortageAction = "CANCEL"
)

// ShortageSubstitution swaps one order line to a replacement product.
type ShortageSubstitution struct {
	LineID     int64
	MenuItemID int64
}

// ShortageReduction lowers one order line's quantity.
type ShortageReduction struct {
	LineID   int64
	Quantity int
}

// ShortageCommand applies one resolution action to a confirmed order.
type ShortageCommand struct {
	OrderID       int64
	Actor         Actor
	Action        ShortageAction
	Substitutions []ShortageSubstitution
	Reductions    []ShortageReduction
	Reason        string
}

// SkippedLine reports a shortage entry that could not be applied.
type SkippedLine struct {
	LineID int64
	Reason string
}

// ShortageResult carries the updated order plus every entry that was skipped
// rather than applied.
type ShortageResult struct {
	Order   *domain.Order
	Skipped []SkippedLine
}

// MerchantDashboard aggregates a store's activity since midnight.
type MerchantDashboard struct {
	MerchantID     int64
	OrdersByStatus map[domain.OrderStatus]int
	Revenue        decimal.Decimal
	SoldOutItems   int
	RecentOrders   []*domain.Order
}

// UpdateStockCommand overwrites a menu item's stock level.
type UpdateStockCommand struct {
	MenuItemID int64
	Actor      Actor
	Stock      int
}

// MarkPaidCommand settles an unpaid order.
type MarkPaidCommand struct {
	OrderID     int64
	Actor       Actor
	Method      domain.PaymentMethod
	ExternalRef string
}

// RefundCommand refunds a paid order. A nil amount refunds the full total;
// any amount above the total is clamped to it.
type RefundCommand struct {
	OrderID int64
	Actor   Actor
	Amount  *decimal.Decimal
	Reason  string
}

// ReviewItemInput rates one order line.
type ReviewItemInput struct {
	OrderLineID int64
	Rating      int
	Comment     string
}

// CreateReviewCommand files a review for a delivered order.
type CreateReviewCommand struct {
	OrderID        int64
	Actor          Actor
	OrderRating    int
	MerchantRating int
	ShipperRating  *int
	Comment        string
	Items          []ReviewItemInput
}

// CreateComplaintCommand files a complaint against an order.
type CreateComplaintCommand struct {
	OrderID     int64
	Actor       Actor
	Type        string
	Title       string
	Description string
}

// RespondComplaintCommand resolves or rejects an open complaint.
type RespondComplaintCommand struct {
	ComplaintID string
	Actor       Actor
	Status      domain.ComplaintStatus
	Response    string
}
