package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role enumerates the actor roles recognised across the API. Every operation
// receives the caller's role through the authenticated identity instead of
// discovering it from loosely typed profile data.
type Role string

const (
	// RoleCustomer places orders and files reviews/complaints.
	RoleCustomer Role = "customer"
	// RoleMerchant manages a store's menu, stock and incoming orders.
	RoleMerchant Role = "merchant"
	// RoleShipper picks up and delivers confirmed orders.
	RoleShipper Role = "shipper"
	// RoleAdmin may perform any operation, including the manual status override.
	RoleAdmin Role = "admin"
)

// OrderStatus describes the lifecycle states an order moves through.
type OrderStatus string

const (
	// OrderStatusPending is the initial state after checkout; no stock has been debited yet.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed means the merchant accepted the order and stock was debited.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusReadyForPickup means the food is prepared and waiting for a shipper.
	OrderStatusReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	// OrderStatusDelivering means a shipper took the order.
	OrderStatusDelivering OrderStatus = "DELIVERING"
	// OrderStatusDelivered is terminal; reviews become possible.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCanceled is terminal; failed or returned deliveries fold into it.
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// Valid reports whether s is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusReadyForPickup,
		OrderStatusDelivering, OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// PaymentStatus tracks settlement at order granularity. Partial and full
// refunds collapse to REFUNDED; the refunded amount survives on the
// PaymentTransaction row.
type PaymentStatus string

const (
	// PaymentStatusUnpaid is the initial payment state.
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	// PaymentStatusPaid means settlement succeeded.
	PaymentStatusPaid PaymentStatus = "PAID"
	// PaymentStatusRefunded means a refund (partial or full) was issued.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod enumerates how an order was settled.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery.
	PaymentMethodCOD PaymentMethod = "COD"
	// PaymentMethodCash is direct cash payment.
	PaymentMethodCash PaymentMethod = "CASH"
	// PaymentMethodTransfer is a bank transfer.
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	// PaymentMethodGateway is an external payment gateway.
	PaymentMethodGateway PaymentMethod = "GATEWAY"
)

// Valid reports whether m is a recognised settlement method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCash, PaymentMethodTransfer, PaymentMethodGateway:
		return true
	}
	return false
}

// PaymentTransactionStatus describes a single settlement movement.
type PaymentTransactionStatus string

const (
	// PaymentTransactionPending awaits settlement.
	PaymentTransactionPending PaymentTransactionStatus = "PENDING"
	// PaymentTransactionSuccess settled successfully.
	PaymentTransactionSuccess PaymentTransactionStatus = "SUCCESS"
	// PaymentTransactionFailed did not settle.
	PaymentTransactionFailed PaymentTransactionStatus = "FAILED"
	// PaymentTransactionRefunded records money returned to the customer.
	PaymentTransactionRefunded PaymentTransactionStatus = "REFUNDED"
)

// ComplaintStatus tracks complaint handling.
type ComplaintStatus string

const (
	// ComplaintStatusOpen awaits a merchant or admin response.
	ComplaintStatusOpen ComplaintStatus = "OPEN"
	// ComplaintStatusResolved was closed in the customer's favour.
	ComplaintStatusResolved ComplaintStatus = "RESOLVED"
	// ComplaintStatusRejected was closed without remedy.
	ComplaintStatusRejected ComplaintStatus = "REJECTED"
)

// User is the minimal projection of the external identity provider's account
// record that order processing needs.
type User struct {
	ID       int64
	Username string
	Role     Role
	Active   bool
}

// Merchant represents one store accepting orders.
type Merchant struct {
	ID        int64
	OwnerID   int64
	Name      string
	Address   string
	Phone     string
	IsActive  bool
	CreatedAt time.Time
}

// MenuItem is a catalog product with its live stock count. Stock is only ever
// mutated through the inventory ledger inside an active transaction.
type MenuItem struct {
	ID          int64
	MerchantID  int64
	Name        string
	Price       decimal.Decimal
	Stock       int
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderLine is one product line within an order. NameSnapshot and
// PriceSnapshot are captured at checkout (and again at substitution) and are
// never re-read from the catalog afterwards, so later price changes do not
// rewrite history.
type OrderLine struct {
	ID            int64
	OrderID       int64
	MenuItemID    *int64
	NameSnapshot  string
	PriceSnapshot decimal.Decimal
	Quantity      int
	LineTotal     decimal.Decimal
}

// RecomputeLineTotal refreshes LineTotal after quantity or snapshot changes.
func (l *OrderLine) RecomputeLineTotal() {
	l.LineTotal = l.PriceSnapshot.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is one checkout owned by the customer who created it.
type Order struct {
	ID         int64
	CustomerID int64
	MerchantID int64
	ShipperID  *int64
	// MerchantName and ShipperUsername are read-side denormalisations filled
	// when the aggregate is hydrated from storage. They are never written back.
	MerchantName    string
	ShipperUsername *string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	DeliveryAddress string
	Note            string
	TotalAmount     decimal.Decimal
	Lines           []OrderLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecomputeTotal re-sums line totals into TotalAmount. Callers must invoke it
// inside the same transaction as any line mutation; a stale total is a
// correctness bug.
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for i := range o.Lines {
		total = total.Add(o.Lines[i].LineTotal)
	}
	o.TotalAmount = total
}

// Line returns a pointer to the line with the given id, or nil when the order
// has no such line.
func (o *Order) Line(lineID int64) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			return &o.Lines[i]
		}
	}
	return nil
}

// PaymentTransaction records one settlement movement for an order.
type PaymentTransaction struct {
	ID          string
	OrderID     int64
	Method      PaymentMethod
	Status      PaymentTransactionStatus
	Amount      decimal.Decimal
	ExternalRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MenuItemReview is per-line feedback attached to a Review.
type MenuItemReview struct {
	ID          string
	ReviewID    string
	OrderLineID int64
	Rating      int
	Comment     string
}

// Review is a customer's post-delivery feedback, at most one per
// (order, customer) pair.
type Review struct {
	ID             string
	OrderID        int64
	CustomerID     int64
	MerchantID     int64
	ShipperID      *int64
	OrderRating    int
	MerchantRating int
	ShipperRating  *int
	Comment        string
	Items          []MenuItemReview
	CreatedAt      time.Time
}

// Complaint is a free-standing grievance tied to an order. It can be filed at
// any order status and is closed only by the merchant of record or an admin.
type Complaint struct {
	ID          string
	OrderID     int64
	CustomerID  int64
	Type        string
	Title       string
	Description string
	Status      ComplaintStatus
	Response    string
	HandledBy   *int64
	ResolvedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
