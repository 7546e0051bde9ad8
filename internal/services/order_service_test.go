package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/repositories"
)

type repoErr struct {
	notFound bool
	conflict bool
}

func (e repoErr) Error() string {
	switch {
	case e.notFound:
		return "record not found"
	case e.conflict:
		return "conflict"
	}
	return "repository error"
}

func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return false }

// memMenuItemRepo is an in-memory MenuItemRepository. It locks around stock
// mutations so concurrency tests exercise realistic serialization.
type memMenuItemRepo struct {
	mu    sync.Mutex
	items map[int64]*domain.MenuItem
}

func newMemMenuItemRepo(items ...*domain.MenuItem) *memMenuItemRepo {
	repo := &memMenuItemRepo{items: make(map[int64]*domain.MenuItem)}
	for _, item := range items {
		clone := *item
		repo.items[item.ID] = &clone
	}
	return repo
}

func (r *memMenuItemRepo) FindByID(_ context.Context, id int64) (*domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, repoErr{notFound: true}
	}
	clone := *item
	return &clone, nil
}

func (r *memMenuItemRepo) ListByMerchant(_ context.Context, merchantID int64, includeUnavailable bool) ([]*domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.MenuItem
	for _, item := range r.items {
		if item.MerchantID != merchantID {
			continue
		}
		if !includeUnavailable && !item.IsAvailable {
			continue
		}
		clone := *item
		out = append(out, &clone)
	}
	return out, nil
}

func (r *memMenuItemRepo) Insert(_ context.Context, item *domain.MenuItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item.ID = int64(len(r.items) + 1)
	clone := *item
	r.items[item.ID] = &clone
	return nil
}

func (r *memMenuItemRepo) Update(_ context.Context, item *domain.MenuItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return repoErr{notFound: true}
	}
	clone := *item
	r.items[item.ID] = &clone
	return nil
}

func (r *memMenuItemRepo) DebitStock(_ context.Context, id int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return repoErr{notFound: true}
	}
	if item.Stock < quantity {
		return &repositories.InsufficientStockError{MenuItemID: id, Requested: quantity, Available: item.Stock}
	}
	item.Stock -= quantity
	return nil
}

func (r *memMenuItemRepo) CreditStock(_ context.Context, id int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return repoErr{notFound: true}
	}
	item.Stock += quantity
	return nil
}

func (r *memMenuItemRepo) SetStock(_ context.Context, id int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return repoErr{notFound: true}
	}
	item.Stock = quantity
	return nil
}

func (r *memMenuItemRepo) CountSoldOut(_ context.Context, merchantID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if item.MerchantID == merchantID && item.IsAvailable && item.Stock == 0 {
			n++
		}
	}
	return n, nil
}

func (r *memMenuItemRepo) stock(t *testing.T, id int64) int {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		t.Fatalf("menu item %d not found", id)
	}
	return item.Stock
}

// memOrderRepo is an in-memory OrderRepository.
type memOrderRepo struct {
	mu     sync.Mutex
	orders map[int64]*domain.Order
	nextID int64
}

func newMemOrderRepo(orders ...*domain.Order) *memOrderRepo {
	repo := &memOrderRepo{orders: make(map[int64]*domain.Order)}
	for _, order := range orders {
		clone := cloneOrder(order)
		repo.orders[order.ID] = clone
		if order.ID > repo.nextID {
			repo.nextID = order.ID
		}
		for _, line := range order.Lines {
			if line.ID > repo.nextID {
				repo.nextID = line.ID
			}
		}
	}
	return repo
}

func cloneOrder(order *domain.Order) *domain.Order {
	clone := *order
	clone.Lines = make([]domain.OrderLine, len(order.Lines))
	copy(clone.Lines, order.Lines)
	return &clone
}

func (r *memOrderRepo) Insert(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	order.ID = r.nextID
	for i := range order.Lines {
		r.nextID++
		order.Lines[i].ID = r.nextID
		order.Lines[i].OrderID = order.ID
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *memOrderRepo) Update(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return repoErr{notFound: true}
	}
	lines := stored.Lines
	updated := cloneOrder(order)
	updated.Lines = lines
	r.orders[order.ID] = updated
	return nil
}

func (r *memOrderRepo) UpdateLine(_ context.Context, line *domain.OrderLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		for i := range order.Lines {
			if order.Lines[i].ID == line.ID {
				order.Lines[i] = *line
				return nil
			}
		}
	}
	return repoErr{notFound: true}
}

func (r *memOrderRepo) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, repoErr{notFound: true}
	}
	return cloneOrder(order), nil
}

func (r *memOrderRepo) ListByCustomer(_ context.Context, customerID int64, _ repositories.OrderFilter) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, order := range r.orders {
		if order.CustomerID == customerID {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListByMerchant(_ context.Context, merchantID int64, _ repositories.OrderFilter) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, order := range r.orders {
		if order.MerchantID == merchantID {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListByShipper(_ context.Context, shipperID int64, _ repositories.OrderFilter) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, order := range r.orders {
		if order.ShipperID != nil && *order.ShipperID == shipperID {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListReadyForPickup(_ context.Context, _ repositories.ListOptions) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, order := range r.orders {
		if order.Status == domain.OrderStatusReadyForPickup && order.ShipperID == nil {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (r *memOrderRepo) MerchantStats(_ context.Context, merchantID int64, since time.Time) (*repositories.MerchantStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repositories.MerchantStats{
		OrdersByStatus: make(map[domain.OrderStatus]int),
		DeliveredTotal: decimal.Zero,
	}
	for _, order := range r.orders {
		if order.MerchantID != merchantID || order.CreatedAt.Before(since) {
			continue
		}
		stats.OrdersByStatus[order.Status]++
		if order.Status == domain.OrderStatusDelivered {
			stats.DeliveredTotal = stats.DeliveredTotal.Add(order.TotalAmount)
		}
	}
	return stats, nil
}

// memPaymentRepo is an in-memory PaymentRepository.
type memPaymentRepo struct {
	mu  sync.Mutex
	txs []*domain.PaymentTransaction
}

func (r *memPaymentRepo) InsertTransaction(_ context.Context, tx *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *tx
	r.txs = append(r.txs, &clone)
	return nil
}

func (r *memPaymentRepo) ListByOrder(_ context.Context, orderID int64) ([]*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PaymentTransaction
	for _, tx := range r.txs {
		if tx.OrderID == orderID {
			clone := *tx
			out = append(out, &clone)
		}
	}
	return out, nil
}

type stubMerchantRepo struct {
	merchant *domain.Merchant
	staff    map[int64]bool
}

func (r *stubMerchantRepo) FindByID(_ context.Context, id int64) (*domain.Merchant, error) {
	if r.merchant == nil || r.merchant.ID != id {
		return nil, repoErr{notFound: true}
	}
	clone := *r.merchant
	return &clone, nil
}

func (r *stubMerchantRepo) FindByStaff(_ context.Context, userID int64) (*domain.Merchant, error) {
	if r.merchant != nil && (r.merchant.OwnerID == userID || r.staff[userID]) {
		clone := *r.merchant
		return &clone, nil
	}
	return nil, repoErr{notFound: true}
}

func (r *stubMerchantRepo) HasStaff(_ context.Context, merchantID, userID int64) (bool, error) {
	if r.merchant == nil || r.merchant.ID != merchantID {
		return false, nil
	}
	return r.merchant.OwnerID == userID || r.staff[userID], nil
}

type stubUserRepo struct {
	inactive map[int64]bool
}

func (r *stubUserRepo) FindByID(_ context.Context, id int64) (*domain.User, error) {
	return &domain.User{ID: id, Username: fmt.Sprintf("user-%d", id), Role: domain.RoleCustomer, Active: !r.inactive[id]}, nil
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type orderFixture struct {
	svc       OrderService
	orders    *memOrderRepo
	menuItems *memMenuItemRepo
	merchants *stubMerchantRepo
	payments  *memPaymentRepo
	users     *stubUserRepo
}

func newOrderFixture(t *testing.T, orders *memOrderRepo, menuItems *memMenuItemRepo) *orderFixture {
	t.Helper()

	merchants := &stubMerchantRepo{
		merchant: &domain.Merchant{ID: 10, OwnerID: 100, Name: "Warung Satu", IsActive: true},
		staff:    map[int64]bool{101: true},
	}
	payments := &memPaymentRepo{}
	users := &stubUserRepo{inactive: map[int64]bool{}}

	inventory, err := NewInventoryService(InventoryServiceDeps{
		MenuItems: menuItems,
		Merchants: merchants,
	})
	if err != nil {
		t.Fatalf("NewInventoryService returned error: %v", err)
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		MenuItems: menuItems,
		Merchants: merchants,
		Payments:  payments,
		Users:     users,
		Inventory: inventory,
		Clock: func() time.Time {
			return time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}

	return &orderFixture{
		svc:       svc,
		orders:    orders,
		menuItems: menuItems,
		merchants: merchants,
		payments:  payments,
		users:     users,
	}
}

func pendingOrder(id int64, lines ...domain.OrderLine) *domain.Order {
	order := &domain.Order{
		ID:              id,
		CustomerID:      7,
		MerchantID:      10,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		DeliveryAddress: "Jl. Melati 5",
		Lines:           lines,
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = id
		order.Lines[i].RecomputeLineTotal()
	}
	order.RecomputeTotal()
	return order
}

func line(id, itemID int64, name, price string, qty int) domain.OrderLine {
	item := itemID
	l := domain.OrderLine{
		ID:            id,
		MenuItemID:    &item,
		NameSnapshot:  name,
		PriceSnapshot: money(price),
		Quantity:      qty,
	}
	l.RecomputeLineTotal()
	return l
}

func TestCheckoutSnapshotsAndTotals(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
		&domain.MenuItem{ID: 2, MerchantID: 10, Name: "Es Teh", Price: money("10000.00"), Stock: 20, IsAvailable: true},
	)
	fx := newOrderFixture(t, newMemOrderRepo(), menuItems)

	order, err := fx.svc.Checkout(ctx, CheckoutCommand{
		Actor:           Actor{UserID: 7, Role: domain.RoleCustomer},
		MerchantID:      10,
		DeliveryAddress: "Jl. Melati 5",
		Items: []CheckoutItem{
			{MenuItemID: 1, Quantity: 4},
			{MenuItemID: 2, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("Checkout returned error: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected status: %s", order.Status)
	}
	if got := order.TotalAmount.StringFixed(2); got != "130000.00" {
		t.Fatalf("unexpected total: %s", got)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(order.Lines))
	}
	if order.Lines[0].NameSnapshot != "Nasi Goreng" {
		t.Fatalf("unexpected name snapshot: %q", order.Lines[0].NameSnapshot)
	}
	if got := order.Lines[0].LineTotal.StringFixed(2); got != "100000.00" {
		t.Fatalf("unexpected line total: %s", got)
	}

	// Checkout must not touch stock.
	if got := fx.menuItems.stock(t, 1); got != 10 {
		t.Fatalf("stock changed at checkout: %d", got)
	}
}

func TestCheckoutRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
		&domain.MenuItem{ID: 3, MerchantID: 10, Name: "Sold Out", Price: money("5000.00"), Stock: 0, IsAvailable: false},
	)
	fx := newOrderFixture(t, newMemOrderRepo(), menuItems)
	actor := Actor{UserID: 7, Role: domain.RoleCustomer}

	cases := []struct {
		name    string
		cmd     CheckoutCommand
		wantErr error
	}{
		{
			name:    "empty items",
			cmd:     CheckoutCommand{Actor: actor, MerchantID: 10, DeliveryAddress: "addr"},
			wantErr: ErrOrderInvalidInput,
		},
		{
			name: "zero quantity",
			cmd: CheckoutCommand{
				Actor: actor, MerchantID: 10, DeliveryAddress: "addr",
				Items: []CheckoutItem{{MenuItemID: 1, Quantity: 0}},
			},
			wantErr: ErrInvalidQuantity,
		},
		{
			name: "unknown item",
			cmd: CheckoutCommand{
				Actor: actor, MerchantID: 10, DeliveryAddress: "addr",
				Items: []CheckoutItem{{MenuItemID: 99, Quantity: 1}},
			},
			wantErr: ErrMenuItemNotFound,
		},
		{
			name: "unavailable item",
			cmd: CheckoutCommand{
				Actor: actor, MerchantID: 10, DeliveryAddress: "addr",
				Items: []CheckoutItem{{MenuItemID: 3, Quantity: 1}},
			},
			wantErr: ErrOrderInvalidInput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fx.svc.Checkout(ctx, tc.cmd); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckoutRejectsDeactivatedAccount(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
	)
	fx := newOrderFixture(t, newMemOrderRepo(), menuItems)
	fx.users.inactive[7] = true

	_, err := fx.svc.Checkout(ctx, CheckoutCommand{
		Actor:           Actor{UserID: 7, Role: domain.RoleCustomer},
		MerchantID:      10,
		DeliveryAddress: "Jl. Melati 5",
		Items:           []CheckoutItem{{MenuItemID: 1, Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestConfirmDebitsStock(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
	)
	orders := newMemOrderRepo(pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 4)))
	fx := newOrderFixture(t, orders, menuItems)

	order, err := fx.svc.Confirm(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 100, Role: domain.RoleMerchant}})
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected status: %s", order.Status)
	}
	if got := fx.menuItems.stock(t, 1); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}
}

func TestConfirmReportsShortagesWithoutMutation(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 2, IsAvailable: true},
		&domain.MenuItem{ID: 2, MerchantID: 10, Name: "Es Teh", Price: money("10000.00"), Stock: 1, IsAvailable: true},
	)
	orders := newMemOrderRepo(pendingOrder(1,
		line(11, 1, "Nasi Goreng", "25000.00", 4),
		line(12, 2, "Es Teh", "10000.00", 3),
	))

	// Wrap the unit of work so a failed confirm restores stock the way a
	// database rollback would.
	menuSnapshot := map[int64]int{1: 2, 2: 1}
	rollback := &rollbackUnitOfWork{menuItems: menuItems, snapshot: menuSnapshot}

	merchants := &stubMerchantRepo{
		merchant: &domain.Merchant{ID: 10, OwnerID: 100, Name: "Warung Satu", IsActive: true},
	}
	inventory, err := NewInventoryService(InventoryServiceDeps{MenuItems: menuItems, Merchants: merchants})
	if err != nil {
		t.Fatalf("NewInventoryService returned error: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     orders,
		MenuItems:  menuItems,
		Merchants:  merchants,
		Payments:   &memPaymentRepo{},
		Inventory:  inventory,
		UnitOfWork: rollback,
	})
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}

	_, err = svc.Confirm(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 100, Role: domain.RoleMerchant}})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var shortage *StockShortageError
	if !errors.As(err, &shortage) {
		t.Fatalf("expected StockShortageError, got %T", err)
	}
	if len(shortage.Shortages) != 2 {
		t.Fatalf("expected both lines reported, got %d", len(shortage.Shortages))
	}

	stored, err := orders.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("order mutated despite shortage: %s", stored.Status)
	}
	if got := menuItems.stock(t, 1); got != 2 {
		t.Fatalf("stock mutated despite shortage: %d", got)
	}
}

// rollbackUnitOfWork restores menu item stock when fn fails, approximating
// transactional rollback for in-memory repositories.
type rollbackUnitOfWork struct {
	menuItems *memMenuItemRepo
	snapshot  map[int64]int
}

func (u *rollbackUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)
	if err != nil {
		for id, stock := range u.snapshot {
			_ = u.menuItems.SetStock(ctx, id, stock)
		}
	}
	return err
}

func TestCancelConfirmedCreditsStockAndRefunds(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 6, IsAvailable: true},
	)
	order := pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 4))
	order.Status = domain.OrderStatusConfirmed
	order.PaymentStatus = domain.PaymentStatusPaid
	orders := newMemOrderRepo(order)
	fx := newOrderFixture(t, orders, menuItems)

	canceled, err := fx.svc.Cancel(ctx, CancelOrderCommand{
		OrderID: 1,
		Actor:   Actor{UserID: 7, Role: domain.RoleCustomer},
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	if canceled.Status != domain.OrderStatusCanceled {
		t.Fatalf("unexpected status: %s", canceled.Status)
	}
	if canceled.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("unexpected payment status: %s", canceled.PaymentStatus)
	}
	if got := fx.menuItems.stock(t, 1); got != 10 {
		t.Fatalf("expected stock credited back to 10, got %d", got)
	}

	txs, err := fx.payments.ListByOrder(ctx, 1)
	if err != nil {
		t.Fatalf("ListByOrder returned error: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected one refund transaction, got %d", len(txs))
	}
	if txs[0].Status != domain.PaymentTransactionRefunded {
		t.Fatalf("unexpected transaction status: %s", txs[0].Status)
	}
	if got := txs[0].Amount.StringFixed(2); got != "100000.00" {
		t.Fatalf("unexpected refund amount: %s", got)
	}
}

func TestStatusTransitionGuards(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		status  domain.OrderStatus
		action  func(fx *orderFixture) error
		wantErr error
	}{
		{
			name:   "cannot deliver a pending order",
			status: domain.OrderStatusPending,
			action: func(fx *orderFixture) error {
				_, err := fx.svc.Deliver(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 1, Role: domain.RoleAdmin}})
				return err
			},
			wantErr: ErrOrderInvalidState,
		},
		{
			name:   "cannot cancel while delivering",
			status: domain.OrderStatusDelivering,
			action: func(fx *orderFixture) error {
				_, err := fx.svc.Cancel(ctx, CancelOrderCommand{OrderID: 1, Actor: Actor{UserID: 7, Role: domain.RoleCustomer}})
				return err
			},
			wantErr: ErrOrderInvalidState,
		},
		{
			name:   "cannot cancel a delivered order",
			status: domain.OrderStatusDelivered,
			action: func(fx *orderFixture) error {
				_, err := fx.svc.Cancel(ctx, CancelOrderCommand{OrderID: 1, Actor: Actor{UserID: 7, Role: domain.RoleCustomer}})
				return err
			},
			wantErr: ErrOrderInvalidState,
		},
		{
			name:   "cannot confirm twice",
			status: domain.OrderStatusConfirmed,
			action: func(fx *orderFixture) error {
				_, err := fx.svc.Confirm(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 100, Role: domain.RoleMerchant}})
				return err
			},
			wantErr: ErrOrderInvalidState,
		},
		{
			name:   "cannot mark a canceled order ready",
			status: domain.OrderStatusCanceled,
			action: func(fx *orderFixture) error {
				_, err := fx.svc.MarkReady(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 100, Role: domain.RoleMerchant}})
				return err
			},
			wantErr: ErrOrderInvalidState,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			menuItems := newMemMenuItemRepo(
				&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
			)
			order := pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 1))
			order.Status = tc.status
			if tc.status == domain.OrderStatusDelivering {
				shipper := int64(55)
				order.ShipperID = &shipper
			}
			fx := newOrderFixture(t, newMemOrderRepo(order), menuItems)

			if err := tc.action(fx); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPickupAssignsShipper(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo()
	order := pendingOrder(1, line(11, 0, "Nasi Goreng", "25000.00", 1))
	order.Lines[0].MenuItemID = nil
	order.Status = domain.OrderStatusReadyForPickup
	fx := newOrderFixture(t, newMemOrderRepo(order), menuItems)

	picked, err := fx.svc.Pickup(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 55, Role: domain.RoleShipper}})
	if err != nil {
		t.Fatalf("Pickup returned error: %v", err)
	}
	if picked.Status != domain.OrderStatusDelivering {
		t.Fatalf("unexpected status: %s", picked.Status)
	}
	if picked.ShipperID == nil || *picked.ShipperID != 55 {
		t.Fatalf("shipper not assigned: %v", picked.ShipperID)
	}

	// A second shipper cannot take the same order.
	stored, _ := fx.orders.FindByID(ctx, 1)
	stored.Status = domain.OrderStatusReadyForPickup
	if err := fx.orders.Update(ctx, stored); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if _, err := fx.svc.Pickup(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 56, Role: domain.RoleShipper}}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

func TestDeliverRequiresAssignedShipper(t *testing.T) {
	ctx := context.Background()
	order := pendingOrder(1, line(11, 0, "Nasi Goreng", "25000.00", 1))
	order.Lines[0].MenuItemID = nil
	order.Status = domain.OrderStatusDelivering
	shipper := int64(55)
	order.ShipperID = &shipper
	fx := newOrderFixture(t, newMemOrderRepo(order), newMemMenuItemRepo())

	if _, err := fx.svc.Deliver(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 56, Role: domain.RoleShipper}}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	delivered, err := fx.svc.Deliver(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 55, Role: domain.RoleShipper}})
	if err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if delivered.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status: %s", delivered.Status)
	}
}

func TestConfirmSerializesConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 1, IsAvailable: true},
	)
	orders := newMemOrderRepo(
		pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 1)),
		pendingOrder(2, line(21, 1, "Nasi Goreng", "25000.00", 1)),
	)
	fx := newOrderFixture(t, orders, menuItems)
	actor := Actor{UserID: 100, Role: domain.RoleMerchant}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = fx.svc.Confirm(ctx, OrderActionCommand{OrderID: int64(i + 1), Actor: actor})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one confirm to win, got %d", succeeded)
	}
	if got := fx.menuItems.stock(t, 1); got != 0 {
		t.Fatalf("stock went negative or was not debited: %d", got)
	}
}

func TestResolveShortageSubstitute(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 0, IsAvailable: true},
		&domain.MenuItem{ID: 2, MerchantID: 10, Name: "Mie Goreng", Price: money("22000.00"), Stock: 8, IsAvailable: true},
		&domain.MenuItem{ID: 3, MerchantID: 99, Name: "Foreign Dish", Price: money("9000.00"), Stock: 5, IsAvailable: true},
	)
	order := pendingOrder(1,
		line(11, 1, "Nasi Goreng", "25000.00", 2),
		line(12, 1, "Nasi Goreng", "25000.00", 1),
	)
	order.Status = domain.OrderStatusConfirmed
	fx := newOrderFixture(t, newMemOrderRepo(order), menuItems)

	result, err := fx.svc.ResolveShortage(ctx, ShortageCommand{
		OrderID: 1,
		Actor:   Actor{UserID: 100, Role: domain.RoleMerchant},
		Action:  ShortageActionSubstitute,
		Substitutions: []ShortageSubstitution{
			{LineID: 11, MenuItemID: 2},
			{LineID: 999, MenuItemID: 2}, // missing line
			{LineID: 12, MenuItemID: 3},  // foreign merchant
		},
	})
	if err != nil {
		t.Fatalf("ResolveShortage returned error: %v", err)
	}

	if len(result.Skipped) != 2 {
		t.Fatalf("expected 2 skipped entries, got %d", len(result.Skipped))
	}

	swapped := result.Order.Line(11)
	if swapped == nil || swapped.NameSnapshot != "Mie Goreng" {
		t.Fatalf("line 11 was not substituted: %+v", swapped)
	}
	if got := swapped.LineTotal.StringFixed(2); got != "44000.00" {
		t.Fatalf("unexpected substituted line total: %s", got)
	}
	// 44000 + untouched 25000.
	if got := result.Order.TotalAmount.StringFixed(2); got != "69000.00" {
		t.Fatalf("unexpected recomputed total: %s", got)
	}
}

func TestResolveShortageReduce(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 1, IsAvailable: true},
	)
	order := pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 4))
	order.Status = domain.OrderStatusConfirmed
	fx := newOrderFixture(t, newMemOrderRepo(order), menuItems)

	result, err := fx.svc.ResolveShortage(ctx, ShortageCommand{
		OrderID: 1,
		Actor:   Actor{UserID: 100, Role: domain.RoleMerchant},
		Action:  ShortageActionReduce,
		Reductions: []ShortageReduction{
			{LineID: 11, Quantity: 0}, // floored at 1
			{LineID: 999, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("ResolveShortage returned error: %v", err)
	}

	if len(result.Skipped) != 1 {
		t.Fatalf("expected 1 skipped entry, got %d", len(result.Skipped))
	}
	reduced := result.Order.Line(11)
	if reduced.Quantity != 1 {
		t.Fatalf("expected quantity floored to 1, got %d", reduced.Quantity)
	}
	if got := result.Order.TotalAmount.StringFixed(2); got != "25000.00" {
		t.Fatalf("unexpected recomputed total: %s", got)
	}
}

func TestResolveShortageRequiresConfirmedOrder(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 1, IsAvailable: true},
	)
	fx := newOrderFixture(t, newMemOrderRepo(pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 2))), menuItems)

	_, err := fx.svc.ResolveShortage(ctx, ShortageCommand{
		OrderID:    1,
		Actor:      Actor{UserID: 100, Role: domain.RoleMerchant},
		Action:     ShortageActionReduce,
		Reductions: []ShortageReduction{{LineID: 11, Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestOverrideStatusRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	fx := newOrderFixture(t, newMemOrderRepo(pendingOrder(1)), newMemMenuItemRepo())

	if _, err := fx.svc.OverrideStatus(ctx, OverrideStatusCommand{
		OrderID: 1,
		Actor:   Actor{UserID: 100, Role: domain.RoleMerchant},
		Status:  domain.OrderStatusDelivered,
	}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}

	order, err := fx.svc.OverrideStatus(ctx, OverrideStatusCommand{
		OrderID: 1,
		Actor:   Actor{UserID: 1, Role: domain.RoleAdmin},
		Status:  domain.OrderStatusDelivered,
		Reason:  "support escalation",
	})
	if err != nil {
		t.Fatalf("OverrideStatus returned error: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status: %s", order.Status)
	}
}

func TestConfirmRequiresMerchantOfRecord(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
	)
	fx := newOrderFixture(t, newMemOrderRepo(pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 1))), menuItems)

	if _, err := fx.svc.Confirm(ctx, OrderActionCommand{OrderID: 1, Actor: Actor{UserID: 999, Role: domain.RoleMerchant}}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}

func TestMerchantDashboardAggregates(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 0, IsAvailable: true},
		&domain.MenuItem{ID: 2, MerchantID: 10, Name: "Es Teh", Price: money("10000.00"), Stock: 5, IsAvailable: true},
	)

	today := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	delivered := pendingOrder(1, line(11, 1, "Nasi Goreng", "25000.00", 2))
	delivered.Status = domain.OrderStatusDelivered
	delivered.CreatedAt = today
	pending := pendingOrder(2, line(21, 2, "Es Teh", "10000.00", 1))
	pending.CreatedAt = today
	stale := pendingOrder(3, line(31, 2, "Es Teh", "10000.00", 1))
	stale.Status = domain.OrderStatusDelivered
	stale.CreatedAt = today.AddDate(0, 0, -3)

	fx := newOrderFixture(t, newMemOrderRepo(delivered, pending, stale), menuItems)

	dash, err := fx.svc.MerchantDashboard(ctx, Actor{UserID: 100, Role: domain.RoleMerchant})
	if err != nil {
		t.Fatalf("MerchantDashboard returned error: %v", err)
	}

	if dash.MerchantID != 10 {
		t.Fatalf("unexpected merchant id: %d", dash.MerchantID)
	}
	if got := dash.OrdersByStatus[domain.OrderStatusDelivered]; got != 1 {
		t.Fatalf("expected 1 delivered order today, got %d", got)
	}
	if got := dash.Revenue.StringFixed(2); got != "50000.00" {
		t.Fatalf("unexpected revenue: %s", got)
	}
	if dash.SoldOutItems != 1 {
		t.Fatalf("expected 1 sold-out item, got %d", dash.SoldOutItems)
	}
}

func TestTotalInvariantHoldsAcrossMutations(t *testing.T) {
	ctx := context.Background()
	menuItems := newMemMenuItemRepo(
		&domain.MenuItem{ID: 1, MerchantID: 10, Name: "Nasi Goreng", Price: money("25000.00"), Stock: 10, IsAvailable: true},
		&domain.MenuItem{ID: 2, MerchantID: 10, Name: "Mie Goreng", Price: money("22000.00"), Stock: 10, IsAvailable: true},
	)
	order := pendingOrder(1,
		line(11, 1, "Nasi Goreng", "25000.00", 2),
		line(12, 2, "Mie Goreng", "22000.00", 3),
	)
	order.Status = domain.OrderStatusConfirmed
	fx := newOrderFixture(t, newMemOrderRepo(order), menuItems)

	result, err := fx.svc.ResolveShortage(ctx, ShortageCommand{
		OrderID:    1,
		Actor:      Actor{UserID: 100, Role: domain.RoleMerchant},
		Action:     ShortageActionReduce,
		Reductions: []ShortageReduction{{LineID: 12, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("ResolveShortage returned error: %v", err)
	}

	sum := decimal.Zero
	for i := range result.Order.Lines {
		sum = sum.Add(result.Order.Lines[i].LineTotal)
	}
	if !result.Order.TotalAmount.Equal(sum) {
		t.Fatalf("total %s does not match line sum %s", result.Order.TotalAmount, sum)
	}

	stored, err := fx.orders.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if !stored.TotalAmount.Equal(sum) {
		t.Fatalf("persisted total %s does not match line sum %s", stored.TotalAmount, sum)
	}
}

