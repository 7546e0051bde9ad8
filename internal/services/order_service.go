package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/repositories"
)

const paymentIDPrefix = "pay_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderForbidden indicates the actor may not act on this order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderConflict indicates concurrent-update conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:        {domain.OrderStatusConfirmed, domain.OrderStatusCanceled},
	domain.OrderStatusConfirmed:      {domain.OrderStatusReadyForPickup, domain.OrderStatusCanceled},
	domain.OrderStatusReadyForPickup: {domain.OrderStatusDelivering},
	domain.OrderStatusDelivering:     {domain.OrderStatusDelivered},
}

func canTransition(current, target domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[current] {
		if allowed == target {
			return true
		}
	}
	return false
}

// ShortageDetail describes one order line the stock ledger could not cover.
type ShortageDetail struct {
	LineID     int64
	MenuItemID int64
	Requested  int
	Available  int
}

// StockShortageError aggregates every shortage found while confirming an
// order. The confirmation transaction rolls back, so the caller can route
// the order to shortage resolution with full detail.
type StockShortageError struct {
	OrderID   int64
	Shortages []ShortageDetail
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("order %d: %d line(s) short on stock", e.OrderID, len(e.Shortages))
}

func (e *StockShortageError) Unwrap() error { return ErrInsufficientStock }

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	MenuItems   repositories.MenuItemRepository
	Merchants   repositories.MerchantRepository
	Payments    repositories.PaymentRepository
	Users       repositories.UserRepository
	Inventory   InventoryService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	menuItems  repositories.MenuItemRepository
	merchants  repositories.MerchantRepository
	payments   repositories.PaymentRepository
	users      repositories.UserRepository
	inventory  InventoryService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.MenuItems == nil {
		return nil, errors.New("order service: menu item repository is required")
	}
	if deps.Merchants == nil {
		return nil, errors.New("order service: merchant repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		menuItems:  deps.MenuItems,
		merchants:  deps.Merchants,
		payments:   deps.Payments,
		users:      deps.Users,
		inventory:  deps.Inventory,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (*domain.Order, error) {
	if len(cmd.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.DeliveryAddress) == "" {
		return nil, fmt.Errorf("%w: delivery address is required", ErrOrderInvalidInput)
	}
	for _, item := range cmd.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for item %d must be positive", ErrInvalidQuantity, item.MenuItemID)
		}
	}

	if s.users != nil {
		account, err := s.users.FindByID(ctx, cmd.Actor.UserID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		if !account.Active {
			return nil, fmt.Errorf("%w: account %d is deactivated", ErrOrderForbidden, account.ID)
		}
	}

	merchant, err := s.merchants.FindByID(ctx, cmd.MerchantID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if !merchant.IsActive {
		return nil, fmt.Errorf("%w: merchant %d is not accepting orders", ErrOrderInvalidInput, merchant.ID)
	}

	now := s.now()
	order := &domain.Order{
		CustomerID:      cmd.Actor.UserID,
		MerchantID:      merchant.ID,
		MerchantName:    merchant.Name,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		DeliveryAddress: strings.TrimSpace(cmd.DeliveryAddress),
		Note:            strings.TrimSpace(cmd.Note),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, reqLine := range cmd.Items {
		item, err := s.menuItems.FindByID(ctx, reqLine.MenuItemID)
		if err != nil {
			return nil, s.mapMenuItemError(err, reqLine.MenuItemID)
		}
		if item.MerchantID != merchant.ID {
			return nil, fmt.Errorf("%w: item %d does not belong to merchant %d", ErrOrderInvalidInput, item.ID, merchant.ID)
		}
		if !item.IsAvailable {
			return nil, fmt.Errorf("%w: item %d is not available", ErrOrderInvalidInput, item.ID)
		}

		itemID := item.ID
		line := domain.OrderLine{
			MenuItemID:    &itemID,
			NameSnapshot:  item.Name,
			PriceSnapshot: item.Price,
			Quantity:      reqLine.Quantity,
		}
		line.RecomputeLineTotal()
		order.Lines = append(order.Lines, line)
	}
	order.RecomputeTotal()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		return s.mapRepositoryError(s.orders.Insert(txCtx, order))
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"order":    order.ID,
		"customer": order.CustomerID,
		"merchant": order.MerchantID,
		"total":    order.TotalAmount.StringFixed(2),
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64, actor Actor) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if err := s.authorizeRead(ctx, order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListCustomerOrders(ctx context.Context, actor Actor, opts ListOrdersOptions) ([]*domain.Order, error) {
	orders, err := s.orders.ListByCustomer(ctx, actor.UserID, orderFilter(opts))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) ListMerchantOrders(ctx context.Context, actor Actor, opts ListOrdersOptions) ([]*domain.Order, error) {
	merchant, err := s.merchantForStaff(ctx, actor)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByMerchant(ctx, merchant.ID, orderFilter(opts))
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// ListShipperOrders returns the shipper's own in-flight orders plus every
// unassigned order waiting for pickup.
func (s *orderService) ListShipperOrders(ctx context.Context, actor Actor, opts ListOrdersOptions) ([]*domain.Order, error) {
	ready, err := s.orders.ListReadyForPickup(ctx, repositories.ListOptions{Limit: opts.Limit, Offset: opts.Offset})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	mine, err := s.orders.ListByShipper(ctx, actor.UserID, repositories.OrderFilter{
		Statuses: []domain.OrderStatus{domain.OrderStatusDelivering},
		Limit:    opts.Limit,
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return append(mine, ready...), nil
}

func (s *orderService) Confirm(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error) {
	var confirmed *domain.Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadForMerchantAction(txCtx, cmd.OrderID, cmd.Actor)
		if err != nil {
			return err
		}
		if err := s.applyStatusTransition(order, domain.OrderStatusConfirmed); err != nil {
			return err
		}

		// Attempt every line so the shortage report covers the whole order,
		// then roll back if any line came up short.
		shortage := &StockShortageError{OrderID: order.ID}
		for i := range order.Lines {
			line := &order.Lines[i]
			if line.MenuItemID == nil {
				continue
			}
			if err := s.inventory.Debit(txCtx, *line.MenuItemID, line.Quantity); err != nil {
				if errors.Is(err, ErrInsufficientStock) {
					item, itemErr := s.menuItems.FindByID(txCtx, *line.MenuItemID)
					available := 0
					if itemErr == nil {
						available = item.Stock
					}
					shortage.Shortages = append(shortage.Shortages, ShortageDetail{
						LineID:     line.ID,
						MenuItemID: *line.MenuItemID,
						Requested:  line.Quantity,
						Available:  available,
					})
					continue
				}
				return err
			}
		}
		if len(shortage.Shortages) > 0 {
			return shortage
		}

		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		confirmed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logOrderEvent(ctx, "order.confirmed", confirmed, cmd.Actor)
	return confirmed, nil
}

func (s *orderService) MarkReady(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error) {
	var updated *domain.Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadForMerchantAction(txCtx, cmd.OrderID, cmd.Actor)
		if err != nil {
			return err
		}
		if err := s.applyStatusTransition(order, domain.OrderStatusReadyForPickup); err != nil {
			return err
		}
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logOrderEvent(ctx, "order.ready_for_pickup", updated, cmd.Actor)
	return updated, nil
}

func (s *orderService) Pickup(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error) {
	if cmd.Actor.Role != domain.RoleShipper && !cmd.Actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only shippers pick up orders", ErrOrderForbidden)
	}

	var updated *domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.ShipperID != nil && *order.ShipperID != cmd.Actor.UserID {
			return fmt.Errorf("%w: order %d is already assigned", ErrOrderConflict, order.ID)
		}
		if err := s.applyStatusTransition(order, domain.OrderStatusDelivering); err != nil {
			return err
		}

		shipperID := cmd.Actor.UserID
		order.ShipperID = &shipperID
		order.ShipperUsername = nil
		if s.users != nil {
			shipper, err := s.users.FindByID(txCtx, shipperID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			order.ShipperUsername = &shipper.Username
		}
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logOrderEvent(ctx, "order.picked_up", updated, cmd.Actor)
	return updated, nil
}

func (s *orderService) Deliver(ctx context.Context, cmd OrderActionCommand) (*domain.Order, error) {
	var updated *domain.Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if !cmd.Actor.IsAdmin() {
			if order.ShipperID == nil || *order.ShipperID != cmd.Actor.UserID {
				return fmt.Errorf("%w: order %d is not assigned to shipper %d", ErrOrderForbidden, order.ID, cmd.Actor.UserID)
			}
		}
		if err := s.applyStatusTransition(order, domain.OrderStatusDelivered); err != nil {
			return err
		}
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logOrderEvent(ctx, "order.delivered", updated, cmd.Actor)
	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (*domain.Order, error) {
	var canceled *domain.Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.authorizeCancel(txCtx, order, cmd.Actor); err != nil {
			return err
		}

		wasConfirmed := order.Status == domain.OrderStatusConfirmed
		if err := s.applyStatusTransition(order, domain.OrderStatusCanceled); err != nil {
			return err
		}

		// A confirmed order already debited stock; give every unit back.
		if wasConfirmed {
			for i := range order.Lines {
				line := &order.Lines[i]
				if line.MenuItemID == nil {
					continue
				}
				if err := s.inventory.Credit(txCtx, *line.MenuItemID, line.Quantity); err != nil {
					return err
				}
			}
		}

		if order.PaymentStatus == domain.PaymentStatusPaid {
			if err := s.recordRefund(txCtx, order, order.TotalAmount, cmd.Reason); err != nil {
				return err
			}
			order.PaymentStatus = domain.PaymentStatusRefunded
		}

		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		canceled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logOrderEvent(ctx, "order.canceled", canceled, cmd.Actor)
	return canceled, nil
}

// OverrideStatus bypasses the transition table. It exists for support staff
// untangling stuck orders and leaves inventory and payment state untouched,
// so every use is logged loudly.
func (s *orderService) OverrideStatus(ctx context.Context, cmd OverrideStatusCommand) (*domain.Order, error) {
	if !cmd.Actor.IsAdmin() {
		return nil, fmt.Errorf("%w: status override requires the admin role", ErrOrderForbidden)
	}
	if !cmd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	var updated *domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		order.Status = cmd.Status
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "order.status.overridden", map[string]any{
		"order":  updated.ID,
		"status": string(updated.Status),
		"actor":  cmd.Actor.UserID,
		"reason": cmd.Reason,
	})
	return updated, nil
}

func (s *orderService) ResolveShortage(ctx context.Context, cmd ShortageCommand) (*ShortageResult, error) {
	switch cmd.Action {
	case ShortageActionCancel:
		order, err := s.Cancel(ctx, CancelOrderCommand{OrderID: cmd.OrderID, Actor: cmd.Actor, Reason: cmd.Reason})
		if err != nil {
			return nil, err
		}
		return &ShortageResult{Order: order}, nil
	case ShortageActionSubstitute, ShortageActionReduce:
	default:
		return nil, fmt.Errorf("%w: unknown shortage action %q", ErrOrderInvalidInput, cmd.Action)
	}

	result := &ShortageResult{}
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.loadForMerchantAction(txCtx, cmd.OrderID, cmd.Actor)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusConfirmed {
			return fmt.Errorf("%w: shortage resolution requires a confirmed order, got %s", ErrOrderInvalidState, order.Status)
		}

		switch cmd.Action {
		case ShortageActionSubstitute:
			if len(cmd.Substitutions) == 0 {
				return fmt.Errorf("%w: substitution list is empty", ErrOrderInvalidInput)
			}
			result.Skipped = s.applySubstitutions(txCtx, order, cmd.Substitutions)
		case ShortageActionReduce:
			if len(cmd.Reductions) == 0 {
				return fmt.Errorf("%w: reduction list is empty", ErrOrderInvalidInput)
			}
			result.Skipped = s.applyReductions(order, cmd.Reductions)
		}

		order.RecomputeTotal()
		order.UpdatedAt = s.now()

		for i := range order.Lines {
			if err := s.orders.UpdateLine(txCtx, &order.Lines[i]); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "order.shortage.resolved", map[string]any{
		"order":   result.Order.ID,
		"action":  string(cmd.Action),
		"skipped": len(result.Skipped),
		"actor":   cmd.Actor.UserID,
	})
	return result, nil
}

// applySubstitutions swaps line products in place. Entries referencing a
// missing line or an unusable replacement are skipped and reported, never
// fatal, so one bad entry does not strand the rest of the resolution.
func (s *orderService) applySubstitutions(ctx context.Context, order *domain.Order, subs []ShortageSubstitution) []SkippedLine {
	var skipped []SkippedLine
	for _, sub := range subs {
		line := order.Line(sub.LineID)
		if line == nil {
			skipped = append(skipped, SkippedLine{LineID: sub.LineID, Reason: "order line not found"})
			continue
		}

		replacement, err := s.menuItems.FindByID(ctx, sub.MenuItemID)
		if err != nil {
			skipped = append(skipped, SkippedLine{LineID: sub.LineID, Reason: fmt.Sprintf("replacement item %d not found", sub.MenuItemID)})
			continue
		}
		if replacement.MerchantID != order.MerchantID {
			skipped = append(skipped, SkippedLine{LineID: sub.LineID, Reason: fmt.Sprintf("replacement item %d belongs to another merchant", replacement.ID)})
			continue
		}
		if !replacement.IsAvailable {
			skipped = append(skipped, SkippedLine{LineID: sub.LineID, Reason: fmt.Sprintf("replacement item %d is not available", replacement.ID)})
			continue
		}

		itemID := replacement.ID
		line.MenuItemID = &itemID
		line.NameSnapshot = replacement.Name
		line.PriceSnapshot = replacement.Price
		line.RecomputeLineTotal()
	}
	return skipped
}

func (s *orderService) applyReductions(order *domain.Order, reductions []ShortageReduction) []SkippedLine {
	var skipped []SkippedLine
	for _, red := range reductions {
		line := order.Line(red.LineID)
		if line == nil {
			skipped = append(skipped, SkippedLine{LineID: red.LineID, Reason: "order line not found"})
			continue
		}

		quantity := red.Quantity
		if quantity < 1 {
			quantity = 1
		}
		line.Quantity = quantity
		line.RecomputeLineTotal()
	}
	return skipped
}

func (s *orderService) MerchantDashboard(ctx context.Context, actor Actor) (*MerchantDashboard, error) {
	merchant, err := s.merchantForStaff(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats, err := s.orders.MerchantStats(ctx, merchant.ID, midnight)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	soldOut, err := s.menuItems.CountSoldOut(ctx, merchant.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	recent, err := s.orders.ListByMerchant(ctx, merchant.ID, repositories.OrderFilter{Limit: 10})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	return &MerchantDashboard{
		MerchantID:     merchant.ID,
		OrdersByStatus: stats.OrdersByStatus,
		Revenue:        stats.DeliveredTotal,
		SoldOutItems:   soldOut,
		RecentOrders:   recent,
	}, nil
}

func (s *orderService) loadForMerchantAction(ctx context.Context, orderID int64, actor Actor) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if actor.IsAdmin() {
		return order, nil
	}

	ok, err := s.merchants.HasStaff(ctx, order.MerchantID, actor.UserID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d is not staff of merchant %d", ErrOrderForbidden, actor.UserID, order.MerchantID)
	}
	return order, nil
}

func (s *orderService) merchantForStaff(ctx context.Context, actor Actor) (*domain.Merchant, error) {
	merchant, err := s.merchants.FindByStaff(ctx, actor.UserID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user %d is not merchant staff", ErrOrderForbidden, actor.UserID)
		}
		return nil, s.mapRepositoryError(err)
	}
	return merchant, nil
}

func (s *orderService) authorizeRead(ctx context.Context, order *domain.Order, actor Actor) error {
	if actor.IsAdmin() || order.CustomerID == actor.UserID {
		return nil
	}
	if order.ShipperID != nil && *order.ShipperID == actor.UserID {
		return nil
	}
	if actor.Role == domain.RoleMerchant {
		ok, err := s.merchants.HasStaff(ctx, order.MerchantID, actor.UserID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: user %d may not read order %d", ErrOrderForbidden, actor.UserID, order.ID)
}

func (s *orderService) authorizeCancel(ctx context.Context, order *domain.Order, actor Actor) error {
	if actor.IsAdmin() || order.CustomerID == actor.UserID {
		return nil
	}
	if actor.Role == domain.RoleMerchant {
		ok, err := s.merchants.HasStaff(ctx, order.MerchantID, actor.UserID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: user %d may not cancel order %d", ErrOrderForbidden, actor.UserID, order.ID)
}

func (s *orderService) applyStatusTransition(order *domain.Order, target domain.OrderStatus) error {
	if order.Status == target {
		return fmt.Errorf("%w: order %d is already %s", ErrOrderInvalidState, order.ID, target)
	}
	if !canTransition(order.Status, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, order.Status, target)
	}
	order.Status = target
	return nil
}

func (s *orderService) recordRefund(ctx context.Context, order *domain.Order, amount decimal.Decimal, reason string) error {
	if s.payments == nil {
		return errors.New("order: payment repository not configured")
	}

	method := domain.PaymentMethodCOD
	if txs, err := s.payments.ListByOrder(ctx, order.ID); err == nil {
		for _, tx := range txs {
			if tx.Status == domain.PaymentTransactionSuccess {
				method = tx.Method
			}
		}
	}

	now := s.now()
	return s.mapRepositoryError(s.payments.InsertTransaction(ctx, &domain.PaymentTransaction{
		ID:          paymentIDPrefix + s.newID(),
		OrderID:     order.ID,
		Method:      method,
		Status:      domain.PaymentTransactionRefunded,
		Amount:      amount,
		ExternalRef: strings.TrimSpace(reason),
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) mapMenuItemError(err error, itemID int64) error {
	if repositories.IsNotFound(err) {
		return fmt.Errorf("%w: item %d", ErrMenuItemNotFound, itemID)
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) logOrderEvent(ctx context.Context, event string, order *domain.Order, actor Actor) {
	if order == nil {
		return
	}
	s.logger(ctx, event, map[string]any{
		"order":  order.ID,
		"status": string(order.Status),
		"actor":  actor.UserID,
	})
}

func orderFilter(opts ListOrdersOptions) repositories.OrderFilter {
	return repositories.OrderFilter{
		Statuses: opts.Statuses,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
}
