package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/repositories"
)

var (
	// ErrPaymentNotEligible indicates the order's payment status does not
	// allow the requested settlement operation.
	ErrPaymentNotEligible = errors.New("payment: not eligible")
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentForbidden indicates the actor may not settle this order.
	ErrPaymentForbidden = errors.New("payment: forbidden")
)

// PaymentServiceDeps bundles collaborators required to construct the payment
// service.
type PaymentServiceDeps struct {
	Orders      repositories.OrderRepository
	Payments    repositories.PaymentRepository
	Merchants   repositories.MerchantRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	merchants  repositories.MerchantRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Merchants == nil {
		return nil, errors.New("payment service: merchant repository is required")
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

	return &paymentService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		merchants:  deps.Merchants,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *paymentService) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (*domain.PaymentTransaction, error) {
	if !cmd.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrPaymentInvalidInput, cmd.Method)
	}

	var tx *domain.PaymentTransaction
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.authorizeSettlement(txCtx, order, cmd.Actor); err != nil {
			return err
		}
		if order.PaymentStatus != domain.PaymentStatusUnpaid {
			return fmt.Errorf("%w: order %d payment status is %s", ErrPaymentNotEligible, order.ID, order.PaymentStatus)
		}
		if order.Status == domain.OrderStatusCanceled {
			return fmt.Errorf("%w: order %d is canceled", ErrPaymentNotEligible, order.ID)
		}

		now := s.clock()
		tx = &domain.PaymentTransaction{
			ID:          paymentIDPrefix + s.newID(),
			OrderID:     order.ID,
			Method:      cmd.Method,
			Status:      domain.PaymentTransactionSuccess,
			Amount:      order.TotalAmount,
			ExternalRef: strings.TrimSpace(cmd.ExternalRef),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.payments.InsertTransaction(txCtx, tx); err != nil {
			return s.mapRepositoryError(err)
		}

		order.PaymentStatus = domain.PaymentStatusPaid
		order.UpdatedAt = now
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "payment.marked_paid", map[string]any{
		"order":  cmd.OrderID,
		"method": string(cmd.Method),
		"amount": tx.Amount.StringFixed(2),
		"actor":  cmd.Actor.UserID,
	})
	return tx, nil
}

// Refund moves a paid order to REFUNDED. A nil amount refunds the full total
// and any requested amount above the total is clamped to it; the amount that
// actually moved is retained on the transaction row.
func (s *paymentService) Refund(ctx context.Context, cmd RefundCommand) (*domain.PaymentTransaction, error) {
	if !cmd.Actor.IsAdmin() {
		return nil, fmt.Errorf("%w: refunds require the admin role", ErrPaymentForbidden)
	}
	if cmd.Amount != nil && cmd.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: refund amount must not be negative", ErrPaymentInvalidInput)
	}

	var tx *domain.PaymentTransaction
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.PaymentStatus != domain.PaymentStatusPaid {
			return fmt.Errorf("%w: order %d payment status is %s", ErrPaymentNotEligible, order.ID, order.PaymentStatus)
		}

		amount := order.TotalAmount
		if cmd.Amount != nil && cmd.Amount.LessThan(order.TotalAmount) {
			amount = *cmd.Amount
		}

		now := s.clock()
		tx = &domain.PaymentTransaction{
			ID:          paymentIDPrefix + s.newID(),
			OrderID:     order.ID,
			Method:      s.settlementMethod(txCtx, order.ID),
			Status:      domain.PaymentTransactionRefunded,
			Amount:      amount,
			ExternalRef: strings.TrimSpace(cmd.Reason),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.payments.InsertTransaction(txCtx, tx); err != nil {
			return s.mapRepositoryError(err)
		}

		order.PaymentStatus = domain.PaymentStatusRefunded
		order.UpdatedAt = now
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx, "payment.refunded", map[string]any{
		"order":  cmd.OrderID,
		"amount": tx.Amount.StringFixed(2),
		"actor":  cmd.Actor.UserID,
	})
	return tx, nil
}

func (s *paymentService) ListTransactions(ctx context.Context, orderID int64, actor Actor) ([]*domain.PaymentTransaction, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if err := s.authorizeSettlement(ctx, order, actor); err != nil {
		return nil, err
	}

	txs, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return txs, nil
}

// settlementMethod picks the method of the most recent successful settlement,
// defaulting to COD when the order never settled through this service.
func (s *paymentService) settlementMethod(ctx context.Context, orderID int64) domain.PaymentMethod {
	method := domain.PaymentMethodCOD
	txs, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return method
	}
	for _, tx := range txs {
		if tx.Status == domain.PaymentTransactionSuccess {
			method = tx.Method
		}
	}
	return method
}

func (s *paymentService) authorizeSettlement(ctx context.Context, order *domain.Order, actor Actor) error {
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
	return fmt.Errorf("%w: user %d may not settle order %d", ErrPaymentForbidden, actor.UserID, order.ID)
}

func (s *paymentService) mapRepositoryError(err error) error {
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
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}
