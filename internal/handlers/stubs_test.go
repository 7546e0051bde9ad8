package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/auth"
	"github.com/feast-field/api/internal/services"
)

var errStubNotConfigured = errors.New("stub method not configured")

type stubOrderService struct {
	checkoutFunc        func(ctx context.Context, cmd services.CheckoutCommand) (*domain.Order, error)
	getOrderFunc        func(ctx context.Context, orderID int64, actor services.Actor) (*domain.Order, error)
	listCustomerFunc    func(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error)
	listMerchantFunc    func(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error)
	listShipperFunc     func(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error)
	confirmFunc         func(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error)
	markReadyFunc       func(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error)
	pickupFunc          func(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error)
	deliverFunc         func(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error)
	cancelFunc          func(ctx context.Context, cmd services.CancelOrderCommand) (*domain.Order, error)
	overrideStatusFunc  func(ctx context.Context, cmd services.OverrideStatusCommand) (*domain.Order, error)
	resolveShortageFunc func(ctx context.Context, cmd services.ShortageCommand) (*services.ShortageResult, error)
	dashboardFunc       func(ctx context.Context, actor services.Actor) (*services.MerchantDashboard, error)
}

func (s *stubOrderService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (*domain.Order, error) {
	if s.checkoutFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.checkoutFunc(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID int64, actor services.Actor) (*domain.Order, error) {
	if s.getOrderFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.getOrderFunc(ctx, orderID, actor)
}

func (s *stubOrderService) ListCustomerOrders(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error) {
	if s.listCustomerFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listCustomerFunc(ctx, actor, opts)
}

func (s *stubOrderService) ListMerchantOrders(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error) {
	if s.listMerchantFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listMerchantFunc(ctx, actor, opts)
}

func (s *stubOrderService) ListShipperOrders(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error) {
	if s.listShipperFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listShipperFunc(ctx, actor, opts)
}

func (s *stubOrderService) Confirm(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error) {
	if s.confirmFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.confirmFunc(ctx, cmd)
}

func (s *stubOrderService) MarkReady(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error) {
	if s.markReadyFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.markReadyFunc(ctx, cmd)
}

func (s *stubOrderService) Pickup(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error) {
	if s.pickupFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.pickupFunc(ctx, cmd)
}

func (s *stubOrderService) Deliver(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error) {
	if s.deliverFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.deliverFunc(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (*domain.Order, error) {
	if s.cancelFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.cancelFunc(ctx, cmd)
}

func (s *stubOrderService) OverrideStatus(ctx context.Context, cmd services.OverrideStatusCommand) (*domain.Order, error) {
	if s.overrideStatusFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.overrideStatusFunc(ctx, cmd)
}

func (s *stubOrderService) ResolveShortage(ctx context.Context, cmd services.ShortageCommand) (*services.ShortageResult, error) {
	if s.resolveShortageFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.resolveShortageFunc(ctx, cmd)
}

func (s *stubOrderService) MerchantDashboard(ctx context.Context, actor services.Actor) (*services.MerchantDashboard, error) {
	if s.dashboardFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.dashboardFunc(ctx, actor)
}

type stubInventoryService struct {
	merchantMenuFunc func(ctx context.Context, actor services.Actor) ([]*domain.MenuItem, error)
	updateStockFunc  func(ctx context.Context, cmd services.UpdateStockCommand) (*domain.MenuItem, error)
}

func (s *stubInventoryService) Debit(ctx context.Context, itemID int64, quantity int) error {
	return errStubNotConfigured
}

func (s *stubInventoryService) Credit(ctx context.Context, itemID int64, quantity int) error {
	return errStubNotConfigured
}

func (s *stubInventoryService) Set(ctx context.Context, itemID int64, quantity int) error {
	return errStubNotConfigured
}

func (s *stubInventoryService) ListMenu(ctx context.Context, merchantID int64, includeUnavailable bool) ([]*domain.MenuItem, error) {
	return nil, errStubNotConfigured
}

func (s *stubInventoryService) MerchantMenu(ctx context.Context, actor services.Actor) ([]*domain.MenuItem, error) {
	if s.merchantMenuFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.merchantMenuFunc(ctx, actor)
}

func (s *stubInventoryService) UpdateStock(ctx context.Context, cmd services.UpdateStockCommand) (*domain.MenuItem, error) {
	if s.updateStockFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.updateStockFunc(ctx, cmd)
}

type stubPaymentService struct {
	markPaidFunc func(ctx context.Context, cmd services.MarkPaidCommand) (*domain.PaymentTransaction, error)
	refundFunc   func(ctx context.Context, cmd services.RefundCommand) (*domain.PaymentTransaction, error)
	listFunc     func(ctx context.Context, orderID int64, actor services.Actor) ([]*domain.PaymentTransaction, error)
}

func (s *stubPaymentService) MarkPaid(ctx context.Context, cmd services.MarkPaidCommand) (*domain.PaymentTransaction, error) {
	if s.markPaidFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.markPaidFunc(ctx, cmd)
}

func (s *stubPaymentService) Refund(ctx context.Context, cmd services.RefundCommand) (*domain.PaymentTransaction, error) {
	if s.refundFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.refundFunc(ctx, cmd)
}

func (s *stubPaymentService) ListTransactions(ctx context.Context, orderID int64, actor services.Actor) ([]*domain.PaymentTransaction, error) {
	if s.listFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listFunc(ctx, orderID, actor)
}

type stubReviewService struct {
	createFunc          func(ctx context.Context, cmd services.CreateReviewCommand) (*domain.Review, error)
	getByOrderFunc      func(ctx context.Context, orderID int64, actor services.Actor) (*domain.Review, error)
	listForMerchantFunc func(ctx context.Context, actor services.Actor, opts services.ListOptions) ([]*domain.Review, error)
}

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (*domain.Review, error) {
	if s.createFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubReviewService) GetByOrder(ctx context.Context, orderID int64, actor services.Actor) (*domain.Review, error) {
	if s.getByOrderFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.getByOrderFunc(ctx, orderID, actor)
}

func (s *stubReviewService) ListForMerchant(ctx context.Context, actor services.Actor, opts services.ListOptions) ([]*domain.Review, error) {
	if s.listForMerchantFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listForMerchantFunc(ctx, actor, opts)
}

type stubComplaintService struct {
	createFunc      func(ctx context.Context, cmd services.CreateComplaintCommand) (*domain.Complaint, error)
	respondFunc     func(ctx context.Context, cmd services.RespondComplaintCommand) (*domain.Complaint, error)
	listByOrderFunc func(ctx context.Context, orderID int64, actor services.Actor) ([]*domain.Complaint, error)
	listOpenFunc    func(ctx context.Context, actor services.Actor, opts services.ListOptions) ([]*domain.Complaint, error)
}

func (s *stubComplaintService) Create(ctx context.Context, cmd services.CreateComplaintCommand) (*domain.Complaint, error) {
	if s.createFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubComplaintService) Respond(ctx context.Context, cmd services.RespondComplaintCommand) (*domain.Complaint, error) {
	if s.respondFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.respondFunc(ctx, cmd)
}

func (s *stubComplaintService) ListByOrder(ctx context.Context, orderID int64, actor services.Actor) ([]*domain.Complaint, error) {
	if s.listByOrderFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listByOrderFunc(ctx, orderID, actor)
}

func (s *stubComplaintService) ListOpen(ctx context.Context, actor services.Actor, opts services.ListOptions) ([]*domain.Complaint, error) {
	if s.listOpenFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listOpenFunc(ctx, actor, opts)
}

// withIdentity injects a fixed identity ahead of the handlers under test, the
// way the auth middleware would in production.
func withIdentity(userID int64, role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := &auth.Identity{UserID: userID, Role: role}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// newTestRouter mounts the given registrars behind an identity-injecting
// middleware so URL params resolve through chi as they do in production.
func newTestRouter(userID int64, role domain.Role, opts ...Option) chi.Router {
	opts = append([]Option{WithMiddlewares(withIdentity(userID, role))}, opts...)
	return NewRouter(opts...)
}
