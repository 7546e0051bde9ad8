package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/services"
)

func testOrder() *domain.Order {
	itemID := int64(3)
	created := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	order := &domain.Order{
		ID:              42,
		CustomerID:      7,
		MerchantID:      10,
		MerchantName:    "Pho Corner",
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		DeliveryAddress: "12 Rue de la Paix",
		TotalAmount:     decimal.RequireFromString("130000"),
		Lines: []domain.OrderLine{
			{
				ID:            1,
				OrderID:       42,
				MenuItemID:    &itemID,
				NameSnapshot:  "Pho Bo",
				PriceSnapshot: decimal.RequireFromString("65000"),
				Quantity:      2,
				LineTotal:     decimal.RequireFromString("130000"),
			},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	return order
}

func registerOrderRoutes(t *testing.T, h *OrderHandlers) RouteRegistrar {
	t.Helper()
	return func(r chi.Router) {
		r.Post("/", h.Checkout)
		r.Get("/", h.List)
		r.Get("/{orderID}", h.Get)
		r.Post("/{orderID}/cancel", h.Cancel)
	}
}

func TestCheckoutReturnsCreatedOrder(t *testing.T) {
	var gotCmd services.CheckoutCommand
	svc := &stubOrderService{
		checkoutFunc: func(ctx context.Context, cmd services.CheckoutCommand) (*domain.Order, error) {
			gotCmd = cmd
			return testOrder(), nil
		},
	}
	h, err := NewOrderHandlers(svc)
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

	body := `{"merchant_id":10,"delivery_address":"12 Rue de la Paix","items":[{"menu_item_id":3,"quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.Actor.UserID != 7 || gotCmd.Actor.Role != domain.RoleCustomer {
		t.Fatalf("unexpected actor %+v", gotCmd.Actor)
	}
	if len(gotCmd.Items) != 1 || gotCmd.Items[0].MenuItemID != 3 || gotCmd.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", gotCmd.Items)
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if resp.ID != 42 {
		t.Fatalf("expected order id 42, got %d", resp.ID)
	}
	if resp.TotalAmount != "130000.00" {
		t.Fatalf("expected fixed-2 total, got %q", resp.TotalAmount)
	}
	if len(resp.Items) != 1 || resp.Items[0].Price != "65000.00" {
		t.Fatalf("unexpected items payload %+v", resp.Items)
	}
	if resp.Merchant.ID != 10 || resp.Merchant.Name != "Pho Corner" {
		t.Fatalf("unexpected merchant payload %+v", resp.Merchant)
	}
	if resp.Shipper != nil {
		t.Fatalf("expected null shipper before pickup, got %+v", resp.Shipper)
	}
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	h, err := NewOrderHandlers(&stubOrderService{})
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

	for name, body := range map[string]string{
		"empty":   "",
		"invalid": "{not json",
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s body: expected 400, got %d", name, rr.Code)
		}
	}
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	h, err := NewOrderHandlers(&stubOrderService{})
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := NewRouter(WithOrderRoutes(registerOrderRoutes(t, h)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"merchant_id":1}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}
}

func TestGetOrderMapsSentinelErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", services.ErrOrderNotFound, http.StatusNotFound},
		{"forbidden", fmt.Errorf("%w: not yours", services.ErrOrderForbidden), http.StatusForbidden},
		{"invalid state", services.ErrOrderInvalidState, http.StatusConflict},
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getOrderFunc: func(ctx context.Context, orderID int64, actor services.Actor) (*domain.Order, error) {
					return nil, tc.err
				},
			}
			h, err := NewOrderHandlers(svc)
			if err != nil {
				t.Fatalf("NewOrderHandlers: %v", err)
			}
			router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/42", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
			var envelope map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("expected JSON error envelope: %v", err)
			}
			if envelope["error"] == "" {
				t.Fatalf("expected error code in envelope, got %v", envelope)
			}
		})
	}
}

func TestListOrdersParsesQuery(t *testing.T) {
	var gotOpts services.ListOrdersOptions
	svc := &stubOrderService{
		listCustomerFunc: func(ctx context.Context, actor services.Actor, opts services.ListOrdersOptions) ([]*domain.Order, error) {
			gotOpts = opts
			return []*domain.Order{testOrder()}, nil
		},
	}
	h, err := NewOrderHandlers(svc)
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=pending,confirmed&limit=5&offset=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(gotOpts.Statuses) != 2 || gotOpts.Statuses[0] != domain.OrderStatusPending || gotOpts.Statuses[1] != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected statuses %v", gotOpts.Statuses)
	}
	if gotOpts.Limit != 5 || gotOpts.Offset != 10 {
		t.Fatalf("unexpected paging %+v", gotOpts)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	h, err := NewOrderHandlers(&stubOrderService{})
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=SHIPPED", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestCancelAllowsEmptyBody(t *testing.T) {
	var gotCmd services.CancelOrderCommand
	svc := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (*domain.Order, error) {
			gotCmd = cmd
			order := testOrder()
			order.Status = domain.OrderStatusCanceled
			return order, nil
		},
	}
	h, err := NewOrderHandlers(svc)
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/42/cancel", bytes.NewReader(nil))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.OrderID != 42 || gotCmd.Reason != "" {
		t.Fatalf("unexpected command %+v", gotCmd)
	}

	var resp orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON response: %v", err)
	}
	if resp.Status != string(domain.OrderStatusCanceled) {
		t.Fatalf("expected CANCELED, got %q", resp.Status)
	}
}

func TestCancelRejectsBadOrderID(t *testing.T) {
	h, err := NewOrderHandlers(&stubOrderService{})
	if err != nil {
		t.Fatalf("NewOrderHandlers: %v", err)
	}
	router := newTestRouter(7, domain.RoleCustomer, WithOrderRoutes(registerOrderRoutes(t, h)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/abc/cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", rr.Code)
	}
}
