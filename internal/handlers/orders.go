package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/httpx"
	"github.com/feast-field/api/internal/services"
)

// OrderHandlers serves the customer-facing order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers.
func NewOrderHandlers(orders services.OrderService) (*OrderHandlers, error) {
	if orders == nil {
		return nil, errors.New("order handlers: order service is required")
	}
	return &OrderHandlers{orders: orders}, nil
}

// Routes registers the customer order endpoints on the given router.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/", h.Checkout)
	r.Get("/", h.List)
	r.Get("/{orderID}", h.Get)
	r.Post("/{orderID}/cancel", h.Cancel)
}

type checkoutItemRequest struct {
	MenuItemID int64 `json:"menu_item_id"`
	Quantity   int   `json:"quantity"`
}

type checkoutRequest struct {
	MerchantID      int64                 `json:"merchant_id"`
	DeliveryAddress string                `json:"delivery_address"`
	Note            string                `json:"note"`
	Items           []checkoutItemRequest `json:"items"`
}

// Checkout creates a PENDING order for the acting customer.
func (h *OrderHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	cmd := services.CheckoutCommand{
		Actor:           actor,
		MerchantID:      req.MerchantID,
		DeliveryAddress: req.DeliveryAddress,
		Note:            req.Note,
		Items:           make([]services.CheckoutItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CheckoutItem{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
		})
	}

	order, err := h.orders.Checkout(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toOrderPayload(order))
}

// List returns the acting customer's order history, newest first.
func (h *OrderHandlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts, err := parseListOptions(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	orders, err := h.orders.ListCustomerOrders(r.Context(), actor, opts)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": toOrderListPayload(orders)})
}

// Get returns one order the actor may read.
func (h *OrderHandlers) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID, actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// Cancel cancels a PENDING or CONFIRMED order. The body is optional.
func (h *OrderHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	var req cancelOrderRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(r.Context(), w, err)
		return
	}

	order, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		OrderID: orderID,
		Actor:   actor,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, struct {
		orderPayload
		Message string `json:"message"`
	}{toOrderPayload(order), "order canceled"})
}

// parseListOptions reads status, limit and offset query parameters shared by
// the order listing endpoints. Statuses arrive comma separated.
func parseListOptions(query url.Values) (services.ListOrdersOptions, error) {
	var opts services.ListOrdersOptions

	if raw := query.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.Valid() {
				return opts, errors.New("unknown order status " + strconv.Quote(string(status)))
			}
			opts.Statuses = append(opts.Statuses, status)
		}
	}

	page, err := parsePageOptions(query)
	if err != nil {
		return opts, err
	}
	opts.Limit = page.Limit
	opts.Offset = page.Offset
	return opts, nil
}
