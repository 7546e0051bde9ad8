package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/httpx"
	"github.com/feast-field/api/internal/services"
)

// ShipperHandlers serves the delivery-side endpoints.
type ShipperHandlers struct {
	orders services.OrderService
}

// NewShipperHandlers constructs shipper handlers.
func NewShipperHandlers(orders services.OrderService) (*ShipperHandlers, error) {
	if orders == nil {
		return nil, errors.New("shipper handlers: order service is required")
	}
	return &ShipperHandlers{orders: orders}, nil
}

// Routes registers the delivery endpoints on the given router.
func (h *ShipperHandlers) Routes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Post("/orders/{orderID}/pickup", h.Pickup)
	r.Post("/orders/{orderID}/deliver", h.Deliver)
}

// ListOrders returns orders available to or assigned to the acting shipper.
func (h *ShipperHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts, err := parseListOptions(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	orders, err := h.orders.ListShipperOrders(r.Context(), actor, opts)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": toOrderListPayload(orders)})
}

// Pickup assigns the acting shipper and moves the order to DELIVERING.
func (h *ShipperHandlers) Pickup(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.orders.Pickup)
}

// Deliver completes the delivery, moving the order to DELIVERED.
func (h *ShipperHandlers) Deliver(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.orders.Deliver)
}

func (h *ShipperHandlers) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error)) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	order, err := fn(r.Context(), services.OrderActionCommand{OrderID: orderID, Actor: actor})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}
