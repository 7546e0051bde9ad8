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

// MerchantHandlers serves the store-side endpoints: order processing, menu
// stock management and the daily dashboard.
type MerchantHandlers struct {
	orders    services.OrderService
	inventory services.InventoryService
}

// NewMerchantHandlers constructs merchant handlers.
func NewMerchantHandlers(orders services.OrderService, inventory services.InventoryService) (*MerchantHandlers, error) {
	if orders == nil {
		return nil, errors.New("merchant handlers: order service is required")
	}
	if inventory == nil {
		return nil, errors.New("merchant handlers: inventory service is required")
	}
	return &MerchantHandlers{orders: orders, inventory: inventory}, nil
}

// Routes registers the store-side endpoints on the given router.
func (h *MerchantHandlers) Routes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Post("/orders/{orderID}/confirm", h.Confirm)
	r.Post("/orders/{orderID}/ready", h.Ready)
	r.Post("/orders/{orderID}/shortage", h.Shortage)
	r.Get("/menu-items", h.MenuItems)
	r.Post("/menu-items/{itemID}/stock", h.SetStock)
	r.Get("/dashboard", h.Dashboard)
}

// ListOrders returns the store's orders, optionally filtered by status.
func (h *MerchantHandlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts, err := parseListOptions(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	orders, err := h.orders.ListMerchantOrders(r.Context(), actor, opts)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": toOrderListPayload(orders)})
}

// Confirm accepts a PENDING order and debits stock for every line.
func (h *MerchantHandlers) Confirm(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.orders.Confirm)
}

// Ready marks a CONFIRMED order READY_FOR_PICKUP.
func (h *MerchantHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.orders.MarkReady)
}

func (h *MerchantHandlers) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, cmd services.OrderActionCommand) (*domain.Order, error)) {
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

type shortageSubstitutionRequest struct {
	LineID     int64 `json:"line_id"`
	MenuItemID int64 `json:"menu_item_id"`
}

type shortageReductionRequest struct {
	LineID   int64 `json:"line_id"`
	Quantity int   `json:"quantity"`
}

type shortageRequest struct {
	Action        string                        `json:"action"`
	Substitutions []shortageSubstitutionRequest `json:"substitutions"`
	Reductions    []shortageReductionRequest    `json:"reductions"`
	Reason        string                        `json:"reason"`
}

type skippedLinePayload struct {
	LineID int64  `json:"line_id"`
	Reason string `json:"reason"`
}

// Shortage applies a shortage resolution (substitute, reduce or cancel) to a
// confirmed order. Entries that cannot be applied are reported, not fatal.
func (h *MerchantHandlers) Shortage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	var req shortageRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	cmd := services.ShortageCommand{
		OrderID: orderID,
		Actor:   actor,
		Action:  services.ShortageAction(req.Action),
		Reason:  req.Reason,
	}
	for _, sub := range req.Substitutions {
		cmd.Substitutions = append(cmd.Substitutions, services.ShortageSubstitution{
			LineID:     sub.LineID,
			MenuItemID: sub.MenuItemID,
		})
	}
	for _, red := range req.Reductions {
		cmd.Reductions = append(cmd.Reductions, services.ShortageReduction{
			LineID:   red.LineID,
			Quantity: red.Quantity,
		})
	}

	result, err := h.orders.ResolveShortage(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	skipped := make([]skippedLinePayload, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped = append(skipped, skippedLinePayload{LineID: s.LineID, Reason: s.Reason})
	}
	message := "shortage resolved"
	if result.Order.Status == domain.OrderStatusCanceled {
		message = "order canceled"
	}
	writeJSONResponse(w, http.StatusOK, struct {
		orderPayload
		Skipped []skippedLinePayload `json:"skipped"`
		Message string               `json:"message"`
	}{toOrderPayload(result.Order), skipped, message})
}

type menuItemPayload struct {
	ID          int64  `json:"id"`
	MerchantID  int64  `json:"merchant_id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	IsAvailable bool   `json:"is_available"`
	UpdatedAt   string `json:"updated_at"`
}

func toMenuItemPayload(item *domain.MenuItem) menuItemPayload {
	return menuItemPayload{
		ID:          item.ID,
		MerchantID:  item.MerchantID,
		Name:        item.Name,
		Price:       item.Price.StringFixed(2),
		Stock:       item.Stock,
		IsAvailable: item.IsAvailable,
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
}

// MenuItems lists the acting staff member's store catalog with live stock.
func (h *MerchantHandlers) MenuItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	items, err := h.inventory.MerchantMenu(r.Context(), actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	payload := make([]menuItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, toMenuItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": payload})
}

type updateStockRequest struct {
	Stock int `json:"stock"`
}

// SetStock overwrites one menu item's stock level.
func (h *MerchantHandlers) SetStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	itemID, err := parseIDParam(r, "itemID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	var req updateStockRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	item, err := h.inventory.UpdateStock(r.Context(), services.UpdateStockCommand{
		MenuItemID: itemID,
		Actor:      actor,
		Stock:      req.Stock,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toMenuItemPayload(item))
}

// Dashboard aggregates the store's activity since midnight UTC.
func (h *MerchantHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	dashboard, err := h.orders.MerchantDashboard(r.Context(), actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	byStatus := make(map[string]int, len(dashboard.OrdersByStatus))
	for status, count := range dashboard.OrdersByStatus {
		byStatus[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"merchant_id":      dashboard.MerchantID,
		"orders_by_status": byStatus,
		"revenue":          dashboard.Revenue.StringFixed(2),
		"sold_out_items":   dashboard.SoldOutItems,
		"recent_orders":    toOrderListPayload(dashboard.RecentOrders),
	})
}
