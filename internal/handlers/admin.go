package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/httpx"
	"github.com/feast-field/api/internal/services"
)

// AdminHandlers serves the administrative escape hatches: the unguarded
// status override and refunds.
type AdminHandlers struct {
	orders   services.OrderService
	payments services.PaymentService
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(orders services.OrderService, payments services.PaymentService) (*AdminHandlers, error) {
	if orders == nil {
		return nil, errors.New("admin handlers: order service is required")
	}
	if payments == nil {
		return nil, errors.New("admin handlers: payment service is required")
	}
	return &AdminHandlers{orders: orders, payments: payments}, nil
}

// Routes registers the admin endpoints on the given router.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Post("/orders/{orderID}/status", h.OverrideStatus)
	r.Post("/orders/{orderID}/refund", h.Refund)
}

type overrideStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// OverrideStatus forces an order into an arbitrary lifecycle state, bypassing
// the transition table. Admin only.
func (h *AdminHandlers) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	var req overrideStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	order, err := h.orders.OverrideStatus(r.Context(), services.OverrideStatusCommand{
		OrderID: orderID,
		Actor:   actor,
		Status:  domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toOrderPayload(order))
}

type refundRequest struct {
	Amount *string `json:"amount"`
	Reason string  `json:"reason"`
}

// Refund refunds a paid order. A missing amount refunds the full total; an
// amount above the total is clamped to it.
func (h *AdminHandlers) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	var req refundRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(r.Context(), w, err)
		return
	}

	cmd := services.RefundCommand{
		OrderID: orderID,
		Actor:   actor,
		Reason:  req.Reason,
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(*req.Amount))
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.BadRequest("amount must be a decimal string"))
			return
		}
		cmd.Amount = &amount
	}

	tx, err := h.payments.Refund(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, refundPayload{
		ID:            tx.OrderID,
		RefundAmount:  tx.Amount.StringFixed(2),
		PaymentStatus: string(domain.PaymentStatusRefunded),
		Message:       "refund recorded",
		Transaction:   toPaymentTransactionPayload(tx),
	})
}

type refundPayload struct {
	ID            int64                     `json:"id"`
	RefundAmount  string                    `json:"refund_amount"`
	PaymentStatus string                    `json:"payment_status"`
	Message       string                    `json:"message"`
	Transaction   paymentTransactionPayload `json:"transaction"`
}
