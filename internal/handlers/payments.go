package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/httpx"
	"github.com/feast-field/api/internal/services"
)

// PaymentHandlers serves settlement endpoints.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment handlers.
func NewPaymentHandlers(payments services.PaymentService) (*PaymentHandlers, error) {
	if payments == nil {
		return nil, errors.New("payment handlers: payment service is required")
	}
	return &PaymentHandlers{payments: payments}, nil
}

// Routes registers the settlement endpoints on the given router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	r.Post("/orders/{orderID}/pay", h.MarkPaid)
	r.Get("/orders/{orderID}/transactions", h.ListTransactions)
}

type paymentTransactionPayload struct {
	ID          string `json:"id"`
	OrderID     int64  `json:"order_id"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	ExternalRef string `json:"external_ref,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toPaymentTransactionPayload(tx *domain.PaymentTransaction) paymentTransactionPayload {
	return paymentTransactionPayload{
		ID:          tx.ID,
		OrderID:     tx.OrderID,
		Method:      string(tx.Method),
		Status:      string(tx.Status),
		Amount:      tx.Amount.StringFixed(2),
		ExternalRef: tx.ExternalRef,
		CreatedAt:   formatTime(tx.CreatedAt),
	}
}

type markPaidRequest struct {
	Method      string `json:"method"`
	ExternalRef string `json:"external_ref"`
}

// MarkPaid settles an unpaid order with the given method.
func (h *PaymentHandlers) MarkPaid(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	var req markPaidRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	tx, err := h.payments.MarkPaid(r.Context(), services.MarkPaidCommand{
		OrderID:     orderID,
		Actor:       actor,
		Method:      domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		ExternalRef: req.ExternalRef,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toPaymentTransactionPayload(tx))
}

// ListTransactions returns the settlement history of one order.
func (h *PaymentHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	txs, err := h.payments.ListTransactions(r.Context(), orderID, actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	payload := make([]paymentTransactionPayload, 0, len(txs))
	for _, tx := range txs {
		payload = append(payload, toPaymentTransactionPayload(tx))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"transactions": payload})
}
