package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/auth"
	"github.com/feast-field/api/internal/platform/httpx"
	"github.com/feast-field/api/internal/repositories"
	"github.com/feast-field/api/internal/services"
)

const maxRequestBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, dst any) error {
	data, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.BadRequest("request body is required"))
	default:
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	}
}

// requireActor converts the authenticated identity into a service actor. The
// auth middleware runs first on every protected group, so a missing identity
// is a wiring bug surfaced as 401 rather than a panic.
func requireActor(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{UserID: identity.UserID, Role: identity.Role}, true
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func parsePageOptions(query url.Values) (services.ListOptions, error) {
	var opts services.ListOptions
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return opts, errors.New("limit must be a non-negative integer")
		}
		opts.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return opts, errors.New("offset must be a non-negative integer")
		}
		opts.Offset = offset
	}
	return opts, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// writeServiceError translates service sentinels into the API error
// envelope. Unknown errors fall through to a 500 without leaking detail.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var shortage *services.StockShortageError
	if errors.As(err, &shortage) {
		details := make([]map[string]any, 0, len(shortage.Shortages))
		for _, s := range shortage.Shortages {
			details = append(details, map[string]any{
				"line_id":      s.LineID,
				"menu_item_id": s.MenuItemID,
				"requested":    s.Requested,
				"available":    s.Available,
			})
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "one or more items are out of stock", http.StatusConflict).
			WithDetails(map[string]any{"shortages": details}))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrMenuItemNotFound),
		errors.Is(err, services.ErrReviewNotFound),
		errors.Is(err, services.ErrComplaintNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("not_found", err.Error()))
	case errors.Is(err, services.ErrOrderForbidden),
		errors.Is(err, services.ErrInventoryForbidden),
		errors.Is(err, services.ErrPaymentForbidden),
		errors.Is(err, services.ErrReviewForbidden),
		errors.Is(err, services.ErrComplaintForbidden):
		httpx.WriteError(ctx, w, httpx.Forbidden(err.Error()))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDuplicateReview):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_review", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_eligible", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReviewInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_reviewable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrComplaintInvalidState),
		errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("conflict", err.Error()))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrReviewInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrComplaintInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

type orderLinePayload struct {
	ID         int64  `json:"id"`
	MenuItemID *int64 `json:"menu_item_id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	LineTotal  string `json:"line_total"`
}

type orderMerchantPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type orderShipperPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type orderPayload struct {
	ID              int64                `json:"id"`
	CustomerID      int64                `json:"customer_id"`
	Status          string               `json:"status"`
	PaymentStatus   string               `json:"payment_status"`
	DeliveryAddress string               `json:"delivery_address"`
	Note            string               `json:"note,omitempty"`
	TotalAmount     string               `json:"total_amount"`
	Merchant        orderMerchantPayload `json:"merchant"`
	Shipper         *orderShipperPayload `json:"shipper"`
	Items           []orderLinePayload   `json:"items"`
	CreatedAt       string               `json:"created_at"`
	UpdatedAt       string               `json:"updated_at"`
}

func toOrderPayload(order *domain.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		DeliveryAddress: order.DeliveryAddress,
		Note:            order.Note,
		TotalAmount:     order.TotalAmount.StringFixed(2),
		Merchant:        orderMerchantPayload{ID: order.MerchantID, Name: order.MerchantName},
		Items:           make([]orderLinePayload, 0, len(order.Lines)),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	if order.ShipperID != nil {
		shipper := orderShipperPayload{ID: *order.ShipperID}
		if order.ShipperUsername != nil {
			shipper.Username = *order.ShipperUsername
		}
		payload.Shipper = &shipper
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		payload.Items = append(payload.Items, orderLinePayload{
			ID:         line.ID,
			MenuItemID: line.MenuItemID,
			Name:       line.NameSnapshot,
			Price:      line.PriceSnapshot.StringFixed(2),
			Quantity:   line.Quantity,
			LineTotal:  line.LineTotal.StringFixed(2),
		})
	}
	return payload
}

func toOrderListPayload(orders []*domain.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderPayload(order))
	}
	return out
}
