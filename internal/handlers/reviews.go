package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/httpx"
	"github.com/feast-field/api/internal/services"
)

// ReviewHandlers serves post-delivery review endpoints.
type ReviewHandlers struct {
	reviews services.ReviewService
}

// NewReviewHandlers constructs review handlers.
func NewReviewHandlers(reviews services.ReviewService) (*ReviewHandlers, error) {
	if reviews == nil {
		return nil, errors.New("review handlers: review service is required")
	}
	return &ReviewHandlers{reviews: reviews}, nil
}

// Routes registers the review endpoints on the given router.
func (h *ReviewHandlers) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/order/{orderID}", h.GetByOrder)
	r.Get("/merchant", h.ListForMerchant)
}

type reviewItemRequest struct {
	OrderItemID int64  `json:"order_item_id"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
}

type createReviewRequest struct {
	OrderID        int64               `json:"order_id"`
	OrderRating    int                 `json:"order_rating"`
	MerchantRating int                 `json:"merchant_rating"`
	ShipperRating  *int                `json:"shipper_rating"`
	Comment        string              `json:"comment"`
	Items          []reviewItemRequest `json:"menu_item_reviews"`
}

type reviewItemPayload struct {
	ID          string `json:"id"`
	OrderItemID int64  `json:"order_item_id"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
}

type reviewPayload struct {
	ID             string              `json:"id"`
	OrderID        int64               `json:"order_id"`
	CustomerID     int64               `json:"customer_id"`
	MerchantID     int64               `json:"merchant_id"`
	ShipperID      *int64              `json:"shipper_id"`
	OrderRating    int                 `json:"order_rating"`
	MerchantRating int                 `json:"merchant_rating"`
	ShipperRating  *int                `json:"shipper_rating"`
	Comment        string              `json:"comment,omitempty"`
	Items          []reviewItemPayload `json:"menu_item_reviews"`
	CreatedAt      string              `json:"created_at"`
}

func toReviewPayload(review *domain.Review) reviewPayload {
	payload := reviewPayload{
		ID:             review.ID,
		OrderID:        review.OrderID,
		CustomerID:     review.CustomerID,
		MerchantID:     review.MerchantID,
		ShipperID:      review.ShipperID,
		OrderRating:    review.OrderRating,
		MerchantRating: review.MerchantRating,
		ShipperRating:  review.ShipperRating,
		Comment:        review.Comment,
		Items:          make([]reviewItemPayload, 0, len(review.Items)),
		CreatedAt:      formatTime(review.CreatedAt),
	}
	for i := range review.Items {
		item := &review.Items[i]
		payload.Items = append(payload.Items, reviewItemPayload{
			ID:          item.ID,
			OrderItemID: item.OrderLineID,
			Rating:      item.Rating,
			Comment:     item.Comment,
		})
	}
	return payload
}

// Create files a review for a delivered order. One review per order and
// customer.
func (h *ReviewHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createReviewRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	cmd := services.CreateReviewCommand{
		OrderID:        req.OrderID,
		Actor:          actor,
		OrderRating:    req.OrderRating,
		MerchantRating: req.MerchantRating,
		ShipperRating:  req.ShipperRating,
		Comment:        req.Comment,
		Items:          make([]services.ReviewItemInput, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.ReviewItemInput{
			OrderLineID: item.OrderItemID,
			Rating:      item.Rating,
			Comment:     item.Comment,
		})
	}

	review, err := h.reviews.Create(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toReviewPayload(review))
}

// GetByOrder returns the review filed against an order, if any.
func (h *ReviewHandlers) GetByOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	review, err := h.reviews.GetByOrder(r.Context(), orderID, actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toReviewPayload(review))
}

// ListForMerchant returns the reviews left on the acting staff member's store.
func (h *ReviewHandlers) ListForMerchant(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts, err := parsePageOptions(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	reviews, err := h.reviews.ListForMerchant(r.Context(), actor, opts)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	payload := make([]reviewPayload, 0, len(reviews))
	for _, review := range reviews {
		payload = append(payload, toReviewPayload(review))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"reviews": payload})
}
