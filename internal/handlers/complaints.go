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

// ComplaintHandlers serves complaint filing and resolution endpoints.
type ComplaintHandlers struct {
	complaints services.ComplaintService
}

// NewComplaintHandlers constructs complaint handlers.
func NewComplaintHandlers(complaints services.ComplaintService) (*ComplaintHandlers, error) {
	if complaints == nil {
		return nil, errors.New("complaint handlers: complaint service is required")
	}
	return &ComplaintHandlers{complaints: complaints}, nil
}

// Routes registers the complaint endpoints on the given router.
func (h *ComplaintHandlers) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Post("/{complaintID}/respond", h.Respond)
	r.Get("/order/{orderID}", h.ListByOrder)
	r.Get("/open", h.ListOpen)
}

type complaintPayload struct {
	ID          string  `json:"id"`
	OrderID     int64   `json:"order_id"`
	CustomerID  int64   `json:"customer_id"`
	Type        string  `json:"complaint_type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Response    string  `json:"response,omitempty"`
	HandledBy   *int64  `json:"handled_by"`
	ResolvedAt  *string `json:"resolved_at"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toComplaintPayload(complaint *domain.Complaint) complaintPayload {
	return complaintPayload{
		ID:          complaint.ID,
		OrderID:     complaint.OrderID,
		CustomerID:  complaint.CustomerID,
		Type:        complaint.Type,
		Title:       complaint.Title,
		Description: complaint.Description,
		Status:      string(complaint.Status),
		Response:    complaint.Response,
		HandledBy:   complaint.HandledBy,
		ResolvedAt:  formatTimePtr(complaint.ResolvedAt),
		CreatedAt:   formatTime(complaint.CreatedAt),
		UpdatedAt:   formatTime(complaint.UpdatedAt),
	}
}

type createComplaintRequest struct {
	OrderID     int64  `json:"order_id"`
	Type        string `json:"complaint_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Create files a complaint against an order. Any order status is accepted.
func (h *ComplaintHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req createComplaintRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	complaint, err := h.complaints.Create(r.Context(), services.CreateComplaintCommand{
		OrderID:     req.OrderID,
		Actor:       actor,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toComplaintPayload(complaint))
}

type respondComplaintRequest struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// Respond resolves or rejects an open complaint. Restricted to the merchant
// of record or an admin.
func (h *ComplaintHandlers) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	complaintID := strings.TrimSpace(chi.URLParam(r, "complaintID"))
	if complaintID == "" {
		httpx.WriteError(r.Context(), w, httpx.BadRequest("complaint id is required"))
		return
	}

	var req respondComplaintRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(r.Context(), w, err)
		return
	}

	complaint, err := h.complaints.Respond(r.Context(), services.RespondComplaintCommand{
		ComplaintID: complaintID,
		Actor:       actor,
		Status:      domain.ComplaintStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
		Response:    req.Response,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toComplaintPayload(complaint))
}

// ListByOrder returns every complaint filed against an order.
func (h *ComplaintHandlers) ListByOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseIDParam(r, "orderID")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	complaints, err := h.complaints.ListByOrder(r.Context(), orderID, actor)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	payload := make([]complaintPayload, 0, len(complaints))
	for _, complaint := range complaints {
		payload = append(payload, toComplaintPayload(complaint))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"complaints": payload})
}

// ListOpen returns the unresolved complaint queue for support staff.
func (h *ComplaintHandlers) ListOpen(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts, err := parsePageOptions(r.URL.Query())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return
	}

	complaints, err := h.complaints.ListOpen(r.Context(), actor, opts)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	payload := make([]complaintPayload, 0, len(complaints))
	for _, complaint := range complaints {
		payload = append(payload, toComplaintPayload(complaint))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"complaints": payload})
}
