package handlers

import (
	"context"
	"net/http"
	"time"
)

// ReadinessChecker reports whether a backing dependency can serve traffic.
// *pgxpool.Pool satisfies it through Ping.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checker ReadinessChecker
}

// NewHealthHandlers constructs health endpoints. A nil checker makes /readyz
// unconditionally ready, which keeps tests and local runs simple.
func NewHealthHandlers(checker ReadinessChecker) *HealthHandlers {
	return &HealthHandlers{checker: checker}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the service can reach its database.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.checker.Ping(ctx); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}
