package compat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-impor/internal/common"
)

// Handler exposes compatibility and stock checks over HTTP.
type Handler struct {
	resolver *Resolver
}

// NewHandler constructs a Handler.
func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Check handles GET /api/v1/compatibility?vehicleId=&partId=.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "resolver not configured", nil)
		return
	}
	q := r.URL.Query()
	partID := strings.TrimSpace(q.Get("partId"))
	if partID == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "partId is required", map[string]any{"field": "partId"})
		return
	}
	// Negative outcomes are ordinary results, so the status stays 200.
	common.JSON(w, http.StatusOK, map[string]any{"data": h.resolver.CheckCompatibility(q.Get("vehicleId"), partID)})
}

// Stock handles GET /api/v1/parts/{id}/stock.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "resolver not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.resolver.CheckStock(chi.URLParam(r, "id"))})
}
