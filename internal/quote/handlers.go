package quote

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-impor/internal/common"
)

// Handler exposes pricing endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Quote handles POST /api/v1/quotes.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.service.Quote(r.Context(), req)
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

// PartQuote handles GET /api/v1/parts/{id}/quote?qty=&snapshotVersion=.
func (h *Handler) PartQuote(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	q := r.URL.Query()
	qty, err := common.QueryInt(q, "qty", 1)
	if err == nil && qty < 1 {
		err = common.InvalidInput("qty", "qty must be a positive integer", nil)
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var version *int64
	if raw := strings.TrimSpace(q.Get("snapshotVersion")); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "snapshotVersion must be a non-negative integer", map[string]any{"field": "snapshotVersion"})
			return
		}
		version = &v
	}
	out, err := h.service.PartQuote(r.Context(), chi.URLParam(r, "id"), qty, version)
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Convert handles GET /api/v1/convert?amount=&from=&to=.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "quote service not configured", nil)
		return
	}
	q := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil || amount.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "amount must be a non-negative decimal", map[string]any{"field": "amount"})
		return
	}
	out, err := h.service.Convert(r.Context(), amount, q.Get("from"), q.Get("to"))
	if err != nil {
		common.WriteError(w, AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}
