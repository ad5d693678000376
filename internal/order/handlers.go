package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-impor/internal/cart"
	"github.com/noah-isme/backend-impor/internal/common"
	"github.com/noah-isme/backend-impor/internal/lock"
	"github.com/noah-isme/backend-impor/internal/quote"
)

// Handler exposes order endpoints.
type Handler struct {
	committer *Committer
}

// NewHandler constructs a Handler.
func NewHandler(committer *Committer) *Handler {
	return &Handler{committer: committer}
}

// Commit handles POST /api/v1/orders.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	if h.committer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order committer not configured", nil)
		return
	}
	var req cart.Request
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.committer.Commit(r.Context(), req)
	if err != nil {
		common.WriteError(w, asAppError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// Get handles GET /api/v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.committer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order committer not configured", nil)
		return
	}
	o, err := h.committer.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, asAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func asAppError(err error) error {
	var (
		rejected *RejectedError
		stock    *StockError
	)
	switch {
	case errors.As(err, &rejected):
		return common.Conflict("CART_REJECTED", "cart has items that cannot be ordered", err,
			map[string]any{"rejections": rejected.Cart.Rejections})
	case errors.As(err, &stock):
		return common.Conflict("OUT_OF_STOCK", stock.Error(), err, map[string]any{"partId": stock.PartID})
	case errors.Is(err, ErrContention):
		return common.Unavailable("ORDER_CONTENTION", "order could not be committed because of concurrent orders, retry", err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.Conflict("ORDER_IN_PROGRESS", "cart is being committed", err, nil)
	case errors.Is(err, ErrNotFound):
		return common.NotFound("ORDER_NOT_FOUND", "order not found", err)
	default:
		return quote.AsAppError(err)
	}
}
