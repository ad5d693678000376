package cart

import (
	"net/http"

	"github.com/noah-isme/backend-impor/internal/common"
	"github.com/noah-isme/backend-impor/internal/quote"
)

// Handler exposes cart assembly over HTTP.
type Handler struct {
	assembler *Assembler
}

// NewHandler constructs a Handler.
func NewHandler(assembler *Assembler) *Handler {
	return &Handler{assembler: assembler}
}

// Assemble handles POST /api/v1/carts/assemble. Rejected items are part of a
// successful response; the client decides whether to drop them or pick an
// alternative.
func (h *Handler) Assemble(w http.ResponseWriter, r *http.Request) {
	if h.assembler == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart assembler not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeAndValidate(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.assembler.Assemble(r.Context(), req)
	if err != nil {
		common.WriteError(w, quote.AsAppError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}
