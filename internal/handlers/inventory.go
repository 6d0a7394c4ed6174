package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/platform/httpx"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/services"
)

// InventoryHandlers exposes on-hand stock per product.
type InventoryHandlers struct {
	inventory services.InventoryService
}

func NewInventoryHandlers(inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{inventory: inventory}
}

// Routes registers inventory endpoints under the provided router.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}", h.getStock)
	r.Post("/{productID}/adjustments", h.adjustStock)
}

type adjustStockRequest struct {
	Mode  string `json:"mode"`
	Value *int64 `json:"value"`
	Name  string `json:"name"`
}

func (h *InventoryHandlers) productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "productID must be a UUID", http.StatusBadRequest))
		return uuid.Nil, false
	}
	return id, true
}

func (h *InventoryHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	level, err := h.inventory.GetStock(ctx, id)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newStockView(level))
}

func (h *InventoryHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	body, err := readLimitedBody(r, maxMutationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req adjustStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeBodyError(ctx, w, errInvalidJSON)
		return
	}
	if req.Value == nil {
		writeServiceError(ctx, w, &pos.SchemaViolation{Path: "value", Message: "value is required"})
		return
	}

	level, err := h.inventory.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID: id,
		Name:      req.Name,
		Mode:      domain.StockAdjustmentMode(strings.TrimSpace(req.Mode)),
		Value:     *req.Value,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newStockView(level))
}
