package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/services"
)

type stubInventoryService struct {
	levels      map[uuid.UUID]domain.StockLevel
	adjustments []services.AdjustStockCommand
}

func (s *stubInventoryService) AdjustStock(_ context.Context, cmd services.AdjustStockCommand) (domain.StockLevel, error) {
	s.adjustments = append(s.adjustments, cmd)
	level, ok := s.levels[cmd.ProductID]
	if !ok {
		level = domain.StockLevel{ProductID: cmd.ProductID, Name: cmd.Name}
	}
	next, err := pos.CheckStockAdjustment(level.Name, level.OnHand, cmd.Value, cmd.Mode)
	if err != nil {
		return domain.StockLevel{}, fmt.Errorf("%w: %w", services.ErrInsufficientStock, err)
	}
	level.OnHand = next
	level.UpdatedAt = testNow
	s.levels[cmd.ProductID] = level
	return level, nil
}

func (s *stubInventoryService) DecrementForSale(context.Context, []domain.ProductItem) error {
	return nil
}

func (s *stubInventoryService) RestoreForSale(context.Context, []domain.ProductItem) error {
	return nil
}

func (s *stubInventoryService) GetStock(_ context.Context, productID uuid.UUID) (domain.StockLevel, error) {
	level, ok := s.levels[productID]
	if !ok {
		return domain.StockLevel{}, services.ErrStockNotFound
	}
	return level, nil
}

var _ services.InventoryService = (*stubInventoryService)(nil)

func TestInventoryHandlers(t *testing.T) {
	inventory := &stubInventoryService{
		levels: map[uuid.UUID]domain.StockLevel{
			maskID: {ProductID: maskID, Name: "Mask", OnHand: 15, UpdatedAt: testNow},
		},
	}
	router := NewRouter(WithInventoryRoutes(NewInventoryHandlers(inventory).Routes))
	path := "/api/v1/inventory/" + maskID.String()

	rr := doRequest(t, router, http.MethodGet, path, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeJSON[stockView](t, rr); got.OnHand != 15 || got.Name != "Mask" {
		t.Fatalf("unexpected stock %+v", got)
	}

	body := expectError(t, doRequest(t, router, http.MethodPost, path+"/adjustments", `{"mode":"adjust","value":-25}`, nil),
		http.StatusConflict, "negative_stock")
	if body.Current == nil || *body.Current != 15 {
		t.Fatalf("expected current 15, got %v", body.Current)
	}
	if got := decodeJSON[stockView](t, doRequest(t, router, http.MethodGet, path, "", nil)); got.OnHand != 15 {
		t.Fatalf("expected stock unchanged after rejection, got %d", got.OnHand)
	}

	rr = doRequest(t, router, http.MethodPost, path+"/adjustments", `{"mode":"adjust","value":-5}`, nil)
	if got := decodeJSON[stockView](t, rr); rr.Code != http.StatusOK || got.OnHand != 10 {
		t.Fatalf("expected 10 on hand, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodPost, path+"/adjustments", `{"mode":"set","value":40}`, nil)
	if got := decodeJSON[stockView](t, rr); got.OnHand != 40 {
		t.Fatalf("expected 40 on hand, got %s", rr.Body.String())
	}

	fieldBody := expectError(t, doRequest(t, router, http.MethodPost, path+"/adjustments", `{"mode":"set"}`, nil),
		http.StatusUnprocessableEntity, "schema_violation")
	if fieldBody.Field == nil || *fieldBody.Field != "value" {
		t.Fatalf("expected field value, got %v", fieldBody.Field)
	}

	expectError(t, doRequest(t, router, http.MethodGet, "/api/v1/inventory/not-a-uuid", "", nil), http.StatusBadRequest, "invalid_request")
	expectError(t, doRequest(t, router, http.MethodGet, "/api/v1/inventory/"+finsID.String(), "", nil), http.StatusNotFound, "stock_not_found")
	expectError(t, doRequest(t, router, http.MethodPost, path+"/adjustments", `[`, nil), http.StatusBadRequest, "invalid_request")

	if len(inventory.adjustments) != 3 {
		t.Fatalf("expected three adjustments reaching the service, got %d", len(inventory.adjustments))
	}
	if inventory.adjustments[2].Mode != domain.StockAdjustSet {
		t.Fatalf("expected set mode, got %q", inventory.adjustments[2].Mode)
	}
}
