package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInsufficientStock wraps the *pos.NegativeStockError of a rejected adjustment or sale.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrStockNotFound indicates no stock record exists for the product.
	ErrStockNotFound = errors.New("inventory: stock not found")
	// ErrInventoryUnavailable indicates the stock store could not be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Stock  repositories.StockRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	stock  repositories.StockRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Stock == nil {
		return nil, errors.New("inventory service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		stock: deps.Stock,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.StockLevel, error) {
	if cmd.ProductID == uuid.Nil {
		return domain.StockLevel{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	switch cmd.Mode {
	case domain.StockAdjustDelta, domain.StockAdjustSet:
	default:
		return domain.StockLevel{}, fmt.Errorf("%w: %w", ErrInventoryInvalidInput, &pos.SchemaViolation{
			Path:    "mode",
			Message: fmt.Sprintf("mode must be %q or %q", domain.StockAdjustDelta, domain.StockAdjustSet),
		})
	}

	levels, err := s.stock.Apply(ctx, []repositories.StockMutation{{
		ProductID: cmd.ProductID,
		Name:      strings.TrimSpace(cmd.Name),
		Mode:      cmd.Mode,
		Value:     cmd.Value,
	}}, s.now())
	if err != nil {
		return domain.StockLevel{}, s.translateError(ctx, "inventory.adjust_failed", err)
	}
	level := levels[len(levels)-1]
	s.logger(ctx, "inventory.adjusted", map[string]any{
		"productId": level.ProductID.String(),
		"mode":      string(cmd.Mode),
		"value":     cmd.Value,
		"onHand":    level.OnHand,
	})
	return level, nil
}

// DecrementForSale takes every product line out of stock in one atomic step. Rental and
// booking lines never reach this method.
func (s *inventoryService) DecrementForSale(ctx context.Context, lines []domain.ProductItem) error {
	return s.applySale(ctx, "inventory.decrement_failed", lines, -1)
}

// RestoreForSale puts the product lines of a sale back, e.g. when persisting it failed or it
// was voided.
func (s *inventoryService) RestoreForSale(ctx context.Context, lines []domain.ProductItem) error {
	return s.applySale(ctx, "inventory.restore_failed", lines, 1)
}

func (s *inventoryService) GetStock(ctx context.Context, productID uuid.UUID) (domain.StockLevel, error) {
	if productID == uuid.Nil {
		return domain.StockLevel{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	level, err := s.stock.Get(ctx, productID)
	if err != nil {
		return domain.StockLevel{}, s.translateError(ctx, "inventory.get_failed", err)
	}
	return level, nil
}

func (s *inventoryService) applySale(ctx context.Context, event string, lines []domain.ProductItem, sign int64) error {
	if len(lines) == 0 {
		return nil
	}
	mutations := make([]repositories.StockMutation, 0, len(lines))
	for i, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d", ErrInventoryInvalidInput, i)
		}
		mutations = append(mutations, repositories.StockMutation{
			ProductID: line.ProductID,
			Name:      line.Name,
			Mode:      domain.StockAdjustDelta,
			Value:     sign * line.Quantity,
		})
	}
	if _, err := s.stock.Apply(ctx, mutations, s.now()); err != nil {
		return s.translateError(ctx, event, err)
	}
	return nil
}

func (s *inventoryService) translateError(ctx context.Context, event string, err error) error {
	var negative *pos.NegativeStockError
	if errors.As(err, &negative) {
		return fmt.Errorf("%w: %w", ErrInsufficientStock, negative)
	}
	var schema *pos.SchemaViolation
	if errors.As(err, &schema) {
		return fmt.Errorf("%w: %w", ErrInventoryInvalidInput, schema)
	}
	if errors.Is(err, pos.ErrAmountOverflow) {
		return fmt.Errorf("%w: %w", ErrInventoryInvalidInput, err)
	}
	if repositories.IsNotFound(err) {
		return ErrStockNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %w", ErrInventoryUnavailable, err)
}
