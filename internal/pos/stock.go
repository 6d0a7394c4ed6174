package pos

import (
	"fmt"

	"github.com/divestreams/pos/internal/domain"
)

// CheckStockAdjustment computes the stock level after applying value in mode and rejects
// results below zero with a *NegativeStockError naming the current level.
func CheckStockAdjustment(product string, current, value int64, mode domain.StockAdjustmentMode) (int64, error) {
	var next int64
	switch mode {
	case domain.StockAdjustDelta:
		next = current + value
		if (value > 0 && next < current) || (value < 0 && next > current) {
			return current, fmt.Errorf("%w: stock adjustment", ErrAmountOverflow)
		}
	case domain.StockAdjustSet:
		next = value
	default:
		return current, violation("mode", "mode must be %q or %q", domain.StockAdjustDelta, domain.StockAdjustSet)
	}
	if next < 0 {
		return current, &NegativeStockError{Product: product, Current: current, Requested: next}
	}
	return next, nil
}
