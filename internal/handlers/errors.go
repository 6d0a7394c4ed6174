package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/divestreams/pos/internal/platform/httpx"
	"github.com/divestreams/pos/internal/platform/requestctx"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/services"
)

// writeServiceError maps domain and service errors onto the JSON error envelope. Typed pos
// errors are matched first so their details survive any service-level wrapping.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	httpx.WriteError(ctx, w, serviceError(ctx, err))
}

func serviceError(ctx context.Context, err error) httpx.Error {
	var (
		negative *pos.NegativeStockError
		mismatch *pos.AmountMismatchError
		recon    *pos.ReconciliationError
		schema   *pos.SchemaViolation
	)
	switch {
	case errors.As(err, &negative):
		return httpx.NewError("negative_stock", negative.Error(), http.StatusConflict).WithDetails(map[string]any{
			"product":   negative.Product,
			"current":   negative.Current,
			"requested": negative.Requested,
		})
	case errors.As(err, &mismatch):
		return httpx.NewError("amount_mismatch", mismatch.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"expected": mismatch.Expected,
			"actual":   mismatch.Actual,
			"delta":    mismatch.Delta,
		})
	case errors.As(err, &recon):
		return httpx.NewError("payment_rejected", recon.Error(), http.StatusConflict).WithDetails(map[string]any{
			"remaining": recon.Remaining,
		})
	case errors.As(err, &schema):
		return httpx.NewError("schema_violation", schema.Message, http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"field": schema.Path,
		})
	case errors.Is(err, pos.ErrEmptyCart):
		return httpx.NewError("empty_cart", "cart has no items", http.StatusUnprocessableEntity)
	case errors.Is(err, pos.ErrNoPayment):
		return httpx.NewError("no_payment", "at least one payment is required", http.StatusUnprocessableEntity)
	case errors.Is(err, pos.ErrItemIndexOutOfRange):
		return httpx.NewError("item_not_found", "no cart item at that index", http.StatusNotFound)
	case errors.Is(err, pos.ErrPaymentIndexOutOfRange):
		return httpx.NewError("payment_not_found", "no payment at that index", http.StatusNotFound)
	case errors.Is(err, pos.ErrInvalidQuantity):
		return httpx.NewError("invalid_quantity", "quantity must be positive", http.StatusUnprocessableEntity)
	case errors.Is(err, pos.ErrAmountOverflow):
		return httpx.NewError("amount_overflow", "amount is out of range", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCheckoutPaymentNotCaptured):
		return httpx.NewError("payment_not_captured", "card payment was not captured", http.StatusPaymentRequired)
	case errors.Is(err, services.ErrItemKindDisabled):
		return httpx.NewError("item_kind_disabled", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrPaymentInProgress):
		return httpx.NewError("payment_in_progress", "cart is locked while payment is in progress", http.StatusConflict)
	case errors.Is(err, services.ErrPaymentNotStarted):
		return httpx.NewError("payment_not_started", "payment has not been started", http.StatusConflict)
	case errors.Is(err, services.ErrSessionNotFound):
		return httpx.NewError("session_not_found", "no open session for terminal", http.StatusNotFound)
	case errors.Is(err, services.ErrSaleNotFound):
		return httpx.NewError("sale_not_found", "sale not found", http.StatusNotFound)
	case errors.Is(err, services.ErrStockNotFound):
		return httpx.NewError("stock_not_found", "no stock record for product", http.StatusNotFound)
	case errors.Is(err, services.ErrTerminalInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrSaleInvalidInput):
		return httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrInventoryUnavailable),
		errors.Is(err, services.ErrSaleUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("service_unavailable", "a dependency is unavailable, retry later", http.StatusServiceUnavailable)
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		return httpx.Internal()
	}
}
