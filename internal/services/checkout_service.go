package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/payments"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/repositories"
)

const (
	maxVoidReasonRunes = 500
	voidRefundReason   = "requested_by_customer"
)

var (
	// ErrCheckoutInvalidInput wraps the validator error that rejected the request.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutInsufficientStock wraps the *pos.NegativeStockError of the first short product.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutPaymentNotCaptured indicates a card instrument has no matching capture.
	ErrCheckoutPaymentNotCaptured = errors.New("checkout: card payment not captured")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Sales       repositories.SaleRepository
	Inventory   InventoryService
	Payments    PaymentGateway
	Publisher   SaleEventPublisher
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	sales     repositories.SaleRepository
	inventory InventoryService
	payments  PaymentGateway
	publisher SaleEventPublisher
	currency  string
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies. Payments
// and Publisher are optional: without a gateway card instruments are refused, without a
// publisher no sale events are emitted.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Sales == nil {
		return nil, errors.New("checkout service: sale repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("checkout service: inventory service is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("checkout service: invalid currency %q", deps.Currency)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		sales:     deps.Sales,
		inventory: deps.Inventory,
		payments:  deps.Payments,
		publisher: deps.Publisher,
		currency:  currency,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Checkout validates the request, confirms card captures, takes product lines out of stock
// and persists the sale. Stock is put back when the sale cannot be stored.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (domain.Sale, error) {
	terminalID := strings.TrimSpace(cmd.TerminalID)
	if terminalID == "" {
		return domain.Sale{}, fmt.Errorf("%w: terminal id is required", ErrCheckoutInvalidInput)
	}

	validated, err := pos.ValidateCheckout(cmd.Request)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	req := validated.Request()
	changeDue, ok := domain.CashChange(req.Payments)
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, pos.ErrAmountOverflow)
	}

	if err := s.verifyCards(ctx, terminalID, req.Payments); err != nil {
		return domain.Sale{}, err
	}

	lines := domain.ProductLines(req.Items)
	if err := s.inventory.DecrementForSale(ctx, lines); err != nil {
		switch {
		case errors.Is(err, ErrInsufficientStock):
			return domain.Sale{}, fmt.Errorf("%w: %w", ErrCheckoutInsufficientStock, err)
		case errors.Is(err, ErrInventoryInvalidInput):
			return domain.Sale{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
		default:
			s.logger(ctx, "checkout.decrement_failed", map[string]any{
				"terminalId": terminalID,
				"error":      err.Error(),
			})
			return domain.Sale{}, ErrCheckoutUnavailable
		}
	}

	sale := domain.Sale{
		ID:         s.newID(),
		TerminalID: terminalID,
		SessionID:  strings.TrimSpace(cmd.SessionID),
		Status:     domain.SaleStatusCompleted,
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Payments:   req.Payments,
		Subtotal:   req.Subtotal,
		Tax:        req.Tax,
		Total:      req.Total,
		ChangeDue:  changeDue,
		Currency:   s.currency,
		Notes:      req.Notes,
		CreatedAt:  s.now(),
	}

	if err := s.sales.Insert(ctx, sale); err != nil {
		if errors.Is(err, repositories.ErrPaymentReferenceUsed) {
			s.logger(ctx, "checkout.payment_reference_reused", map[string]any{
				"terminalId": terminalID,
				"saleId":     sale.ID,
				"error":      err.Error(),
			})
			s.restoreStock(ctx, sale.ID, lines)
			return domain.Sale{}, fmt.Errorf("%w: %w", ErrCheckoutPaymentNotCaptured, err)
		}
		s.logger(ctx, "checkout.persist_failed", map[string]any{
			"terminalId": terminalID,
			"saleId":     sale.ID,
			"error":      err.Error(),
		})
		s.restoreStock(ctx, sale.ID, lines)
		return domain.Sale{}, ErrCheckoutUnavailable
	}

	s.logger(ctx, "checkout.completed", map[string]any{
		"terminalId": terminalID,
		"saleId":     sale.ID,
		"total":      sale.Total.String(),
		"items":      len(sale.Items),
		"payments":   len(sale.Payments),
		"mode":       validated.Mode().String(),
	})
	s.publishCompleted(ctx, sale)
	return sale.Clone(), nil
}

// VoidSale reverses a completed sale. Card instruments are refunded before the status
// changes, so a failed refund leaves the sale completed and the call can be retried.
func (s *checkoutService) VoidSale(ctx context.Context, cmd VoidSaleCommand) (domain.Sale, error) {
	saleID := strings.TrimSpace(cmd.SaleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", ErrCheckoutInvalidInput)
	}
	reason := truncateRunes(pos.SanitizeNotes(cmd.Reason), maxVoidReasonRunes)

	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, s.translateSaleError(ctx, saleID, err)
	}
	if sale.Status == domain.SaleStatusVoided {
		return sale, nil
	}

	if err := s.refundCards(ctx, sale, reason); err != nil {
		return domain.Sale{}, err
	}

	voided, err := s.sales.UpdateStatus(ctx, saleID, repositories.SaleStatusChange{
		From:   domain.SaleStatusCompleted,
		To:     domain.SaleStatusVoided,
		Reason: reason,
		At:     s.now(),
	})
	if err != nil {
		if repositories.IsConflict(err) {
			// A concurrent void won; report its result.
			current, findErr := s.sales.FindByID(ctx, saleID)
			if findErr == nil && current.Status == domain.SaleStatusVoided {
				return current, nil
			}
		}
		return domain.Sale{}, s.translateSaleError(ctx, saleID, err)
	}

	s.restoreStock(ctx, saleID, domain.ProductLines(voided.Items))
	s.logger(ctx, "checkout.voided", map[string]any{
		"saleId":     saleID,
		"terminalId": voided.TerminalID,
		"total":      voided.Total.String(),
	})
	return voided, nil
}

func (s *checkoutService) verifyCards(ctx context.Context, terminalID string, instruments []domain.PaymentInstrument) error {
	for i, instrument := range instruments {
		card, ok := instrument.(domain.CardPayment)
		if !ok {
			continue
		}
		if s.payments == nil {
			s.logger(ctx, "checkout.card_without_gateway", map[string]any{"terminalId": terminalID})
			return ErrCheckoutUnavailable
		}
		details, err := s.payments.LookupPayment(ctx, payments.PaymentContext{Currency: s.currency}, payments.LookupRequest{
			Reference: card.PaymentReference,
		})
		if err != nil {
			if errors.Is(err, payments.ErrPaymentNotFound) {
				return fmt.Errorf("%w: payments[%d] reference %q unknown", ErrCheckoutPaymentNotCaptured, i, card.PaymentReference)
			}
			s.logger(ctx, "checkout.card_lookup_failed", map[string]any{
				"terminalId": terminalID,
				"reference":  card.PaymentReference,
				"error":      err.Error(),
			})
			return ErrCheckoutUnavailable
		}
		if details.Currency != "" && !strings.EqualFold(details.Currency, s.currency) {
			return fmt.Errorf("%w: payments[%d] captured in %s", ErrCheckoutPaymentNotCaptured, i, strings.ToUpper(details.Currency))
		}
		if !details.Captured(int64(card.Amount)) {
			return fmt.Errorf("%w: payments[%d] status %s, captured %d of %d", ErrCheckoutPaymentNotCaptured, i, details.Status, details.AmountCaptured, int64(card.Amount))
		}
	}
	return nil
}

func (s *checkoutService) refundCards(ctx context.Context, sale domain.Sale, reason string) error {
	for i, instrument := range sale.Payments {
		card, ok := instrument.(domain.CardPayment)
		if !ok {
			continue
		}
		if s.payments == nil {
			s.logger(ctx, "checkout.refund_without_gateway", map[string]any{"saleId": sale.ID})
			return ErrCheckoutUnavailable
		}
		amount := int64(card.Amount)
		metadata := map[string]string{"sale_id": sale.ID, "terminal_id": sale.TerminalID}
		if reason != "" {
			metadata["void_reason"] = reason
		}
		key := sale.ID
		if i > 0 {
			key = fmt.Sprintf("%s-%d", sale.ID, i)
		}
		_, err := s.payments.Refund(ctx, payments.PaymentContext{Currency: sale.Currency}, payments.RefundRequest{
			Reference:      card.PaymentReference,
			Amount:         &amount,
			Reason:         voidRefundReason,
			IdempotencyKey: key,
			Metadata:       metadata,
		})
		if err != nil {
			s.logger(ctx, "checkout.refund_failed", map[string]any{
				"saleId":    sale.ID,
				"reference": card.PaymentReference,
				"error":     err.Error(),
			})
			return ErrCheckoutUnavailable
		}
	}
	return nil
}

func (s *checkoutService) restoreStock(ctx context.Context, saleID string, lines []domain.ProductItem) {
	if len(lines) == 0 {
		return
	}
	if err := s.inventory.RestoreForSale(ctx, lines); err != nil {
		s.logger(ctx, "checkout.restore_failed", map[string]any{
			"saleId": saleID,
			"error":  err.Error(),
		})
	}
}

func (s *checkoutService) publishCompleted(ctx context.Context, sale domain.Sale) {
	if s.publisher == nil {
		return
	}
	message := SaleCompletedMessage{
		SaleID:      sale.ID,
		TerminalID:  sale.TerminalID,
		Total:       sale.Total,
		Currency:    sale.Currency,
		ItemCount:   len(sale.Items),
		CompletedAt: sale.CreatedAt,
	}
	if sale.CustomerID != nil {
		message.CustomerID = sale.CustomerID.String()
	}
	if _, err := s.publisher.PublishSaleCompleted(ctx, message); err != nil {
		s.logger(ctx, "checkout.publish_failed", map[string]any{
			"saleId": sale.ID,
			"error":  err.Error(),
		})
	}
}

func (s *checkoutService) translateSaleError(ctx context.Context, saleID string, err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrSaleNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		s.logger(ctx, "checkout.sale_store_failed", map[string]any{
			"saleId": saleID,
			"error":  err.Error(),
		})
		return ErrCheckoutUnavailable
	}
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return strings.TrimSpace(string(runes[:limit]))
}
