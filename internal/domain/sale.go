package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest is the payload a terminal submits when a sale is paid in full.
type CheckoutRequest struct {
	Items      []LineItem
	CustomerID *uuid.UUID
	Payments   []PaymentInstrument
	Subtotal   Money
	Tax        Money
	Total      Money
	Notes      string
}

// Clone deep-copies the request so callers cannot mutate shared slices.
func (r CheckoutRequest) Clone() CheckoutRequest {
	out := r
	out.Items = CloneLineItems(r.Items)
	out.Payments = ClonePayments(r.Payments)
	if r.CustomerID != nil {
		id := *r.CustomerID
		out.CustomerID = &id
	}
	return out
}

// SaleStatus enumerates lifecycle states of a persisted sale.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	// SaleStatusVoided marks a sale reversed after completion: stock restored, cards refunded.
	SaleStatusVoided SaleStatus = "voided"
)

// Sale is the persisted record of a completed checkout.
type Sale struct {
	ID         string
	TerminalID string
	SessionID  string
	Status     SaleStatus
	CustomerID *uuid.UUID
	Items      []LineItem
	Payments   []PaymentInstrument
	Subtotal   Money
	Tax        Money
	Total      Money
	ChangeDue  Money
	Currency   string
	Notes      string
	VoidReason string
	CreatedAt  time.Time
	VoidedAt   *time.Time
}

// Clone deep-copies the sale.
func (s Sale) Clone() Sale {
	out := s
	out.Items = CloneLineItems(s.Items)
	out.Payments = ClonePayments(s.Payments)
	if s.CustomerID != nil {
		id := *s.CustomerID
		out.CustomerID = &id
	}
	if s.VoidedAt != nil {
		at := *s.VoidedAt
		out.VoidedAt = &at
	}
	return out
}

// ProductLines returns the product items of the sale, the only lines that move stock.
func ProductLines(items []LineItem) []ProductItem {
	var out []ProductItem
	for _, item := range items {
		if product, ok := item.(ProductItem); ok {
			out = append(out, product)
		}
	}
	return out
}

// CashChange totals the change owed across all cash instruments. It reports false when the
// total leaves the Money range.
func CashChange(payments []PaymentInstrument) (Money, bool) {
	var change Money
	for _, p := range payments {
		cash, ok := p.(CashPayment)
		if !ok {
			continue
		}
		if change, ok = AddMoney(change, cash.Change); !ok {
			return 0, false
		}
	}
	return change, true
}

// CardReferences lists the processor references of the card instruments in order.
func CardReferences(payments []PaymentInstrument) []string {
	var refs []string
	for _, p := range payments {
		if card, ok := p.(CardPayment); ok {
			if ref := strings.TrimSpace(card.PaymentReference); ref != "" {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// StockAdjustmentMode selects how a stock adjustment value is interpreted.
type StockAdjustmentMode string

const (
	// StockAdjustDelta adds the value (possibly negative) to the current level.
	StockAdjustDelta StockAdjustmentMode = "adjust"
	// StockAdjustSet replaces the current level with the value.
	StockAdjustSet StockAdjustmentMode = "set"
)

// StockLevel is the on-hand quantity of a product.
type StockLevel struct {
	ProductID uuid.UUID
	Name      string
	OnHand    int64
	UpdatedAt time.Time
}
