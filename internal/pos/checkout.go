package pos

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/divestreams/pos/internal/domain"
)

const maxNotesRunes = 1000

var notesPolicy = bluemonday.StrictPolicy()

// ValidatedCheckout is a checkout request that passed ValidateCheckout. It can only be built
// by the validator and hands out copies, so downstream persistence sees exactly what was
// certified.
type ValidatedCheckout struct {
	req  domain.CheckoutRequest
	mode PaymentMode
}

// Request returns a copy of the certified request.
func (v ValidatedCheckout) Request() domain.CheckoutRequest { return v.req.Clone() }

// Mode reports whether the payments were validated as a split payment.
func (v ValidatedCheckout) Mode() PaymentMode { return v.mode }

// Total returns the certified sale total, equal to the sum of the payments.
func (v ValidatedCheckout) Total() domain.Money { return v.req.Total }

// Notes returns the sanitised notes.
func (v ValidatedCheckout) Notes() string { return v.req.Notes }

// CustomerID returns a copy of the attached customer id, if any.
func (v ValidatedCheckout) CustomerID() *uuid.UUID {
	if v.req.CustomerID == nil {
		return nil
	}
	id := *v.req.CustomerID
	return &id
}

// ValidateCheckout certifies a fully assembled checkout. It reports ErrEmptyCart,
// ErrNoPayment, a *SchemaViolation or an *AmountMismatchError for the first problem found.
func ValidateCheckout(req domain.CheckoutRequest) (ValidatedCheckout, error) {
	if len(req.Items) == 0 {
		return ValidatedCheckout{}, ErrEmptyCart
	}
	if len(req.Payments) == 0 {
		return ValidatedCheckout{}, ErrNoPayment
	}

	mode := ModeSingle
	if len(req.Payments) > 1 {
		mode = ModeSplit
	}

	for i, item := range req.Items {
		if err := ValidateLineItem(item); err != nil {
			return ValidatedCheckout{}, prefixed(itemPath(i), err)
		}
	}
	for i, payment := range req.Payments {
		if err := ValidatePayment(payment, mode); err != nil {
			return ValidatedCheckout{}, prefixed(paymentPath(i), err)
		}
	}

	if req.Subtotal <= 0 {
		return ValidatedCheckout{}, violation("subtotal", "subtotal must be greater than zero")
	}
	if req.Tax < 0 {
		return ValidatedCheckout{}, violation("tax", "tax cannot be negative")
	}
	if req.Total <= 0 {
		return ValidatedCheckout{}, violation("total", "total must be greater than zero")
	}
	itemsTotal, err := sumLineItems(req.Items)
	if err != nil {
		return ValidatedCheckout{}, err
	}
	if itemsTotal != req.Subtotal {
		return ValidatedCheckout{}, violation("subtotal", "subtotal %s does not match item totals %s", req.Subtotal, itemsTotal)
	}
	if sum, ok := domain.AddMoney(req.Subtotal, req.Tax); !ok || sum != req.Total {
		return ValidatedCheckout{}, violation("total", "total %s must equal subtotal plus tax", req.Total)
	}

	var paid domain.Money
	cards := 0
	for i, payment := range req.Payments {
		if _, ok := payment.(domain.CardPayment); ok {
			cards++
		}
		sum, ok := domain.AddMoney(paid, payment.Charged())
		if !ok {
			return ValidatedCheckout{}, fmt.Errorf("%w: %w", ErrAmountOverflow, violation(paymentPath(i), "payment amounts exceed the supported range"))
		}
		paid = sum
	}
	if paid != req.Total {
		return ValidatedCheckout{}, &AmountMismatchError{Expected: req.Total, Actual: paid, Delta: req.Total - paid}
	}
	if mode == ModeSplit {
		if cards > 0 {
			return ValidatedCheckout{}, violation("payments", "%s", ErrSplitCardUnsupported.Error())
		}
		if !aggregateChangeValid(req.Payments) {
			return ValidatedCheckout{}, violation("payments", "cash change must equal tendered minus amount")
		}
	}

	certified := req.Clone()
	certified.Notes = SanitizeNotes(req.Notes)
	return ValidatedCheckout{req: certified, mode: mode}, nil
}

// SanitizeNotes strips markup, trims and bounds free-text notes.
func SanitizeNotes(notes string) string {
	cleaned := strings.TrimSpace(notesPolicy.Sanitize(notes))
	if utf8.RuneCountInString(cleaned) <= maxNotesRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxNotesRunes]))
}
