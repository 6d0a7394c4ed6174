package pos

import (
	"errors"
	"fmt"

	"github.com/divestreams/pos/internal/domain"
)

var (
	// ErrEmptyCart is returned when a checkout carries no line items.
	ErrEmptyCart = errors.New("pos: cart is empty")
	// ErrNoPayment is returned when a checkout carries no payment instruments.
	ErrNoPayment = errors.New("pos: no payment provided")
	// ErrSplitCardUnsupported is returned when a card is offered during a split payment.
	ErrSplitCardUnsupported = errors.New("pos: card payments are not supported in split mode")
	// ErrSinglePaymentMismatch is returned when single mode receives a second instrument or a partial amount.
	ErrSinglePaymentMismatch = errors.New("pos: single payment must cover the full total")
	// ErrOverpayment is returned when an instrument would push the paid amount past the total.
	ErrOverpayment = errors.New("pos: payment exceeds remaining balance")
	// ErrNonPositiveAmount is returned when an instrument amount is zero or negative.
	ErrNonPositiveAmount = errors.New("pos: payment amount must be positive")
	// ErrItemIndexOutOfRange is returned when a cart line index does not exist.
	ErrItemIndexOutOfRange = errors.New("pos: item index out of range")
	// ErrPaymentIndexOutOfRange is returned when a recorded payment index does not exist.
	ErrPaymentIndexOutOfRange = errors.New("pos: payment index out of range")
	// ErrInvalidQuantity is returned when a line quantity is zero or negative.
	ErrInvalidQuantity = errors.New("pos: quantity must be positive")
	// ErrInvalidTaxRate is returned for a negative tax rate.
	ErrInvalidTaxRate = errors.New("pos: tax rate must be zero or positive")
	// ErrInvalidTotal is returned when a reconciler is opened for a non-positive total.
	ErrInvalidTotal = errors.New("pos: total must be positive")
	// ErrAmountOverflow is returned when a sum or product of amounts leaves the Money range.
	ErrAmountOverflow = errors.New("pos: amount overflow")
)

// SchemaViolation reports the first field that failed structural validation.
type SchemaViolation struct {
	Path    string
	Message string
}

func (e *SchemaViolation) Error() string {
	if e == nil {
		return "pos: schema violation"
	}
	if e.Path == "" {
		return fmt.Sprintf("pos: schema violation: %s", e.Message)
	}
	return fmt.Sprintf("pos: schema violation at %s: %s", e.Path, e.Message)
}

func violation(path, format string, args ...any) *SchemaViolation {
	return &SchemaViolation{Path: path, Message: fmt.Sprintf(format, args...)}
}

// prefixed re-roots a violation under a parent path, e.g. "quantity" under "items[0]".
func prefixed(parent string, err error) error {
	var sv *SchemaViolation
	if !errors.As(err, &sv) || parent == "" {
		return err
	}
	path := parent
	if sv.Path != "" {
		path = parent + "." + sv.Path
	}
	return &SchemaViolation{Path: path, Message: sv.Message}
}

// ReconciliationError is a rejected payment operation. The reconciler is left unchanged and
// Remaining tells the terminal what is still owed.
type ReconciliationError struct {
	Remaining domain.Money
	Err       error
}

func (e *ReconciliationError) Error() string {
	if e == nil {
		return "pos: payment rejected"
	}
	if e.Err == nil {
		return fmt.Sprintf("pos: payment rejected (remaining %s)", e.Remaining)
	}
	return fmt.Sprintf("%v (remaining %s)", e.Err, e.Remaining)
}

func (e *ReconciliationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AmountMismatchError reports payments that do not sum to the checkout total.
// Delta is total minus paid; positive means underpaid.
type AmountMismatchError struct {
	Expected domain.Money
	Actual   domain.Money
	Delta    domain.Money
}

func (e *AmountMismatchError) Error() string {
	if e == nil {
		return "pos: payment amount mismatch"
	}
	return fmt.Sprintf("pos: payments total %s does not match checkout total %s (delta %s)", e.Actual, e.Expected, e.Delta)
}

// NegativeStockError is returned when an adjustment would leave a product below zero.
type NegativeStockError struct {
	Product   string
	Current   int64
	Requested int64
}

func (e *NegativeStockError) Error() string {
	if e == nil {
		return "pos: stock cannot go negative"
	}
	return fmt.Sprintf("pos: stock for %q cannot go negative (current: %d, result: %d)", e.Product, e.Current, e.Requested)
}
