package pos

import (
	"fmt"

	"github.com/divestreams/pos/internal/domain"
)

// Reconciler accumulates payment instruments against a fixed, already-rounded total.
// Amounts are compared exactly in cents. Rejected operations leave it unchanged.
type Reconciler struct {
	total    domain.Money
	mode     PaymentMode
	payments []domain.PaymentInstrument
}

// NewReconciler starts reconciliation for total. Split mode accepts cash instruments only.
func NewReconciler(total domain.Money, mode PaymentMode) (*Reconciler, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTotal, total)
	}
	return &Reconciler{total: total, mode: mode}, nil
}

func (r *Reconciler) Total() domain.Money { return r.total }
func (r *Reconciler) Mode() PaymentMode   { return r.mode }

// Payments returns a copy of the accepted instruments in order.
func (r *Reconciler) Payments() []domain.PaymentInstrument {
	return domain.ClonePayments(r.payments)
}

// Paid sums the accepted instrument amounts.
func (r *Reconciler) Paid() domain.Money {
	var paid domain.Money
	for _, p := range r.payments {
		paid += chargedAmount(p)
	}
	return paid
}

// Remaining is total minus paid, never below zero.
func (r *Reconciler) Remaining() domain.Money {
	remaining := r.total - r.Paid()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsComplete reports whether the payments cover the total exactly.
func (r *Reconciler) IsComplete() bool {
	if len(r.payments) == 0 || r.Remaining() != 0 {
		return false
	}
	return aggregateChangeValid(r.payments)
}

// AddPayment appends p after checking its shape and that it fits the remaining balance.
// Malformed instruments return a *SchemaViolation; business rejections return a
// *ReconciliationError carrying the current remaining balance.
func (r *Reconciler) AddPayment(p domain.PaymentInstrument) error {
	if p != nil && p.Charged() <= 0 {
		return r.reject(ErrNonPositiveAmount)
	}
	if err := ValidatePayment(p, r.mode); err != nil {
		return prefixed(paymentPath(len(r.payments)), err)
	}

	switch p.(type) {
	case domain.CashPayment:
	case domain.CardPayment:
		if r.mode == ModeSplit {
			return r.reject(ErrSplitCardUnsupported)
		}
	default:
		return fmt.Errorf("pos: unhandled payment instrument %T", p)
	}

	amount := p.Charged()
	if r.mode == ModeSingle && (len(r.payments) > 0 || amount != r.total) {
		return r.reject(ErrSinglePaymentMismatch)
	}
	paid, ok := domain.AddMoney(r.Paid(), amount)
	if !ok || paid > r.total {
		return r.reject(ErrOverpayment)
	}

	r.payments = append(r.payments, p)
	return nil
}

// RemovePayment deletes the instrument at index.
func (r *Reconciler) RemovePayment(index int) error {
	if index < 0 || index >= len(r.payments) {
		return fmt.Errorf("%w: %d", ErrPaymentIndexOutOfRange, index)
	}
	next := make([]domain.PaymentInstrument, 0, len(r.payments)-1)
	next = append(next, r.payments[:index]...)
	next = append(next, r.payments[index+1:]...)
	r.payments = next
	return nil
}

// FillRemaining proposes a cash instrument for exactly the remaining balance. It does not
// add it; ok is false when nothing remains.
func (r *Reconciler) FillRemaining() (domain.CashPayment, bool) {
	remaining := r.Remaining()
	if remaining == 0 {
		return domain.CashPayment{}, false
	}
	return domain.CashPayment{Amount: remaining, Tendered: remaining, Change: 0}, true
}

func (r *Reconciler) reject(cause error) error {
	return &ReconciliationError{Remaining: r.Remaining(), Err: cause}
}

func chargedAmount(p domain.PaymentInstrument) domain.Money {
	switch v := p.(type) {
	case domain.CashPayment:
		return v.Amount
	case domain.CardPayment:
		return v.Amount
	default:
		return 0
	}
}
