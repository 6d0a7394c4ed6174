package pos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divestreams/pos/internal/domain"
)

func TestReconcilerSplitCashWithRest(t *testing.T) {
	r, err := NewReconciler(10998, ModeSplit)
	require.NoError(t, err)

	require.NoError(t, r.AddPayment(domain.CashPayment{Amount: 6000, Tendered: 6000}))
	assert.Equal(t, domain.Money(4998), r.Remaining())
	assert.False(t, r.IsComplete())

	rest, ok := r.FillRemaining()
	require.True(t, ok)
	assert.Equal(t, domain.CashPayment{Amount: 4998, Tendered: 4998, Change: 0}, rest)
	assert.Len(t, r.Payments(), 1, "fill remaining only proposes")

	require.NoError(t, r.AddPayment(rest))
	assert.Equal(t, domain.Money(0), r.Remaining())
	assert.True(t, r.IsComplete())
	assert.True(t, r.IsComplete(), "repeated calls are stable")

	_, ok = r.FillRemaining()
	assert.False(t, ok)
}

func TestReconcilerRejectsOverpayment(t *testing.T) {
	r, err := NewReconciler(10998, ModeSplit)
	require.NoError(t, err)
	require.NoError(t, r.AddPayment(domain.CashPayment{Amount: 6000, Tendered: 6000}))

	err = r.AddPayment(domain.CashPayment{Amount: 20000, Tendered: 20000})
	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.Money(4998), rerr.Remaining)
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Len(t, r.Payments(), 1)
	assert.Equal(t, domain.Money(4998), r.Remaining())
}

func TestReconcilerRejectsNonPositiveAmount(t *testing.T) {
	r, err := NewReconciler(1000, ModeSplit)
	require.NoError(t, err)

	err = r.AddPayment(domain.CashPayment{Amount: 0, Tendered: 100})
	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.Money(1000), rerr.Remaining)
	assert.Empty(t, r.Payments())
}

func TestReconcilerSplitModeExcludesCards(t *testing.T) {
	r, err := NewReconciler(1000, ModeSplit)
	require.NoError(t, err)

	err = r.AddPayment(domain.CardPayment{Amount: 500, PaymentReference: "pi_1"})
	require.ErrorIs(t, err, ErrSplitCardUnsupported)
	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.Money(1000), rerr.Remaining)
}

func TestReconcilerSingleMode(t *testing.T) {
	r, err := NewReconciler(10998, ModeSingle)
	require.NoError(t, err)

	err = r.AddPayment(domain.CashPayment{Amount: 5000, Tendered: 5000})
	require.ErrorIs(t, err, ErrSinglePaymentMismatch)

	err = r.AddPayment(domain.CashPayment{Amount: 10998, Tendered: 12000, Change: 0})
	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "payments[0].change", sv.Path)

	require.NoError(t, r.AddPayment(domain.CashPayment{Amount: 10998, Tendered: 12000, Change: 1002}))
	assert.True(t, r.IsComplete())

	err = r.AddPayment(domain.CardPayment{Amount: 10998, PaymentReference: "pi_2"})
	require.ErrorIs(t, err, ErrSinglePaymentMismatch)
}

func TestReconcilerSingleCard(t *testing.T) {
	r, err := NewReconciler(10998, ModeSingle)
	require.NoError(t, err)
	require.NoError(t, r.AddPayment(domain.CardPayment{Amount: 10998, PaymentReference: "pi_3"}))
	assert.True(t, r.IsComplete())
}

func TestReconcilerRemovePayment(t *testing.T) {
	r, err := NewReconciler(3000, ModeSplit)
	require.NoError(t, err)
	require.NoError(t, r.AddPayment(domain.CashPayment{Amount: 1000, Tendered: 1000}))
	require.NoError(t, r.AddPayment(domain.CashPayment{Amount: 2000, Tendered: 2000}))
	require.True(t, r.IsComplete())

	require.NoError(t, r.RemovePayment(0))
	assert.Equal(t, domain.Money(1000), r.Remaining())
	assert.False(t, r.IsComplete())
	require.ErrorIs(t, r.RemovePayment(5), ErrPaymentIndexOutOfRange)
}

func TestReconcilerRemainingInvariant(t *testing.T) {
	r, err := NewReconciler(2500, ModeSplit)
	require.NoError(t, err)
	amounts := []domain.Money{700, 300, 900, 1200, 600}
	for _, amount := range amounts {
		_ = r.AddPayment(domain.CashPayment{Amount: amount, Tendered: amount})
		assert.Equal(t, r.Total()-r.Paid(), r.Remaining())
		assert.GreaterOrEqual(t, int64(r.Remaining()), int64(0))
	}
	assert.Equal(t, domain.Money(2500), r.Paid())
	assert.True(t, r.IsComplete())
}

func TestNewReconcilerRejectsNonPositiveTotal(t *testing.T) {
	_, err := NewReconciler(0, ModeSingle)
	require.ErrorIs(t, err, ErrInvalidTotal)
}
