package pos

import (
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divestreams/pos/internal/domain"
)

func validRequest() domain.CheckoutRequest {
	return domain.CheckoutRequest{
		Items: []domain.LineItem{
			product("Mask", 2, 4999),
			domain.RentalItem{EquipmentID: uuid.New(), Name: "Tank", Days: 1, DailyRate: 2000, Total: 2000},
		},
		Payments: []domain.PaymentInstrument{
			domain.CashPayment{Amount: 12998, Tendered: 13000, Change: 2},
		},
		Subtotal: 11998,
		Tax:      1000,
		Total:    12998,
	}
}

func TestValidateCheckoutAcceptsConsistentRequest(t *testing.T) {
	req := validRequest()
	req.Notes = "  <b>Regular</b> customer  "

	validated, err := ValidateCheckout(req)
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, validated.Mode())
	assert.Equal(t, domain.Money(12998), validated.Total())
	assert.Equal(t, "Regular customer", validated.Notes())

	var paid domain.Money
	for _, p := range validated.Request().Payments {
		paid += p.Charged()
	}
	assert.Equal(t, validated.Total(), paid)
}

func TestValidateCheckoutEmptyCart(t *testing.T) {
	req := validRequest()
	req.Items = nil
	req.Payments = []domain.PaymentInstrument{domain.CashPayment{Amount: 1000, Tendered: 1000}}

	_, err := ValidateCheckout(req)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestValidateCheckoutNoPayment(t *testing.T) {
	req := validRequest()
	req.Payments = nil

	_, err := ValidateCheckout(req)
	require.ErrorIs(t, err, ErrNoPayment)
}

func TestValidateCheckoutAmountMismatch(t *testing.T) {
	req := validRequest()
	req.Payments = []domain.PaymentInstrument{
		domain.CashPayment{Amount: 6000, Tendered: 6000},
		domain.CashPayment{Amount: 6997, Tendered: 6997},
	}

	_, err := ValidateCheckout(req)
	var mismatch *AmountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, domain.Money(1), mismatch.Delta)
	assert.Equal(t, domain.Money(12998), mismatch.Expected)
	assert.Equal(t, domain.Money(12997), mismatch.Actual)
}

func TestValidateCheckoutRejectsPaymentSumOverflow(t *testing.T) {
	req := validRequest()
	req.Payments = []domain.PaymentInstrument{
		domain.CashPayment{Amount: 1 << 62, Tendered: 1 << 62},
		domain.CashPayment{Amount: 1 << 62, Tendered: 1 << 62},
		domain.CashPayment{Amount: 1 << 62, Tendered: 1 << 62},
		domain.CashPayment{Amount: 1<<62 + 12998, Tendered: 1<<62 + 12998},
	}

	_, err := ValidateCheckout(req)
	require.ErrorIs(t, err, ErrAmountOverflow)
	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "payments[1]", sv.Path)
}

func TestValidateCheckoutRejectsChangeSumOverflow(t *testing.T) {
	req := validRequest()
	req.Payments = []domain.PaymentInstrument{
		domain.CashPayment{Amount: 6000, Tendered: math.MaxInt64, Change: math.MaxInt64 - 6000},
		domain.CashPayment{Amount: 6998, Tendered: math.MaxInt64, Change: math.MaxInt64 - 6998},
	}

	_, err := ValidateCheckout(req)
	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, "payments", sv.Path)
}

func TestValidateCheckoutSchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CheckoutRequest)
		path   string
	}{
		{
			name:   "bad item",
			mutate: func(r *domain.CheckoutRequest) { r.Items[1] = domain.RentalItem{Name: "Tank", Days: 1, DailyRate: 2000, Total: 2000} },
			path:   "items[1].equipmentId",
		},
		{
			name: "bad payment",
			mutate: func(r *domain.CheckoutRequest) {
				r.Payments = []domain.PaymentInstrument{domain.CardPayment{Amount: 12998}}
			},
			path: "payments[0].paymentReference",
		},
		{
			name:   "subtotal differs from items",
			mutate: func(r *domain.CheckoutRequest) { r.Subtotal = 11000; r.Total = 12000; r.Payments = []domain.PaymentInstrument{domain.CashPayment{Amount: 12000, Tendered: 12000}} },
			path:   "subtotal",
		},
		{
			name:   "total differs from subtotal plus tax",
			mutate: func(r *domain.CheckoutRequest) { r.Tax = 999 },
			path:   "total",
		},
		{
			name: "card in split payment",
			mutate: func(r *domain.CheckoutRequest) {
				r.Payments = []domain.PaymentInstrument{
					domain.CashPayment{Amount: 6998, Tendered: 6998},
					domain.CardPayment{Amount: 6000, PaymentReference: "pi_1"},
				}
			},
			path: "payments",
		},
		{
			name: "split change inconsistent",
			mutate: func(r *domain.CheckoutRequest) {
				r.Payments = []domain.PaymentInstrument{
					domain.CashPayment{Amount: 6998, Tendered: 6998},
					domain.CashPayment{Amount: 6000, Tendered: 7000, Change: 500},
				}
			},
			path: "payments",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := ValidateCheckout(req)
			var sv *SchemaViolation
			require.ErrorAs(t, err, &sv)
			assert.Equal(t, tc.path, sv.Path)
		})
	}
}

func TestValidatedCheckoutIsImmutable(t *testing.T) {
	req := validRequest()
	validated, err := ValidateCheckout(req)
	require.NoError(t, err)

	req.Items[0] = product("Changed", 1, 1)
	copyReq := validated.Request()
	copyReq.Items[0] = product("Changed again", 1, 1)

	assert.Equal(t, "Mask", validated.Request().Items[0].Label())
}

func TestSanitizeNotesBoundsLength(t *testing.T) {
	long := strings.Repeat("a", maxNotesRunes+50)
	assert.Len(t, SanitizeNotes(long), maxNotesRunes)
	assert.Equal(t, "", SanitizeNotes("<script>alert(1)</script>"))
}

func TestCheckStockAdjustment(t *testing.T) {
	_, err := CheckStockAdjustment("Mask", 15, -25, domain.StockAdjustDelta)
	var neg *NegativeStockError
	require.ErrorAs(t, err, &neg)
	assert.Equal(t, int64(15), neg.Current)
	assert.Contains(t, err.Error(), "current: 15")

	next, err := CheckStockAdjustment("Mask", 15, -5, domain.StockAdjustDelta)
	require.NoError(t, err)
	assert.Equal(t, int64(10), next)

	next, err = CheckStockAdjustment("Mask", 15, 40, domain.StockAdjustSet)
	require.NoError(t, err)
	assert.Equal(t, int64(40), next)

	_, err = CheckStockAdjustment("Mask", 15, -1, domain.StockAdjustSet)
	require.ErrorAs(t, err, &neg)

	_, err = CheckStockAdjustment("Mask", 15, 1, domain.StockAdjustmentMode("bogus"))
	var sv *SchemaViolation
	require.ErrorAs(t, err, &sv)
}
