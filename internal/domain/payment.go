package domain

import "encoding/json"

// PaymentMethod discriminates the variants of PaymentInstrument.
type PaymentMethod string

const (
	// PaymentMethodCash is physical tender; change may be due.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodCard is a card charge captured by the payment processor.
	PaymentMethodCard PaymentMethod = "card"
)

// PaymentInstrument is one tender applied to a sale. Implementations: CashPayment, CardPayment.
type PaymentInstrument interface {
	Method() PaymentMethod
	// Charged is the portion of the sale total this instrument covers.
	Charged() Money

	isPaymentInstrument()
}

// CashPayment records cash handed over at the counter. Tendered may exceed Amount; the
// difference is returned as Change.
type CashPayment struct {
	Amount   Money `json:"amount"`
	Tendered Money `json:"tendered"`
	Change   Money `json:"change"`
}

func (CashPayment) Method() PaymentMethod { return PaymentMethodCash }
func (c CashPayment) Charged() Money { return c.Amount }
func (CashPayment) isPaymentInstrument() {}

// MarshalJSON writes the payment with its method discriminator.
func (c CashPayment) MarshalJSON() ([]byte, error) {
	type alias CashPayment
	return json.Marshal(struct {
		Method PaymentMethod `json:"method"`
		alias
	}{Method: PaymentMethodCash, alias: alias(c)})
}

// CardPayment references a capture already completed by the card processor.
type CardPayment struct {
	Amount           Money  `json:"amount"`
	PaymentReference string `json:"paymentReference"`
}

func (CardPayment) Method() PaymentMethod { return PaymentMethodCard }
func (c CardPayment) Charged() Money { return c.Amount }
func (CardPayment) isPaymentInstrument() {}

// MarshalJSON writes the payment with its method discriminator.
func (c CardPayment) MarshalJSON() ([]byte, error) {
	type alias CardPayment
	return json.Marshal(struct {
		Method PaymentMethod `json:"method"`
		alias
	}{Method: PaymentMethodCard, alias: alias(c)})
}

// ClonePayments returns a copy of the slice.
func ClonePayments(payments []PaymentInstrument) []PaymentInstrument {
	if payments == nil {
		return nil
	}
	out := make([]PaymentInstrument, len(payments))
	copy(out, payments)
	return out
}
