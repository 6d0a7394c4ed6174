package domain

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// ErrInvalidMoney is returned when an amount cannot be parsed as a decimal.
	ErrInvalidMoney = errors.New("domain: invalid money amount")
	// ErrMoneyPrecision is returned when an amount carries more than two fractional digits.
	ErrMoneyPrecision = errors.New("domain: money amount has more than 2 decimal places")
	// ErrMoneyOverflow is returned when an amount does not fit in int64 minor units.
	ErrMoneyOverflow = errors.New("domain: money amount overflows")
)

const moneyScale = 2

var (
	maxMoneyDecimal = decimal.NewFromInt(math.MaxInt64)
	minMoneyDecimal = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount in the smallest currency unit (cents). Arithmetic never leaves integer space.
type Money int64

// ParseMoney parses a decimal string such as "49.99" into minor units.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, ErrInvalidMoney
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, value)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts an exact decimal into minor units, rejecting sub-cent precision.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Truncate(moneyScale).Equal(d) {
		return 0, fmt.Errorf("%w: %s", ErrMoneyPrecision, d.String())
	}
	cents := d.Shift(moneyScale)
	if cents.GreaterThan(maxMoneyDecimal) || cents.LessThan(minMoneyDecimal) {
		return 0, ErrMoneyOverflow
	}
	return Money(cents.IntPart()), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -moneyScale)
}

// String renders the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.Decimal().StringFixed(moneyScale)
}

// MarshalJSON encodes the amount as a JSON number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*m = 0
		return nil
	}
	raw = bytes.Trim(raw, `"`)
	parsed, err := ParseMoney(string(raw))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// AddMoney sums amounts and reports overflow instead of wrapping.
func AddMoney(a, b Money) (Money, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// MulMoney multiplies an amount by a non-negative count and reports overflow.
func MulMoney(amount Money, count int64) (Money, bool) {
	if amount == 0 || count == 0 {
		return 0, true
	}
	if count < 0 {
		return 0, false
	}
	if amount > 0 && int64(amount) > math.MaxInt64/count {
		return 0, false
	}
	if amount < 0 && int64(amount) < math.MinInt64/count {
		return 0, false
	}
	return amount * Money(count), true
}

// MoneyFormatter renders amounts for receipts in a locale and currency.
type MoneyFormatter struct {
	printer *message.Printer
	unit    currency.Unit
}

// NewMoneyFormatter builds a formatter from a BCP 47 locale and an ISO 4217 code.
func NewMoneyFormatter(locale, code string) (MoneyFormatter, error) {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return MoneyFormatter{}, fmt.Errorf("domain: parse locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return MoneyFormatter{}, fmt.Errorf("domain: parse currency %q: %w", code, err)
	}
	return MoneyFormatter{printer: message.NewPrinter(tag), unit: unit}, nil
}

// Currency returns the ISO code of the formatter currency.
func (f MoneyFormatter) Currency() string {
	return f.unit.String()
}

// Format renders the amount with the currency symbol, e.g. "$109.98".
func (f MoneyFormatter) Format(m Money) string {
	if f.printer == nil {
		return m.String()
	}
	// display only; the float never feeds back into arithmetic
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(m.Decimal().InexactFloat64())))
}
