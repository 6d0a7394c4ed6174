package pos

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
)

// PaymentMode selects how the reconciler and validator treat cash change.
type PaymentMode int

const (
	// ModeSingle expects exactly one instrument covering the total.
	ModeSingle PaymentMode = iota
	// ModeSplit accepts several cash instruments whose change is checked in aggregate.
	ModeSplit
)

func (m PaymentMode) String() string {
	if m == ModeSplit {
		return "split"
	}
	return "single"
}

// ValidateLineItem checks the structural constraints of one line item. It does not check
// that the total equals units times rate.
func ValidateLineItem(item domain.LineItem) error {
	switch v := item.(type) {
	case domain.ProductItem:
		if err := requireID("productId", v.ProductID); err != nil {
			return err
		}
		if err := requireText("name", v.Name); err != nil {
			return err
		}
		return requireAmounts("quantity", v.Quantity, "unitPrice", v.UnitPrice, v.Total)
	case domain.RentalItem:
		if err := requireID("equipmentId", v.EquipmentID); err != nil {
			return err
		}
		if err := requireText("name", v.Name); err != nil {
			return err
		}
		return requireAmounts("days", v.Days, "dailyRate", v.DailyRate, v.Total)
	case domain.BookingItem:
		if err := requireID("tripId", v.TripID); err != nil {
			return err
		}
		if err := requireText("tourName", v.TourName); err != nil {
			return err
		}
		return requireAmounts("participants", v.Participants, "unitPrice", v.UnitPrice, v.Total)
	case nil:
		return violation("", "item is required")
	default:
		return violation("kind", "unsupported line item %T", item)
	}
}

// ValidatePayment checks the structural constraints of one instrument. In single mode a cash
// instrument must carry exactly the change owed; split mode defers the change check to the
// aggregate.
func ValidatePayment(p domain.PaymentInstrument, mode PaymentMode) error {
	switch v := p.(type) {
	case domain.CashPayment:
		if v.Amount <= 0 {
			return violation("amount", "amount must be greater than zero")
		}
		if v.Tendered <= 0 {
			return violation("tendered", "tendered must be greater than zero")
		}
		if v.Change < 0 {
			return violation("change", "change cannot be negative")
		}
		if v.Tendered < v.Amount {
			return violation("tendered", "tendered %s is less than amount %s", v.Tendered, v.Amount)
		}
		if mode == ModeSingle {
			if expected := v.Tendered - v.Amount; v.Change != expected {
				return violation("change", "change must be %s for tendered %s", expected, v.Tendered)
			}
		}
		return nil
	case domain.CardPayment:
		if v.Amount <= 0 {
			return violation("amount", "amount must be greater than zero")
		}
		if strings.TrimSpace(v.PaymentReference) == "" {
			return violation("paymentReference", "paymentReference is required")
		}
		return nil
	case nil:
		return violation("", "payment is required")
	default:
		return violation("method", "unsupported payment instrument %T", p)
	}
}

// aggregateChangeValid checks that cash change across all instruments equals the overpayment.
// Sums that leave the Money range are invalid.
func aggregateChangeValid(payments []domain.PaymentInstrument) bool {
	var tendered, amount, change domain.Money
	for _, p := range payments {
		cash, ok := p.(domain.CashPayment)
		if !ok {
			continue
		}
		var okT, okA, okC bool
		tendered, okT = domain.AddMoney(tendered, cash.Tendered)
		amount, okA = domain.AddMoney(amount, cash.Amount)
		change, okC = domain.AddMoney(change, cash.Change)
		if !okT || !okA || !okC {
			return false
		}
	}
	over, ok := domain.AddMoney(tendered, -amount)
	return ok && change == over
}

func requireID(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return violation(field, "%s must be a valid UUID", field)
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return violation(field, "%s is required", field)
	}
	return nil
}

func requireAmounts(countField string, count int64, rateField string, rate, total domain.Money) error {
	if count <= 0 {
		return violation(countField, "%s must be a positive integer", countField)
	}
	if rate <= 0 {
		return violation(rateField, "%s must be greater than zero", rateField)
	}
	if total <= 0 {
		return violation("total", "total must be greater than zero")
	}
	return nil
}

func itemPath(index int) string    { return fmt.Sprintf("items[%d]", index) }
func paymentPath(index int) string { return fmt.Sprintf("payments[%d]", index) }
