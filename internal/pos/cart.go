package pos

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/divestreams/pos/internal/domain"
)

// Cart holds the line items of one sale. Every mutation recomputes subtotal, tax and total
// before committing, so a rejected call leaves the cart untouched. A Cart is owned by a
// single terminal session and is not safe for concurrent use.
type Cart struct {
	items    []domain.LineItem
	customer *uuid.UUID
	taxRate  *decimal.Decimal

	subtotal domain.Money
	tax      domain.Money
	total    domain.Money
}

// CartSnapshot is a read-only copy of the cart state.
type CartSnapshot struct {
	Items      []domain.LineItem
	CustomerID *uuid.UUID
	TaxRate    string
	Subtotal   domain.Money
	Tax        domain.Money
	Total      domain.Money
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{}
}

// AddItem appends a validated line item.
func (c *Cart) AddItem(item domain.LineItem) error {
	if err := ValidateLineItem(item); err != nil {
		return prefixed(itemPath(len(c.items)), err)
	}
	next := make([]domain.LineItem, 0, len(c.items)+1)
	next = append(next, c.items...)
	next = append(next, item)
	return c.commit(next, c.taxRate)
}

// RemoveItem deletes the item at index.
func (c *Cart) RemoveItem(index int) error {
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("%w: %d", ErrItemIndexOutOfRange, index)
	}
	next := make([]domain.LineItem, 0, len(c.items)-1)
	next = append(next, c.items[:index]...)
	next = append(next, c.items[index+1:]...)
	return c.commit(next, c.taxRate)
}

// UpdateQuantity changes the quantity, days or participants of the item at index and
// reprices it at its unit rate. Zero or negative counts are rejected; remove the item instead.
func (c *Cart) UpdateQuantity(index int, units int64) error {
	if index < 0 || index >= len(c.items) {
		return fmt.Errorf("%w: %d", ErrItemIndexOutOfRange, index)
	}
	if units <= 0 {
		return ErrInvalidQuantity
	}
	updated, err := withUnits(c.items[index], units)
	if err != nil {
		return err
	}
	next := domain.CloneLineItems(c.items)
	next[index] = updated
	return c.commit(next, c.taxRate)
}

// SetCustomer attaches a customer, or detaches it when id is nil.
func (c *Cart) SetCustomer(id *uuid.UUID) {
	if id == nil {
		c.customer = nil
		return
	}
	copyID := *id
	c.customer = &copyID
}

// Clear empties the cart for a new sale.
func (c *Cart) Clear() {
	*c = Cart{}
}

// ComputeTax applies rate to the subtotal, rounding half-up to the cent once. The rate stays
// on the cart and is reapplied after later mutations.
func (c *Cart) ComputeTax(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidTaxRate, rate.String())
	}
	return c.commit(c.items, &rate)
}

func (c *Cart) Items() []domain.LineItem { return domain.CloneLineItems(c.items) }
func (c *Cart) Len() int                 { return len(c.items) }
func (c *Cart) Subtotal() domain.Money   { return c.subtotal }
func (c *Cart) Tax() domain.Money        { return c.tax }
func (c *Cart) Total() domain.Money      { return c.total }

// Customer returns a copy of the attached customer id, if any.
func (c *Cart) Customer() *uuid.UUID {
	if c.customer == nil {
		return nil
	}
	id := *c.customer
	return &id
}

// TaxRate reports the applied rate and whether one was applied.
func (c *Cart) TaxRate() (decimal.Decimal, bool) {
	if c.taxRate == nil {
		return decimal.Zero, false
	}
	return *c.taxRate, true
}

// Snapshot copies the cart state for rendering.
func (c *Cart) Snapshot() CartSnapshot {
	snap := CartSnapshot{
		Items:      c.Items(),
		CustomerID: c.Customer(),
		Subtotal:   c.subtotal,
		Tax:        c.tax,
		Total:      c.total,
	}
	if c.taxRate != nil {
		snap.TaxRate = c.taxRate.String()
	}
	return snap
}

func (c *Cart) commit(items []domain.LineItem, rate *decimal.Decimal) error {
	subtotal, err := sumLineItems(items)
	if err != nil {
		return err
	}
	var tax domain.Money
	if rate != nil {
		tax, err = TaxFor(subtotal, *rate)
		if err != nil {
			return err
		}
	}
	total, ok := domain.AddMoney(subtotal, tax)
	if !ok {
		return ErrAmountOverflow
	}

	c.items = items
	c.taxRate = rate
	c.subtotal = subtotal
	c.tax = tax
	c.total = total
	return nil
}

// TaxFor computes round(subtotal * rate, 2) with half-up rounding.
func TaxFor(subtotal domain.Money, rate decimal.Decimal) (domain.Money, error) {
	tax := subtotal.Decimal().Mul(rate).Round(2)
	amount, err := domain.MoneyFromDecimal(tax)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAmountOverflow, err)
	}
	return amount, nil
}

func sumLineItems(items []domain.LineItem) (domain.Money, error) {
	var subtotal domain.Money
	for _, item := range items {
		amount, err := lineTotal(item)
		if err != nil {
			return 0, err
		}
		var ok bool
		subtotal, ok = domain.AddMoney(subtotal, amount)
		if !ok {
			return 0, ErrAmountOverflow
		}
	}
	return subtotal, nil
}

// lineTotal switches over every variant so a new kind fails to price instead of being skipped.
func lineTotal(item domain.LineItem) (domain.Money, error) {
	switch v := item.(type) {
	case domain.ProductItem:
		return v.Total, nil
	case domain.RentalItem:
		return v.Total, nil
	case domain.BookingItem:
		return v.Total, nil
	default:
		return 0, fmt.Errorf("pos: unhandled line item %T", item)
	}
}

func withUnits(item domain.LineItem, units int64) (domain.LineItem, error) {
	total, ok := domain.MulMoney(item.UnitRate(), units)
	if !ok {
		return nil, ErrAmountOverflow
	}
	switch v := item.(type) {
	case domain.ProductItem:
		v.Quantity = units
		v.Total = total
		return v, nil
	case domain.RentalItem:
		v.Days = units
		v.Total = total
		return v, nil
	case domain.BookingItem:
		v.Participants = units
		v.Total = total
		return v, nil
	default:
		return nil, fmt.Errorf("pos: unhandled line item %T", item)
	}
}
