package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// LineItemKind discriminates the variants of LineItem.
type LineItemKind string

const (
	// LineItemProduct is a retail product sold by quantity.
	LineItemProduct LineItemKind = "product"
	// LineItemRental is equipment rented by the day.
	LineItemRental LineItemKind = "rental"
	// LineItemBooking is a seat on a scheduled trip or course.
	LineItemBooking LineItemKind = "booking"
)

// LineItem is one priced entry in a cart. The set of implementations is closed:
// ProductItem, RentalItem and BookingItem.
type LineItem interface {
	Kind() LineItemKind
	// Label is the display name (product/equipment name or tour name).
	Label() string
	// Units is quantity, days or participants depending on the kind.
	Units() int64
	// UnitRate is the unit price or daily rate.
	UnitRate() Money
	LineTotal() Money

	isLineItem()
}

// ProductItem is a retail product line.
type ProductItem struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UnitPrice Money     `json:"unitPrice"`
	Total     Money     `json:"total"`
}

func (ProductItem) Kind() LineItemKind { return LineItemProduct }
func (p ProductItem) Label() string { return p.Name }
func (p ProductItem) Units() int64 { return p.Quantity }
func (p ProductItem) UnitRate() Money { return p.UnitPrice }
func (p ProductItem) LineTotal() Money { return p.Total }
func (ProductItem) isLineItem() {}

// MarshalJSON writes the item with its kind discriminator.
func (p ProductItem) MarshalJSON() ([]byte, error) {
	type alias ProductItem
	return json.Marshal(struct {
		Kind LineItemKind `json:"kind"`
		alias
	}{Kind: LineItemProduct, alias: alias(p)})
}

// RentalItem is rental equipment charged per day.
type RentalItem struct {
	EquipmentID uuid.UUID `json:"equipmentId"`
	Name        string    `json:"name"`
	Size        string    `json:"size,omitempty"`
	Days        int64     `json:"days"`
	DailyRate   Money     `json:"dailyRate"`
	Total       Money     `json:"total"`
}

func (RentalItem) Kind() LineItemKind { return LineItemRental }
func (r RentalItem) Label() string { return r.Name }
func (r RentalItem) Units() int64 { return r.Days }
func (r RentalItem) UnitRate() Money { return r.DailyRate }
func (r RentalItem) LineTotal() Money { return r.Total }
func (RentalItem) isLineItem() {}

// MarshalJSON writes the item with its kind discriminator.
func (r RentalItem) MarshalJSON() ([]byte, error) {
	type alias RentalItem
	return json.Marshal(struct {
		Kind LineItemKind `json:"kind"`
		alias
	}{Kind: LineItemRental, alias: alias(r)})
}

// BookingItem reserves participants on a trip.
type BookingItem struct {
	TripID       uuid.UUID `json:"tripId"`
	TourName     string    `json:"tourName"`
	Participants int64     `json:"participants"`
	UnitPrice    Money     `json:"unitPrice"`
	Total        Money     `json:"total"`
}

func (BookingItem) Kind() LineItemKind { return LineItemBooking }
func (b BookingItem) Label() string { return b.TourName }
func (b BookingItem) Units() int64 { return b.Participants }
func (b BookingItem) UnitRate() Money { return b.UnitPrice }
func (b BookingItem) LineTotal() Money { return b.Total }
func (BookingItem) isLineItem() {}

// MarshalJSON writes the item with its kind discriminator.
func (b BookingItem) MarshalJSON() ([]byte, error) {
	type alias BookingItem
	return json.Marshal(struct {
		Kind LineItemKind `json:"kind"`
		alias
	}{Kind: LineItemBooking, alias: alias(b)})
}

// CloneLineItems returns a shallow copy of the slice; the variants are value types.
func CloneLineItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
