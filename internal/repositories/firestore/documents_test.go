package firestore

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
)

func TestSaleDocumentRoundTrip(t *testing.T) {
	customer := uuid.New()
	voidedAt := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	sale := domain.Sale{
		ID:         "01JNQ7ZB8M4W6X2Y3Z4A5B6C7D",
		TerminalID: "T1",
		SessionID:  "01JNQ7Z9000000000000000000",
		Status:     domain.SaleStatusVoided,
		CustomerID: &customer,
		Items: []domain.LineItem{
			domain.ProductItem{ProductID: uuid.New(), Name: "Mask", Quantity: 2, UnitPrice: 2500, Total: 5000},
			domain.RentalItem{EquipmentID: uuid.New(), Name: "Wetsuit", Size: "M", Days: 3, DailyRate: 1500, Total: 4500},
			domain.BookingItem{TripID: uuid.New(), TourName: "Reef dive", Participants: 2, UnitPrice: 9000, Total: 18000},
		},
		Payments: []domain.PaymentInstrument{
			domain.CashPayment{Amount: 7500, Tendered: 8000, Change: 500},
			domain.CardPayment{Amount: 20000, PaymentReference: "pi_123"},
		},
		Subtotal:   27500,
		Total:      27500,
		ChangeDue:  500,
		Currency:   "USD",
		Notes:      "group booking",
		VoidReason: "duplicate",
		CreatedAt:  time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
		VoidedAt:   &voidedAt,
	}

	doc, err := newSaleDocument(sale)
	if err != nil {
		t.Fatalf("newSaleDocument: %v", err)
	}
	if doc.Items[1].Kind != string(domain.LineItemRental) || doc.Items[1].Units != 3 {
		t.Fatalf("unexpected rental line %+v", doc.Items[1])
	}
	got, err := doc.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if !reflect.DeepEqual(got, sale) {
		t.Fatalf("round trip mismatch\n got: %+v\nwant: %+v", got, sale)
	}
}

func TestSaleDocumentRejectsUnknownKind(t *testing.T) {
	doc := saleDocument{ID: "s1", Items: []lineDocument{{Kind: "gift_card", RefID: uuid.NewString()}}}
	if _, err := doc.toDomain(); err == nil {
		t.Fatal("expected error for unknown line kind")
	}
}

func TestPaymentReferenceIDIsStableDocumentKey(t *testing.T) {
	id := paymentReferenceID("pi_3OxY/../odd")
	if id != paymentReferenceID("pi_3OxY/../odd") {
		t.Fatal("expected a stable id")
	}
	if len(id) != 64 || strings.ContainsAny(id, "/.") {
		t.Fatalf("expected a 64 char hex key, got %q", id)
	}
	if id == paymentReferenceID("pi_other") {
		t.Fatal("expected distinct references to map to distinct keys")
	}
}
