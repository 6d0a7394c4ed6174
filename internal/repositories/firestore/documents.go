package firestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
)

type saleDocument struct {
	ID         string            `firestore:"id"`
	TerminalID string            `firestore:"terminal_id"`
	SessionID  string            `firestore:"session_id,omitempty"`
	Status     string            `firestore:"status"`
	CustomerID string            `firestore:"customer_id,omitempty"`
	Items      []lineDocument    `firestore:"items"`
	Payments   []paymentDocument `firestore:"payments"`
	Subtotal   int64             `firestore:"subtotal_cents"`
	Tax        int64             `firestore:"tax_cents"`
	Total      int64             `firestore:"total_cents"`
	ChangeDue  int64             `firestore:"change_due_cents"`
	Currency   string            `firestore:"currency"`
	Notes      string            `firestore:"notes,omitempty"`
	VoidReason string            `firestore:"void_reason,omitempty"`
	CreatedAt  time.Time         `firestore:"created_at"`
	VoidedAt   *time.Time        `firestore:"voided_at,omitempty"`
}

// lineDocument flattens the three line item kinds; RefID holds the product, equipment
// or trip ID depending on Kind, and Units the quantity, days or participants.
type lineDocument struct {
	Kind     string `firestore:"kind"`
	RefID    string `firestore:"ref_id"`
	Name     string `firestore:"name"`
	Size     string `firestore:"size,omitempty"`
	Units    int64  `firestore:"units"`
	UnitRate int64  `firestore:"unit_rate_cents"`
	Total    int64  `firestore:"total_cents"`
}

type paymentDocument struct {
	Method    string `firestore:"method"`
	Amount    int64  `firestore:"amount_cents"`
	Tendered  int64  `firestore:"tendered_cents,omitempty"`
	Change    int64  `firestore:"change_cents,omitempty"`
	Reference string `firestore:"reference,omitempty"`
}

// paymentReferenceDocument marks a card payment reference as spent by one sale. Document
// IDs are the hex SHA-256 of the reference so arbitrary processor IDs are valid keys.
type paymentReferenceDocument struct {
	Reference string    `firestore:"reference"`
	SaleID    string    `firestore:"sale_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

func paymentReferenceID(reference string) string {
	sum := sha256.Sum256([]byte(reference))
	return hex.EncodeToString(sum[:])
}

type stockDocument struct {
	ProductID string    `firestore:"product_id"`
	Name      string    `firestore:"name"`
	OnHand    int64     `firestore:"on_hand"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func newSaleDocument(sale domain.Sale) (saleDocument, error) {
	doc := saleDocument{
		ID:         sale.ID,
		TerminalID: sale.TerminalID,
		SessionID:  sale.SessionID,
		Status:     string(sale.Status),
		Subtotal:   int64(sale.Subtotal),
		Tax:        int64(sale.Tax),
		Total:      int64(sale.Total),
		ChangeDue:  int64(sale.ChangeDue),
		Currency:   sale.Currency,
		Notes:      sale.Notes,
		VoidReason: sale.VoidReason,
		CreatedAt:  sale.CreatedAt.UTC(),
		VoidedAt:   sale.VoidedAt,
	}
	if sale.CustomerID != nil {
		doc.CustomerID = sale.CustomerID.String()
	}
	for _, item := range sale.Items {
		line := lineDocument{
			Kind:     string(item.Kind()),
			Name:     item.Label(),
			Units:    item.Units(),
			UnitRate: int64(item.UnitRate()),
			Total:    int64(item.LineTotal()),
		}
		switch v := item.(type) {
		case domain.ProductItem:
			line.RefID = v.ProductID.String()
		case domain.RentalItem:
			line.RefID = v.EquipmentID.String()
			line.Size = v.Size
		case domain.BookingItem:
			line.RefID = v.TripID.String()
		default:
			return saleDocument{}, fmt.Errorf("sale %s: unsupported line item %T", sale.ID, item)
		}
		doc.Items = append(doc.Items, line)
	}
	for _, payment := range sale.Payments {
		switch v := payment.(type) {
		case domain.CashPayment:
			doc.Payments = append(doc.Payments, paymentDocument{Method: string(domain.PaymentMethodCash), Amount: int64(v.Amount), Tendered: int64(v.Tendered), Change: int64(v.Change)})
		case domain.CardPayment:
			doc.Payments = append(doc.Payments, paymentDocument{Method: string(domain.PaymentMethodCard), Amount: int64(v.Amount), Reference: v.PaymentReference})
		default:
			return saleDocument{}, fmt.Errorf("sale %s: unsupported payment %T", sale.ID, payment)
		}
	}
	return doc, nil
}

func (d saleDocument) toDomain() (domain.Sale, error) {
	sale := domain.Sale{
		ID:         d.ID,
		TerminalID: d.TerminalID,
		SessionID:  d.SessionID,
		Status:     domain.SaleStatus(d.Status),
		Subtotal:   domain.Money(d.Subtotal),
		Tax:        domain.Money(d.Tax),
		Total:      domain.Money(d.Total),
		ChangeDue:  domain.Money(d.ChangeDue),
		Currency:   d.Currency,
		Notes:      d.Notes,
		VoidReason: d.VoidReason,
		CreatedAt:  d.CreatedAt.UTC(),
		VoidedAt:   d.VoidedAt,
	}
	if d.CustomerID != "" {
		id, err := uuid.Parse(d.CustomerID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("sale %s: customer id: %w", d.ID, err)
		}
		sale.CustomerID = &id
	}
	for i, line := range d.Items {
		ref, err := uuid.Parse(line.RefID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("sale %s: item %d: %w", d.ID, i, err)
		}
		switch domain.LineItemKind(line.Kind) {
		case domain.LineItemProduct:
			sale.Items = append(sale.Items, domain.ProductItem{ProductID: ref, Name: line.Name, Quantity: line.Units, UnitPrice: domain.Money(line.UnitRate), Total: domain.Money(line.Total)})
		case domain.LineItemRental:
			sale.Items = append(sale.Items, domain.RentalItem{EquipmentID: ref, Name: line.Name, Size: line.Size, Days: line.Units, DailyRate: domain.Money(line.UnitRate), Total: domain.Money(line.Total)})
		case domain.LineItemBooking:
			sale.Items = append(sale.Items, domain.BookingItem{TripID: ref, TourName: line.Name, Participants: line.Units, UnitPrice: domain.Money(line.UnitRate), Total: domain.Money(line.Total)})
		default:
			return domain.Sale{}, fmt.Errorf("sale %s: item %d: unknown kind %q", d.ID, i, line.Kind)
		}
	}
	for i, p := range d.Payments {
		switch domain.PaymentMethod(p.Method) {
		case domain.PaymentMethodCash:
			sale.Payments = append(sale.Payments, domain.CashPayment{Amount: domain.Money(p.Amount), Tendered: domain.Money(p.Tendered), Change: domain.Money(p.Change)})
		case domain.PaymentMethodCard:
			sale.Payments = append(sale.Payments, domain.CardPayment{Amount: domain.Money(p.Amount), PaymentReference: p.Reference})
		default:
			return domain.Sale{}, fmt.Errorf("sale %s: payment %d: unknown method %q", d.ID, i, p.Method)
		}
	}
	return sale, nil
}

func (d stockDocument) toDomain(id uuid.UUID) domain.StockLevel {
	return domain.StockLevel{ProductID: id, Name: d.Name, OnHand: d.OnHand, UpdatedAt: d.UpdatedAt.UTC()}
}
