package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/payments"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/repositories"
	"github.com/divestreams/pos/internal/repositories/memory"
)

type stubPaymentGateway struct {
	lookupFunc func(ctx context.Context, pc payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	refundFunc func(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
	lookups    []payments.LookupRequest
	refunds    []payments.RefundRequest
}

func (s *stubPaymentGateway) LookupPayment(ctx context.Context, pc payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	s.lookups = append(s.lookups, req)
	if s.lookupFunc != nil {
		return s.lookupFunc(ctx, pc, req)
	}
	return payments.PaymentDetails{}, payments.ErrPaymentNotFound
}

func (s *stubPaymentGateway) Refund(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	s.refunds = append(s.refunds, req)
	if s.refundFunc != nil {
		return s.refundFunc(ctx, pc, req)
	}
	return payments.PaymentDetails{Status: payments.StatusRefunded}, nil
}

type stubSalePublisher struct {
	messages []SaleCompletedMessage
	err      error
}

func (s *stubSalePublisher) PublishSaleCompleted(_ context.Context, message SaleCompletedMessage) (string, error) {
	s.messages = append(s.messages, message)
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("msg-%d", len(s.messages)), nil
}

// failingSaleRepository wraps the memory repository and fails inserts on demand.
type failingSaleRepository struct {
	*memory.SaleRepository
	insertErr error
}

func (r *failingSaleRepository) Insert(ctx context.Context, sale domain.Sale) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.SaleRepository.Insert(ctx, sale)
}

type checkoutFixture struct {
	svc       CheckoutService
	sales     *failingSaleRepository
	inventory InventoryService
	gateway   *stubPaymentGateway
	publisher *stubSalePublisher
	events    []string
	maskID    uuid.UUID
	issued    int
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := &checkoutFixture{
		sales:     &failingSaleRepository{SaleRepository: memory.NewSaleRepository()},
		gateway:   &stubPaymentGateway{},
		publisher: &stubSalePublisher{},
		maskID:    uuid.New(),
	}
	f.inventory = newTestInventory(t, memory.NewStockRepository())
	if _, err := f.inventory.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: f.maskID, Name: "Mask", Mode: domain.StockAdjustSet, Value: 10,
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Sales:       f.sales,
		Inventory:   f.inventory,
		Payments:    f.gateway,
		Publisher:   f.publisher,
		Currency:    "usd",
		Clock:       fixedClock,
		IDGenerator: func() string {
			f.issued++
			return fmt.Sprintf("01JPB6Q%019d", f.issued)
		},
		Logger: func(_ context.Context, event string, _ map[string]any) {
			f.events = append(f.events, event)
		},
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *checkoutFixture) stock(t *testing.T) int64 {
	t.Helper()
	level, err := f.inventory.GetStock(context.Background(), f.maskID)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	return level.OnHand
}

// maskRequest is two masks at 49.99 with 10% tax: subtotal 99.98, tax 10.00, total 109.98.
func (f *checkoutFixture) maskRequest(instruments ...domain.PaymentInstrument) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		Items: []domain.LineItem{
			domain.ProductItem{ProductID: f.maskID, Name: "Mask", Quantity: 2, UnitPrice: 4999, Total: 9998},
		},
		Payments: instruments,
		Subtotal: 9998,
		Tax:      1000,
		Total:    10998,
	}
}

func (f *checkoutFixture) hasEvent(event string) bool {
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestCheckoutServiceCheckoutCash(t *testing.T) {
	f := newCheckoutFixture(t)
	req := f.maskRequest(domain.CashPayment{Amount: 10998, Tendered: 11000, Change: 2})
	req.Notes = "  <b>birthday</b> discount  "

	sale, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: "T1", SessionID: "S1", Request: req})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if sale.ID != "01JPB6Q0000000000000000001" || sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if sale.Currency != "USD" || sale.ChangeDue != 2 || sale.Notes != "birthday discount" {
		t.Fatalf("unexpected sale fields %+v", sale)
	}
	if !sale.CreatedAt.Equal(testNow) {
		t.Fatalf("expected created at %v, got %v", testNow, sale.CreatedAt)
	}
	if got := f.stock(t); got != 8 {
		t.Fatalf("expected 8 masks left, got %d", got)
	}
	stored, err := f.sales.FindByID(context.Background(), sale.ID)
	if err != nil || stored.Total != 10998 {
		t.Fatalf("expected persisted sale, got %+v (%v)", stored, err)
	}
	if len(f.publisher.messages) != 1 {
		t.Fatalf("expected one sale event, got %d", len(f.publisher.messages))
	}
	msg := f.publisher.messages[0]
	if msg.SaleID != sale.ID || msg.TerminalID != "T1" || msg.ItemCount != 1 || msg.Total != 10998 {
		t.Fatalf("unexpected sale event %+v", msg)
	}
	if len(f.gateway.lookups) != 0 {
		t.Fatal("cash checkout must not contact the card processor")
	}
}

func TestCheckoutServiceRejectsInvalidRequests(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	short := f.maskRequest(domain.CashPayment{Amount: 10997, Tendered: 10997})
	_, err := f.svc.Checkout(ctx, CheckoutCommand{TerminalID: "T1", Request: short})
	var mismatch *pos.AmountMismatchError
	if !errors.Is(err, ErrCheckoutInvalidInput) || !errors.As(err, &mismatch) || mismatch.Delta != 1 {
		t.Fatalf("expected amount mismatch of one cent, got %v", err)
	}

	empty := domain.CheckoutRequest{Payments: []domain.PaymentInstrument{domain.CashPayment{Amount: 100, Tendered: 100}}}
	if _, err := f.svc.Checkout(ctx, CheckoutCommand{TerminalID: "T1", Request: empty}); !errors.Is(err, pos.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	if _, err := f.svc.Checkout(ctx, CheckoutCommand{Request: short}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected missing terminal to be rejected, got %v", err)
	}
	if got := f.stock(t); got != 10 {
		t.Fatalf("rejected checkouts must not move stock, got %d", got)
	}
}

func TestCheckoutServiceVerifiesCardCapture(t *testing.T) {
	tests := []struct {
		name    string
		details payments.PaymentDetails
		err     error
		want    error
	}{
		{
			name:    "captured",
			details: payments.PaymentDetails{Status: payments.StatusSucceeded, AmountCaptured: 10998, Currency: "usd"},
		},
		{
			name:    "partial capture",
			details: payments.PaymentDetails{Status: payments.StatusSucceeded, AmountCaptured: 5000, Currency: "usd"},
			want:    ErrCheckoutPaymentNotCaptured,
		},
		{
			name:    "pending",
			details: payments.PaymentDetails{Status: payments.StatusPending, Currency: "usd"},
			want:    ErrCheckoutPaymentNotCaptured,
		},
		{
			name:    "other currency",
			details: payments.PaymentDetails{Status: payments.StatusSucceeded, AmountCaptured: 10998, Currency: "eur"},
			want:    ErrCheckoutPaymentNotCaptured,
		},
		{
			name: "unknown reference",
			err:  payments.ErrPaymentNotFound,
			want: ErrCheckoutPaymentNotCaptured,
		},
		{
			name: "processor down",
			err:  payments.ErrProviderUnavailable,
			want: ErrCheckoutUnavailable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			f.gateway.lookupFunc = func(_ context.Context, pc payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
				if req.Reference != "pi_123" || pc.Currency != "USD" {
					t.Fatalf("unexpected lookup %+v %+v", pc, req)
				}
				return tc.details, tc.err
			}
			req := f.maskRequest(domain.CardPayment{Amount: 10998, PaymentReference: "pi_123"})

			_, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: "T1", Request: req})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Checkout: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := f.stock(t); got != 10 {
				t.Fatalf("stock must be untouched on card failure, got %d", got)
			}
		})
	}
}

func TestCheckoutServiceCardReferenceSettlesOneSale(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.lookupFunc = func(context.Context, payments.PaymentContext, payments.LookupRequest) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{Status: payments.StatusSucceeded, AmountCaptured: 10998, Currency: "usd"}, nil
	}
	card := domain.CardPayment{Amount: 10998, PaymentReference: "pi_once"}

	first, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: "T1", Request: f.maskRequest(card)})
	if err != nil {
		t.Fatalf("first Checkout: %v", err)
	}
	for _, terminal := range []string{"T1", "T2"} {
		_, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: terminal, Request: f.maskRequest(card)})
		if !errors.Is(err, ErrCheckoutPaymentNotCaptured) || !errors.Is(err, repositories.ErrPaymentReferenceUsed) {
			t.Fatalf("expected reused reference rejection on %s, got %v", terminal, err)
		}
	}
	if got := f.stock(t); got != 8 {
		t.Fatalf("expected only the first sale to take stock (8 left), got %d", got)
	}
	if len(f.publisher.messages) != 1 || f.publisher.messages[0].SaleID != first.ID {
		t.Fatalf("expected a single sale event, got %+v", f.publisher.messages)
	}
	if !f.hasEvent("checkout.payment_reference_reused") {
		t.Fatalf("expected reuse to be logged, got %v", f.events)
	}
}

func TestCheckoutServiceInsufficientStock(t *testing.T) {
	f := newCheckoutFixture(t)
	req := domain.CheckoutRequest{
		Items:    []domain.LineItem{domain.ProductItem{ProductID: f.maskID, Name: "Mask", Quantity: 11, UnitPrice: 100, Total: 1100}},
		Payments: []domain.PaymentInstrument{domain.CashPayment{Amount: 1100, Tendered: 1100}},
		Subtotal: 1100,
		Total:    1100,
	}
	_, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: "T1", Request: req})
	var negative *pos.NegativeStockError
	if !errors.Is(err, ErrCheckoutInsufficientStock) || !errors.As(err, &negative) || negative.Current != 10 {
		t.Fatalf("expected insufficient stock with current 10, got %v", err)
	}
	if len(f.publisher.messages) != 0 {
		t.Fatal("no event expected for a rejected sale")
	}
}

func TestCheckoutServiceRestoresStockWhenPersistFails(t *testing.T) {
	f := newCheckoutFixture(t)
	f.sales.insertErr = &repositories.Error{Op: "sales.insert", Err: errors.New("unavailable"), Unavailable: true}
	req := f.maskRequest(domain.CashPayment{Amount: 10998, Tendered: 10998})

	_, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: "T1", Request: req})
	if !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
	if got := f.stock(t); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}
	if !f.hasEvent("checkout.persist_failed") {
		t.Fatalf("expected persist failure to be logged, got %v", f.events)
	}
}

func TestCheckoutServicePublishFailureIsNotFatal(t *testing.T) {
	f := newCheckoutFixture(t)
	f.publisher.err = errors.New("topic not found")
	req := f.maskRequest(domain.CashPayment{Amount: 10998, Tendered: 10998})

	sale, err := f.svc.Checkout(context.Background(), CheckoutCommand{TerminalID: "T1", Request: req})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if sale.ID == "" || !f.hasEvent("checkout.publish_failed") {
		t.Fatalf("expected sale and logged publish failure, events %v", f.events)
	}
}

func TestCheckoutServiceVoidSale(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.lookupFunc = func(context.Context, payments.PaymentContext, payments.LookupRequest) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{Status: payments.StatusSucceeded, AmountCaptured: 10998}, nil
	}
	ctx := context.Background()
	sale, err := f.svc.Checkout(ctx, CheckoutCommand{TerminalID: "T1", Request: f.maskRequest(domain.CardPayment{Amount: 10998, PaymentReference: "pi_123"})})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	voided, err := f.svc.VoidSale(ctx, VoidSaleCommand{SaleID: sale.ID, Reason: "wrong size"})
	if err != nil {
		t.Fatalf("VoidSale: %v", err)
	}
	if voided.Status != domain.SaleStatusVoided || voided.VoidReason != "wrong size" || voided.VoidedAt == nil {
		t.Fatalf("unexpected voided sale %+v", voided)
	}
	if len(f.gateway.refunds) != 1 {
		t.Fatalf("expected one refund, got %d", len(f.gateway.refunds))
	}
	refund := f.gateway.refunds[0]
	if refund.Reference != "pi_123" || refund.IdempotencyKey != sale.ID || refund.Amount == nil || *refund.Amount != 10998 {
		t.Fatalf("unexpected refund %+v", refund)
	}
	if got := f.stock(t); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}

	again, err := f.svc.VoidSale(ctx, VoidSaleCommand{SaleID: sale.ID})
	if err != nil || again.Status != domain.SaleStatusVoided {
		t.Fatalf("expected idempotent void, got %+v (%v)", again, err)
	}
	if len(f.gateway.refunds) != 1 || f.stock(t) != 10 {
		t.Fatal("second void must not refund or restock again")
	}
}

func TestCheckoutServiceVoidSaleRefundFailure(t *testing.T) {
	f := newCheckoutFixture(t)
	f.gateway.lookupFunc = func(context.Context, payments.PaymentContext, payments.LookupRequest) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{Status: payments.StatusSucceeded, AmountCaptured: 10998}, nil
	}
	f.gateway.refundFunc = func(context.Context, payments.PaymentContext, payments.RefundRequest) (payments.PaymentDetails, error) {
		return payments.PaymentDetails{}, payments.ErrProviderUnavailable
	}
	ctx := context.Background()
	sale, err := f.svc.Checkout(ctx, CheckoutCommand{TerminalID: "T1", Request: f.maskRequest(domain.CardPayment{Amount: 10998, PaymentReference: "pi_123"})})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if _, err := f.svc.VoidSale(ctx, VoidSaleCommand{SaleID: sale.ID}); !errors.Is(err, ErrCheckoutUnavailable) {
		t.Fatalf("expected ErrCheckoutUnavailable, got %v", err)
	}
	stored, _ := f.sales.FindByID(ctx, sale.ID)
	if stored.Status != domain.SaleStatusCompleted {
		t.Fatalf("sale must stay completed, got %s", stored.Status)
	}
	if got := f.stock(t); got != 8 {
		t.Fatalf("stock must stay decremented, got %d", got)
	}
}

func TestCheckoutServiceVoidUnknownSale(t *testing.T) {
	f := newCheckoutFixture(t)
	if _, err := f.svc.VoidSale(context.Background(), VoidSaleCommand{SaleID: "missing"}); !errors.Is(err, ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}
}

func TestNewCheckoutServiceValidatesDeps(t *testing.T) {
	inventory := newTestInventory(t, memory.NewStockRepository())
	if _, err := NewCheckoutService(CheckoutServiceDeps{Inventory: inventory, Currency: "USD"}); err == nil {
		t.Fatal("expected error without sale repository")
	}
	if _, err := NewCheckoutService(CheckoutServiceDeps{Sales: memory.NewSaleRepository(), Currency: "USD"}); err == nil {
		t.Fatal("expected error without inventory")
	}
	if _, err := NewCheckoutService(CheckoutServiceDeps{Sales: memory.NewSaleRepository(), Inventory: inventory, Currency: "dollars"}); err == nil {
		t.Fatal("expected error for invalid currency")
	}
}
