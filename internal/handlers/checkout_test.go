package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/services"
)

const checkoutJSON = `{
	"items": [` + maskItemJSON + `],
	"payments": [{"method":"cash","amount":"109.98","tendered":"120.00","change":"10.02"}],
	"subtotal": "99.98",
	"tax": "10.00",
	"total": "109.98",
	"notes": "walk-in"
}`

func newCheckoutRouter(t *testing.T, checkout services.CheckoutService) http.Handler {
	t.Helper()
	handlers := NewCheckoutHandlers(checkout, mustFormatter(t))
	return NewRouter(WithCheckoutRoutes(handlers.Routes))
}

func TestCheckoutHandlersJSON(t *testing.T) {
	checkout := &stubCheckoutService{}
	router := newCheckoutRouter(t, checkout)

	rr := doRequest(t, router, http.MethodPost, "/api/v1/checkout", checkoutJSON, map[string]string{
		terminalHeader: "till-9",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	sale := decodeJSON[struct {
		TerminalID string       `json:"terminalId"`
		ChangeDue  domain.Money `json:"changeDue"`
		Notes      string       `json:"notes"`
	}](t, rr)
	if sale.TerminalID != "till-9" || sale.ChangeDue != 1002 || sale.Notes != "walk-in" {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if len(checkout.checkouts) != 1 {
		t.Fatalf("expected one checkout call, got %d", len(checkout.checkouts))
	}
	req := checkout.checkouts[0].Request
	if req.Total != 10998 || len(req.Items) != 1 || len(req.Payments) != 1 {
		t.Fatalf("unexpected decoded request %+v", req)
	}
}

func TestCheckoutHandlersFormData(t *testing.T) {
	checkout := &stubCheckoutService{}
	router := newCheckoutRouter(t, checkout)

	form := url.Values{}
	form.Set("items[0].kind", "product")
	form.Set("items[0].productId", maskID.String())
	form.Set("items[0].name", "Mask")
	form.Set("items[0].quantity", "2")
	form.Set("items[0].unitPrice", "49.99")
	form.Set("items[0].total", "99.98")
	form.Set("items[1].kind", "product")
	form.Set("items[1].productId", finsID.String())
	form.Set("items[1].name", "Fins")
	form.Set("items[1].quantity", "1")
	form.Set("items[1].unitPrice", "10.00")
	form.Set("items[1].total", "10.00")
	form.Set("payments[0].method", "card")
	form.Set("payments[0].amount", "120.98")
	form.Set("payments[0].paymentReference", "pi_42")
	form.Set("subtotal", "109.98")
	form.Set("tax", "11.00")
	form.Set("total", "120.98")
	form.Set("customerId", customer.String())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set(terminalHeader, "till-9")
	req.Header.Set(sessionHeader, "kiosk-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	cmd := checkout.checkouts[0]
	if cmd.SessionID != "kiosk-7" {
		t.Fatalf("expected session header forwarded, got %q", cmd.SessionID)
	}
	if len(cmd.Request.Items) != 2 {
		t.Fatalf("expected two items, got %d", len(cmd.Request.Items))
	}
	fins, ok := cmd.Request.Items[1].(domain.ProductItem)
	if !ok || fins.ProductID != finsID || fins.Quantity != 1 {
		t.Fatalf("unexpected second item %#v", cmd.Request.Items[1])
	}
	card, ok := cmd.Request.Payments[0].(domain.CardPayment)
	if !ok || card.PaymentReference != "pi_42" || card.Amount != 12098 {
		t.Fatalf("unexpected payment %#v", cmd.Request.Payments[0])
	}
	if cmd.Request.CustomerID == nil || *cmd.Request.CustomerID != customer {
		t.Fatalf("expected customer %s, got %v", customer, cmd.Request.CustomerID)
	}
}

func TestCheckoutHandlersFormDataSparseIndex(t *testing.T) {
	router := newCheckoutRouter(t, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader("items[0].kind=product&items[2].kind=product"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(terminalHeader, "till-9")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	body := expectError(t, rr, http.StatusUnprocessableEntity, "schema_violation")
	if body.Field == nil || *body.Field != "items[1]" {
		t.Fatalf("expected missing index in field, got %v", body.Field)
	}
}

func TestCheckoutHandlersErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		check  func(t *testing.T, body errorBody)
	}{
		{
			name:   "amount mismatch",
			err:    fmt.Errorf("%w: %w", services.ErrCheckoutInvalidInput, &pos.AmountMismatchError{Expected: 10998, Actual: 10997, Delta: 1}),
			status: http.StatusUnprocessableEntity,
			code:   "amount_mismatch",
			check: func(t *testing.T, body errorBody) {
				if body.Delta == nil || *body.Delta != 1 {
					t.Fatalf("expected delta 0.01, got %v", body.Delta)
				}
			},
		},
		{
			name:   "empty cart",
			err:    fmt.Errorf("%w: %w", services.ErrCheckoutInvalidInput, pos.ErrEmptyCart),
			status: http.StatusUnprocessableEntity,
			code:   "empty_cart",
		},
		{
			name:   "no payment",
			err:    fmt.Errorf("%w: %w", services.ErrCheckoutInvalidInput, pos.ErrNoPayment),
			status: http.StatusUnprocessableEntity,
			code:   "no_payment",
		},
		{
			name:   "negative stock",
			err:    fmt.Errorf("%w: %w", services.ErrCheckoutInsufficientStock, &pos.NegativeStockError{Product: "Mask", Current: 15, Requested: -10}),
			status: http.StatusConflict,
			code:   "negative_stock",
			check: func(t *testing.T, body errorBody) {
				if body.Current == nil || *body.Current != 15 {
					t.Fatalf("expected current 15, got %v", body.Current)
				}
			},
		},
		{
			name:   "card not captured",
			err:    fmt.Errorf("%w: payments[0] status requires_capture", services.ErrCheckoutPaymentNotCaptured),
			status: http.StatusPaymentRequired,
			code:   "payment_not_captured",
		},
		{
			name:   "store unavailable",
			err:    fmt.Errorf("%w: deadline", services.ErrCheckoutUnavailable),
			status: http.StatusServiceUnavailable,
			code:   "service_unavailable",
		},
		{
			name:   "unexpected",
			err:    fmt.Errorf("boom"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router := newCheckoutRouter(t, &stubCheckoutService{
				checkoutFunc: func(context.Context, services.CheckoutCommand) (domain.Sale, error) {
					return domain.Sale{}, tc.err
				},
			})
			rr := doRequest(t, router, http.MethodPost, "/api/v1/checkout", checkoutJSON, map[string]string{terminalHeader: "till-9"})
			body := expectError(t, rr, tc.status, tc.code)
			if tc.check != nil {
				tc.check(t, body)
			}
		})
	}
}

func TestCheckoutHandlersRequestValidation(t *testing.T) {
	checkout := &stubCheckoutService{}
	router := newCheckoutRouter(t, checkout)

	expectError(t, doRequest(t, router, http.MethodPost, "/api/v1/checkout", checkoutJSON, nil), http.StatusBadRequest, "invalid_request")

	body := expectError(t, doRequest(t, router, http.MethodPost, "/api/v1/checkout",
		`{"items":[{"kind":"product"}],"payments":[],"subtotal":"1","tax":"0","total":"1"}`,
		map[string]string{terminalHeader: "till-9"}), http.StatusUnprocessableEntity, "schema_violation")
	if body.Field == nil || *body.Field != "items[0].productId" {
		t.Fatalf("expected field items[0].productId, got %v", body.Field)
	}

	oversized := `{"notes":"` + strings.Repeat("a", maxCheckoutBodySize) + `"}`
	expectError(t, doRequest(t, router, http.MethodPost, "/api/v1/checkout", oversized, map[string]string{terminalHeader: "till-9"}),
		http.StatusRequestEntityTooLarge, "invalid_request")

	if len(checkout.checkouts) != 0 {
		t.Fatalf("expected no checkout calls, got %d", len(checkout.checkouts))
	}

	unavailable := NewRouter(WithCheckoutRoutes(NewCheckoutHandlers(nil, domain.MoneyFormatter{}).Routes))
	expectError(t, doRequest(t, unavailable, http.MethodPost, "/api/v1/checkout", checkoutJSON, map[string]string{terminalHeader: "till-9"}),
		http.StatusServiceUnavailable, "checkout_unavailable")
}
