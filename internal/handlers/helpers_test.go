package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/services"
)

var (
	testNow  = time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)
	maskID   = uuid.MustParse("3f7a1f52-3c7e-4c55-9c6a-0d8a4f7c1a01")
	finsID   = uuid.MustParse("3f7a1f52-3c7e-4c55-9c6a-0d8a4f7c1a02")
	customer = uuid.MustParse("9b2d6c1e-7a44-4f0e-8e6f-5a1c2b3d4e5f")
)

type stubCheckoutService struct {
	checkoutFunc func(ctx context.Context, cmd services.CheckoutCommand) (domain.Sale, error)
	voidFunc     func(ctx context.Context, cmd services.VoidSaleCommand) (domain.Sale, error)
	checkouts    []services.CheckoutCommand
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (domain.Sale, error) {
	s.checkouts = append(s.checkouts, cmd)
	if s.checkoutFunc != nil {
		return s.checkoutFunc(ctx, cmd)
	}
	return saleFromCommand(cmd), nil
}

func (s *stubCheckoutService) VoidSale(ctx context.Context, cmd services.VoidSaleCommand) (domain.Sale, error) {
	if s.voidFunc != nil {
		return s.voidFunc(ctx, cmd)
	}
	return domain.Sale{}, services.ErrSaleNotFound
}

func saleFromCommand(cmd services.CheckoutCommand) domain.Sale {
	req := cmd.Request
	changeDue, _ := domain.CashChange(req.Payments)
	return domain.Sale{
		ID:         "01JRSALE0000000000000000001",
		TerminalID: cmd.TerminalID,
		SessionID:  cmd.SessionID,
		Status:     domain.SaleStatusCompleted,
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Payments:   req.Payments,
		Subtotal:   req.Subtotal,
		Tax:        req.Tax,
		Total:      req.Total,
		ChangeDue:  changeDue,
		Currency:   "USD",
		Notes:      req.Notes,
		CreatedAt:  testNow,
	}
}

type stubSystemService struct {
	report domain.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

var (
	_ services.CheckoutService = (*stubCheckoutService)(nil)
	_ services.SystemService   = (*stubSystemService)(nil)
)

func mustFormatter(t *testing.T) domain.MoneyFormatter {
	t.Helper()
	format, err := domain.NewMoneyFormatter("en-US", "USD")
	if err != nil {
		t.Fatalf("formatter: %v", err)
	}
	return format
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

// errorBody covers the envelope fields plus the details the POS endpoints attach.
type errorBody struct {
	Error     string        `json:"error"`
	Message   string        `json:"message"`
	Status    int           `json:"status"`
	RequestID string        `json:"request_id"`
	Field     *string       `json:"field"`
	Remaining *domain.Money `json:"remaining"`
	Delta     *domain.Money `json:"delta"`
	Current   *int64        `json:"current"`
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorBody {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeJSON[errorBody](t, rr)
	if body.Error != code {
		t.Fatalf("expected error code %q, got %q (%s)", code, body.Error, body.Message)
	}
	return body
}
