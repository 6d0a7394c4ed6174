package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/repositories/memory"
)

func seedSales(t *testing.T, repo *memory.SaleRepository, terminalID string, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		sale := domain.Sale{
			ID:         fmt.Sprintf("%s-%02d", terminalID, i),
			TerminalID: terminalID,
			Status:     domain.SaleStatusCompleted,
			Items:      []domain.LineItem{domain.ProductItem{ProductID: uuid.New(), Name: "Clip", Quantity: 1, UnitPrice: 100, Total: 100}},
			Payments:   []domain.PaymentInstrument{domain.CashPayment{Amount: 100, Tendered: 100}},
			Subtotal:   100,
			Total:      100,
			Currency:   "USD",
			CreatedAt:  testNow.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Insert(context.Background(), sale); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestSaleQueryServicePaginates(t *testing.T) {
	repo := memory.NewSaleRepository()
	seedSales(t, repo, "T1", 5)
	seedSales(t, repo, "T2", 2)
	svc, err := NewSaleQueryService(SaleQueryServiceDeps{Sales: repo, DefaultPageSize: 2, MaxPageSize: 3})
	if err != nil {
		t.Fatalf("NewSaleQueryService: %v", err)
	}
	ctx := context.Background()

	var ids []string
	token := ""
	pages := 0
	for {
		page, err := svc.ListSales(ctx, SaleListFilter{TerminalID: "T1", PageToken: token})
		if err != nil {
			t.Fatalf("ListSales: %v", err)
		}
		pages++
		for _, sale := range page.Items {
			ids = append(ids, sale.ID)
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	want := []string{"T1-04", "T1-03", "T1-02", "T1-01", "T1-00"}
	if fmt.Sprint(ids) != fmt.Sprint(want) || pages != 3 {
		t.Fatalf("expected %v over 3 pages, got %v over %d", want, ids, pages)
	}

	page, err := svc.ListSales(ctx, SaleListFilter{PageSize: 50})
	if err != nil {
		t.Fatalf("ListSales: %v", err)
	}
	if len(page.Items) != 3 || page.NextPageToken == "" {
		t.Fatalf("expected page clamped to 3 with a next token, got %d items", len(page.Items))
	}
}

func TestSaleQueryServiceErrors(t *testing.T) {
	repo := memory.NewSaleRepository()
	seedSales(t, repo, "T1", 1)
	svc, _ := NewSaleQueryService(SaleQueryServiceDeps{Sales: repo})
	ctx := context.Background()

	sale, err := svc.GetSale(ctx, "T1-00")
	if err != nil || sale.TerminalID != "T1" {
		t.Fatalf("GetSale: %+v %v", sale, err)
	}
	if _, err := svc.GetSale(ctx, "nope"); !errors.Is(err, ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}
	if _, err := svc.GetSale(ctx, " "); !errors.Is(err, ErrSaleInvalidInput) {
		t.Fatalf("expected ErrSaleInvalidInput, got %v", err)
	}
	if _, err := svc.ListSales(ctx, SaleListFilter{PageToken: "%%%"}); !errors.Is(err, ErrSaleInvalidInput) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}
