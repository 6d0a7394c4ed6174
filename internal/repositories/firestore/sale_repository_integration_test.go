//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/platform/config"
	pfirestore "github.com/divestreams/pos/internal/platform/firestore"
	"github.com/divestreams/pos/internal/repositories"
	firestorerepo "github.com/divestreams/pos/internal/repositories/firestore"
)

// Run with: FIRESTORE_EMULATOR_HOST=127.0.0.1:8080 go test -tags integration ./internal/repositories/firestore
func TestSaleRepositoryConsumesCardReference(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "pos-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })
	repo, err := firestorerepo.NewSaleRepository(provider)
	if err != nil {
		t.Fatalf("NewSaleRepository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	suffix := time.Now().Format("150405.000000")
	reference := "pi_" + suffix
	newSale := func(id string) domain.Sale {
		return domain.Sale{
			ID:         id,
			TerminalID: "T1",
			Status:     domain.SaleStatusCompleted,
			Items:      []domain.LineItem{domain.RentalItem{Name: "Tank", Days: 1, DailyRate: 2000, Total: 2000}},
			Payments:   []domain.PaymentInstrument{domain.CardPayment{Amount: 2000, PaymentReference: reference}},
			Subtotal:   2000,
			Total:      2000,
			Currency:   "USD",
			CreatedAt:  time.Now().UTC(),
		}
	}

	if err := repo.Insert(ctx, newSale("sale-a-"+suffix)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err = repo.Insert(ctx, newSale("sale-b-"+suffix))
	if !repositories.IsConflict(err) || !errors.Is(err, repositories.ErrPaymentReferenceUsed) {
		t.Fatalf("expected reused reference conflict, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "sale-b-"+suffix); !repositories.IsNotFound(err) {
		t.Fatalf("rejected sale must not be written, got %v", err)
	}
}
