//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/divestreams/pos/internal/platform/config"
	pfirestore "github.com/divestreams/pos/internal/platform/firestore"
)

type counter struct {
	Name  string `firestore:"name"`
	Count int64  `firestore:"count"`
}

// Run with: FIRESTORE_EMULATOR_HOST=127.0.0.1:8080 go test -tags integration ./internal/platform/firestore
func TestCollectionAgainstEmulator(t *testing.T) {
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	provider := pfirestore.NewProvider(config.FirestoreConfig{ProjectID: "pos-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	coll := pfirestore.NewCollection[counter](provider, "counters_"+time.Now().Format("150405.000"))
	if _, err := coll.Create(ctx, "fins", counter{Name: "Fins", Count: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := coll.Create(ctx, "fins", counter{Name: "Fins"})
	var fsErr *pfirestore.Error
	if !errors.As(err, &fsErr) || !fsErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	_, err = coll.Get(ctx, "missing")
	if !errors.As(err, &fsErr) || !fsErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	err = provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := coll.Ref(ctx, "fins")
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		doc, err := coll.Decode(snap)
		if err != nil {
			return err
		}
		doc.Data.Count--
		return tx.Set(ref, doc.Data)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	doc, err := coll.Get(ctx, "fins")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data.Count != 2 {
		t.Fatalf("expected count 2, got %d", doc.Data.Count)
	}

	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query { return q.Where("name", "==", "Fins") })
	if err != nil || len(docs) != 1 {
		t.Fatalf("query: %v (%d docs)", err, len(docs))
	}
}
