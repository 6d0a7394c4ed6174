package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/divestreams/pos/internal/domain"
	pfirestore "github.com/divestreams/pos/internal/platform/firestore"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/repositories"
)

const stockCollection = "pos_stock"

// StockRepository keeps one document per product. Apply runs in a transaction, so two
// terminals selling the last unit cannot both succeed.
type StockRepository struct {
	provider *pfirestore.Provider
	stock    *pfirestore.Collection[stockDocument]
}

var _ repositories.StockRepository = (*StockRepository)(nil)

func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	return &StockRepository{
		provider: provider,
		stock:    pfirestore.NewCollection[stockDocument](provider, stockCollection),
	}, nil
}

func (r *StockRepository) Get(ctx context.Context, productID uuid.UUID) (domain.StockLevel, error) {
	doc, err := r.stock.Get(ctx, productID.String())
	if err != nil {
		return domain.StockLevel{}, err
	}
	return doc.Data.toDomain(productID), nil
}

func (r *StockRepository) Apply(ctx context.Context, mutations []repositories.StockMutation, now time.Time) ([]domain.StockLevel, error) {
	var results []domain.StockLevel
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		results = results[:0]

		// Firestore transactions require every read before the first write.
		refs := make(map[uuid.UUID]*firestore.DocumentRef)
		staged := make(map[uuid.UUID]stockDocument)
		for _, m := range mutations {
			if _, seen := refs[m.ProductID]; seen {
				continue
			}
			ref, err := r.stock.Ref(ctx, m.ProductID.String())
			if err != nil {
				return err
			}
			refs[m.ProductID] = ref

			doc := stockDocument{ProductID: m.ProductID.String()}
			snap, err := tx.Get(ref)
			switch {
			case err == nil:
				decoded, err := r.stock.Decode(snap)
				if err != nil {
					return err
				}
				doc = decoded.Data
			case status.Code(err) != codes.NotFound:
				return pfirestore.WrapError("pos_stock.apply", err)
			}
			staged[m.ProductID] = doc
		}

		for _, m := range mutations {
			doc := staged[m.ProductID]
			if m.Name != "" {
				doc.Name = m.Name
			}
			next, err := pos.CheckStockAdjustment(doc.Name, doc.OnHand, m.Value, m.Mode)
			if err != nil {
				return err
			}
			doc.OnHand = next
			doc.UpdatedAt = now.UTC()
			staged[m.ProductID] = doc
			results = append(results, doc.toDomain(m.ProductID))
		}

		for id, doc := range staged {
			if err := tx.Set(refs[id], doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
