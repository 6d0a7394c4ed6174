package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/divestreams/pos/internal/domain"
	pfirestore "github.com/divestreams/pos/internal/platform/firestore"
	"github.com/divestreams/pos/internal/repositories"
)

const (
	salesCollection             = "pos_sales"
	paymentReferencesCollection = "pos_payment_references"
)

// SaleRepository stores one document per sale, keyed by the sale ULID. Listing needs the
// composite index (terminal_id asc, created_at desc, id desc).
type SaleRepository struct {
	provider   *pfirestore.Provider
	sales      *pfirestore.Collection[saleDocument]
	references *pfirestore.Collection[paymentReferenceDocument]
}

var _ repositories.SaleRepository = (*SaleRepository)(nil)

func NewSaleRepository(provider *pfirestore.Provider) (*SaleRepository, error) {
	if provider == nil {
		return nil, errors.New("sale repository requires firestore provider")
	}
	return &SaleRepository{
		provider:   provider,
		sales:      pfirestore.NewCollection[saleDocument](provider, salesCollection),
		references: pfirestore.NewCollection[paymentReferenceDocument](provider, paymentReferencesCollection),
	}, nil
}

// Insert writes the sale together with one pos_payment_references document per card
// reference, in a single transaction.
func (r *SaleRepository) Insert(ctx context.Context, sale domain.Sale) error {
	doc, err := newSaleDocument(sale)
	if err != nil {
		return err
	}
	refs := domain.CardReferences(sale.Payments)
	if len(refs) == 0 {
		_, err = r.sales.Create(ctx, sale.ID, doc)
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refDocs := make([]*firestore.DocumentRef, 0, len(refs))
		for _, reference := range refs {
			ref, err := r.references.Ref(ctx, paymentReferenceID(reference))
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			switch {
			case err == nil:
				used, err := r.references.Decode(snap)
				if err != nil {
					return err
				}
				return repositories.NewPaymentReferenceUsedError("pos_sales.insert", reference, used.Data.SaleID)
			case status.Code(err) != codes.NotFound:
				return pfirestore.WrapError("pos_sales.insert", err)
			}
			refDocs = append(refDocs, ref)
		}

		saleRef, err := r.sales.Ref(ctx, sale.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(saleRef, doc); err != nil {
			return err
		}
		for i, ref := range refDocs {
			if err := tx.Create(ref, paymentReferenceDocument{
				Reference: refs[i],
				SaleID:    sale.ID,
				CreatedAt: sale.CreatedAt.UTC(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SaleRepository) FindByID(ctx context.Context, saleID string) (domain.Sale, error) {
	doc, err := r.sales.Get(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return doc.Data.toDomain()
}

func (r *SaleRepository) List(ctx context.Context, filter repositories.SaleListFilter) ([]domain.Sale, error) {
	docs, err := r.sales.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.TerminalID != "" {
			q = q.Where("terminal_id", "==", filter.TerminalID)
		}
		q = q.OrderBy("created_at", firestore.Desc).OrderBy("id", firestore.Desc)
		if filter.AfterID != "" {
			q = q.StartAfter(filter.AfterCreatedAt.UTC(), filter.AfterID)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(docs))
	for _, doc := range docs {
		sale, err := doc.Data.toDomain()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (r *SaleRepository) UpdateStatus(ctx context.Context, saleID string, change repositories.SaleStatusChange) (domain.Sale, error) {
	var updated domain.Sale
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.sales.Ref(ctx, saleID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("pos_sales.update_status", err)
		}
		doc, err := r.sales.Decode(snap)
		if err != nil {
			return err
		}
		if doc.Data.Status != string(change.From) {
			return repositories.NewConflictError("pos_sales.update_status", "sale %s is %s, not %s", saleID, doc.Data.Status, change.From)
		}

		doc.Data.Status = string(change.To)
		if change.To == domain.SaleStatusVoided {
			at := change.At.UTC()
			doc.Data.VoidedAt = &at
			doc.Data.VoidReason = change.Reason
		}
		if err := tx.Set(ref, doc.Data); err != nil {
			return err
		}
		updated, err = doc.Data.toDomain()
		return err
	})
	if err != nil {
		return domain.Sale{}, fmt.Errorf("update sale status: %w", err)
	}
	return updated, nil
}
