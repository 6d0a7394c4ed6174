package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/repositories"
)

type SaleRepository struct {
	mu    sync.RWMutex
	sales map[string]domain.Sale
	// card payment reference -> sale id
	references map[string]string
}

var _ repositories.SaleRepository = (*SaleRepository)(nil)

func NewSaleRepository() *SaleRepository {
	return &SaleRepository{sales: make(map[string]domain.Sale), references: make(map[string]string)}
}

func (r *SaleRepository) Insert(_ context.Context, sale domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sales[sale.ID]; exists {
		return repositories.NewConflictError("sales.insert", "sale %s already exists", sale.ID)
	}
	refs := domain.CardReferences(sale.Payments)
	for _, ref := range refs {
		if owner, used := r.references[ref]; used {
			return repositories.NewPaymentReferenceUsedError("sales.insert", ref, owner)
		}
	}
	for _, ref := range refs {
		r.references[ref] = sale.ID
	}
	r.sales[sale.ID] = sale.Clone()
	return nil
}

func (r *SaleRepository) FindByID(_ context.Context, saleID string) (domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sale, ok := r.sales[saleID]
	if !ok {
		return domain.Sale{}, repositories.NewNotFoundError("sales.get", "sale %s not found", saleID)
	}
	return sale.Clone(), nil
}

func (r *SaleRepository) List(_ context.Context, filter repositories.SaleListFilter) ([]domain.Sale, error) {
	r.mu.RLock()
	matched := make([]domain.Sale, 0, len(r.sales))
	for _, sale := range r.sales {
		if filter.TerminalID != "" && sale.TerminalID != filter.TerminalID {
			continue
		}
		if filter.AfterID != "" && !olderThan(sale, filter.AfterCreatedAt, filter.AfterID) {
			continue
		}
		matched = append(matched, sale.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return olderThan(matched[j], matched[i].CreatedAt, matched[i].ID)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *SaleRepository) UpdateStatus(_ context.Context, saleID string, change repositories.SaleStatusChange) (domain.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.sales[saleID]
	if !ok {
		return domain.Sale{}, repositories.NewNotFoundError("sales.update_status", "sale %s not found", saleID)
	}
	if sale.Status != change.From {
		return domain.Sale{}, repositories.NewConflictError("sales.update_status", "sale %s is %s, not %s", saleID, sale.Status, change.From)
	}
	sale.Status = change.To
	if change.To == domain.SaleStatusVoided {
		at := change.At.UTC()
		sale.VoidedAt = &at
		sale.VoidReason = change.Reason
	}
	r.sales[saleID] = sale
	return sale.Clone(), nil
}

// olderThan orders sales by (CreatedAt, ID) descending.
func olderThan(sale domain.Sale, createdAt time.Time, id string) bool {
	if !sale.CreatedAt.Equal(createdAt) {
		return sale.CreatedAt.Before(createdAt)
	}
	return sale.ID < id
}
