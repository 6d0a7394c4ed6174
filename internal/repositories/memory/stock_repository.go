package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/repositories"
)

type StockRepository struct {
	mu     sync.Mutex
	levels map[uuid.UUID]domain.StockLevel
}

var _ repositories.StockRepository = (*StockRepository)(nil)

func NewStockRepository() *StockRepository {
	return &StockRepository{levels: make(map[uuid.UUID]domain.StockLevel)}
}

func (r *StockRepository) Get(_ context.Context, productID uuid.UUID) (domain.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, ok := r.levels[productID]
	if !ok {
		return domain.StockLevel{}, repositories.NewNotFoundError("stock.get", "no stock record for %s", productID)
	}
	return level, nil
}

// Apply stages every mutation against a scratch copy and commits only if all pass.
// Several mutations for one product compound in order.
func (r *StockRepository) Apply(_ context.Context, mutations []repositories.StockMutation, now time.Time) ([]domain.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[uuid.UUID]domain.StockLevel, len(mutations))
	results := make([]domain.StockLevel, 0, len(mutations))
	for _, m := range mutations {
		level, ok := staged[m.ProductID]
		if !ok {
			level = r.levels[m.ProductID]
			level.ProductID = m.ProductID
		}
		if m.Name != "" {
			level.Name = m.Name
		}
		next, err := pos.CheckStockAdjustment(level.Name, level.OnHand, m.Value, m.Mode)
		if err != nil {
			return nil, err
		}
		level.OnHand = next
		level.UpdatedAt = now.UTC()
		staged[m.ProductID] = level
		results = append(results, level)
	}
	for id, level := range staged {
		r.levels[id] = level
	}
	return results, nil
}
