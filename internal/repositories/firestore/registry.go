// Package firestore persists sales and stock in Cloud Firestore so several terminals can
// share one inventory.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/divestreams/pos/internal/platform/firestore"
	"github.com/divestreams/pos/internal/repositories"
)

type Registry struct {
	provider *pfirestore.Provider
	sales    *SaleRepository
	stock    *StockRepository
}

var _ repositories.Registry = (*Registry)(nil)

func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	sales, err := NewSaleRepository(provider)
	if err != nil {
		return nil, err
	}
	stock, err := NewStockRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, sales: sales, stock: stock}, nil
}

func (r *Registry) Sales() repositories.SaleRepository  { return r.sales }
func (r *Registry) Stock() repositories.StockRepository { return r.stock }

func (r *Registry) Close(context.Context) error {
	return r.provider.Close()
}
