// Package memory keeps sales and stock in process. It backs single-terminal installs and
// tests; everything is lost on restart.
package memory

import (
	"context"

	"github.com/divestreams/pos/internal/repositories"
)

type Registry struct {
	sales *SaleRepository
	stock *StockRepository
}

func NewRegistry() *Registry {
	return &Registry{sales: NewSaleRepository(), stock: NewStockRepository()}
}

func (r *Registry) Sales() repositories.SaleRepository  { return r.sales }
func (r *Registry) Stock() repositories.StockRepository { return r.stock }
func (r *Registry) Close(context.Context) error         { return nil }
