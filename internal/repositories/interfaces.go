package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
)

// Registry hands out the repositories of one storage backend.
type Registry interface {
	Sales() SaleRepository
	Stock() StockRepository
	Close(ctx context.Context) error
}

// RepositoryError classifies persistence failures so services can translate them.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// SaleRepository stores completed sales. Sales are never deleted; voiding is a status change.
type SaleRepository interface {
	// Insert fails with a conflict error when a sale with the same ID exists. Card payment
	// references are consumed by the insert; one that already settled a sale fails with a
	// conflict wrapping ErrPaymentReferenceUsed and nothing is written.
	Insert(ctx context.Context, sale domain.Sale) error
	FindByID(ctx context.Context, saleID string) (domain.Sale, error)
	// List returns sales newest first, strictly after the filter's cursor.
	List(ctx context.Context, filter SaleListFilter) ([]domain.Sale, error)
	// UpdateStatus moves a sale from one status to another and fails with a conflict
	// error when the stored status is not change.From.
	UpdateStatus(ctx context.Context, saleID string, change SaleStatusChange) (domain.Sale, error)
}

// SaleStatusChange describes a guarded status transition. Reason is recorded on voids.
type SaleStatusChange struct {
	From   domain.SaleStatus
	To     domain.SaleStatus
	Reason string
	At     time.Time
}

// SaleListFilter selects a page of sales. A zero AfterID starts from the newest sale.
type SaleListFilter struct {
	TerminalID     string
	Limit          int
	AfterCreatedAt time.Time
	AfterID        string
}

// StockMutation changes the on-hand level of one product.
type StockMutation struct {
	ProductID uuid.UUID
	Name      string
	Mode      domain.StockAdjustmentMode
	Value     int64
}

// StockRepository keeps on-hand quantities. Apply is atomic across all mutations: one
// rejected mutation leaves every level unchanged.
type StockRepository interface {
	Get(ctx context.Context, productID uuid.UUID) (domain.StockLevel, error)
	Apply(ctx context.Context, mutations []StockMutation, now time.Time) ([]domain.StockLevel, error)
}

// HealthRepository probes backing services for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
