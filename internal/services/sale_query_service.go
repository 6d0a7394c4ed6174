package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/platform/pagination"
	"github.com/divestreams/pos/internal/repositories"
)

var (
	// ErrSaleInvalidInput indicates malformed identifiers or paging parameters.
	ErrSaleInvalidInput = errors.New("sales: invalid input")
	// ErrSaleNotFound indicates no sale exists with the requested id.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrSaleUnavailable indicates the sale store could not be reached.
	ErrSaleUnavailable = errors.New("sales: unavailable")
)

// SaleQueryServiceDeps bundles the collaborators of the sale query service.
type SaleQueryServiceDeps struct {
	Sales           repositories.SaleRepository
	DefaultPageSize int
	MaxPageSize     int
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type saleQueryService struct {
	sales  repositories.SaleRepository
	paging pagination.Options
	logger func(context.Context, string, map[string]any)
}

func NewSaleQueryService(deps SaleQueryServiceDeps) (SaleQueryService, error) {
	if deps.Sales == nil {
		return nil, errors.New("sale query service: sale repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &saleQueryService{
		sales:  deps.Sales,
		paging: pagination.Options{DefaultPageSize: deps.DefaultPageSize, MaxPageSize: deps.MaxPageSize},
		logger: logger,
	}, nil
}

func (s *saleQueryService) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", ErrSaleInvalidInput)
	}
	sale, err := s.sales.FindByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, s.translateError(ctx, "sales.get_failed", err)
	}
	return sale, nil
}

// ListSales returns sales newest first. It reads one extra row to learn whether another page
// follows.
func (s *saleQueryService) ListSales(ctx context.Context, filter SaleListFilter) (domain.CursorPage[domain.Sale], error) {
	size := filter.PageSize
	limit := s.paging.MaxPageSize
	if limit <= 0 {
		limit = pagination.DefaultMaxPageSize
	}
	switch {
	case size <= 0:
		size = s.paging.DefaultPageSize
		if size <= 0 {
			size = pagination.DefaultPageSize
		}
		if size > limit {
			size = limit
		}
	case size > limit:
		size = limit
	}

	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Sale]{}, fmt.Errorf("%w: %w", ErrSaleInvalidInput, err)
	}

	sales, err := s.sales.List(ctx, repositories.SaleListFilter{
		TerminalID:     strings.TrimSpace(filter.TerminalID),
		Limit:          size + 1,
		AfterCreatedAt: cursor.CreatedAt,
		AfterID:        cursor.ID,
	})
	if err != nil {
		return domain.CursorPage[domain.Sale]{}, s.translateError(ctx, "sales.list_failed", err)
	}

	page := domain.CursorPage[domain.Sale]{Items: sales}
	if len(sales) > size {
		page.Items = sales[:size]
		last := page.Items[size-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.CursorPage[domain.Sale]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func (s *saleQueryService) translateError(ctx context.Context, event string, err error) error {
	switch {
	case repositories.IsNotFound(err):
		return ErrSaleNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		s.logger(ctx, event, map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: %w", ErrSaleUnavailable, err)
	}
}
