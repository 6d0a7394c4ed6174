package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/platform/httpx"
	"github.com/divestreams/pos/internal/platform/pagination"
	"github.com/divestreams/pos/internal/services"
)

// SaleHandlers serves persisted sales and voids them.
type SaleHandlers struct {
	sales    services.SaleQueryService
	checkout services.CheckoutService
	paging   pagination.Options
	format   domain.MoneyFormatter
}

// SaleHandlersOption customises SaleHandlers.
type SaleHandlersOption func(*SaleHandlers)

// WithSalePaging bounds the page sizes accepted by the listing endpoint.
func WithSalePaging(opts pagination.Options) SaleHandlersOption {
	return func(h *SaleHandlers) {
		h.paging = opts
	}
}

// WithSaleFormatter sets the formatter used for display totals.
func WithSaleFormatter(format domain.MoneyFormatter) SaleHandlersOption {
	return func(h *SaleHandlers) {
		h.format = format
	}
}

// NewSaleHandlers constructs sale handlers. checkout may be nil, in which case voiding is unavailable.
func NewSaleHandlers(sales services.SaleQueryService, checkout services.CheckoutService, opts ...SaleHandlersOption) *SaleHandlers {
	h := &SaleHandlers{sales: sales, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers sale endpoints under the provided router.
func (h *SaleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listSales)
	r.Get("/{saleID}", h.getSale)
	r.Post("/{saleID}/void", h.voidSale)
}

type voidSaleRequest struct {
	Reason string `json:"reason"`
}

func (h *SaleHandlers) listSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sale service unavailable", http.StatusServiceUnavailable))
		return
	}
	params, err := pagination.FromRequest(r, h.paging)
	if err != nil {
		code := "invalid_page_size"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			code = "invalid_page_token"
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.sales.ListSales(ctx, services.SaleListFilter{
		TerminalID: strings.TrimSpace(r.URL.Query().Get("terminalId")),
		PageSize:   params.PageSize,
		PageToken:  params.PageToken,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	view := salePageView{
		Sales:         make([]saleView, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, sale := range page.Items {
		view.Sales = append(view.Sales, newSaleView(sale, h.format))
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *SaleHandlers) getSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sales == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sales_unavailable", "sale service unavailable", http.StatusServiceUnavailable))
		return
	}
	sale, err := h.sales.GetSale(ctx, chi.URLParam(r, "saleID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newSaleView(sale, h.format))
}

func (h *SaleHandlers) voidSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req voidSaleRequest
	if err := decodeOptionalJSON(r, maxMutationBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	sale, err := h.checkout.VoidSale(ctx, services.VoidSaleCommand{
		SaleID: chi.URLParam(r, "saleID"),
		Reason: req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newSaleView(sale, h.format))
}
