package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/formdata"
	"github.com/divestreams/pos/internal/platform/httpx"
	"github.com/divestreams/pos/internal/platform/requestctx"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/services"
)

const (
	terminalHeader = "X-Terminal-ID"
	sessionHeader  = "X-Session-ID"
)

// CheckoutHandlers accepts fully assembled sales from terminals that keep their own cart.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	format   domain.MoneyFormatter
}

// NewCheckoutHandlers constructs the one-shot checkout endpoint.
func NewCheckoutHandlers(checkout services.CheckoutService, format domain.MoneyFormatter) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout, format: format}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.checkoutSale)
}

func (h *CheckoutHandlers) checkoutSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	terminal := strings.TrimSpace(r.Header.Get(terminalHeader))
	if terminal == "" {
		terminal = requestctx.Terminal(ctx)
	}
	if terminal == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", terminalHeader+" header is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	if isFormRequest(r) {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be form encoded", http.StatusBadRequest))
			return
		}
		body, err = formdata.JSON(values)
		if err != nil {
			writeFormError(ctx, w, err)
			return
		}
	}

	req, err := pos.DecodeCheckoutRequest(body)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	sale, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		TerminalID: terminal,
		SessionID:  strings.TrimSpace(r.Header.Get(sessionHeader)),
		Request:    req,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newSaleView(sale, h.format))
}

func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded"
}

func writeFormError(ctx context.Context, w http.ResponseWriter, err error) {
	field := ""
	var keyErr *formdata.KeyError
	if errors.As(err, &keyErr) {
		field = keyErr.Key
	}
	httpx.WriteError(ctx, w, httpx.NewError("schema_violation", err.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
		"field": field,
	}))
}
