package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/platform/httpx"
	"github.com/divestreams/pos/internal/pos"
	"github.com/divestreams/pos/internal/services"
)

// TerminalHandlers exposes the sale in progress of each terminal. Routes are mounted under
// /terminals/{terminalID}.
type TerminalHandlers struct {
	terminals services.TerminalService
	format    domain.MoneyFormatter
}

// NewTerminalHandlers constructs terminal handlers; format renders display totals.
func NewTerminalHandlers(terminals services.TerminalService, format domain.MoneyFormatter) *TerminalHandlers {
	return &TerminalHandlers{terminals: terminals, format: format}
}

// Routes registers terminal endpoints under the provided router.
func (h *TerminalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.openSession)
	r.Get("/session", h.getSession)
	r.Delete("/session", h.closeSession)

	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{index}", h.updateQuantity)
	r.Delete("/cart/items/{index}", h.removeItem)
	r.Put("/cart/customer", h.setCustomer)
	r.Post("/cart/clear", h.newSale)

	r.Post("/payment", h.beginPayment)
	r.Delete("/payment", h.cancelPayment)
	r.Post("/payment/instruments", h.addPayment)
	r.Delete("/payment/instruments/{index}", h.removePayment)
	r.Get("/payment/rest", h.fillRemaining)

	r.Post("/complete", h.complete)
}

type updateQuantityRequest struct {
	Quantity *int64 `json:"quantity"`
}

type setCustomerRequest struct {
	CustomerID *string `json:"customerId"`
}

type beginPaymentRequest struct {
	Split bool `json:"split"`
}

type completeRequest struct {
	Notes string `json:"notes"`
}

func terminalID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "terminalID"))
}

func (h *TerminalHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.terminals != nil {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("terminal_unavailable", "terminal service unavailable", http.StatusServiceUnavailable))
	return false
}

func (h *TerminalHandlers) writeSession(w http.ResponseWriter, r *http.Request, status int, session services.TerminalSession, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, status, newSessionView(session, h.format))
}

func (h *TerminalHandlers) openSession(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	session, err := h.terminals.OpenSession(r.Context(), terminalID(r))
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	session, err := h.terminals.GetSession(r.Context(), terminalID(r))
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.terminals.CloseSession(r.Context(), terminalID(r)); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TerminalHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	body, err := readLimitedBody(r, maxMutationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	item, err := pos.DecodeLineItem(body)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	session, err := h.terminals.AddItem(ctx, terminalID(r), item)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	index, ok := indexParam(r, "index")
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "index must be a non-negative integer", http.StatusBadRequest))
		return
	}
	body, err := readLimitedBody(r, maxMutationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateQuantityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeBodyError(ctx, w, errInvalidJSON)
		return
	}
	if req.Quantity == nil {
		writeServiceError(ctx, w, &pos.SchemaViolation{Path: "quantity", Message: "quantity is required"})
		return
	}
	session, err := h.terminals.UpdateQuantity(ctx, terminalID(r), index, *req.Quantity)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	index, ok := indexParam(r, "index")
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "index must be a non-negative integer", http.StatusBadRequest))
		return
	}
	session, err := h.terminals.RemoveItem(r.Context(), terminalID(r), index)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) setCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	body, err := readLimitedBody(r, maxMutationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req setCustomerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeBodyError(ctx, w, errInvalidJSON)
		return
	}
	var customerID *uuid.UUID
	if req.CustomerID != nil {
		id, err := uuid.Parse(strings.TrimSpace(*req.CustomerID))
		if err != nil {
			writeServiceError(ctx, w, &pos.SchemaViolation{Path: "customerId", Message: "customerId must be a UUID"})
			return
		}
		customerID = &id
	}
	session, err := h.terminals.SetCustomer(ctx, terminalID(r), customerID)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) newSale(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	session, err := h.terminals.NewSale(r.Context(), terminalID(r))
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) beginPayment(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	var req beginPaymentRequest
	if err := decodeOptionalJSON(r, maxMutationBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	session, err := h.terminals.BeginPayment(ctx, terminalID(r), req.Split)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) cancelPayment(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	session, err := h.terminals.CancelPayment(r.Context(), terminalID(r))
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) addPayment(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	body, err := readLimitedBody(r, maxMutationBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	payment, err := pos.DecodePayment(body)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	session, err := h.terminals.AddPayment(ctx, terminalID(r), payment)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) removePayment(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	index, ok := indexParam(r, "index")
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "index must be a non-negative integer", http.StatusBadRequest))
		return
	}
	session, err := h.terminals.RemovePayment(r.Context(), terminalID(r), index)
	h.writeSession(w, r, http.StatusOK, session, err)
}

func (h *TerminalHandlers) fillRemaining(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	payment, ok, err := h.terminals.FillRemaining(r.Context(), terminalID(r))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	view := cashProposalView{Available: ok}
	if ok {
		view.Payment = &payment
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *TerminalHandlers) complete(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	ctx := r.Context()
	var req completeRequest
	if err := decodeOptionalJSON(r, maxMutationBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	sale, err := h.terminals.Complete(ctx, terminalID(r), req.Notes)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newSaleView(sale, h.format))
}
