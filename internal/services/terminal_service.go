package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/pos"
)

const (
	defaultSessionIdleTTL = 30 * time.Minute
	maxTerminalIDLength   = 64
)

var (
	// ErrTerminalInvalidInput indicates a malformed terminal id or argument.
	ErrTerminalInvalidInput = errors.New("terminal: invalid input")
	// ErrSessionNotFound indicates the terminal has no open session.
	ErrSessionNotFound = errors.New("terminal: no open session")
	// ErrPaymentInProgress is returned for cart changes after payment started.
	ErrPaymentInProgress = errors.New("terminal: payment in progress")
	// ErrPaymentNotStarted is returned for payment operations before BeginPayment.
	ErrPaymentNotStarted = errors.New("terminal: payment not started")
	// ErrPaymentIncomplete is returned by Complete while a balance remains.
	ErrPaymentIncomplete = errors.New("terminal: payment incomplete")
	// ErrItemKindDisabled is returned for rental or booking lines the shop has switched off.
	ErrItemKindDisabled = errors.New("terminal: line item kind disabled")
)

// TerminalServiceDeps wires the dependencies of the terminal service.
type TerminalServiceDeps struct {
	Checkout      CheckoutService
	TaxRate       decimal.Decimal
	IdleTTL       time.Duration
	AllowRentals  bool
	AllowBookings bool
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type terminalService struct {
	checkout      CheckoutService
	taxRate       decimal.Decimal
	idleTTL       time.Duration
	allowRentals  bool
	allowBookings bool
	now           func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)

	mu       sync.RWMutex
	sessions map[string]*terminalSession
}

// terminalSession is guarded by mu. lastActivity and closed are atomics so the idle sweep
// can inspect a session without waiting for an operation in flight.
type terminalSession struct {
	mu         sync.Mutex
	id         string
	terminalID string
	openedAt   time.Time
	cart       *pos.Cart
	reconciler *pos.Reconciler

	lastActivity atomic.Int64
	closed       atomic.Bool
}

func NewTerminalService(deps TerminalServiceDeps) (TerminalService, error) {
	if deps.Checkout == nil {
		return nil, errors.New("terminal service: checkout service is required")
	}
	if deps.TaxRate.IsNegative() {
		return nil, fmt.Errorf("terminal service: %w", pos.ErrInvalidTaxRate)
	}

	ttl := deps.IdleTTL
	if ttl <= 0 {
		ttl = defaultSessionIdleTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &terminalService{
		checkout:      deps.Checkout,
		taxRate:       deps.TaxRate,
		idleTTL:       ttl,
		allowRentals:  deps.AllowRentals,
		allowBookings: deps.AllowBookings,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		logger:   logger,
		sessions: make(map[string]*terminalSession),
	}, nil
}

// OpenSession returns the terminal's session, creating it when none is open.
func (s *terminalService) OpenSession(ctx context.Context, terminalID string) (TerminalSession, error) {
	terminalID, err := normaliseTerminalID(terminalID)
	if err != nil {
		return TerminalSession{}, err
	}

	s.mu.Lock()
	sess, ok := s.sessions[terminalID]
	if !ok {
		now := s.now()
		sess = &terminalSession{
			id:         s.newID(),
			terminalID: terminalID,
			openedAt:   now,
			cart:       pos.NewCart(),
		}
		sess.lastActivity.Store(now.UnixNano())
		s.sessions[terminalID] = sess
	}
	s.mu.Unlock()

	if !ok {
		s.logger(ctx, "terminal.session_opened", map[string]any{
			"terminalId": terminalID,
			"sessionId":  sess.id,
		})
	}
	return s.withSession(terminalID, func(*terminalSession) error { return nil })
}

func (s *terminalService) GetSession(_ context.Context, terminalID string) (TerminalSession, error) {
	return s.withSession(terminalID, func(*terminalSession) error { return nil })
}

func (s *terminalService) CloseSession(ctx context.Context, terminalID string) error {
	terminalID, err := normaliseTerminalID(terminalID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	sess, ok := s.sessions[terminalID]
	if ok {
		delete(s.sessions, terminalID)
		sess.closed.Store(true)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.logger(ctx, "terminal.session_closed", map[string]any{
		"terminalId": terminalID,
		"sessionId":  sess.id,
	})
	return nil
}

func (s *terminalService) AddItem(_ context.Context, terminalID string, item domain.LineItem) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler != nil {
			return ErrPaymentInProgress
		}
		if err := s.checkItemKind(item); err != nil {
			return err
		}
		return sess.cart.AddItem(item)
	})
}

func (s *terminalService) RemoveItem(_ context.Context, terminalID string, index int) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler != nil {
			return ErrPaymentInProgress
		}
		return sess.cart.RemoveItem(index)
	})
}

func (s *terminalService) UpdateQuantity(_ context.Context, terminalID string, index int, units int64) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler != nil {
			return ErrPaymentInProgress
		}
		return sess.cart.UpdateQuantity(index, units)
	})
}

func (s *terminalService) SetCustomer(_ context.Context, terminalID string, customerID *uuid.UUID) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler != nil {
			return ErrPaymentInProgress
		}
		if customerID != nil && *customerID == uuid.Nil {
			return fmt.Errorf("%w: customer id must not be the nil uuid", ErrTerminalInvalidInput)
		}
		sess.cart.SetCustomer(customerID)
		return nil
	})
}

// NewSale discards the cart and any payment in progress.
func (s *terminalService) NewSale(_ context.Context, terminalID string) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		sess.cart.Clear()
		sess.reconciler = nil
		return nil
	})
}

// BeginPayment applies the shop tax rate, fixes the total and freezes the cart.
func (s *terminalService) BeginPayment(_ context.Context, terminalID string, split bool) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler != nil {
			return ErrPaymentInProgress
		}
		if sess.cart.Len() == 0 {
			return pos.ErrEmptyCart
		}
		if err := sess.cart.ComputeTax(s.taxRate); err != nil {
			return err
		}
		mode := pos.ModeSingle
		if split {
			mode = pos.ModeSplit
		}
		reconciler, err := pos.NewReconciler(sess.cart.Total(), mode)
		if err != nil {
			return err
		}
		sess.reconciler = reconciler
		return nil
	})
}

// CancelPayment drops the recorded instruments and unfreezes the cart.
func (s *terminalService) CancelPayment(_ context.Context, terminalID string) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler == nil {
			return ErrPaymentNotStarted
		}
		sess.reconciler = nil
		return nil
	})
}

func (s *terminalService) AddPayment(_ context.Context, terminalID string, payment domain.PaymentInstrument) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler == nil {
			return ErrPaymentNotStarted
		}
		return sess.reconciler.AddPayment(payment)
	})
}

func (s *terminalService) RemovePayment(_ context.Context, terminalID string, index int) (TerminalSession, error) {
	return s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler == nil {
			return ErrPaymentNotStarted
		}
		return sess.reconciler.RemovePayment(index)
	})
}

func (s *terminalService) FillRemaining(_ context.Context, terminalID string) (domain.CashPayment, bool, error) {
	var (
		proposal domain.CashPayment
		ok       bool
	)
	_, err := s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler == nil {
			return ErrPaymentNotStarted
		}
		proposal, ok = sess.reconciler.FillRemaining()
		return nil
	})
	if err != nil {
		return domain.CashPayment{}, false, err
	}
	return proposal, ok, nil
}

// Complete hands the settled sale to checkout and starts a fresh sale on success. On failure
// the session is left as it was so the cashier can correct and retry.
func (s *terminalService) Complete(ctx context.Context, terminalID string, notes string) (domain.Sale, error) {
	var sale domain.Sale
	_, err := s.withSession(terminalID, func(sess *terminalSession) error {
		if sess.reconciler == nil {
			return ErrPaymentNotStarted
		}
		if !sess.reconciler.IsComplete() {
			return &pos.ReconciliationError{Remaining: sess.reconciler.Remaining(), Err: ErrPaymentIncomplete}
		}

		snap := sess.cart.Snapshot()
		completed, err := s.checkout.Checkout(ctx, CheckoutCommand{
			TerminalID: sess.terminalID,
			SessionID:  sess.id,
			Request: domain.CheckoutRequest{
				Items:      snap.Items,
				CustomerID: snap.CustomerID,
				Payments:   sess.reconciler.Payments(),
				Subtotal:   snap.Subtotal,
				Tax:        snap.Tax,
				Total:      snap.Total,
				Notes:      notes,
			},
		})
		if err != nil {
			return err
		}
		sale = completed
		sess.cart.Clear()
		sess.reconciler = nil
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}
	s.logger(ctx, "terminal.sale_completed", map[string]any{
		"terminalId": sale.TerminalID,
		"sessionId":  sale.SessionID,
		"saleId":     sale.ID,
	})
	return sale, nil
}

func (s *terminalService) SweepIdle(now time.Time) int {
	cutoff := now.Add(-s.idleTTL).UnixNano()
	var swept []string

	s.mu.Lock()
	for terminalID, sess := range s.sessions {
		if sess.lastActivity.Load() > cutoff {
			continue
		}
		delete(s.sessions, terminalID)
		sess.closed.Store(true)
		swept = append(swept, terminalID)
	}
	s.mu.Unlock()

	if len(swept) > 0 {
		s.logger(context.Background(), "terminal.sessions_swept", map[string]any{
			"count":     len(swept),
			"terminals": swept,
		})
	}
	return len(swept)
}

// withSession runs fn with the session locked and returns the resulting snapshot. fn must
// leave the session unchanged when it returns an error.
func (s *terminalService) withSession(terminalID string, fn func(*terminalSession) error) (TerminalSession, error) {
	terminalID, err := normaliseTerminalID(terminalID)
	if err != nil {
		return TerminalSession{}, err
	}
	s.mu.RLock()
	sess, ok := s.sessions[terminalID]
	s.mu.RUnlock()
	if !ok {
		return TerminalSession{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed.Load() {
		return TerminalSession{}, ErrSessionNotFound
	}
	sess.lastActivity.Store(s.now().UnixNano())
	if err := fn(sess); err != nil {
		return TerminalSession{}, err
	}
	sess.lastActivity.Store(s.now().UnixNano())
	return sess.snapshot(), nil
}

func (s *terminalService) checkItemKind(item domain.LineItem) error {
	switch item.(type) {
	case domain.RentalItem:
		if !s.allowRentals {
			return fmt.Errorf("%w: rental", ErrItemKindDisabled)
		}
	case domain.BookingItem:
		if !s.allowBookings {
			return fmt.Errorf("%w: booking", ErrItemKindDisabled)
		}
	}
	return nil
}

func (sess *terminalSession) snapshot() TerminalSession {
	out := TerminalSession{
		ID:           sess.id,
		TerminalID:   sess.terminalID,
		Cart:         sess.cart.Snapshot(),
		OpenedAt:     sess.openedAt,
		LastActivity: time.Unix(0, sess.lastActivity.Load()).UTC(),
	}
	if r := sess.reconciler; r != nil {
		out.Payment = &PaymentSnapshot{
			Mode:      r.Mode(),
			Total:     r.Total(),
			Paid:      r.Paid(),
			Remaining: r.Remaining(),
			Payments:  r.Payments(),
			Complete:  r.IsComplete(),
		}
	}
	return out
}

func normaliseTerminalID(terminalID string) (string, error) {
	id := strings.TrimSpace(terminalID)
	if id == "" {
		return "", fmt.Errorf("%w: terminal id is required", ErrTerminalInvalidInput)
	}
	if len(id) > maxTerminalIDLength {
		return "", fmt.Errorf("%w: terminal id longer than %d characters", ErrTerminalInvalidInput, maxTerminalIDLength)
	}
	return id, nil
}
