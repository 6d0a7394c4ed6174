package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/payments"
	"github.com/divestreams/pos/internal/pos"
)

// TerminalService drives the sale in progress on each terminal. Every terminal owns at most
// one session; operations on different terminals never contend.
type TerminalService interface {
	OpenSession(ctx context.Context, terminalID string) (TerminalSession, error)
	GetSession(ctx context.Context, terminalID string) (TerminalSession, error)
	CloseSession(ctx context.Context, terminalID string) error

	AddItem(ctx context.Context, terminalID string, item domain.LineItem) (TerminalSession, error)
	RemoveItem(ctx context.Context, terminalID string, index int) (TerminalSession, error)
	UpdateQuantity(ctx context.Context, terminalID string, index int, units int64) (TerminalSession, error)
	SetCustomer(ctx context.Context, terminalID string, customerID *uuid.UUID) (TerminalSession, error)
	NewSale(ctx context.Context, terminalID string) (TerminalSession, error)

	BeginPayment(ctx context.Context, terminalID string, split bool) (TerminalSession, error)
	CancelPayment(ctx context.Context, terminalID string) (TerminalSession, error)
	AddPayment(ctx context.Context, terminalID string, payment domain.PaymentInstrument) (TerminalSession, error)
	RemovePayment(ctx context.Context, terminalID string, index int) (TerminalSession, error)
	// FillRemaining proposes a cash instrument for the outstanding balance without applying it.
	FillRemaining(ctx context.Context, terminalID string) (domain.CashPayment, bool, error)
	Complete(ctx context.Context, terminalID string, notes string) (domain.Sale, error)

	// SweepIdle drops sessions untouched since now minus the idle TTL and reports how many.
	SweepIdle(now time.Time) int
}

// CheckoutService certifies and persists completed sales.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (domain.Sale, error)
	VoidSale(ctx context.Context, cmd VoidSaleCommand) (domain.Sale, error)
}

// InventoryService guards on-hand stock against going negative.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.StockLevel, error)
	DecrementForSale(ctx context.Context, lines []domain.ProductItem) error
	RestoreForSale(ctx context.Context, lines []domain.ProductItem) error
	GetStock(ctx context.Context, productID uuid.UUID) (domain.StockLevel, error)
}

// SaleQueryService reads persisted sales.
type SaleQueryService interface {
	GetSale(ctx context.Context, saleID string) (domain.Sale, error)
	ListSales(ctx context.Context, filter SaleListFilter) (domain.CursorPage[domain.Sale], error)
}

// SystemService reports readiness of the service and its dependencies.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.HealthReport, error)
}

// SaleEventPublisher announces completed sales to downstream consumers.
type SaleEventPublisher interface {
	PublishSaleCompleted(ctx context.Context, message SaleCompletedMessage) (string, error)
}

// PaymentGateway abstracts payments.Manager for the checkout service.
type PaymentGateway interface {
	LookupPayment(ctx context.Context, pc payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, pc payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// SaleCompletedMessage is the payload published after a sale is persisted.
type SaleCompletedMessage struct {
	SaleID      string       `json:"saleId"`
	TerminalID  string       `json:"terminalId"`
	CustomerID  string       `json:"customerId,omitempty"`
	Total       domain.Money `json:"total"`
	Currency    string       `json:"currency"`
	ItemCount   int          `json:"itemCount"`
	CompletedAt time.Time    `json:"completedAt"`
}

// TerminalSession is a read-only view of one terminal's sale in progress.
type TerminalSession struct {
	ID           string
	TerminalID   string
	Cart         pos.CartSnapshot
	Payment      *PaymentSnapshot
	OpenedAt     time.Time
	LastActivity time.Time
}

// PaymentSnapshot describes the reconciler of a session that entered payment.
type PaymentSnapshot struct {
	Mode      pos.PaymentMode
	Total     domain.Money
	Paid      domain.Money
	Remaining domain.Money
	Payments  []domain.PaymentInstrument
	Complete  bool
}

// CheckoutCommand carries a fully assembled request from a terminal.
type CheckoutCommand struct {
	TerminalID string
	SessionID  string
	Request    domain.CheckoutRequest
}

// VoidSaleCommand reverses a completed sale.
type VoidSaleCommand struct {
	SaleID string
	Reason string
}

// AdjustStockCommand changes the stock of one product.
type AdjustStockCommand struct {
	ProductID uuid.UUID
	Name      string
	Mode      domain.StockAdjustmentMode
	Value     int64
}

// SaleListFilter selects one page of sales.
type SaleListFilter struct {
	TerminalID string
	PageSize   int
	PageToken  string
}
