package handlers

import (
	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/services"
)

type cartView struct {
	Items          []domain.LineItem `json:"items"`
	CustomerID     *string           `json:"customerId"`
	TaxRate        string            `json:"taxRate,omitempty"`
	Subtotal       domain.Money      `json:"subtotal"`
	Tax            domain.Money      `json:"tax"`
	Total          domain.Money      `json:"total"`
	FormattedTotal string            `json:"formattedTotal"`
}

type paymentView struct {
	Mode               string                     `json:"mode"`
	Total              domain.Money               `json:"total"`
	Paid               domain.Money               `json:"paid"`
	Remaining          domain.Money               `json:"remaining"`
	FormattedRemaining string                     `json:"formattedRemaining"`
	Payments           []domain.PaymentInstrument `json:"payments"`
	Complete           bool                       `json:"complete"`
}

type sessionView struct {
	SessionID    string       `json:"sessionId"`
	TerminalID   string       `json:"terminalId"`
	Cart         cartView     `json:"cart"`
	Payment      *paymentView `json:"payment,omitempty"`
	OpenedAt     string       `json:"openedAt"`
	LastActivity string       `json:"lastActivity"`
}

type saleView struct {
	ID             string                     `json:"id"`
	TerminalID     string                     `json:"terminalId"`
	SessionID      string                     `json:"sessionId,omitempty"`
	Status         string                     `json:"status"`
	CustomerID     *string                    `json:"customerId"`
	Items          []domain.LineItem          `json:"items"`
	Payments       []domain.PaymentInstrument `json:"payments"`
	Subtotal       domain.Money               `json:"subtotal"`
	Tax            domain.Money               `json:"tax"`
	Total          domain.Money               `json:"total"`
	ChangeDue      domain.Money               `json:"changeDue"`
	Currency       string                     `json:"currency"`
	FormattedTotal string                     `json:"formattedTotal"`
	Notes          string                     `json:"notes,omitempty"`
	VoidReason     string                     `json:"voidReason,omitempty"`
	CreatedAt      string                     `json:"createdAt"`
	VoidedAt       string                     `json:"voidedAt,omitempty"`
}

type salePageView struct {
	Sales         []saleView `json:"sales"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

type stockView struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	OnHand    int64  `json:"onHand"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type cashProposalView struct {
	Available bool                `json:"available"`
	Payment   *domain.CashPayment `json:"payment,omitempty"`
}

func newSessionView(session services.TerminalSession, format domain.MoneyFormatter) sessionView {
	cart := session.Cart
	view := sessionView{
		SessionID:  session.ID,
		TerminalID: session.TerminalID,
		Cart: cartView{
			Items:          nonNilItems(cart.Items),
			TaxRate:        cart.TaxRate,
			Subtotal:       cart.Subtotal,
			Tax:            cart.Tax,
			Total:          cart.Total,
			FormattedTotal: format.Format(cart.Total),
		},
		OpenedAt:     formatTime(session.OpenedAt),
		LastActivity: formatTime(session.LastActivity),
	}
	if cart.CustomerID != nil {
		id := cart.CustomerID.String()
		view.Cart.CustomerID = &id
	}
	if p := session.Payment; p != nil {
		view.Payment = &paymentView{
			Mode:               p.Mode.String(),
			Total:              p.Total,
			Paid:               p.Paid,
			Remaining:          p.Remaining,
			FormattedRemaining: format.Format(p.Remaining),
			Payments:           nonNilPayments(p.Payments),
			Complete:           p.Complete,
		}
	}
	return view
}

func newSaleView(sale domain.Sale, format domain.MoneyFormatter) saleView {
	view := saleView{
		ID:             sale.ID,
		TerminalID:     sale.TerminalID,
		SessionID:      sale.SessionID,
		Status:         string(sale.Status),
		Items:          nonNilItems(sale.Items),
		Payments:       nonNilPayments(sale.Payments),
		Subtotal:       sale.Subtotal,
		Tax:            sale.Tax,
		Total:          sale.Total,
		ChangeDue:      sale.ChangeDue,
		Currency:       sale.Currency,
		FormattedTotal: format.Format(sale.Total),
		Notes:          sale.Notes,
		VoidReason:     sale.VoidReason,
		CreatedAt:      formatTime(sale.CreatedAt),
	}
	if sale.CustomerID != nil {
		id := sale.CustomerID.String()
		view.CustomerID = &id
	}
	if sale.VoidedAt != nil {
		view.VoidedAt = formatTime(*sale.VoidedAt)
	}
	return view
}

func newStockView(level domain.StockLevel) stockView {
	return stockView{
		ProductID: level.ProductID.String(),
		Name:      level.Name,
		OnHand:    level.OnHand,
		UpdatedAt: formatTime(level.UpdatedAt),
	}
}

func nonNilItems(items []domain.LineItem) []domain.LineItem {
	if items == nil {
		return []domain.LineItem{}
	}
	return items
}

func nonNilPayments(payments []domain.PaymentInstrument) []domain.PaymentInstrument {
	if payments == nil {
		return []domain.PaymentInstrument{}
	}
	return payments
}
