// Package payments talks to the card processor. Cards are charged on the terminal's
// reader before checkout; this package only confirms those captures and refunds them
// when a sale is voided.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the processor-neutral state of a card payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

var (
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	ErrPaymentNotFound     = errors.New("payments: payment not found")
	ErrProviderUnavailable = errors.New("payments: provider unavailable")
)

// LookupRequest identifies a payment by the reference printed on the terminal receipt.
type LookupRequest struct {
	Reference string
}

// RefundRequest returns Amount (in cents) of a payment; nil refunds what is left.
type RefundRequest struct {
	Reference      string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentDetails is what the processor reports about a payment. Amounts are in cents.
type PaymentDetails struct {
	Provider       string
	Reference      string
	Status         Status
	Amount         int64
	AmountCaptured int64
	AmountRefunded int64
	Currency       string
	CardBrand      string
	CardLast4      string
	CapturedAt     *time.Time
}

// Captured reports whether amount cents were captured and not refunded.
func (d PaymentDetails) Captured(amount int64) bool {
	return d.Status == StatusSucceeded && d.AmountCaptured == amount && d.AmountRefunded == 0
}

// Provider is implemented by processor adapters.
type Provider interface {
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
}

// PaymentContext carries hints for choosing a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// Manager routes calls to a registered provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

type ManagerOption func(*Manager)

func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normalizeKey(provider)
	}
}

// WithCurrencyRoutes pins currencies to providers, e.g. {"AUD": "stripe"}.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		for currency, provider := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(currency))] = normalizeKey(provider)
		}
	}
}

func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{
		providers:      make(map[string]Provider, len(providers)),
		currencyRoutes: map[string]string{},
	}
	for name, provider := range providers {
		key := normalizeKey(name)
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", name)
		}
		m.providers[key] = provider
	}
	if _, ok := m.providers[providerStripe]; ok {
		m.defaultProvider = providerStripe
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Manager) resolve(pc PaymentContext) (string, Provider, error) {
	candidates := []string{normalizeKey(pc.PreferredProvider)}
	if route, ok := m.currencyRoutes[strings.ToUpper(strings.TrimSpace(pc.Currency))]; ok {
		candidates = append(candidates, route)
	}
	candidates = append(candidates, m.defaultProvider)
	for _, key := range candidates {
		if provider, ok := m.providers[key]; ok && key != "" {
			return key, provider, nil
		}
	}
	if len(m.providers) == 1 {
		for key, provider := range m.providers {
			return key, provider, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

func (m *Manager) LookupPayment(ctx context.Context, pc PaymentContext, req LookupRequest) (PaymentDetails, error) {
	key, provider, err := m.resolve(pc)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

func (m *Manager) Refund(ctx context.Context, pc PaymentContext, req RefundRequest) (PaymentDetails, error) {
	key, provider, err := m.resolve(pc)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.Refund(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
