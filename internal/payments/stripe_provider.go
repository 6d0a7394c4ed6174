package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const providerStripe = "stripe"

// StripeLogger receives provider events.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures StripeProvider. AccountID targets a connected account.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clients   *stripeClients
}

// StripeProvider resolves terminal payment references as Stripe PaymentIntent IDs.
type StripeProvider struct {
	api     stripeClients
	account string
	logger  StripeLogger
}

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	var clients stripeClients
	switch {
	case cfg.Clients != nil:
		clients = *cfg.Clients
	case strings.TrimSpace(cfg.APIKey) != "":
		sc := client.New(strings.TrimSpace(cfg.APIKey), cfg.Backends)
		clients = stripeClients{intents: sc.PaymentIntents, refunds: sc.Refunds}
	default:
		return nil, errors.New("stripe: api key is required")
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{api: clients, account: strings.TrimSpace(cfg.AccountID), logger: logger}, nil
}

func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(strings.TrimSpace(req.Reference), params)
	if err != nil {
		return PaymentDetails{}, classifyStripeError("lookup payment intent", err)
	}
	return stripePaymentDetails(intent), nil
}

func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(strings.TrimSpace(req.Reference))}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := stripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return PaymentDetails{}, classifyStripeError("refund payment intent", err)
	}
	p.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": req.Reference,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
	})
	return p.LookupPayment(ctx, LookupRequest{Reference: req.Reference})
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	details := PaymentDetails{
		Reference:      intent.ID,
		Status:         StatusPending,
		Amount:         intent.Amount,
		AmountCaptured: intent.AmountReceived,
		Currency:       strings.ToUpper(string(intent.Currency)),
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		details.Status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		details.Status = StatusFailed
	}

	if charge := intent.LatestCharge; charge != nil {
		if charge.Captured {
			details.AmountCaptured = charge.AmountCaptured
			capturedAt := time.Unix(charge.Created, 0).UTC()
			details.CapturedAt = &capturedAt
		}
		details.AmountRefunded = charge.AmountRefunded
		if charge.Refunded || (charge.AmountRefunded > 0 && charge.AmountRefunded >= charge.AmountCaptured) {
			details.Status = StatusRefunded
		}
		if pm := charge.PaymentMethodDetails; pm != nil && pm.Card != nil {
			details.CardBrand = string(pm.Card.Brand)
			details.CardLast4 = pm.Card.Last4
		}
	}
	return details
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("stripe: %s: %w: %v", op, ErrPaymentNotFound, err)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("stripe: %s: %w: %v", op, ErrProviderUnavailable, err)
		}
		return fmt.Errorf("stripe: %s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("stripe: %s: %w: %v", op, ErrProviderUnavailable, err)
}

func stripeRefundReason(reason string) string {
	switch r := stripe.RefundReason(strings.ToLower(strings.TrimSpace(reason))); r {
	case stripe.RefundReasonDuplicate, stripe.RefundReasonFraudulent, stripe.RefundReasonRequestedByCustomer:
		return string(r)
	}
	return ""
}
