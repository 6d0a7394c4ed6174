// Package di assembles the runtime object graph of the POS service.
package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/divestreams/pos/internal/domain"
	"github.com/divestreams/pos/internal/payments"
	"github.com/divestreams/pos/internal/platform/config"
	pfirestore "github.com/divestreams/pos/internal/platform/firestore"
	"github.com/divestreams/pos/internal/platform/idempotency"
	"github.com/divestreams/pos/internal/platform/jobs"
	"github.com/divestreams/pos/internal/platform/observability"
	"github.com/divestreams/pos/internal/repositories"
	firestorerepo "github.com/divestreams/pos/internal/repositories/firestore"
	"github.com/divestreams/pos/internal/repositories/memory"
	"github.com/divestreams/pos/internal/services"
)

// IdempotencyStore is the replay store plus the expiry sweep run by the server.
type IdempotencyStore interface {
	idempotency.Store
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Terminals services.TerminalService
	Checkout  services.CheckoutService
	Inventory services.InventoryService
	Sales     services.SaleQueryService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  IdempotencyStore
	Formatter    domain.MoneyFormatter

	closers []func(context.Context) error
}

type containerOptions struct {
	logger    *zap.Logger
	clock     func() time.Time
	build     services.BuildInfo
	registry  repositories.Registry
	payments  services.PaymentGateway
	publisher services.SaleEventPublisher
	checks    []repositories.DependencyCheck
}

// Option customises NewContainer.
type Option func(*containerOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithBuildInfo sets the metadata reported by readiness probes.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *containerOptions) {
		o.build = info
	}
}

// WithRegistry bypasses the configured storage backend.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithPaymentGateway replaces the Stripe-backed payment manager.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *containerOptions) {
		o.payments = gateway
	}
}

// WithSalePublisher replaces the Pub/Sub sale publisher.
func WithSalePublisher(publisher services.SaleEventPublisher) Option {
	return func(o *containerOptions) {
		o.publisher = publisher
	}
}

// WithHealthChecks adds readiness probes, e.g. for the secret fetcher owned by main.
func WithHealthChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *containerOptions) {
		o.checks = append(o.checks, checks...)
	}
}

// NewContainer constructs the runtime dependencies from cfg. Resources opened here are
// released by Close, also when construction fails half way.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{Config: cfg}
	if err := c.build(ctx, options); err != nil {
		if closeErr := c.Close(context.Background()); closeErr != nil {
			options.logger.Warn("container cleanup failed", zap.Error(closeErr))
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, options containerOptions) error {
	cfg := c.Config
	logger := options.logger
	checks := append([]repositories.DependencyCheck(nil), options.checks...)

	formatter, err := domain.NewMoneyFormatter(cfg.Store.Locale, cfg.Store.Currency)
	if err != nil {
		return err
	}
	c.Formatter = formatter

	if err := c.buildStorage(ctx, options, &checks); err != nil {
		return err
	}

	gateway := options.payments
	if gateway == nil && strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.PSP.StripeAPIKey,
			Logger: payments.StripeLogger(observability.NewEventLogger(logger.Named("payments"))),
		})
		if err != nil {
			return fmt.Errorf("stripe provider: %w", err)
		}
		manager, err := payments.NewManager(map[string]payments.Provider{"stripe": stripeProvider})
		if err != nil {
			return fmt.Errorf("payment manager: %w", err)
		}
		gateway = manager
	}
	if gateway == nil {
		logger.Warn("no card processor configured; card checkouts will be rejected")
	}

	publisher := options.publisher
	if publisher == nil && strings.TrimSpace(cfg.PubSub.SalesTopic) != "" {
		pub, check, err := c.buildPublisher(ctx, cfg.PubSub)
		if err != nil {
			return err
		}
		publisher = pub
		checks = append(checks, check)
	}

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Stock:  c.Repositories.Stock(),
		Clock:  options.clock,
		Logger: observability.NewEventLogger(logger.Named("inventory")),
	})
	if err != nil {
		return err
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Sales:     c.Repositories.Sales(),
		Inventory: inventory,
		Payments:  gateway,
		Publisher: publisher,
		Currency:  cfg.Store.Currency,
		Clock:     options.clock,
		Logger:    observability.NewEventLogger(logger.Named("checkout")),
	})
	if err != nil {
		return err
	}

	terminals, err := services.NewTerminalService(services.TerminalServiceDeps{
		Checkout:      checkout,
		TaxRate:       cfg.Store.TaxRate,
		IdleTTL:       cfg.Terminal.SessionIdleTTL,
		AllowRentals:  cfg.Features.EnableRentals,
		AllowBookings: cfg.Features.EnableBookings,
		Clock:         options.clock,
		Logger:        observability.NewEventLogger(logger.Named("terminal")),
	})
	if err != nil {
		return err
	}

	sales, err := services.NewSaleQueryService(services.SaleQueryServiceDeps{
		Sales:           c.Repositories.Sales(),
		DefaultPageSize: cfg.Listing.DefaultPageSize,
		MaxPageSize:     cfg.Listing.MaxPageSize,
		Logger:          observability.NewEventLogger(logger.Named("sales")),
	})
	if err != nil {
		return err
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks, repositories.WithDependencyClock(options.clock))
	if err != nil {
		return err
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            options.clock,
		Build:            options.build,
	})
	if err != nil {
		return err
	}

	c.Services = Services{
		Terminals: terminals,
		Checkout:  checkout,
		Inventory: inventory,
		Sales:     sales,
		System:    system,
	}
	return nil
}

func (c *Container) buildStorage(ctx context.Context, options containerOptions, checks *[]repositories.DependencyCheck) error {
	if options.registry != nil {
		c.Repositories = options.registry
		c.Idempotency = idempotency.NewMemoryStore()
		return nil
	}

	switch c.Config.Storage.Backend {
	case config.StorageMemory, "":
		c.Repositories = memory.NewRegistry()
		c.Idempotency = idempotency.NewMemoryStore()
		return nil
	case config.StorageFirestore:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Config.Storage.Backend)
	}

	provider := pfirestore.NewProvider(c.Config.Firestore)
	registry, err := firestorerepo.NewRegistry(provider)
	if err != nil {
		_ = provider.Close()
		return fmt.Errorf("firestore repositories: %w", err)
	}
	c.Repositories = registry

	client, err := provider.Client(ctx)
	if err != nil {
		return fmt.Errorf("firestore client: %w", err)
	}
	c.Idempotency = idempotency.NewFirestoreStore(client)

	*checks = append(*checks, repositories.DependencyCheck{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check: func(ctx context.Context) error {
			_, err := client.Collections(ctx).Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			return err
		},
	})
	return nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.PubSubConfig) (services.SaleEventPublisher, repositories.DependencyCheck, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, repositories.DependencyCheck{}, fmt.Errorf("pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	topic := client.Topic(cfg.SalesTopic)
	publisher, err := jobs.NewPubSubSalePublisher(topic)
	if err != nil {
		return nil, repositories.DependencyCheck{}, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})

	check := repositories.DependencyCheck{
		Name:    "pubsub",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			ok, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s not found", cfg.SalesTopic)
			}
			return nil
		},
	}
	return publisher, check, nil
}

// Close releases clients in reverse order of creation, then the repositories.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
