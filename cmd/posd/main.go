package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/divestreams/pos/internal/di"
	"github.com/divestreams/pos/internal/handlers"
	"github.com/divestreams/pos/internal/platform/config"
	"github.com/divestreams/pos/internal/platform/idempotency"
	"github.com/divestreams/pos/internal/platform/observability"
	"github.com/divestreams/pos/internal/platform/pagination"
	"github.com/divestreams/pos/internal/platform/secrets"
	"github.com/divestreams/pos/internal/repositories"
	"github.com/divestreams/pos/internal/services"
)

const secretHealthReference = "secret://system-healthz"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("posd")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(startedAt)

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
	}
	if strings.TrimSpace(cfg.Secrets.ProjectID) != "" {
		containerOpts = append(containerOpts, di.WithHealthChecks(secretManagerCheck(fetcher)))
	}
	container, err := di.NewContainer(ctx, cfg, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup
	runEvery(backgroundCtx, &backgroundWG, cfg.Terminal.SweepInterval, func(ctx context.Context) {
		if dropped := container.Services.Terminals.SweepIdle(time.Now()); dropped > 0 {
			logger.Named("terminal").Info("idle sessions discarded", zap.Int("count", dropped))
		}
	})
	runEvery(backgroundCtx, &backgroundWG, cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
		cleanupLogger := logger.Named("idempotency")
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		removed, err := container.Idempotency.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
		if err != nil {
			cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
			return
		}
		if removed > 0 {
			cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
		}
	})

	router := newRouter(logger, cfg, container, buildInfo)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("pos server listening",
			zap.String("storage", cfg.Storage.Backend),
			zap.String("currency", cfg.Store.Currency),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(logger *zap.Logger, cfg config.Config, container *di.Container, build services.BuildInfo) http.Handler {
	svc := container.Services
	projectID := traceProjectID(cfg)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}
	idempotencyMiddleware := idempotency.Middleware(
		container.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(build),
		handlers.WithHealthSystemService(svc.System),
	)
	terminalHandlers := handlers.NewTerminalHandlers(svc.Terminals, container.Formatter)
	checkoutHandlers := handlers.NewCheckoutHandlers(svc.Checkout, container.Formatter)
	saleHandlers := handlers.NewSaleHandlers(svc.Sales, svc.Checkout,
		handlers.WithSalePaging(pagination.Options{
			DefaultPageSize: cfg.Listing.DefaultPageSize,
			MaxPageSize:     cfg.Listing.MaxPageSize,
		}),
		handlers.WithSaleFormatter(container.Formatter),
	)
	inventoryHandlers := handlers.NewInventoryHandlers(svc.Inventory)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithMutationMiddlewares(idempotencyMiddleware),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithTerminalRoutes(terminalHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithSaleRoutes(saleHandlers.Routes),
		handlers.WithInventoryRoutes(inventoryHandlers.Routes),
	)
}

// runEvery calls fn on every tick until ctx is cancelled. A non-positive interval disables it.
func runEvery(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildInfoFromEnv(started time.Time) services.BuildInfo {
	lookup := func(key, fallback string) string {
		value, err := config.Lookup(key)
		if err != nil || strings.TrimSpace(value) == "" {
			return fallback
		}
		return strings.TrimSpace(value)
	}
	return services.BuildInfo{
		Version:     lookup("POS_BUILD_VERSION", "dev"),
		CommitSHA:   lookup("POS_BUILD_COMMIT_SHA", "unknown"),
		Environment: lookup("POS_ENVIRONMENT", "local"),
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.PubSub.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, err := config.Lookup(key)
		if err != nil {
			logger.Warn("secrets: bootstrap lookup failed", zap.String("key", key), zap.Error(err))
			return ""
		}
		return strings.TrimSpace(value)
	}

	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := lookup("POS_SECRETS_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("POS_SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := lookup("POS_GOOGLE_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// secretManagerCheck treats a missing probe secret as healthy: reaching Secret Manager is
// what matters.
func secretManagerCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, secretHealthReference)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			if errors.Is(err, secrets.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}
