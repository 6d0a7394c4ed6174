package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultCurrency             = "USD"
	defaultLocale               = "en-US"
	defaultSessionIdleTTL       = 30 * time.Minute
	defaultSessionSweepInterval = time.Minute
	defaultStorageBackend       = StorageMemory
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultListPageSize         = 20
	defaultListMaxPageSize      = 100
)

// Storage backends.
const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Terminal    TerminalConfig
	Storage     StorageConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	PSP         PSPConfig
	Secrets     SecretsConfig
	Features    FeatureFlags
	Idempotency IdempotencyConfig
	Listing     ListingConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig describes the shop: currency, receipt locale and sales tax.
type StoreConfig struct {
	Currency string
	Locale   string
	TaxRate  decimal.Decimal
}

// TerminalConfig controls terminal session lifetime.
type TerminalConfig struct {
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig configures sale event publication. Publishing is off when SalesTopic is empty.
type PubSubConfig struct {
	ProjectID  string
	SalesTopic string
}

// PSPConfig collects secrets for the card processor.
type PSPConfig struct {
	StripeAPIKey string
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// FeatureFlags enable the line item kinds a shop plan includes.
type FeatureFlags struct {
	EnableRentals  bool
	EnableBookings bool
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ListingConfig bounds page sizes of sale listings.
type ListingConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
// Names are redacted in the message.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the missing secret field names.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.names))
	copy(out, e.names)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "PSP.StripeAPIKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup returns the effective value of a single key using the same precedence as Load
// (dotenv < OS env < explicit map). Callers use it to bootstrap the secret fetcher before
// the full load.
func Lookup(key string, opts ...Option) (string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return value, nil
}

// Load assembles configuration from defaults, .env overrides, environment variables and
// secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookupFunc()
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	taxRate, err := decimalWithDefault(lookup, "POS_TAX_RATE", decimal.Zero)
	if err != nil {
		invalid = append(invalid, "Store.TaxRate")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "POS_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "POS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "POS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "POS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: StoreConfig{
			Currency: strings.ToUpper(stringWithDefault(lookup, "POS_CURRENCY", defaultCurrency)),
			Locale:   stringWithDefault(lookup, "POS_LOCALE", defaultLocale),
			TaxRate:  taxRate,
		},
		Terminal: TerminalConfig{
			SessionIdleTTL: durationWithDefault(lookup, "POS_SESSION_IDLE_TTL", defaultSessionIdleTTL),
			SweepInterval:  durationWithDefault(lookup, "POS_SESSION_SWEEP_INTERVAL", defaultSessionSweepInterval),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "POS_STORAGE_BACKEND", defaultStorageBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "POS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "POS_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "POS_PUBSUB_PROJECT_ID", ""),
			SalesTopic: stringWithDefault(lookup, "POS_PUBSUB_SALES_TOPIC", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, "POS_PSP_STRIPE_API_KEY", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "POS_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "POS_SECRETS_FALLBACK_FILE", ""),
		},
		Features: FeatureFlags{
			EnableRentals:  boolWithDefault(lookup, "POS_FEATURE_RENTALS", true),
			EnableBookings: boolWithDefault(lookup, "POS_FEATURE_BOOKINGS", true),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "POS_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "POS_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "POS_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "POS_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Listing: ListingConfig{
			DefaultPageSize: intWithDefault(lookup, "POS_LIST_DEFAULT_PAGE_SIZE", defaultListPageSize),
			MaxPageSize:     intWithDefault(lookup, "POS_LIST_MAX_PAGE_SIZE", defaultListMaxPageSize),
		},
	}

	// Pub/Sub and Secret Manager default to the Firestore project.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeAPIKey", &cfg.PSP.StripeAPIKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o loaderOptions) lookupFunc() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if len(cfg.Store.Currency) != 3 {
		missing = append(missing, "Store.Currency")
	}
	if cfg.Store.TaxRate.IsNegative() || cfg.Store.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		missing = append(missing, "Store.TaxRate")
	}
	if strings.TrimSpace(cfg.Store.Locale) == "" {
		missing = append(missing, "Store.Locale")
	}
	if cfg.Terminal.SessionIdleTTL <= 0 {
		missing = append(missing, "Terminal.SessionIdleTTL")
	}
	if cfg.Terminal.SweepInterval <= 0 {
		missing = append(missing, "Terminal.SweepInterval")
	}
	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}
	if cfg.Listing.DefaultPageSize <= 0 || cfg.Listing.MaxPageSize < cfg.Listing.DefaultPageSize {
		missing = append(missing, "Listing.PageSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func decimalWithDefault(lookup func(string) (string, bool), key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return fallback, fmt.Errorf("config: %s: %w", key, err)
	}
	return parsed, nil
}
