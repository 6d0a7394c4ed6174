// Package secrets resolves secret:// references (for example the Stripe API key) against
// Google Secret Manager, with an in-process cache and a local fallback file for development.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/divestreams/pos/internal/platform/secrets"
)

var ErrNotFound = errors.New("secrets: value not found")

type secretClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client     secretClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.RWMutex
	cache map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	meter        metric.Meter
	client       secretClient
	clientOpts   []option.ClientOption
}

type Option func(*fetcherConfig)

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

func withClient(client secretClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// NewFetcher never fails on a missing Secret Manager client; it degrades to the fallback file.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}

	f := &Fetcher{
		client:       cfg.client,
		projectID:    cfg.projectID,
		logger:       cfg.logger,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}

	var err error
	if f.latency, err = cfg.meter.Float64Histogram("pos.secrets.fetch.latency",
		metric.WithUnit("ms"), metric.WithDescription("Secret resolution latency")); err != nil {
		f.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	if f.cacheHits, err = cfg.meter.Int64Counter("pos.secrets.fetch.cache_hits",
		metric.WithDescription("Secret resolutions served from cache")); err != nil {
		f.logger.Warn("secrets: cache hit metric unavailable", zap.Error(err))
	}

	if f.client == nil && f.projectID != "" {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind ref. References look like secret://name,
// secret://name?version=3 or secret://name?project=other.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.canonical + "#" + parsed.version

	f.mu.RLock()
	value, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1)
		}
		f.record(ctx, start, "cache")
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = f.projectID
	}
	if f.client != nil && project != "" {
		value, err := f.fetchRemote(ctx, project, parsed)
		if err == nil {
			f.store(key, value)
			f.record(ctx, start, "remote")
			return value, nil
		}
		if !fallbackEligible(err) {
			f.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.canonical, err)
		}
		f.logger.Debug("secrets: remote fetch failed, trying fallback", zap.String("secret", parsed.name), zap.Error(err))
	}

	value, ok = f.lookupFallback(parsed)
	if !ok {
		f.record(ctx, start, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.canonical)
	}
	f.store(key, value)
	f.record(ctx, start, "fallback")
	return value, nil
}

// Invalidate drops cached versions of ref, for example after a key rotation.
func (f *Fetcher) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, parsed.canonical+"#") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) fetchRemote(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string) {
	if f.latency == nil {
		return
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

// lookupFallback reads "secret://name=value" lines; sm:// is accepted as an alias.
func (f *Fetcher) lookupFallback(ref reference) (string, bool) {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}
		if f.fallbackPath == "" {
			return
		}
		file, err := os.Open(f.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.logger.Warn("secrets: fallback file unreadable", zap.String("path", f.fallbackPath), zap.Error(err))
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			name, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			parsed, err := parseReference(strings.TrimSpace(name))
			if err != nil {
				continue
			}
			f.fallback[parsed.canonical+"#"+parsed.version] = strings.TrimSpace(value)
			f.fallback[parsed.canonical] = strings.TrimSpace(value)
		}
	})

	if value, ok := f.fallback[ref.canonical+"#"+ref.version]; ok {
		return value, true
	}
	value, ok := f.fallback[ref.canonical]
	return value, ok
}

type reference struct {
	canonical string
	name      string
	version   string
	project   string
}

func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: invalid reference %q", ref)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: "secret://" + name,
		name:      name,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
