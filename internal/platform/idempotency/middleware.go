package idempotency

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/divestreams/pos/internal/platform/httpx"
	"github.com/divestreams/pos/internal/platform/requestctx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	terminalHeader    = "X-Terminal-ID"
	anonymousScope    = "anonymous"
)

type middlewareConfig struct {
	headerName string
	ttl        time.Duration
	methods    map[string]struct{}
	clock      func() time.Time
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.headerName = name
		}
	}
}

// WithTTL sets how long completed responses can be replayed.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMethods restricts the guarded HTTP methods.
func WithMethods(methods ...string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			cfg.methods = set
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware makes mutating requests replay-safe. A request carrying a key that already
// completed gets the stored response back with X-Idempotent-Replay set; the same key
// reused for a different body is rejected. Keys are scoped to the calling terminal.
// Responses with a 5xx status are not stored, so the client may retry with the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	cfg := middlewareConfig{
		headerName: defaultHeaderName,
		ttl:        DefaultTTL,
		methods: map[string]struct{}{
			http.MethodPost:   {},
			http.MethodPut:    {},
			http.MethodPatch:  {},
			http.MethodDelete: {},
		},
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.methods[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			logger := requestctx.Logger(ctx)

			key := strings.TrimSpace(r.Header.Get(cfg.headerName))
			if key == "" {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "missing "+cfg.headerName+" header", http.StatusBadRequest))
				return
			}

			body, err := readAndReplayBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}

			scope := requesterScope(r)
			scoped := key + "|" + scope
			fingerprint := requestFingerprint(r, body, scope)

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
					return
				}
				logger.Error("idempotency reserve failed", zap.Error(err), zap.String("terminal_id", scope))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			recorder := newResponseRecorder()
			next.ServeHTTP(recorder, r)

			if recorder.Status() >= http.StatusInternalServerError {
				if err := store.Release(ctx, scoped); err != nil {
					logger.Warn("idempotency release failed", zap.Error(err), zap.String("terminal_id", scope))
				}
			} else {
				resp := Response{Status: recorder.Status(), Headers: recorder.header, Body: recorder.body.Bytes()}
				if err := store.SaveResponse(ctx, scoped, fingerprint, resp, cfg.clock(), cfg.ttl); err != nil {
					logger.Error("idempotency save failed", zap.Error(err), zap.String("terminal_id", scope))
					if releaseErr := store.Release(ctx, scoped); releaseErr != nil {
						logger.Warn("idempotency release failed", zap.Error(releaseErr), zap.String("terminal_id", scope))
					}
				}
			}

			if err := recorder.flush(w); err != nil {
				logger.Warn("idempotency flush failed", zap.Error(err))
			}
		})
	}
}

// requesterScope picks the terminal a key belongs to: the routed terminal, then the
// X-Terminal-ID header used by one-shot checkout.
func requesterScope(r *http.Request) string {
	if id := requestctx.Terminal(r.Context()); id != "" {
		return id
	}
	if id := strings.TrimSpace(chi.URLParam(r, "terminalID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(terminalHeader)); id != "" {
		return id
	}
	return anonymousScope
}

func readAndReplayBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte, scope string) string {
	var b strings.Builder
	for _, part := range []string{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Content-Type"), scope} {
		b.WriteString(part)
		b.WriteByte('|')
	}
	if len(body) > 0 {
		b.WriteString(sha256Hex(body))
	}
	return sha256Hex([]byte(b.String()))
}

func writeStoredResponse(w http.ResponseWriter, record Record) {
	for key, values := range record.ResponseHeaders {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(replayHeaderName, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// responseRecorder buffers the handler output until the key state is settled.
type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flush(w http.ResponseWriter) error {
	dst := w.Header()
	for key, values := range r.header {
		dst[key] = append([]string(nil), values...)
	}
	w.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := w.Write(r.body.Bytes())
	return err
}
