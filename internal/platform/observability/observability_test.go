package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/divestreams/pos/internal/platform/requestctx"
)

func TestEventLoggerBridgesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewEventLogger(zap.New(core))

	log(context.Background(), "checkout.completed", map[string]any{"saleID": "01H", "total": "109.98"})
	log(context.Background(), "checkout.publish_failed", map[string]any{"error": "boom"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].ContextMap()["saleID"] != "01H" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected failure events at warn, got %s", entries[1].Level)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)
	log := NewEventLogger(zap.New(baseCore))

	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "terminal.opened", nil)

	if baseLogs.Len() != 0 || reqLogs.Len() != 1 {
		t.Fatalf("expected request logger to receive event (base=%d req=%d)", baseLogs.Len(), reqLogs.Len())
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sales", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "internal_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerRecordsRouteAndTerminal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(RequestLoggerMiddleware())
	router.With(TerminalMiddleware).Get("/terminals/{terminalID}/session", func(w http.ResponseWriter, r *http.Request) {
		if requestctx.Terminal(r.Context()) != "desk-1" {
			t.Errorf("expected terminal on context")
		}
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/terminals/desk-1/session", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/terminals/{terminalID}/session" {
		t.Fatalf("unexpected route %v", fields["route"])
	}
	if fields["terminal_id"] != "desk-1" {
		t.Fatalf("unexpected terminal %v", fields["terminal_id"])
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected status %v", fields["status"])
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 4xx, got %s", entries[0].Level)
	}
}

func TestCloudTraceHeaderRoundTrip(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" || !sc.IsSampled() {
		t.Fatalf("unexpected span context %+v", sc)
	}
	formatted := formatCloudTraceHeader(requestctx.TraceInfo{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String(), Sampled: true})
	if formatted != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("unexpected formatted header %q", formatted)
	}

	if _, ok := parseCloudTraceContext("not-a-header"); ok {
		t.Fatalf("expected malformed header to be rejected")
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("reef-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/42;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected trace continued, got %+v", got)
	}
	if got.ProjectID != "reef-prod" {
		t.Fatalf("expected project id, got %q", got.ProjectID)
	}
}
