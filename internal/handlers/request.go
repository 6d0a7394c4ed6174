package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/divestreams/pos/internal/platform/httpx"
)

const (
	maxMutationBodySize = 16 * 1024
	maxCheckoutBodySize = 64 * 1024
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxMutationBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeOptionalJSON unmarshals the body into dst, leaving dst untouched when the body is empty.
func decodeOptionalJSON(r *http.Request, limit int64, dst any) error {
	body, err := readLimitedBody(r, limit)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}

var errInvalidJSON = errors.New("request body must be valid JSON")

// writeBodyError reports a failure to read or parse the request body.
func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errBodyTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
}

// indexParam reads a non-negative integer URL parameter.
func indexParam(r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
