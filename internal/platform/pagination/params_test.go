package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" || !params.Cursor.IsZero() {
		t.Fatalf("expected first page, got %#v", params)
	}
}

func TestParsePageSizeClamps(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{"pageSize": {"30"}}

	params, err := Parse(values, opts)
	if err != nil || params.PageSize != 30 {
		t.Fatalf("expected 30, got %d (%v)", params.PageSize, err)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil || params.PageSize != 40 {
		t.Fatalf("expected clamp to 40, got %d (%v)", params.PageSize, err)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		_, err := Parse(url.Values{"pageSize": {raw}}, Options{})
		if !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
	_, err := Parse(url.Values{"pageToken": {"%%%"}}, Options{})
	if !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestTokenRoundTripThroughRequest(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2024, 3, 9, 15, 30, 0, 0, time.UTC), ID: "01HS8Z6V0J6Y3W4K0QZ8T9X2AB"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/sales?pageSize=10&pageToken="+token, nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) || params.Cursor.ID != cursor.ID {
		t.Fatalf("unexpected cursor %#v", params.Cursor)
	}

	if empty, _ := EncodeToken(Cursor{}); empty != "" {
		t.Fatalf("expected empty token for zero cursor, got %q", empty)
	}
}
