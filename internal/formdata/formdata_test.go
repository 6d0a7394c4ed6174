package formdata

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNestsArraysAndObjects(t *testing.T) {
	values := url.Values{
		"items[0].kind":     {"product"},
		"items[0].name":     {" Mask "},
		"items[1].kind":     {"rental"},
		"items[1].size":     {"M"},
		"customer.name":     {"Ana"},
		"customer.phone":    {"555"},
		"notes":             {"hello"},
		"tags":              {"reef", "night"},
		"grid[0][1]":        {"b"},
		"grid[0][0]":        {"a"},
		" total ":           {" 10.00 "},
	}

	got, err := Parse(values)
	require.NoError(t, err)

	want := map[string]any{
		"items": []any{
			map[string]any{"kind": "product", "name": "Mask"},
			map[string]any{"kind": "rental", "size": "M"},
		},
		"customer": map[string]any{"name": "Ana", "phone": "555"},
		"notes":    "hello",
		"tags":     []any{"reef", "night"},
		"grid":     []any{[]any{"a", "b"}},
		"total":    "10.00",
	}
	assert.Equal(t, want, got)
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		err    error
	}{
		{name: "gap in indices", values: url.Values{"items[0].name": {"a"}, "items[2].name": {"b"}}, err: ErrSparseIndex},
		{name: "value and object", values: url.Values{"a": {"1"}, "a.b": {"2"}}, err: ErrConflict},
		{name: "object and array", values: url.Values{"a.b": {"1"}, "a[0]": {"2"}}, err: ErrConflict},
		{name: "empty index", values: url.Values{"a[]": {"1"}}, err: ErrMalformedKey},
		{name: "double dot", values: url.Values{"a..b": {"1"}}, err: ErrMalformedKey},
		{name: "leading index", values: url.Values{"[0]": {"1"}}, err: ErrMalformedKey},
		{name: "trailing dot", values: url.Values{"a.": {"1"}}, err: ErrMalformedKey},
		{name: "name after index", values: url.Values{"a[0]b": {"1"}}, err: ErrMalformedKey},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.values)
			require.ErrorIs(t, err, tc.err)
			var keyErr *KeyError
			require.ErrorAs(t, err, &keyErr)
			assert.NotEmpty(t, keyErr.Key)
		})
	}
}

func TestJSONEncodesRecord(t *testing.T) {
	encoded, err := JSON(url.Values{
		"payments[0].method": {"cash"},
		"payments[0].amount": {"12.50"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"payments":[{"method":"cash","amount":"12.50"}]}`, string(encoded))
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
