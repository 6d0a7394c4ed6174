package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 50
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Options bound the accepted page size. Zero values fall back to the package defaults.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Params are the paging values of one list request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

func FromRequest(r *http.Request, opts Options) (Params, error) {
	return Parse(r.URL.Query(), opts)
}

// Parse reads pageSize and pageToken. Oversized pages are clamped rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	size, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	token := strings.TrimSpace(values.Get("pageToken"))
	cursor, err := DecodeToken(token)
	if err != nil {
		return Params{}, err
	}
	return Params{PageSize: size, PageToken: token, Cursor: cursor}, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	def := opts.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	limit := opts.MaxPageSize
	if limit <= 0 {
		limit = DefaultMaxPageSize
	}
	if def > limit {
		def = limit
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if size > limit {
		size = limit
	}
	return size, nil
}
