// Package formdata turns flat form submissions into nested records.
//
// Key notation:
//
//	parent.child     nests "child" inside the object "parent"
//	field[n]         addresses element n (0-based) of the array "field"
//	items[0].name    both combined; arrays of arrays use field[0][1]
//
// Array indices must be dense: items[0] and items[2] without items[1] is rejected.
// A key submitted several times becomes an array of its values. A key used both as a
// value and as a container (a=1 with a.b=2) is rejected.
package formdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/divestreams/pos/internal/platform/textutil"
)

var (
	ErrMalformedKey = errors.New("formdata: malformed key")
	ErrConflict     = errors.New("formdata: conflicting keys")
	ErrSparseIndex  = errors.New("formdata: array index gap")
)

const maxIndex = 10000

// KeyError reports the key that could not be placed.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Key)
}

func (e *KeyError) Unwrap() error { return e.Err }

type segment struct {
	name    string
	index   int
	isIndex bool
}

// indexed collects array elements by position until they are checked for density.
type indexed map[int]any

// Parse flattens values into a record of map[string]any, []any and string leaves.
func Parse(values url.Values) (map[string]any, error) {
	normalized := textutil.NormalizeValues(values)
	keys := make([]string, 0, len(normalized))
	for key := range normalized {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, key := range keys {
		segs, err := parseKey(key)
		if err != nil {
			return nil, &KeyError{Key: key, Err: err}
		}
		if err := assign(root, segs, leafValue(normalized[key])); err != nil {
			return nil, &KeyError{Key: key, Err: err}
		}
	}

	out, err := finalize(root, "")
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

// JSON parses values and encodes the record, so form posts can share a JSON decoder.
func JSON(values url.Values) ([]byte, error) {
	record, err := Parse(values)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record)
}

func leafValue(entries []string) any {
	switch len(entries) {
	case 0:
		return ""
	case 1:
		return entries[0]
	default:
		out := make([]any, len(entries))
		for i, entry := range entries {
			out[i] = entry
		}
		return out
	}
}

func parseKey(key string) ([]segment, error) {
	var segs []segment
	i := 0
	expectName := true
	for i < len(key) {
		switch {
		case key[i] == '[':
			end := strings.IndexByte(key[i:], ']')
			if end < 0 {
				return nil, ErrMalformedKey
			}
			digits := key[i+1 : i+end]
			n, err := strconv.Atoi(digits)
			if err != nil || n < 0 || n > maxIndex || len(segs) == 0 {
				return nil, ErrMalformedKey
			}
			segs = append(segs, segment{index: n, isIndex: true})
			i += end + 1
			expectName = false
		case key[i] == '.':
			if expectName {
				return nil, ErrMalformedKey
			}
			i++
			expectName = true
			if i == len(key) {
				return nil, ErrMalformedKey
			}
		default:
			if !expectName {
				return nil, ErrMalformedKey
			}
			end := strings.IndexAny(key[i:], ".[")
			if end < 0 {
				end = len(key) - i
			}
			segs = append(segs, segment{name: key[i : i+end]})
			i += end
			expectName = false
		}
	}
	if len(segs) == 0 || segs[0].isIndex {
		return nil, ErrMalformedKey
	}
	return segs, nil
}

func assign(root map[string]any, segs []segment, leaf any) error {
	var container any = root
	for i, seg := range segs {
		existing, present := lookup(container, seg)
		if i == len(segs)-1 {
			if present {
				return ErrConflict
			}
			store(container, seg, leaf)
			return nil
		}

		next := segs[i+1]
		if !present {
			var created any = make(map[string]any)
			if next.isIndex {
				created = make(indexed)
			}
			store(container, seg, created)
			container = created
			continue
		}
		switch existing.(type) {
		case indexed:
			if !next.isIndex {
				return ErrConflict
			}
		case map[string]any:
			if next.isIndex {
				return ErrConflict
			}
		default:
			return ErrConflict
		}
		container = existing
	}
	return nil
}

func lookup(container any, seg segment) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[seg.name]
		return v, ok
	case indexed:
		v, ok := c[seg.index]
		return v, ok
	}
	return nil, false
}

func store(container any, seg segment, value any) {
	switch c := container.(type) {
	case map[string]any:
		c[seg.name] = value
	case indexed:
		c[seg.index] = value
	}
}

func finalize(value any, path string) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			out, err := finalize(child, joinPath(path, key))
			if err != nil {
				return nil, err
			}
			v[key] = out
		}
		return v, nil
	case indexed:
		out := make([]any, len(v))
		for i := range out {
			child, ok := v[i]
			if !ok {
				return nil, &KeyError{Key: fmt.Sprintf("%s[%d]", path, i), Err: ErrSparseIndex}
			}
			converted, err := finalize(child, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	default:
		return value, nil
	}
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}
