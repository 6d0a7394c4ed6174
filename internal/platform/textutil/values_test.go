package textutil

import (
	"net/url"
	"reflect"
	"testing"
)

func TestNormalizeValues(t *testing.T) {
	t.Run("trims keys and values", func(t *testing.T) {
		input := url.Values{
			" notes ":           {" regular "},
			"items[0].quantity": {" 2"},
			"tags":              {"a ", " b"},
			" ":                 {"ignored"},
			"":                  {"ignore"},
		}

		expected := map[string][]string{
			"notes":             {"regular"},
			"items[0].quantity": {"2"},
			"tags":              {"a", "b"},
		}

		actual := NormalizeValues(input)
		if !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeValues(nil) != nil {
			t.Fatalf("expected nil for nil input")
		}
		if NormalizeValues(url.Values{" ": {"x"}}) != nil {
			t.Fatalf("expected nil when every key is blank")
		}
	})
}
