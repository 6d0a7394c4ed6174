package textutil

import (
	"net/url"
	"strings"
)

// NormalizeValues trims keys and values of submitted form fields, dropping entries whose key
// is empty. Values keep their submission order.
func NormalizeValues(values url.Values) map[string][]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string][]string, len(values))
	for key, entries := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		for _, entry := range entries {
			result[trimmedKey] = append(result[trimmedKey], strings.TrimSpace(entry))
		}
		if _, ok := result[trimmedKey]; !ok {
			result[trimmedKey] = []string{}
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
