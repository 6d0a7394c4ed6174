package observability

import "unicode"

// sanitizeString drops control characters and bounds length to keep log lines intact.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

// SanitizeRoute cleans a route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeTerminalID bounds client-supplied terminal identifiers before logging them.
func SanitizeTerminalID(id string) string {
	return sanitizeString(id, 64)
}
