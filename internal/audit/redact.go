package audit

import "strings"

// DefaultRedactionMarker replaces sensitive values before hashing and
// storage, so secrets are never recoverable from the chain.
const DefaultRedactionMarker = "[REDACTED]"

var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"key",
	"authorization",
	"cookie",
	"session",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// redactMap returns a deep copy of m with every value under a sensitive key
// replaced by marker. Nested maps and slices are walked; non-sensitive
// branches are copied as-is.
func redactMap(m map[string]any, marker string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		if isSensitiveKey(key) {
			out[key] = marker
			continue
		}
		out[key] = redactValue(value, marker)
	}
	return out
}

func redactValue(v any, marker string) any {
	switch value := v.(type) {
	case map[string]any:
		return redactMap(value, marker)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = redactValue(item, marker)
		}
		return out
	default:
		return v
	}
}
