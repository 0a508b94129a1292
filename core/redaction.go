package core

import (
	"slices"
	"strings"
)

const RedactedValue = "[REDACTED]"

var (
	// wire parameters that carry credentials or digests
	redactedParams = map[string]struct{}{
		ParamToken:    {},
		ParamChecksum: {},
		ParamAppCheck: {},
		ParamCode:     {},
		ParamKIN:      {},
		ParamPIN:      {},
	}
	// log fields that look sensitive by name but are needed to trace a payment
	traceFields = map[string]struct{}{
		"payment_id":  {},
		"device_id":   {},
		"endpoint":    {},
		"flow":        {},
		"state":       {},
		"token_state": {},
		"request_id":  {},
		"trace_id":    {},
	}
	sensitiveFragments = []string{"password", "secret", "token", "checksum", "appcheck", "signature", "authorization"}
)

// RedactParams copies a wire parameter set for logging with credentials and
// digests masked.
func RedactParams(params map[string]string) map[string]any {
	out := make(map[string]any, len(params))
	for key, value := range params {
		if isSensitiveKey(key) {
			out[key] = RedactedValue
		} else {
			out[key] = value
		}
	}
	return out
}

// RedactSensitiveMap masks sensitive keys at any depth of nested maps and
// slices. The input is not modified.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if isSensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactNested(value)
	}
	return out
}

func redactNested(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		items := make([]any, 0, len(typed))
		for _, item := range typed {
			items = append(items, redactNested(item))
		}
		return items
	}
	return value
}

func isSensitiveKey(key string) bool {
	trimmed := strings.TrimSpace(key)
	if _, ok := redactedParams[strings.ToUpper(trimmed)]; ok {
		return true
	}
	lower := strings.ToLower(trimmed)
	if _, ok := traceFields[lower]; ok || lower == "" {
		return false
	}
	return slices.ContainsFunc(sensitiveFragments, func(fragment string) bool {
		return strings.Contains(lower, fragment)
	})
}
