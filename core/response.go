package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	providerStatusOK  = "OK"
	providerStatusErr = "ERR"
)

type responseKind int

const (
	responseMalformed responseKind = iota
	responseOK
	responseProviderError
)

// Response is a decoded OK payload. Keys are lower-cased on decode so
// lookups are case-insensitive.
type Response struct {
	Endpoint string
	Fields   map[string]any
}

// decodedResponse is the single place a provider body is classified.
type decodedResponse struct {
	kind     responseKind
	response Response
	err      error
}

func decodeResponse(endpoint string, body []byte) decodedResponse {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return decodedResponse{err: &MalformedResponseError{Endpoint: endpoint, Reason: "empty body"}}
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	raw := map[string]any{}
	if err := decoder.Decode(&raw); err != nil {
		return decodedResponse{err: &MalformedResponseError{Endpoint: endpoint, Reason: "invalid json", Cause: err}}
	}
	fields := lowerKeys(raw)
	status := strings.ToUpper(readAnyString(fields["status"]))
	switch status {
	case providerStatusOK:
		return decodedResponse{kind: responseOK, response: Response{Endpoint: endpoint, Fields: fields}}
	case providerStatusErr:
		return decodedResponse{
			kind: responseProviderError,
			err: &ProviderError{
				Endpoint: endpoint,
				Code:     readAnyString(fields["err"]),
				Message:  readAnyString(fields["errm"]),
			},
		}
	case "":
		return decodedResponse{err: &MalformedResponseError{Endpoint: endpoint, Reason: "missing status"}}
	default:
		return decodedResponse{err: &MalformedResponseError{Endpoint: endpoint, Reason: "unrecognized status " + status}}
	}
}

func (r Response) String(key string) string {
	return readAnyString(r.Fields[strings.ToLower(key)])
}

func (r Response) Int64(key string) (int64, bool) {
	return readAnyInt64(r.Fields[strings.ToLower(key)])
}

func (r Response) Has(key string) bool {
	value, ok := r.Fields[strings.ToLower(key)]
	return ok && value != nil
}

// Items returns a list of objects stored under key.
func (r Response) Items(key string) []map[string]any {
	list, ok := r.Fields[strings.ToLower(key)].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

// RequireString returns the field or a MalformedResponseError.
func (r Response) RequireString(key string) (string, error) {
	value := r.String(key)
	if value == "" {
		return "", &MalformedResponseError{Endpoint: r.Endpoint, Reason: "missing " + strings.ToLower(key)}
	}
	return value, nil
}

func (r Response) RequireInt64(key string) (int64, error) {
	value, ok := r.Int64(key)
	if !ok {
		return 0, &MalformedResponseError{Endpoint: r.Endpoint, Reason: "missing or non-integer " + strings.ToLower(key)}
	}
	return value, nil
}

func lowerKeys(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[strings.ToLower(strings.TrimSpace(key))] = lowerValue(value)
	}
	return out
}

func lowerValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return lowerKeys(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = lowerValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed, true
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func readAnyBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	default:
		switch strings.ToLower(readAnyString(value)) {
		case "1", "true", "yes", "ok":
			return true
		}
	}
	return false
}
