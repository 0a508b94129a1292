package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-onetouch/core"
)

// transportFailure classifies a failed round trip. Whether the request
// reached the provider is unknown, so callers treat it as unknown outcome for
// mutating endpoints.
func transportFailure(ctx context.Context, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		timeout = true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &core.TransportError{Timeout: timeout, Cause: err}
}

func bodyLimitError(limit int64) error {
	return &core.MalformedResponseError{
		Reason: fmt.Sprintf("response body exceeds limit of %d bytes", limit),
	}
}

func insecureError(field string, reason string) error {
	return &core.ConfigurationError{Field: field, Reason: reason}
}
