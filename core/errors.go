package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorTextConfiguration     = "ONETOUCH_CONFIGURATION"
	ErrorTextInvalidInput      = "ONETOUCH_INVALID_INPUT"
	ErrorTextTransport         = "ONETOUCH_TRANSPORT"
	ErrorTextHTTPStatus        = "ONETOUCH_HTTP_STATUS"
	ErrorTextMalformedResponse = "ONETOUCH_MALFORMED_RESPONSE"
	ErrorTextProvider          = "ONETOUCH_PROVIDER_ERROR"
	ErrorTextSignatureMismatch = "ONETOUCH_SIGNATURE_MISMATCH"
	ErrorTextNoToken           = "ONETOUCH_NO_TOKEN"
	ErrorTextUnknownPayment    = "ONETOUCH_UNKNOWN_PAYMENT"
	ErrorTextRefund            = "ONETOUCH_REFUND_FAILED"
	ErrorTextValidation        = "ONETOUCH_VALIDATION_FAILED"
	ErrorTextUnknownOutcome    = "ONETOUCH_UNKNOWN_OUTCOME"
	ErrorTextInternal          = "ONETOUCH_INTERNAL_ERROR"
)

var (
	ErrConfiguration     = errors.New("onetouch: configuration error")
	ErrInvalidInput      = errors.New("onetouch: invalid input")
	ErrTransport         = errors.New("onetouch: transport error")
	ErrHTTPStatus        = errors.New("onetouch: unexpected http status")
	ErrMalformedResponse = errors.New("onetouch: malformed response")
	ErrProvider          = errors.New("onetouch: provider rejected request")
	ErrSignatureMismatch = errors.New("onetouch: signature mismatch")
	ErrNoTokenAvailable  = errors.New("onetouch: no token available")
	ErrUnknownPayment    = errors.New("onetouch: unknown payment")
	ErrRefund            = errors.New("onetouch: refund failed")
	ErrValidation        = errors.New("onetouch: validation failed")
	ErrUnknownOutcome    = errors.New("onetouch: payment outcome unknown")

	ErrPaymentNotFound  = errors.New("onetouch: payment not found")
	ErrDuplicatePayment = errors.New("onetouch: duplicate payment id")
	ErrVersionConflict  = errors.New("onetouch: payment version conflict")
)

// ServiceError is implemented by every typed error in this package.
type ServiceError interface {
	error
	ToServiceError() *goerrors.Error
}

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ErrConfiguration.Error()
	}
	return joinMessage(ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func (e *ConfigurationError) ToServiceError() *goerrors.Error {
	return newServiceError(e.Error(), goerrors.CategoryBadInput, http.StatusInternalServerError, ErrorTextConfiguration,
		map[string]any{"field": fieldOf(e)})
}

type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e == nil {
		return ErrInvalidInput.Error()
	}
	return joinMessage(ErrInvalidInput, e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

func (e *InvalidInputError) ToServiceError() *goerrors.Error {
	field := ""
	if e != nil {
		field = e.Field
	}
	return newServiceError(e.Error(), goerrors.CategoryBadInput, http.StatusBadRequest, ErrorTextInvalidInput,
		map[string]any{"field": field})
}

// TransportError covers network failures and timeouts. A timeout on a
// money-moving endpoint is never a failure on its own; see UnknownOutcomeError.
type TransportError struct {
	Endpoint string
	Timeout  bool
	Cause    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ErrTransport.Error()
	}
	reason := "request failed"
	if e.Timeout {
		reason = "request timed out"
	}
	if e.Cause != nil {
		reason += ": " + e.Cause.Error()
	}
	return joinMessage(ErrTransport, e.Endpoint, reason)
}

func (e *TransportError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrTransport
	}
	return errors.Join(ErrTransport, e.Cause)
}

func (e *TransportError) ToServiceError() *goerrors.Error {
	endpoint, timeout := "", false
	if e != nil {
		endpoint, timeout = e.Endpoint, e.Timeout
	}
	code := http.StatusBadGateway
	if timeout {
		code = http.StatusGatewayTimeout
	}
	return newServiceError(e.Error(), goerrors.CategoryExternal, code, ErrorTextTransport,
		map[string]any{"endpoint": endpoint, "timeout": timeout})
}

type HTTPStatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return ErrHTTPStatus.Error()
	}
	return joinMessage(ErrHTTPStatus, e.Endpoint, fmt.Sprintf("status=%d", e.StatusCode))
}

func (e *HTTPStatusError) Unwrap() error { return ErrHTTPStatus }

func (e *HTTPStatusError) ToServiceError() *goerrors.Error {
	endpoint, status := "", 0
	if e != nil {
		endpoint, status = e.Endpoint, e.StatusCode
	}
	return newServiceError(e.Error(), goerrors.CategoryExternal, http.StatusBadGateway, ErrorTextHTTPStatus,
		map[string]any{"endpoint": endpoint, "status_code": status})
}

type MalformedResponseError struct {
	Endpoint string
	Reason   string
	Cause    error
}

func (e *MalformedResponseError) Error() string {
	if e == nil {
		return ErrMalformedResponse.Error()
	}
	reason := e.Reason
	if e.Cause != nil {
		reason += ": " + e.Cause.Error()
	}
	return joinMessage(ErrMalformedResponse, e.Endpoint, reason)
}

func (e *MalformedResponseError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrMalformedResponse
	}
	return errors.Join(ErrMalformedResponse, e.Cause)
}

func (e *MalformedResponseError) ToServiceError() *goerrors.Error {
	endpoint := ""
	if e != nil {
		endpoint = e.Endpoint
	}
	return newServiceError(e.Error(), goerrors.CategoryExternal, http.StatusBadGateway, ErrorTextMalformedResponse,
		map[string]any{"endpoint": endpoint})
}

// ProviderError is a well-formed ERR response. Code and Message are the
// provider's err / errm fields verbatim.
type ProviderError struct {
	Endpoint string
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ErrProvider.Error()
	}
	reason := strings.TrimSpace(e.Code)
	if msg := strings.TrimSpace(e.Message); msg != "" {
		if reason != "" {
			reason += ": "
		}
		reason += msg
	}
	return joinMessage(ErrProvider, e.Endpoint, reason)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }

func (e *ProviderError) ToServiceError() *goerrors.Error {
	endpoint, code, message := "", "", ""
	if e != nil {
		endpoint, code, message = e.Endpoint, e.Code, e.Message
	}
	return newServiceError(e.Error(), goerrors.CategoryOperation, http.StatusUnprocessableEntity, ErrorTextProvider,
		map[string]any{"endpoint": endpoint, "provider_code": code, "provider_message": message})
}

type SignatureMismatchError struct {
	Param string
}

func (e *SignatureMismatchError) Error() string {
	if e == nil {
		return ErrSignatureMismatch.Error()
	}
	return joinMessage(ErrSignatureMismatch, e.Param, "")
}

func (e *SignatureMismatchError) Unwrap() error { return ErrSignatureMismatch }

func (e *SignatureMismatchError) ToServiceError() *goerrors.Error {
	param := ""
	if e != nil {
		param = e.Param
	}
	return newServiceError(e.Error(), goerrors.CategoryAuth, http.StatusUnauthorized, ErrorTextSignatureMismatch,
		map[string]any{"param": param}).
		WithSeverity(goerrors.SeverityCritical)
}

type NoTokenAvailableError struct {
	State     TokenState
	Operation string
}

func (e *NoTokenAvailableError) Error() string {
	if e == nil {
		return ErrNoTokenAvailable.Error()
	}
	return joinMessage(ErrNoTokenAvailable, e.Operation, fmt.Sprintf("token state is %s", e.State))
}

func (e *NoTokenAvailableError) Unwrap() error { return ErrNoTokenAvailable }

func (e *NoTokenAvailableError) ToServiceError() *goerrors.Error {
	state := TokenState("")
	if e != nil {
		state = e.State
	}
	return newServiceError(e.Error(), goerrors.CategoryOperation, http.StatusConflict, ErrorTextNoToken,
		map[string]any{"token_state": string(state)})
}

type UnknownPaymentError struct {
	PaymentID string
}

func (e *UnknownPaymentError) Error() string {
	if e == nil {
		return ErrUnknownPayment.Error()
	}
	return joinMessage(ErrUnknownPayment, e.PaymentID, "")
}

func (e *UnknownPaymentError) Unwrap() error { return ErrUnknownPayment }

func (e *UnknownPaymentError) ToServiceError() *goerrors.Error {
	id := ""
	if e != nil {
		id = e.PaymentID
	}
	return newServiceError(e.Error(), goerrors.CategoryNotFound, http.StatusNotFound, ErrorTextUnknownPayment,
		map[string]any{"payment_id": id})
}

type RefundError struct {
	PaymentID string
	Message   string
	Cause     error
}

func (e *RefundError) Error() string {
	if e == nil {
		return ErrRefund.Error()
	}
	reason := e.Message
	if reason == "" && e.Cause != nil {
		reason = e.Cause.Error()
	}
	return joinMessage(ErrRefund, e.PaymentID, reason)
}

func (e *RefundError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrRefund
	}
	return errors.Join(ErrRefund, e.Cause)
}

func (e *RefundError) ToServiceError() *goerrors.Error {
	id, message := "", ""
	if e != nil {
		id, message = e.PaymentID, e.Message
	}
	return newServiceError(e.Error(), goerrors.CategoryOperation, http.StatusUnprocessableEntity, ErrorTextRefund,
		map[string]any{"payment_id": id, "provider_message": message})
}

// ValidationError reports a provider response that contradicts what was
// requested, such as a computed total that does not match.
type ValidationError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	return joinMessage(ErrValidation, e.Field, fmt.Sprintf("expected %s, got %s", e.Expected, e.Actual))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) ToServiceError() *goerrors.Error {
	field := ""
	if e != nil {
		field = e.Field
	}
	return newServiceError(e.Error(), goerrors.CategoryValidation, http.StatusUnprocessableEntity, ErrorTextValidation,
		map[string]any{"field": field})
}

// UnknownOutcomeError is returned when the send call could not be confirmed.
// The payment must be reconciled with a status poll, never re-sent.
type UnknownOutcomeError struct {
	PaymentID string
	Cause     error
}

func (e *UnknownOutcomeError) Error() string {
	if e == nil {
		return ErrUnknownOutcome.Error()
	}
	reason := "reconcile with a status poll"
	if e.Cause != nil {
		reason = e.Cause.Error()
	}
	return joinMessage(ErrUnknownOutcome, e.PaymentID, reason)
}

func (e *UnknownOutcomeError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrUnknownOutcome
	}
	return errors.Join(ErrUnknownOutcome, e.Cause)
}

func (e *UnknownOutcomeError) ToServiceError() *goerrors.Error {
	id := ""
	if e != nil {
		id = e.PaymentID
	}
	return newServiceError(e.Error(), goerrors.CategoryExternal, http.StatusAccepted, ErrorTextUnknownOutcome,
		map[string]any{"payment_id": id})
}

// MapError converts any error into the go-errors envelope used by outer
// surfaces such as the webhook handler.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var typed ServiceError
	if errors.As(err, &typed) {
		return typed.ToServiceError()
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "onetouch: unexpected error").
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorTextInternal)
}

// IsRetryable reports whether a caller may retry the failed call. Only
// read-only endpoints are ever retryable, and only for transport-level or
// malformed-response failures.
func IsRetryable(err error, readOnly bool) bool {
	if err == nil || !readOnly {
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrMalformedResponse)
}

func newServiceError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func joinMessage(base error, subject string, reason string) string {
	msg := base.Error()
	if subject = strings.TrimSpace(subject); subject != "" {
		msg += ": " + subject
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		msg += ": " + reason
	}
	return msg
}

func fieldOf(e *ConfigurationError) string {
	if e == nil {
		return ""
	}
	return e.Field
}
