package core

import (
	"context"
	"net/http"
	"net/url"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Clock interface {
	Now() time.Time
}

// IDGenerator supplies correlation ids and device identifiers.
type IDGenerator interface {
	NewID() string
}

// TransportRequest is a single form-encoded call to the provider.
type TransportRequest struct {
	Method  string
	URL     string
	Form    url.Values
	Timeout time.Duration
}

type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs the network exchange. Implementations must validate TLS
// certificates and must not retry.
type Transport interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RequestLogEntry describes one request/response pair. Params are already
// redacted when the entry reaches a sink.
type RequestLogEntry struct {
	Endpoint   string
	Params     map[string]any
	Level      LogLevel
	StatusCode int
	Duration   time.Duration
	Err        error
}

type RequestLogSink interface {
	LogExchange(ctx context.Context, entry RequestLogEntry)
}

type PaymentStore interface {
	Create(ctx context.Context, payment Payment) (Payment, error)
	Get(ctx context.Context, id string) (Payment, error)
	// Update persists the payment when its Version matches the stored one and
	// returns the record with the incremented version.
	Update(ctx context.Context, payment Payment) (Payment, error)
}

type SavedCardStore interface {
	Save(ctx context.Context, card SavedCard) error
	GetByPayment(ctx context.Context, paymentID string) (SavedCard, error)
	ListByDevice(ctx context.Context, deviceID string) ([]SavedCard, error)
}

type PaymentEventSink interface {
	OnStateChange(ctx context.Context, event PaymentStateChange) error
}

type ReconcileScheduler interface {
	ScheduleReconcile(ctx context.Context, req ReconcileRequest) error
}

type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// StructValidator validates tagged request structs.
type StructValidator interface {
	Struct(value any) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// PaymentService is the surface exposed to the hosting order system.
type PaymentService interface {
	StartPayment(ctx context.Context, req StartPaymentRequest) (StartPaymentResult, error)
	CheckStatus(ctx context.Context, paymentID string) (PaymentState, error)
	HandleCallback(ctx context.Context, raw map[string]string) (CallbackResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	GetPayment(ctx context.Context, paymentID string) (Payment, error)
	NewTokenSession(device DeviceIdentity) (*TokenManager, error)
}
