package onetouch

import (
	"github.com/goliatone/go-onetouch/core"
	"github.com/goliatone/go-onetouch/transport"
)

type Config = core.Config
type Option = core.Option
type Service = core.Service

type Flow = core.Flow
type PaymentState = core.PaymentState
type Payment = core.Payment
type SavedCard = core.SavedCard
type DeviceIdentity = core.DeviceIdentity
type Token = core.Token
type TokenManager = core.TokenManager
type Recipient = core.Recipient

type StartPaymentRequest = core.StartPaymentRequest
type StartPaymentResult = core.StartPaymentResult
type CallbackResult = core.CallbackResult
type RefundRequest = core.RefundRequest
type RefundResult = core.RefundResult
type ReconcileRequest = core.ReconcileRequest

type PaymentStore = core.PaymentStore
type SavedCardStore = core.SavedCardStore
type PaymentEventSink = core.PaymentEventSink
type ReconcileScheduler = core.ReconcileScheduler
type ReplayLedger = core.ReplayLedger
type SecretProvider = core.SecretProvider

const (
	FlowToken = core.FlowToken
	FlowNoReg = core.FlowNoReg
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithTransport          = core.WithTransport
	WithRequestLogSink     = core.WithRequestLogSink
	WithClock              = core.WithClock
	WithIDGenerator        = core.WithIDGenerator
	WithStructValidator    = core.WithStructValidator
	WithPaymentStore       = core.WithPaymentStore
	WithSavedCardStore     = core.WithSavedCardStore
	WithPaymentEventSink   = core.WithPaymentEventSink
	WithReconcileScheduler = core.WithReconcileScheduler
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a payment service that talks HTTPS form posts through the
// default transport unless WithTransport overrides it.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithTransport(transport.NewFormAdapter(nil)))
	all = append(all, opts...)
	return core.NewService(cfg, all...)
}
