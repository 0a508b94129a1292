package core

import (
	"context"
	"errors"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	validator       StructValidator
	clock           Clock
	idGenerator     IDGenerator
	client          *Client
	orchestrator    *Orchestrator
	verifier        *CallbackVerifier
	payments        PaymentStore
	cards           SavedCardStore
}

// NewService resolves configuration (defaults < loaded < cfg), then wires the
// client, orchestrator and callback verifier. A Transport is required.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("onetouch", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("onetouch"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = SystemClock{}
	}
	if builder.idGenerator == nil {
		builder.idGenerator = UUIDGenerator{}
	}
	if builder.validator == nil {
		builder.validator = NewStructValidator()
	}
	if builder.paymentStore == nil {
		builder.paymentStore = NewMemoryPaymentStore()
	}
	if builder.savedCardStore == nil {
		builder.savedCardStore = NewMemorySavedCardStore()
	}
	if builder.requestLogSink == nil {
		builder.requestLogSink = LoggerRequestSink{Logger: logger}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, err
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(finalConfig, builder.transport,
		WithClientClock(builder.clock),
		WithClientIDGenerator(builder.idGenerator),
		WithClientRequestLogSink(builder.requestLogSink),
	)
	if err != nil {
		return nil, err
	}
	orchestrator, err := NewOrchestrator(OrchestratorDependencies{
		Client:    client,
		Config:    finalConfig,
		Payments:  builder.paymentStore,
		Cards:     builder.savedCardStore,
		Events:    builder.eventSink,
		Scheduler: builder.reconcileScheduler,
		Clock:     builder.clock,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	verifier, err := NewCallbackVerifier(client, finalConfig.Callback, builder.paymentStore)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		validator:       builder.validator,
		clock:           builder.clock,
		idGenerator:     builder.idGenerator,
		client:          client,
		orchestrator:    orchestrator,
		verifier:        verifier,
		payments:        builder.paymentStore,
		cards:           builder.savedCardStore,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Logger() Logger {
	if s == nil {
		return glog.Nop()
	}
	return s.logger
}

func (s *Service) Client() *Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewTokenSession returns a TokenManager for one payment context. An empty
// device id gets a fresh identity.
func (s *Service) NewTokenSession(device DeviceIdentity) (*TokenManager, error) {
	if s == nil {
		return nil, &ConfigurationError{Field: "service", Reason: "is nil"}
	}
	device.DeviceID = strings.TrimSpace(device.DeviceID)
	if device.DeviceID == "" {
		device = NewDeviceIdentity(s.idGenerator)
	}
	return NewTokenManager(s.client, device, s.clock, s.logger), nil
}

// NewTokenSessionFromCard restores the token saved by a no-registration
// payment so the token flow can charge the card again.
func (s *Service) NewTokenSessionFromCard(ctx context.Context, paymentID string) (_ *TokenManager, err error) {
	span := s.startSpan(ctx, "restore_card_session", map[string]any{"payment_id": paymentID})
	defer func() { span.end(err) }()
	card, err := s.cards.GetByPayment(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, &UnknownPaymentError{PaymentID: paymentID}
		}
		return nil, err
	}
	session := NewTokenManager(s.client, DeviceIdentity{DeviceID: card.DeviceID}, s.clock, s.logger)
	if err := session.Restore(card.Token); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) StartPayment(ctx context.Context, req StartPaymentRequest) (result StartPaymentResult, err error) {
	span := s.startSpan(ctx, "start_payment", map[string]any{"flow": string(req.Flow)})
	defer func() {
		span.set("payment_id", result.PaymentID)
		span.set("state", string(result.State))
		span.end(err)
	}()

	if err := s.validator.Struct(req); err != nil {
		return StartPaymentResult{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = strings.ToUpper(s.config.DefaultCurrency)
	}
	amountMinor, err := ToMinorUnits(req.Amount, currency)
	if err != nil {
		return StartPaymentResult{}, err
	}

	switch req.Flow {
	case FlowToken:
		payment, startErr := s.orchestrator.StartTokenPayment(ctx, req, amountMinor, currency)
		return StartPaymentResult{PaymentID: payment.ID, State: payment.State}, startErr
	case FlowNoReg:
		payment, redirectURL, startErr := s.orchestrator.StartNoRegPayment(ctx, req, amountMinor, currency)
		return StartPaymentResult{PaymentID: payment.ID, RedirectURL: redirectURL, State: payment.State}, startErr
	default:
		return StartPaymentResult{}, &InvalidInputError{Field: "flow", Reason: "unknown flow " + string(req.Flow)}
	}
}

func (s *Service) CheckStatus(ctx context.Context, paymentID string) (state PaymentState, err error) {
	span := s.startSpan(ctx, "check_status", map[string]any{"payment_id": paymentID})
	defer func() {
		span.set("state", string(state))
		span.end(err)
	}()
	payment, err := s.orchestrator.CheckStatus(ctx, paymentID)
	return payment.State, err
}

func (s *Service) HandleCallback(ctx context.Context, raw map[string]string) (result CallbackResult, err error) {
	span := s.startSpan(ctx, "handle_callback", nil)
	defer func() {
		span.set("payment_id", result.PaymentID)
		span.set("state", string(result.State))
		span.set("changed", result.Changed)
		span.end(err)
	}()
	notice, err := s.verifier.Verify(ctx, raw)
	if err != nil {
		return CallbackResult{}, err
	}
	return s.orchestrator.ApplyCallback(ctx, notice)
}

func (s *Service) Refund(ctx context.Context, req RefundRequest) (result RefundResult, err error) {
	span := s.startSpan(ctx, "refund", map[string]any{"payment_id": req.PaymentID})
	defer func() {
		span.set("amount_minor", result.AmountMinor)
		span.end(err)
	}()
	if err := s.validator.Struct(req); err != nil {
		return RefundResult{}, err
	}
	payment, err := s.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return RefundResult{}, err
	}
	amountMinor, err := ToMinorUnits(req.Amount, payment.Currency)
	if err != nil {
		return RefundResult{}, err
	}
	return s.orchestrator.Refund(ctx, req, amountMinor)
}

func (s *Service) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if s == nil {
		return Payment{}, &ConfigurationError{Field: "service", Reason: "is nil"}
	}
	return s.orchestrator.load(ctx, paymentID)
}

func (s *Service) SavedCards(ctx context.Context, deviceID string) ([]SavedCard, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, &InvalidInputError{Field: "device_id", Reason: "is required"}
	}
	return s.cards.ListByDevice(ctx, deviceID)
}
