package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	transport          Transport
	requestLogSink     RequestLogSink
	clock              Clock
	idGenerator        IDGenerator
	validator          StructValidator
	paymentStore       PaymentStore
	savedCardStore     SavedCardStore
	eventSink          PaymentEventSink
	reconcileScheduler ReconcileScheduler
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTransport(transport Transport) Option {
	return func(b *serviceBuilder) {
		b.transport = transport
	}
}

func WithRequestLogSink(sink RequestLogSink) Option {
	return func(b *serviceBuilder) {
		b.requestLogSink = sink
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func WithStructValidator(validator StructValidator) Option {
	return func(b *serviceBuilder) {
		b.validator = validator
	}
}

func WithPaymentStore(store PaymentStore) Option {
	return func(b *serviceBuilder) {
		b.paymentStore = store
	}
}

func WithSavedCardStore(store SavedCardStore) Option {
	return func(b *serviceBuilder) {
		b.savedCardStore = store
	}
}

func WithPaymentEventSink(sink PaymentEventSink) Option {
	return func(b *serviceBuilder) {
		b.eventSink = sink
	}
}

func WithReconcileScheduler(scheduler ReconcileScheduler) Option {
	return func(b *serviceBuilder) {
		b.reconcileScheduler = scheduler
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("onetouch", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           SystemClock{},
		idGenerator:     UUIDGenerator{},
		validator:       NewStructValidator(),
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw map, mostly for tests and
// embedding hosts that already hold their settings in memory.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

// YAMLFileLoader reads the raw configuration map from a YAML document. An
// optional Key selects a nested section such as "onetouch".
type YAMLFileLoader struct {
	Path string
	Key  string
}

func (l YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return nil, &ConfigurationError{Field: "config_file", Reason: "path is required"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("core: read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Field: "config_file", Reason: err.Error()}
	}
	key := strings.TrimSpace(l.Key)
	if key == "" {
		return raw, nil
	}
	section, ok := raw[key].(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return section, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).ValidateShape),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, true)
	// A runtime config carrying a service name is treated as complete, so its
	// boolean switches override lower layers even when false.
	runtimeLayer := configToLayerMap(runtime, strings.TrimSpace(runtime.ServiceName) != "")

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).ValidateShape),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}
	setString(layer, "service_name", cfg.ServiceName)
	setString(layer, "app_id", cfg.AppID)
	setString(layer, "secret_key", cfg.SecretKey)
	setString(layer, "default_currency", cfg.DefaultCurrency)
	if includeZero || cfg.TestMode {
		layer["test_mode"] = cfg.TestMode
	}
	if includeZero || cfg.RequestTimeoutMS > 0 {
		layer["request_timeout_ms"] = cfg.RequestTimeoutMS
	}

	endpoints := map[string]any{}
	setString(endpoints, "test_base_url", cfg.Endpoints.TestBaseURL)
	setString(endpoints, "production_base_url", cfg.Endpoints.ProductionBaseURL)
	if len(endpoints) > 0 {
		layer["endpoints"] = endpoints
	}

	signing := map[string]any{}
	setString(signing, "token_digest", cfg.Signing.TokenDigest)
	setString(signing, "noreg_digest", cfg.Signing.NoRegDigest)
	if len(signing) > 0 {
		layer["signing"] = signing
	}

	callback := map[string]any{}
	if includeZero || cfg.Callback.RequireSignature {
		callback["require_signature"] = cfg.Callback.RequireSignature
	}
	if includeZero || len(cfg.Callback.SignedParams) > 0 {
		callback["signed_params"] = append([]string(nil), cfg.Callback.SignedParams...)
	}
	if len(callback) > 0 {
		layer["callback"] = callback
	}

	if includeZero || len(cfg.InvalidTokenCodes) > 0 {
		layer["invalid_token_codes"] = append([]string(nil), cfg.InvalidTokenCodes...)
	}
	return layer
}
