package core

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	DigestHMACSHA256 = "hmac-sha256"
	DigestHMACSHA1   = "hmac-sha1"

	DefaultTestBaseURL       = "https://demo.epay.bg/xdev"
	DefaultProductionBaseURL = "https://www.epay.bg/xdev"

	defaultRequestTimeoutMS = 30000
	maxRequestTimeoutMS     = 120000
)

type EndpointsConfig struct {
	TestBaseURL       string `koanf:"test_base_url" mapstructure:"test_base_url"`
	ProductionBaseURL string `koanf:"production_base_url" mapstructure:"production_base_url"`
}

// SigningConfig selects the digest per flow. The provider never advertises
// which digest an endpoint expects, so it is always configured.
type SigningConfig struct {
	TokenDigest string `koanf:"token_digest" mapstructure:"token_digest"`
	NoRegDigest string `koanf:"noreg_digest" mapstructure:"noreg_digest"`
}

type CallbackConfig struct {
	RequireSignature bool     `koanf:"require_signature" mapstructure:"require_signature"`
	SignedParams     []string `koanf:"signed_params" mapstructure:"signed_params"`
}

type Config struct {
	ServiceName       string          `koanf:"service_name" mapstructure:"service_name"`
	AppID             string          `koanf:"app_id" mapstructure:"app_id"`
	SecretKey         string          `koanf:"secret_key" mapstructure:"secret_key"`
	TestMode          bool            `koanf:"test_mode" mapstructure:"test_mode"`
	Endpoints         EndpointsConfig `koanf:"endpoints" mapstructure:"endpoints"`
	RequestTimeoutMS  int             `koanf:"request_timeout_ms" mapstructure:"request_timeout_ms"`
	Signing           SigningConfig   `koanf:"signing" mapstructure:"signing"`
	Callback          CallbackConfig  `koanf:"callback" mapstructure:"callback"`
	InvalidTokenCodes []string        `koanf:"invalid_token_codes" mapstructure:"invalid_token_codes"`
	DefaultCurrency   string          `koanf:"default_currency" mapstructure:"default_currency"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "onetouch",
		TestMode:    true,
		Endpoints: EndpointsConfig{
			TestBaseURL:       DefaultTestBaseURL,
			ProductionBaseURL: DefaultProductionBaseURL,
		},
		RequestTimeoutMS: defaultRequestTimeoutMS,
		Signing: SigningConfig{
			TokenDigest: DigestHMACSHA256,
			NoRegDigest: DigestHMACSHA1,
		},
		Callback: CallbackConfig{
			RequireSignature: true,
		},
		InvalidTokenCodes: []string{"TOKEN_INVALID", "TOKEN_EXPIRED", "INVALID_TOKEN"},
		DefaultCurrency:   "BGN",
	}
}

// Credentials returns the immutable credential set for a client instance.
func (c Config) Credentials() Credentials {
	return Credentials{
		AppID:     strings.TrimSpace(c.AppID),
		SecretKey: c.SecretKey,
		TestMode:  c.TestMode,
	}
}

func (c Config) BaseURL() string {
	if c.TestMode {
		return strings.TrimRight(strings.TrimSpace(c.Endpoints.TestBaseURL), "/")
	}
	return strings.TrimRight(strings.TrimSpace(c.Endpoints.ProductionBaseURL), "/")
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c Config) IsInvalidTokenCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, candidate := range c.InvalidTokenCodes {
		if strings.EqualFold(strings.TrimSpace(candidate), code) {
			return true
		}
	}
	return false
}

// Validate checks the full configuration, credentials included.
func (c Config) Validate() error {
	if err := c.validateShape(); err != nil {
		return err
	}
	if strings.TrimSpace(c.AppID) == "" {
		return &ConfigurationError{Field: "app_id", Reason: "is required"}
	}
	if c.SecretKey == "" {
		return &ConfigurationError{Field: "secret_key", Reason: "is required"}
	}
	return nil
}

// ValidateShape checks everything except credentials, which may arrive in a
// later configuration layer.
func (c *Config) ValidateShape() error {
	if c == nil {
		return &ConfigurationError{Field: "config", Reason: "is nil"}
	}
	return c.validateShape()
}

func (c Config) validateShape() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return &ConfigurationError{Field: "service_name", Reason: "is required"}
	}
	field := "endpoints.production_base_url"
	if c.TestMode {
		field = "endpoints.test_base_url"
	}
	if err := validateBaseURL(c.BaseURL()); err != nil {
		return &ConfigurationError{Field: field, Reason: err.Error()}
	}
	if c.RequestTimeoutMS <= 0 || c.RequestTimeoutMS > maxRequestTimeoutMS {
		return &ConfigurationError{Field: "request_timeout_ms", Reason: "must be between 1 and 120000"}
	}
	if !knownDigest(c.Signing.TokenDigest) {
		return &ConfigurationError{Field: "signing.token_digest", Reason: "unknown digest " + c.Signing.TokenDigest}
	}
	if !knownDigest(c.Signing.NoRegDigest) {
		return &ConfigurationError{Field: "signing.noreg_digest", Reason: "unknown digest " + c.Signing.NoRegDigest}
	}
	if len(c.Callback.SignedParams) > 0 {
		if !containsParam(c.Callback.SignedParams, ParamID) || !containsParam(c.Callback.SignedParams, ParamState) {
			return &ConfigurationError{Field: "callback.signed_params", Reason: "must include ID and STATE"}
		}
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("base url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if !strings.EqualFold(parsed.Scheme, "https") || parsed.Host == "" {
		return errors.New("base url must be an absolute https url")
	}
	return nil
}

func knownDigest(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DigestHMACSHA256, DigestHMACSHA1:
		return true
	default:
		return false
	}
}

func containsParam(params []string, name string) bool {
	for _, param := range params {
		if strings.EqualFold(strings.TrimSpace(param), name) {
			return true
		}
	}
	return false
}
