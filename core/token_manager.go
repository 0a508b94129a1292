package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// TokenManager owns the token of exactly one payment context. Calls on the
// same manager are serialized; a manager must never be shared between
// unrelated orders.
type TokenManager struct {
	mu     sync.Mutex
	client *Client
	device DeviceIdentity
	clock  Clock
	logger Logger
	state  TokenState
	code   string
	token  Token
}

func NewTokenManager(client *Client, device DeviceIdentity, clock Clock, logger Logger) *TokenManager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenManager{
		client: client,
		device: device,
		clock:  clock,
		logger: logger,
		state:  TokenNone,
	}
}

func (m *TokenManager) Device() DeviceIdentity {
	if m == nil {
		return DeviceIdentity{}
	}
	return m.device
}

func (m *TokenManager) State() TokenState {
	if m == nil {
		return TokenNone
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AuthorizationURL returns the provider page where the user approves the
// application for this device. key is the caller's opaque request key.
func (m *TokenManager) AuthorizationURL(key string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	return m.client.SignedURL(EndpointStart, map[string]string{
		ParamDeviceID: m.device.DeviceID,
		ParamKey:      strings.TrimSpace(key),
	}, "")
}

// RequestCode asks the provider for a single-use authorization code.
func (m *TokenManager) RequestCode(ctx context.Context, key string) error {
	if err := m.ready(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return &InvalidInputError{Field: "key", Reason: "is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TokenAcquired {
		return &InvalidInputError{Field: "token", Reason: "already acquired; invalidate it first"}
	}
	resp, err := m.client.Call(ctx, EndpointCodeGet, map[string]string{
		ParamDeviceID: m.device.DeviceID,
		ParamKey:      key,
	}, "")
	if err != nil {
		return err
	}
	code, err := resp.RequireString("code")
	if err != nil {
		return err
	}
	m.code = code
	m.state = TokenCodeRequested
	return nil
}

// ExchangeCode trades the pending code for a token. The code is consumed
// whatever the outcome.
func (m *TokenManager) ExchangeCode(ctx context.Context) (Token, error) {
	if err := m.ready(); err != nil {
		return Token{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != TokenCodeRequested || m.code == "" {
		return Token{}, &NoTokenAvailableError{State: m.state, Operation: "exchange_code"}
	}
	code := m.code
	m.code = ""

	resp, err := m.client.Call(ctx, EndpointTokenGet, map[string]string{
		ParamDeviceID: m.device.DeviceID,
		ParamCode:     code,
	}, "")
	if err != nil {
		m.state = TokenNone
		return Token{}, err
	}
	token, err := tokenFromResponse(resp)
	if err != nil {
		m.state = TokenNone
		return Token{}, err
	}
	m.token = token
	m.state = TokenAcquired
	return token, nil
}

// Restore adopts a token obtained earlier, such as a saved card token or one
// persisted with a payment.
func (m *TokenManager) Restore(token Token) error {
	if m == nil {
		return &ConfigurationError{Field: "token_manager", Reason: "is nil"}
	}
	if token.IsZero() {
		return &InvalidInputError{Field: "token", Reason: "is required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.code = ""
	m.state = TokenAcquired
	return nil
}

// Token returns the acquired, unexpired token.
func (m *TokenManager) Token() (Token, error) {
	if m == nil {
		return Token{}, &NoTokenAvailableError{State: TokenNone, Operation: "token"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked("token")
}

func (m *TokenManager) UserInfo(ctx context.Context) (UserInfo, error) {
	if err := m.ready(); err != nil {
		return UserInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	token, err := m.currentLocked("user_info")
	if err != nil {
		return UserInfo{}, err
	}
	resp, err := m.client.Call(ctx, EndpointUserInfo, map[string]string{
		ParamDeviceID: m.device.DeviceID,
		ParamToken:    token.Value,
	}, token.KIN)
	if err != nil {
		return UserInfo{}, err
	}
	info := UserInfo{
		KIN:         firstNonEmpty(resp.String("kin"), token.KIN),
		Username:    firstNonEmpty(resp.String("username"), token.Username),
		RealName:    firstNonEmpty(resp.String("real_name"), resp.String("realname"), token.RealName),
		GSM:         resp.String("gsm"),
		Email:       resp.String("email"),
		Instruments: instrumentsFromResponse(resp),
	}
	return info, nil
}

// Invalidate revokes the token. It is idempotent: a manager without a token
// returns nil. The local token is dropped before the provider is called so it
// can never be reused, even when the revoke call fails.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != TokenAcquired {
		if m.state == TokenCodeRequested {
			m.code = ""
			m.state = TokenNone
		}
		return nil
	}
	token := m.token
	m.token = Token{}
	m.state = TokenInvalidated
	if m.client == nil {
		return nil
	}
	_, err := m.client.Call(ctx, EndpointTokenInvalidate, map[string]string{
		ParamDeviceID: m.device.DeviceID,
		ParamToken:    token.Value,
	}, token.KIN)
	if err == nil {
		return nil
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if m.logger != nil {
			m.logger.Warn("token revoke rejected by provider; treating as revoked",
				"device_id", m.device.DeviceID,
				"provider_code", providerErr.Code,
			)
		}
		return nil
	}
	return err
}

func (m *TokenManager) ready() error {
	if m == nil || m.client == nil {
		return &ConfigurationError{Field: "token_manager", Reason: "client is not configured"}
	}
	if strings.TrimSpace(m.device.DeviceID) == "" {
		return &InvalidInputError{Field: "device_id", Reason: "is required"}
	}
	return nil
}

func (m *TokenManager) currentLocked(operation string) (Token, error) {
	if m.state != TokenAcquired || m.token.IsZero() {
		return Token{}, &NoTokenAvailableError{State: m.state, Operation: operation}
	}
	if m.token.Expired(m.clock.Now()) {
		return Token{}, &NoTokenAvailableError{State: m.state, Operation: operation + " (token expired)"}
	}
	return m.token, nil
}

func tokenFromResponse(resp Response) (Token, error) {
	value, err := resp.RequireString("token")
	if err != nil {
		return Token{}, err
	}
	token := Token{
		Value:    value,
		KIN:      resp.String("kin"),
		Username: resp.String("username"),
		RealName: firstNonEmpty(resp.String("realname"), resp.String("real_name")),
	}
	if expires, ok := resp.Int64("expires"); ok && expires > 0 {
		token.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	return token, nil
}

func instrumentsFromResponse(resp Response) []PaymentInstrument {
	items := resp.Items("payment_instruments")
	if len(items) == 0 {
		return nil
	}
	out := make([]PaymentInstrument, 0, len(items))
	for _, item := range items {
		id := readAnyString(item["id"])
		if id == "" {
			continue
		}
		balance, _ := readAnyInt64(item["balance"])
		status := strings.ToUpper(readAnyString(item["status"]))
		out = append(out, PaymentInstrument{
			ID:       id,
			Name:     readAnyString(item["name"]),
			Type:     readAnyString(item["type"]),
			Balance:  balance,
			Eligible: status == "" || status == providerStatusOK,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
