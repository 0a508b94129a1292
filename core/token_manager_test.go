package core

import (
	"context"
	"errors"
	"net/url"
	"testing"
)

func TestTokenManager_FullLifecycle(t *testing.T) {
	provider := newFakeProvider()
	stubTokenExchange(provider)
	client := newTestClient(t, provider)
	manager := NewTokenManager(client, DeviceIdentity{DeviceID: "order-1"}, fixedClock{now: testNow()}, nil)

	if manager.State() != TokenNone {
		t.Fatalf("expected NO_TOKEN, got %s", manager.State())
	}
	if _, err := manager.Token(); !errors.Is(err, ErrNoTokenAvailable) {
		t.Fatalf("expected no token error, got %v", err)
	}
	if err := manager.RequestCode(context.Background(), "key-1"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if manager.State() != TokenCodeRequested {
		t.Fatalf("expected CODE_REQUESTED, got %s", manager.State())
	}
	token, err := manager.ExchangeCode(context.Background())
	if err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	if token.Value != "tok-abc" || token.KIN != "kin-42" || token.RealName != "Ivan Petrov" {
		t.Fatalf("unexpected token %+v", token)
	}
	if token.ExpiresAt.IsZero() {
		t.Fatalf("expected expiry to be parsed")
	}
	if manager.State() != TokenAcquired {
		t.Fatalf("expected TOKEN_ACQUIRED, got %s", manager.State())
	}

	exchange, _ := provider.last(EndpointTokenGet)
	if exchange.Form.Get(ParamCode) != "code-123" || exchange.Form.Get(ParamDeviceID) != "order-1" {
		t.Fatalf("unexpected exchange params %v", exchange.Form)
	}

	if err := manager.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if manager.State() != TokenInvalidated {
		t.Fatalf("expected INVALIDATED, got %s", manager.State())
	}
	if err := manager.Invalidate(context.Background()); err != nil {
		t.Fatalf("expected idempotent invalidate, got %v", err)
	}
	if provider.count(EndpointTokenInvalidate) != 1 {
		t.Fatalf("expected a single revoke call, got %d", provider.count(EndpointTokenInvalidate))
	}
	if _, err := manager.Token(); !errors.Is(err, ErrNoTokenAvailable) {
		t.Fatalf("expected no token after invalidate, got %v", err)
	}
}

func TestTokenManager_FailedExchangeReturnsToNoToken(t *testing.T) {
	provider := newFakeProvider()
	stubTokenExchange(provider)
	provider.on(EndpointTokenGet, func(TransportRequest) (TransportResponse, error) {
		return jsonErr("CODE_EXPIRED", "code expired")
	})
	manager := NewTokenManager(newTestClient(t, provider), DeviceIdentity{DeviceID: "order-1"}, nil, nil)
	if err := manager.RequestCode(context.Background(), "key-1"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if _, err := manager.ExchangeCode(context.Background()); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if manager.State() != TokenNone {
		t.Fatalf("expected NO_TOKEN after failed exchange, got %s", manager.State())
	}
	if _, err := manager.ExchangeCode(context.Background()); !errors.Is(err, ErrNoTokenAvailable) {
		t.Fatalf("expected consumed code to be unusable, got %v", err)
	}
	if provider.count(EndpointTokenGet) != 1 {
		t.Fatalf("expected code never retried, got %d exchanges", provider.count(EndpointTokenGet))
	}
}

func TestTokenManager_InvalidateWithoutTokenIsNoop(t *testing.T) {
	provider := newFakeProvider()
	manager := NewTokenManager(newTestClient(t, provider), DeviceIdentity{DeviceID: "order-1"}, nil, nil)
	if err := manager.Invalidate(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if provider.count(EndpointTokenInvalidate) != 0 {
		t.Fatalf("expected no revoke call")
	}
	var nilManager *TokenManager
	if err := nilManager.Invalidate(context.Background()); err != nil {
		t.Fatalf("expected nil manager invalidate to succeed, got %v", err)
	}
}

func TestTokenManager_InvalidateToleratesProviderRejection(t *testing.T) {
	provider := newFakeProvider()
	stubTokenExchange(provider)
	provider.on(EndpointTokenInvalidate, func(TransportRequest) (TransportResponse, error) {
		return jsonErr("TOKEN_UNKNOWN", "unknown token")
	})
	manager := NewTokenManager(newTestClient(t, provider), DeviceIdentity{DeviceID: "order-1"}, nil, newCaptureLogger())
	if err := manager.Restore(Token{Value: "tok", KIN: "kin"}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := manager.Invalidate(context.Background()); err != nil {
		t.Fatalf("expected revoke of unknown token to succeed, got %v", err)
	}
	if manager.State() != TokenInvalidated {
		t.Fatalf("expected INVALIDATED, got %s", manager.State())
	}
}

func TestTokenManager_RequestCodeRefusedWhileTokenHeld(t *testing.T) {
	provider := newFakeProvider()
	stubTokenExchange(provider)
	manager := NewTokenManager(newTestClient(t, provider), DeviceIdentity{DeviceID: "order-1"}, nil, nil)
	if err := manager.Restore(Token{Value: "tok"}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := manager.RequestCode(context.Background(), "k"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestTokenManager_ExpiredTokenIsUnavailable(t *testing.T) {
	manager := NewTokenManager(newTestClient(t, newFakeProvider()), DeviceIdentity{DeviceID: "order-1"}, fixedClock{now: testNow()}, nil)
	if err := manager.Restore(Token{Value: "tok", ExpiresAt: testNow().Add(-1)}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := manager.Token(); !errors.Is(err, ErrNoTokenAvailable) {
		t.Fatalf("expected expired token to be unavailable, got %v", err)
	}
}

func TestTokenManager_AuthorizationURLAndUserInfo(t *testing.T) {
	provider := newFakeProvider()
	provider.on(EndpointUserInfo, func(req TransportRequest) (TransportResponse, error) {
		if req.Form.Get(ParamToken) != "tok" {
			t.Fatalf("expected token param, got %v", req.Form)
		}
		return jsonOK(map[string]any{
			"GSM":       "+359888000000",
			"REAL_NAME": "Maria",
			"payment_instruments": []map[string]any{
				{"ID": "pin-1", "NAME": "Visa", "BALANCE": "5000"},
			},
		})
	})
	manager := NewTokenManager(newTestClient(t, provider), DeviceIdentity{DeviceID: "order-1"}, fixedClock{now: testNow()}, nil)

	raw, err := manager.AuthorizationURL("key-9")
	if err != nil {
		t.Fatalf("authorization url: %v", err)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Path != "/xdev"+EndpointStart.Path {
		t.Fatalf("unexpected path %q", parsed.Path)
	}
	query := parsed.Query()
	if query.Get(ParamKey) != "key-9" || query.Get(ParamDeviceID) != "order-1" || query.Get(ParamChecksum) == "" {
		t.Fatalf("unexpected authorization query %v", query)
	}

	if _, err := manager.UserInfo(context.Background()); !errors.Is(err, ErrNoTokenAvailable) {
		t.Fatalf("expected no token error, got %v", err)
	}
	if err := manager.Restore(Token{Value: "tok", KIN: "kin-1"}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	info, err := manager.UserInfo(context.Background())
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if info.RealName != "Maria" || info.KIN != "kin-1" || len(info.Instruments) != 1 {
		t.Fatalf("unexpected user info %+v", info)
	}
	if info.Instruments[0].Balance != 5000 || !info.Instruments[0].Eligible {
		t.Fatalf("unexpected instrument %+v", info.Instruments[0])
	}
}
