package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	testAppID  = "app-1"
	testSecret = "secret-key"
)

type providerHandler func(req TransportRequest) (TransportResponse, error)

// fakeProvider routes transport requests by endpoint path and records them.
type fakeProvider struct {
	mu       sync.Mutex
	handlers map[string]providerHandler
	calls    []TransportRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handlers: map[string]providerHandler{}}
}

func (f *fakeProvider) on(endpoint Endpoint, handler providerHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[endpoint.Path] = handler
}

func (f *fakeProvider) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return TransportResponse{}, err
	}
	path := strings.TrimPrefix(parsed.Path, "/xdev")
	f.mu.Lock()
	f.calls = append(f.calls, req)
	handler := f.handlers[path]
	f.mu.Unlock()
	if handler == nil {
		return TransportResponse{StatusCode: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	return handler(req)
}

func (f *fakeProvider) count(endpoint Endpoint) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, call := range f.calls {
		if strings.HasSuffix(call.URL, endpoint.Path) {
			total++
		}
	}
	return total
}

func (f *fakeProvider) last(endpoint Endpoint) (TransportRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if strings.HasSuffix(f.calls[i].URL, endpoint.Path) {
			return f.calls[i], true
		}
	}
	return TransportRequest{}, false
}

func jsonOK(fields map[string]any) (TransportResponse, error) {
	payload := map[string]any{"status": "OK"}
	for key, value := range fields {
		payload[key] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return TransportResponse{}, err
	}
	return TransportResponse{StatusCode: http.StatusOK, Body: body}, nil
}

func jsonErr(code string, message string) (TransportResponse, error) {
	body, err := json.Marshal(map[string]any{"status": "ERR", "err": code, "errm": message})
	if err != nil {
		return TransportResponse{}, err
	}
	return TransportResponse{StatusCode: http.StatusOK, Body: body}, nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id-%d", s.next)
}

type captureEvents struct {
	mu     sync.Mutex
	events []PaymentStateChange
}

func (c *captureEvents) OnStateChange(_ context.Context, event PaymentStateChange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) countTo(paymentID string, state PaymentState) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, event := range c.events {
		if event.PaymentID == paymentID && event.To == state {
			total++
		}
	}
	return total
}

type captureScheduler struct {
	mu       sync.Mutex
	requests []ReconcileRequest
}

func (c *captureScheduler) ScheduleReconcile(_ context.Context, req ReconcileRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return nil
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.values, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AppID = testAppID
	cfg.SecretKey = testSecret
	cfg.TestMode = true
	return cfg
}

func testNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func newTestService(t *testing.T, provider *fakeProvider, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithTransport(provider),
		WithClock(fixedClock{now: testNow()}),
		WithIDGenerator(&sequenceIDs{}),
		WithLogger(newCaptureLogger()),
		WithLoggerProvider(stubLoggerProvider{logger: newCaptureLogger()}),
	}
	svc, err := NewService(testConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// stubTokenExchange wires code_get and token_get to succeed.
func stubTokenExchange(provider *fakeProvider) {
	provider.on(EndpointCodeGet, func(TransportRequest) (TransportResponse, error) {
		return jsonOK(map[string]any{"code": "code-123"})
	})
	provider.on(EndpointTokenGet, func(TransportRequest) (TransportResponse, error) {
		return jsonOK(map[string]any{
			"TOKEN":    "tok-abc",
			"EXPIRES":  testNow().Add(24 * time.Hour).Unix(),
			"KIN":      "kin-42",
			"USERNAME": "buyer",
			"REALNAME": "Ivan Petrov",
		})
	})
	provider.on(EndpointTokenInvalidate, func(TransportRequest) (TransportResponse, error) {
		return jsonOK(nil)
	})
}

func acquiredSession(t *testing.T, svc *Service, provider *fakeProvider) *TokenManager {
	t.Helper()
	stubTokenExchange(provider)
	session, err := svc.NewTokenSession(DeviceIdentity{DeviceID: "order-1001"})
	if err != nil {
		t.Fatalf("new token session: %v", err)
	}
	if err := session.RequestCode(context.Background(), "key-1"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	if _, err := session.ExchangeCode(context.Background()); err != nil {
		t.Fatalf("exchange code: %v", err)
	}
	return session
}

// stubTokenPayment wires init/check/send for a happy token flow.
func stubTokenPayment(provider *fakeProvider, providerID string) {
	provider.on(EndpointPaymentInit, func(TransportRequest) (TransportResponse, error) {
		return jsonOK(map[string]any{"id": providerID})
	})
	provider.on(EndpointPaymentCheck, func(req TransportRequest) (TransportResponse, error) {
		return jsonOK(map[string]any{
			"amount": req.Form.Get(ParamAmount),
			"tax":    "0",
			"total":  req.Form.Get(ParamAmount),
			"payment_instruments": []map[string]any{
				{"id": "pin-blocked", "name": "Old card", "status": "EXPIRED"},
				{"id": "pin-1", "name": "Visa 4242", "type": "card", "balance": 100000, "status": "OK"},
			},
		})
	})
	provider.on(EndpointPaymentSend, func(TransportRequest) (TransportResponse, error) {
		return jsonOK(nil)
	})
}

func tokenPaymentRequest(session *TokenManager, amount string) StartPaymentRequest {
	return StartPaymentRequest{
		Flow:        FlowToken,
		Session:     session,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "BGN",
		Recipient:   Recipient{ID: "merchant@example.com", IDType: RecipientEmail},
		Description: "Order 1001",
		Reason:      "online order",
	}
}

func noRegPaymentRequest(paymentID string, amount string) StartPaymentRequest {
	return StartPaymentRequest{
		Flow:        FlowNoReg,
		PaymentID:   paymentID,
		DeviceID:    "install-7",
		Amount:      decimal.RequireFromString(amount),
		Currency:    "BGN",
		Recipient:   Recipient{ID: "merchant@example.com", IDType: RecipientEmail},
		Description: "Order 2002",
		ReturnURL:   "https://shop.example/return",
	}
}
