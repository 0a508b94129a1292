package onetouch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	onetouchcommand "github.com/goliatone/go-onetouch/command"
	"github.com/goliatone/go-onetouch/core"
	onetouchquery "github.com/goliatone/go-onetouch/query"
	"github.com/shopspring/decimal"
)

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeService{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.StartPayment == nil || commands.CheckStatus == nil || commands.HandleCallback == nil || commands.Refund == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetPayment == nil || queries.ListSavedCards == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.CallbackHandler() == nil {
		t.Fatalf("expected callback handler to be wired")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	svc := &stubFacadeService{}
	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	if err := facade.Commands().CheckStatus.Execute(context.Background(), onetouchcommand.CheckStatusMessage{
		PaymentID: "PAY-1",
	}); err != nil {
		t.Fatalf("execute check status command: %v", err)
	}
	if svc.lastCheckedPaymentID != "PAY-1" {
		t.Fatalf("expected check status delegation, got %q", svc.lastCheckedPaymentID)
	}

	cards, err := facade.Queries().ListSavedCards.Query(context.Background(), onetouchquery.ListSavedCardsMessage{
		DeviceID: "device-1",
	})
	if err != nil {
		t.Fatalf("query saved cards: %v", err)
	}
	if len(cards) != 1 || cards[0].Token.Value != "" {
		t.Fatalf("expected one saved card without token value, got %#v", cards)
	}
}

func TestNewFacade_RequiresService(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil service error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

func TestNewService_NoRegCallbackThroughFacade(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AppID = "app-facade"
	cfg.SecretKey = "secret-facade"
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	start, err := svc.StartPayment(context.Background(), StartPaymentRequest{
		Flow:        FlowNoReg,
		PaymentID:   "ORD-FACADE",
		DeviceID:    "install-1",
		Amount:      decimal.RequireFromString("9.90"),
		Currency:    "BGN",
		Recipient:   Recipient{ID: "merchant@example.com", IDType: core.RecipientEmail},
		Description: "Facade order",
	})
	if err != nil {
		t.Fatalf("start payment: %v", err)
	}
	if start.State != core.PaymentRedirectIssued {
		t.Fatalf("expected redirect issued, got %q", start.State)
	}

	facade, err := NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	params := map[string]string{core.ParamID: "ORD-FACADE", core.ParamState: "3", core.ParamTransactionNo: "TX-77"}
	signer := svc.Client().SignerFor(FlowNoReg)
	signature, err := signer.Sign(params, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set(signer.Param(), signature)

	req := httptest.NewRequest(http.MethodPost, "/onetouch/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	facade.CallbackHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	payment, err := facade.Queries().GetPayment.Query(context.Background(), onetouchquery.GetPaymentMessage{PaymentID: "ORD-FACADE"})
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.State != core.PaymentComplete || payment.TransactionNo != "TX-77" {
		t.Fatalf("expected complete payment with transaction number, got %q %q", payment.State, payment.TransactionNo)
	}
}

type stubFacadeService struct {
	lastCheckedPaymentID string
}

func (s *stubFacadeService) StartPayment(context.Context, core.StartPaymentRequest) (core.StartPaymentResult, error) {
	return core.StartPaymentResult{}, nil
}

func (s *stubFacadeService) CheckStatus(_ context.Context, paymentID string) (core.PaymentState, error) {
	s.lastCheckedPaymentID = paymentID
	return core.PaymentProcessing, nil
}

func (s *stubFacadeService) HandleCallback(context.Context, map[string]string) (core.CallbackResult, error) {
	return core.CallbackResult{}, nil
}

func (s *stubFacadeService) Refund(context.Context, core.RefundRequest) (core.RefundResult, error) {
	return core.RefundResult{}, errors.New("not supported")
}

func (s *stubFacadeService) GetPayment(_ context.Context, paymentID string) (core.Payment, error) {
	return core.Payment{ID: paymentID}, nil
}

func (s *stubFacadeService) SavedCards(context.Context, string) ([]core.SavedCard, error) {
	return []core.SavedCard{{
		PaymentID: "PAY-1",
		DeviceID:  "device-1",
		Token:     core.Token{Value: "secret-token", KIN: "KIN-1"},
	}}, nil
}

var _ CommandQueryService = (*stubFacadeService)(nil)
